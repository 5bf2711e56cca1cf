// File: cmd/helpers_test.go
package cmd

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ceqfill/internal/browser/dom"
	"github.com/xkilldash9x/ceqfill/internal/config"
)

const (
	testEntryURL   = "https://ceq.test/Home"
	testListingURL = "https://ceq.test/StuFillIn"
)

// newTestConfig returns defaults pointed at the fake site with no waits.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Site.EntryURL = testEntryURL
	cfg.Site.ListingURL = testListingURL
	cfg.Site.ListingRoute = "StuFillIn"
	cfg.Credentials.StudentID = "C110000001"
	cfg.Credentials.Password = "pw"
	cfg.Timing = config.TimingConfig{Speed: 1}
	cfg.Answers.Seed = 11
	require.NoError(t, cfg.Validate())
	return cfg
}

func page(title, body string) string {
	return "<html><head><title>" + title + "</title></head><body>" + body + "</body></html>"
}

// fakeSite serves a login page, a home page with the questionnaire menu,
// the listing and one survey per pending id.
type fakeSite struct {
	mu        sync.Mutex
	pending   []string
	submitted []string
	loggedIn  bool
	// dropOn disconnects the session when this survey is opened.
	dropOn string
}

func (s *fakeSite) listing() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows strings.Builder
	for _, id := range s.pending {
		fmt.Fprintf(&rows, `<tr><td>%[1]s</td><td><input type="button" class="btn btn-info" id="start-%[1]s" value="填寫問卷(Start)"></td></tr>`, id)
	}
	return page("StuFillIn", "<table>"+rows.String()+"</table>")
}

func (s *fakeSite) survey(id string) string {
	var b strings.Builder
	for q := 1; q <= 3; q++ {
		b.WriteString("<div>")
		for o := 1; o <= 5; o++ {
			fmt.Fprintf(&b, `<input type="radio" name="q%d" value="%d">`, q, o)
		}
		b.WriteString("</div>")
	}
	b.WriteString(`<select name="grade"><option>請選擇</option><option>A</option><option>B</option></select>`)
	b.WriteString(`<textarea name="memo"></textarea>`)
	fmt.Fprintf(&b, `<input type="submit" value="送出" data-survey="%s">`, id)
	return page("問卷 "+id, "<form>"+b.String()+"</form>")
}

func (s *fakeSite) newPage(t *testing.T) *dom.StaticPage {
	t.Helper()
	p, err := dom.NewStaticPage("about:blank", "<html></html>",
		dom.WithLoader(func(url string) (string, error) {
			switch url {
			case testEntryURL:
				s.mu.Lock()
				in := s.loggedIn
				s.mu.Unlock()
				if in {
					return page("首頁", `<a id="menu">期末問卷</a><a id="fill">期末問卷填寫</a>`), nil
				}
				return page("登入", `<input type="text" name="UserAccount"><input type="password" name="Password"><button type="submit" id="login">登入</button>`), nil
			case testListingURL:
				return s.listing(), nil
			}
			return "", fmt.Errorf("404 %s", url)
		}),
		dom.WithClickHook(s.click))
	require.NoError(t, err)
	return p
}

func (s *fakeSite) click(ctx context.Context, p *dom.StaticPage, el dom.Element, info dom.ElementInfo) error {
	switch {
	case info.ID == "login":
		s.mu.Lock()
		s.loggedIn = true
		s.mu.Unlock()
		return p.Load(testEntryURL, page("首頁", `<a id="menu">期末問卷</a><a id="fill">期末問卷填寫</a>`))
	case info.ID == "fill":
		return p.Load(testListingURL, s.listing())
	case strings.HasPrefix(info.ID, "start-"):
		id := strings.TrimPrefix(info.ID, "start-")
		if id == s.dropOn {
			p.Disconnect(nil)
			return nil
		}
		return p.Load("https://ceq.test/Survey?id="+id, s.survey(id))
	case info.Type == "submit":
		id, _, err := el.Attribute(ctx, "data-survey")
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.submitted = append(s.submitted, id)
		for i, pid := range s.pending {
			if pid == id {
				s.pending = append(s.pending[:i], s.pending[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		return p.Load(testListingURL, s.listing())
	}
	return nil
}

// mockPageFactory is a testify mock of pageFactory.
type mockPageFactory struct {
	mock.Mock
}

func (m *mockPageFactory) Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (dom.Page, func() error, error) {
	args := m.Called(ctx, cfg, logger)
	var p dom.Page
	if v := args.Get(0); v != nil {
		p = v.(dom.Page)
	}
	var release func() error
	if v := args.Get(1); v != nil {
		release = v.(func() error)
	}
	return p, release, args.Error(2)
}
