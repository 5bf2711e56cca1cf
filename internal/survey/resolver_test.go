package survey

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/ceqfill/internal/browser/dom"
)

func labels(t *testing.T, els []dom.Element) []string {
	t.Helper()
	out := make([]string, 0, len(els))
	for _, el := range els {
		info, err := el.Describe(context.Background())
		require.NoError(t, err)
		out = append(out, info.ID)
	}
	return out
}

func TestResolveEntryPoints(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(zaptest.NewLogger(t), nil)

	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "styled buttons",
			body: `<button class="btn btn-info" id="a">填寫問卷(Start)</button>` +
				`<button class="btn btn-info" id="x">查看結果</button>` +
				`<input type="button" class="btn btn-info" id="b" value="填寫問卷 (Start)">`,
			want: []string{"a", "b"},
		},
		{
			name: "exact label without the class, full-width brackets",
			body: `<a id="a" href="#">填寫問卷（Start）</a><button id="b">填寫問卷(Start)</button><button id="c">填寫問卷</button>`,
			want: []string{"a", "b"},
		},
		{
			name: "table walk for near-miss labels",
			body: `<table><tr><td>課程</td><td><input type="submit" id="a" value="填寫問卷 - Start"></td></tr>` +
				`<tr><td><a id="b" href="#">Start 填寫問卷</a></td><td><a id="c" href="#">說明</a></td></tr></table>`,
			want: []string{"a", "b"},
		},
		{
			name: "nothing to fill",
			body: `<table><tr><td>已完成</td></tr></table>`,
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := newPage(t, listingURL, doc("list", tt.body))
			found, err := r.Resolve(ctx, page, TargetEntryPoints)
			require.NoError(t, err)
			assert.Equal(t, tt.want, labels(t, found))
		})
	}
}

func TestResolveSubmitControlVisibleOnly(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(zaptest.NewLogger(t), nil)

	page := newPage(t, homeURL, doc("s",
		`<input type="submit" id="hidden" value="送出" style="display:none">`+
			`<div hidden><button type="submit" id="hidden2">送出</button></div>`+
			`<button id="text">確認送出</button>`))
	found, err := r.Resolve(ctx, page, TargetSubmitControl)
	require.NoError(t, err)
	assert.Equal(t, []string{"text"}, labels(t, found))

	page = newPage(t, homeURL, doc("s", `<p>no form</p>`))
	el, err := r.First(ctx, page, TargetSubmitControl)
	require.NoError(t, err)
	assert.Nil(t, el)
}

func TestResolveNavigationLinks(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(zaptest.NewLogger(t), nil)
	page := newPage(t, homeURL, doc("home",
		`<ul><li id="li">期末問卷</li></ul><span id="fill-span">問卷填寫</span><a id="fill">問卷填寫</a>`))

	menu, err := r.Resolve(ctx, page, TargetMenuLink)
	require.NoError(t, err)
	assert.Equal(t, []string{"li"}, labels(t, menu))

	fill, err := r.Resolve(ctx, page, TargetFillLink)
	require.NoError(t, err)
	assert.Equal(t, []string{"fill"}, labels(t, fill), "short fill text only matches links")
}

func TestResolverStrategyFailuresAreMisses(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.DebugLevel)
	page := newPage(t, homeURL, doc("t", `<p id="a">x</p><p id="b">y</p>`))

	r := NewResolver(zap.New(core), map[Target][]Strategy{
		TargetMenuLink: {
			{Name: "broken", Query: dom.XPath("//p[")},
			{Name: "walk-error", Walk: func(context.Context, dom.Finder) ([]dom.Element, error) {
				return nil, errors.New("transient")
			}},
			{Name: "duplicates", Walk: func(ctx context.Context, f dom.Finder) ([]dom.Element, error) {
				ps, err := f.Find(ctx, dom.CSS("p"))
				if err != nil {
					return nil, err
				}
				again, err := f.Find(ctx, dom.XPath("//p"))
				return append(append(ps, again...), ps[0]), err
			}},
		},
	})

	found, err := r.Resolve(ctx, page, TargetMenuLink)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, labels(t, found), "first-seen order, no duplicates")
	assert.Equal(t, 2, logs.FilterMessage("Strategy failed, treating as a miss").Len())
}

func TestResolverReturnsSessionLoss(t *testing.T) {
	ctx := context.Background()
	r := NewResolver(zaptest.NewLogger(t), nil)
	page := newPage(t, listingURL, doc("l", `<button class="btn btn-info">填寫問卷(Start)</button>`))
	page.Disconnect(nil)

	_, err := r.Resolve(ctx, page, TargetEntryPoints)
	require.Error(t, err)
	assert.ErrorIs(t, err, dom.ErrSessionLost)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = r.Resolve(cctx, newPage(t, listingURL, doc("l", "")), TargetEntryPoints)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTargetString(t *testing.T) {
	assert.Equal(t, "entry_points", TargetEntryPoints.String())
	assert.Equal(t, "login_button", TargetLoginButton.String())
	assert.Equal(t, "target(99)", Target(99).String())
}
