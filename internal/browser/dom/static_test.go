package dom_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/ceqfill/internal/browser/dom"
)

const formHTML = `
<html><head><title>問卷</title></head><body>
<form>
  <div class="q"><span>1. 教學態度</span>
    <input type="radio" name="q1" value="1"><input type="radio" name="q1" value="2" checked>
    <input type="radio" name="q1" value="3" disabled>
  </div>
  <div class="q">
    <input type="checkbox" name="c1" value="a"><input type="checkbox" name="c1" value="b">
  </div>
  <select name="s1">
    <option value="">--請選擇--</option><option value="x">X</option>
    <optgroup label="g" disabled><option value="y">Y</option></optgroup>
  </select>
  <div><p>請填寫原因<textarea name="t1"></textarea></p></div>
  <input name="plain" value="hello">
  <input type="hidden" name="token" value="abc">
  <div style="display: none"><input type="text" name="hiddenByParent"></div>
</form>
</body></html>`

func newFormPage(t *testing.T, opts ...dom.StaticOption) *dom.StaticPage {
	t.Helper()
	page, err := dom.NewStaticPage("https://ceq.example/Survey", formHTML, opts...)
	require.NoError(t, err)
	return page
}

func findOne(t *testing.T, f dom.Finder, q dom.Query) dom.Element {
	t.Helper()
	els, err := f.Find(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, els, 1, "query %s", q)
	return els[0]
}

func describe(t *testing.T, el dom.Element) dom.ElementInfo {
	t.Helper()
	info, err := el.Describe(context.Background())
	require.NoError(t, err)
	return info
}

func TestStaticPage_FindAndDescribe(t *testing.T) {
	ctx := context.Background()
	page := newFormPage(t)

	radios, err := page.Find(ctx, dom.CSS("input[type=radio]"))
	require.NoError(t, err)
	require.Len(t, radios, 3)

	info := describe(t, radios[1])
	assert.Equal(t, "input", info.Tag)
	assert.Equal(t, "radio", info.Type)
	assert.Equal(t, "q1", info.Name)
	assert.True(t, info.Checked)
	assert.True(t, info.Enabled)
	assert.True(t, info.Visible)
	assert.False(t, describe(t, radios[2]).Enabled)

	plain := describe(t, findOne(t, page, dom.CSS("input[name=plain]")))
	assert.Equal(t, "text", plain.Type, "inputs without a type are text inputs")
	assert.Equal(t, "hello", plain.Value)

	assert.False(t, describe(t, findOne(t, page, dom.CSS("input[name=token]"))).Visible)
	assert.False(t, describe(t, findOne(t, page, dom.CSS("input[name=hiddenByParent]"))).Visible)

	none, err := page.Find(ctx, dom.CSS(".does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = page.Find(ctx, dom.XPath("//*[")) // malformed
	assert.Error(t, err)
}

func TestStaticPage_ScopedQueries(t *testing.T) {
	page := newFormPage(t)
	group := findOne(t, page, dom.XPath("(//div[@class='q'])[2]"))

	boxes, err := group.Find(context.Background(), dom.CSS("input"))
	require.NoError(t, err)
	assert.Len(t, boxes, 2, "scoped CSS only sees descendants")

	boxes, err = group.Find(context.Background(), dom.XPath(".//input[@type='checkbox']"))
	require.NoError(t, err)
	assert.Len(t, boxes, 2)
}

func TestStaticPage_RadioClickIsExclusive(t *testing.T) {
	ctx := context.Background()
	page := newFormPage(t)

	radios, err := page.Find(ctx, dom.CSS("input[name=q1]"))
	require.NoError(t, err)
	require.NoError(t, radios[0].Click(ctx))

	assert.True(t, describe(t, radios[0]).Checked)
	assert.False(t, describe(t, radios[1]).Checked)

	// Disabled controls ignore clicks.
	require.NoError(t, radios[2].Click(ctx))
	assert.False(t, describe(t, radios[2]).Checked)
	assert.True(t, describe(t, radios[0]).Checked)
}

func TestStaticPage_CheckboxToggles(t *testing.T) {
	ctx := context.Background()
	page := newFormPage(t)
	box := findOne(t, page, dom.CSS("input[name=c1][value=a]"))

	require.NoError(t, box.Click(ctx))
	assert.True(t, describe(t, box).Checked)
	require.NoError(t, box.Click(ctx))
	assert.False(t, describe(t, box).Checked)
}

func TestStaticPage_TextEditing(t *testing.T) {
	ctx := context.Background()
	page := newFormPage(t)

	area := findOne(t, page, dom.CSS("textarea"))
	require.NoError(t, area.Type(ctx, "很好"))
	assert.Equal(t, "很好", describe(t, area).Value)
	require.NoError(t, area.Clear(ctx))
	assert.Empty(t, describe(t, area).Value)

	enclosing, err := area.EnclosingText(ctx, 2)
	require.NoError(t, err)
	assert.Contains(t, enclosing, "請填寫原因")

	plain := findOne(t, page, dom.CSS("input[name=plain]"))
	require.NoError(t, plain.Clear(ctx))
	require.NoError(t, plain.Type(ctx, "abc"))
	assert.Equal(t, "abc", describe(t, plain).Value)
	assert.Contains(t, page.HTML(), `value="abc"`)
}

func TestStaticPage_SelectOptions(t *testing.T) {
	ctx := context.Background()
	page := newFormPage(t)
	sel := findOne(t, page, dom.CSS("select"))

	opts, err := sel.Options(ctx)
	require.NoError(t, err)
	require.Len(t, opts, 3)
	assert.Equal(t, "--請選擇--", opts[0].Text)
	assert.True(t, opts[2].Disabled, "options inherit a disabled optgroup")

	require.NoError(t, sel.SelectIndex(ctx, 1))
	assert.Equal(t, "x", describe(t, sel).Value)
	assert.Error(t, sel.SelectIndex(ctx, 9))
}

func TestStaticPage_NavigationMakesHandlesStale(t *testing.T) {
	ctx := context.Background()
	pages := map[string]string{
		"https://ceq.example/Next": `<html><head><title>Next</title></head><body><a id="x">x</a></body></html>`,
	}
	page := newFormPage(t, dom.WithLoader(func(url string) (string, error) {
		markup, ok := pages[url]
		if !ok {
			return "", fmt.Errorf("404 %s", url)
		}
		return markup, nil
	}))

	area := findOne(t, page, dom.CSS("textarea"))
	require.NoError(t, area.Type(ctx, "kept"))
	require.NoError(t, page.Navigate(ctx, "https://ceq.example/Next"))

	_, err := area.Describe(ctx)
	assert.ErrorIs(t, err, dom.ErrStaleElement)

	loc, err := page.Location(ctx)
	require.NoError(t, err)
	assert.Equal(t, dom.Location{URL: "https://ceq.example/Next", Title: "Next"}, loc)

	require.NoError(t, page.Back(ctx))
	loc, err = page.Location(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://ceq.example/Survey", loc.URL)
	assert.Equal(t, "kept", describe(t, findOne(t, page, dom.CSS("textarea"))).Value, "back restores the document as it was left")

	assert.Error(t, page.Back(ctx), "history is exhausted")
	assert.Error(t, page.Navigate(ctx, "https://ceq.example/missing"))
}

func TestStaticPage_ClickHook(t *testing.T) {
	ctx := context.Background()
	var seen []string
	page := newFormPage(t, dom.WithClickHook(func(ctx context.Context, p *dom.StaticPage, el dom.Element, info dom.ElementInfo) error {
		seen = append(seen, info.Name)
		return nil
	}))

	require.NoError(t, findOne(t, page, dom.CSS("input[name=c1][value=b]")).Click(ctx))
	require.NoError(t, findOne(t, page, dom.CSS("input[value='3']")).Click(ctx))
	assert.Equal(t, []string{"c1"}, seen, "disabled elements never reach the hook")
}

func TestStaticPage_Disconnect(t *testing.T) {
	ctx := context.Background()
	page := newFormPage(t)
	area := findOne(t, page, dom.CSS("textarea"))

	page.Disconnect(nil)

	_, err := page.Find(ctx, dom.CSS("textarea"))
	assert.True(t, dom.IsSessionLost(err))
	assert.True(t, dom.IsSessionLost(area.Click(ctx)))
	_, err = page.Location(ctx)
	assert.ErrorIs(t, err, dom.ErrSessionLost)
}

func TestStaticPage_RunScript(t *testing.T) {
	ctx := context.Background()
	page := newFormPage(t)

	assert.NoError(t, page.RunScript(ctx, "window.scrollTo(0, document.body.scrollHeight)", nil))
	var out int
	assert.ErrorIs(t, page.RunScript(ctx, "1+1", &out), dom.ErrUnsupported)
}

func TestIsSessionLost(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("element not interactable"), false},
		{dom.ErrStaleElement, false},
		{fmt.Errorf("click: %w", dom.ErrSessionLost), true},
		{errors.New("Message: invalid session id"), true},
		{errors.New("disconnected: session deleted because of page crash"), true},
		{errors.New("websocket: close 1006 (abnormal closure)"), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dom.IsSessionLost(tt.err), "%v", tt.err)
	}
}

func TestTextHelpers(t *testing.T) {
	assert.True(t, dom.TextEquals("填寫問卷（Start）", "填寫問卷(Start)"), "full-width brackets fold")
	assert.True(t, dom.TextEquals("  填寫問卷(Start)\n", "填寫問卷(Start)"))
	assert.True(t, dom.ContainsAll("請 填寫問卷 (Start)", "填寫問卷", "Start"))
	assert.False(t, dom.ContainsAll("填寫問卷", "Start"))
	assert.True(t, dom.ContainsAny("This field is REQUIRED", "理由", "required"))
	assert.False(t, dom.ContainsAny("備註", "理由", "required"))
}
