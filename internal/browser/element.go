// internal/browser/element.go
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/ceqfill/internal/browser/dom"
)

// element is a handle to a node tagged with refAttr in the session's current document.
type element struct {
	s   *Session
	ref string
}

var _ dom.Element = (*element)(nil)

func (e *element) Ref() string { return e.ref }

// call runs body against the element and decodes its return value into res.
func (e *element) call(ctx context.Context, op, body string, extra map[string]any, res any) error {
	args := map[string]any{"ref": e.ref}
	for k, v := range extra {
		args[k] = v
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return err
	}
	out, err := e.s.eval(ctx, op, buildElementScript(argsJSON, body))
	if err != nil {
		return err
	}
	if res == nil {
		return nil
	}
	if err := json.Unmarshal(out.Value, res); err != nil {
		return fmt.Errorf("%s: failed to decode result: %w", op, err)
	}
	return nil
}

func (e *element) Find(ctx context.Context, q dom.Query) ([]dom.Element, error) {
	return e.s.find(ctx, e.ref, q)
}

type elementInfoJSON struct {
	Tag      string `json:"tag"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	ID       string `json:"id"`
	Class    string `json:"class"`
	Text     string `json:"text"`
	Value    string `json:"value"`
	Onclick  string `json:"onclick"`
	Visible  bool   `json:"visible"`
	Enabled  bool   `json:"enabled"`
	Checked  bool   `json:"checked"`
	Required bool   `json:"required"`
	ReadOnly bool   `json:"readonly"`
}

func (e *element) Describe(ctx context.Context) (dom.ElementInfo, error) {
	var raw elementInfoJSON
	if err := e.call(ctx, "describe", describeBody, nil, &raw); err != nil {
		return dom.ElementInfo{}, err
	}
	return dom.ElementInfo{
		Tag:      raw.Tag,
		Type:     raw.Type,
		Name:     raw.Name,
		ID:       raw.ID,
		Class:    raw.Class,
		Text:     dom.NormalizeText(raw.Text),
		Value:    raw.Value,
		Onclick:  raw.Onclick,
		Visible:  raw.Visible,
		Enabled:  raw.Enabled,
		Checked:  raw.Checked,
		Required: raw.Required,
		ReadOnly: raw.ReadOnly,
	}, nil
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var res struct {
		Has   bool   `json:"has"`
		Value string `json:"value"`
	}
	if err := e.call(ctx, "attribute "+name, attributeBody, map[string]any{"name": name}, &res); err != nil {
		return "", false, err
	}
	return res.Value, res.Has, nil
}

func (e *element) EnclosingText(ctx context.Context, levels int) (string, error) {
	var text string
	if err := e.call(ctx, "enclosing text", enclosingBody, map[string]any{"levels": levels}, &text); err != nil {
		return "", err
	}
	return dom.NormalizeText(text), nil
}

func (e *element) Options(ctx context.Context) ([]dom.Option, error) {
	var opts []dom.Option
	if err := e.call(ctx, "options", optionsBody, nil, &opts); err != nil {
		return nil, err
	}
	for i := range opts {
		opts[i].Text = dom.NormalizeText(opts[i].Text)
	}
	return opts, nil
}

func (e *element) ScrollIntoView(ctx context.Context) error {
	return e.call(ctx, "scroll into view", scrollBody, nil, nil)
}

func (e *element) Click(ctx context.Context) error {
	return e.call(ctx, "click", clickBody, nil, nil)
}

func (e *element) Clear(ctx context.Context) error {
	return e.call(ctx, "clear", clearBody, nil, nil)
}

// Type focuses the element and inserts text the way an IME commit would,
// which fires the same input events as typing.
func (e *element) Type(ctx context.Context, text string) error {
	if err := e.call(ctx, "focus", focusBody, nil, nil); err != nil {
		return err
	}
	if err := e.s.run(ctx, "type", e.s.cfg.ScriptTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.InsertText(text).Do(ctx)
	})); err != nil {
		return err
	}
	return e.call(ctx, "change", changedBody, nil, nil)
}

func (e *element) SelectIndex(ctx context.Context, index int) error {
	return e.call(ctx, "select", selectBody, map[string]any{"index": index}, nil)
}
