package dom

import (
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

type staticElement struct {
	page *StaticPage
	node *html.Node
	gen  uint64
}

// Ref is the element's positional path, prefixed with the document generation.
func (e *staticElement) Ref() string {
	return fmt.Sprintf("%d:%s", e.gen, nodePath(e.node))
}

// lock acquires the page lock and validates the handle. Callers must unlock.
func (e *staticElement) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.page.mu.Lock()
	if e.page.lost != nil {
		err := e.page.lost
		e.page.mu.Unlock()
		return err
	}
	if e.gen != e.page.gen {
		e.page.mu.Unlock()
		return ErrStaleElement
	}
	return nil
}

func (e *staticElement) Find(ctx context.Context, q Query) ([]Element, error) {
	if err := e.lock(ctx); err != nil {
		return nil, err
	}
	defer e.page.mu.Unlock()
	return e.page.query(e.node, q)
}

func (e *staticElement) Describe(ctx context.Context) (ElementInfo, error) {
	if err := e.lock(ctx); err != nil {
		return ElementInfo{}, err
	}
	defer e.page.mu.Unlock()
	return describeNode(e.node), nil
}

func (e *staticElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	if err := e.lock(ctx); err != nil {
		return "", false, err
	}
	defer e.page.mu.Unlock()
	v, ok := attr(e.node, name)
	return v, ok, nil
}

func (e *staticElement) EnclosingText(ctx context.Context, levels int) (string, error) {
	if err := e.lock(ctx); err != nil {
		return "", err
	}
	defer e.page.mu.Unlock()
	n := e.node
	for i := 0; i < levels && n.Parent != nil && n.Parent.Type == html.ElementNode; i++ {
		n = n.Parent
	}
	return NormalizeText(htmlquery.InnerText(n)), nil
}

func (e *staticElement) Options(ctx context.Context) ([]Option, error) {
	if err := e.lock(ctx); err != nil {
		return nil, err
	}
	defer e.page.mu.Unlock()
	return selectOptions(e.node), nil
}

func (e *staticElement) ScrollIntoView(ctx context.Context) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	e.page.mu.Unlock()
	return nil
}

func (e *staticElement) Click(ctx context.Context) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	info := describeNode(e.node)
	if !info.Enabled {
		e.page.mu.Unlock()
		return nil
	}
	if info.Tag == "input" {
		switch info.Type {
		case "radio":
			if info.Name != "" {
				for _, sib := range htmlquery.Find(e.page.doc, "//input[@type='radio']") {
					if v, _ := attr(sib, "name"); v == info.Name {
						removeAttr(sib, "checked")
					}
				}
			}
			setAttr(e.node, "checked", "checked")
		case "checkbox":
			if info.Checked {
				removeAttr(e.node, "checked")
			} else {
				setAttr(e.node, "checked", "checked")
			}
		}
	}
	hook := e.page.onClick
	e.page.mu.Unlock()

	if hook != nil {
		return hook(ctx, e.page, e, info)
	}
	return nil
}

func (e *staticElement) Clear(ctx context.Context) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.page.mu.Unlock()
	setValue(e.node, "")
	return nil
}

func (e *staticElement) Type(ctx context.Context, text string) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.page.mu.Unlock()
	setValue(e.node, fieldValue(e.node)+text)
	return nil
}

func (e *staticElement) SelectIndex(ctx context.Context, index int) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.page.mu.Unlock()
	if !strings.EqualFold(e.node.Data, "select") {
		return fmt.Errorf("select index on <%s>: %w", e.node.Data, ErrUnsupported)
	}
	opts := htmlquery.Find(e.node, ".//option")
	if index < 0 || index >= len(opts) {
		return fmt.Errorf("option index %d out of range [0,%d)", index, len(opts))
	}
	for i, o := range opts {
		if i == index {
			setAttr(o, "selected", "selected")
		} else {
			removeAttr(o, "selected")
		}
	}
	return nil
}

func describeNode(n *html.Node) ElementInfo {
	tag := strings.ToLower(n.Data)
	info := ElementInfo{
		Tag:     tag,
		Type:    strings.ToLower(attrOr(n, "type", "")),
		Name:    attrOr(n, "name", ""),
		ID:      attrOr(n, "id", ""),
		Class:   attrOr(n, "class", ""),
		Onclick: attrOr(n, "onclick", ""),
		Value:   fieldValue(n),
		Visible: isVisible(n),
		Enabled: !hasAttr(n, "disabled"),
	}
	if tag == "input" && info.Type == "" {
		info.Type = "text"
	}
	info.Checked = hasAttr(n, "checked")
	info.Required = hasAttr(n, "required")
	info.ReadOnly = hasAttr(n, "readonly")
	if tag != "textarea" && tag != "select" {
		info.Text = NormalizeText(htmlquery.InnerText(n))
	}
	return info
}

// fieldValue is the current value of a form control: the text content for
// textareas, the selected option for selects, the value attribute otherwise.
func fieldValue(n *html.Node) string {
	switch strings.ToLower(n.Data) {
	case "textarea":
		return htmlquery.InnerText(n)
	case "select":
		opts := selectOptions(n)
		for _, o := range opts {
			if o.Selected {
				return o.Value
			}
		}
		if len(opts) > 0 {
			return opts[0].Value
		}
		return ""
	}
	return attrOr(n, "value", "")
}

func setValue(n *html.Node, v string) {
	if strings.EqualFold(n.Data, "textarea") {
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			n.RemoveChild(c)
			c = next
		}
		if v != "" {
			n.AppendChild(&html.Node{Type: html.TextNode, Data: v})
		}
		return
	}
	setAttr(n, "value", v)
}

func selectOptions(n *html.Node) []Option {
	nodes := htmlquery.Find(n, ".//option")
	out := make([]Option, 0, len(nodes))
	for i, o := range nodes {
		text := NormalizeText(htmlquery.InnerText(o))
		value, ok := attr(o, "value")
		if !ok {
			value = text
		}
		disabled := hasAttr(o, "disabled")
		if p := o.Parent; !disabled && p != nil && strings.EqualFold(p.Data, "optgroup") {
			disabled = hasAttr(p, "disabled")
		}
		out = append(out, Option{
			Index:    i,
			Value:    value,
			Text:     text,
			Disabled: disabled,
			Selected: hasAttr(o, "selected"),
		})
	}
	return out
}

// isVisible approximates rendering: hidden inputs, the hidden attribute and
// inline display/visibility styles on the node or any ancestor.
func isVisible(n *html.Node) bool {
	if strings.EqualFold(n.Data, "input") && strings.EqualFold(attrOr(n, "type", ""), "hidden") {
		return false
	}
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if hasAttr(cur, "hidden") {
			return false
		}
		style := strings.ToLower(strings.ReplaceAll(attrOr(cur, "style", ""), " ", ""))
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return false
		}
	}
	return true
}

// nodePath is a positional XPath that never shortcuts through ids, so it
// stays unique even when a document repeats an id.
func nodePath(n *html.Node) string {
	var parts []string
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		idx := 1
		for prev := cur.PrevSibling; prev != nil; prev = prev.PrevSibling {
			if prev.Type == html.ElementNode && prev.Data == cur.Data {
				idx++
			}
		}
		parts = append(parts, fmt.Sprintf("%s[%d]", cur.Data, idx))
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func attrOr(n *html.Node, key, def string) string {
	if v, ok := attr(n, key); ok {
		return v
	}
	return def
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := attr(n, key)
	return ok
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if !strings.EqualFold(a.Key, key) {
			out = append(out, a)
		}
	}
	n.Attr = out
}
