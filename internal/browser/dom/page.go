// browser/dom/page.go
package dom

import (
	"context"
)

// QueryKind selects the query language of a Query.
type QueryKind int

const (
	ByCSS QueryKind = iota
	ByXPath
)

func (k QueryKind) String() string {
	if k == ByXPath {
		return "xpath"
	}
	return "css"
}

// Query is a selector expression plus the language it is written in.
// XPath expressions evaluated relative to an element should start with "./" or ".//".
type Query struct {
	Kind QueryKind
	Expr string
}

// CSS builds a CSS selector query.
func CSS(expr string) Query { return Query{Kind: ByCSS, Expr: expr} }

// XPath builds an XPath query.
func XPath(expr string) Query { return Query{Kind: ByXPath, Expr: expr} }

func (q Query) String() string { return q.Kind.String() + ":" + q.Expr }

// Location describes where the page currently is.
type Location struct {
	URL   string
	Title string
}

// ElementInfo is a point-in-time snapshot of an element's observable state.
type ElementInfo struct {
	Tag      string
	Type     string
	Name     string
	ID       string
	Class    string
	Text     string
	Value    string
	Onclick  string
	Visible  bool
	Enabled  bool
	Checked  bool
	Required bool
	ReadOnly bool
}

// Label returns the text a user sees on the control: its text content,
// or its value for inputs rendered as buttons.
func (i ElementInfo) Label() string {
	if i.Text != "" {
		return i.Text
	}
	return i.Value
}

// Option is one entry of a <select>.
type Option struct {
	Index    int
	Value    string
	Text     string
	Disabled bool
	Selected bool
}

// Finder runs queries. A query that matches nothing returns an empty slice, not an error.
type Finder interface {
	Find(ctx context.Context, q Query) ([]Element, error)
}

// Element is a handle to a node in the current document. Handles do not
// survive navigation; any operation on a handle from a previous document
// fails with ErrStaleElement.
type Element interface {
	Finder

	// Ref identifies the element within its document. Two handles to the
	// same node share a Ref.
	Ref() string
	Describe(ctx context.Context) (ElementInfo, error)
	Attribute(ctx context.Context, name string) (string, bool, error)
	// EnclosingText returns the text content of the ancestor `levels` above the element.
	EnclosingText(ctx context.Context, levels int) (string, error)
	Options(ctx context.Context) ([]Option, error)

	ScrollIntoView(ctx context.Context) error
	// Click activates the element the way a script-dispatched click would,
	// ignoring overlays.
	Click(ctx context.Context) error
	Clear(ctx context.Context) error
	Type(ctx context.Context, text string) error
	SelectIndex(ctx context.Context, index int) error
}

// Page is the live document plus navigation.
type Page interface {
	Finder

	Navigate(ctx context.Context, url string) error
	Back(ctx context.Context) error
	Location(ctx context.Context) (Location, error)
	// RunScript evaluates a script in the page. Element arguments are passed
	// through as DOM nodes. res may be nil when the result is not needed.
	RunScript(ctx context.Context, script string, res any, args ...any) error
}
