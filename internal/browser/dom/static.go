// browser/dom/static.go
package dom

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// ClickHook runs after a StaticPage click has applied its own state change.
// It is how callers give a static document behaviour, e.g. loading another
// document when a link is clicked. info is the element state before the click.
type ClickHook func(ctx context.Context, p *StaticPage, el Element, info ElementInfo) error

// Loader returns the markup for a URL passed to Navigate.
type Loader func(url string) (string, error)

// StaticOption configures a StaticPage.
type StaticOption func(*StaticPage)

// WithClickHook installs a hook that runs after every effective click.
func WithClickHook(h ClickHook) StaticOption {
	return func(p *StaticPage) { p.onClick = h }
}

// WithLoader installs the function Navigate uses to fetch markup.
func WithLoader(l Loader) StaticOption {
	return func(p *StaticPage) { p.loader = l }
}

type snapshot struct {
	url    string
	markup string
}

// StaticPage is a Page over a parsed HTML document held in memory. It
// applies the DOM side effects of the operations the filler uses (checking
// radios, toggling checkboxes, editing values) but runs no page scripts.
type StaticPage struct {
	mu      sync.Mutex
	url     string
	doc     *html.Node
	gen     uint64
	history []snapshot
	lost    error

	onClick ClickHook
	loader  Loader
}

// NewStaticPage parses markup as the document at url.
func NewStaticPage(url, markup string, opts ...StaticOption) (*StaticPage, error) {
	p := &StaticPage{}
	for _, opt := range opts {
		opt(p)
	}
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document for %s: %w", url, err)
	}
	p.url, p.doc, p.gen = url, doc, 1
	return p, nil
}

// Load replaces the current document, pushing the old one onto the history.
// Handles obtained from the previous document become stale.
func (p *StaticPage) Load(url, markup string) error {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("failed to parse document for %s: %w", url, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lost != nil {
		return p.lost
	}
	if p.doc != nil {
		p.history = append(p.history, snapshot{url: p.url, markup: renderNode(p.doc)})
	}
	p.url, p.doc = url, doc
	p.gen++
	return nil
}

// Disconnect makes every subsequent operation fail with err, the way a
// crashed browser would. A nil err means ErrSessionLost.
func (p *StaticPage) Disconnect(err error) {
	if err == nil {
		err = ErrSessionLost
	}
	p.mu.Lock()
	p.lost = err
	p.mu.Unlock()
}

// HTML renders the current document, including any state the page operations changed.
func (p *StaticPage) HTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return renderNode(p.doc)
}

func (p *StaticPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.loader == nil {
		return fmt.Errorf("navigate to %s: %w", url, ErrUnsupported)
	}
	p.mu.Lock()
	lost := p.lost
	p.mu.Unlock()
	if lost != nil {
		return lost
	}
	markup, err := p.loader(url)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", url, err)
	}
	return p.Load(url, markup)
}

func (p *StaticPage) Back(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lost != nil {
		return p.lost
	}
	if len(p.history) == 0 {
		return errors.New("no previous document in history")
	}
	prev := p.history[len(p.history)-1]
	doc, err := html.Parse(strings.NewReader(prev.markup))
	if err != nil {
		return fmt.Errorf("failed to restore %s: %w", prev.url, err)
	}
	p.history = p.history[:len(p.history)-1]
	p.url, p.doc = prev.url, doc
	p.gen++
	return nil
}

func (p *StaticPage) Location(ctx context.Context) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lost != nil {
		return Location{}, p.lost
	}
	loc := Location{URL: p.url}
	if t := htmlquery.FindOne(p.doc, "//title"); t != nil {
		loc.Title = NormalizeText(htmlquery.InnerText(t))
	}
	return loc, nil
}

// RunScript cannot evaluate JavaScript. Fire-and-forget scripts (res == nil)
// such as scrolling are accepted as no-ops.
func (p *StaticPage) RunScript(ctx context.Context, script string, res any, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	lost := p.lost
	p.mu.Unlock()
	if lost != nil {
		return lost
	}
	if res != nil {
		return fmt.Errorf("evaluate script: %w", ErrUnsupported)
	}
	return nil
}

func (p *StaticPage) Find(ctx context.Context, q Query) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lost != nil {
		return nil, p.lost
	}
	return p.query(p.doc, q)
}

// query must be called with p.mu held.
func (p *StaticPage) query(root *html.Node, q Query) ([]Element, error) {
	var nodes []*html.Node
	switch q.Kind {
	case ByCSS:
		// goquery's Find only matches descendants of the root selection.
		nodes = goquery.NewDocumentFromNode(root).Find(q.Expr).Nodes
	case ByXPath:
		found, err := htmlquery.QueryAll(root, q.Expr)
		if err != nil {
			return nil, fmt.Errorf("invalid xpath %q: %w", q.Expr, err)
		}
		nodes = found
	default:
		return nil, fmt.Errorf("unknown query kind %d", q.Kind)
	}

	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		if n.Type != html.ElementNode {
			continue
		}
		out = append(out, &staticElement{page: p, node: n, gen: p.gen})
	}
	return out, nil
}

func renderNode(n *html.Node) string {
	if n == nil {
		return ""
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}
