package survey

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/ceqfill/internal/browser/dom"
)

// Target names something the automation needs to find on a page.
type Target int

const (
	TargetEntryPoints Target = iota
	TargetMenuLink
	TargetFillLink
	TargetSubmitControl
	TargetUsernameField
	TargetPasswordField
	TargetLoginButton
)

func (t Target) String() string {
	switch t {
	case TargetEntryPoints:
		return "entry_points"
	case TargetMenuLink:
		return "menu_link"
	case TargetFillLink:
		return "fill_link"
	case TargetSubmitControl:
		return "submit_control"
	case TargetUsernameField:
		return "username_field"
	case TargetPasswordField:
		return "password_field"
	case TargetLoginButton:
		return "login_button"
	}
	return fmt.Sprintf("target(%d)", int(t))
}

// Text the site uses for the controls we look for.
const (
	startLabel   = "填寫問卷(Start)"
	startWord    = "填寫問卷"
	menuText     = "期末問卷"
	fillText     = "期末問卷填寫"
	fillTextAlt  = "問卷填寫"
	submitText   = "送出"
	controlQuery = "button, input[type='button'], input[type='submit'], a"
)

// Strategy is one way of locating a target. Exactly one of Query or Walk is used.
type Strategy struct {
	Name  string
	Query dom.Query
	// Walk replaces Query for lookups that need several queries.
	Walk func(ctx context.Context, f dom.Finder) ([]dom.Element, error)
	// Match filters candidates; nil accepts everything.
	Match func(dom.ElementInfo) bool
	// VisibleOnly drops candidates that are not rendered.
	VisibleOnly bool
}

func isStartControl(info dom.ElementInfo) bool {
	return dom.ContainsAll(info.Label(), startWord, "Start")
}

// textXPaths builds the tag-by-tag text lookups used for navigation links.
func textXPaths(prefix, text string, tags ...string) []Strategy {
	out := make([]Strategy, 0, len(tags))
	for _, tag := range tags {
		out = append(out, Strategy{
			Name:  fmt.Sprintf("%s-%s-text", prefix, tag),
			Query: dom.XPath(fmt.Sprintf("//%s[contains(normalize-space(.), '%s')]", tag, text)),
		})
	}
	return out
}

// DefaultStrategies returns the lookup chains for the questionnaire site.
// Each chain is tried in order and stops at the first strategy with a match.
func DefaultStrategies() map[Target][]Strategy {
	menu := textXPaths("menu", menuText, "a", "span", "div", "li")
	fill := append(textXPaths("fill", fillText, "a", "span", "div"), Strategy{
		Name:  "fill-short-link-text",
		Query: dom.XPath(fmt.Sprintf("//a[contains(normalize-space(.), '%s')]", fillTextAlt)),
	})

	return map[Target][]Strategy{
		TargetEntryPoints: {
			{Name: "info-button-class", Query: dom.CSS(".btn.btn-info"), Match: isStartControl},
			{Name: "start-label", Query: dom.CSS("button, input, a"), Match: func(info dom.ElementInfo) bool {
				return dom.TextEquals(info.Label(), startLabel)
			}},
			{Name: "table-walk", Walk: walkTables, Match: isStartControl},
		},
		TargetMenuLink: append(menu, Strategy{
			Name:  "menu-any-text",
			Query: dom.XPath(fmt.Sprintf("//*[contains(text(), '%s')]", menuText)),
		}),
		TargetFillLink: append(fill, Strategy{
			Name:  "fill-any-text",
			Query: dom.XPath(fmt.Sprintf("//*[contains(text(), '%s')]", fillText)),
		}),
		TargetSubmitControl: {
			{Name: "submit-value", Query: dom.CSS("input[value*='" + submitText + "']"), VisibleOnly: true},
			{Name: "submit-input", Query: dom.CSS("input[type='submit']"), VisibleOnly: true},
			{Name: "submit-button", Query: dom.CSS("button[type='submit']"), VisibleOnly: true},
			{Name: "submit-button-text", Query: dom.XPath("//button[contains(normalize-space(.), '" + submitText + "')]"), VisibleOnly: true},
		},
		TargetUsernameField: {
			{Name: "account-name", Query: dom.CSS("input[name*='UserAccount']"), VisibleOnly: true},
			{Name: "text-input", Query: dom.CSS("input[type='text']"), VisibleOnly: true},
		},
		TargetPasswordField: {
			{Name: "password-input", Query: dom.CSS("input[type='password']"), VisibleOnly: true},
		},
		TargetLoginButton: {
			{Name: "submit-button", Query: dom.CSS("button[type='submit']"), VisibleOnly: true},
			{Name: "submit-input", Query: dom.CSS("input[type='submit']"), VisibleOnly: true},
		},
	}
}

// walkTables visits table → row → cell → clickable control, the last resort
// when the listing's buttons carry neither the expected class nor exact text.
func walkTables(ctx context.Context, f dom.Finder) ([]dom.Element, error) {
	tables, err := f.Find(ctx, dom.CSS("table"))
	if err != nil {
		return nil, err
	}
	var out []dom.Element
	for _, table := range tables {
		rows, err := table.Find(ctx, dom.XPath(".//tr"))
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			cells, err := row.Find(ctx, dom.XPath("./td"))
			if err != nil {
				return nil, err
			}
			for _, cell := range cells {
				controls, err := cell.Find(ctx, dom.CSS(controlQuery))
				if err != nil {
					return nil, err
				}
				out = append(out, controls...)
			}
		}
	}
	return out, nil
}
