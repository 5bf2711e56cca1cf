package survey

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/ceqfill/internal/browser/dom"
)

// ControlKind is the kind of answer a question group takes.
type ControlKind int

const (
	SingleChoice ControlKind = iota
	MultiChoice
	DropDown
	FreeText
)

func (k ControlKind) String() string {
	switch k {
	case SingleChoice:
		return "single_choice"
	case MultiChoice:
		return "multi_choice"
	case DropDown:
		return "drop_down"
	case FreeText:
		return "free_text"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// QuestionGroup is a set of controls answered together: a radio or checkbox
// group sharing a name, or a single select or text field.
type QuestionGroup struct {
	Key      string
	Kind     ControlKind
	Elements []dom.Element
}

const (
	freeTextQuery = "textarea, input[type='text']:not([name*='UserAccount']):not([name*='Password'])"
	controlsQuery = "input[type='radio'], input[type='checkbox'], select, " + freeTextQuery
)

func kindOf(info dom.ElementInfo) (ControlKind, bool) {
	switch info.Tag {
	case "select":
		return DropDown, true
	case "textarea":
		return FreeText, true
	case "input":
		switch info.Type {
		case "radio":
			return SingleChoice, true
		case "checkbox":
			return MultiChoice, true
		case "text":
			return FreeText, true
		}
	}
	return 0, false
}

// ScanGroups classifies the answerable controls under f into groups, in the
// order each group is first seen. Radio and checkbox controls without a name
// are skipped.
func ScanGroups(ctx context.Context, f dom.Finder, logger *zap.Logger) ([]QuestionGroup, error) {
	controls, err := f.Find(ctx, dom.CSS(controlsQuery))
	if err != nil {
		return nil, fmt.Errorf("failed to scan form controls: %w", err)
	}

	var groups []QuestionGroup
	index := make(map[string]int)
	for _, el := range controls {
		info, err := el.Describe(ctx)
		if err != nil {
			if fatal(ctx, err) {
				return nil, err
			}
			logger.Debug("Skipping control that could not be described", zap.Error(err))
			continue
		}
		kind, ok := kindOf(info)
		if !ok {
			continue
		}

		key := info.Name
		switch kind {
		case SingleChoice, MultiChoice:
			if key == "" {
				continue
			}
		default:
			// Standalone controls; the name is only a label.
			if key == "" {
				key = el.Ref()
			}
			groups = append(groups, QuestionGroup{Key: key, Kind: kind, Elements: []dom.Element{el}})
			continue
		}

		id := kind.String() + "/" + key
		if i, seen := index[id]; seen {
			groups[i].Elements = append(groups[i].Elements, el)
			continue
		}
		index[id] = len(groups)
		groups = append(groups, QuestionGroup{Key: key, Kind: kind, Elements: []dom.Element{el}})
	}
	return groups, nil
}
