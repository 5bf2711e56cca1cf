package survey

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/ceqfill/internal/browser/dom"
	"github.com/xkilldash9x/ceqfill/internal/config"
)

// FillCounts records how many question groups of each kind were answered.
type FillCounts struct {
	SingleChoice int `json:"single_choice" yaml:"single_choice"`
	MultiChoice  int `json:"multi_choice" yaml:"multi_choice"`
	DropDown     int `json:"drop_down" yaml:"drop_down"`
	FreeText     int `json:"free_text" yaml:"free_text"`
}

// Total is the number of groups answered.
func (c FillCounts) Total() int {
	return c.SingleChoice + c.MultiChoice + c.DropDown + c.FreeText
}

func (c *FillCounts) add(k ControlKind) {
	switch k {
	case SingleChoice:
		c.SingleChoice++
	case MultiChoice:
		c.MultiChoice++
	case DropDown:
		c.DropDown++
	case FreeText:
		c.FreeText++
	}
}

// Filler answers every question group on an open survey.
type Filler struct {
	logger  *zap.Logger
	timing  config.TimingConfig
	answers config.AnswersConfig
	policy  *AnswerPolicy
	pacer   *Pacer
}

// NewFiller creates a Filler.
func NewFiller(cfg *config.Config, policy *AnswerPolicy, pacer *Pacer, logger *zap.Logger) *Filler {
	return &Filler{
		logger:  logger.Named("filler"),
		timing:  cfg.Timing,
		answers: cfg.Answers,
		policy:  policy,
		pacer:   pacer,
	}
}

// FillOpenSurvey answers the survey currently shown on page. Failures on a
// single group are logged and skipped; a lost session stops filling and is
// returned.
func (f *Filler) FillOpenSurvey(ctx context.Context, page dom.Page) (FillCounts, error) {
	var counts FillCounts
	if err := Sleep(ctx, f.timing.Scaled(f.timing.FillStartWait)); err != nil {
		return counts, err
	}

	groups, err := ScanGroups(ctx, page, f.logger)
	if err != nil {
		if fatal(ctx, err) {
			return counts, err
		}
		f.logger.Warn("Could not scan survey form", zap.Error(err))
		return counts, nil
	}
	f.logger.Info("Filling survey", zap.Int("groups", len(groups)))

	for _, g := range groups {
		filled, err := f.fillGroup(ctx, g)
		if err != nil {
			if fatal(ctx, err) {
				return counts, fmt.Errorf("filling %s group %q: %w", g.Kind, g.Key, err)
			}
			f.logger.Warn("Failed to fill question group",
				zap.String("key", g.Key), zap.Stringer("kind", g.Kind), zap.Error(err))
			if g.Kind != FreeText {
				continue
			}
			if err := f.typeInto(ctx, g.Elements[0], f.answers.FallbackComment); err != nil {
				if fatal(ctx, err) {
					return counts, fmt.Errorf("filling %s group %q: %w", g.Kind, g.Key, err)
				}
				f.logger.Warn("Fallback comment failed too", zap.String("key", g.Key), zap.Error(err))
				continue
			}
			filled = true
		}
		if filled {
			counts.add(g.Kind)
		}
	}

	f.logger.Info("Survey filled",
		zap.Int("single_choice", counts.SingleChoice),
		zap.Int("multi_choice", counts.MultiChoice),
		zap.Int("drop_down", counts.DropDown),
		zap.Int("free_text", counts.FreeText),
	)
	return counts, nil
}

func (f *Filler) fillGroup(ctx context.Context, g QuestionGroup) (bool, error) {
	switch g.Kind {
	case SingleChoice:
		return f.fillSingle(ctx, g)
	case MultiChoice:
		return f.fillMulti(ctx, g)
	case DropDown:
		return f.fillDropDown(ctx, g.Elements[0])
	case FreeText:
		return f.fillText(ctx, g.Elements[0])
	}
	return false, nil
}

func (f *Filler) fillSingle(ctx context.Context, g QuestionGroup) (bool, error) {
	// Only options a person could click are on the scale.
	usable := make([]dom.Element, 0, len(g.Elements))
	for _, el := range g.Elements {
		info, err := el.Describe(ctx)
		if err != nil {
			return false, err
		}
		if info.Visible && info.Enabled {
			usable = append(usable, el)
		}
	}
	i := f.policy.PickSingle(len(usable))
	if i < 0 {
		return false, nil
	}
	if err := f.pacer.Control(ctx); err != nil {
		return false, err
	}
	if err := usable[i].Click(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (f *Filler) fillMulti(ctx context.Context, g QuestionGroup) (bool, error) {
	picks := []int{0}
	if f.policy.IsMultiSelectKey(g.Key) || len(g.Elements) > 1 {
		picks = f.policy.PickMulti(len(g.Elements))
	}

	clicked := 0
	for _, i := range picks {
		el := g.Elements[i]
		info, err := el.Describe(ctx)
		if err != nil {
			return clicked > 0, err
		}
		if !info.Visible || !info.Enabled || info.Checked {
			continue
		}
		if err := f.pacer.Checkbox(ctx); err != nil {
			return clicked > 0, err
		}
		if err := el.Click(ctx); err != nil {
			return clicked > 0, err
		}
		clicked++
	}
	return clicked > 0, nil
}

func (f *Filler) fillDropDown(ctx context.Context, el dom.Element) (bool, error) {
	options, err := el.Options(ctx)
	if err != nil {
		return false, err
	}
	if len(options) <= 1 {
		return false, nil
	}
	opt, ok := f.policy.PickOption(options)
	if !ok {
		return false, nil
	}
	if err := f.pacer.Control(ctx); err != nil {
		return false, err
	}
	if err := el.SelectIndex(ctx, opt.Index); err != nil {
		return false, err
	}
	return true, nil
}

func (f *Filler) fillText(ctx context.Context, el dom.Element) (bool, error) {
	info, err := el.Describe(ctx)
	if err != nil {
		return false, err
	}
	if !info.Visible || !info.Enabled || info.ReadOnly {
		return false, nil
	}

	needed := strings.TrimSpace(info.Value) == "" || info.Required
	if !needed {
		around, err := el.EnclosingText(ctx, 2)
		if err != nil {
			return false, err
		}
		needed = f.policy.NeedsAnswer(around)
	}
	if !needed {
		return false, nil
	}
	if err := f.typeInto(ctx, el, f.policy.PickComment()); err != nil {
		return false, err
	}
	return true, nil
}

func (f *Filler) typeInto(ctx context.Context, el dom.Element, text string) error {
	if err := f.pacer.Control(ctx); err != nil {
		return err
	}
	if err := el.Clear(ctx); err != nil {
		return err
	}
	return el.Type(ctx, text)
}
