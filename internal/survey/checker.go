package survey

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/ceqfill/internal/browser/dom"
	"github.com/xkilldash9x/ceqfill/internal/config"
)

// Checker makes a last pass over a survey so the site's required-field
// validation does not reject the submission.
type Checker struct {
	logger  *zap.Logger
	comment string
	pacer   *Pacer
}

// NewChecker creates a Checker that fills blanks with answers.default_comment.
func NewChecker(cfg *config.Config, pacer *Pacer, logger *zap.Logger) *Checker {
	return &Checker{
		logger:  logger.Named("checker"),
		comment: cfg.Answers.DefaultComment,
		pacer:   pacer,
	}
}

// EnforceRequiredFilled fills every empty editable text field and answers
// every radio group left without a checked option. It returns the number of
// fields it had to force. Running it twice forces nothing the second time.
func (c *Checker) EnforceRequiredFilled(ctx context.Context, page dom.Page) (int, error) {
	texts, err := c.enforceText(ctx, page)
	if err != nil {
		return texts, err
	}
	radios, err := c.enforceRadios(ctx, page)
	forced := texts + radios
	if forced > 0 {
		c.logger.Info("Forced unanswered fields", zap.Int("text", texts), zap.Int("radio_groups", radios))
	}
	return forced, err
}

func (c *Checker) enforceText(ctx context.Context, page dom.Page) (int, error) {
	fields, err := page.Find(ctx, dom.CSS(freeTextQuery))
	if err != nil {
		if fatal(ctx, err) {
			return 0, err
		}
		c.logger.Debug("Text field scan failed", zap.Error(err))
		return 0, nil
	}

	forced := 0
	for _, el := range fields {
		err := func() error {
			info, err := el.Describe(ctx)
			if err != nil {
				return err
			}
			if !info.Visible || !info.Enabled || info.ReadOnly || strings.TrimSpace(info.Value) != "" {
				return nil
			}
			if err := c.pacer.Control(ctx); err != nil {
				return err
			}
			if err := el.Clear(ctx); err != nil {
				return err
			}
			if err := el.Type(ctx, c.comment); err != nil {
				return err
			}
			forced++
			return nil
		}()
		if err != nil {
			if fatal(ctx, err) {
				return forced, err
			}
			c.logger.Debug("Skipping text field", zap.Error(err))
		}
	}
	return forced, nil
}

func (c *Checker) enforceRadios(ctx context.Context, page dom.Page) (int, error) {
	groups, err := ScanGroups(ctx, page, c.logger)
	if err != nil {
		if fatal(ctx, err) {
			return 0, err
		}
		c.logger.Debug("Radio scan failed", zap.Error(err))
		return 0, nil
	}

	forced := 0
	for _, g := range groups {
		if g.Kind != SingleChoice {
			continue
		}
		done, err := c.answerRadioGroup(ctx, g)
		if err != nil {
			if fatal(ctx, err) {
				return forced, err
			}
			c.logger.Debug("Skipping radio group", zap.String("key", g.Key), zap.Error(err))
			continue
		}
		if done {
			forced++
		}
	}
	return forced, nil
}

// answerRadioGroup clicks the first usable option of g unless a visible
// option is already checked.
func (c *Checker) answerRadioGroup(ctx context.Context, g QuestionGroup) (bool, error) {
	var first dom.Element
	for _, el := range g.Elements {
		info, err := el.Describe(ctx)
		if err != nil {
			return false, err
		}
		if !info.Visible {
			continue
		}
		if info.Checked {
			return false, nil
		}
		if first == nil && info.Enabled {
			first = el
		}
	}
	if first == nil {
		return false, nil
	}
	if err := c.pacer.Control(ctx); err != nil {
		return false, err
	}
	if err := first.Click(ctx); err != nil {
		return false, err
	}
	return true, nil
}
