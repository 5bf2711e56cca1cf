package survey

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/ceqfill/internal/browser/dom"
	"github.com/xkilldash9x/ceqfill/internal/config"
)

const scrollToBottom = "window.scrollTo(0, document.body.scrollHeight);"

// Submitter sends a filled survey.
type Submitter struct {
	logger   *zap.Logger
	timing   config.TimingConfig
	keywords []string
	route    string
	checker  *Checker
	resolver *Resolver
	pacer    *Pacer
}

// NewSubmitter creates a Submitter.
func NewSubmitter(cfg *config.Config, checker *Checker, resolver *Resolver, pacer *Pacer, logger *zap.Logger) *Submitter {
	return &Submitter{
		logger:   logger.Named("submitter"),
		timing:   cfg.Timing,
		keywords: cfg.Answers.SuccessKeywords,
		route:    cfg.Site.ListingRoute,
		checker:  checker,
		resolver: resolver,
		pacer:    pacer,
	}
}

// Submit completes any missed required fields and clicks the submit control.
// It reports false with no error when the page has no submit control. Once
// the click went through the survey counts as submitted, whether or not the
// resulting page looks like a confirmation.
func (s *Submitter) Submit(ctx context.Context, page dom.Page) (bool, error) {
	if _, err := s.checker.EnforceRequiredFilled(ctx, page); err != nil {
		return false, err
	}

	if err := page.RunScript(ctx, scrollToBottom, nil); err != nil {
		if fatal(ctx, err) {
			return false, err
		}
		s.logger.Debug("Scroll to bottom failed", zap.Error(err))
	}
	if err := Sleep(ctx, s.timing.Scaled(s.timing.ScrollSettle)); err != nil {
		return false, err
	}

	control, err := s.resolver.First(ctx, page, TargetSubmitControl)
	if err != nil {
		return false, err
	}
	if control == nil {
		s.logger.Warn("No submit control found")
		return false, nil
	}

	if err := control.ScrollIntoView(ctx); err != nil {
		if fatal(ctx, err) {
			return false, err
		}
		s.logger.Debug("Could not scroll submit control into view", zap.Error(err))
	}
	if err := Sleep(ctx, s.timing.Scaled(s.timing.ViewSettle)); err != nil {
		return false, err
	}
	if err := s.pacer.Control(ctx); err != nil {
		return false, err
	}
	if err := control.Click(ctx); err != nil {
		return false, fmt.Errorf("failed to click submit control: %w", err)
	}
	if err := Sleep(ctx, s.timing.Scaled(s.timing.SubmitSettle)); err != nil {
		return false, err
	}

	loc, confirmed, err := s.confirmation(ctx, page)
	if err != nil {
		return false, err
	}
	s.logger.Info("Survey submitted",
		zap.Bool("confirmed", confirmed),
		zap.String("url", loc.URL),
		zap.String("title", loc.Title),
	)
	return true, nil
}

// confirmation looks for a success message or a return to the listing.
func (s *Submitter) confirmation(ctx context.Context, page dom.Page) (dom.Location, bool, error) {
	loc, err := page.Location(ctx)
	if err != nil {
		if fatal(ctx, err) {
			return loc, false, err
		}
		return loc, false, nil
	}
	if dom.ContainsAny(loc.Title, s.keywords...) || dom.ContainsAny(loc.URL, s.keywords...) {
		return loc, true, nil
	}
	if s.route != "" && strings.Contains(loc.URL, s.route) {
		return loc, true, nil
	}

	bodies, err := page.Find(ctx, dom.CSS("body"))
	if err != nil || len(bodies) == 0 {
		if fatal(ctx, err) {
			return loc, false, err
		}
		return loc, false, nil
	}
	info, err := bodies[0].Describe(ctx)
	if err != nil {
		if fatal(ctx, err) {
			return loc, false, err
		}
		return loc, false, nil
	}
	return loc, dom.ContainsAny(info.Text, s.keywords...), nil
}
