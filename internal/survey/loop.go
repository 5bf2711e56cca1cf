package survey

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ceqfill/internal/browser/dom"
	"github.com/xkilldash9x/ceqfill/internal/config"
)

// State is a phase of the run.
type State int

const (
	Discovering State = iota
	Processing
	Reconciling
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Discovering:
		return "discovering"
	case Processing:
		return "processing"
	case Reconciling:
		return "reconciling"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText lets reports carry the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ItemResult is the outcome of one attempt at one survey.
type ItemResult struct {
	Round     int        `json:"round" yaml:"round"`
	Index     int        `json:"index" yaml:"index"`
	Text      string     `json:"text" yaml:"text"`
	Submitted bool       `json:"submitted" yaml:"submitted"`
	Counts    FillCounts `json:"counts" yaml:"counts"`
	Error     string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// RunState summarises a run of the loop.
type RunState struct {
	RunID       string       `json:"run_id" yaml:"run_id"`
	Final       State        `json:"final" yaml:"final"`
	Rounds      int          `json:"rounds" yaml:"rounds"`
	Attempts    int          `json:"attempts" yaml:"attempts"`
	Completed   int          `json:"completed" yaml:"completed"`
	Failed      int          `json:"failed" yaml:"failed"`
	Outstanding int          `json:"outstanding" yaml:"outstanding"`
	Items       []ItemResult `json:"items" yaml:"items"`
	StartedAt   time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time    `json:"finished_at" yaml:"finished_at"`
}

// Components wires the page-level workers to one shared policy and pacer.
type Components struct {
	Resolver  *Resolver
	Navigator *Navigator
	Filler    *Filler
	Checker   *Checker
	Submitter *Submitter
	Policy    *AnswerPolicy
	Pacer     *Pacer
}

// NewComponents builds the workers for cfg.
func NewComponents(cfg *config.Config, logger *zap.Logger) *Components {
	pacer := NewPacer(cfg.Timing)
	policy := NewAnswerPolicy(cfg.Answers)
	resolver := NewResolver(logger, nil)
	checker := NewChecker(cfg, pacer, logger)
	return &Components{
		Resolver:  resolver,
		Navigator: NewNavigator(cfg, resolver, pacer, logger),
		Filler:    NewFiller(cfg, policy, pacer, logger),
		Checker:   checker,
		Submitter: NewSubmitter(cfg, checker, resolver, pacer, logger),
		Policy:    policy,
		Pacer:     pacer,
	}
}

// Loop drives every pending survey to submission, re-listing after each one
// because the listing changes as surveys are completed.
type Loop struct {
	logger    *zap.Logger
	timing    config.TimingConfig
	maxRounds int
	c         *Components
}

// NewLoop creates a Loop over c.
func NewLoop(cfg *config.Config, c *Components, logger *zap.Logger) *Loop {
	return &Loop{
		logger:    logger.Named("loop"),
		timing:    cfg.Timing,
		maxRounds: cfg.Loop.MaxRounds,
		c:         c,
	}
}

// Run processes the listing until it is empty or loop.max_rounds rounds have
// run. Surveys left over after the last round are reported in Outstanding,
// not as an error. A lost session or a cancelled context aborts the run.
func (l *Loop) Run(ctx context.Context, page dom.Page) (RunState, error) {
	st := RunState{
		RunID:     uuid.NewString(),
		Final:     Discovering,
		StartedAt: time.Now(),
	}
	logger := l.logger.With(zap.String("run_id", st.RunID))

	abort := func(err error) (RunState, error) {
		st.Final = Aborted
		st.FinishedAt = time.Now()
		logger.Error("Run aborted", zap.Int("completed", st.Completed), zap.Error(err))
		return st, fmt.Errorf("run aborted: %w", err)
	}

	for {
		st.Rounds++
		st.Final = Discovering
		entries, err := l.c.Navigator.ListEntryPoints(ctx, page)
		if err != nil {
			if fatal(ctx, err) {
				return abort(err)
			}
			logger.Warn("Could not read the listing, retrying next round", zap.Int("round", st.Rounds), zap.Error(err))
			if err := l.recover(ctx, page); err != nil {
				return abort(err)
			}
			if st.Rounds >= l.maxRounds {
				logger.Warn("Round limit reached without reading the listing", zap.Int("rounds", st.Rounds))
				break
			}
			if err := Sleep(ctx, l.timing.Scaled(l.timing.RoundRetryWait)); err != nil {
				return abort(err)
			}
			continue
		}
		if len(entries) == 0 {
			st.Outstanding = 0
			break
		}

		n := len(entries)
		logger.Info("Starting round", zap.Int("round", st.Rounds), zap.Int("pending", n))
		before := st.Completed
		st.Final = Processing
		for i := 0; i < n; i++ {
			fresh, err := l.c.Navigator.ListEntryPoints(ctx, page)
			if err != nil {
				if fatal(ctx, err) {
					return abort(err)
				}
				logger.Warn("Could not re-read the listing, skipping position", zap.Int("index", i), zap.Error(err))
				if err := l.recover(ctx, page); err != nil {
					return abort(err)
				}
				continue
			}
			if i >= len(fresh) {
				logger.Info("Listing shrank, nothing left at this position", zap.Int("index", i), zap.Int("listed", len(fresh)))
				continue
			}

			st.Attempts++
			item := ItemResult{Round: st.Rounds, Index: i, Text: fresh[i].Text}
			ok, counts, err := l.process(ctx, page, fresh[i])
			item.Submitted, item.Counts = ok, counts
			if err != nil {
				item.Error = err.Error()
			}
			st.Items = append(st.Items, item)

			if err != nil && fatal(ctx, err) {
				return abort(err)
			}
			if ok {
				st.Completed++
				logger.Info("Survey completed", zap.Int("index", i), zap.Int("completed", st.Completed))
				continue
			}

			st.Failed++
			logger.Warn("Survey not submitted, recovering", zap.Int("index", i), zap.Error(err))
			if err := l.recover(ctx, page); err != nil {
				return abort(err)
			}
		}

		st.Final = Reconciling
		remaining, err := l.c.Navigator.ListEntryPoints(ctx, page)
		known := err == nil
		if err != nil {
			if fatal(ctx, err) {
				return abort(err)
			}
			// Outstanding is unknown; keep the count from discovery minus
			// what this round completed and let the next round look again.
			logger.Warn("Could not re-read the listing after the round", zap.Error(err))
			st.Outstanding = max(n-(st.Completed-before), 0)
			if err := l.recover(ctx, page); err != nil {
				return abort(err)
			}
		} else {
			st.Outstanding = len(remaining)
		}
		logger.Info("Round finished",
			zap.Int("round", st.Rounds),
			zap.Int("completed_this_round", st.Completed-before),
			zap.Int("remaining", st.Outstanding),
			zap.Bool("listing_read", known),
		)
		if known && st.Outstanding == 0 {
			break
		}
		if st.Rounds >= l.maxRounds {
			logger.Warn("Round limit reached with surveys outstanding",
				zap.Int("rounds", st.Rounds), zap.Int("outstanding", st.Outstanding))
			break
		}
		if err := Sleep(ctx, l.timing.Scaled(l.timing.RoundRetryWait)); err != nil {
			return abort(err)
		}
	}

	st.Final = Done
	st.FinishedAt = time.Now()
	logger.Info("Run finished",
		zap.Int("completed", st.Completed),
		zap.Int("outstanding", st.Outstanding),
		zap.Int("rounds", st.Rounds),
	)
	return st, nil
}

// process opens one survey, fills it and submits it.
func (l *Loop) process(ctx context.Context, page dom.Page, entry EntryPoint) (bool, FillCounts, error) {
	if err := entry.Element.ScrollIntoView(ctx); err != nil {
		if fatal(ctx, err) {
			return false, FillCounts{}, err
		}
		l.logger.Debug("Scroll into view failed", zap.Error(err))
	}
	if err := Sleep(ctx, l.timing.Scaled(l.timing.ViewSettle)); err != nil {
		return false, FillCounts{}, err
	}
	if err := l.c.Pacer.Control(ctx); err != nil {
		return false, FillCounts{}, err
	}
	if err := entry.Element.Click(ctx); err != nil {
		return false, FillCounts{}, fmt.Errorf("failed to open survey: %w", err)
	}
	if err := Sleep(ctx, l.timing.Scaled(l.timing.OpenSurveyWait)); err != nil {
		return false, FillCounts{}, err
	}

	counts, err := l.c.Filler.FillOpenSurvey(ctx, page)
	if err != nil {
		return false, counts, err
	}
	ok, err := l.c.Submitter.Submit(ctx, page)
	return ok, counts, err
}

// recover returns to the listing after a failed survey, by history when
// possible and through the menu otherwise. Only fatal errors are returned;
// the next listing read navigates back on its own if recovery fell short.
func (l *Loop) recover(ctx context.Context, page dom.Page) error {
	if err := page.Back(ctx); err != nil {
		if fatal(ctx, err) {
			return err
		}
		l.logger.Debug("History back failed, reopening the listing", zap.Error(err))
		if err := l.c.Navigator.OpenListing(ctx, page); err != nil {
			if fatal(ctx, err) {
				return err
			}
			l.logger.Warn("Could not reopen the listing", zap.Error(err))
		}
		return nil
	}
	return Sleep(ctx, l.timing.Scaled(l.timing.RecoveryWait))
}
