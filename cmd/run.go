package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ceqfill/internal/browser"
	"github.com/xkilldash9x/ceqfill/internal/browser/dom"
	"github.com/xkilldash9x/ceqfill/internal/config"
	"github.com/xkilldash9x/ceqfill/internal/observability"
	"github.com/xkilldash9x/ceqfill/internal/reporting"
	"github.com/xkilldash9x/ceqfill/internal/survey"
)

// pageFactory opens the page a run drives. The returned func releases it.
type pageFactory interface {
	Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (dom.Page, func() error, error)
}

type browserPageFactory struct{}

func (browserPageFactory) Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (dom.Page, func() error, error) {
	s, err := browser.Launch(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

// newRunCmd creates the `run` command, the full login-to-submission flow.
func newRunCmd(factory pageFactory) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Log in and submit every pending questionnaire",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main.go (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := configFrom(ctx)
			if err != nil {
				return err
			}
			if err := applyRunFlagOverrides(cmd, cfg, logger); err != nil {
				return err
			}

			var prompter survey.Prompter
			if cfg.Login.ManualChallenge {
				prompter = survey.NewConsolePrompter(os.Stdin, cmd.OutOrStdout())
			}
			_, err = runFill(ctx, cfg, factory, prompter, cmd.OutOrStdout(), logger)
			return err
		},
	}

	runCmd.Flags().Bool("headless", false, "Run the browser without a window")
	runCmd.Flags().Float64("speed", 1, "Divide every wait by this factor")
	runCmd.Flags().Int("max-rounds", 0, "Maximum number of passes over the listing")
	runCmd.Flags().Bool("manual-challenge", false, "Pause for the operator to solve the login challenge")
	runCmd.Flags().String("report", "", "Write a run report to this file")
	runCmd.Flags().String("report-format", "", "Run report format (json, yaml or text)")
	runCmd.Flags().Int64("seed", 0, "Seed for answer selection (0 picks one at random)")
	return runCmd
}

// applyRunFlagOverrides copies explicitly set flags over the loaded configuration.
func applyRunFlagOverrides(cmd *cobra.Command, cfg *config.Config, logger *zap.Logger) error {
	flags := cmd.Flags()
	if flags.Changed("headless") {
		cfg.Browser.Headless, _ = flags.GetBool("headless")
	}
	if flags.Changed("speed") {
		speed, _ := flags.GetFloat64("speed")
		if speed > 0 {
			cfg.Timing.Speed = speed
		} else {
			logger.Warn("Invalid --speed value, keeping configured speed", zap.Float64("speed", speed))
		}
	}
	if flags.Changed("max-rounds") {
		cfg.Loop.MaxRounds, _ = flags.GetInt("max-rounds")
	}
	if flags.Changed("manual-challenge") {
		cfg.Login.ManualChallenge, _ = flags.GetBool("manual-challenge")
	}
	if flags.Changed("report") {
		cfg.Report.Path, _ = flags.GetString("report")
	}
	if flags.Changed("report-format") {
		cfg.Report.Format, _ = flags.GetString("report-format")
	}
	if flags.Changed("seed") {
		cfg.Answers.Seed, _ = flags.GetInt64("seed")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

// runFill opens the site, logs in, reaches the listing and runs the loop. The
// page is released on every path, after the teardown countdown.
func runFill(ctx context.Context, cfg *config.Config, factory pageFactory, prompter survey.Prompter, out io.Writer, logger *zap.Logger) (st survey.RunState, err error) {
	logger.Info("Starting questionnaire run",
		zap.String("entry_url", cfg.Site.EntryURL),
		zap.Bool("headless", cfg.Browser.Headless),
		zap.Float64("speed", cfg.Timing.Speed),
		zap.Int("max_rounds", cfg.Loop.MaxRounds),
	)

	page, release, err := factory.Open(ctx, cfg, logger)
	if err != nil {
		return st, fmt.Errorf("failed to open browser: %w", err)
	}
	defer teardown(ctx, cfg.Timing, release, logger)

	comps := survey.NewComponents(cfg, logger)
	if err := survey.NewLogin(cfg, comps, prompter, logger).Run(ctx, page); err != nil {
		return st, fmt.Errorf("login failed: %w", err)
	}
	if err := comps.Navigator.OpenListing(ctx, page); err != nil {
		return st, fmt.Errorf("failed to open the questionnaire listing: %w", err)
	}

	st, err = survey.NewLoop(cfg, comps, logger).Run(ctx, page)
	reporting.RenderSummary(out, &st)
	if werr := writeReport(cfg.Report, &st); werr != nil {
		logger.Error("Failed to write run report", zap.Error(werr))
	}
	return st, err
}

func writeReport(rc config.ReportConfig, st *survey.RunState) error {
	if rc.Path == "" {
		return nil
	}
	r, err := reporting.New(rc.Format, rc.Path)
	if err != nil {
		return err
	}
	if err := r.Write(st); err != nil {
		r.Close()
		return err
	}
	return r.Close()
}

// teardown leaves the browser up for timing.teardown_countdown so the
// operator can see the final page, then releases it. Cancelling ctx skips
// the wait.
func teardown(ctx context.Context, timing config.TimingConfig, release func() error, logger *zap.Logger) {
	if d := timing.Scaled(timing.TeardownCountdown); d > 0 {
		logger.Info("Closing browser", zap.Duration("in", d))
		_ = survey.Sleep(ctx, d)
	}
	if err := release(); err != nil {
		logger.Warn("Failed to close browser cleanly", zap.Error(err))
	}
}
