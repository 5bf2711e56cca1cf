// File: cmd/run_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/ceqfill/internal/browser/dom"
	"github.com/xkilldash9x/ceqfill/internal/config"
	"github.com/xkilldash9x/ceqfill/internal/survey"
)

func TestApplyRunFlagOverrides(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		check   func(t *testing.T, cfgHeadless bool, speed float64, rounds int, report, format string, seed int64)
		warning bool
		wantErr string
	}{
		{
			name: "no flags keeps the configuration",
			args: []string{},
			check: func(t *testing.T, headless bool, speed float64, rounds int, report, format string, seed int64) {
				assert.False(t, headless)
				assert.Equal(t, 1.0, speed)
				assert.Equal(t, 3, rounds)
				assert.Empty(t, report)
			},
		},
		{
			name: "flags override",
			args: []string{"--headless", "--speed", "2.5", "--max-rounds", "5", "--report", "out.yaml", "--report-format", "yaml", "--seed", "9"},
			check: func(t *testing.T, headless bool, speed float64, rounds int, report, format string, seed int64) {
				assert.True(t, headless)
				assert.Equal(t, 2.5, speed)
				assert.Equal(t, 5, rounds)
				assert.Equal(t, "out.yaml", report)
				assert.Equal(t, "yaml", format)
				assert.Equal(t, int64(9), seed)
			},
		},
		{
			name:    "non-positive speed is ignored with a warning",
			args:    []string{"--speed", "0"},
			warning: true,
			check: func(t *testing.T, headless bool, speed float64, rounds int, report, format string, seed int64) {
				assert.Equal(t, 1.0, speed)
			},
		},
		{
			name:    "invalid values fail validation",
			args:    []string{"--max-rounds", "0"},
			wantErr: "max_rounds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig(t)
			core, logs := observer.New(zap.DebugLevel)

			runCmd := newRunCmd(nil)
			require.NoError(t, runCmd.ParseFlags(tt.args))

			err := applyRunFlagOverrides(runCmd, cfg, zap.New(core))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg.Browser.Headless, cfg.Timing.Speed, cfg.Loop.MaxRounds, cfg.Report.Path, cfg.Report.Format, cfg.Answers.Seed)
			assert.Equal(t, tt.warning, logs.FilterMessage("Invalid --speed value, keeping configured speed").Len() == 1)
		})
	}
}

func TestRunFill(t *testing.T) {
	ctx := context.Background()

	t.Run("submits every pending survey and writes the report", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.Report.Path = filepath.Join(t.TempDir(), "run.json")
		site := &fakeSite{pending: []string{"A", "B"}}
		p := site.newPage(t)

		released := 0
		factory := new(mockPageFactory)
		factory.On("Open", mock.Anything, cfg, mock.AnythingOfType("*zap.Logger")).
			Return(p, func() error { released++; return nil }, nil)

		var out bytes.Buffer
		st, err := runFill(ctx, cfg, factory, nil, &out, zaptest.NewLogger(t))
		require.NoError(t, err)
		factory.AssertExpectations(t)

		assert.Equal(t, survey.Done, st.Final)
		assert.Equal(t, 2, st.Completed)
		assert.ElementsMatch(t, []string{"A", "B"}, site.submitted)
		assert.Equal(t, 1, released)
		assert.Contains(t, out.String(), "Completed")

		data, err := os.ReadFile(cfg.Report.Path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"final": "done"`)
	})

	t.Run("session loss aborts and still releases the browser", func(t *testing.T) {
		cfg := newTestConfig(t)
		site := &fakeSite{pending: []string{"A", "B", "C"}, dropOn: "B"}
		p := site.newPage(t)

		released := 0
		factory := new(mockPageFactory)
		factory.On("Open", mock.Anything, cfg, mock.Anything).
			Return(p, func() error { released++; return errors.New("already gone") }, nil)

		var out bytes.Buffer
		st, err := runFill(ctx, cfg, factory, nil, &out, zaptest.NewLogger(t))
		require.Error(t, err)
		assert.ErrorIs(t, err, dom.ErrSessionLost)
		assert.Equal(t, survey.Aborted, st.Final)
		// The listing shrinks as surveys are submitted, so round one reaches
		// A and C and the drop happens when round two opens B.
		assert.Equal(t, 2, st.Completed)
		assert.Equal(t, []string{"A", "C"}, site.submitted)
		assert.Equal(t, 2, st.Rounds)
		assert.Equal(t, 1, released)
		assert.Contains(t, out.String(), "aborted")
	})

	t.Run("browser launch failure", func(t *testing.T) {
		cfg := newTestConfig(t)
		factory := new(mockPageFactory)
		factory.On("Open", mock.Anything, cfg, mock.Anything).Return(nil, nil, errors.New("chrome not found"))

		_, err := runFill(ctx, cfg, factory, nil, &bytes.Buffer{}, zaptest.NewLogger(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to open browser: chrome not found")
	})

	t.Run("login form missing", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.Site.EntryURL = "https://ceq.test/Maintenance"
		site := &fakeSite{}
		p := site.newPage(t)

		factory := new(mockPageFactory)
		factory.On("Open", mock.Anything, cfg, mock.Anything).Return(p, func() error { return nil }, nil)

		_, err := runFill(ctx, cfg, factory, nil, &bytes.Buffer{}, zaptest.NewLogger(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "login failed")
	})
}

func TestWriteReport(t *testing.T) {
	st := &survey.RunState{RunID: "r1", Final: survey.Done, Rounds: 1, Completed: 2}

	t.Run("no path writes nothing", func(t *testing.T) {
		assert.NoError(t, writeReport(config.ReportConfig{}, st))
	})

	t.Run("yaml file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "run.yaml")
		require.NoError(t, writeReport(config.ReportConfig{Path: path, Format: "yaml"}, st))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "run_id: r1")
		assert.Contains(t, string(data), "final: done")
	})

	t.Run("unwritable path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", "run.json")
		assert.Error(t, writeReport(config.ReportConfig{Path: path, Format: "json"}, st))
	})
}

func TestTeardown(t *testing.T) {
	t.Run("releases after the countdown", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		called := false
		timing := config.TimingConfig{Speed: 1000, TeardownCountdown: time.Second}
		teardown(context.Background(), timing, func() error { called = true; return nil }, zap.New(core))
		assert.True(t, called)
		assert.Equal(t, 1, logs.FilterMessage("Closing browser").Len())
	})

	t.Run("cancelled context skips the wait", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		core, logs := observer.New(zap.WarnLevel)
		start := time.Now()
		teardown(ctx, config.TimingConfig{Speed: 1, TeardownCountdown: time.Hour}, func() error { return errors.New("boom") }, zap.New(core))
		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, 1, logs.FilterMessage("Failed to close browser cleanly").Len())
	})
}
