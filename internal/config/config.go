// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration. It is built once at
// startup and passed around by pointer; nothing mutates it afterwards.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Site        SiteConfig        `mapstructure:"site" yaml:"site"`
	Login       LoginConfig       `mapstructure:"login" yaml:"login"`
	Timing      TimingConfig      `mapstructure:"timing" yaml:"timing"`
	Answers     AnswersConfig     `mapstructure:"answers" yaml:"answers"`
	Loop        LoopConfig        `mapstructure:"loop" yaml:"loop"`
	Report      ReportConfig      `mapstructure:"report" yaml:"report"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color settings for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls how Chromium is launched.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath          string        `mapstructure:"exec_path" yaml:"exec_path"`
	UserDataDir       string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	WindowWidth       int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight      int           `mapstructure:"window_height" yaml:"window_height"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	ScriptTimeout     time.Duration `mapstructure:"script_timeout" yaml:"script_timeout"`
	Stealth           bool          `mapstructure:"stealth" yaml:"stealth"`
	Debug             bool          `mapstructure:"debug" yaml:"debug"`
}

// CredentialsConfig is the student account used to log in.
type CredentialsConfig struct {
	StudentID string `mapstructure:"student_id" yaml:"student_id"`
	Password  string `mapstructure:"password" yaml:"password"`
}

// SiteConfig locates the questionnaire system.
type SiteConfig struct {
	EntryURL     string `mapstructure:"entry_url" yaml:"entry_url"`
	ListingURL   string `mapstructure:"listing_url" yaml:"listing_url"`
	ListingRoute string `mapstructure:"listing_route" yaml:"listing_route"`
}

// LoginConfig controls the pause for a human verification challenge.
type LoginConfig struct {
	ManualChallenge bool `mapstructure:"manual_challenge" yaml:"manual_challenge"`
	// ChallengeTimeout bounds the wait for the operator. Zero waits forever.
	ChallengeTimeout time.Duration `mapstructure:"challenge_timeout" yaml:"challenge_timeout"`
}

// TimingConfig holds the fixed waits between page operations.
type TimingConfig struct {
	// Speed divides every wait; 2 halves them, 0.5 doubles them.
	Speed             float64       `mapstructure:"speed" yaml:"speed"`
	PageLoadWait      time.Duration `mapstructure:"page_load_wait" yaml:"page_load_wait"`
	PostLoginWait     time.Duration `mapstructure:"post_login_wait" yaml:"post_login_wait"`
	ViewSettle        time.Duration `mapstructure:"view_settle" yaml:"view_settle"`
	// ListingWait runs before every read of the survey listing.
	ListingWait       time.Duration `mapstructure:"listing_wait" yaml:"listing_wait"`
	ScrollSettle      time.Duration `mapstructure:"scroll_settle" yaml:"scroll_settle"`
	FillStartWait     time.Duration `mapstructure:"fill_start_wait" yaml:"fill_start_wait"`
	ControlInterval   time.Duration `mapstructure:"control_interval" yaml:"control_interval"`
	CheckboxInterval  time.Duration `mapstructure:"checkbox_interval" yaml:"checkbox_interval"`
	OpenSurveyWait    time.Duration `mapstructure:"open_survey_wait" yaml:"open_survey_wait"`
	SubmitSettle      time.Duration `mapstructure:"submit_settle" yaml:"submit_settle"`
	RecoveryWait      time.Duration `mapstructure:"recovery_wait" yaml:"recovery_wait"`
	RoundRetryWait    time.Duration `mapstructure:"round_retry_wait" yaml:"round_retry_wait"`
	TeardownCountdown time.Duration `mapstructure:"teardown_countdown" yaml:"teardown_countdown"`
}

// Scaled applies the speed factor to d.
func (t TimingConfig) Scaled(d time.Duration) time.Duration {
	if t.Speed <= 0 || t.Speed == 1 {
		return d
	}
	return time.Duration(float64(d) / t.Speed)
}

// AnswersConfig parameterises how questions are answered.
type AnswersConfig struct {
	Comments        []string `mapstructure:"comments" yaml:"comments"`
	FallbackComment string   `mapstructure:"fallback_comment" yaml:"fallback_comment"`
	DefaultComment  string   `mapstructure:"default_comment" yaml:"default_comment"`
	// BiasWindow is how many trailing options are eligible on long scales.
	BiasWindow int `mapstructure:"bias_window" yaml:"bias_window"`
	// LikertThreshold is the option count from which the bias applies.
	LikertThreshold    int      `mapstructure:"likert_threshold" yaml:"likert_threshold"`
	MaxMultiChoice     int      `mapstructure:"max_multi_choice" yaml:"max_multi_choice"`
	MultiSelectMarkers []string `mapstructure:"multi_select_markers" yaml:"multi_select_markers"`
	RequiredMarkers    []string `mapstructure:"required_markers" yaml:"required_markers"`
	SuccessKeywords    []string `mapstructure:"success_keywords" yaml:"success_keywords"`
	Seed               int64    `mapstructure:"seed" yaml:"seed"`
}

// LoopConfig bounds the outer retry loop.
type LoopConfig struct {
	MaxRounds int `mapstructure:"max_rounds" yaml:"max_rounds"`
}

// ReportConfig controls the optional run report file.
type ReportConfig struct {
	Path   string `mapstructure:"path" yaml:"path"`
	Format string `mapstructure:"format" yaml:"format"`
}

// NewDefaultConfig returns a configuration populated with defaults only.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "ceqfill")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.window_width", 1366)
	v.SetDefault("browser.window_height", 900)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.script_timeout", "15s")
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.debug", false)

	// -- Site --
	v.SetDefault("site.entry_url", "https://ceq.nkust.edu.tw/Home")
	v.SetDefault("site.listing_url", "https://ceq.nkust.edu.tw/StuFillIn")
	v.SetDefault("site.listing_route", "StuFillIn")

	// -- Login --
	v.SetDefault("login.manual_challenge", true)
	v.SetDefault("login.challenge_timeout", "0s")

	// -- Timing --
	v.SetDefault("timing.speed", 1.0)
	v.SetDefault("timing.page_load_wait", "3s")
	v.SetDefault("timing.post_login_wait", "5s")
	v.SetDefault("timing.view_settle", "1s")
	v.SetDefault("timing.listing_wait", "3s")
	v.SetDefault("timing.scroll_settle", "2s")
	v.SetDefault("timing.fill_start_wait", "2s")
	v.SetDefault("timing.control_interval", "300ms")
	v.SetDefault("timing.checkbox_interval", "200ms")
	v.SetDefault("timing.open_survey_wait", "4s")
	v.SetDefault("timing.submit_settle", "3s")
	v.SetDefault("timing.recovery_wait", "2s")
	v.SetDefault("timing.round_retry_wait", "5s")
	v.SetDefault("timing.teardown_countdown", "5s")

	// -- Answers --
	v.SetDefault("answers.comments", []string{
		"課程內容豐富，受益良多。",
		"老師教學認真，講解清楚。",
		"課程安排適當，學習效果良好。",
		"教學方式生動有趣。",
		"課程對學習很有幫助。",
		"整體而言是很好的課程。",
	})
	v.SetDefault("answers.fallback_comment", "課程很好，老師教學認真。")
	v.SetDefault("answers.default_comment", "課程內容充實，教學品質良好。")
	v.SetDefault("answers.bias_window", 3)
	v.SetDefault("answers.likert_threshold", 4)
	v.SetDefault("answers.max_multi_choice", 3)
	v.SetDefault("answers.multi_select_markers", []string{"8-1", "8_1"})
	v.SetDefault("answers.required_markers", []string{"請填寫", "原因", "理由", "說明", "required"})
	v.SetDefault("answers.success_keywords", []string{"成功", "完成", "謝謝", "感謝"})
	v.SetDefault("answers.seed", 0)

	// -- Loop --
	v.SetDefault("loop.max_rounds", 3)

	// -- Report --
	v.SetDefault("report.path", "")
	v.SetDefault("report.format", "json")
}

// NewConfigFromViper unmarshals, expands and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("credentials.student_id", "CEQFILL_CREDENTIALS_STUDENT_ID")
	_ = v.BindEnv("credentials.password", "CEQFILL_CREDENTIALS_PASSWORD")
	// HEADLESS_MODE is honoured for compatibility with older launch scripts.
	_ = v.BindEnv("browser.headless", "CEQFILL_BROWSER_HEADLESS", "HEADLESS_MODE")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the password if Unmarshal didn't pick it up
	if cfg.Credentials.Password == "" {
		cfg.Credentials.Password = os.Getenv("CEQFILL_CREDENTIALS_PASSWORD")
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Logger.LogFile, &c.Browser.UserDataDir, &c.Browser.ExecPath, &c.Report.Path} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Site.EntryURL == "" {
		return fmt.Errorf("site.entry_url is a required configuration field")
	}
	if c.Site.ListingURL == "" {
		return fmt.Errorf("site.listing_url is a required configuration field")
	}
	if c.Loop.MaxRounds <= 0 {
		return fmt.Errorf("loop.max_rounds must be a positive integer")
	}
	if err := c.Answers.Validate(); err != nil {
		return fmt.Errorf("answers configuration invalid: %w", err)
	}
	if err := c.Timing.Validate(); err != nil {
		return fmt.Errorf("timing configuration invalid: %w", err)
	}
	switch c.Report.Format {
	case "", "json", "yaml", "text":
	default:
		return fmt.Errorf("report.format must be json, yaml or text, got %q", c.Report.Format)
	}
	return nil
}

// Validate checks the answer policy parameters.
func (a *AnswersConfig) Validate() error {
	if len(a.Comments) == 0 {
		return fmt.Errorf("comments must not be empty")
	}
	for i, c := range a.Comments {
		if c == "" {
			return fmt.Errorf("comments[%d] is empty", i)
		}
	}
	if a.BiasWindow <= 0 {
		return fmt.Errorf("bias_window must be a positive integer")
	}
	if a.LikertThreshold <= 0 {
		return fmt.Errorf("likert_threshold must be a positive integer")
	}
	if a.MaxMultiChoice <= 0 {
		return fmt.Errorf("max_multi_choice must be a positive integer")
	}
	return nil
}

// Validate checks the speed factor and that no wait is negative.
func (t *TimingConfig) Validate() error {
	if t.Speed <= 0 {
		return fmt.Errorf("speed must be greater than zero")
	}
	waits := map[string]time.Duration{
		"page_load_wait":     t.PageLoadWait,
		"post_login_wait":    t.PostLoginWait,
		"view_settle":        t.ViewSettle,
		"listing_wait":       t.ListingWait,
		"scroll_settle":      t.ScrollSettle,
		"fill_start_wait":    t.FillStartWait,
		"control_interval":   t.ControlInterval,
		"checkbox_interval":  t.CheckboxInterval,
		"open_survey_wait":   t.OpenSurveyWait,
		"submit_settle":      t.SubmitSettle,
		"recovery_wait":      t.RecoveryWait,
		"round_retry_wait":   t.RoundRetryWait,
		"teardown_countdown": t.TeardownCountdown,
	}
	for name, d := range waits {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.Credentials.Password != "" {
		c.Credentials.Password = "********"
	}
	c.Answers.Comments = append([]string(nil), c.Answers.Comments...)
	return c
}
