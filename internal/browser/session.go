// internal/browser/session.go
package browser

import (
	"context"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/inspector"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/ceqfill/internal/browser/dom"
	"github.com/xkilldash9x/ceqfill/internal/browser/stealth"
	"github.com/xkilldash9x/ceqfill/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Session is a single Chromium tab driven over CDP. It implements dom.Page.
type Session struct {
	id     string
	cfg    config.BrowserConfig
	logger *zap.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	lost      atomic.Bool
	closeOnce sync.Once
}

var _ dom.Page = (*Session)(nil)

// allocatorFlags lists the command line switches Chromium is started with.
func allocatorFlags(cfg config.BrowserConfig) map[string]any {
	flags := map[string]any{
		"headless":                      cfg.Headless,
		"hide-scrollbars":               cfg.Headless,
		"mute-audio":                    cfg.Headless,
		"disable-blink-features":        "AutomationControlled",
		"enable-automation":             false,
		"disable-infobars":              true,
		"disable-dev-shm-usage":         true,
		"no-first-run":                  true,
		"no-default-browser-check":      true,
		"disable-popup-blocking":        true,
		"disable-background-networking": true,
	}
	for _, arg := range cfg.Args {
		name, value := splitArg(arg)
		flags[name] = value
	}
	return flags
}

// splitArg turns "--name=value" into (name, value) and "--name" into (name, true).
func splitArg(arg string) (string, any) {
	for len(arg) > 0 && arg[0] == '-' {
		arg = arg[1:]
	}
	for i := 0; i < len(arg); i++ {
		if arg[i] == '=' {
			return arg[:i], arg[i+1:]
		}
	}
	return arg, true
}

// AllocatorOptions builds the exec allocator options for cfg.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := make([]chromedp.ExecAllocatorOption, 0, 16)
	// Start from chromedp's defaults; our flags override them.
	opts = append(opts, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	return opts
}

// Launch starts Chromium and opens one tab. The browser outlives ctx's
// cancellation; call Close to shut it down.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	s := &Session{
		id:     uuid.NewString(),
		cfg:    cfg,
		logger: logger.Named("browser"),
	}
	s.logger = s.logger.With(zap.String("session_id", s.id))

	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), AllocatorOptions(cfg)...)

	sugar := s.logger.Sugar()
	ctxOpts := []chromedp.ContextOption{chromedp.WithErrorf(sugar.Debugf)}
	if cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithLogf(sugar.Debugf))
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, ctxOpts...)
	s.ctx, s.cancel, s.allocCancel = tabCtx, tabCancel, allocCancel

	chromedp.ListenTarget(tabCtx, func(ev any) {
		switch e := ev.(type) {
		case *inspector.EventDetached:
			s.logger.Warn("Browser target detached.", zap.String("reason", e.Reason.String()))
			s.lost.Store(true)
		case *inspector.EventTargetCrashed:
			s.logger.Error("Browser target crashed.")
			s.lost.Store(true)
		case *page.EventJavascriptDialogOpening:
			// Submission confirms and alerts would otherwise block every CDP call.
			s.logger.Info("Accepting page dialog.", zap.String("type", e.Type.String()), zap.String("message", e.Message))
			go func() {
				if err := chromedp.Run(tabCtx, page.HandleJavaScriptDialog(true)); err != nil {
					s.logger.Debug("Failed to accept dialog.", zap.Error(err))
				}
			}()
		}
	})

	// The first Run starts the browser process.
	startCtx, cancelStart := CombineContext(tabCtx, ctx)
	defer cancelStart()
	if err := chromedp.Run(startCtx); err != nil {
		s.shutdown()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	if cfg.Stealth {
		persona := stealth.DefaultPersona
		if cfg.UserAgent != "" {
			persona.UserAgent = cfg.UserAgent
		}
		if err := chromedp.Run(startCtx, stealth.Apply(persona, s.logger)); err != nil {
			s.shutdown()
			return nil, fmt.Errorf("failed to apply stealth persona: %w", err)
		}
	}

	s.logger.Info("Browser session started.", zap.Bool("headless", cfg.Headless))
	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Close shuts the tab and the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		// chromedp.Cancel closes the browser gracefully; it needs a live context.
		if cerr := chromedp.Cancel(s.ctx); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = fmt.Errorf("failed to close browser: %w", cerr)
		}
		s.shutdown()
		s.logger.Info("Browser session closed.")
	})
	return err
}

func (s *Session) shutdown() {
	s.cancel()
	s.allocCancel()
}

// run executes actions on the tab bounded by ctx and timeout.
func (s *Session) run(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	if s.lost.Load() {
		return fmt.Errorf("%s: %w", op, dom.ErrSessionLost)
	}
	opCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	if timeout > 0 {
		var cancelTimeout context.CancelFunc
		opCtx, cancelTimeout = context.WithTimeout(opCtx, timeout)
		defer cancelTimeout()
	}
	err := chromedp.Run(opCtx, actions...)
	return classify(op, err, ctx, s.ctx, s.lost.Load())
}

// eval evaluates a script that answers with {stale, value, refs}.
func (s *Session) eval(ctx context.Context, op, script string) (scriptResult, error) {
	var res scriptResult
	if err := s.run(ctx, op, s.cfg.ScriptTimeout, chromedp.Evaluate(script, &res)); err != nil {
		return scriptResult{}, err
	}
	if res.Stale {
		return scriptResult{}, fmt.Errorf("%s: %w", op, dom.ErrStaleElement)
	}
	return res, nil
}

// scriptResult is decoded by chromedp with encoding/json, so Value must be
// the standard library's RawMessage.
type scriptResult struct {
	Stale bool               `json:"stale"`
	Value stdjson.RawMessage `json:"value"`
	Refs  []string           `json:"refs"`
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	return s.run(ctx, "navigate", s.cfg.NavigationTimeout, chromedp.Navigate(url))
}

func (s *Session) Back(ctx context.Context) error {
	return s.run(ctx, "navigate back", s.cfg.NavigationTimeout, chromedp.NavigateBack())
}

func (s *Session) Location(ctx context.Context) (dom.Location, error) {
	var loc dom.Location
	err := s.run(ctx, "location", s.cfg.ScriptTimeout,
		chromedp.Location(&loc.URL),
		chromedp.Title(&loc.Title),
	)
	return loc, err
}

func (s *Session) Find(ctx context.Context, q dom.Query) ([]dom.Element, error) {
	return s.find(ctx, "", q)
}

func (s *Session) find(ctx context.Context, root string, q dom.Query) ([]dom.Element, error) {
	args, err := json.Marshal(map[string]string{"root": root, "kind": q.Kind.String(), "expr": q.Expr})
	if err != nil {
		return nil, err
	}
	res, err := s.eval(ctx, "find "+q.String(), buildFindScript(args))
	if err != nil {
		return nil, err
	}
	out := make([]dom.Element, 0, len(res.Refs))
	for _, ref := range res.Refs {
		out = append(out, &element{s: s, ref: ref})
	}
	return out, nil
}

// RunScript evaluates body as a function. Element arguments are replaced by
// their DOM nodes and read as arguments[i].
func (s *Session) RunScript(ctx context.Context, body string, res any, args ...any) error {
	refs := make([]string, len(args))
	raw := make([]any, len(args))
	for i, a := range args {
		if el, ok := a.(dom.Element); ok {
			refs[i] = el.Ref()
			continue
		}
		raw[i] = a
	}
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return err
	}
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to encode script arguments: %w", err)
	}
	out, err := s.eval(ctx, "run script", buildUserScript(refsJSON, rawJSON, body))
	if err != nil {
		return err
	}
	if res == nil {
		return nil
	}
	if err := json.Unmarshal(out.Value, res); err != nil {
		return fmt.Errorf("failed to decode script result: %w", err)
	}
	return nil
}

// classify maps a chromedp failure to the dom error vocabulary. The caller's
// own cancellation wins; a dead tab or browser means the session is lost.
func classify(op string, err error, callerCtx, sessionCtx context.Context, lost bool) error {
	if err == nil {
		return nil
	}
	if cerr := callerCtx.Err(); cerr != nil {
		return fmt.Errorf("%s: %w", op, cerr)
	}
	if lost || sessionCtx.Err() != nil ||
		errors.Is(err, chromedp.ErrInvalidContext) ||
		errors.Is(err, chromedp.ErrChannelClosed) ||
		dom.IsSessionLost(err) {
		return fmt.Errorf("%s: %w: %v", op, dom.ErrSessionLost, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
