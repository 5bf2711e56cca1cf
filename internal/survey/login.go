package survey

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/ceqfill/internal/browser/dom"
	"github.com/xkilldash9x/ceqfill/internal/config"
)

// Prompter hands control to a human, e.g. to solve a CAPTCHA.
type Prompter interface {
	// WaitForOperator shows msg and blocks until the operator confirms.
	WaitForOperator(ctx context.Context, msg string) error
}

// ConsolePrompter asks on out and waits for a line on in. One goroutine
// reads in for the prompter's lifetime, so a prompt that times out leaves
// no reader behind to race the next one. It exits when in reaches EOF or
// fails; after that every prompt returns at once. A line typed while no
// prompt is waiting confirms the next prompt.
type ConsolePrompter struct {
	in  *bufio.Reader
	out io.Writer

	start  sync.Once
	lines  chan struct{}
	closed chan struct{}
	err    error // set before closed is closed
}

func NewConsolePrompter(in io.Reader, out io.Writer) *ConsolePrompter {
	return &ConsolePrompter{
		in:     bufio.NewReader(in),
		out:    out,
		lines:  make(chan struct{}),
		closed: make(chan struct{}),
	}
}

func (p *ConsolePrompter) read() {
	defer close(p.closed)
	for {
		if _, err := p.in.ReadString('\n'); err != nil {
			// EOF counts as confirmation so piped runs do not hang.
			if !errors.Is(err, io.EOF) {
				p.err = err
			}
			return
		}
		p.lines <- struct{}{}
	}
}

func (p *ConsolePrompter) WaitForOperator(ctx context.Context, msg string) error {
	if _, err := fmt.Fprintln(p.out, msg); err != nil {
		return err
	}
	p.start.Do(func() { go p.read() })
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.lines:
		return nil
	case <-p.closed:
		return p.err
	}
}

// Login signs the student in on the entry page.
type Login struct {
	logger   *zap.Logger
	cfg      *config.Config
	resolver *Resolver
	pacer    *Pacer
	prompter Prompter
}

// NewLogin creates a Login. prompter may be nil when login.manual_challenge is off.
func NewLogin(cfg *config.Config, c *Components, prompter Prompter, logger *zap.Logger) *Login {
	return &Login{
		logger:   logger.Named("login"),
		cfg:      cfg,
		resolver: c.Resolver,
		pacer:    c.Pacer,
		prompter: prompter,
	}
}

// Run opens the entry page, fills in the credentials, waits for the operator
// if a challenge is expected and submits the form. Without credentials it
// only opens the page and leaves the sign-in to the operator.
func (l *Login) Run(ctx context.Context, page dom.Page) error {
	l.logger.Info("Executing login sequence...", zap.String("url", l.cfg.Site.EntryURL))
	timing := l.cfg.Timing

	if err := page.Navigate(ctx, l.cfg.Site.EntryURL); err != nil {
		return fmt.Errorf("failed to open entry page: %w", err)
	}
	if err := Sleep(ctx, timing.Scaled(timing.PageLoadWait)); err != nil {
		return err
	}

	creds := l.cfg.Credentials
	if creds.StudentID != "" && creds.Password != "" {
		if err := l.fillCredentials(ctx, page, creds); err != nil {
			return err
		}
	} else {
		l.logger.Warn("No credentials configured, sign in manually in the browser window")
	}

	if l.cfg.Login.ManualChallenge && l.prompter != nil {
		if err := l.waitForOperator(ctx); err != nil {
			return err
		}
	}

	button, err := l.resolver.First(ctx, page, TargetLoginButton)
	if err != nil {
		return err
	}
	if button == nil {
		l.logger.Info("Login button not found, the form may already have been submitted")
	} else {
		if err := l.pacer.Control(ctx); err != nil {
			return err
		}
		if err := button.Click(ctx); err != nil {
			return fmt.Errorf("failed to submit login form: %w", err)
		}
	}

	if err := Sleep(ctx, timing.Scaled(timing.PostLoginWait)); err != nil {
		return err
	}
	still, err := l.resolver.First(ctx, page, TargetPasswordField)
	if err != nil {
		return err
	}
	loc, err := page.Location(ctx)
	if err != nil {
		return err
	}
	l.logger.Info("Login sequence finished",
		zap.Bool("confirmed", still == nil),
		zap.String("url", loc.URL),
		zap.String("title", loc.Title),
	)
	return nil
}

func (l *Login) fillCredentials(ctx context.Context, page dom.Page, creds config.CredentialsConfig) error {
	user, err := l.resolver.First(ctx, page, TargetUsernameField)
	if err != nil {
		return err
	}
	pass, err := l.resolver.First(ctx, page, TargetPasswordField)
	if err != nil {
		return err
	}
	if user == nil || pass == nil {
		return fmt.Errorf("login form: %w", dom.ErrNotFound)
	}

	for _, field := range []struct {
		el    dom.Element
		value string
	}{{user, creds.StudentID}, {pass, creds.Password}} {
		if err := l.pacer.Control(ctx); err != nil {
			return err
		}
		if err := field.el.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear login field: %w", err)
		}
		if err := field.el.Type(ctx, field.value); err != nil {
			return fmt.Errorf("failed to type login field: %w", err)
		}
	}
	l.logger.Debug("Credentials entered", zap.String("student_id", creds.StudentID))
	return nil
}

func (l *Login) waitForOperator(ctx context.Context) error {
	waitCtx := ctx
	if d := l.cfg.Login.ChallengeTimeout; d > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	msg := strings.Join([]string{
		"Complete the verification challenge in the browser window,",
		"then press Enter here to continue.",
	}, " ")
	err := l.prompter.WaitForOperator(waitCtx, msg)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		l.logger.Warn("Timed out waiting for the operator, continuing")
		return nil
	}
	return err
}
