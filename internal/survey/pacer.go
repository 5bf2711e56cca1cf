package survey

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/xkilldash9x/ceqfill/internal/config"
)

// Sleep blocks for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pacer spaces out form interactions so the page's own handlers keep up.
// Checkbox clicks have their own, shorter, interval.
type Pacer struct {
	control  *rate.Limiter
	checkbox *rate.Limiter
}

// NewPacer builds a Pacer from the (speed-scaled) intervals in timing.
func NewPacer(timing config.TimingConfig) *Pacer {
	return &Pacer{
		control:  newLimiter(timing.Scaled(timing.ControlInterval)),
		checkbox: newLimiter(timing.Scaled(timing.CheckboxInterval)),
	}
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

// Control waits for the next general interaction slot.
func (p *Pacer) Control(ctx context.Context) error { return p.control.Wait(ctx) }

// Checkbox waits for the next checkbox click slot.
func (p *Pacer) Checkbox(ctx context.Context) error { return p.checkbox.Wait(ctx) }
