package survey

import (
	"math/rand/v2"
	"slices"
	"time"

	"github.com/xkilldash9x/ceqfill/internal/browser/dom"
	"github.com/xkilldash9x/ceqfill/internal/config"
)

// AnswerPolicy decides which options to pick and what to type. Likert-style
// questions lean positive; everything else is uniform.
type AnswerPolicy struct {
	cfg config.AnswersConfig
	rng *rand.Rand
}

// NewAnswerPolicy builds a policy from cfg. A zero cfg.Seed seeds from the clock.
func NewAnswerPolicy(cfg config.AnswersConfig) *AnswerPolicy {
	seed := uint64(cfg.Seed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &AnswerPolicy{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// PickSingle returns the index to choose among n options, or -1 when n is 0.
// Groups of at least LikertThreshold options pick from the last BiasWindow.
func (p *AnswerPolicy) PickSingle(n int) int {
	if n <= 0 {
		return -1
	}
	if n >= p.cfg.LikertThreshold {
		w := min(p.cfg.BiasWindow, n)
		return n - w + p.rng.IntN(w)
	}
	return p.rng.IntN(n)
}

// PickMulti returns between 1 and min(MaxMultiChoice, n) distinct indexes in
// ascending order.
func (p *AnswerPolicy) PickMulti(n int) []int {
	if n <= 0 {
		return nil
	}
	k := 1 + p.rng.IntN(min(p.cfg.MaxMultiChoice, n))
	picked := p.rng.Perm(n)[:k]
	slices.Sort(picked)
	return picked
}

// PickOption chooses a drop-down option. The placeholder at index 0 and
// disabled options are never chosen; ok is false when nothing is left.
func (p *AnswerPolicy) PickOption(options []dom.Option) (dom.Option, bool) {
	var real []dom.Option
	for _, o := range options {
		if o.Index == 0 || o.Disabled {
			continue
		}
		real = append(real, o)
	}
	i := p.PickSingle(len(real))
	if i < 0 {
		return dom.Option{}, false
	}
	return real[i], true
}

// PickComment returns one entry of the comment bank.
func (p *AnswerPolicy) PickComment() string {
	if len(p.cfg.Comments) == 0 {
		return p.cfg.FallbackComment
	}
	return p.cfg.Comments[p.rng.IntN(len(p.cfg.Comments))]
}

// IsMultiSelectKey reports whether a checkbox group name carries one of the
// configured multi-select markers.
func (p *AnswerPolicy) IsMultiSelectKey(key string) bool {
	return dom.ContainsAny(key, p.cfg.MultiSelectMarkers...)
}

// NeedsAnswer reports whether text around a field asks for an answer.
func (p *AnswerPolicy) NeedsAnswer(context string) bool {
	return dom.ContainsAny(context, p.cfg.RequiredMarkers...)
}
