// Package governor enforces per-model rate limits: sliding 60s request and
// token windows, 24h daily hard caps, and backoff penalties set when an
// upstream provider signals throttling. One Governor instance is shared by
// every concurrent run in the process.
package governor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jllopis/aegis/pkg/core"
	"github.com/jllopis/aegis/pkg/errors"
	"github.com/jllopis/aegis/pkg/telemetry"
)

const (
	slidingWindow  = 60 * time.Second
	dailyWindow    = 24 * time.Hour
	defaultRetries = 10
	defaultPenalty = 30 * time.Second
)

type tokenEntry struct {
	at time.Time
	n  int
}

// bucket holds the sliding-window and daily state of one model id.
// Both sliding lists only contain entries younger than 60s at the start of
// any check; daily counters reset once 24h elapsed from lastDayReset.
type bucket struct {
	requests      []time.Time
	tokens        []tokenEntry
	dailyRequests int
	dailyTokens   int
	lastDayReset  time.Time
}

// ModelStats is a read-only view of one model's throttle state.
type ModelStats struct {
	LastWait         time.Duration `json:"last_wait"`
	PenaltyRemaining time.Duration `json:"penalty_remaining,omitempty"`
}

// Governor is the per-model rate limiter. Safe for concurrent use.
type Governor struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	penalties map[string]time.Time
	lastWait  map[string]time.Duration

	maxRetries int
	penalty    time.Duration

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// Option configures a Governor.
type Option func(*Governor)

// WithMaxRetries bounds the throttle retry loop.
func WithMaxRetries(n int) Option {
	return func(g *Governor) {
		if n > 0 {
			g.maxRetries = n
		}
	}
}

// WithDefaultPenalty sets the cooldown applied by RecordBackoff when the
// provider did not supply a retry-after hint.
func WithDefaultPenalty(d time.Duration) Option {
	return func(g *Governor) {
		if d > 0 {
			g.penalty = d
		}
	}
}

// WithClock substitutes the wall clock. Test hook.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// WithSleeper substitutes the suspension primitive. Test hook.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(g *Governor) { g.sleep = sleep }
}

// New creates a Governor with lazily created model buckets.
func New(opts ...Option) *Governor {
	g := &Governor{
		buckets:    make(map[string]*bucket),
		penalties:  make(map[string]time.Time),
		lastWait:   make(map[string]time.Duration),
		maxRetries: defaultRetries,
		penalty:    defaultPenalty,
		now:        time.Now,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Throttle blocks until the model may issue one more request, then commits
// that request against the sliding window and daily counter. It returns the
// total time spent waiting. It fails without waiting when a daily hard cap
// is already reached, and fails after the bounded retry loop is exhausted.
func (g *Governor) Throttle(ctx context.Context, cfg core.ModelConfig) (time.Duration, error) {
	model := cfg.Model
	var waited time.Duration

	// Penalty cooldown first, outside the retry loop.
	if wait := g.penaltyWait(model); wait > 0 {
		slog.InfoContext(ctx, "governor.throttle.penalty",
			slog.String("model", model),
			slog.Duration("wait", wait))
		if err := g.sleep(ctx, wait); err != nil {
			return waited, errors.New(errors.CodeAborted, "throttle interrupted", err)
		}
		waited += wait
	}

	for attempt := 0; attempt < g.maxRetries; attempt++ {
		wait, err := g.tryAcquire(model, cfg, waited)
		if err != nil {
			return waited, err
		}
		if wait == 0 {
			if m, merr := telemetry.Metrics(); merr == nil {
				m.RecordThrottleWait(ctx, model, waited.Seconds())
			}
			return waited, nil
		}
		slog.DebugContext(ctx, "governor.throttle.wait",
			slog.String("model", model),
			slog.Duration("wait", wait),
			slog.Int("attempt", attempt+1))
		if err := g.sleep(ctx, wait); err != nil {
			return waited, errors.New(errors.CodeAborted, "throttle interrupted", err)
		}
		waited += wait
	}

	return waited, errors.New(errors.CodeRateLimit, "throttle retries exhausted", nil).
		WithContext("model", model)
}

// penaltyWait returns the remaining cooldown for a model, zero if none.
func (g *Governor) penaltyWait(model string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.penalties[model]
	if !ok {
		return 0
	}
	now := g.now()
	if !until.After(now) {
		delete(g.penalties, model)
		return 0
	}
	return until.Sub(now)
}

// tryAcquire inspects the model's bucket and returns either the wait needed
// before the next attempt, zero when the request was admitted, or a hard
// error when a daily cap is breached. The passing check and the commit
// share one critical section, so concurrent callers cannot both take the
// last free slot.
func (g *Governor) tryAcquire(model string, cfg core.ModelConfig, waited time.Duration) (time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	b := g.bucketLocked(model, now)

	if now.Sub(b.lastDayReset) >= dailyWindow {
		b.dailyRequests = 0
		b.dailyTokens = 0
		b.lastDayReset = now
	}

	cutoff := now.Add(-slidingWindow)
	b.requests = pruneTimes(b.requests, cutoff)
	b.tokens = pruneTokens(b.tokens, cutoff)

	if cfg.RPM > 0 && len(b.requests) >= cfg.RPM {
		return b.requests[0].Add(slidingWindow).Sub(now), nil
	}
	if cfg.TPM > 0 && sumTokens(b.tokens) >= cfg.TPM {
		return b.tokens[0].at.Add(slidingWindow).Sub(now), nil
	}

	// Daily caps fail hard; waiting a minute would not help.
	if cfg.RPD > 0 && b.dailyRequests >= cfg.RPD {
		return 0, errors.New(errors.CodeRateLimit, "daily request cap reached", nil).
			WithContext("model", model).
			WithContext("rpd", cfg.RPD)
	}
	if cfg.TPD > 0 && b.dailyTokens >= cfg.TPD {
		return 0, errors.New(errors.CodeRateLimit, "daily token cap reached", nil).
			WithContext("model", model).
			WithContext("tpd", cfg.TPD)
	}

	b.requests = append(b.requests, now)
	b.dailyRequests++
	g.lastWait[model] = waited
	return 0, nil
}

// RecordUsage pushes observed token consumption into the model's sliding
// token window and daily counter. Call after each successful generation.
func (g *Governor) RecordUsage(model string, tokens int) {
	if tokens <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	b := g.bucketLocked(model, now)
	b.tokens = append(b.tokens, tokenEntry{at: now, n: tokens})
	b.dailyTokens += tokens
}

// RecordBackoff puts the model in a cooldown ending retryAfter from now.
// Zero retryAfter applies the configured default penalty.
func (g *Governor) RecordBackoff(ctx context.Context, model string, retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = g.penalty
	}
	g.mu.Lock()
	g.penalties[model] = g.now().Add(retryAfter)
	g.mu.Unlock()

	slog.WarnContext(ctx, "governor.backoff",
		slog.String("model", model),
		slog.Duration("penalty", retryAfter))
	if m, err := telemetry.Metrics(); err == nil {
		m.RecordPenalty(ctx, model)
	}
}

// Stats returns per-model throttle state: last observed wait and, for
// models under penalty, the remaining cooldown.
func (g *Governor) Stats() map[string]ModelStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	out := make(map[string]ModelStats, len(g.lastWait))
	for model, wait := range g.lastWait {
		out[model] = ModelStats{LastWait: wait}
	}
	for model, until := range g.penalties {
		if !until.After(now) {
			continue
		}
		s := out[model]
		s.PenaltyRemaining = until.Sub(now)
		out[model] = s
	}
	return out
}

func (g *Governor) bucketLocked(model string, now time.Time) *bucket {
	b, ok := g.buckets[model]
	if !ok {
		b = &bucket{lastDayReset: now}
		g.buckets[model] = b
	}
	return b
}

func pruneTimes(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	return ts[i:]
}

func pruneTokens(ts []tokenEntry, cutoff time.Time) []tokenEntry {
	i := 0
	for i < len(ts) && !ts[i].at.After(cutoff) {
		i++
	}
	return ts[i:]
}

func sumTokens(ts []tokenEntry) int {
	total := 0
	for _, t := range ts {
		total += t.n
	}
	return total
}
