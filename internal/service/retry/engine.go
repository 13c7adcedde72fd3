package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/modfetch/internal/domain"
)

// ErrAttemptStalled is the cause of an attempt aborted for lack of progress
var ErrAttemptStalled = errors.New("attempt stalled")

// State is a step of the per-request retry state machine
type State string

const (
	StateIdle       State = "idle"
	StateAttempting State = "attempting"
	StateRetryWait  State = "retry_wait"
	StateCompleted  State = "completed"
	StateExhausted  State = "exhausted"
)

// Policy bounds retries and shapes the backoff curve
type Policy struct {
	MaxRetries  int
	BaseBackoff time.Duration
	Multiplier  float64
	MaxBackoff  time.Duration

	// Jitter adds up to this fraction of the computed wait
	Jitter float64

	// Timeout aborts an attempt that reports no progress for this long.
	// Zero disables it.
	Timeout time.Duration
}

// PolicyFromConfig extracts the retry policy from download tunables
func PolicyFromConfig(cfg domain.DownloadConfig) Policy {
	return Policy{
		MaxRetries:  cfg.MaxRetries,
		BaseBackoff: cfg.BaseBackoff,
		Multiplier:  cfg.BackoffMultiplier,
		MaxBackoff:  cfg.MaxBackoff,
		Jitter:      cfg.Jitter,
		Timeout:     cfg.Timeout,
	}
}

// Gate is the admission slot a request holds while attempting. The engine
// gives it back for the length of every retry wait.
type Gate interface {
	Release()
	Acquire(ctx context.Context) error
}

// Attempt describes one try. Touch marks progress and pushes the stall
// deadline forward.
type Attempt struct {
	Number int

	mu    sync.Mutex
	timer *time.Timer
	idle  time.Duration
}

// Touch records progress for the current attempt
func (a *Attempt) Touch() {
	if a == nil {
		return
	}
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Reset(a.idle)
	}
	a.mu.Unlock()
}

func (a *Attempt) stop() {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.mu.Unlock()
}

// AttemptFunc performs one try of a request
type AttemptFunc func(ctx context.Context, attempt *Attempt) error

// Outcome is the final state of a retried operation
type Outcome struct {
	State    State
	Attempts int
	Retries  int
	Waits    []time.Duration
	Err      error
}

// Notice describes a scheduled retry
type Notice struct {
	Attempt    int // attempt that failed
	Retry      int // 1-based number of the retry about to happen
	MaxRetries int
	Wait       time.Duration
	Err        error
}

// RunOption configures a single Run
type RunOption func(*runHooks)

type runHooks struct {
	onRetry func(Notice)
}

// OnRetry calls f before each retry wait
func OnRetry(f func(Notice)) RunOption {
	return func(h *runHooks) { h.onRetry = f }
}

// Option configures an Engine
type Option func(*Engine)

// WithSleep replaces the wait primitive
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// WithRand replaces the jitter source; it must return values in [0,1)
func WithRand(r func() float64) Option {
	return func(e *Engine) { e.rand = r }
}

// WithClassifier replaces the recoverable-error test
func WithClassifier(recoverable func(error) bool) Option {
	return func(e *Engine) { e.recoverable = recoverable }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// Engine runs an operation under a bounded, classified retry policy
type Engine struct {
	policy      Policy
	logger      *zap.Logger
	sleep       func(ctx context.Context, d time.Duration) error
	rand        func() float64
	recoverable func(error) bool
}

// New creates an Engine
func New(policy Policy, opts ...Option) *Engine {
	if policy.Multiplier < 1 {
		policy.Multiplier = 1
	}
	if policy.MaxBackoff < policy.BaseBackoff {
		policy.MaxBackoff = policy.BaseBackoff
	}

	e := &Engine{
		policy:      policy,
		logger:      zap.NewNop(),
		sleep:       sleepContext,
		rand:        rand.Float64,
		recoverable: domain.IsRetryable,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the engine's policy
func (e *Engine) Policy() Policy {
	return e.policy
}

// Backoff returns the wait before retry number n (1-based), without jitter:
// min(base * multiplier^(n-1), max)
func (e *Engine) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := float64(e.policy.BaseBackoff) * math.Pow(e.policy.Multiplier, float64(n-1))
	if d > float64(e.policy.MaxBackoff) || math.IsInf(d, 0) {
		return e.policy.MaxBackoff
	}
	return time.Duration(d)
}

func (e *Engine) wait(n int, err error) time.Duration {
	if after, ok := domain.GetRetryAfter(err); ok {
		return after
	}
	d := e.Backoff(n)
	if e.policy.Jitter > 0 {
		d += time.Duration(float64(d) * e.policy.Jitter * e.rand())
	}
	return d
}

// Run calls fn until it succeeds, fails terminally, or runs out of retries.
// gate may be nil.
func (e *Engine) Run(ctx context.Context, gate Gate, fn AttemptFunc, opts ...RunOption) Outcome {
	var hooks runHooks
	for _, opt := range opts {
		opt(&hooks)
	}
	out := Outcome{State: StateIdle}

	for {
		if err := ctx.Err(); err != nil {
			out.State = StateExhausted
			out.Err = domain.NewDownloadError(domain.CategoryCancelled, "retry", err)
			return out
		}

		out.State = StateAttempting
		out.Attempts++
		err := e.attempt(ctx, out.Attempts, fn)
		if err == nil {
			out.State = StateCompleted
			out.Err = nil
			return out
		}

		if ctx.Err() != nil {
			out.State = StateExhausted
			out.Err = domain.NewDownloadError(domain.CategoryCancelled, "retry", fmt.Errorf("%w: %w", ctx.Err(), err))
			return out
		}

		if !e.recoverable(err) {
			out.State = StateExhausted
			out.Err = err
			return out
		}

		if out.Retries >= e.policy.MaxRetries {
			out.State = StateExhausted
			out.Err = domain.NewDownloadError(domain.CategoryExhausted, "retry",
				fmt.Errorf("%w after %d attempts: %w", domain.ErrMaxRetriesExceeded, out.Attempts, err))
			return out
		}

		out.Retries++
		wait := e.wait(out.Retries, err)
		out.Waits = append(out.Waits, wait)
		out.State = StateRetryWait

		e.logger.Warn("attempt failed, retrying",
			zap.Int("attempt", out.Attempts),
			zap.Int("max_retries", e.policy.MaxRetries),
			zap.Duration("wait", wait),
			zap.String("category", string(domain.Classify(err))),
			zap.Error(err))
		if hooks.onRetry != nil {
			hooks.onRetry(Notice{
				Attempt:    out.Attempts,
				Retry:      out.Retries,
				MaxRetries: e.policy.MaxRetries,
				Wait:       wait,
				Err:        err,
			})
		}

		if gate != nil {
			gate.Release()
		}
		if err := e.sleep(ctx, wait); err != nil {
			out.State = StateExhausted
			out.Err = domain.NewDownloadError(domain.CategoryCancelled, "retry wait", err)
			return out
		}
		if gate != nil {
			if err := gate.Acquire(ctx); err != nil {
				out.State = StateExhausted
				out.Err = domain.NewDownloadError(domain.CategoryCancelled, "retry admission", err)
				return out
			}
		}
	}
}

func (e *Engine) attempt(ctx context.Context, n int, fn AttemptFunc) error {
	actx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	a := &Attempt{Number: n}
	if e.policy.Timeout > 0 {
		a.idle = e.policy.Timeout
		a.timer = time.AfterFunc(e.policy.Timeout, func() { cancel(ErrAttemptStalled) })
	}
	defer a.stop()

	err := fn(actx, a)
	if err != nil && ctx.Err() == nil && errors.Is(context.Cause(actx), ErrAttemptStalled) {
		return domain.NewDownloadError(domain.CategoryTransport, "attempt",
			fmt.Errorf("%w: no progress for %s", ErrAttemptStalled, e.policy.Timeout))
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
