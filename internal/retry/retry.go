// package retry decides whether a failed upstream call should be retried and for how long to wait.
//
// [Policy.Decide] is a pure function of (outcome, attempt); [Do] is the loop that applies it.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songcrate/internal/shared"
)

// Class is the retry classification of a single call's outcome.
type Class int

const (
	Success Class = iota
	RateLimited
	Transient // 5xx in the retryable range, or a transport failure
	Fatal
)

func (c Class) String() string {
	switch c {
	case Success:
		return "success"
	case RateLimited:
		return "rate_limited"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return ""
	}
}

// Classifier is implemented by errors that know how they should be retried.
type Classifier interface {
	RetryClass() (Class, time.Duration)
}

// Outcome is the classified result of one call.
type Outcome struct {
	Class      Class
	RetryAfter time.Duration // only meaningful for RateLimited
	Err        error
}

// Classify maps err to an [Outcome]. Errors that do not implement [Classifier] are fatal.
func Classify(err error) Outcome {
	if err == nil {
		return Outcome{Class: Success}
	}
	var c Classifier
	if errors.As(err, &c) {
		class, after := c.RetryClass()
		return Outcome{Class: class, RetryAfter: after, Err: err}
	}
	return Outcome{Class: Fatal, Err: err}
}

// Action is what the caller should do next.
type Action int

const (
	Done Action = iota
	Retry
	GiveUp
)

func (a Action) String() string {
	switch a {
	case Done:
		return "done"
	case Retry:
		return "retry"
	case GiveUp:
		return "give_up"
	default:
		return ""
	}
}

// Decision is the result of [Policy.Decide].
type Decision struct {
	Action Action
	Wait   time.Duration
	Err    error
}

// Policy bounds retries. MaxRetries counts retries, so an always-failing call runs MaxRetries+1 times.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy returns 3 retries with delays from 1s up to 10s.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 10 * time.Second}
}

// PolicyFrom builds a Policy from the [retry] config section.
func PolicyFrom(c shared.RetryConfig) Policy {
	return Policy{MaxRetries: c.MaxRetries, BaseDelay: c.BaseDelay(), MaxDelay: c.MaxDelay()}
}

// Decide applies the policy to the outcome of attempt (0 for the first call).
func (p Policy) Decide(o Outcome, attempt int) Decision {
	switch {
	case o.Class == Success:
		return Decision{Action: Done}
	case o.Class == Fatal:
		return Decision{Action: GiveUp, Err: o.Err}
	case attempt >= p.MaxRetries:
		return Decision{Action: GiveUp, Err: o.Err}
	case o.Class == RateLimited:
		return Decision{Action: Retry, Wait: o.RetryAfter}
	case o.Class == Transient:
		return Decision{Action: Retry, Wait: p.Delay(attempt + 1)}
	default:
		return Decision{Action: GiveUp, Err: o.Err}
	}
}

// Delay returns min(BaseDelay * 2^(n-1), MaxDelay) for retry number n, counted from 1.
//
// The doubling saturates instead of overflowing; n < 1 is treated as 1.
// A non-positive MaxDelay leaves the delay uncapped.
func (p Policy) Delay(n int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	ceiling := p.MaxDelay
	if ceiling <= 0 {
		ceiling = math.MaxInt64
	}

	d := p.BaseDelay
	for i := 1; i < n; i++ {
		if d >= ceiling || d > math.MaxInt64/2 {
			return ceiling
		}
		d *= 2
	}
	return min(d, ceiling)
}

// Retrier runs operations under a [Policy].
type Retrier struct {
	Policy Policy
	// Sleep waits between attempts. Replace it in tests to avoid wall-clock delays.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry, if set, is called before each wait.
	OnRetry func(attempt int, wait time.Duration, o Outcome)

	logger *log.Logger
}

// New creates a [Retrier] that sleeps on a real timer.
func New(p Policy, logger *log.Logger) *Retrier {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Retrier{Policy: p, Sleep: SleepContext, logger: logger}
}

// Do calls op until it succeeds or the policy gives up, returning op's last error on give-up.
func Do[T any](ctx context.Context, r *Retrier, op func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := op(ctx)
		o := Classify(err)
		d := r.Policy.Decide(o, attempt)

		switch d.Action {
		case Done:
			return v, nil
		case GiveUp:
			if attempt > 0 {
				r.logger.Warn("giving up", "attempts", attempt+1, "class", o.Class, "error", err)
			}
			return zero, d.Err
		}

		r.logger.Debug("retrying", "attempt", attempt+1, "class", o.Class, "wait", d.Wait, "error", err)
		if r.OnRetry != nil {
			r.OnRetry(attempt, d.Wait, o)
		}

		sleep := r.Sleep
		if sleep == nil {
			sleep = SleepContext
		}
		if serr := sleep(ctx, d.Wait); serr != nil {
			return zero, fmt.Errorf("retry interrupted: %w", errors.Join(serr, err))
		}
	}
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
