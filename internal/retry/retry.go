// Package retry wraps external calls with backoff, rate-limit cool-downs and
// schema repair.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tavleenbajwa8/research-brief-generator/internal/failure"
)

// Policy holds the retry budgets for one kind of call. The zero value makes
// exactly one attempt.
type Policy struct {
	// Transient is the number of retries after network or timeout errors.
	Transient int
	// RateLimit is the number of retries after a rate-limit response.
	RateLimit int
	// Repair is the number of re-invocations after schema validation fails.
	Repair int

	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Cooldown is used for rate limits that carry no Retry-After.
	Cooldown time.Duration

	Clock  Clock
	Jitter func() float64
	Logger *zap.Logger

	// OnRetry is called before each wait.
	OnRetry func(op string, kind failure.Kind, attempt int, wait time.Duration)
}

// DefaultPolicy returns the shipped budgets.
func DefaultPolicy() Policy {
	return Policy{
		Transient: 3,
		RateLimit: 2,
		Repair:    2,
		BaseDelay: time.Second,
		MaxDelay:  20 * time.Second,
		Cooldown:  10 * time.Second,
	}
}

// Do runs fn until it succeeds, fails with a non-retryable kind, or a budget
// is exhausted. The last error is returned unchanged on exhaustion.
func (p Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var transient, rateLimited int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		var wait time.Duration
		kind := failure.KindOf(err)
		switch kind {
		case failure.Transient:
			if transient >= p.Transient {
				return err
			}
			wait = p.backoff(transient)
			transient++
		case failure.RateLimited:
			if rateLimited >= p.RateLimit {
				return err
			}
			wait = p.Cooldown
			var ce *failure.CallError
			if errors.As(err, &ce) && ce.RetryAfter > 0 {
				wait = ce.RetryAfter
			}
			rateLimited++
		default:
			return err
		}

		attempt := transient + rateLimited
		p.logger().Debug("retrying call",
			zap.String("op", op),
			zap.String("kind", string(kind)),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		if p.OnRetry != nil {
			p.OnRetry(op, kind, attempt, wait)
		}
		if err := p.clock().Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// Value runs fn under p and returns its result.
func Value[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Repair runs a structured model call. When the result fails validation the
// call is repeated with the violations appended to the prompt, up to
// p.Repair times. Each invocation gets its own transient and rate-limit budget.
func Repair[T any](ctx context.Context, p Policy, op, prompt string, fn func(ctx context.Context, prompt string) (T, error)) (T, error) {
	current := prompt
	for repairs := 0; ; repairs++ {
		out, err := Value(ctx, p, op, func(ctx context.Context) (T, error) {
			return fn(ctx, current)
		})
		if err == nil {
			return out, nil
		}

		var ce *failure.CallError
		if !errors.As(err, &ce) || ce.Kind != failure.ValidationFailed || repairs >= p.Repair {
			return out, err
		}

		p.logger().Debug("repairing model output",
			zap.String("op", op),
			zap.Int("repair", repairs+1),
			zap.Strings("violations", ce.Violations),
		)
		if p.OnRetry != nil {
			p.OnRetry(op, failure.ValidationFailed, repairs+1, 0)
		}
		current = RepairPrompt(prompt, ce.Violations)
	}
}

// RepairPrompt appends the rejected output's violations to the original prompt.
func RepairPrompt(prompt string, violations []string) string {
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nYour previous response was rejected because it did not match the required JSON structure:\n")
	for _, v := range violations {
		fmt.Fprintf(&b, "- %s\n", v)
	}
	b.WriteString("Respond again with ONLY the corrected JSON.")
	return b.String()
}

func (p Policy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	d := base << attempt
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	jitter := rand.Float64
	if p.Jitter != nil {
		jitter = p.Jitter
	}
	half := d / 2
	return half + time.Duration(jitter()*float64(half))
}

func (p Policy) clock() Clock {
	if p.Clock == nil {
		return RealClock{}
	}
	return p.Clock
}

func (p Policy) logger() *zap.Logger {
	if p.Logger == nil {
		return zap.NewNop()
	}
	return p.Logger
}
