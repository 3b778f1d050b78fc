package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavleenbajwa8/research-brief-generator/internal/failure"
)

func testPolicy(clock *FakeClock) Policy {
	p := DefaultPolicy()
	p.Clock = clock
	p.Jitter = func() float64 { return 1 }
	return p
}

func TestDoSucceedsFirstTry(t *testing.T) {
	clock := &FakeClock{}
	calls := 0
	err := testPolicy(clock).Do(context.Background(), "op", func(context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.Sleeps())
}

func TestDoTransientBackoffExhausts(t *testing.T) {
	clock := &FakeClock{}
	calls := 0
	err := testPolicy(clock).Do(context.Background(), "fetch", func(context.Context) error {
		calls++
		return failure.NewCallError(failure.Transient, "fetch", errors.New("reset"))
	})
	require.Error(t, err)
	assert.Equal(t, failure.Transient, failure.KindOf(err))
	assert.Equal(t, 4, calls, "one attempt plus three retries")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, clock.Sleeps())
}

func TestDoBackoffCapped(t *testing.T) {
	clock := &FakeClock{}
	p := testPolicy(clock)
	p.Transient = 6
	p.MaxDelay = 5 * time.Second
	_ = p.Do(context.Background(), "op", func(context.Context) error {
		return failure.NewCallError(failure.Transient, "op", nil)
	})
	for _, d := range clock.Sleeps() {
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestDoJitterStaysWithinWindow(t *testing.T) {
	clock := &FakeClock{}
	p := testPolicy(clock)
	p.Jitter = func() float64 { return 0 }
	p.Transient = 1
	_ = p.Do(context.Background(), "op", func(context.Context) error {
		return failure.NewCallError(failure.Transient, "op", nil)
	})
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, clock.Sleeps())
}

func TestDoRateLimitHonoursRetryAfter(t *testing.T) {
	clock := &FakeClock{}
	calls := 0
	err := testPolicy(clock).Do(context.Background(), "search", func(context.Context) error {
		calls++
		if calls == 1 {
			return &failure.CallError{Kind: failure.RateLimited, Op: "search", RetryAfter: 3 * time.Second}
		}
		if calls == 2 {
			return &failure.CallError{Kind: failure.RateLimited, Op: "search"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{3 * time.Second, 10 * time.Second}, clock.Sleeps())
}

func TestDoRateLimitExhausts(t *testing.T) {
	clock := &FakeClock{}
	calls := 0
	err := testPolicy(clock).Do(context.Background(), "search", func(context.Context) error {
		calls++
		return &failure.CallError{Kind: failure.RateLimited, Op: "search"}
	})
	assert.Equal(t, failure.RateLimited, failure.KindOf(err))
	assert.Equal(t, 3, calls)
}

func TestDoFatalNotRetried(t *testing.T) {
	calls := 0
	err := testPolicy(&FakeClock{}).Do(context.Background(), "op", func(context.Context) error {
		calls++
		return failure.NewCallError(failure.Fatal, "op", errors.New("401"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := testPolicy(&FakeClock{}).Do(ctx, "op", func(context.Context) error {
		calls++
		cancel()
		return failure.NewCallError(failure.Transient, "op", nil)
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestOnRetryHook(t *testing.T) {
	var kinds []failure.Kind
	p := testPolicy(&FakeClock{})
	p.OnRetry = func(_ string, kind failure.Kind, _ int, _ time.Duration) { kinds = append(kinds, kind) }
	calls := 0
	_ = p.Do(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return failure.NewCallError(failure.Transient, "op", nil)
		}
		return nil
	})
	assert.Equal(t, []failure.Kind{failure.Transient, failure.Transient}, kinds)
}

func TestRepairAppendsViolations(t *testing.T) {
	var prompts []string
	out, err := Repair(context.Background(), testPolicy(&FakeClock{}), "plan", "make a plan",
		func(_ context.Context, prompt string) (string, error) {
			prompts = append(prompts, prompt)
			if len(prompts) == 1 {
				return "", &failure.CallError{Kind: failure.ValidationFailed, Op: "plan", Violations: []string{"steps: required field missing"}}
			}
			return "ok", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	require.Len(t, prompts, 2)
	assert.Equal(t, "make a plan", prompts[0])
	assert.True(t, strings.HasPrefix(prompts[1], "make a plan"))
	assert.Contains(t, prompts[1], "- steps: required field missing")
}

func TestRepairExhausts(t *testing.T) {
	calls := 0
	_, err := Repair(context.Background(), testPolicy(&FakeClock{}), "plan", "p",
		func(context.Context, string) (int, error) {
			calls++
			return 0, &failure.CallError{Kind: failure.ValidationFailed, Op: "plan", Violations: []string{"x"}}
		})
	assert.Equal(t, failure.ValidationFailed, failure.KindOf(err))
	assert.Equal(t, 3, calls, "one attempt plus two repairs")
}

func TestRepairRetriesTransientWithinAttempt(t *testing.T) {
	clock := &FakeClock{}
	calls := 0
	out, err := Repair(context.Background(), testPolicy(clock), "summarize", "p",
		func(context.Context, string) (int, error) {
			calls++
			if calls == 1 {
				return 0, failure.NewCallError(failure.Transient, "summarize", nil)
			}
			return 7, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 7, out)
	assert.Len(t, clock.Sleeps(), 1)
}

func TestRealClockHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RealClock{}.Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}
