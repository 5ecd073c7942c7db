package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDownstream = errors.New("downstream failed")

func fail(context.Context) (string, error)    { return "", errDownstream }
func succeed(context.Context) (string, error) { return "ok", nil }

func run(b *Breaker, outcomes ...bool) {
	for _, ok := range outcomes {
		fn := fail
		if ok {
			fn = succeed
		}
		_, _ = Do(context.Background(), b, fn)
	}
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		requests []bool
		want     State
	}{
		{
			name:     "stays closed on successes",
			settings: Settings{Failures: 3},
			requests: []bool{true, true, true},
			want:     StateClosed,
		},
		{
			name:     "opens after consecutive failures",
			settings: Settings{Failures: 3, Timeout: time.Minute},
			requests: []bool{false, false, false},
			want:     StateOpen,
		},
		{
			name:     "success resets the streak",
			settings: Settings{Failures: 3},
			requests: []bool{false, false, true, false, false},
			want:     StateClosed,
		},
		{
			name: "custom trip function",
			settings: Settings{
				Timeout: time.Minute,
				ReadyToTrip: func(c Counts) bool {
					return c.TotalFailures >= 2
				},
			},
			requests: []bool{false, true, false},
			want:     StateOpen,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("test", tt.settings)
			run(b, tt.requests...)
			assert.Equal(t, tt.want, b.State())
		})
	}
}

func TestBreakerCounts(t *testing.T) {
	b := New("test", Settings{})

	v, err := Do(context.Background(), b, succeed)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)

	counts := b.Counts()
	assert.Equal(t, uint32(1), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalSuccesses)

	_, err = Do(context.Background(), b, fail)
	assert.ErrorIs(t, err, errDownstream)

	counts = b.Counts()
	assert.Equal(t, uint32(2), counts.Requests)
	assert.Equal(t, uint32(1), counts.TotalFailures)
	assert.Equal(t, uint32(1), counts.ConsecutiveFailures)
	assert.Equal(t, uint32(0), counts.ConsecutiveSuccesses)
}

func TestBreakerOpenFailsFast(t *testing.T) {
	b := New("test", Settings{Failures: 2, Timeout: time.Minute})
	run(b, false, false)

	called := false
	_, err := Do(context.Background(), b, func(context.Context) (int, error) {
		called = true
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := New("test", Settings{MaxRequests: 2, Failures: 2, Timeout: 30 * time.Millisecond})
	run(b, false, false)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())

	run(b, true, true)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := New("test", Settings{Failures: 1, Timeout: 20 * time.Millisecond})
	run(b, false)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	run(b, false)
	assert.Equal(t, StateOpen, b.State())
}

func TestBreakerCallbacks(t *testing.T) {
	var transitions []string
	b := New("pages", Settings{
		Failures: 2,
		Timeout:  10 * time.Millisecond,
		OnStateChange: func(name string, from, to State) {
			assert.Equal(t, "pages", name)
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	run(b, false, false)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())
	assert.Equal(t, []string{"closed->open", "open->half-open"}, transitions)
}

func TestBreakerContext(t *testing.T) {
	b := New("test", Settings{Failures: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Do(ctx, b, succeed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, b.Counts().Requests)

	ctx, cancel = context.WithCancel(context.Background())
	_, err = Do(ctx, b, func(ctx context.Context) (string, error) {
		cancel()
		return "", ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, b.State(), "cancellation is not a downstream failure")
}

func TestBreakerIsSuccessful(t *testing.T) {
	errNotFound := errors.New("not found")
	b := New("test", Settings{
		Failures:     1,
		IsSuccessful: func(err error) bool { return err == nil || errors.Is(err, errNotFound) },
	})

	_, err := Do(context.Background(), b, func(context.Context) (string, error) { return "", errNotFound })
	assert.ErrorIs(t, err, errNotFound)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	b := New("test", Settings{Failures: 1, Timeout: time.Minute})

	assert.Panics(t, func() {
		_, _ = b.Execute(func() (any, error) { panic("boom") })
	})
	assert.Equal(t, StateOpen, b.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}
