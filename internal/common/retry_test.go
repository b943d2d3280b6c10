package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Veraticus/modality/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		Jitter:       0.5,
	}
}

func TestWithRetry(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name      string
		outcomes  []Result
		wantCalls int
		wantErr   error
	}{
		{
			name:      "succeeds first time",
			outcomes:  []Result{Succeeded()},
			wantCalls: 1,
		},
		{
			name:      "succeeds after transient failures",
			outcomes:  []Result{Retryable(errBoom), Retryable(errBoom), Succeeded()},
			wantCalls: 3,
		},
		{
			name:      "fatal stops immediately",
			outcomes:  []Result{Fatal(errBoom)},
			wantCalls: 1,
			wantErr:   errBoom,
		},
		{
			name:      "exhausts attempts",
			outcomes:  []Result{Retryable(errBoom), Retryable(errBoom), Retryable(errBoom), Succeeded()},
			wantCalls: 3,
			wantErr:   ErrMaxRetries,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := WithRetry(context.Background(), func(_ context.Context) Result {
				res := tt.outcomes[calls]
				calls++
				return res
			}, fastRetry())

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWithRetry_ExhaustedKeepsCause(t *testing.T) {
	errBoom := errors.New("boom")
	err := WithRetry(context.Background(), func(_ context.Context) Result {
		return Retryable(errBoom)
	}, fastRetry())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetries)
	assert.ErrorIs(t, err, errBoom)
}

func TestWithRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	opts := fastRetry()
	opts.InitialDelay = time.Second
	opts.MaxDelay = time.Second

	calls := 0
	err := WithRetry(ctx, func(_ context.Context) Result {
		calls++
		cancel()
		return Retryable(errors.New("transient"))
	}, opts)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestWithJitter(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		d := withJitter(base, 0.5)
		assert.LessOrEqual(t, d, base)
		assert.GreaterOrEqual(t, d, base/2)
	}
	assert.Equal(t, base, withJitter(base, 0))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "ok", OutcomeOK.String())
	assert.Equal(t, "retryable", OutcomeRetryable.String())
	assert.Equal(t, "fatal", OutcomeFatal.String())
}
