package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"github.com/pollstream/pollstream/internal/metrics"
)

// BreakerVerifier wraps another verifier with a circuit breaker so a
// failing credential backend fails fast instead of stalling every
// authenticate frame. Rejected tokens are not failures; only backend
// errors count against the breaker.
type BreakerVerifier struct {
	inner TokenVerifier
	cb    circuitbreaker.CircuitBreaker[any]
}

// NewBreakerVerifier wraps inner with a breaker:
// 60% failure rate over min 5 requests in a 10s rolling window opens it,
// it stays open for 30s, and one success in half-open closes it again.
func NewBreakerVerifier(inner TokenVerifier) *BreakerVerifier {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "auth",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			metrics.CircuitBreakerStateChanges.WithLabelValues("auth", e.NewState.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues("auth").Set(stateToFloat(e.NewState))
		}).
		Build()

	return &BreakerVerifier{inner: inner, cb: cb}
}

func (v *BreakerVerifier) Verify(ctx context.Context, token string) (string, error) {
	if !v.cb.TryAcquirePermit() {
		return "", fmt.Errorf("credential backend unavailable: %w", circuitbreaker.ErrOpen)
	}

	userID, err := v.inner.Verify(ctx, token)
	if err != nil && !errors.Is(err, ErrInvalidToken) {
		v.cb.RecordError(err)
		return "", err
	}
	v.cb.RecordSuccess()
	return userID, err
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}
