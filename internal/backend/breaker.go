package backend

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/sony/gobreaker/v2"
)

// newBreaker trips on connectivity failures and 5xx only. Rejections such as
// validation errors or 404 are the caller's problem and never open the circuit.
func newBreaker(cfg config.CircuitBreakerConfig, logger *slog.Logger) *gobreaker.CircuitBreaker[*response] {
	maxRequests := cfg.HalfOpenRequests
	if maxRequests == 0 {
		maxRequests = 1
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 5 * time.Second
	}
	st := gobreaker.Settings{
		Name:        "backend-api-cb",
		MaxRequests: maxRequests,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if cfg.ConsecutiveFailures > 0 && counts.ConsecutiveFailures >= cfg.ConsecutiveFailures {
				return true
			}
			total := counts.TotalSuccesses + counts.TotalFailures
			return cfg.ErrorRatePercent > 0 && total >= cfg.ConsecutiveFailures &&
				float64(counts.TotalFailures)/float64(total)*100 > float64(cfg.ErrorRatePercent)
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			return !IsTransient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return gobreaker.NewCircuitBreaker[*response](st)
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
