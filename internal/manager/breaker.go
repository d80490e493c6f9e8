package manager

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerSettings tunes the per-channel circuit breakers.
type BreakerSettings struct {
	// MaxRequests is the number of probe calls allowed while half-open.
	MaxRequests uint32
	// Interval is the closed-state window after which failure counts reset.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing again.
	Timeout time.Duration
	// MinRequests and FailureRatio decide when the breaker trips.
	MinRequests  uint32
	FailureRatio float64
}

// DefaultBreakerSettings trips after 3 calls with 60% failures.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  1,
		Interval:     5 * time.Minute,
		Timeout:      2 * time.Minute,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

// breakers holds one circuit breaker per (property, channel). Breakers are
// created lazily and live for the manager's lifetime.
type breakers struct {
	mu       sync.Mutex
	settings BreakerSettings
	byKey    map[string]*gobreaker.CircuitBreaker
	log      *slog.Logger
}

func newBreakers(settings BreakerSettings, logger *slog.Logger) *breakers {
	return &breakers{settings: settings, byKey: make(map[string]*gobreaker.CircuitBreaker), log: logger}
}

func (b *breakers) get(propertyID, channelName string) *gobreaker.CircuitBreaker {
	key := propertyID + "/" + channelName
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.byKey[key]; ok {
		return cb
	}
	s := b.settings
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.Warn("circuit breaker state changed", "circuit", name, "from", from.String(), "to", to.String())
		},
	})
	b.byKey[key] = cb
	return cb
}

// state reports a breaker's state without creating one.
func (b *breakers) state(propertyID, channelName string) (gobreaker.State, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.byKey[propertyID+"/"+channelName]
	if !ok {
		return gobreaker.StateClosed, false
	}
	return cb.State(), true
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
