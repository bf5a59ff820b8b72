package dispatcher

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// errRetailerCircuitOpen is the cause retryOrFail/terminalFail record
// when a retailer's circuit is open and an extraction attempt was
// skipped rather than actually failing against the retailer.
var errRetailerCircuitOpen = errors.New("dispatcher: retailer circuit open, skipping extraction")

// breakerState is one retailer circuit's current posture. Closed lets
// every extraction through; Open rejects admission outright; HalfOpen
// lets a single probe through to decide whether the retailer has
// recovered.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// retailerBreaker trips after maxFailures consecutive extractor
// failures for one retailer and stays open for resetTimeout before
// letting a single probe request decide whether to close again. This
// mirrors the bright-data-hub MCP client's circuit breaker (plain
// failure count + reset timeout, no generic config struct) rather than
// a configurable state machine, since the dispatcher only ever needs
// one policy: stop hammering a retailer that's blocking or down.
type retailerBreaker struct {
	maxFailures  int
	resetTimeout time.Duration

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
}

func newRetailerBreaker(maxFailures int, resetTimeout time.Duration) *retailerBreaker {
	return &retailerBreaker{maxFailures: maxFailures, resetTimeout: resetTimeout}
}

// allow reports whether an extraction attempt may proceed, flipping an
// expired Open breaker to HalfOpen for a single probe.
func (b *retailerBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerHalfOpen {
		return false
	}
	if b.state != breakerOpen {
		return true
	}
	if time.Since(b.openedAt) < b.resetTimeout {
		return false
	}
	b.state = breakerHalfOpen
	return true
}

func (b *retailerBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = breakerClosed
}

// recordFailure tallies a failure and trips the breaker either once
// the retailer's threshold is reached or immediately if the failing
// request was itself the HalfOpen probe. Reports whether this call is
// the one that opened the circuit, so callers can log the transition
// once instead of on every subsequent rejected admission.
func (b *retailerBreaker) recordFailure() (tripped bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	wasOpen := b.state == breakerOpen
	if b.state == breakerHalfOpen || b.failures >= b.maxFailures {
		b.state = breakerOpen
		b.openedAt = time.Now()
		tripped = !wasOpen
	}
	return tripped
}

// retailerBreakers lazily creates and holds one retailerBreaker per
// retailer key, paralleling how RetailerCounters tracks one running
// count per retailer.
type retailerBreakers struct {
	maxFailures  int
	resetTimeout time.Duration
	logger       *zap.Logger

	mu       sync.Mutex
	byRetailer map[string]*retailerBreaker
}

func newRetailerBreakers(maxFailures int, resetTimeout time.Duration, logger *zap.Logger) *retailerBreakers {
	return &retailerBreakers{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		logger:       logger,
		byRetailer:   make(map[string]*retailerBreaker),
	}
}

func (rb *retailerBreakers) get(retailer string) *retailerBreaker {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	b, ok := rb.byRetailer[retailer]
	if !ok {
		b = newRetailerBreaker(rb.maxFailures, rb.resetTimeout)
		rb.byRetailer[retailer] = b
	}
	return b
}

// allow reports whether retailer's circuit currently permits an
// extraction attempt.
func (rb *retailerBreakers) allow(retailer string) bool {
	return rb.get(retailer).allow()
}

// recordSuccess closes retailer's circuit after a successful extraction.
func (rb *retailerBreakers) recordSuccess(retailer string) {
	rb.get(retailer).recordSuccess()
}

// recordFailure tallies a failed extraction for retailer, logging once
// when the failure is the one that trips the circuit open.
func (rb *retailerBreakers) recordFailure(retailer string) {
	if rb.get(retailer).recordFailure() {
		rb.logger.Warn("retailer circuit opened",
			zap.String("retailer", retailer),
			zap.Int("max_failures", rb.maxFailures),
			zap.Duration("reset_timeout", rb.resetTimeout))
	}
}
