package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/scrypster/mnemosyne/pkg/types"
)

// ResilientConfig holds the configuration for the resilient store decorator.
type ResilientConfig struct {
	// OpTimeout is the per-attempt deadline applied to every store call.
	// Default: 10 seconds
	OpTimeout time.Duration

	// MaxRetries is the number of additional attempts after the first failure.
	// Only transient errors are retried. Default: 3
	MaxRetries int

	// BreakerMaxFailures is the number of consecutive transient failures
	// required to trip the circuit. Default: 5
	BreakerMaxFailures uint32

	// BreakerTimeout is the duration the circuit stays open before
	// transitioning to half-open. Default: 30 seconds
	BreakerTimeout time.Duration

	// RatePerSec is the sustained rate of mutating calls allowed through to
	// the backend. Zero disables rate limiting. Default: 200
	RatePerSec float64

	// RateBurst is the maximum burst of mutating calls. Default: 50
	RateBurst int
}

// DefaultResilientConfig returns the configuration used when callers have no
// reason to tune the decorator.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		OpTimeout:          10 * time.Second,
		MaxRetries:         3,
		BreakerMaxFailures: 5,
		BreakerTimeout:     30 * time.Second,
		RatePerSec:         200,
		RateBurst:          50,
	}
}

// ResilientStore decorates a Store with per-operation timeouts, bounded
// retries with exponential backoff, a circuit breaker, and a rate limit on
// mutating calls. Consolidation runs touch thousands of rows back to back;
// the decorator keeps a flaky or overloaded backend from turning one bad
// write into a failed horizon.
type ResilientStore struct {
	inner   Store
	cfg     ResilientConfig
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

var _ Store = (*ResilientStore)(nil)

// NewResilientStore wraps inner with the given resilience configuration.
// Unset timeouts and breaker fields fall back to the defaults; MaxRetries
// zero means no retries and RatePerSec zero disables rate limiting.
func NewResilientStore(inner Store, cfg ResilientConfig) *ResilientStore {
	def := DefaultResilientConfig()
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = def.OpTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = def.BreakerMaxFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = def.BreakerTimeout
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = def.RateBurst
	}

	rs := &ResilientStore{inner: inner, cfg: cfg}

	rs.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "StorageCircuitBreaker",
		MaxRequests: 1,
		Interval:    0, // Don't clear counts periodically
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
		},
		IsSuccessful: func(err error) bool {
			// Domain errors mean the backend is healthy; only transient
			// failures should count against the circuit.
			return err == nil || IsPermanent(err)
		},
	})

	if cfg.RatePerSec > 0 {
		rs.limiter = rate.NewLimiter(rate.Every(time.Duration(1000.0/cfg.RatePerSec)*time.Millisecond), cfg.RateBurst)
	}

	return rs
}

// GetMemories implements Store.
func (rs *ResilientStore) GetMemories(ctx context.Context, f WorkingSetFilter) ([]*types.Memory, error) {
	var memories []*types.Memory
	err := rs.execute(ctx, "GetMemories", false, func(ctx context.Context) error {
		var err error
		memories, err = rs.inner.GetMemories(ctx, f)
		return err
	})
	return memories, err
}

// UpdateRelevance implements Store.
func (rs *ResilientStore) UpdateRelevance(ctx context.Context, hash string, score float64) error {
	return rs.execute(ctx, "UpdateRelevance", true, func(ctx context.Context) error {
		return rs.inner.UpdateRelevance(ctx, hash, score)
	})
}

// IncrementConnections implements Store.
func (rs *ResilientStore) IncrementConnections(ctx context.Context, hash, peerHash string) error {
	return rs.execute(ctx, "IncrementConnections", true, func(ctx context.Context) error {
		return rs.inner.IncrementConnections(ctx, hash, peerHash)
	})
}

// FindAssociation implements Store.
func (rs *ResilientStore) FindAssociation(ctx context.Context, pairKey string) (*types.Association, error) {
	var assoc *types.Association
	err := rs.execute(ctx, "FindAssociation", false, func(ctx context.Context) error {
		var err error
		assoc, err = rs.inner.FindAssociation(ctx, pairKey)
		return err
	})
	return assoc, err
}

// PutRecord implements Store.
func (rs *ResilientStore) PutRecord(ctx context.Context, rec *types.Memory) error {
	return rs.execute(ctx, "PutRecord", true, func(ctx context.Context) error {
		return rs.inner.PutRecord(ctx, rec)
	})
}

// MarkArchived implements Store.
func (rs *ResilientStore) MarkArchived(ctx context.Context, hash, archiveRef string) error {
	return rs.execute(ctx, "MarkArchived", true, func(ctx context.Context) error {
		return rs.inner.MarkArchived(ctx, hash, archiveRef)
	})
}

// GetByHash implements Store.
func (rs *ResilientStore) GetByHash(ctx context.Context, hash string) (*types.Memory, error) {
	var mem *types.Memory
	err := rs.execute(ctx, "GetByHash", false, func(ctx context.Context) error {
		var err error
		mem, err = rs.inner.GetByHash(ctx, hash)
		return err
	})
	return mem, err
}

// Close implements Store. Close is not retried.
func (rs *ResilientStore) Close() error {
	return rs.inner.Close()
}

// execute runs fn through the rate limiter, circuit breaker, per-attempt
// timeout, and retry loop. Mutating operations pay the rate limit once per
// logical call, not once per attempt.
func (rs *ResilientStore) execute(ctx context.Context, op string, mutating bool, fn func(context.Context) error) error {
	if mutating && rs.limiter != nil {
		if err := rs.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt <= rs.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff between retries: 100ms, 400ms, 900ms...
			backoff := time.Duration(attempt*attempt) * 100 * time.Millisecond
			log.Printf("storage: %s failed (attempt %d/%d), retrying in %v: %v",
				op, attempt, rs.cfg.MaxRetries+1, backoff, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		_, err := rs.breaker.Execute(func() (interface{}, error) {
			opCtx, cancel := context.WithTimeout(ctx, rs.cfg.OpTimeout)
			defer cancel()
			return nil, fn(opCtx)
		})
		if err == nil {
			return nil
		}
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return fmt.Errorf("%s: %w", op, ErrUnavailable)
		}
		if IsPermanent(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%s: giving up after %d attempts: %w", op, rs.cfg.MaxRetries+1, lastErr)
}
