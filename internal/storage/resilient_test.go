package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scrypster/mnemosyne/pkg/types"
)

var errFlaky = errors.New("backend hiccup")

// scriptedStore returns the scripted errors in order, then succeeds. It
// counts every call that reaches it so tests can tell retries from breaker
// rejections.
type scriptedStore struct {
	calls  int
	script []error
}

func (s *scriptedStore) next() error {
	s.calls++
	if len(s.script) == 0 {
		return nil
	}
	err := s.script[0]
	s.script = s.script[1:]
	return err
}

func (s *scriptedStore) GetMemories(ctx context.Context, f WorkingSetFilter) ([]*types.Memory, error) {
	if err := s.next(); err != nil {
		return nil, err
	}
	return []*types.Memory{{Hash: "scripted"}}, nil
}

func (s *scriptedStore) UpdateRelevance(ctx context.Context, hash string, score float64) error {
	return s.next()
}

func (s *scriptedStore) IncrementConnections(ctx context.Context, hash, peerHash string) error {
	return s.next()
}

func (s *scriptedStore) FindAssociation(ctx context.Context, pairKey string) (*types.Association, error) {
	if err := s.next(); err != nil {
		return nil, err
	}
	return &types.Association{SourceHash: "a", TargetHash: "b"}, nil
}

func (s *scriptedStore) PutRecord(ctx context.Context, rec *types.Memory) error {
	return s.next()
}

func (s *scriptedStore) MarkArchived(ctx context.Context, hash, archiveRef string) error {
	return s.next()
}

func (s *scriptedStore) GetByHash(ctx context.Context, hash string) (*types.Memory, error) {
	if err := s.next(); err != nil {
		return nil, err
	}
	return &types.Memory{Hash: hash}, nil
}

func (s *scriptedStore) Close() error { return nil }

func newTestResilient(inner Store, cfg ResilientConfig) *ResilientStore {
	if cfg.OpTimeout == 0 {
		cfg.OpTimeout = time.Second
	}
	return NewResilientStore(inner, cfg)
}

func TestResilientRetriesTransientErrors(t *testing.T) {
	inner := &scriptedStore{script: []error{errFlaky, errFlaky}}
	rs := newTestResilient(inner, ResilientConfig{MaxRetries: 3})

	mems, err := rs.GetMemories(context.Background(), WorkingSetFilter{})
	if err != nil {
		t.Fatalf("GetMemories failed: %v", err)
	}
	if len(mems) != 1 {
		t.Errorf("got %d memories, want 1", len(mems))
	}
	if inner.calls != 3 {
		t.Errorf("inner called %d times, want 3", inner.calls)
	}
}

func TestResilientDoesNotRetryPermanentErrors(t *testing.T) {
	inner := &scriptedStore{script: []error{ErrNotFound}}
	rs := newTestResilient(inner, ResilientConfig{MaxRetries: 3})

	_, err := rs.GetByHash(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("inner called %d times, want 1 (no retries on permanent errors)", inner.calls)
	}
}

func TestResilientGivesUpAfterMaxRetries(t *testing.T) {
	inner := &scriptedStore{script: []error{errFlaky, errFlaky, errFlaky}}
	rs := newTestResilient(inner, ResilientConfig{MaxRetries: 2})

	err := rs.UpdateRelevance(context.Background(), "h", 0.5)
	if !errors.Is(err, errFlaky) {
		t.Fatalf("expected wrapped errFlaky, got %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("inner called %d times, want 3", inner.calls)
	}
}

func TestResilientBreakerOpens(t *testing.T) {
	inner := &scriptedStore{script: []error{errFlaky, errFlaky, errFlaky, errFlaky}}
	rs := newTestResilient(inner, ResilientConfig{
		MaxRetries:         0,
		BreakerMaxFailures: 2,
		BreakerTimeout:     time.Minute,
	})
	ctx := context.Background()

	// Two transient failures trip the circuit.
	if err := rs.PutRecord(ctx, &types.Memory{Hash: "h"}); err == nil {
		t.Fatal("expected first call to fail")
	}
	if err := rs.PutRecord(ctx, &types.Memory{Hash: "h"}); err == nil {
		t.Fatal("expected second call to fail")
	}

	callsBefore := inner.calls
	err := rs.PutRecord(ctx, &types.Memory{Hash: "h"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable with open circuit, got %v", err)
	}
	if inner.calls != callsBefore {
		t.Errorf("open circuit still reached the backend (%d -> %d calls)", callsBefore, inner.calls)
	}
}

func TestResilientPermanentErrorsDoNotTripBreaker(t *testing.T) {
	inner := &scriptedStore{script: []error{ErrNotFound, ErrNotFound, ErrNotFound, ErrNotFound, ErrNotFound}}
	rs := newTestResilient(inner, ResilientConfig{
		MaxRetries:         0,
		BreakerMaxFailures: 2,
		BreakerTimeout:     time.Minute,
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := rs.GetByHash(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("call %d: expected ErrNotFound, got %v", i, err)
		}
	}
	if inner.calls != 5 {
		t.Errorf("inner called %d times, want 5 (domain errors must not open the circuit)", inner.calls)
	}
}

func TestResilientHonorsContextDuringBackoff(t *testing.T) {
	inner := &scriptedStore{script: []error{errFlaky, errFlaky, errFlaky, errFlaky}}
	rs := newTestResilient(inner, ResilientConfig{MaxRetries: 3})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := rs.IncrementConnections(ctx, "a", "b")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded from backoff wait, got %v", err)
	}
	// First attempt runs, then the 100ms backoff outlives the deadline.
	if inner.calls != 1 {
		t.Errorf("inner called %d times, want 1", inner.calls)
	}
}
