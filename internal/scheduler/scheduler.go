// Package scheduler triggers consolidation runs on independent per-horizon
// timers.
//
// Each horizon ticks on its own goroutine and holds an in-flight flag while
// its run executes: a trigger that lands during an active run of the same
// horizon is skipped and logged, never queued. Different horizons run
// concurrently; the pipeline's idempotent writes make overlap safe.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/scrypster/mnemosyne/internal/engine"
	"github.com/scrypster/mnemosyne/pkg/types"
)

// ErrRunInFlight is returned when a horizon already has an active run.
var ErrRunInFlight = errors.New("run already in flight for horizon")

// Defaults applied by New when the config leaves them unset.
const (
	DefaultRunTimeout  = 30 * time.Minute
	DefaultHistorySize = 20
)

// Config holds scheduler configuration.
type Config struct {
	// Profiles to schedule. Empty means engine.DefaultProfiles().
	Profiles []engine.HorizonProfile

	// RunTimeout bounds a single consolidation run.
	RunTimeout time.Duration

	// HistorySize is how many run reports to retain per horizon.
	HistorySize int
}

// Scheduler owns the horizon timers and the retained run history.
type Scheduler struct {
	pipeline    *engine.Pipeline
	profiles    []engine.HorizonProfile
	runTimeout  time.Duration
	historySize int

	// Internal state
	mu            sync.Mutex
	running       bool
	stopCh        chan struct{}
	wg            sync.WaitGroup
	inFlight      map[types.Horizon]bool
	lastCompleted map[types.Horizon]time.Time
	history       map[types.Horizon][]*types.RunReport
}

// New creates a scheduler over the given pipeline.
func New(pipeline *engine.Pipeline, config Config) (*Scheduler, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}

	profiles := config.Profiles
	if len(profiles) == 0 {
		profiles = engine.DefaultProfiles()
	}
	seen := make(map[types.Horizon]bool, len(profiles))
	for i := range profiles {
		profiles[i].Normalize()
		if err := profiles[i].Validate(); err != nil {
			return nil, err
		}
		if seen[profiles[i].Horizon] {
			return nil, fmt.Errorf("duplicate profile for horizon %q", profiles[i].Horizon)
		}
		seen[profiles[i].Horizon] = true
	}

	if config.RunTimeout <= 0 {
		config.RunTimeout = DefaultRunTimeout
	}
	if config.HistorySize <= 0 {
		config.HistorySize = DefaultHistorySize
	}

	return &Scheduler{
		pipeline:      pipeline,
		profiles:      profiles,
		runTimeout:    config.RunTimeout,
		historySize:   config.HistorySize,
		inFlight:      make(map[types.Horizon]bool),
		lastCompleted: make(map[types.Horizon]time.Time),
		history:       make(map[types.Horizon][]*types.RunReport),
	}, nil
}

// Start launches one timer goroutine per horizon and returns. Runs continue
// until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	for _, profile := range s.profiles {
		s.wg.Add(1)
		go s.runHorizon(ctx, profile)
	}

	log.Printf("scheduler: started %d horizons, run timeout %v", len(s.profiles), s.runTimeout)
	return nil
}

// Stop halts the timers and waits for any in-flight runs to finish. A run
// blocks Stop for at most the run timeout.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	log.Println("scheduler: stopped")
	return nil
}

func (s *Scheduler) runHorizon(ctx context.Context, profile engine.HorizonProfile) {
	defer s.wg.Done()

	ticker := time.NewTicker(profile.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.TriggerNow(ctx, profile.Horizon); errors.Is(err, ErrRunInFlight) {
				log.Printf("scheduler: %s run still in flight, skipping trigger", profile.Horizon)
			}
		}
	}
}

// TriggerNow runs one horizon immediately, outside its timer. It returns
// ErrRunInFlight when the horizon already has an active run.
func (s *Scheduler) TriggerNow(ctx context.Context, h types.Horizon) (*types.RunReport, error) {
	profile, ok := s.profileFor(h)
	if !ok {
		return nil, fmt.Errorf("no profile scheduled for horizon %q", h)
	}

	if !s.tryAcquire(h) {
		return nil, fmt.Errorf("%w: %s", ErrRunInFlight, h)
	}
	defer s.release(h)

	runCtx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	report := s.pipeline.Run(runCtx, profile, s.sinceFor(profile))
	s.record(h, report)
	return report, nil
}

func (s *Scheduler) profileFor(h types.Horizon) (engine.HorizonProfile, bool) {
	for _, p := range s.profiles {
		if p.Horizon == h {
			return p, true
		}
	}
	return engine.HorizonProfile{}, false
}

func (s *Scheduler) tryAcquire(h types.Horizon) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[h] {
		return false
	}
	s.inFlight[h] = true
	return true
}

func (s *Scheduler) release(h types.Horizon) {
	s.mu.Lock()
	delete(s.inFlight, h)
	s.mu.Unlock()
}

// sinceFor bounds the recent working set: everything since the last
// completed run of the horizon, widened to at least one full interval so a
// freshly restarted scheduler never sees an empty window.
func (s *Scheduler) sinceFor(profile engine.HorizonProfile) time.Time {
	s.mu.Lock()
	last := s.lastCompleted[profile.Horizon]
	s.mu.Unlock()

	floor := time.Now().Add(-profile.Interval)
	if last.IsZero() || last.After(floor) {
		return floor
	}
	return last
}

// record retains the report and, for runs that completed, advances the
// horizon's completion watermark. Failed runs leave the watermark alone so
// the next trigger re-covers the same window.
func (s *Scheduler) record(h types.Horizon, report *types.RunReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if report.Status != types.RunFailed {
		s.lastCompleted[h] = report.StartedAt
	}
	hist := append(s.history[h], report)
	if len(hist) > s.historySize {
		hist = hist[len(hist)-s.historySize:]
	}
	s.history[h] = hist
}

// History returns the retained reports for a horizon, oldest first.
func (s *Scheduler) History(h types.Horizon) []*types.RunReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.RunReport, len(s.history[h]))
	copy(out, s.history[h])
	return out
}

// HorizonHealth is a point-in-time snapshot of one horizon's schedule state.
type HorizonHealth struct {
	Horizon       types.Horizon   `json:"horizon"`
	InFlight      bool            `json:"in_flight"`
	LastCompleted time.Time       `json:"last_completed,omitempty"`
	LastStatus    types.RunStatus `json:"last_status,omitempty"`
	RunsRetained  int             `json:"runs_retained"`
}

// Health reports the schedule state of every configured horizon.
func (s *Scheduler) Health() []HorizonHealth {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]HorizonHealth, 0, len(s.profiles))
	for _, p := range s.profiles {
		h := HorizonHealth{
			Horizon:       p.Horizon,
			InFlight:      s.inFlight[p.Horizon],
			LastCompleted: s.lastCompleted[p.Horizon],
			RunsRetained:  len(s.history[p.Horizon]),
		}
		if n := len(s.history[p.Horizon]); n > 0 {
			h.LastStatus = s.history[p.Horizon][n-1].Status
		}
		out = append(out, h)
	}
	return out
}
