// Command mnemosyne-consolidate runs the background memory consolidation
// service: decay scoring, association discovery, clustering, compression,
// and forgetting, each on its own schedule horizon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrypster/mnemosyne/internal/config"
	"github.com/scrypster/mnemosyne/internal/connections"
	"github.com/scrypster/mnemosyne/internal/engine"
	"github.com/scrypster/mnemosyne/internal/insight"
	"github.com/scrypster/mnemosyne/internal/scheduler"
	"github.com/scrypster/mnemosyne/internal/storage"
	"github.com/scrypster/mnemosyne/pkg/types"
)

// shutdownTimeout bounds how long a signal-triggered stop waits for
// in-flight runs before giving up and exiting.
const shutdownTimeout = 30 * time.Second

var (
	policyPath   = flag.String("policy", "", "Path to YAML policy file (overrides MNEMOSYNE_POLICY_FILE)")
	backendName  = flag.String("backend", "", "Storage backend: sqlite, postgres, badger (overrides config)")
	dsn          = flag.String("db", "", "Backend DSN: file path, directory, or connection string (overrides config)")
	oneshot      = flag.String("oneshot", "", "Run a single consolidation pass for the given horizon and exit")
	listProfiles = flag.Bool("list-profiles", false, "Print the effective horizon profiles and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Override config with command-line flags
	if *backendName != "" {
		cfg.Storage.Backend = *backendName
	}
	if *dsn != "" {
		cfg.Storage.DSN = *dsn
	}
	policyFile := cfg.PolicyFile
	if *policyPath != "" {
		policyFile = *policyPath
	}

	var policy *config.Policy
	if policyFile != "" {
		policy, err = config.LoadPolicy(policyFile)
		if err != nil {
			log.Fatalf("Failed to load policy: %v", err)
		}
		log.Printf("Loaded policy from %s", policyFile)
	}

	profiles, err := policy.Profiles()
	if err != nil {
		log.Fatalf("Failed to resolve horizon profiles: %v", err)
	}
	for i := range profiles {
		if profiles[i].BatchLimit == 0 {
			profiles[i].BatchLimit = cfg.Scheduler.BatchLimit
		}
	}

	if *listProfiles {
		printProfiles(profiles)
		return
	}

	base, err := connections.Open(cfg.Storage.Backend, cfg.Storage.DSN)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer func() { _ = base.Close() }()

	store := storage.NewResilientStore(base, storage.ResilientConfig{
		OpTimeout:          cfg.Resilience.OpTimeout,
		MaxRetries:         cfg.Resilience.MaxRetries,
		BreakerMaxFailures: uint32(cfg.Resilience.BreakerMaxFailures),
		BreakerTimeout:     cfg.Resilience.BreakerTimeout,
		RatePerSec:         cfg.Resilience.RatePerSec,
		RateBurst:          cfg.Resilience.RateBurst,
	})

	var gen insight.Generator = insight.Noop{}
	if cfg.Insight.Enabled {
		gen = insight.NewOllamaGenerator(insight.OllamaConfig{
			BaseURL: cfg.Insight.OllamaURL,
			Model:   cfg.Insight.OllamaModel,
			Timeout: cfg.Insight.Timeout,
		})
		log.Printf("Insight generator enabled: %s", gen.Name())
	}

	decay := engine.NewDecayCalculatorWithRetention(policy.RetentionOverrides())
	pipeline, err := engine.NewPipeline(store, decay, gen)
	if err != nil {
		log.Fatalf("Failed to create pipeline: %v", err)
	}

	if *oneshot != "" {
		handleOneshot(pipeline, profiles, *oneshot, cfg.Scheduler.RunTimeout)
		return
	}

	sched, err := scheduler.New(pipeline, scheduler.Config{
		Profiles:    profiles,
		RunTimeout:  cfg.Scheduler.RunTimeout,
		HistorySize: cfg.Scheduler.HistorySize,
	})
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}

	runService(sched)
}

func handleOneshot(pipeline *engine.Pipeline, profiles []engine.HorizonProfile, name string, timeout time.Duration) {
	horizon, err := types.ParseHorizon(name)
	if err != nil {
		log.Fatalf("Invalid -oneshot horizon: %v", err)
	}

	var profile engine.HorizonProfile
	found := false
	for _, p := range profiles {
		if p.Horizon == horizon {
			profile, found = p, true
			break
		}
	}
	if !found {
		log.Fatalf("No profile for horizon %q", name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	report := pipeline.Run(ctx, profile, time.Time{})

	log.Printf("Consolidation pass finished: %s", report.Status)
	log.Printf("  Processed:    %d", report.MemoriesProcessed)
	log.Printf("  Associations: %d", report.AssociationsFound)
	log.Printf("  Clusters:     %d", report.ClustersFormed)
	log.Printf("  Summaries:    %d", report.SummariesCreated)
	log.Printf("  Archived:     %d", report.ArchivedCount)
	log.Printf("  Duration:     %v", report.Duration.Round(time.Millisecond))
	for _, e := range report.Errors {
		log.Printf("  error stage=%s hash=%s: %s", e.Stage, e.Hash, e.Err)
	}

	if report.Status == types.RunFailed {
		os.Exit(1)
	}
}

func printProfiles(profiles []engine.HorizonProfile) {
	for _, p := range profiles {
		fmt.Printf("%-10s interval %-6s scope %-7s", p.Horizon, formatInterval(p.Interval), p.Scope)
		if p.MaxPairs > 0 {
			fmt.Printf("  pairs %d in (%.2f, %.2f)", p.MaxPairs, p.MinSimilarity, p.MaxSimilarity)
		}
		if p.ClusterThreshold > 0 {
			fmt.Printf("  cluster %.2f min %d", p.ClusterThreshold, p.MinClusterSize)
		}
		if p.Forget != nil {
			fmt.Printf("  forget rel<%.2f idle>%.0fd", p.Forget.RelevanceThreshold, p.Forget.AccessThresholdDays)
		}
		fmt.Println()
	}
}

// formatInterval renders whole-day intervals as "Nd" to keep the profile
// listing readable.
func formatInterval(d time.Duration) string {
	if d >= 24*time.Hour && d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	}
	return d.String()
}

func runService(sched *scheduler.Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Println("Mnemosyne consolidation service started")
	log.Println("Press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down consolidation service...")
	cancel()

	done := make(chan struct{})
	go func() {
		if err := sched.Stop(); err != nil {
			log.Printf("Warning: %v", err)
		}
		close(done)
	}()

	select {
	case <-done:
		log.Println("Consolidation service stopped")
	case <-time.After(shutdownTimeout):
		log.Println("Shutdown timed out; exiting with runs still in flight")
	}
}
