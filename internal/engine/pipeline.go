// Package engine implements the consolidation computations over a working
// set of memories: decay scoring, association discovery, clustering with
// compression, and forgetting, plus the pipeline that sequences them and the
// per-horizon intensity profiles that tune them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/mnemosyne/internal/insight"
	"github.com/scrypster/mnemosyne/internal/storage"
	"github.com/scrypster/mnemosyne/pkg/types"
)

// Stage names used in run reports.
const (
	stageFetch     = "fetch"
	stageDecay     = "decay"
	stageAssociate = "associate"
	stageCompress  = "compress"
	stageForget    = "forget"
)

var errUnusableEmbedding = errors.New("embedding missing or dimension mismatched")

// Pipeline executes one consolidation run at a time against a store: rescore
// relevance, discover associations, cluster and compress, then archive what
// has faded. Every write is an idempotent upsert, so a rerun after a partial
// failure converges instead of duplicating.
type Pipeline struct {
	store   storage.Store
	decay   *DecayCalculator
	insight insight.Generator
}

// NewPipeline creates a pipeline over the given store. A nil decay
// calculator gets the default retention table; a nil generator disables
// narratives.
func NewPipeline(store storage.Store, decay *DecayCalculator, gen insight.Generator) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if decay == nil {
		decay = NewDecayCalculator()
	}
	if gen == nil {
		gen = insight.Noop{}
	}
	return &Pipeline{store: store, decay: decay, insight: gen}, nil
}

// Run executes one consolidation pass under the given profile. since bounds
// the recent working set; zero means one interval before the run start.
//
// The report is always non-nil. Item-level failures are recovered and
// recorded; only a structural failure (working set unfetchable, store
// unavailable, run cancelled) aborts the pass and marks it failed.
func (p *Pipeline) Run(ctx context.Context, profile HorizonProfile, since time.Time) *types.RunReport {
	profile.Normalize()

	report := &types.RunReport{
		RunID:     uuid.NewString(),
		Horizon:   profile.Horizon,
		StartedAt: time.Now(),
	}
	now := report.StartedAt
	log.Printf("pipeline: run %s starting horizon=%s scope=%s", report.RunID, profile.Horizon, profile.Scope)

	if since.IsZero() {
		since = now.Add(-profile.Interval)
	}
	memories, err := p.store.GetMemories(ctx, storage.WorkingSetFilter{
		Horizon:            profile.Horizon,
		Scope:              profile.Scope,
		Since:              since,
		Limit:              profile.BatchLimit,
		IncludeRecordTypes: true,
	})
	if err != nil {
		return p.abort(report, stageFetch, err)
	}
	report.MemoriesProcessed = len(memories)

	if err := p.runDecay(ctx, memories, now, report); err != nil {
		return p.abort(report, stageDecay, err)
	}

	if profile.MaxPairs > 0 {
		if err := ctx.Err(); err != nil {
			return p.abort(report, stageAssociate, err)
		}
		if err := p.runAssociations(ctx, memories, profile, now, report); err != nil {
			return p.abort(report, stageAssociate, err)
		}
	}

	if profile.ClusterThreshold > 0 {
		if err := ctx.Err(); err != nil {
			return p.abort(report, stageCompress, err)
		}
		if err := p.runCompression(ctx, memories, profile, now, report); err != nil {
			return p.abort(report, stageCompress, err)
		}
	}

	if profile.Forget != nil {
		if err := ctx.Err(); err != nil {
			return p.abort(report, stageForget, err)
		}
		if err := p.runForgetting(ctx, memories, profile, now, report); err != nil {
			return p.abort(report, stageForget, err)
		}
	}

	if len(report.Errors) == 0 {
		report.Status = types.RunOK
	} else {
		report.Status = types.RunDegraded
	}
	report.Duration = time.Since(report.StartedAt)
	log.Printf("pipeline: %s", report)
	return report
}

// abort finalizes a structurally failed run.
func (p *Pipeline) abort(report *types.RunReport, stage string, err error) *types.RunReport {
	report.AddError(stage, "", err)
	report.Status = types.RunFailed
	report.Duration = time.Since(report.StartedAt)
	log.Printf("pipeline: %s", report)
	return report
}

// runDecay rescores every fetched record. The in-memory copy is updated
// first so the later stages act on this run's scores even if the write-back
// fails.
func (p *Pipeline) runDecay(ctx context.Context, memories []*types.Memory, now time.Time, report *types.RunReport) error {
	for _, m := range memories {
		m.Relevance = p.decay.Relevance(m, now)
		if err := p.store.UpdateRelevance(ctx, m.Hash, m.Relevance); err != nil {
			if errors.Is(err, storage.ErrUnavailable) {
				return err
			}
			report.AddError(stageDecay, m.Hash, err)
		}
	}
	return nil
}

func (p *Pipeline) runAssociations(ctx context.Context, memories []*types.Memory, profile HorizonProfile, now time.Time, report *types.RunReport) error {
	candidates, skipped := DiscoverAssociations(memories, nil, AssociationParams{
		MinSimilarity: profile.MinSimilarity,
		MaxSimilarity: profile.MaxSimilarity,
		MaxPairs:      profile.MaxPairs,
		Horizon:       profile.Horizon,
		Now:           now,
	})
	for _, hash := range skipped {
		report.AddError(stageAssociate, hash, errUnusableEmbedding)
	}

	byHash := make(map[string]*types.Memory, len(memories))
	for _, m := range memories {
		byHash[m.Hash] = m
	}

	for _, a := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Cross-run dedup: a pair discovered by any earlier run stays
		// discovered.
		if _, err := p.store.FindAssociation(ctx, a.PairKey()); err == nil {
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			if errors.Is(err, storage.ErrUnavailable) {
				return err
			}
			report.AddError(stageAssociate, "", fmt.Errorf("lookup %s: %w", a.PairKey(), err))
			continue
		}

		if n := p.narrate(ctx, a.Describe()); n != "" {
			a.Narrative = n
		}
		if err := p.store.PutRecord(ctx, a.Record()); err != nil {
			if errors.Is(err, storage.ErrUnavailable) {
				return err
			}
			report.AddError(stageAssociate, "", fmt.Errorf("persist %s: %w", a.PairKey(), err))
			continue
		}
		report.AssociationsFound++

		// The connection exists once the record does. Mirror it into the
		// in-memory endpoints so this run's forgetting stage sees it even if
		// a write-back below fails.
		p.connect(byHash[a.SourceHash], a.TargetHash)
		p.connect(byHash[a.TargetHash], a.SourceHash)
		if err := p.store.IncrementConnections(ctx, a.SourceHash, a.TargetHash); err != nil {
			if errors.Is(err, storage.ErrUnavailable) {
				return err
			}
			report.AddError(stageAssociate, a.SourceHash, err)
		}
		if err := p.store.IncrementConnections(ctx, a.TargetHash, a.SourceHash); err != nil {
			if errors.Is(err, storage.ErrUnavailable) {
				return err
			}
			report.AddError(stageAssociate, a.TargetHash, err)
		}
	}
	return nil
}

func (p *Pipeline) connect(m *types.Memory, peer string) {
	if m == nil || m.HasConnection(peer) {
		return
	}
	m.Connections = append(m.Connections, peer)
}

// runCompression clusters the working set and persists a summary per cluster
// that reaches the profile's minimum size. Summary records themselves stay
// out of the clustering input so condensations are never re-condensed.
func (p *Pipeline) runCompression(ctx context.Context, memories []*types.Memory, profile HorizonProfile, now time.Time, report *types.RunReport) error {
	clusterable := make([]*types.Memory, 0, len(memories))
	for _, m := range memories {
		if m.Type == types.TypeSummary {
			continue
		}
		clusterable = append(clusterable, m)
	}

	clusters := ClusterMemories(clusterable, profile.ClusterThreshold)
	for _, cluster := range clusters {
		if len(cluster) >= 2 {
			report.ClustersFormed++
		}
	}

	for _, cluster := range clusters {
		if len(cluster) < profile.MinClusterSize {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		summary := CompressCluster(cluster, CompressionParams{
			MinClusterSize: profile.MinClusterSize,
			TopKeywords:    profile.TopKeywords,
			Horizon:        profile.Horizon,
			Now:            now,
		})
		if summary == nil {
			continue
		}
		if n := p.narrate(ctx, summary.Describe()); n != "" {
			summary.Narrative = n
		}
		if err := p.store.PutRecord(ctx, summary.Record()); err != nil {
			if errors.Is(err, storage.ErrUnavailable) {
				return err
			}
			report.AddError(stageCompress, summary.RepresentativeHash, err)
			continue
		}
		report.SummariesCreated++
	}
	return nil
}

func (p *Pipeline) runForgetting(ctx context.Context, memories []*types.Memory, profile HorizonProfile, now time.Time, report *types.RunReport) error {
	// Summaries are never forgotten; they are what forgetting preserves.
	eligible := make([]*types.Memory, 0, len(memories))
	for _, m := range memories {
		if m.Type == types.TypeSummary || m.Type == types.TypeArchive {
			continue
		}
		eligible = append(eligible, m)
	}

	candidates := SelectForgettingCandidates(eligible, *profile.Forget, now)
	archived, errs := ArchiveMemories(ctx, p.store, candidates, ArchiveParams{
		Policy:      *profile.Forget,
		Horizon:     profile.Horizon,
		Now:         now,
		TopKeywords: profile.TopKeywords,
	})
	report.ArchivedCount = len(archived)
	for _, err := range errs {
		if errors.Is(err, storage.ErrUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		report.AddError(stageForget, "", err)
	}
	return nil
}

// narrate asks the insight generator for a narrative. Failures degrade to no
// narrative; they never affect the run outcome.
func (p *Pipeline) narrate(ctx context.Context, subject string) string {
	n, err := p.insight.Narrate(ctx, subject)
	if err != nil {
		log.Printf("pipeline: insight %s failed: %v", p.insight.Name(), err)
		return ""
	}
	return n
}
