package types

import (
	"fmt"
	"time"
)

// RunStatus is the overall outcome of one consolidation run.
type RunStatus string

// Run status constants.
const (
	// RunOK means the run completed with no item errors.
	RunOK RunStatus = "ok"

	// RunDegraded means some items errored but the run completed.
	RunDegraded RunStatus = "degraded"

	// RunFailed means a structural step failed and the run aborted.
	RunFailed RunStatus = "failed"
)

// ItemError captures a single recovered per-item failure inside a run.
type ItemError struct {
	Stage string `json:"stage"`          // Pipeline stage (fetch, decay, associate, ...)
	Hash  string `json:"hash,omitempty"` // Affected memory hash, empty for stage-level errors
	Err   string `json:"error"`
}

// RunReport is the structured result of one horizon run.
type RunReport struct {
	RunID             string        `json:"run_id"`
	Horizon           Horizon       `json:"horizon"`
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
	MemoriesProcessed int           `json:"memories_processed"`
	AssociationsFound int           `json:"associations_found"`
	ClustersFormed    int           `json:"clusters_formed"`
	SummariesCreated  int           `json:"summaries_created"`
	ArchivedCount     int           `json:"archived_count"`
	Errors            []ItemError   `json:"errors,omitempty"`
	Status            RunStatus     `json:"status"`
}

// AddError appends a recovered per-item error to the report.
func (r *RunReport) AddError(stage, hash string, err error) {
	r.Errors = append(r.Errors, ItemError{Stage: stage, Hash: hash, Err: err.Error()})
}

// String renders the report as a single log line.
func (r *RunReport) String() string {
	return fmt.Sprintf("run %s horizon=%s status=%s processed=%d associations=%d clusters=%d summaries=%d archived=%d errors=%d duration=%s",
		r.RunID, r.Horizon, r.Status, r.MemoriesProcessed, r.AssociationsFound,
		r.ClustersFormed, r.SummariesCreated, r.ArchivedCount, len(r.Errors),
		r.Duration.Round(time.Millisecond))
}
