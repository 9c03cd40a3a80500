package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/wricardo/gridworld-fuzzer/game/engine"
	"github.com/wricardo/gridworld-fuzzer/game/evolve"
)

// RunService defines all run-related operations
type RunService interface {
	// Run Management
	StartRun(ctx context.Context, req *StartRunRequest) (*RunInfo, error)
	GetRun(ctx context.Context, runID string) (*RunInfo, error)
	ListRuns(ctx context.Context) ([]*RunInfo, error)
	DeleteRun(ctx context.Context, runID string) error
	CancelRun(ctx context.Context, runID string) error

	// Results
	Replay(ctx context.Context, runID string) (*ReplayResult, error)
	WritePlot(ctx context.Context, runID string, w io.Writer) error

	// Configuration
	ListConfigs(ctx context.Context) ([]*ConfigInfo, error)
	LoadConfig(ctx context.Context, configName string) (*engine.RunConfig, error)
	SaveConfig(ctx context.Context, configName string, config *engine.RunConfig) error

	// Shutdown cancels in-flight runs and waits for them to be stored
	Shutdown(ctx context.Context) error
}

// RunStore defines run storage operations
type RunStore interface {
	Create(record RunRecord) (*Run, error)
	Get(id string) (*Run, error)
	List() []*Run
	Delete(id string) error
	Save(id string) error
}

// ConfigManager handles run configuration presets
type ConfigManager interface {
	LoadConfig(name string) (*engine.RunConfig, error)
	ListConfigs() ([]*ConfigInfo, error)
	GetDefault() *engine.RunConfig
	SaveConfig(name string, config *engine.RunConfig) error
}

// ProgressPublisher receives live updates for running jobs
type ProgressPublisher interface {
	PublishGeneration(runID string, report evolve.GenerationReport)
	PublishComplete(runID string, info *RunInfo)
}

// Run is a stored GA run. All access to the record goes through the
// methods below so that the runner goroutine and readers do not race.
type Run struct {
	mu     sync.RWMutex
	rec    RunRecord
	cancel context.CancelFunc
}

// NewRun wraps a record
func NewRun(rec RunRecord) *Run {
	return &Run{rec: rec}
}

// ID returns the run identifier
func (r *Run) ID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rec.ID
}

// Record returns a copy of the run's record
func (r *Run) Record() RunRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec := r.rec
	rec.Progress = append(evolve.History(nil), r.rec.Progress...)
	return rec
}

// Update applies fn to the record under the write lock
func (r *Run) Update(fn func(rec *RunRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.rec)
}

// Touch records an access
func (r *Run) Touch() {
	r.Update(func(rec *RunRecord) { rec.LastAccessedAt = time.Now() })
}

// LastAccessed returns the time of the last access
func (r *Run) LastAccessed() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rec.LastAccessedAt
}

func (r *Run) setCancel(cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancel = cancel
}

// stop cancels the run if it is still running and reports whether it was
func (r *Run) stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil || r.rec.Status != StatusRunning {
		return false
	}
	r.cancel()
	return true
}
