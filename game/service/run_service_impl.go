package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/wricardo/gridworld-fuzzer/game/engine"
	"github.com/wricardo/gridworld-fuzzer/game/evolve"
	"github.com/wricardo/gridworld-fuzzer/game/fitness"
	"github.com/wricardo/gridworld-fuzzer/game/report"
)

// runServiceImpl implements the RunService interface
type runServiceImpl struct {
	runs      RunStore
	configs   ConfigManager
	publisher ProgressPublisher

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewRunService creates a new run service. publisher may be nil.
func NewRunService(runs RunStore, configs ConfigManager, publisher ProgressPublisher) RunService {
	return &runServiceImpl{
		runs:      runs,
		configs:   configs,
		publisher: publisher,
	}
}

// resolveConfig loads the requested preset (or the default) and applies
// the request overrides
func (s *runServiceImpl) resolveConfig(req *StartRunRequest) (*engine.RunConfig, string, error) {
	configID := req.ConfigName
	var base *engine.RunConfig
	if configID != "" {
		var err error
		base, err = s.configs.LoadConfig(configID)
		if err != nil {
			if errors.Is(err, ErrConfigNotFound) {
				availableConfigs, listErr := s.configs.ListConfigs()
				if listErr == nil && len(availableConfigs) > 0 {
					var configIDs []string
					for _, cfg := range availableConfigs {
						configIDs = append(configIDs, cfg.ConfigID)
					}
					return nil, "", fmt.Errorf("%w: '%s'. Available configs: %v", ErrConfigNotFound, configID, configIDs)
				}
			}
			return nil, "", fmt.Errorf("failed to load config %s: %w", configID, err)
		}
	} else {
		base = s.configs.GetDefault()
		configID = s.getConfigID(base.Name)
	}

	return req.Overrides.Apply(base), configID, nil
}

// getConfigID returns the config_id for a display name
func (s *runServiceImpl) getConfigID(configName string) string {
	availableConfigs, err := s.configs.ListConfigs()
	if err == nil {
		for _, cfg := range availableConfigs {
			if cfg.Name == configName {
				return cfg.ConfigID
			}
		}
	}
	if configName == "" {
		return "default"
	}
	return configName
}

// StartRun validates the configuration, builds the grid and initial
// population, and runs the GA. Async runs return immediately with status
// running; synchronous runs return the finished run.
func (s *runServiceImpl) StartRun(ctx context.Context, req *StartRunRequest) (*RunInfo, error) {
	if req == nil {
		req = &StartRunRequest{}
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrServiceShutdown
	}

	config, configID, err := s.resolveConfig(req)
	if err != nil {
		return nil, err
	}

	grid, driver, pop, err := evolve.Prepare(config)
	if err != nil {
		return nil, err
	}

	// Shutdown must either reject the run or see it in the store and wait.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServiceShutdown
	}
	now := time.Now()
	run, err := s.runs.Create(RunRecord{
		ConfigName:     configID,
		Config:         config,
		Status:         StatusRunning,
		Grid:           grid.Snapshot(),
		CreatedAt:      now,
		LastAccessedAt: now,
	})
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	parent := context.Background()
	if !req.Async {
		parent = ctx
	}
	runCtx, cancel := context.WithCancel(parent)
	run.setCancel(cancel)
	s.wg.Add(1)
	s.mu.Unlock()

	runID := run.ID()
	driver.OnGeneration(func(rep evolve.GenerationReport) {
		run.Update(func(rec *RunRecord) {
			rec.Progress = append(rec.Progress, rep.Stats)
		})
		if s.publisher != nil {
			s.publisher.PublishGeneration(runID, rep)
		}
	})

	if !req.Async {
		defer s.wg.Done()
		defer cancel()
		s.execute(runCtx, run, driver, pop)
		return s.info(run, true), nil
	}

	go func() {
		defer s.wg.Done()
		defer cancel()
		s.execute(runCtx, run, driver, pop)
	}()

	log.Printf("Started run %s (config %s, %d generations)", runID, configID, config.Generations)
	return s.info(run, false), nil
}

// execute runs the driver to completion and stores the outcome
func (s *runServiceImpl) execute(ctx context.Context, run *Run, driver *evolve.Driver, pop evolve.Population) {
	result, err := driver.Run(ctx, pop)

	completed := time.Now()
	run.Update(func(rec *RunRecord) {
		rec.Result = result
		rec.CompletedAt = &completed
		switch {
		case err == nil:
			rec.Status = StatusCompleted
		case errors.Is(err, context.Canceled):
			rec.Status = StatusCancelled
			rec.Error = err.Error()
		default:
			rec.Status = StatusFailed
			rec.Error = err.Error()
		}
	})

	if err := s.runs.Save(run.ID()); err != nil {
		log.Printf("Warning: Failed to persist run %s: %v", run.ID(), err)
	}

	if s.publisher != nil {
		s.publisher.PublishComplete(run.ID(), s.info(run, false))
	}
}

// info builds the API view of a run. full includes the complete result.
func (s *runServiceImpl) info(run *Run, full bool) *RunInfo {
	rec := run.Record()
	info := &RunInfo{
		ID:             rec.ID,
		ConfigName:     rec.ConfigName,
		Config:         rec.Config,
		Status:         rec.Status,
		Error:          rec.Error,
		Board:          engine.RenderRows(rec.Grid),
		Generation:     len(rec.Progress),
		History:        rec.Progress,
		CreatedAt:      rec.CreatedAt,
		CompletedAt:    rec.CompletedAt,
		LastAccessedAt: rec.LastAccessedAt,
	}
	if rec.Config != nil {
		info.Generations = rec.Config.Generations
	}
	if n := len(rec.Progress); n > 0 {
		info.BestFitness = rec.Progress[n-1].Max
	}
	if rec.Result != nil && len(rec.Result.History) > 0 {
		info.BestFitness = rec.Result.BestFitness
		info.BestTrace = engine.FormatTrace(rec.Result.BestTrace)
		trial := rec.Result.BestTrial
		info.BestTrial = &trial
		if full {
			info.Result = rec.Result
		}
	}
	return info
}

// GetRun retrieves run information including the full result
func (s *runServiceImpl) GetRun(ctx context.Context, runID string) (*RunInfo, error) {
	run, err := s.runs.Get(runID)
	if err != nil {
		return nil, fmt.Errorf("run not found: %w", err)
	}
	run.Touch()
	return s.info(run, true), nil
}

// ListRuns returns every stored run, oldest first, without populations
func (s *runServiceImpl) ListRuns(ctx context.Context) ([]*RunInfo, error) {
	runs := s.runs.List()
	result := make([]*RunInfo, 0, len(runs))
	for _, run := range runs {
		result = append(result, s.info(run, false))
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteRun cancels the run if needed and removes it
func (s *runServiceImpl) DeleteRun(ctx context.Context, runID string) error {
	if run, err := s.runs.Get(runID); err == nil {
		run.stop()
	}
	return s.runs.Delete(runID)
}

// CancelRun stops a running job; it is stored with status cancelled
func (s *runServiceImpl) CancelRun(ctx context.Context, runID string) error {
	run, err := s.runs.Get(runID)
	if err != nil {
		return fmt.Errorf("run not found: %w", err)
	}
	if !run.stop() {
		return ErrRunNotRunning
	}
	return nil
}

// Replay plays the best trace of a finished run on a fresh copy of its grid
func (s *runServiceImpl) Replay(ctx context.Context, runID string) (*ReplayResult, error) {
	run, err := s.runs.Get(runID)
	if err != nil {
		return nil, fmt.Errorf("run not found: %w", err)
	}
	rec := run.Record()
	if rec.Result == nil || len(rec.Result.History) == 0 {
		return nil, ErrRunNotFinished
	}

	grid, err := engine.GridFromSnapshot(rec.Grid)
	if err != nil {
		return nil, fmt.Errorf("failed to restore grid: %w", err)
	}

	trace := rec.Result.BestTrace
	result := &ReplayResult{
		RunID: rec.ID,
		Trace: engine.FormatTrace(trace),
		Steps: make([]ReplayStep, 0, len(trace)),
		Trial: fitness.Evaluate(grid, trace),
	}

	play := grid.Clone()
	for i, d := range trace {
		from := play.PlayerPosition()
		ok := play.ApplyMove(d)
		to := play.PlayerPosition()
		step := ReplayStep{
			Idx:     i + 1,
			Dir:     d,
			From:    from,
			To:      to,
			Success: ok,
			Pit:     play.IsPit(to),
			Goal:    play.IsGoal(to),
		}
		result.Steps = append(result.Steps, step)
		if step.Goal {
			result.ReachedGoal = true
			break
		}
	}
	result.Board = engine.RenderRows(play.Snapshot())

	run.Touch()
	return result, nil
}

// WritePlot renders the run's fitness history as PNG
func (s *runServiceImpl) WritePlot(ctx context.Context, runID string, w io.Writer) error {
	run, err := s.runs.Get(runID)
	if err != nil {
		return fmt.Errorf("run not found: %w", err)
	}
	rec := run.Record()
	if len(rec.Progress) == 0 {
		return ErrRunNotFinished
	}
	return report.WritePNG(w, rec.Progress, fmt.Sprintf("Run %s (%s)", rec.ID, rec.ConfigName))
}

// ListConfigs returns all available configurations
func (s *runServiceImpl) ListConfigs(ctx context.Context) ([]*ConfigInfo, error) {
	return s.configs.ListConfigs()
}

// LoadConfig loads a specific configuration
func (s *runServiceImpl) LoadConfig(ctx context.Context, configName string) (*engine.RunConfig, error) {
	return s.configs.LoadConfig(configName)
}

// SaveConfig saves a configuration
func (s *runServiceImpl) SaveConfig(ctx context.Context, configName string, config *engine.RunConfig) error {
	return s.configs.SaveConfig(configName, config)
}

// Shutdown cancels in-flight runs and waits for them to be stored
func (s *runServiceImpl) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	for _, run := range s.runs.List() {
		if run.stop() {
			log.Printf("Cancelled run %s for shutdown", run.ID())
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
