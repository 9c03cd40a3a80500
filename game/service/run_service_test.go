package service_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wricardo/gridworld-fuzzer/game/engine"
	"github.com/wricardo/gridworld-fuzzer/game/evolve"
	"github.com/wricardo/gridworld-fuzzer/game/service"
)

// MockRunStore implements service.RunStore for testing
type MockRunStore struct {
	mu    sync.Mutex
	runs  map[string]*service.Run
	saves map[string]int
}

func NewMockRunStore() *MockRunStore {
	return &MockRunStore{
		runs:  make(map[string]*service.Run),
		saves: make(map[string]int),
	}
}

func (m *MockRunStore) Create(rec service.RunRecord) (*service.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Generate ID if empty (mimics real run manager behavior)
	if rec.ID == "" {
		rec.ID = fmt.Sprintf("run_%d", len(m.runs)+1)
	}
	if _, exists := m.runs[rec.ID]; exists {
		return nil, errors.New("run already exists")
	}

	run := service.NewRun(rec)
	m.runs[rec.ID] = run
	return run, nil
}

func (m *MockRunStore) Get(id string) (*service.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, exists := m.runs[id]
	if !exists {
		return nil, service.ErrRunNotFound
	}
	return run, nil
}

func (m *MockRunStore) List() []*service.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*service.Run, 0, len(m.runs))
	for _, run := range m.runs {
		result = append(result, run)
	}
	return result
}

func (m *MockRunStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[id]; !exists {
		return service.ErrRunNotFound
	}
	delete(m.runs, id)
	return nil
}

func (m *MockRunStore) Save(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[id]; !exists {
		return service.ErrRunNotFound
	}
	m.saves[id]++
	return nil
}

func (m *MockRunStore) SaveCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves[id]
}

// MockConfigManager implements service.ConfigManager for testing
type MockConfigManager struct {
	mu      sync.Mutex
	configs map[string]*engine.RunConfig
}

func NewMockConfigManager() *MockConfigManager {
	classic := engine.DefaultRunConfig()
	classic.Name = "Classic"
	classic.Generations = 5
	classic.PopulationSize = 6

	random := engine.DefaultRunConfig()
	random.Name = "Random"
	random.Mode = engine.ModeRandom
	random.Size = 8
	random.Seed = 42
	random.Generations = 10
	random.PopulationSize = 10

	return &MockConfigManager{
		configs: map[string]*engine.RunConfig{
			"classic": classic,
			"random":  random,
		},
	}
}

func (m *MockConfigManager) LoadConfig(name string) (*engine.RunConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	config, exists := m.configs[name]
	if !exists {
		return nil, service.ErrConfigNotFound
	}
	out := *config
	return &out, nil
}

func (m *MockConfigManager) ListConfigs() ([]*service.ConfigInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*service.ConfigInfo
	for _, id := range []string{"classic", "random"} {
		config, ok := m.configs[id]
		if !ok {
			continue
		}
		result = append(result, &service.ConfigInfo{
			Filename: id + ".json",
			ConfigID: id,
			Name:     config.Name,
			Size:     config.Size,
			Mode:     config.Mode,
		})
	}
	return result, nil
}

func (m *MockConfigManager) GetDefault() *engine.RunConfig {
	config, _ := m.LoadConfig("classic")
	return config
}

func (m *MockConfigManager) SaveConfig(name string, config *engine.RunConfig) error {
	if err := engine.ValidateRunConfig(config); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := *config
	m.configs[name] = &out
	return nil
}

// MockPublisher records progress events. When gate is set, the first
// generation event blocks until the gate is closed.
type MockPublisher struct {
	mu          sync.Mutex
	generations map[string]int
	completed   chan *service.RunInfo

	gate    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		generations: make(map[string]int),
		completed:   make(chan *service.RunInfo, 16),
	}
}

func (p *MockPublisher) PublishGeneration(runID string, report evolve.GenerationReport) {
	p.mu.Lock()
	p.generations[runID]++
	p.mu.Unlock()

	if p.gate != nil {
		p.once.Do(func() {
			close(p.entered)
			<-p.gate
		})
	}
}

func (p *MockPublisher) PublishComplete(runID string, info *service.RunInfo) {
	p.completed <- info
}

func (p *MockPublisher) Generations(runID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generations[runID]
}

func (p *MockPublisher) waitComplete(t *testing.T) *service.RunInfo {
	t.Helper()
	select {
	case info := <-p.completed:
		return info
	case <-time.After(10 * time.Second):
		t.Fatal("Timed out waiting for run to complete")
		return nil
	}
}

func newTestService() (service.RunService, *MockRunStore, *MockPublisher) {
	store := NewMockRunStore()
	publisher := NewMockPublisher()
	return service.NewRunService(store, NewMockConfigManager(), publisher), store, publisher
}

func intPtr(v int) *int { return &v }

func TestRunService_StartRunSync(t *testing.T) {
	svc, store, publisher := newTestService()
	ctx := context.Background()

	info, err := svc.StartRun(ctx, &service.StartRunRequest{})
	if err != nil {
		t.Fatalf("Failed to start run: %v", err)
	}

	if info.Status != service.StatusCompleted {
		t.Fatalf("Expected completed status, got %s (%s)", info.Status, info.Error)
	}
	if info.ConfigName != "classic" {
		t.Errorf("Expected default config ID 'classic', got %s", info.ConfigName)
	}
	if info.Generation != 5 || info.Generations != 5 || len(info.History) != 5 {
		t.Errorf("Expected 5 generations, got %d/%d history %d", info.Generation, info.Generations, len(info.History))
	}
	if info.Result == nil || len(info.Result.FinalPopulation) != 6 {
		t.Fatalf("Expected full result with population 6, got %+v", info.Result)
	}
	if info.BestTrial == nil || info.BestTrace != engine.FormatTrace(info.Result.BestTrace) {
		t.Errorf("Expected best trace summary, got %q", info.BestTrace)
	}
	if len(info.Board) != 4 || info.Board[0] != "[G O   P]" {
		t.Errorf("Unexpected board %v", info.Board)
	}

	// The [l l l] seed reaches the goal through the pit on generation one
	// and elites carry it forward.
	if info.BestFitness < 21 {
		t.Errorf("Expected best fitness >= 21, got %g", info.BestFitness)
	}
	for i := 1; i < len(info.History); i++ {
		if info.History[i].Max < info.History[i-1].Max {
			t.Errorf("Max fitness decreased at generation %d: %g -> %g",
				i+1, info.History[i-1].Max, info.History[i].Max)
		}
	}

	if publisher.Generations(info.ID) != 5 {
		t.Errorf("Expected 5 generation events, got %d", publisher.Generations(info.ID))
	}
	if store.SaveCount(info.ID) != 1 {
		t.Errorf("Expected run to be saved once, got %d", store.SaveCount(info.ID))
	}
	done := publisher.waitComplete(t)
	if done.ID != info.ID || done.Status != service.StatusCompleted {
		t.Errorf("Unexpected completion event %+v", done)
	}
}

func TestRunService_StartRunOverrides(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	mode := engine.ModeRandom
	seed := int64(5)
	info, err := svc.StartRun(ctx, &service.StartRunRequest{
		ConfigName: "classic",
		Overrides: &service.RunOverrides{
			Generations:    intPtr(3),
			PopulationSize: intPtr(9),
			Size:           intPtr(6),
			Mode:           &mode,
			Seed:           &seed,
			Workers:        intPtr(2),
		},
	})
	if err != nil {
		t.Fatalf("Failed to start run: %v", err)
	}

	c := info.Config
	if c.Generations != 3 || c.PopulationSize != 9 || c.Size != 6 || c.Mode != engine.ModeRandom || c.Seed != 5 || c.Workers != 2 {
		t.Errorf("Overrides not applied: %+v", c)
	}
	if c.Crossover != 0.7 || c.Mutation != 0.1 {
		t.Errorf("Expected untouched fields to keep preset values, got %+v", c)
	}
	if len(info.Board) != 6 || len(info.History) != 3 {
		t.Errorf("Expected 6 rows and 3 generations, got %d and %d", len(info.Board), len(info.History))
	}

	// The preset itself is unchanged
	preset, _ := svc.LoadConfig(ctx, "classic")
	if preset.Generations != 5 || preset.Mode != engine.ModeStatic {
		t.Errorf("Preset was modified: %+v", preset)
	}
}

func TestRunService_StartRunErrors(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name    string
		req     *service.StartRunRequest
		want    error
		message string
	}{
		{
			name:    "unknown config",
			req:     &service.StartRunRequest{ConfigName: "nope"},
			want:    service.ErrConfigNotFound,
			message: "Available configs: [classic random]",
		},
		{
			name:    "population too small",
			req:     &service.StartRunRequest{Overrides: &service.RunOverrides{PopulationSize: intPtr(3)}},
			want:    engine.ErrPopulationTooSmall,
			message: "population size must be at least 4",
		},
		{
			name: "zero generations",
			req:  &service.StartRunRequest{Overrides: &service.RunOverrides{Generations: intPtr(0)}},
			want: engine.ErrInvalidConfig,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := svc.StartRun(ctx, test.req)
			if !errors.Is(err, test.want) {
				t.Fatalf("Expected %v, got %v", test.want, err)
			}
			if test.message != "" && !strings.Contains(err.Error(), test.message) {
				t.Errorf("Expected error containing %q, got %q", test.message, err.Error())
			}
		})
	}

	if len(store.List()) != 0 {
		t.Errorf("Failed runs should not be stored, got %d", len(store.List()))
	}
}

func TestRunService_StartRunAsync(t *testing.T) {
	svc, _, publisher := newTestService()
	ctx := context.Background()

	info, err := svc.StartRun(ctx, &service.StartRunRequest{ConfigName: "random", Async: true})
	if err != nil {
		t.Fatalf("Failed to start run: %v", err)
	}
	if info.Result != nil {
		t.Error("Async start should not include a result")
	}

	done := publisher.waitComplete(t)
	if done.Status != service.StatusCompleted {
		t.Fatalf("Expected completed, got %s (%s)", done.Status, done.Error)
	}

	got, err := svc.GetRun(ctx, info.ID)
	if err != nil {
		t.Fatalf("Failed to get run: %v", err)
	}
	if got.Status != service.StatusCompleted || got.Generation != 10 || got.Result == nil {
		t.Errorf("Unexpected finished run: status %s generation %d", got.Status, got.Generation)
	}
	if got.CompletedAt == nil || got.CompletedAt.Before(got.CreatedAt) {
		t.Errorf("Expected completion time after creation, got %v", got.CompletedAt)
	}
}

func TestRunService_CancelRun(t *testing.T) {
	store := NewMockRunStore()
	publisher := NewMockPublisher()
	publisher.gate = make(chan struct{})
	publisher.entered = make(chan struct{})
	svc := service.NewRunService(store, NewMockConfigManager(), publisher)
	ctx := context.Background()

	info, err := svc.StartRun(ctx, &service.StartRunRequest{
		Async:     true,
		Overrides: &service.RunOverrides{Generations: intPtr(1000)},
	})
	if err != nil {
		t.Fatalf("Failed to start run: %v", err)
	}

	<-publisher.entered
	if err := svc.CancelRun(ctx, info.ID); err != nil {
		t.Fatalf("Failed to cancel: %v", err)
	}
	close(publisher.gate)

	done := publisher.waitComplete(t)
	if done.Status != service.StatusCancelled {
		t.Fatalf("Expected cancelled, got %s", done.Status)
	}
	if done.Generation != 1 {
		t.Errorf("Expected the in-flight generation to finish, got %d", done.Generation)
	}

	if err := svc.CancelRun(ctx, info.ID); !errors.Is(err, service.ErrRunNotRunning) {
		t.Errorf("Expected ErrRunNotRunning, got %v", err)
	}
	if err := svc.CancelRun(ctx, "missing"); !errors.Is(err, service.ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}

	// A cancelled run still has a partial result to replay
	replay, err := svc.Replay(ctx, info.ID)
	if err != nil {
		t.Fatalf("Failed to replay cancelled run: %v", err)
	}
	if replay.RunID != info.ID {
		t.Errorf("Unexpected replay run ID %s", replay.RunID)
	}
}

func TestRunService_SyncRunWithCancelledContext(t *testing.T) {
	svc, _, _ := newTestService()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	info, err := svc.StartRun(ctx, &service.StartRunRequest{})
	if err != nil {
		t.Fatalf("StartRun should store the cancelled run, got %v", err)
	}
	if info.Status != service.StatusCancelled || info.Generation != 0 {
		t.Errorf("Expected cancelled run with no generations, got %s %d", info.Status, info.Generation)
	}

	if _, err := svc.Replay(context.Background(), info.ID); !errors.Is(err, service.ErrRunNotFinished) {
		t.Errorf("Expected ErrRunNotFinished, got %v", err)
	}
	var buf bytes.Buffer
	if err := svc.WritePlot(context.Background(), info.ID, &buf); !errors.Is(err, service.ErrRunNotFinished) {
		t.Errorf("Expected ErrRunNotFinished, got %v", err)
	}
}

func TestRunService_Replay(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	info, err := svc.StartRun(ctx, &service.StartRunRequest{})
	if err != nil {
		t.Fatalf("Failed to start run: %v", err)
	}

	replay, err := svc.Replay(ctx, info.ID)
	if err != nil {
		t.Fatalf("Failed to replay: %v", err)
	}

	if replay.Trace != info.BestTrace {
		t.Errorf("Expected trace %q, got %q", info.BestTrace, replay.Trace)
	}
	if replay.Trial.Fitness != info.BestFitness {
		t.Errorf("Expected fitness %g, got %g", info.BestFitness, replay.Trial.Fitness)
	}
	if replay.ReachedGoal != replay.Trial.ReachedGoal {
		t.Errorf("Replay and trial disagree on reaching the goal")
	}
	if len(replay.Steps) > len(replay.Trace) {
		t.Errorf("More steps than moves: %d > %d", len(replay.Steps), len(replay.Trace))
	}
	for i, step := range replay.Steps {
		if step.Idx != i+1 {
			t.Errorf("Step %d has index %d", i, step.Idx)
		}
		if !step.Success && step.From != step.To {
			t.Errorf("Failed step %d moved the player", step.Idx)
		}
		if step.Goal && i != len(replay.Steps)-1 {
			t.Errorf("Replay continued past the goal at step %d", step.Idx)
		}
	}
	if len(replay.Board) != 4 {
		t.Errorf("Expected 4 board rows, got %d", len(replay.Board))
	}

	if _, err := svc.Replay(ctx, "missing"); !errors.Is(err, service.ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
}

func TestRunService_WritePlot(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	info, err := svc.StartRun(ctx, &service.StartRunRequest{})
	if err != nil {
		t.Fatalf("Failed to start run: %v", err)
	}

	var buf bytes.Buffer
	if err := svc.WritePlot(ctx, info.ID, &buf); err != nil {
		t.Fatalf("Failed to write plot: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG\r\n\x1a\n")) {
		t.Error("Expected PNG output")
	}
}

func TestRunService_ListAndDelete(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		info, err := svc.StartRun(ctx, &service.StartRunRequest{
			Overrides: &service.RunOverrides{Generations: intPtr(1)},
		})
		if err != nil {
			t.Fatalf("Failed to start run %d: %v", i, err)
		}
		ids = append(ids, info.ID)
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := svc.ListRuns(ctx)
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("Expected 3 runs, got %d", len(runs))
	}
	for i, run := range runs {
		if run.ID != ids[i] {
			t.Errorf("Position %d: expected %s, got %s", i, ids[i], run.ID)
		}
		if run.Result != nil {
			t.Errorf("List should not include full results")
		}
	}

	if err := svc.DeleteRun(ctx, ids[1]); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := svc.GetRun(ctx, ids[1]); !errors.Is(err, service.ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
	if err := svc.DeleteRun(ctx, ids[1]); !errors.Is(err, service.ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound on second delete, got %v", err)
	}
}

func TestRunService_Configs(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	configs, err := svc.ListConfigs(ctx)
	if err != nil || len(configs) != 2 {
		t.Fatalf("Expected 2 configs, got %d (%v)", len(configs), err)
	}

	custom := engine.DefaultRunConfig()
	custom.Name = "Custom"
	custom.PopulationSize = 12
	if err := svc.SaveConfig(ctx, "custom", custom); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	info, err := svc.StartRun(ctx, &service.StartRunRequest{ConfigName: "custom"})
	if err != nil {
		t.Fatalf("Failed to start run with saved config: %v", err)
	}
	if info.ConfigName != "custom" || len(info.Result.FinalPopulation) != 12 {
		t.Errorf("Expected custom preset to be used, got %s with %d members",
			info.ConfigName, len(info.Result.FinalPopulation))
	}

	bad := engine.DefaultRunConfig()
	bad.Mutation = -1
	if err := svc.SaveConfig(ctx, "bad", bad); !errors.Is(err, engine.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
}

func TestRunService_Shutdown(t *testing.T) {
	store := NewMockRunStore()
	publisher := NewMockPublisher()
	publisher.gate = make(chan struct{})
	publisher.entered = make(chan struct{})
	svc := service.NewRunService(store, NewMockConfigManager(), publisher)
	ctx := context.Background()

	info, err := svc.StartRun(ctx, &service.StartRunRequest{
		Async:     true,
		Overrides: &service.RunOverrides{Generations: intPtr(1000)},
	})
	if err != nil {
		t.Fatalf("Failed to start run: %v", err)
	}
	<-publisher.entered

	shutdownDone := make(chan error, 1)
	go func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		shutdownDone <- svc.Shutdown(shutdownCtx)
	}()

	// Shutdown waits for the run to observe cancellation
	time.Sleep(10 * time.Millisecond)
	close(publisher.gate)

	if err := <-shutdownDone; err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	got, err := svc.GetRun(ctx, info.ID)
	if err != nil {
		t.Fatalf("Failed to get run: %v", err)
	}
	if got.Status != service.StatusCancelled {
		t.Errorf("Expected cancelled run after shutdown, got %s", got.Status)
	}
	if store.SaveCount(info.ID) != 1 {
		t.Errorf("Expected cancelled run to be saved, got %d saves", store.SaveCount(info.ID))
	}

	if _, err := svc.StartRun(ctx, &service.StartRunRequest{}); !errors.Is(err, service.ErrServiceShutdown) {
		t.Errorf("Expected ErrServiceShutdown, got %v", err)
	}
}

// gatedRunStore blocks Create until gate is closed
type gatedRunStore struct {
	*MockRunStore
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedRunStore) Create(rec service.RunRecord) (*service.Run, error) {
	close(g.entered)
	<-g.gate
	return g.MockRunStore.Create(rec)
}

func TestRunService_ShutdownDuringStart(t *testing.T) {
	store := &gatedRunStore{
		MockRunStore: NewMockRunStore(),
		entered:      make(chan struct{}),
		gate:         make(chan struct{}),
	}
	svc := service.NewRunService(store, NewMockConfigManager(), nil)
	ctx := context.Background()

	type started struct {
		info *service.RunInfo
		err  error
	}
	startDone := make(chan started, 1)
	go func() {
		info, err := svc.StartRun(ctx, &service.StartRunRequest{
			Async:     true,
			Overrides: &service.RunOverrides{Generations: intPtr(100000)},
		})
		startDone <- started{info, err}
	}()
	<-store.entered

	shutdownDone := make(chan error, 1)
	go func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		shutdownDone <- svc.Shutdown(shutdownCtx)
	}()

	time.Sleep(10 * time.Millisecond)
	close(store.gate)

	start := <-startDone
	if start.err != nil {
		t.Fatalf("Failed to start run: %v", start.err)
	}
	if err := <-shutdownDone; err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	// Shutdown returned, so the run must already be finished
	got, err := svc.GetRun(ctx, start.info.ID)
	if err != nil {
		t.Fatalf("Failed to get run: %v", err)
	}
	if got.Status != service.StatusCancelled {
		t.Errorf("Expected run cancelled by shutdown, got %s", got.Status)
	}
}

func TestRunOverrides_ApplyNil(t *testing.T) {
	base := engine.DefaultRunConfig()
	var overrides *service.RunOverrides

	got := overrides.Apply(base)
	if got == base {
		t.Error("Apply should return a copy")
	}
	if *got != *base {
		t.Errorf("Expected unchanged copy, got %+v", got)
	}
}
