package service

import (
	"time"

	"github.com/wricardo/gridworld-fuzzer/game/engine"
	"github.com/wricardo/gridworld-fuzzer/game/evolve"
	"github.com/wricardo/gridworld-fuzzer/game/fitness"
)

// RunStatus is the lifecycle state of a run
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// RunRecord is the stored form of a run
type RunRecord struct {
	ID             string              `json:"id"`
	ConfigName     string              `json:"config_name"`
	Config         *engine.RunConfig   `json:"config"`
	Status         RunStatus           `json:"status"`
	Error          string              `json:"error,omitempty"`
	Grid           engine.GridSnapshot `json:"grid"`
	Progress       evolve.History      `json:"progress"`
	Result         *evolve.RunResult   `json:"result,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
	LastAccessedAt time.Time           `json:"last_accessed_at"`
}

// StartRunRequest selects a preset and optional overrides
type StartRunRequest struct {
	ConfigName string        `json:"config_name,omitempty"`
	Overrides  *RunOverrides `json:"overrides,omitempty"`
	Async      bool          `json:"async"`
}

// RunOverrides replaces individual preset fields; nil fields are kept
type RunOverrides struct {
	Size           *int         `json:"size,omitempty"`
	Seed           *int64       `json:"seed,omitempty"`
	Generations    *int         `json:"generations,omitempty"`
	Crossover      *float64     `json:"crossover,omitempty"`
	Mutation       *float64     `json:"mutation,omitempty"`
	PopulationSize *int         `json:"population_size,omitempty"`
	Mode           *engine.Mode `json:"mode,omitempty"`
	Workers        *int         `json:"workers,omitempty"`
}

// Apply returns a copy of config with the non-nil overrides set
func (o *RunOverrides) Apply(config *engine.RunConfig) *engine.RunConfig {
	out := *config
	if o == nil {
		return &out
	}
	if o.Size != nil {
		out.Size = *o.Size
	}
	if o.Seed != nil {
		out.Seed = *o.Seed
	}
	if o.Generations != nil {
		out.Generations = *o.Generations
	}
	if o.Crossover != nil {
		out.Crossover = *o.Crossover
	}
	if o.Mutation != nil {
		out.Mutation = *o.Mutation
	}
	if o.PopulationSize != nil {
		out.PopulationSize = *o.PopulationSize
	}
	if o.Mode != nil {
		out.Mode = *o.Mode
	}
	if o.Workers != nil {
		out.Workers = *o.Workers
	}
	return &out
}

// RunInfo provides information about a run
type RunInfo struct {
	ID             string               `json:"id"`
	ConfigName     string               `json:"config_name"`
	Config         *engine.RunConfig    `json:"config"`
	Status         RunStatus            `json:"status"`
	Error          string               `json:"error,omitempty"`
	Board          []string             `json:"board"`
	Generation     int                  `json:"generation"`
	Generations    int                  `json:"generations"`
	BestFitness    float64              `json:"best_fitness"`
	BestTrace      string               `json:"best_trace"`
	BestTrial      *fitness.TrialResult `json:"best_trial,omitempty"`
	History        evolve.History       `json:"history,omitempty"`
	Result         *evolve.RunResult    `json:"result,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	CompletedAt    *time.Time           `json:"completed_at,omitempty"`
	LastAccessedAt time.Time            `json:"last_accessed_at"`
}

// ReplayResult is the best trace of a run played on a fresh copy of its grid
type ReplayResult struct {
	RunID       string              `json:"run_id"`
	Trace       string              `json:"trace"`
	Steps       []ReplayStep        `json:"steps"`
	ReachedGoal bool                `json:"reached_goal"`
	Trial       fitness.TrialResult `json:"trial"`
	Board       []string            `json:"board"`
}

// ReplayStep is one move of a replay
type ReplayStep struct {
	Idx     int              `json:"idx"`
	Dir     engine.Direction `json:"dir"`
	From    engine.Position  `json:"from"`
	To      engine.Position  `json:"to"`
	Success bool             `json:"success"`
	Pit     bool             `json:"pit,omitempty"`
	Goal    bool             `json:"goal,omitempty"`
}

// ConfigInfo provides information about a run preset
type ConfigInfo struct {
	Filename       string      `json:"filename"`
	ConfigID       string      `json:"config_id"` // The identifier to use when starting a run
	Name           string      `json:"name"`      // Display name
	Description    string      `json:"description"`
	Size           int         `json:"size"`
	Mode           engine.Mode `json:"mode"`
	PopulationSize int         `json:"population_size"`
	Generations    int         `json:"generations"`
}
