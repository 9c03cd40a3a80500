// Package fitness scores traces by replaying them on private copies of a grid.
package fitness

import (
	"context"
	"runtime"

	"github.com/sourcegraph/conc/pool"

	"github.com/wricardo/gridworld-fuzzer/game/engine"
)

// TrialResult is the outcome of replaying one trace
type TrialResult struct {
	BoundaryStates int                `json:"boundary_states"`
	IllegalMoves   int                `json:"illegal_moves"`
	HazardEntries  int                `json:"hazard_entries"`
	ReachedGoal    bool               `json:"reached_goal"`
	Path           []engine.Direction `json:"path"`
	Base           int                `json:"base"`
	Fitness        float64            `json:"fitness"`
}

// Evaluate replays trace on a clone of grid and scores it. The grid passed
// in is never modified and no random numbers are drawn.
//
// Each successful move adds 1 to the base score. A move that ends next to a
// pit counts as a boundary state; ending inside a pit counts as a hazard
// entry even when the move itself was blocked. Reaching a goal stops the
// replay. The final score is
//
//	base + ratio + bonus
//
// where ratio is boundary/hazard (or boundary when no hazard was entered)
// and bonus is N² on reaching a goal, 1 otherwise.
func Evaluate(grid *engine.Grid, trace []engine.Direction) TrialResult {
	g := grid.Clone()
	result := TrialResult{Path: make([]engine.Direction, 0, len(trace))}

	for _, move := range trace {
		moved := g.ApplyMove(move)
		pos := g.PlayerPosition()

		if moved && g.AdjacentToPit(pos) {
			result.BoundaryStates++
		}
		if g.IsPit(pos) {
			result.HazardEntries++
		}
		if !moved {
			result.IllegalMoves++
			continue
		}

		result.Path = append(result.Path, move)
		result.Base++

		if g.IsGoal(pos) {
			result.ReachedGoal = true
			break
		}
	}

	ratio := float64(result.BoundaryStates)
	if result.HazardEntries > 0 {
		ratio /= float64(result.HazardEntries)
	}
	bonus := 1.0
	if result.ReachedGoal {
		bonus = float64(g.Size() * g.Size())
	}
	result.Fitness = float64(result.Base) + ratio + bonus

	return result
}

// EvaluateAll scores every trace, each on its own grid clone, and returns
// the results in input order. workers <= 0 uses GOMAXPROCS; workers == 1
// evaluates serially. The result does not depend on the worker count.
func EvaluateAll(ctx context.Context, grid *engine.Grid, traces [][]engine.Direction, workers int) ([]TrialResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]TrialResult, len(traces))
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	if workers == 1 || len(traces) < 2 {
		for i, trace := range traces {
			results[i] = Evaluate(grid, trace)
		}
		return results, nil
	}

	// Each goroutine clones the shared grid and writes only its own slot.
	p := pool.New().WithMaxGoroutines(workers)
	for i, trace := range traces {
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			results[i] = Evaluate(grid, trace)
		})
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Scores extracts the fitness column from results
func Scores(results []TrialResult) []float64 {
	out := make([]float64, len(results))
	for i, r := range results {
		out[i] = r.Fitness
	}
	return out
}
