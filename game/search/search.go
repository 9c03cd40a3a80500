package search

import (
	"errors"
	"fmt"

	"github.com/wricardo/gridworld-fuzzer/game/engine"
)

var (
	// ErrNoPath is returned when the stack empties before any goal is reached.
	ErrNoPath = errors.New("search: no path to a goal")

	// ErrUnknownPreference is returned for a preference outside the move alphabet.
	ErrUnknownPreference = errors.New("search: unknown direction preference")
)

// SeedPreferences is the order in which the population initializer runs the
// four directional searches.
var SeedPreferences = []engine.Direction{engine.Right, engine.Up, engine.Left, engine.Down}

// frame is one stack entry. The start frame has no parent and no direction.
type frame struct {
	pos    engine.Position
	dir    engine.Direction
	parent *frame
}

// Order returns the neighbor push order for a preference: the canonical
// direction list rotated to start at pref.
func Order(pref engine.Direction) ([]engine.Direction, error) {
	for i, d := range engine.Directions {
		if d == pref {
			out := make([]engine.Direction, 0, len(engine.Directions))
			out = append(out, engine.Directions[i:]...)
			return append(out, engine.Directions[:i]...), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPreference, pref)
}

// Search runs a depth-first search from the player's position to any goal
// and returns the directions taken. A player already standing on a goal
// yields an empty, non-nil trace.
func Search(board engine.Board, pref engine.Direction) ([]engine.Direction, error) {
	order, err := Order(pref)
	if err != nil {
		return nil, err
	}

	start := board.PlayerPosition()
	if board.IsGoal(start) {
		return []engine.Direction{}, nil
	}

	visited := map[engine.Position]struct{}{start: {}}
	stack := []*frame{{pos: start}}

	for len(stack) > 0 {
		curr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, d := range order {
			next, _ := curr.pos.Add(d)
			if !board.IsValidMove(next) {
				continue
			}
			if _, seen := visited[next]; seen {
				continue
			}
			visited[next] = struct{}{}
			f := &frame{pos: next, dir: d, parent: curr}
			stack = append(stack, f)
			if board.IsGoal(next) {
				return backtrack(f), nil
			}
		}
	}

	return nil, ErrNoPath
}

// backtrack follows parent frames from f to the start frame and returns the
// directions in start-to-goal order
func backtrack(f *frame) []engine.Direction {
	var trace []engine.Direction
	for curr := f; curr.parent != nil; curr = curr.parent {
		trace = append(trace, curr.dir)
	}
	for i, j := 0, len(trace)-1; i < j; i, j = i+1, j-1 {
		trace[i], trace[j] = trace[j], trace[i]
	}
	return trace
}

// Seeds runs one search per entry of SeedPreferences. A preference with no
// path contributes a nil trace and its error is reported in errs at the same
// index.
func Seeds(board engine.Board) (traces [][]engine.Direction, errs []error) {
	traces = make([][]engine.Direction, len(SeedPreferences))
	errs = make([]error, len(SeedPreferences))
	for i, pref := range SeedPreferences {
		traces[i], errs[i] = Search(board, pref)
	}
	return traces, errs
}
