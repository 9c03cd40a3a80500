package evolve

import (
	"fmt"
	"log"
	"math/rand"

	"github.com/wricardo/gridworld-fuzzer/game/engine"
	"github.com/wricardo/gridworld-fuzzer/game/search"
)

// ErrPopulationTooSmall is returned when fewer than four members are
// requested; the four search seeds need a slot each.
var ErrPopulationTooSmall = engine.ErrPopulationTooSmall

// Individual is one member of a population. ID is a handle that stays with
// the member for as long as it survives, independent of its genome.
type Individual struct {
	ID    int                `json:"id"`
	Trace []engine.Direction `json:"trace"`
}

// Clone returns a copy that shares no backing array with ind
func (ind Individual) Clone() Individual {
	return Individual{ID: ind.ID, Trace: cloneTrace(ind.Trace)}
}

// Population is an ordered set of individuals
type Population []Individual

// Traces returns the genomes in population order
func (p Population) Traces() [][]engine.Direction {
	out := make([][]engine.Direction, len(p))
	for i, ind := range p {
		out[i] = ind.Trace
	}
	return out
}

// Clone deep-copies every member
func (p Population) Clone() Population {
	out := make(Population, len(p))
	for i, ind := range p {
		out[i] = ind.Clone()
	}
	return out
}

// InitialPopulation builds the generation zero population for grid. The
// first four members are search seeds in SeedPreferences order; a seed with
// no path to a goal is kept as an empty trace. The remaining size-4 members
// are random traces of exactly grid.Size() moves.
func InitialPopulation(grid *engine.Grid, size int, rng *rand.Rand) (Population, error) {
	if size < engine.MinPopulationSize {
		return nil, fmt.Errorf("%w (got %d)", ErrPopulationTooSmall, size)
	}

	pop := make(Population, 0, size)
	seeds, errs := search.Seeds(grid)
	for i, trace := range seeds {
		if errs[i] != nil {
			log.Printf("Seed search with preference %s failed: %v; using empty trace", search.SeedPreferences[i], errs[i])
			trace = []engine.Direction{}
		}
		pop = append(pop, Individual{ID: len(pop), Trace: trace})
	}

	for len(pop) < size {
		pop = append(pop, Individual{ID: len(pop), Trace: RandomTrace(rng, grid.Size())})
	}

	return pop, nil
}

// RandomTrace draws n moves uniformly from the move alphabet
func RandomTrace(rng *rand.Rand, n int) []engine.Direction {
	trace := make([]engine.Direction, n)
	for i := range trace {
		trace[i] = engine.Directions[rng.Intn(len(engine.Directions))]
	}
	return trace
}

func cloneTrace(t []engine.Direction) []engine.Direction {
	if t == nil {
		return nil
	}
	return append(make([]engine.Direction, 0, len(t)), t...)
}
