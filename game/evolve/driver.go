package evolve

import (
	"context"
	"fmt"
	"log"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/wricardo/gridworld-fuzzer/game/engine"
	"github.com/wricardo/gridworld-fuzzer/game/fitness"
)

// GenerationReport is passed to the observer after each generation has been
// evaluated
type GenerationReport struct {
	Stats     GenerationStats     `json:"stats"`
	BestTrace []engine.Direction  `json:"best_trace"`
	BestTrial fitness.TrialResult `json:"best_trial"`
	Total     int                 `json:"total"`
}

// Observer receives one report per generation. It runs on the driver's
// goroutine and must not retain the report's slices past the call.
type Observer func(GenerationReport)

// RunResult is what a completed run produced. The Best* and Final* fields
// describe the last evaluated generation; NextPopulation is the population
// assembled from it, which was never evaluated.
type RunResult struct {
	BestFitness     float64               `json:"best_fitness"`
	BestTrace       []engine.Direction    `json:"best_trace"`
	BestTrial       fitness.TrialResult   `json:"best_trial"`
	History         History               `json:"history"`
	FinalPopulation Population            `json:"final_population"`
	FinalFitness    []float64             `json:"final_fitness"`
	FinalTrials     []fitness.TrialResult `json:"-"`
	NextPopulation  Population            `json:"next_population"`
}

// Driver runs the generational loop for one grid
type Driver struct {
	grid     *engine.Grid
	config   engine.RunConfig
	rng      *rand.Rand
	observer Observer
	nextID   int
}

// NewDriver validates config and returns a driver that draws every random
// number from rng
func NewDriver(grid *engine.Grid, config *engine.RunConfig, rng *rand.Rand) (*Driver, error) {
	if grid == nil {
		return nil, fmt.Errorf("grid is nil")
	}
	if rng == nil {
		return nil, fmt.Errorf("random source is nil")
	}
	if err := engine.ValidateRunConfig(config); err != nil {
		return nil, err
	}
	return &Driver{grid: grid, config: *config, rng: rng}, nil
}

// OnGeneration registers fn to be called after each evaluated generation
func (d *Driver) OnGeneration(fn Observer) {
	d.observer = fn
}

// Run evolves pop for the configured number of generations. The context is
// checked between generations; a cancelled run returns the context error
// together with the result gathered so far, including the population built
// by the last finished generation.
func (d *Driver) Run(ctx context.Context, pop Population) (*RunResult, error) {
	if len(pop) < engine.MinPopulationSize {
		return nil, fmt.Errorf("%w (got %d)", ErrPopulationTooSmall, len(pop))
	}

	pop = pop.Clone()
	for _, ind := range pop {
		if ind.ID >= d.nextID {
			d.nextID = ind.ID + 1
		}
	}

	result := &RunResult{}
	for gen := 0; gen < d.config.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			if gen > 0 {
				result.NextPopulation = pop
			}
			return result, err
		}

		next, err := d.step(ctx, gen, pop, result)
		if err != nil {
			return result, err
		}
		pop = next
	}
	result.NextPopulation = pop

	return result, nil
}

// step runs one generation and returns the population for the next one
func (d *Driver) step(ctx context.Context, gen int, pop Population, result *RunResult) (Population, error) {
	trials, err := fitness.EvaluateAll(ctx, d.grid, pop.Traces(), d.config.Workers)
	if err != nil {
		return nil, err
	}

	// Members keep only the moves they actually executed.
	for i := range pop {
		pop[i].Trace = trials[i].Path
	}
	scores := fitness.Scores(trials)

	stats := computeStats(gen, scores)
	best := floats.MaxIdx(scores)
	result.History = append(result.History, stats)
	result.BestFitness = stats.Max
	result.BestTrace = cloneTrace(pop[best].Trace)
	result.BestTrial = trials[best]
	result.FinalPopulation = pop.Clone()
	result.FinalFitness = scores
	result.FinalTrials = trials

	if d.observer != nil {
		d.observer(GenerationReport{
			Stats:     stats,
			BestTrace: result.BestTrace,
			BestTrial: trials[best],
			Total:     d.config.Generations,
		})
	}

	e1, e2 := SelectElites(scores)
	elite1, elite2 := pop[e1].Clone(), pop[e2].Clone()

	p1, p2 := SelectParents(d.rng, scores)
	c1, c2 := Crossover(d.rng, pop[p1].Trace, pop[p2].Trace, d.config.Crossover)

	Mutate(d.rng, pop, d.config.Mutation)

	working := removeIndices(pop, e1, e2)
	workingFitness := removeIndices(scores, e1, e2)

	culled := Roulette(d.rng, CullWeights(workingFitness), 2)
	survivors := removeIndices(working, culled...)

	next := make(Population, 0, len(pop))
	next = append(next, survivors...)
	next = append(next, elite1, elite2,
		Individual{ID: d.newID(), Trace: c1},
		Individual{ID: d.newID(), Trace: c2},
	)

	if len(next) != len(pop) {
		log.Printf("Generation %d: population size changed from %d to %d", gen, len(pop), len(next))
	}
	return next, nil
}

func (d *Driver) newID() int {
	id := d.nextID
	d.nextID++
	return id
}

// Prepare seeds a random source from config, builds the grid, creates the
// initial population and a driver that shares the same random source.
func Prepare(config *engine.RunConfig) (*engine.Grid, *Driver, Population, error) {
	if err := engine.ValidateRunConfig(config); err != nil {
		return nil, nil, nil, err
	}

	rng := rand.New(rand.NewSource(config.Seed))
	grid, err := engine.NewGrid(config.Size, config.Mode, rng)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to build grid: %w", err)
	}

	pop, err := InitialPopulation(grid, config.PopulationSize, rng)
	if err != nil {
		return nil, nil, nil, err
	}

	driver, err := NewDriver(grid, config, rng)
	if err != nil {
		return nil, nil, nil, err
	}
	return grid, driver, pop, nil
}

// Execute performs a complete run from a configuration. The grid is
// returned so callers can replay the best trace on it.
func Execute(ctx context.Context, config *engine.RunConfig, observer Observer) (*engine.Grid, *RunResult, error) {
	grid, driver, pop, err := Prepare(config)
	if err != nil {
		return nil, nil, err
	}
	driver.OnGeneration(observer)

	result, err := driver.Run(ctx, pop)
	return grid, result, err
}
