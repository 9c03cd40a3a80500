package evolve

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// GenerationStats summarizes the fitness of one evaluated generation
type GenerationStats struct {
	Generation int     `json:"generation"`
	Max        float64 `json:"max"`
	Min        float64 `json:"min"`
	Average    float64 `json:"average"`
}

func computeStats(generation int, fitness []float64) GenerationStats {
	return GenerationStats{
		Generation: generation,
		Max:        floats.Max(fitness),
		Min:        floats.Min(fitness),
		Average:    stat.Mean(fitness, nil),
	}
}

// History is the per-generation record of a run
type History []GenerationStats

// Columns splits the history into parallel series, e.g. for plotting
func (h History) Columns() (gen, best, worst, avg []float64) {
	gen = make([]float64, len(h))
	best = make([]float64, len(h))
	worst = make([]float64, len(h))
	avg = make([]float64, len(h))
	for i, s := range h {
		gen[i] = float64(s.Generation)
		best[i] = s.Max
		worst[i] = s.Min
		avg[i] = s.Average
	}
	return gen, best, worst, avg
}

// Best returns the stats entry with the highest max fitness; the earliest
// generation wins ties.
func (h History) Best() (GenerationStats, bool) {
	if len(h) == 0 {
		return GenerationStats{}, false
	}
	_, best, _, _ := h.Columns()
	return h[floats.MaxIdx(best)], true
}
