package evolve

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/wricardo/gridworld-fuzzer/game/engine"
)

// MinWeight replaces non-positive or non-finite sampling weights so that
// every member keeps a small chance of being drawn.
const MinWeight = 1e-9

// clampWeights returns a copy of w with degenerate entries raised to MinWeight
func clampWeights(w []float64) []float64 {
	out := make([]float64, len(w))
	for i, v := range w {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < MinWeight {
			v = MinWeight
		}
		out[i] = v
	}
	return out
}

// spin draws one index with probability proportional to weights. Weights
// must already be clamped and non-empty.
func spin(rng *rand.Rand, weights []float64) int {
	r := rng.Float64() * floats.Sum(weights)
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r < acc {
			return i
		}
	}
	return len(weights) - 1
}

// Roulette draws k distinct indices, each draw proportional to the
// remaining weights. Indices refer to the original slice.
func Roulette(rng *rand.Rand, weights []float64, k int) []int {
	w := clampWeights(weights)
	idx := make([]int, len(w))
	for i := range idx {
		idx[i] = i
	}

	if k > len(w) {
		k = len(w)
	}
	picked := make([]int, 0, k)
	for len(picked) < k {
		j := spin(rng, w)
		picked = append(picked, idx[j])
		w = append(w[:j], w[j+1:]...)
		idx = append(idx[:j], idx[j+1:]...)
	}
	return picked
}

// SelectParents picks two distinct members weighted by fitness
func SelectParents(rng *rand.Rand, fitness []float64) (int, int) {
	picked := Roulette(rng, fitness, 2)
	return picked[0], picked[1]
}

// SelectElites returns the index of the fittest member and the index of the
// fittest among the rest. Ties go to the lower index.
func SelectElites(fitness []float64) (int, int) {
	first := floats.MaxIdx(fitness)
	rest := append([]float64(nil), fitness...)
	rest[first] = math.Inf(-1)
	return first, floats.MaxIdx(rest)
}

// CullWeights inverts fitness so weaker members weigh more:
// max(fitness) - f + 1.
func CullWeights(fitness []float64) []float64 {
	top := floats.Max(fitness)
	out := make([]float64, len(fitness))
	for i, f := range fitness {
		out[i] = top - f + 1
	}
	return out
}

// Crossover performs single point crossover at half the length of p1 with
// probability prob. Each tail stops one short of its donor's last move, so
// two length-6 parents give length-5 children. Without crossover the
// children are copies of the parents.
func Crossover(rng *rand.Rand, p1, p2 []engine.Direction, prob float64) ([]engine.Direction, []engine.Direction) {
	if rng.Float64() >= prob {
		return cloneTrace(p1), cloneTrace(p2)
	}

	half := len(p1) / 2
	c1 := concat(span(p1, 0, half), span(p2, half, len(p2)-1))
	c2 := concat(span(p2, 0, half), span(p1, half, len(p1)-1))
	return c1, c2
}

// span returns s[lo:hi] with both bounds clamped into [0, len(s)]; an
// inverted range is empty.
func span(s []engine.Direction, lo, hi int) []engine.Direction {
	clamp := func(v int) int {
		if v < 0 {
			return 0
		}
		if v > len(s) {
			return len(s)
		}
		return v
	}
	lo, hi = clamp(lo), clamp(hi)
	if hi <= lo {
		return nil
	}
	return s[lo:hi]
}

func concat(a, b []engine.Direction) []engine.Direction {
	out := make([]engine.Direction, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// Mutate visits every member and, with probability prob, inserts one random
// move at a uniform index in [0, len]. Per member the draws are: trigger,
// move, index. Members are modified in place.
func Mutate(rng *rand.Rand, pop Population, prob float64) int {
	mutated := 0
	for i := range pop {
		if rng.Float64() >= prob {
			continue
		}
		move := engine.Directions[rng.Intn(len(engine.Directions))]
		at := rng.Intn(len(pop[i].Trace) + 1)
		pop[i].Trace = insertAt(pop[i].Trace, at, move)
		mutated++
	}
	return mutated
}

func insertAt(t []engine.Direction, at int, d engine.Direction) []engine.Direction {
	out := make([]engine.Direction, 0, len(t)+1)
	out = append(out, t[:at]...)
	out = append(out, d)
	return append(out, t[at:]...)
}

// removeIndices returns s without the elements at the given indices
func removeIndices[T any](s []T, drop ...int) []T {
	skip := make(map[int]struct{}, len(drop))
	for _, i := range drop {
		skip[i] = struct{}{}
	}
	out := make([]T, 0, len(s))
	for i, v := range s {
		if _, ok := skip[i]; !ok {
			out = append(out, v)
		}
	}
	return out
}
