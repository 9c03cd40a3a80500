// Command analyze prints quick, human-readable heuristics about the run
// presets in the project's configs directory. For each preset it builds the
// board exactly as a run would, then reports piece counts, the nearest goal,
// the depth-first seed found for every direction preference and how the
// initial population scores.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/wricardo/gridworld-fuzzer/game/engine"
	"github.com/wricardo/gridworld-fuzzer/game/evolve"
	"github.com/wricardo/gridworld-fuzzer/game/fitness"
	"github.com/wricardo/gridworld-fuzzer/game/search"
)

// SeedReport is the outcome of one directional search
type SeedReport struct {
	Preference engine.Direction
	Trace      []engine.Direction
	Trial      fitness.TrialResult
	Err        error
}

// Analysis summarizes a preset's board and starting population
type Analysis struct {
	Config       *engine.RunConfig
	Board        string
	Walls        int
	Pits         int
	Goals        int
	NearestGoal  engine.Position
	GoalDistance int
	Seeds        []SeedReport
	InitialBest  float64
	InitialMean  float64
}

// Reachable reports whether any directional search found a goal
func (a *Analysis) Reachable() bool {
	for _, s := range a.Seeds {
		if s.Err == nil {
			return true
		}
	}
	return false
}

func main() {
	configDir := "configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	files, err := filepath.Glob(filepath.Join(configDir, "*.json"))
	if err != nil {
		fmt.Printf("Error finding config files: %v\n", err)
		os.Exit(1)
	}
	sort.Strings(files)

	for _, configFile := range files {
		fmt.Printf("\n=== Analyzing %s ===\n", filepath.Base(configFile))
		analysis, err := analyzeConfig(configFile)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		printAnalysis(os.Stdout, analysis)
	}
}

// analyzeConfig loads a preset and builds its board and initial population
// with the preset's seed
func analyzeConfig(path string) (*Analysis, error) {
	config, err := engine.LoadRunConfig(path)
	if err != nil {
		return nil, err
	}

	grid, _, pop, err := evolve.Prepare(config)
	if err != nil {
		return nil, err
	}

	a := &Analysis{
		Config: config,
		Board:  grid.Render(),
		Walls:  len(grid.Walls()),
		Pits:   len(grid.Pits()),
		Goals:  len(grid.Goals()),
	}
	a.NearestGoal, a.GoalDistance, _ = engine.FindNearestGoal(grid)

	traces, errs := search.Seeds(grid)
	for i, pref := range search.SeedPreferences {
		report := SeedReport{Preference: pref, Trace: traces[i], Err: errs[i]}
		if errs[i] == nil {
			report.Trial = fitness.Evaluate(grid, traces[i])
		}
		a.Seeds = append(a.Seeds, report)
	}

	for i, ind := range pop {
		score := fitness.Evaluate(grid, ind.Trace).Fitness
		if i == 0 || score > a.InitialBest {
			a.InitialBest = score
		}
		a.InitialMean += score
	}
	if len(pop) > 0 {
		a.InitialMean /= float64(len(pop))
	}

	return a, nil
}

func printAnalysis(w io.Writer, a *Analysis) {
	c := a.Config
	fmt.Fprintf(w, "Name: %s\n", c.Name)
	fmt.Fprintf(w, "Board: %d x %d (%s, seed %d)\n", c.Size, c.Size, c.Mode, c.Seed)
	fmt.Fprintf(w, "Population: %d, Generations: %d, Crossover: %g, Mutation: %g\n",
		c.PopulationSize, c.Generations, c.Crossover, c.Mutation)
	fmt.Fprintln(w, a.Board)
	fmt.Fprintf(w, "Walls: %d  Pits: %d  Goals: %d\n", a.Walls, a.Pits, a.Goals)
	fmt.Fprintf(w, "Nearest goal: (%d, %d) at distance %d\n", a.NearestGoal.Row, a.NearestGoal.Col, a.GoalDistance)

	for _, s := range a.Seeds {
		if s.Err != nil {
			fmt.Fprintf(w, "  %-5s no path\n", s.Preference)
			continue
		}
		fmt.Fprintf(w, "  %-5s %3d moves  fitness %8.3f  %s\n",
			s.Preference, len(s.Trace), s.Trial.Fitness, engine.FormatTrace(s.Trace))
	}

	if a.Reachable() {
		fmt.Fprintf(w, "✅ Goal reachable from the start\n")
	} else {
		fmt.Fprintf(w, "⚠️  WARNING: no goal is reachable; every seed trace will be random\n")
	}
	fmt.Fprintf(w, "Initial population: best %.3f, mean %.3f\n", a.InitialBest, a.InitialMean)
}
