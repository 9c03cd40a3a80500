package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wricardo/gridworld-fuzzer/game/engine"
	"github.com/wricardo/gridworld-fuzzer/game/search"
)

func writePreset(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "preset.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write preset: %v", err)
	}
	return path
}

func TestAnalyzeConfig_Static(t *testing.T) {
	path := writePreset(t, `{"name":"Static","size":4,"seed":1,"generations":5,"population_size":6,"mode":"static"}`)

	a, err := analyzeConfig(path)
	if err != nil {
		t.Fatalf("analyzeConfig failed: %v", err)
	}

	if a.Walls != 1 || a.Pits != 1 || a.Goals != 1 {
		t.Errorf("Expected one wall, pit and goal, got %d %d %d", a.Walls, a.Pits, a.Goals)
	}
	if a.NearestGoal != (engine.Position{Row: 0, Col: 0}) || a.GoalDistance != 3 {
		t.Errorf("Expected goal (0,0) at distance 3, got %+v %d", a.NearestGoal, a.GoalDistance)
	}
	if len(a.Seeds) != len(search.SeedPreferences) {
		t.Fatalf("Expected %d seed reports, got %d", len(search.SeedPreferences), len(a.Seeds))
	}
	if !a.Reachable() {
		t.Fatal("Expected the static goal to be reachable")
	}
	for _, s := range a.Seeds {
		if s.Err == nil && !s.Trial.ReachedGoal {
			t.Errorf("Seed for %s should reach the goal, trial %+v", s.Preference, s.Trial)
		}
	}
	if a.InitialBest < a.InitialMean {
		t.Errorf("Best %.3f should not be below mean %.3f", a.InitialBest, a.InitialMean)
	}
}

func TestAnalyzeConfig_Deterministic(t *testing.T) {
	path := writePreset(t, `{"name":"Random","size":8,"seed":42,"generations":5,"population_size":8,"mode":"random"}`)

	first, err := analyzeConfig(path)
	if err != nil {
		t.Fatalf("analyzeConfig failed: %v", err)
	}
	second, err := analyzeConfig(path)
	if err != nil {
		t.Fatalf("analyzeConfig failed: %v", err)
	}

	if first.Board != second.Board || first.InitialMean != second.InitialMean {
		t.Error("Expected the same board and population for the same seed")
	}
}

func TestAnalyzeConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid JSON", `{"name":`},
		{"population too small", `{"name":"tiny","population_size":3}`},
		{"unknown mode", `{"name":"maze","population_size":4,"mode":"maze"}`},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := analyzeConfig(writePreset(t, test.content)); err == nil {
				t.Error("Expected error")
			}
		})
	}

	if _, err := analyzeConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestPrintAnalysis(t *testing.T) {
	path := writePreset(t, `{"name":"Static","size":4,"seed":1,"generations":5,"population_size":4,"mode":"static"}`)
	a, err := analyzeConfig(path)
	if err != nil {
		t.Fatalf("analyzeConfig failed: %v", err)
	}

	var out bytes.Buffer
	printAnalysis(&out, a)
	text := out.String()

	for _, want := range []string{
		"Name: Static",
		"Board: 4 x 4 (static, seed 1)",
		"[G O   P]",
		"Nearest goal: (0, 0) at distance 3",
		"Goal reachable",
		"Initial population: best",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in output:\n%s", want, text)
		}
	}
}

func TestPrintAnalysis_Unreachable(t *testing.T) {
	a := &Analysis{
		Config: engine.DefaultRunConfig(),
		Seeds: []SeedReport{
			{Preference: engine.Right, Err: search.ErrNoPath},
			{Preference: engine.Up, Err: search.ErrNoPath},
		},
	}
	if a.Reachable() {
		t.Fatal("Expected unreachable analysis")
	}

	var out bytes.Buffer
	printAnalysis(&out, a)
	if !strings.Contains(out.String(), "no goal is reachable") || !strings.Contains(out.String(), "right no path") {
		t.Errorf("Unexpected output:\n%s", out.String())
	}
}

func TestRepositoryPresets(t *testing.T) {
	files, _ := filepath.Glob(filepath.Join("..", "..", "configs", "*.json"))
	if len(files) == 0 {
		t.Skip("Skipping test - configs directory not found")
	}

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			if _, err := analyzeConfig(file); err != nil {
				t.Errorf("analyzeConfig failed: %v", err)
			}
		})
	}
}
