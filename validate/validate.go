// Command validate provides a small CLI that validates run preset JSON
// files in the ../configs directory. It checks:
//   - JSON structure, with unknown fields rejected
//   - A display name and a usable file name
//   - Run parameters (population, board size, generations, probabilities, mode)
//   - The board the preset's seed builds: at least one goal, and a warning
//     when no path reaches it (runs then start from random traces only)
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/wricardo/gridworld-fuzzer/game/engine"
	"github.com/wricardo/gridworld-fuzzer/game/evolve"
	"github.com/wricardo/gridworld-fuzzer/game/search"
)

var presetName = regexp.MustCompile(`^[a-z0-9_-]+\.json$`)

// ValidationResult captures the outcome of validating a single file.
// If Valid is true, Errors contains informational messages prefixed with
// "✓" and warnings prefixed with "⚠"; otherwise it accumulates the
// validation errors that were found.
type ValidationResult struct {
	File   string
	Valid  bool
	Errors []string
}

func (r *ValidationResult) fail(format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) warn(format string, args ...interface{}) {
	r.Errors = append(r.Errors, "⚠ "+fmt.Sprintf(format, args...))
}

func (r *ValidationResult) info(format string, args ...interface{}) {
	r.Errors = append(r.Errors, "✓ "+fmt.Sprintf(format, args...))
}

// validateConfig loads and validates a single preset file. Omitted fields
// take the command line defaults, as they do when the preset is loaded.
func validateConfig(filePath string) ValidationResult {
	result := ValidationResult{
		File:   filepath.Base(filePath),
		Valid:  true,
		Errors: []string{},
	}

	if !presetName.MatchString(result.File) {
		result.fail("File name must be lowercase letters, digits, '_' or '-' with a .json extension")
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		result.fail("Failed to read file: %v", err)
		return result
	}

	config := engine.DefaultRunConfig()
	config.Name = ""
	config.Description = ""

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(config); err != nil {
		result.fail("Invalid JSON: %v", err)
		return result
	}

	if strings.TrimSpace(config.Name) == "" {
		result.fail("Missing name")
	}

	if err := engine.ValidateRunConfig(config); err != nil {
		result.fail("%s", strings.TrimPrefix(err.Error(), engine.ErrInvalidConfig.Error()+": "))
		return result
	}

	board := validateBoard(config)
	if !board.Valid {
		result.Valid = false
	}
	result.Errors = append(result.Errors, board.Errors...)

	return result
}

// validateBoard builds the board the preset's seed produces and checks
// whether a goal can be reached from the start
func validateBoard(config *engine.RunConfig) ValidationResult {
	result := ValidationResult{Valid: true, Errors: []string{}}

	grid, _, _, err := evolve.Prepare(config)
	if err != nil {
		result.fail("Failed to build board: %v", err)
		return result
	}

	if len(grid.Goals()) == 0 {
		result.fail("Board has no goal")
		return result
	}

	traces, errs := search.Seeds(grid)
	shortest := -1
	for i, trace := range traces {
		if errs[i] != nil {
			if !errors.Is(errs[i], search.ErrNoPath) {
				result.fail("Search failed: %v", errs[i])
			}
			continue
		}
		if shortest == -1 || len(trace) < shortest {
			shortest = len(trace)
		}
	}

	result.info("%dx%d %s board, %d walls, %d pits, %d goals",
		config.Size, config.Size, config.Mode, len(grid.Walls()), len(grid.Pits()), len(grid.Goals()))
	if shortest == -1 {
		result.warn("No goal is reachable from the start with seed %d", config.Seed)
	} else {
		result.info("Goal reachable (shortest seed path: %d moves)", shortest)
	}
	return result
}

// main scans ../configs (or the directory given as the first argument) for
// *.json files and validates each one, printing a concise report and
// exiting with non-zero status if any are invalid.
func main() {
	configDir := "../configs"
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	files, err := filepath.Glob(filepath.Join(configDir, "*.json"))
	if err != nil {
		fmt.Printf("Error finding config files: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Printf("No presets found in %s\n", configDir)
		os.Exit(1)
	}

	allValid := true
	for _, file := range files {
		result := validateConfig(file)

		fmt.Printf("\n%s %s\n", strings.Repeat("=", 20), result.File)

		if result.Valid {
			fmt.Println("✅ VALID")
			for _, info := range result.Errors {
				fmt.Println("  " + info)
			}
		} else {
			fmt.Println("❌ INVALID")
			allValid = false
			for _, err := range result.Errors {
				if !strings.HasPrefix(err, "✓") {
					fmt.Println("  ❌ " + err)
				}
			}
		}
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 40))
	if allValid {
		fmt.Println("✅ All configurations are valid!")
	} else {
		fmt.Println("❌ Some configurations have errors")
		os.Exit(1)
	}
}
