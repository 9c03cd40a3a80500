package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidConfig      = errors.New("invalid run configuration")
	ErrPopulationTooSmall = errors.New("population size must be at least 4")
)

// ValidateRunConfig validates a run configuration before any generation runs
func ValidateRunConfig(config *RunConfig) error {
	if config == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}

	if config.PopulationSize < MinPopulationSize {
		return fmt.Errorf("%w: %w (got %d)", ErrInvalidConfig, ErrPopulationTooSmall, config.PopulationSize)
	}
	if config.PopulationSize > MaxPopulationSize {
		return fmt.Errorf("%w: population_size must be at most %d, got %d", ErrInvalidConfig, MaxPopulationSize, config.PopulationSize)
	}

	if config.Size < MinGridSize || config.Size > MaxGridSize {
		return fmt.Errorf("%w: size must be between %d and %d, got %d", ErrInvalidConfig, MinGridSize, MaxGridSize, config.Size)
	}

	if config.Generations < 1 || config.Generations > MaxGenerations {
		return fmt.Errorf("%w: generations must be between 1 and %d, got %d", ErrInvalidConfig, MaxGenerations, config.Generations)
	}

	if config.Crossover < 0 || config.Crossover > 1 {
		return fmt.Errorf("%w: crossover must be a probability in [0,1], got %g", ErrInvalidConfig, config.Crossover)
	}
	if config.Mutation < 0 || config.Mutation > 1 {
		return fmt.Errorf("%w: mutation must be a probability in [0,1], got %g", ErrInvalidConfig, config.Mutation)
	}

	switch config.Mode {
	case ModeStatic, ModePlayer, ModeRandom:
	case "":
		return fmt.Errorf("%w: mode is required", ErrInvalidConfig)
	default:
		return fmt.Errorf("%w: unknown mode %q (want static, player or random)", ErrInvalidConfig, config.Mode)
	}

	if config.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0, got %d", ErrInvalidConfig, config.Workers)
	}

	return nil
}

// LoadRunConfig loads a run configuration from a JSON file
func LoadRunConfig(filename string) (*RunConfig, error) {
	// Support CONFIG_DIR environment variable for alternative config directory
	configPath := filename
	if configDir := os.Getenv("CONFIG_DIR"); configDir != "" {
		if strings.HasPrefix(filename, "configs/") {
			configPath = filepath.Join(configDir, strings.TrimPrefix(filename, "configs/"))
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	config := DefaultRunConfig()
	config.Name = ""
	config.Description = ""
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file '%s': %w", filename, err)
	}

	if err := ValidateRunConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}
