// Package config manages the JSON run presets used by the service layer.
//
// The config package handles:
//   - Loading presets from a directory of JSON files
//   - Validation through engine.ValidateRunConfig
//   - Default preset selection
//   - Preset discovery and listing
//
// Preset Format:
//
// Each file in the configs directory is one engine.RunConfig. Omitted
// fields take the command line defaults (static 4x4 board, population 4,
// one generation, crossover 0.7, mutation 0.1, seed 1).
//
//	{
//	  "name": "Random 12x12",
//	  "size": 12,
//	  "mode": "random",
//	  "population_size": 40,
//	  "generations": 200
//	}
//
// The file stem is the preset ID used by the API and CLI. When no preset is
// named, classic.json is used if present, otherwise the first valid preset,
// otherwise the built-in defaults.
//
// Usage:
//
//	manager, err := config.NewManager("configs")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	runConfig, err := manager.LoadConfig("random")
//	if err != nil {
//		log.Fatal(err)
//	}
package config
