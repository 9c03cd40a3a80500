// Package service provides the business logic layer for the gridworld trace fuzzer.
//
// The service package implements:
//   - Starting GA runs from presets with per-request overrides
//   - Synchronous and background execution with cancellation
//   - Live progress publishing for streaming transports
//   - Replay of a run's best trace and fitness history charts
//   - Configuration preset access
//
// Core Interfaces:
//
// RunService is the main service interface providing high-level run operations.
// RunStore handles run storage and lookup.
// ConfigManager manages run presets and validation.
// ProgressPublisher receives one event per evaluated generation.
//
// Architecture:
//
// The service layer sits between the transport layer (HTTP/WebSocket/MCP) and
// the GA packages (engine, search, fitness, evolve). Each run owns its grid,
// random source and driver, so runs never share mutable state. The stored
// record keeps the initial grid snapshot, which is enough to replay any trace
// later without re-seeding.
//
// Usage:
//
//	store := session.NewManager()
//	configMgr, _ := config.NewManager("configs")
//	runService := service.NewRunService(store, configMgr, hub)
//
//	// Run the classic preset with a larger population
//	size := 12
//	info, err := runService.StartRun(ctx, &service.StartRunRequest{
//		ConfigName: "classic",
//		Overrides:  &service.RunOverrides{PopulationSize: &size},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	replay, err := runService.Replay(ctx, info.ID)
package service
