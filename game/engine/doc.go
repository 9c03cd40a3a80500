// Package engine provides the grid model the trace fuzzer evolves against.
//
// The engine package implements:
//   - Static, player-random and fully random board construction
//   - Move validation and single-step movement with path bookkeeping
//   - Goal, pit, wall and player membership queries
//   - Run configuration types and validation
//   - A plain text renderer for boards and traces
//
// Core Types:
//
// Grid holds exactly one player plus walls, pits, goals and path markers.
// Board is the read-only contract consumed by search and fitness code.
// RunConfig defines the parameters of one genetic algorithm run.
//
// Usage:
//
//	rng := rand.New(rand.NewSource(1))
//	grid, err := engine.NewGrid(8, engine.ModeRandom, rng)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Move the player; false means the move was blocked
//	moved := grid.ApplyMove(engine.Left)
//	fmt.Println(grid.Render())
//
// Board Rules:
//
// Moving into a wall or off the board fails and leaves the player in place.
// Pits are legal destinations but count against a trace's fitness. Every
// successful move leaves a path marker on the cell being vacated, so the
// board doubles as a record of the executed route. Evaluation code works on
// Clone()d boards so the canonical board is never modified.
package engine
