// Command gridworld-fuzzer evolves move traces for gridworld boards.
//
// It supports three modes:
//  1. default – runs one GA job in the terminal and prints the best trace
//  2. "serve" – runs the HTTP server exposing REST API, WebSocket, and an /mcp HTTP endpoint
//  3. "mcp" – runs an MCP stdio server and spins up an internal HTTP API if none is available
//
// Flags control the run parameters, host/port, config directory, run storage,
// debug logging, and optional ngrok tunneling for external access.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/gridworld-fuzzer/game/config"
	"github.com/wricardo/gridworld-fuzzer/game/engine"
	"github.com/wricardo/gridworld-fuzzer/game/evolve"
	"github.com/wricardo/gridworld-fuzzer/game/report"
)

// Version information
const (
	Version = "1.0.0"
	AppName = "Gridworld Trace Fuzzer"
)

// getConfigDirDefault returns the default configuration directory.
// It first honors the CONFIG_DIR environment variable, then falls back to "configs".
func getConfigDirDefault() string {
	if configDir := os.Getenv("CONFIG_DIR"); configDir != "" {
		return configDir
	}
	return "configs"
}

// main loads .env, builds the command tree and runs it
func main() {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// newApp builds the root command. The root action runs a single job and
// writes its report to out.
func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "gridworld-fuzzer",
		Usage:   "evolve move traces that reach a goal on a gridworld board",
		Version: Version,
		Writer:  out,
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "size", Value: 4, Usage: "board side length (min 4)"},
			&cli.Int64Flag{Name: "seed", Value: 1, Usage: "random seed"},
			&cli.IntFlag{Name: "generations", Value: 1, Usage: "number of generations to run"},
			&cli.FloatFlag{Name: "crossover", Value: 0.7, Usage: "crossover probability"},
			&cli.FloatFlag{Name: "mutation", Value: 0.1, Usage: "mutation probability"},
			&cli.IntFlag{Name: "pop-size", Value: 4, Usage: "population size (min 4)"},
			&cli.BoolFlag{Name: "random", Usage: "random board: player, goal, walls and pits placed at random"},
			&cli.BoolFlag{Name: "player-random", Usage: "static board with the player dropped on a random free cell"},
			&cli.IntFlag{Name: "workers", Usage: "parallel fitness workers (0 = GOMAXPROCS)"},
			&cli.StringFlag{Name: "preset", Usage: "start from a preset in the config directory"},
			&cli.StringFlag{Name: "config-dir", Value: getConfigDirDefault(), Usage: "directory containing run presets", Sources: cli.EnvVars("CONFIG_DIR")},
			&cli.BoolFlag{Name: "json", Usage: "print the result as JSON"},
			&cli.StringFlag{Name: "plot", Usage: "write a fitness-per-generation PNG to this path"},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
		},
		Before: setupLogging,
		Action: runAction,
		Commands: []*cli.Command{
			serveCommand(),
			mcpCommand(),
		},
	}
}

func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("debug") {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	} else {
		log.SetFlags(log.LstdFlags)
	}
	return ctx, nil
}

// buildRunConfig starts from the preset (or the defaults) and applies every
// flag the user set
func buildRunConfig(cmd *cli.Command) (*engine.RunConfig, error) {
	cfg := engine.DefaultRunConfig()

	if preset := cmd.String("preset"); preset != "" {
		manager, err := config.NewManager(cmd.String("config-dir"))
		if err != nil {
			return nil, err
		}
		cfg, err = manager.LoadConfig(preset)
		if err != nil {
			return nil, err
		}
	}

	if cmd.IsSet("size") {
		cfg.Size = cmd.Int("size")
	}
	if cmd.IsSet("seed") {
		cfg.Seed = cmd.Int64("seed")
	}
	if cmd.IsSet("generations") {
		cfg.Generations = cmd.Int("generations")
	}
	if cmd.IsSet("crossover") {
		cfg.Crossover = cmd.Float("crossover")
	}
	if cmd.IsSet("mutation") {
		cfg.Mutation = cmd.Float("mutation")
	}
	if cmd.IsSet("pop-size") {
		cfg.PopulationSize = cmd.Int("pop-size")
	}
	if cmd.IsSet("workers") {
		cfg.Workers = cmd.Int("workers")
	}

	switch {
	case cmd.Bool("random") && cmd.Bool("player-random"):
		return nil, fmt.Errorf("%w: --random and --player-random are mutually exclusive", engine.ErrInvalidConfig)
	case cmd.Bool("random"):
		cfg.Mode = engine.ModeRandom
	case cmd.Bool("player-random"):
		cfg.Mode = engine.ModePlayer
	}

	if err := engine.ValidateRunConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := buildRunConfig(cmd)
	if err != nil {
		return cli.Exit(fmt.Sprintf("configuration error: %v", err), 2)
	}

	return runJob(ctx, cmd.Root().Writer, cfg, cmd.Bool("json"), cmd.String("plot"))
}

// runOutput is the --json form of a finished job
type runOutput struct {
	Config *engine.RunConfig `json:"config"`
	Board  []string          `json:"board"`
	Result *evolve.RunResult `json:"result"`
	Final  []string          `json:"final_board"`
	Error  string            `json:"error,omitempty"`
}

// runJob executes one GA job and writes a text or JSON report to out. A
// cancelled job still reports the generations it finished.
func runJob(ctx context.Context, out io.Writer, cfg *engine.RunConfig, asJSON bool, plotPath string) error {
	grid, driver, pop, err := evolve.Prepare(cfg)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidConfig) {
			return cli.Exit(fmt.Sprintf("configuration error: %v", err), 2)
		}
		return err
	}

	if !asJSON {
		fmt.Fprintf(out, "%s v%s\n", AppName, Version)
		fmt.Fprintf(out, "Board %dx%d (%s), seed %d, population %d, %d generations\n\n",
			cfg.Size, cfg.Size, cfg.Mode, cfg.Seed, cfg.PopulationSize, cfg.Generations)
		fmt.Fprintln(out, grid.Render())
		fmt.Fprintln(out)

		driver.OnGeneration(func(rep evolve.GenerationReport) {
			fmt.Fprintf(out, "Generation %4d/%d  max %9.3f  avg %9.3f  min %9.3f  best %s\n",
				rep.Stats.Generation+1, rep.Total, rep.Stats.Max, rep.Stats.Average, rep.Stats.Min,
				engine.FormatTrace(rep.BestTrace))
		})
	}

	result, runErr := driver.Run(ctx, pop)
	if result == nil {
		return runErr
	}

	final := replay(grid, result.BestTrace)

	if plotPath != "" && len(result.History) > 0 {
		title := fmt.Sprintf("%s (seed %d)", cfg.Name, cfg.Seed)
		if err := report.SavePlot(plotPath, result.History, title); err != nil {
			log.Printf("Warning: failed to write plot: %v", err)
		}
	}

	if asJSON {
		o := runOutput{
			Config: cfg,
			Board:  engine.RenderRows(grid.Snapshot()),
			Result: result,
			Final:  engine.RenderRows(final.Snapshot()),
		}
		if runErr != nil {
			o.Error = runErr.Error()
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(o); err != nil {
			return err
		}
		return runErr
	}

	trial := result.BestTrial
	fmt.Fprintf(out, "\nMax fitness: %g\n", result.BestFitness)
	fmt.Fprintf(out, "Best trace: %s\n", engine.FormatTrace(result.BestTrace))
	fmt.Fprintf(out, "Moves taken: %s\n", engine.FormatTrace(trial.Path))
	fmt.Fprintf(out, "Reached goal: %v  boundary states: %d  pit entries: %d  illegal moves: %d\n\n",
		trial.ReachedGoal, trial.BoundaryStates, trial.HazardEntries, trial.IllegalMoves)
	fmt.Fprintln(out, final.Render())

	if runErr != nil {
		fmt.Fprintf(out, "\nStopped after %d generations: %v\n", len(result.History), runErr)
	}
	return runErr
}

// replay plays trace on a copy of grid, stopping at the first goal, so the
// rendered board shows the path
func replay(grid *engine.Grid, trace []engine.Direction) *engine.Grid {
	play := grid.Clone()
	for _, d := range trace {
		play.ApplyMove(d)
		if play.IsGoal(play.PlayerPosition()) {
			break
		}
	}
	return play
}
