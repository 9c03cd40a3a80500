// Command sweep starts one run per (seed, mutation) pair against a running
// fuzzer API server and prints a leaderboard of the results.
//
//	go run ./cmd/sweep --config random --seeds 1-20 --mutation 0.05,0.1,0.3
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/urfave/cli/v3"

	"github.com/wricardo/gridworld-fuzzer/game/service"
)

// Job is one point of the sweep
type Job struct {
	Seed     int64
	Mutation *float64
}

// Result is the outcome of one job
type Result struct {
	Job
	RunID       string
	BestFitness float64
	ReachedGoal bool
	Trace       string
	Err         error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand(os.Stdout).Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:   "sweep",
		Usage:  "run a seed and mutation sweep against the fuzzer API",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "http://localhost:8080", Usage: "API server URL", Sources: cli.EnvVars("FUZZER_API_URL")},
			&cli.StringFlag{Name: "config", Usage: "preset to start from (server default when empty)"},
			&cli.StringFlag{Name: "seeds", Value: "1-10", Usage: "seed range, e.g. 1-10 or 3,7,9"},
			&cli.StringFlag{Name: "mutation", Usage: "comma-separated mutation probabilities (preset value when empty)"},
			&cli.IntFlag{Name: "generations", Usage: "override generations"},
			&cli.IntFlag{Name: "pop-size", Usage: "override population size"},
			&cli.IntFlag{Name: "parallel", Value: 4, Usage: "concurrent runs"},
			&cli.IntFlag{Name: "top", Value: 10, Usage: "leaderboard rows to print"},
			&cli.DurationFlag{Name: "timeout", Value: 5 * time.Minute, Usage: "timeout per run"},
			&cli.BoolFlag{Name: "keep", Usage: "keep runs on the server instead of deleting them"},
			&cli.BoolFlag{Name: "replay", Usage: "print the replay of the winning run"},
			&cli.BoolFlag{Name: "v", Usage: "verbose output"},
		},
		Action: sweepAction,
	}
}

func sweepAction(ctx context.Context, cmd *cli.Command) error {
	seeds, err := parseSeeds(cmd.String("seeds"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	mutations, err := parseMutations(cmd.String("mutation"))
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	base := service.StartRunRequest{ConfigName: cmd.String("config")}
	overrides := &service.RunOverrides{}
	if cmd.IsSet("generations") {
		g := cmd.Int("generations")
		overrides.Generations = &g
	}
	if cmd.IsSet("pop-size") {
		p := cmd.Int("pop-size")
		overrides.PopulationSize = &p
	}
	base.Overrides = overrides

	out := cmd.Root().Writer
	client := NewClient(cmd.String("url"), cmd.Duration("timeout"))
	jobs := buildJobs(seeds, mutations)
	fmt.Fprintf(out, "Sweeping %d runs against %s\n", len(jobs), cmd.String("url"))

	results := runSweep(ctx, client, base, jobs, cmd.Int("parallel"), !cmd.Bool("keep"), cmd.Bool("v"))
	printLeaderboard(out, results, cmd.Int("top"))

	if len(results) == 0 || results[0].Err != nil {
		return cli.Exit("no run finished", 1)
	}

	if cmd.Bool("replay") {
		if !cmd.Bool("keep") {
			fmt.Fprintln(out, "\n--replay needs --keep; the winning run was deleted")
			return nil
		}
		replay, err := client.Replay(ctx, results[0].RunID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nReplay of %s (%s):\n", replay.RunID, replay.Trace)
		for _, row := range replay.Board {
			fmt.Fprintln(out, row)
		}
	}
	return nil
}

// parseSeeds accepts "a-b" ranges and comma-separated lists, or both
func parseSeeds(spec string) ([]int64, error) {
	var seeds []int64
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(part, "-"); ok && lo != "" {
			from, err1 := strconv.ParseInt(lo, 10, 64)
			to, err2 := strconv.ParseInt(hi, 10, 64)
			if err1 != nil || err2 != nil || to < from {
				return nil, fmt.Errorf("invalid seed range %q", part)
			}
			for s := from; s <= to; s++ {
				seeds = append(seeds, s)
			}
			continue
		}
		s, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid seed %q", part)
		}
		seeds = append(seeds, s)
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("no seeds in %q", spec)
	}
	return seeds, nil
}

func parseMutations(spec string) ([]*float64, error) {
	if strings.TrimSpace(spec) == "" {
		return []*float64{nil}, nil
	}
	var out []*float64
	for _, part := range strings.Split(spec, ",") {
		m, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || m < 0 || m > 1 {
			return nil, fmt.Errorf("invalid mutation probability %q", part)
		}
		out = append(out, &m)
	}
	return out, nil
}

func buildJobs(seeds []int64, mutations []*float64) []Job {
	jobs := make([]Job, 0, len(seeds)*len(mutations))
	for _, m := range mutations {
		for _, s := range seeds {
			jobs = append(jobs, Job{Seed: s, Mutation: m})
		}
	}
	return jobs
}

// runSweep runs the jobs with at most parallel in flight and returns the
// results best first; failed jobs sort last
func runSweep(ctx context.Context, client *Client, base service.StartRunRequest, jobs []Job, parallel int, cleanup, verbose bool) []Result {
	if parallel < 1 {
		parallel = 1
	}

	p := pool.NewWithResults[Result]().WithMaxGoroutines(parallel)
	for _, job := range jobs {
		p.Go(func() Result {
			res := runJob(ctx, client, base, job)
			if verbose {
				if res.Err != nil {
					log.Printf("seed %d: %v", job.Seed, res.Err)
				} else {
					log.Printf("seed %d: fitness %g", job.Seed, res.BestFitness)
				}
			}
			if cleanup && res.RunID != "" {
				if err := client.DeleteRun(ctx, res.RunID); err != nil {
					log.Printf("Warning: %v", err)
				}
			}
			return res
		})
	}
	results := p.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if (a.Err == nil) != (b.Err == nil) {
			return a.Err == nil
		}
		if a.BestFitness != b.BestFitness {
			return a.BestFitness > b.BestFitness
		}
		return a.Seed < b.Seed
	})
	return results
}

func runJob(ctx context.Context, client *Client, base service.StartRunRequest, job Job) Result {
	req := base
	overrides := service.RunOverrides{}
	if base.Overrides != nil {
		overrides = *base.Overrides
	}
	seed := job.Seed
	overrides.Seed = &seed
	if job.Mutation != nil {
		overrides.Mutation = job.Mutation
	}
	req.Overrides = &overrides

	res := Result{Job: job}
	info, err := client.StartRun(ctx, req)
	if err != nil {
		res.Err = err
		return res
	}

	res.RunID = info.ID
	res.BestFitness = info.BestFitness
	res.Trace = info.BestTrace
	if info.BestTrial != nil {
		res.ReachedGoal = info.BestTrial.ReachedGoal
	}
	if info.Status != service.StatusCompleted {
		res.Err = fmt.Errorf("run %s ended %s: %s", info.ID, info.Status, info.Error)
	}
	return res
}

func printLeaderboard(w io.Writer, results []Result, top int) {
	fmt.Fprintf(w, "\n%-4s %8s %8s %10s %5s  %s\n", "#", "seed", "mutation", "fitness", "goal", "trace")
	for i, r := range results {
		if top > 0 && i >= top {
			fmt.Fprintf(w, "... %d more\n", len(results)-top)
			break
		}
		mutation := "preset"
		if r.Mutation != nil {
			mutation = strconv.FormatFloat(*r.Mutation, 'g', -1, 64)
		}
		if r.Err != nil {
			fmt.Fprintf(w, "%-4d %8d %8s %10s %5s  %v\n", i+1, r.Seed, mutation, "-", "-", r.Err)
			continue
		}
		fmt.Fprintf(w, "%-4d %8d %8s %10.3f %5v  %s\n", i+1, r.Seed, mutation, r.BestFitness, r.ReachedGoal, r.Trace)
	}
}
