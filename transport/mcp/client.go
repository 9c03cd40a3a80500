package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/gridworld-fuzzer/game/engine"
	"github.com/wricardo/gridworld-fuzzer/game/service"
)

// DefaultTimeout bounds synchronous runs started through the proxy
const DefaultTimeout = 2 * time.Minute

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Gridworld Trace Fuzzer",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Gridworld Trace Fuzzer - MCP Interface

This is a thin client that proxies all requests to the REST API server.

A run evolves move sequences (traces) on a square grid with a genetic
algorithm. Fitness rewards successful moves and reaching a goal, and
favours paths that skirt pits; the best trace of the last generation is
the run's answer.

AVAILABLE TOOLS:
- list_configs: List run presets
- start_run: Start a run from a preset, with optional overrides
- get_run: Status, board, fitness history and best trace of a run
- list_runs: All runs with status and best fitness
- replay_run: Play the best trace step by step on the run's board
- cancel_run: Stop a running job
- delete_run: Remove a run
- fuzzer_instructions: Board legend and fitness rules

Long runs should be started with async=true and polled with get_run.`),
	)

	// Register all tools
	c.registerTools()
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}

func numberProp(kind, description string) map[string]interface{} {
	return map[string]interface{}{"type": kind, "description": description}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	runID := map[string]interface{}{
		"run_id": stringProp("Run ID"),
	}

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_configs",
		Description: "List available run presets",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleListConfigs)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "start_run",
		Description: "Start a GA run from a preset; any parameter given overrides the preset",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"config_name":     stringProp("Preset ID from list_configs (optional)"),
				"size":            numberProp("integer", "Board side length (4-64)"),
				"seed":            numberProp("integer", "Random seed"),
				"generations":     numberProp("integer", "Number of generations (>= 1)"),
				"population_size": numberProp("integer", "Population size (>= 4)"),
				"crossover":       numberProp("number", "Crossover probability in [0,1]"),
				"mutation":        numberProp("number", "Mutation probability in [0,1]"),
				"mode": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"static", "player", "random"},
					"description": "Board construction mode",
				},
				"async": map[string]interface{}{
					"type":        "boolean",
					"description": "Return immediately and run in the background",
				},
			},
		},
	}, c.handleStartRun)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_run",
		Description: "Get the status, board, fitness history and best trace of a run",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: runID,
			Required:   []string{"run_id"},
		},
	}, c.handleGetRun)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_runs",
		Description: "List all runs",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"status": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"running", "completed", "failed", "cancelled"},
					"description": "Only list runs with this status",
				},
			},
		},
	}, c.handleListRuns)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "replay_run",
		Description: "Replay the best trace of a finished run move by move",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: runID,
			Required:   []string{"run_id"},
		},
	}, c.handleReplayRun)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "cancel_run",
		Description: "Cancel a running job",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: runID,
			Required:   []string{"run_id"},
		},
	}, c.handleCancelRun)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "delete_run",
		Description: "Delete a run, cancelling it first if it is still running",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: runID,
			Required:   []string{"run_id"},
		},
	}, c.handleDeleteRun)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "fuzzer_instructions",
		Description: "Explain the board legend, moves and fitness scoring",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, c.handleInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

func requireRunID(request mcp.CallToolRequest) (string, *mcp.CallToolResult) {
	id, _ := arguments(request)["run_id"].(string)
	if id == "" {
		return "", mcp.NewToolResultError("run_id is required")
	}
	return id, nil
}

// intArg reads a JSON number argument as an int pointer
func intArg(args map[string]interface{}, key string) *int {
	v, ok := args[key].(float64)
	if !ok {
		return nil
	}
	n := int(v)
	return &n
}

func floatArg(args map[string]interface{}, key string) *float64 {
	v, ok := args[key].(float64)
	if !ok {
		return nil
	}
	return &v
}

func (c *Client) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var configs []service.ConfigInfo
	if err := c.apiCall(ctx, "GET", "/api/configs", nil, &configs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatConfigs(configs)), nil
}

func (c *Client) handleStartRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)

	req := service.StartRunRequest{}
	req.ConfigName, _ = args["config_name"].(string)
	req.Async, _ = args["async"].(bool)

	overrides := &service.RunOverrides{
		Size:           intArg(args, "size"),
		Generations:    intArg(args, "generations"),
		PopulationSize: intArg(args, "population_size"),
		Crossover:      floatArg(args, "crossover"),
		Mutation:       floatArg(args, "mutation"),
	}
	if seed := intArg(args, "seed"); seed != nil {
		s := int64(*seed)
		overrides.Seed = &s
	}
	if mode, ok := args["mode"].(string); ok && mode != "" {
		m := engine.Mode(mode)
		overrides.Mode = &m
	}
	if *overrides != (service.RunOverrides{}) {
		req.Overrides = overrides
	}

	var info service.RunInfo
	if err := c.apiCall(ctx, "POST", "/api/runs", req, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRunInfo(&info)), nil
}

func (c *Client) handleGetRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := requireRunID(request)
	if errResult != nil {
		return errResult, nil
	}

	var info service.RunInfo
	if err := c.apiCall(ctx, "GET", "/api/runs/"+url.PathEscape(id)+"?summary=true", nil, &info); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatRunInfo(&info)), nil
}

func (c *Client) handleListRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := "/api/runs?order=asc"
	if status, _ := arguments(request)["status"].(string); status != "" {
		path += "&status=" + url.QueryEscape(status)
	}

	var resp struct {
		Runs []service.RunInfo `json:"runs"`
	}
	if err := c.apiCall(ctx, "GET", path, nil, &resp); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if len(resp.Runs) == 0 {
		return mcp.NewToolResultText("No runs."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Runs (%d):\n\n", len(resp.Runs))
	for _, run := range resp.Runs {
		fmt.Fprintf(&b, "• %s [%s] config=%s gen %d/%d best=%g trace=%s\n",
			run.ID, run.Status, run.ConfigName, run.Generation, run.Generations, run.BestFitness, orDash(run.BestTrace))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleReplayRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := requireRunID(request)
	if errResult != nil {
		return errResult, nil
	}

	var replay service.ReplayResult
	if err := c.apiCall(ctx, "GET", "/api/runs/"+url.PathEscape(id)+"/replay", nil, &replay); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatReplay(&replay)), nil
}

func (c *Client) handleCancelRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := requireRunID(request)
	if errResult != nil {
		return errResult, nil
	}

	if err := c.apiCall(ctx, "POST", "/api/runs/"+url.PathEscape(id)+"/cancel", nil, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Run %s is being cancelled", id)), nil
}

func (c *Client) handleDeleteRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := requireRunID(request)
	if errResult != nil {
		return errResult, nil
	}

	if err := c.apiCall(ctx, "DELETE", "/api/runs/"+url.PathEscape(id), nil, nil); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Run %s deleted", id)), nil
}

func (c *Client) handleInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(instructions), nil
}

const instructions = `Gridworld Trace Fuzzer - Instructions

BOARD LEGEND:
  P  player
  G  goal
  O  pit (static boards)      -  pit (random boards)
  X  wall (static boards)     W  wall (random boards)
  S  start of the path        *  path
  X  path step inside a pit   $  path step on a goal

Rows are printed top to bottom, one bracketed row per line.

MOVES:
  u/up  d/down  l/left  r/right
A move off the board or into a wall fails and the player stays put.
Pits can be entered. A trace stops at the first goal it reaches.

FITNESS (higher is better):
  base      1 per successful move
  boundary  successful moves that end next to a pit
  hazard    moves that end inside a pit, blocked ones included
  ratio     boundary / hazard, or boundary when no pit was entered
  bonus     size * size when a goal is reached, 1 otherwise
  fitness = base + ratio + bonus

MODES:
  static  fixed 4x4 board with the player top right
  player  static pieces, player dropped on a random free cell
  random  random player, goal, walls and pits on an NxN board

RUN FLOW:
1. list_configs to pick a preset
2. start_run (async=true for long runs)
3. get_run until status is completed
4. replay_run to see the best trace move by move`

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatConfigs(configs []service.ConfigInfo) string {
	if len(configs) == 0 {
		return "No configurations available."
	}

	var b strings.Builder
	b.WriteString("Available Configurations:\n\n")
	for _, config := range configs {
		fmt.Fprintf(&b, "• %s (%s)\n  %s\n  Board: %dx%d %s, population %d, %d generations\n\n",
			config.ConfigID, config.Name, config.Description,
			config.Size, config.Size, config.Mode, config.PopulationSize, config.Generations)
	}
	return b.String()
}

func formatRunInfo(info *service.RunInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s\nConfig: %s\nStatus: %s\n", info.ID, info.ConfigName, info.Status)
	if info.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", info.Error)
	}
	fmt.Fprintf(&b, "Generation: %d/%d\n", info.Generation, info.Generations)

	if len(info.Board) > 0 {
		b.WriteString("\nBoard:\n")
		for _, row := range info.Board {
			b.WriteString(row)
			b.WriteByte('\n')
		}
	}

	if info.Generation > 0 {
		fmt.Fprintf(&b, "\nBest fitness: %g\n", info.BestFitness)
	}
	if info.BestTrace != "" {
		fmt.Fprintf(&b, "Best trace: %s\n", info.BestTrace)
	}
	if t := info.BestTrial; t != nil {
		fmt.Fprintf(&b, "Reached goal: %v, pit entries: %d, blocked moves: %d\n",
			t.ReachedGoal, t.HazardEntries, t.IllegalMoves)
	}

	if n := len(info.History); n > 0 {
		b.WriteString("\nGeneration      max      avg      min\n")
		start := 0
		if n > 10 {
			start = n - 10
			fmt.Fprintf(&b, "(last 10 of %d)\n", n)
		}
		for _, s := range info.History[start:] {
			fmt.Fprintf(&b, "%10d %8.3f %8.3f %8.3f\n", s.Generation, s.Max, s.Average, s.Min)
		}
	}
	return b.String()
}

func formatReplay(replay *service.ReplayResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Replay of run %s\nTrace: %s\n\n", replay.RunID, orDash(replay.Trace))

	for _, step := range replay.Steps {
		status := "✓"
		if !step.Success {
			status = "✗ blocked"
		}
		fmt.Fprintf(&b, "%3d. %-5s (%d,%d)->(%d,%d) %s", step.Idx, step.Dir,
			step.From.Row, step.From.Col, step.To.Row, step.To.Col, status)
		if step.Pit {
			b.WriteString(" [pit]")
		}
		if step.Goal {
			b.WriteString(" [goal]")
		}
		b.WriteByte('\n')
	}

	if replay.ReachedGoal {
		fmt.Fprintf(&b, "\n🎉 Goal reached after %d moves\n", len(replay.Steps))
	} else {
		b.WriteString("\nGoal not reached\n")
	}
	fmt.Fprintf(&b, "Fitness: %g\n", replay.Trial.Fitness)

	if len(replay.Board) > 0 {
		b.WriteString("\nFinal board:\n")
		b.WriteString(strings.Join(replay.Board, "\n"))
		b.WriteByte('\n')
	}
	return b.String()
}
