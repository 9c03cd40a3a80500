// Package mcp exposes the fuzzer's REST API as Model Context Protocol tools.
//
// The client holds no run state of its own. Every tool call is translated
// into one request against a running API server and the JSON answer is
// rendered as text for the agent.
//
// MCP Tools:
//   - list_configs: List run presets
//   - start_run: Start a run, optionally async, with preset overrides
//   - get_run: Status, board, recent fitness history and best trace
//   - list_runs: All runs, optionally filtered by status
//   - replay_run: Step-by-step replay of the best trace
//   - cancel_run / delete_run: Stop or remove a run
//   - fuzzer_instructions: Board legend and scoring rules
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp
