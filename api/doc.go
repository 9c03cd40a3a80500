// Package api provides the HTTP REST API for the trace fuzzer.
//
// Endpoints:
//
// Runs:
//   - POST /api/runs - Start a run ({"config_name", "overrides", "async"})
//   - GET /api/runs - List runs (?status=, ?config=, ?order=asc|desc, ?limit=)
//   - GET /api/runs/{id} - Get a run with its result (?summary=true omits the population)
//   - DELETE /api/runs/{id} - Cancel if running, then delete
//   - POST /api/runs/{id}/cancel - Stop a running job
//   - GET /api/runs/{id}/replay - Replay the best trace move by move
//   - GET /api/runs/{id}/plot - Fitness history as PNG
//
// Configuration:
//   - GET /api/configs - List presets
//   - GET /api/configs/{name} - Get one preset
//   - POST /api/configs - Save a preset
//
// Live progress:
//   - GET /ws?run={id} - WebSocket stream of generation and run_complete events
//
// Request/Response Format:
//
// All endpoints except the plot accept and return JSON. A synchronous start
// returns 201 with the finished run; an async start (?async=true or
// "async": true) returns 202 immediately with status "running".
//
//	{
//	  "config_name": "random",
//	  "overrides": {"generations": 50, "mutation": 0.3},
//	  "async": true
//	}
//
// Error Handling:
//
// Errors are returned as {"error": "message"} with 404 for unknown runs or
// presets, 400 for invalid configurations, 409 when a run has no result yet
// or is not running, and 503 while the server shuts down.
package api
