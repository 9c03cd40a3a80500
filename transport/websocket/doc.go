// Package websocket streams GA run progress to browser and CLI clients.
//
// The websocket package implements:
//   - Run-scoped subscriptions (?run=<id>), or every run when no ID is given
//   - A generation event after each evaluated generation
//   - A run_complete event carrying the final run summary
//   - Connection lifecycle management with ping/pong keepalive
//
// Architecture:
//
// A central Hub owns all connections. Each client has a read goroutine and
// a write goroutine; the hub loop handles registration and fan-out. The
// Hub satisfies service.ProgressPublisher, so the run service publishes to
// it directly. Publishing never blocks the GA: if the hub falls behind,
// events are dropped.
//
// Message Protocol:
//
// Every frame is one JSON document:
//
//	{"run_id":"...","event":"generation","generation":{"generation":3,"max":21,"min":1,"average":8.5,"best_trace":"lll"}}
//	{"run_id":"...","event":"run_complete","run":{...}}
//
// Generation numbers are 0-based, matching the progress stored on the run.
//
// Usage:
//
//	hub := websocket.NewHub()
//	go hub.Run()
//	defer hub.Stop()
//
//	runs := service.NewRunService(store, configs, hub)
package websocket
