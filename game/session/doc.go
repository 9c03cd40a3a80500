// Package session stores GA runs for the service layer.
//
// The session package implements:
//   - A thread-safe in-memory run registry keyed by case-insensitive ID
//   - UUID run identifiers
//   - Pluggable persistence with JSON-file and SQLite backends
//   - Reloading of persisted runs at startup and eviction of idle ones
//
// Core Types:
//
// Manager satisfies service.RunStore and owns the *service.Run values.
// RunPersistence is the storage contract; FilePersistence writes one JSON
// document per run and SQLitePersistence keeps them in a single database.
//
// Usage:
//
//	store, err := session.NewSQLitePersistence(ctx, "runs.db")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	manager := session.NewManagerWithPersistence(store)
//	if err := manager.LoadPersisted(); err != nil {
//		log.Printf("load runs: %v", err)
//	}
//
// Runs found in storage with status "running" belonged to a process that
// has since exited; they are loaded as failed.
package session
