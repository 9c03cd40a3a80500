package session

import (
	"github.com/wricardo/gridworld-fuzzer/game/service"
)

// RunPersistence defines the interface for persisting runs
type RunPersistence interface {
	// Save persists a run record, replacing any earlier version
	Save(rec *service.RunRecord) error

	// Load retrieves a run record from storage by ID
	Load(id string) (*service.RunRecord, error)

	// Delete removes a run from storage
	Delete(id string) error

	// ListAll returns all persisted run IDs
	ListAll() ([]string, error)

	// Exists checks if a run exists in storage
	Exists(id string) bool
}
