package session

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wricardo/gridworld-fuzzer/game/service"
)

var (
	ErrRunNotFound      = service.ErrRunNotFound
	ErrRunAlreadyExists = errors.New("run already exists")
	ErrInvalidRunID     = errors.New("invalid run ID")
)

// interruptedError is recorded on runs that were still running when the
// process that owned them stopped.
const interruptedError = "run interrupted before completion"

// Manager keeps runs in memory and optionally mirrors them to a
// RunPersistence. It satisfies service.RunStore.
type Manager struct {
	runs        map[string]*service.Run
	persistence RunPersistence
	mu          sync.RWMutex
}

// NewManager creates a new in-memory run manager
func NewManager() *Manager {
	return &Manager{
		runs: make(map[string]*service.Run),
	}
}

// NewManagerWithPersistence creates a new run manager backed by persistence
func NewManagerWithPersistence(persistence RunPersistence) *Manager {
	return &Manager{
		runs:        make(map[string]*service.Run),
		persistence: persistence,
	}
}

// Create stores a new run. An empty ID is replaced with a random UUID.
func (m *Manager) Create(rec service.RunRecord) (*service.Run, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if err := validateID(rec.ID); err != nil {
		return nil, err
	}

	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.LastAccessedAt.IsZero() {
		rec.LastAccessedAt = now
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(rec.ID)
	if _, exists := m.runs[key]; exists {
		return nil, ErrRunAlreadyExists
	}

	run := service.NewRun(rec)
	m.runs[key] = run

	// Auto-save if persistence is enabled
	if m.persistence != nil {
		if err := m.persistence.Save(&rec); err != nil {
			log.Printf("Warning: failed to persist run %s: %v", rec.ID, err)
		}
	}

	return run, nil
}

// Get retrieves a run by ID (case-insensitive), falling back to persistence
func (m *Manager) Get(id string) (*service.Run, error) {
	key := strings.ToLower(id)

	m.mu.RLock()
	run, exists := m.runs[key]
	m.mu.RUnlock()

	if exists {
		return run, nil
	}

	if m.persistence != nil && m.persistence.Exists(id) {
		rec, err := m.persistence.Load(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load persisted run: %w", err)
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		// Another caller may have loaded it meanwhile
		if run, exists := m.runs[key]; exists {
			return run, nil
		}
		run = service.NewRun(restore(rec))
		m.runs[key] = run
		return run, nil
	}

	return nil, ErrRunNotFound
}

// List returns all runs held in memory
func (m *Manager) List() []*service.Run {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*service.Run, 0, len(m.runs))
	for _, run := range m.runs {
		result = append(result, run)
	}

	return result
}

// Delete removes a run from memory and persistence
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(id)
	_, inMemory := m.runs[key]
	delete(m.runs, key)

	if m.persistence != nil && m.persistence.Exists(id) {
		if err := m.persistence.Delete(id); err != nil {
			return fmt.Errorf("failed to delete persisted run: %w", err)
		}
		return nil
	}

	if !inMemory {
		return ErrRunNotFound
	}

	return nil
}

// DeleteFromMemory evicts a run from memory only
func (m *Manager) DeleteFromMemory(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(id)
	if _, exists := m.runs[key]; !exists {
		return ErrRunNotFound
	}
	delete(m.runs, key)
	return nil
}

// Save writes the current state of a run to persistence
func (m *Manager) Save(id string) error {
	if m.persistence == nil {
		return nil // No persistence configured
	}

	m.mu.RLock()
	run, exists := m.runs[strings.ToLower(id)]
	m.mu.RUnlock()
	if !exists {
		return ErrRunNotFound
	}

	rec := run.Record()
	return m.persistence.Save(&rec)
}

// CleanupExpired evicts finished runs that haven't been accessed within
// maxAge. Running jobs are never evicted. Persisted copies are kept.
func (m *Manager) CleanupExpired(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for key, run := range m.runs {
		rec := run.Record()
		if rec.Status == service.StatusRunning {
			continue
		}
		if rec.LastAccessedAt.Before(cutoff) {
			delete(m.runs, key)
			removed++
		}
	}

	return removed
}

// Count returns the number of runs held in memory
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runs)
}

// LoadPersisted loads all persisted runs into memory
func (m *Manager) LoadPersisted() error {
	if m.persistence == nil {
		return nil // No persistence configured
	}

	ids, err := m.persistence.ListAll()
	if err != nil {
		return fmt.Errorf("failed to list persisted runs: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loaded := 0
	for _, id := range ids {
		key := strings.ToLower(id)
		if _, exists := m.runs[key]; exists {
			continue
		}

		rec, err := m.persistence.Load(id)
		if err != nil {
			log.Printf("Warning: failed to load persisted run %s: %v", id, err)
			continue
		}

		m.runs[key] = service.NewRun(restore(rec))
		loaded++
	}

	if loaded > 0 {
		log.Printf("Loaded %d persisted runs from storage", loaded)
	}

	return nil
}

// SaveAll writes every in-memory run to persistence
func (m *Manager) SaveAll() error {
	if m.persistence == nil {
		return nil // No persistence configured
	}

	m.mu.RLock()
	runs := make([]*service.Run, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, run)
	}
	m.mu.RUnlock()

	errorCount := 0
	for _, run := range runs {
		rec := run.Record()
		if err := m.persistence.Save(&rec); err != nil {
			log.Printf("Warning: failed to save run %s: %v", rec.ID, err)
			errorCount++
		}
	}

	if errorCount > 0 {
		return fmt.Errorf("failed to save %d runs", errorCount)
	}

	return nil
}

// restore marks runs that were persisted mid-flight as failed; nothing in
// this process will ever finish them.
func restore(rec *service.RunRecord) service.RunRecord {
	out := *rec
	if out.Status == service.StatusRunning {
		out.Status = service.StatusFailed
		out.Error = interruptedError
	}
	return out
}

// validateID rejects IDs that cannot safely be used as storage keys
func validateID(id string) error {
	if id == "" || len(id) > 128 {
		return ErrInvalidRunID
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return ErrInvalidRunID
	}
	return nil
}
