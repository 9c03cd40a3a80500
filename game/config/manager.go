package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/wricardo/gridworld-fuzzer/game/engine"
	"github.com/wricardo/gridworld-fuzzer/game/service"
)

var (
	ErrConfigNotFound    = service.ErrConfigNotFound
	ErrInvalidConfig     = engine.ErrInvalidConfig
	ErrInvalidConfigName = fmt.Errorf("%w: bad configuration name", engine.ErrInvalidConfig)
)

// DefaultConfigName is the preset used when a run names none
const DefaultConfigName = "classic"

// Manager handles run preset loading and caching
type Manager struct {
	configDir     string
	defaultConfig *engine.RunConfig
	configs       map[string]*engine.RunConfig
	mu            sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager(configDir string) (*Manager, error) {
	// Ensure config directory exists
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}

	m := &Manager{
		configDir: configDir,
		configs:   make(map[string]*engine.RunConfig),
	}

	m.loadDefaultConfig()
	return m, nil
}

// LoadConfig loads a preset by name. The returned config is a copy and may
// be modified by the caller.
func (m *Manager) LoadConfig(name string) (*engine.RunConfig, error) {
	name = strings.TrimSuffix(name, ".json")
	if err := validateName(name); err != nil {
		return nil, err
	}

	m.mu.RLock()
	// Check cache first
	if config, exists := m.configs[name]; exists {
		m.mu.RUnlock()
		return copyConfig(config), nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if config, exists := m.configs[name]; exists {
		return copyConfig(config), nil
	}

	configPath := filepath.Join(m.configDir, name+".json")
	if _, err := os.Stat(configPath); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := engine.LoadRunConfig(configPath)
	if err != nil {
		return nil, err
	}
	if config.Name == "" {
		config.Name = name
	}

	m.configs[name] = config
	return copyConfig(config), nil
}

// ListConfigs returns information about all valid presets, sorted by ID
func (m *Manager) ListConfigs() ([]*service.ConfigInfo, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var configs []*service.ConfigInfo

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), ".json")

		config, err := m.LoadConfig(name)
		if err != nil {
			// Skip invalid configs
			continue
		}

		configs = append(configs, &service.ConfigInfo{
			Filename:       entry.Name(),
			ConfigID:       name, // This is the identifier to use when starting a run
			Name:           config.Name,
			Description:    config.Description,
			Size:           config.Size,
			Mode:           config.Mode,
			PopulationSize: config.PopulationSize,
			Generations:    config.Generations,
		})
	}

	sort.Slice(configs, func(i, j int) bool { return configs[i].ConfigID < configs[j].ConfigID })
	return configs, nil
}

// GetDefault returns a copy of the default configuration
func (m *Manager) GetDefault() *engine.RunConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyConfig(m.defaultConfig)
}

// SetDefault sets the default configuration by name
func (m *Manager) SetDefault(name string) error {
	config, err := m.LoadConfig(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultConfig = config
	return nil
}

// RefreshCache drops cached presets and reloads the default from disk
func (m *Manager) RefreshCache() {
	m.mu.Lock()
	m.configs = make(map[string]*engine.RunConfig)
	m.mu.Unlock()

	m.loadDefaultConfig()
}

// loadDefaultConfig picks classic, then the first valid preset, then the
// built-in defaults
func (m *Manager) loadDefaultConfig() {
	config, err := m.LoadConfig(DefaultConfigName)
	if err != nil {
		configs, listErr := m.ListConfigs()
		if listErr == nil && len(configs) > 0 {
			config, err = m.LoadConfig(configs[0].ConfigID)
		}
		if err != nil {
			config = engine.DefaultRunConfig()
		}
	}

	m.mu.Lock()
	m.defaultConfig = config
	m.mu.Unlock()
}

// SaveConfig validates and writes a preset to disk
func (m *Manager) SaveConfig(name string, config *engine.RunConfig) error {
	name = strings.TrimSuffix(name, ".json")
	if err := validateName(name); err != nil {
		return err
	}
	if err := engine.ValidateRunConfig(config); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	configPath := filepath.Join(m.configDir, name+".json")
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	m.mu.Lock()
	m.configs[name] = copyConfig(config)
	m.mu.Unlock()

	return nil
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidConfigName, name)
	}
	return nil
}

func copyConfig(config *engine.RunConfig) *engine.RunConfig {
	if config == nil {
		return nil
	}
	out := *config
	return &out
}
