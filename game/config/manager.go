package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wricardo/dungeon-hub/game/room"
	"github.com/wricardo/dungeon-hub/game/service"
)

var (
	// ErrConfigNotFound is shared with the service layer so callers above
	// it can tell a missing profile from a broken one.
	ErrConfigNotFound = service.ErrConfigNotFound
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// DefaultProfile is the profile used for any room without its own file
const DefaultProfile = "hub"

// Manager handles room profile loading and caching
type Manager struct {
	configDir     string
	defaultConfig *room.Settings
	configs       map[string]*room.Settings
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
		configs:   make(map[string]*room.Settings),
	}

	m.loadDefaultConfig()
	return m, nil
}

// LoadConfig loads a profile by name. Fields missing from the file keep
// their default values.
func (m *Manager) LoadConfig(name string) (*room.Settings, error) {
	name = strings.TrimSuffix(name, ".json")
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return nil, ErrConfigNotFound
	}

	m.mu.RLock()
	// Check cache first
	if config, exists := m.configs[name]; exists {
		m.mu.RUnlock()
		return copySettings(config), nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if config, exists := m.configs[name]; exists {
		return copySettings(config), nil
	}

	data, err := os.ReadFile(filepath.Join(m.configDir, name+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := decodeSettings(data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidConfig, name, err)
	}

	if err := room.ValidateSettings(&config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	m.configs[name] = &config
	return copySettings(&config), nil
}

// ListConfigs returns information about all valid profiles
func (m *Manager) ListConfigs() ([]*service.ConfigInfo, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	configs := []*service.ConfigInfo{}

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
			Filename:    entry.Name(),
			ConfigID:    name,
			Name:        config.Name,
			Description: config.Description,
			MaxMembers:  config.MaxMembers,
			ChatHistory: config.ChatHistory,
		})
	}

	return configs, nil
}

// GetDefault returns the default profile
func (m *Manager) GetDefault() *room.Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copySettings(m.defaultConfig)
}

// Settings resolves the settings for a room: its own profile when one
// exists, the default profile otherwise. It satisfies room.SettingsFunc.
func (m *Manager) Settings(roomID string) room.Settings {
	if config, err := m.LoadConfig(roomID); err == nil {
		return *config
	}
	return *m.GetDefault()
}

// RefreshCache drops cached profiles so the next load reads from disk
func (m *Manager) RefreshCache() {
	m.mu.Lock()
	m.configs = make(map[string]*room.Settings)
	m.mu.Unlock()

	m.loadDefaultConfig()
}

// loadDefaultConfig picks hub.json, then the first valid profile, then the
// built-in defaults.
func (m *Manager) loadDefaultConfig() {
	config, err := m.LoadConfig(DefaultProfile)
	if err != nil {
		config = nil

		configs, listErr := m.ListConfigs()
		if listErr == nil && len(configs) > 0 {
			config, _ = m.LoadConfig(configs[0].ConfigID)
		}
	}

	if config == nil {
		settings := room.DefaultSettings()
		config = &settings
	}

	m.mu.Lock()
	m.defaultConfig = config
	m.mu.Unlock()
}

func copySettings(s *room.Settings) *room.Settings {
	out := *s
	return &out
}

// decodeSettings reads a profile over the built-in defaults. Unknown keys are
// rejected so a misspelled limit does not silently fall back to its default.
func decodeSettings(data []byte) (room.Settings, error) {
	settings := room.DefaultSettings()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&settings); err != nil {
		return room.Settings{}, err
	}
	return settings, nil
}
