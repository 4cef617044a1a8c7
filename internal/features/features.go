// Package features provides feature flags for optional rendering of
// assistant answers.
package features

import (
	"errors"
	"sync"

	"github.com/wilbur182/datachat/internal/config"
)

// ErrNotInitialized is returned when the feature manager is not initialized.
var ErrNotInitialized = errors.New("feature manager not initialized")

// ErrUnknownFeature is returned when setting a flag nobody declared.
var ErrUnknownFeature = errors.New("unknown feature")

// Feature represents a known feature flag with its default value.
type Feature struct {
	Name        string
	Default     bool
	Description string
}

// Known feature flags.
var (
	// ShowReasoning renders the assistant's reasoning block above the answer.
	ShowReasoning = Feature{
		Name:        "show_reasoning",
		Default:     false,
		Description: "Render assistant reasoning above answers",
	}

	// SQLTraces renders the SQL executions attached to an answer.
	SQLTraces = Feature{
		Name:        "sql_traces",
		Default:     true,
		Description: "Render SQL execution traces below answers",
	}
)

var allFeatures = []Feature{
	ShowReasoning,
	SQLTraces,
}

var defaultValues = buildDefaultMap()

func buildDefaultMap() map[string]bool {
	m := make(map[string]bool, len(allFeatures))
	for _, f := range allFeatures {
		m[f.Name] = f.Default
	}
	return m
}

// IsKnownFeature returns true if the feature name is registered.
func IsKnownFeature(name string) bool {
	_, ok := defaultValues[name]
	return ok
}

// Manager handles feature flag state.
type Manager struct {
	mu        sync.RWMutex
	cfg       *config.Config
	overrides map[string]bool // CLI overrides take precedence
}

var globalManager *Manager

// Init initializes the feature manager with cfg. Called once at startup.
func Init(cfg *config.Config) {
	globalManager = &Manager{
		cfg:       cfg,
		overrides: make(map[string]bool),
	}
}

// UpdateConfig swaps the config after a hot reload, keeping CLI overrides.
func UpdateConfig(cfg *config.Config) {
	if globalManager == nil {
		Init(cfg)
		return
	}
	globalManager.mu.Lock()
	defer globalManager.mu.Unlock()
	globalManager.cfg = cfg
}

// SetOverride sets a CLI override for a feature flag.
func SetOverride(name string, enabled bool) {
	if globalManager == nil {
		return
	}
	globalManager.mu.Lock()
	defer globalManager.mu.Unlock()
	globalManager.overrides[name] = enabled
}

// IsEnabled checks if a feature is enabled.
// Priority: CLI override > config > default.
func IsEnabled(name string) bool {
	if globalManager == nil {
		return getDefault(name)
	}
	globalManager.mu.RLock()
	defer globalManager.mu.RUnlock()
	return isEnabledLocked(name)
}

func getDefault(name string) bool {
	if val, ok := defaultValues[name]; ok {
		return val
	}
	return false
}

func isEnabledLocked(name string) bool {
	if enabled, ok := globalManager.overrides[name]; ok {
		return enabled
	}
	if globalManager.cfg != nil && globalManager.cfg.Features.Flags != nil {
		if enabled, ok := globalManager.cfg.Features.Flags[name]; ok {
			return enabled
		}
	}
	return getDefault(name)
}

// List returns all known features with their current state.
func List() map[string]bool {
	result := make(map[string]bool, len(allFeatures))
	if globalManager == nil {
		for _, f := range allFeatures {
			result[f.Name] = getDefault(f.Name)
		}
		return result
	}
	globalManager.mu.RLock()
	defer globalManager.mu.RUnlock()
	for _, f := range allFeatures {
		result[f.Name] = isEnabledLocked(f.Name)
	}
	return result
}

// ListAll returns a copy of all known features.
func ListAll() []Feature {
	result := make([]Feature, len(allFeatures))
	copy(result, allFeatures)
	return result
}

// SetEnabled persists a flag to the config file and updates memory.
func SetEnabled(name string, enabled bool) error {
	if globalManager == nil {
		return ErrNotInitialized
	}
	if !IsKnownFeature(name) {
		return ErrUnknownFeature
	}

	globalManager.mu.Lock()
	defer globalManager.mu.Unlock()

	if err := config.SaveFeature(name, enabled); err != nil {
		return err
	}
	if globalManager.cfg != nil {
		if globalManager.cfg.Features.Flags == nil {
			globalManager.cfg.Features.Flags = make(map[string]bool)
		}
		globalManager.cfg.Features.Flags[name] = enabled
	}
	return nil
}
