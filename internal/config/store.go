package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"songgen-studio/internal/domain"
)

// Setting keys understood by Store.Get.
const (
	KeyLowMem       = "lowMem"
	KeyFlashAttn    = "flashAttn"
	KeyOutputDir    = "outputDir"
	KeyCurrentModel = "currentModel"
)

// ErrUnknownSetting is returned by Get for keys outside the settings set.
var ErrUnknownSetting = errors.New("unknown setting")

// Store defines persistence operations for user settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// JSONStore persists settings in a single JSON file on disk. It is safe for
// concurrent use.
type JSONStore struct {
	path     string
	defaults domain.Settings
	mu       sync.RWMutex
}

// NewJSONStore creates a JSON-backed settings store.
func NewJSONStore(path string, defaults domain.Settings) *JSONStore {
	return &JSONStore{path: path, defaults: defaults}
}

// Load reads settings from disk or returns defaults when missing.
func (s *JSONStore) Load() (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load()
}

func (s *JSONStore) load() (domain.Settings, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s.defaults, nil
		}

		return domain.Settings{}, err
	}

	cfg := s.defaults
	if err := json.Unmarshal(data, &cfg); err != nil {
		return domain.Settings{}, err
	}

	return cfg, nil
}

// Save writes settings as indented JSON through a temp file and rename.
func (s *JSONStore) Save(cfg domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(cfg)
}

func (s *JSONStore) save(cfg domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Update applies fn to the current settings and saves the result atomically
// with respect to other Update and Save calls.
func (s *JSONStore) Update(fn func(*domain.Settings)) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.load()
	if err != nil {
		return domain.Settings{}, err
	}
	fn(&cfg)
	if err := s.save(cfg); err != nil {
		return domain.Settings{}, err
	}
	return cfg, nil
}

// Get returns one setting as a string.
func (s *JSONStore) Get(key string) (string, error) {
	cfg, err := s.Load()
	if err != nil {
		return "", err
	}

	switch key {
	case KeyLowMem:
		return strconv.FormatBool(cfg.LowMem), nil
	case KeyFlashAttn:
		return strconv.FormatBool(cfg.FlashAttn), nil
	case KeyOutputDir:
		return cfg.OutputDir, nil
	case KeyCurrentModel:
		return cfg.CurrentModel, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownSetting, key)
	}
}
