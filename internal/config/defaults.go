package config

import (
	"path/filepath"

	"songgen-studio/internal/domain"
)

// DefaultSettings returns baseline user settings for first launch.
func DefaultSettings(dataDir string) domain.Settings {
	if dataDir == "" {
		dataDir = "data"
	}
	return domain.Settings{
		LowMem:    false,
		FlashAttn: true,
		OutputDir: filepath.Join(dataDir, "outputs"),
	}
}
