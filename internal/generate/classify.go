package generate

import (
	"path/filepath"
	"strings"

	"songgen-studio/internal/domain"
)

// Classifier assigns an output role to one raw generator file.
type Classifier func(path string) domain.ArtifactRole

// Classify matches the lowercase base name without extension: "vocal" wins
// over "bgm" and "instrumental", anything else is the main mix.
func Classify(path string) domain.ArtifactRole {
	base := filepath.Base(path)
	stem := strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
	switch {
	case strings.Contains(stem, "vocal"):
		return domain.ArtifactRoleVocal
	case strings.Contains(stem, "bgm"), strings.Contains(stem, "instrumental"):
		return domain.ArtifactRoleBGM
	default:
		return domain.ArtifactRoleMain
	}
}
