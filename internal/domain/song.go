package domain

import "time"

// Song is one completed generation result stored in the catalog.
type Song struct {
	ID                 string    `gorm:"primaryKey;size:64" json:"id"`
	Title              string    `gorm:"size:255" json:"title"`
	CreatedAt          time.Time `gorm:"index" json:"created_at"`
	Lyrics             string    `gorm:"not null" json:"lyrics"`
	Description        string    `gorm:"not null" json:"description"`
	ReferenceAudioPath *string   `json:"reference_audio_path"`
	StemType           StemType  `gorm:"size:16;not null;default:full" json:"stem_type"`
	OutputPath         *string   `json:"output_path"`
	OutputVocalPath    *string   `json:"output_vocal_path"`
	OutputBgmPath      *string   `json:"output_bgm_path"`
	DurationSeconds    *float64  `gorm:"index" json:"duration_seconds"`
	ModelVersion       string    `gorm:"size:128" json:"model_version"`
}

// AudioPath returns the stored file for one output kind (full, vocal, bgm).
func (s Song) AudioPath(kind string) string {
	var p *string
	switch kind {
	case "vocal":
		p = s.OutputVocalPath
	case "bgm":
		p = s.OutputBgmPath
	default:
		p = s.OutputPath
	}
	if p == nil {
		return ""
	}
	return *p
}

// Files lists every file path the record references.
func (s Song) Files() []string {
	var files []string
	for _, p := range []*string{s.OutputPath, s.OutputVocalPath, s.OutputBgmPath, s.ReferenceAudioPath} {
		if p != nil && *p != "" {
			files = append(files, *p)
		}
	}
	return files
}
