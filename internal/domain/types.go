package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobState tracks each stage of a single song generation job.
type JobState string

const (
	JobStatePreparing  JobState = "preparing"
	JobStateGenerating JobState = "generating"
	JobStateConverting JobState = "converting"
	JobStateDone       JobState = "done"
	JobStateError      JobState = "error"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobState) Terminal() bool {
	return s == JobStateDone || s == JobStateError
}

// StemType selects which mix the generator produces.
type StemType string

const (
	StemTypeFull     StemType = "full"
	StemTypeVocal    StemType = "vocal"
	StemTypeBGM      StemType = "bgm"
	StemTypeSeparate StemType = "separate"
)

// Valid reports whether s is one of the supported stem types.
func (s StemType) Valid() bool {
	switch s {
	case StemTypeFull, StemTypeVocal, StemTypeBGM, StemTypeSeparate:
		return true
	default:
		return false
	}
}

// ParseStemType maps raw input to a stem type, defaulting blank input to full.
func ParseStemType(raw string) (StemType, error) {
	value := StemType(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return StemTypeFull, nil
	}
	if !value.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStemType, raw)
	}
	return value, nil
}

// ErrInvalidStemType is returned for stem types outside the closed set.
var ErrInvalidStemType = errors.New("invalid stem type")

// ErrInvalidInput marks a generation request that failed validation.
var ErrInvalidInput = errors.New("invalid generation input")

// ErrInvalidSettings marks a settings update that failed validation.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings contains user-selectable runtime configuration.
type Settings struct {
	LowMem       bool   `json:"lowMem"`
	FlashAttn    bool   `json:"flashAttn"`
	OutputDir    string `json:"outputDir"`
	CurrentModel string `json:"currentModel"`
}

// GenerationInput is one immutable song generation request.
type GenerationInput struct {
	Lyrics            string
	Description       string
	StemType          StemType
	Title             string
	AutoStyle         string
	ReferenceAudio    []byte
	ReferenceFilename string
}

// HasReference reports whether a reference audio clip was uploaded.
func (in GenerationInput) HasReference() bool {
	return len(in.ReferenceAudio) > 0
}

// Validate checks required fields before a job is created.
func (in GenerationInput) Validate() error {
	if strings.TrimSpace(in.Lyrics) == "" {
		return fmt.Errorf("%w: lyrics are required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	if !in.StemType.Valid() {
		return fmt.Errorf("%w: unsupported stem type %q", ErrInvalidInput, in.StemType)
	}
	return nil
}

// Job stores one generation job identity and lifecycle state.
type Job struct {
	ID        string    `json:"id"`
	SongID    string    `json:"songId"`
	State     JobState  `json:"state"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ArtifactRole is the classified purpose of one generated audio file.
type ArtifactRole string

const (
	ArtifactRoleMain  ArtifactRole = "main"
	ArtifactRoleVocal ArtifactRole = "vocal"
	ArtifactRoleBGM   ArtifactRole = "bgm"
)

// Artifact is one raw generator output and its transcoded result.
type Artifact struct {
	RawPath     string       `json:"rawPath"`
	Role        ArtifactRole `json:"role"`
	EncodedPath string       `json:"encodedPath,omitempty"`
	Duration    float64      `json:"duration,omitempty"`
}

// SettingsUpdate is a partial settings change; nil fields are left as is.
type SettingsUpdate struct {
	LowMem    *bool   `json:"low_mem"`
	FlashAttn *bool   `json:"flash_attn"`
	OutputDir *string `json:"output_dir"`
}

// Apply copies the set fields onto s.
func (u SettingsUpdate) Apply(s *Settings) {
	if u.LowMem != nil {
		s.LowMem = *u.LowMem
	}
	if u.FlashAttn != nil {
		s.FlashAttn = *u.FlashAttn
	}
	if u.OutputDir != nil {
		s.OutputDir = *u.OutputDir
	}
}
