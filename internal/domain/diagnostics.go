package domain

import "time"

// DiagnosticStatus indicates whether a single startup check passed.
type DiagnosticStatus string

const (
	DiagnosticStatusPass DiagnosticStatus = "pass"
	DiagnosticStatusFail DiagnosticStatus = "fail"
)

// DiagnosticItem is one environment check result with optional hint.
type DiagnosticItem struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Status  DiagnosticStatus `json:"status"`
	Message string           `json:"message"`
	Hint    string           `json:"hint,omitempty"`
}

// DiagnosticReport aggregates environment checks for the API.
type DiagnosticReport struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	HasFailures bool             `json:"hasFailures"`
	Items       []DiagnosticItem `json:"items"`
}

// GPUInfo reports the first visible GPU; sizes are in GB.
type GPUInfo struct {
	Name        string  `json:"name"`
	VRAMTotal   float64 `json:"vram_total"`
	VRAMUsed    float64 `json:"vram_used"`
	VRAMFree    float64 `json:"vram_free"`
	CUDAVersion *string `json:"cuda_version"`
}
