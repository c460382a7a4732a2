package domain

// ModelOption describes one downloadable SongGeneration checkpoint.
type ModelOption struct {
	ID          string `json:"id"`
	Repo        string `json:"repo"`
	SizeLabel   string `json:"sizeLabel,omitempty"`
	Description string `json:"description,omitempty"`
	Installed   bool   `json:"installed"`
	LocalPath   string `json:"localPath,omitempty"`
}

// SetupStatus summarizes what is installed for generation.
type SetupStatus struct {
	Installed        bool     `json:"installed"`
	Models           []string `json:"models"`
	CurrentModel     *string  `json:"current_model"`
	RuntimeInstalled bool     `json:"runtime_installed"`

	Available []ModelOption `json:"available"`
}
