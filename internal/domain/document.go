package domain

// Sentinel tokens written by the cleaner in place of episode delimiters.
const (
	EpisodeStartToken = "[EPISODE_START]"
	EpisodeEndToken   = "[EPISODE_END]"
)

// CleaningConfig gates the individual cleaning steps. Each toggle controls exactly one step.
type CleaningConfig struct {
	PreserveSpeakerLabels    bool    `yaml:"preserve_speaker_labels" json:"preserve_speaker_labels" env:"PRESERVE_SPEAKERS"`
	PreserveTimestamps       bool    `yaml:"preserve_timestamps" json:"preserve_timestamps" env:"PRESERVE_TIMESTAMPS"`
	PreserveEpisodeStructure bool    `yaml:"preserve_episode_structure" json:"preserve_episode_structure" env:"PRESERVE_EPISODES"`
	AggressiveWhitespace     bool    `yaml:"aggressive_whitespace" json:"aggressive_whitespace" env:"AGGRESSIVE_WHITESPACE"`
	RemoveEmailHeaders       bool    `yaml:"remove_email_headers" json:"remove_email_headers" env:"REMOVE_EMAIL_HEADERS"`
	RemoveSignatures         bool    `yaml:"remove_signatures" json:"remove_signatures" env:"REMOVE_SIGNATURES"`
	MinConfidenceScore       float64 `yaml:"min_confidence_score" json:"min_confidence_score" env:"MIN_CONFIDENCE"`
}

// DefaultCleaningConfig favors aggressive cleaning but keeps episode structure.
func DefaultCleaningConfig() CleaningConfig {
	return CleaningConfig{
		PreserveSpeakerLabels:    false,
		PreserveTimestamps:       false,
		PreserveEpisodeStructure: true,
		AggressiveWhitespace:     true,
		RemoveEmailHeaders:       true,
		RemoveSignatures:         true,
		MinConfidenceScore:       0.7,
	}
}

// ChunkOptions overrides the pipeline defaults for a single document. Zero values keep the default.
type ChunkOptions struct {
	TargetSize int             `json:"target_size,omitempty"`
	Overlap    *int            `json:"overlap,omitempty"`
	Cleaning   *CleaningConfig `json:"cleaning,omitempty"`
}

// RawDocument is one ingestion request. It is never modified by the pipeline.
type RawDocument struct {
	ID          string        `json:"id"`
	Content     string        `json:"content"`
	ContentType string        `json:"content_type,omitempty"`
	Source      string        `json:"source,omitempty"`
	Options     *ChunkOptions `json:"options,omitempty"`
}
