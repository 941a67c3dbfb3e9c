package domain

// ChunkMetadata carries the descriptive fields attached by the enricher.
// Transcript-only fields stay zero for other formats.
type ChunkMetadata struct {
	Format           Format   `json:"format"`
	Confidence       float64  `json:"confidence"`
	StepsApplied     []string `json:"steps_applied,omitempty"`
	OriginalLength   int      `json:"original_length"`
	CleanedLength    int      `json:"cleaned_length"`
	ReductionPercent int      `json:"reduction_percent"`
	TokenCount       int      `json:"token_count"`
	Hash             string   `json:"hash"`
	StartOffset      int      `json:"start_offset"`
	EndOffset        int      `json:"end_offset"`
	OverlapPrefix    int      `json:"overlap_prefix"`

	SpeakerCount   int      `json:"speaker_count,omitempty"`
	TimestampCount int      `json:"timestamp_count,omitempty"`
	Speakers       []string `json:"speakers,omitempty"`
	TimestampStart *int     `json:"timestamp_start,omitempty"`
	TimestampEnd   *int     `json:"timestamp_end,omitempty"`
	EpisodeID      string   `json:"episode_id,omitempty"`

	Fallback      bool `json:"fallback,omitempty"`
	LowConfidence bool `json:"low_confidence,omitempty"`
}

// Chunk is the unit handed to the embedding and storage collaborators.
type Chunk struct {
	DocumentID      string        `json:"document_id"`
	Index           int           `json:"chunk_index"`
	TotalChunks     int           `json:"total_chunks"`
	Text            string        `json:"text"`
	Size            int           `json:"size"`
	OverlapSize     int           `json:"overlap_size"`
	SectionType     string        `json:"section_type"`
	ContentType     string        `json:"content_type"`
	ImportanceScore float64       `json:"importance_score"`
	Metadata        ChunkMetadata `json:"metadata"`
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}
