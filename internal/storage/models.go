package storage

// ChunkRecord is one embedded, stored unit of text belonging to a single
// logical snippet and language variant.
type ChunkRecord struct {
	// ChunkID is the deterministic string id derived from the parent id,
	// variant and chunk index (e.g. "abc", "abc_1", "abc_tr_de_0"). Qdrant
	// point ids are UUIDv5 hashes of this string; the string itself is kept
	// in the payload.
	ChunkID             string
	ParentID            string
	ChunkIndex          int
	Title               string
	Group               string
	OriginalLanguage    string
	TranslationLanguage string
	IsTranslation       bool
	// MetadataJSON is the serialized user metadata, enriched with the
	// variant language and translation provenance.
	MetadataJSON string
	Text         string
	Embedding    []float32
}

// ScoredChunk is a chunk search hit with its similarity distance.
type ScoredChunk struct {
	Chunk    ChunkRecord
	Distance float64
}

// QuestionRecord is one embedded example question owned by a snippet.
type QuestionRecord struct {
	ID            string // "<snippetID>_eq_<index>"
	SnippetID     string
	QuestionIndex int
	Title         string
	Group         string
	Question      string
	Embedding     []float32
}

// ScoredQuestion is an example-question search hit with its distance.
type ScoredQuestion struct {
	Question QuestionRecord
	Distance float64
}

// ChunkFilter restricts chunk searches and fetches. All populated fields are
// combined conjunctively; each field is an equality-in-set predicate.
type ChunkFilter struct {
	Groups    []string
	ParentIDs []string
	// Languages matches the chunk's variant language tag.
	Languages []string
}

// QuestionFilter restricts example-question searches.
type QuestionFilter struct {
	Groups     []string
	SnippetIDs []string
}
