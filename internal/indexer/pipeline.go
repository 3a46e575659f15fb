// Package indexer implements the write path: it turns logical snippets into
// chunked, embedded records in the vector store, coordinates cross-language
// translation indexing and maintains the example-question index used for
// hybrid search.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"snipsearch/internal/chunker"
	"snipsearch/internal/config"
	"snipsearch/internal/llm"
	"snipsearch/internal/snippet"
	"snipsearch/internal/storage"
)

// Store is the slice of the vector store the write path depends on.
type Store interface {
	UpsertChunks(ctx context.Context, chunks []*storage.ChunkRecord) error
	GetChunks(ctx context.Context, filter *storage.ChunkFilter) ([]storage.ChunkRecord, error)
	DeleteChunksByParent(ctx context.Context, parentID string) error
	UpsertQuestions(ctx context.Context, questions []*storage.QuestionRecord) error
	GetQuestionsBySnippet(ctx context.Context, snippetID string) ([]storage.QuestionRecord, error)
	DeleteQuestionsBySnippet(ctx context.Context, snippetID string) error
}

// Embedder converts texts to vectors, order-preserving.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Item is one snippet to ingest.
type Item struct {
	Text     string
	Title    string
	Group    string
	Metadata *snippet.Metadata
}

// Service orchestrates snippet writes. A nil LLM provider disables
// translation indexing and language detection but never fails a write.
type Service struct {
	store              Store
	embedder           Embedder
	llm                llm.Provider
	chunkSize          int
	chunkOverlap       int
	targetLanguages    []string
	translationEnabled bool
	logger             *slog.Logger
}

// NewService creates the write-path service from its collaborators.
func NewService(store Store, embedder Embedder, provider llm.Provider, cfg *config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:              store,
		embedder:           embedder,
		llm:                provider,
		chunkSize:          cfg.Chunking.Size,
		chunkOverlap:       cfg.Chunking.Overlap,
		targetLanguages:    cfg.Translation.Languages,
		translationEnabled: cfg.Translation.Enabled,
		logger:             logger,
	}
}

// variant is one language projection of a snippet's text.
type variant struct {
	text          string
	lang          string
	isTranslation bool
	source        string // "original" or "generated"
}

// AddSnippets ingests a batch of snippets and returns their logical ids, in
// input order. Snippets with empty text are skipped. All chunk texts of the
// batch are embedded in a single call.
func (s *Service) AddSnippets(ctx context.Context, items []Item, skipTranslation bool) ([]string, error) {
	if len(items) == 0 {
		return nil, nil
	}
	enabled := s.translationActive(skipTranslation)
	coverage := newBatchCoverage()

	type pending struct {
		parentID string
		item     Item
	}
	var parentIDs []string
	var records []*storage.ChunkRecord
	var withQuestions []pending

	for _, it := range items {
		text := strings.TrimSpace(it.Text)
		if text == "" {
			continue
		}
		parentID := uuid.New().String()
		parentIDs = append(parentIDs, parentID)

		variants := s.planVariants(ctx, parentID, it.Title, text, it.Metadata, coverage, enabled)
		records = append(records, s.chunkVariants(parentID, it.Title, it.Group, it.Metadata, variants)...)

		if it.Metadata != nil && len(it.Metadata.ExampleQuestions) > 0 {
			withQuestions = append(withQuestions, pending{parentID, it})
		}
	}
	if len(records) == 0 {
		return nil, nil
	}

	if err := s.embedAndStore(ctx, records); err != nil {
		return nil, err
	}

	for _, p := range withQuestions {
		if err := s.reindexQuestions(ctx, p.parentID, p.item.Title, p.item.Group, p.item.Metadata.ExampleQuestions); err != nil {
			return nil, err
		}
	}
	return parentIDs, nil
}

// UpdateSnippet replaces a logical snippet wholesale: all existing chunks
// (original and translations) and example questions are removed, then the
// full write path runs with the new content. The delete is best-effort so a
// partially missing snippet can still be recreated.
func (s *Service) UpdateSnippet(ctx context.Context, id, text, title string, meta *snippet.Metadata, group string, skipTranslation bool) error {
	if err := s.store.DeleteChunksByParent(ctx, id); err != nil {
		s.logger.Warn("Failed to delete existing chunks before update", "snippet", id, "error", err)
	}
	if err := s.store.DeleteQuestionsBySnippet(ctx, id); err != nil {
		s.logger.Warn("Failed to delete existing example questions before update", "snippet", id, "error", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	enabled := s.translationActive(skipTranslation)
	variants := s.planVariants(ctx, id, title, text, meta, newBatchCoverage(), enabled)
	records := s.chunkVariants(id, title, group, meta, variants)

	if err := s.embedAndStore(ctx, records); err != nil {
		return err
	}

	if meta != nil && len(meta.ExampleQuestions) > 0 {
		return s.reindexQuestions(ctx, id, title, group, meta.ExampleQuestions)
	}
	return nil
}

// DeleteSnippet removes all chunks and example questions of a logical
// snippet. Deleting an unknown id succeeds.
func (s *Service) DeleteSnippet(ctx context.Context, id string) error {
	if err := s.store.DeleteChunksByParent(ctx, id); err != nil {
		return err
	}
	return s.store.DeleteQuestionsBySnippet(ctx, id)
}

func (s *Service) translationActive(skipTranslation bool) bool {
	return s.translationEnabled && !skipTranslation && s.llm != nil
}

// resolveLanguage determines a snippet's own language: explicit metadata
// value, else detection, else "en".
func (s *Service) resolveLanguage(ctx context.Context, text string, meta *snippet.Metadata, detect bool) string {
	if meta != nil && meta.Language != "" {
		return meta.Language
	}
	if detect && s.llm != nil {
		lang, err := s.llm.DetectLanguage(ctx, text)
		if err != nil {
			s.logger.Warn("Language detection failed, assuming English", "error", err)
			return "en"
		}
		if lang != "" {
			return lang
		}
	}
	return "en"
}

// planVariants computes the language variants to index for one snippet: the
// original text plus generated translations for exactly the target languages
// not already covered by the snippet itself, its linked siblings, or earlier
// siblings in the same batch. Failed translations are logged and dropped.
func (s *Service) planVariants(ctx context.Context, id, title, text string, meta *snippet.Metadata, coverage *batchCoverage, enabled bool) []variant {
	origLang := s.resolveLanguage(ctx, text, meta, enabled)

	covered := map[string]bool{origLang: true}
	var key string
	if meta != nil && len(meta.LinkedSnippets) > 0 {
		for lang := range snippet.LinkedLanguages(meta.LinkedSnippets) {
			covered[lang] = true
		}
		key = coverageKey(title, meta.LinkedSnippets)
		for lang := range coverage.languages(key) {
			covered[lang] = true
		}
	}

	variants := []variant{{text: text, lang: origLang, source: "original"}}

	var missing []string
	for _, lang := range s.targetLanguages {
		if !covered[lang] {
			missing = append(missing, lang)
		}
	}

	if enabled && len(missing) > 0 {
		s.logger.Info("Generating translations",
			"snippet", id,
			"covered", snippet.SortedLanguages(covered),
			"missing", missing,
		)
		for _, lang := range missing {
			translated, err := s.llm.Translate(ctx, text, origLang, lang)
			if err != nil || translated == "" {
				s.logger.Warn("Translation failed, skipping language",
					"snippet", id, "language", lang, "error", err)
				continue
			}
			variants = append(variants, variant{text: translated, lang: lang, isTranslation: true, source: "generated"})
		}
	}

	if key != "" {
		generated := make(map[string]bool)
		for _, v := range variants {
			if v.isTranslation {
				generated[v.lang] = true
			}
		}
		coverage.record(key, covered, generated)
	}
	return variants
}

// chunkID derives the deterministic chunk id. A single-chunk original keeps
// the bare parent id; translations carry a "_tr_<lang>" infix; multi-chunk
// variants get a "_<index>" suffix.
func chunkID(parentID, lang string, isTranslation bool, index, total int) string {
	base := parentID
	if isTranslation {
		base = fmt.Sprintf("%s_tr_%s", parentID, lang)
	}
	if total == 1 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, index)
}

// chunkVariants splits every variant into windows and builds the chunk
// records, without embeddings yet.
func (s *Service) chunkVariants(parentID, title, group string, meta *snippet.Metadata, variants []variant) []*storage.ChunkRecord {
	origLang := variants[0].lang

	var records []*storage.ChunkRecord
	for _, v := range variants {
		chunks := chunker.Split(v.text, s.chunkSize, s.chunkOverlap)

		enriched := meta.Clone()
		enriched.Language = v.lang
		enriched.TranslationSource = v.source
		blob, err := json.Marshal(enriched)
		if err != nil {
			s.logger.Warn("Failed to serialize snippet metadata", "snippet", parentID, "error", err)
			blob = nil
		}

		for idx, text := range chunks {
			records = append(records, &storage.ChunkRecord{
				ChunkID:             chunkID(parentID, v.lang, v.isTranslation, idx, len(chunks)),
				ParentID:            parentID,
				ChunkIndex:          idx,
				Title:               title,
				Group:               group,
				OriginalLanguage:    origLang,
				TranslationLanguage: v.lang,
				IsTranslation:       v.isTranslation,
				MetadataJSON:        string(blob),
				Text:                text,
			})
		}
	}
	return records
}

// embedAndStore embeds all chunk texts in one batched call and upserts them.
func (s *Service) embedAndStore(ctx context.Context, records []*storage.ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(records) {
		return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(records))
	}
	for i, r := range records {
		r.Embedding = vectors[i]
	}
	if err := s.store.UpsertChunks(ctx, records); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}
	s.logger.Info("Indexed chunks", "count", len(records))
	return nil
}

// reindexQuestions replaces the example questions owned by a snippet id:
// previously indexed questions are removed, then the current list is embedded
// and stored.
func (s *Service) reindexQuestions(ctx context.Context, snippetID, title, group string, questions []string) error {
	if err := s.store.DeleteQuestionsBySnippet(ctx, snippetID); err != nil {
		s.logger.Warn("Failed to delete previous example questions", "snippet", snippetID, "error", err)
	}

	var clean []string
	for _, q := range questions {
		if t := strings.TrimSpace(q); t != "" {
			clean = append(clean, t)
		}
	}
	if len(clean) == 0 {
		return nil
	}

	vectors, err := s.embedder.Embed(ctx, clean)
	if err != nil {
		return fmt.Errorf("embed example questions: %w", err)
	}
	if len(vectors) != len(clean) {
		return fmt.Errorf("embedder returned %d vectors for %d questions", len(vectors), len(clean))
	}

	records := make([]*storage.QuestionRecord, len(clean))
	for i, q := range clean {
		records[i] = &storage.QuestionRecord{
			ID:            fmt.Sprintf("%s_eq_%d", snippetID, i),
			SnippetID:     snippetID,
			QuestionIndex: i,
			Title:         title,
			Group:         group,
			Question:      q,
			Embedding:     vectors[i],
		}
	}
	if err := s.store.UpsertQuestions(ctx, records); err != nil {
		return fmt.Errorf("store example questions: %w", err)
	}
	s.logger.Info("Indexed example questions", "snippet", snippetID, "count", len(records))
	return nil
}
