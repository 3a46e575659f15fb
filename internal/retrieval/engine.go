// Package retrieval implements the hybrid read path: query planning with an
// optional hypothetical-answer rewrite, parallel searches over snippet chunks
// and example questions, score fusion, lexical reranking and confidence
// scoring.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"snipsearch/internal/config"
	"snipsearch/internal/llm"
	"snipsearch/internal/snippet"
	"snipsearch/internal/storage"
)

// Store is the vector-store surface the engine reads from.
type Store interface {
	SearchChunks(ctx context.Context, vector []float32, limit uint64, filter *storage.ChunkFilter) ([]storage.ScoredChunk, error)
	GetChunks(ctx context.Context, filter *storage.ChunkFilter) ([]storage.ChunkRecord, error)
	SearchQuestions(ctx context.Context, vector []float32, limit uint64, filter *storage.QuestionFilter) ([]storage.ScoredQuestion, error)
}

// Embedder turns query texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Filters restricts which snippets a query may return.
type Filters struct {
	Groups     []string
	SnippetIDs []string
	// Languages restricts the snippet-text path to matching variant
	// language tags. It does not apply to the example-question path.
	Languages []string
}

func (f Filters) chunkFilter() *storage.ChunkFilter {
	if len(f.Groups) == 0 && len(f.SnippetIDs) == 0 && len(f.Languages) == 0 {
		return nil
	}
	return &storage.ChunkFilter{
		Groups:    f.Groups,
		ParentIDs: f.SnippetIDs,
		Languages: f.Languages,
	}
}

func (f Filters) questionFilter() *storage.QuestionFilter {
	if len(f.Groups) == 0 && len(f.SnippetIDs) == 0 {
		return nil
	}
	return &storage.QuestionFilter{
		Groups:     f.Groups,
		SnippetIDs: f.SnippetIDs,
	}
}

// targetLanguage is the single requested language, if exactly one was given.
func (f Filters) targetLanguage() string {
	if len(f.Languages) == 1 {
		return f.Languages[0]
	}
	return ""
}

// QuestionMatch is one example-question search hit.
type QuestionMatch struct {
	SnippetID  string
	Question   string
	Title      string
	Group      string
	Distance   float64
	Confidence float64
}

// Engine composes the query planner, the fusion/rerank stage and the chunk
// re-assembler.
type Engine struct {
	store            Store
	embedder         Embedder
	llm              llm.Provider
	questionWeight   float64
	exampleQuestions bool
	chunkOverlap     int
	logger           *slog.Logger
}

// NewEngine wires the retrieval engine from its collaborators and
// configuration.
func NewEngine(store Store, embedder Embedder, provider llm.Provider, cfg *config.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:            store,
		embedder:         embedder,
		llm:              provider,
		questionWeight:   cfg.Retrieval.QuestionWeight,
		exampleQuestions: cfg.Retrieval.ExampleQuestions,
		chunkOverlap:     cfg.Chunking.Overlap,
		logger:           logger,
	}
}

// QuerySnippets searches the snippet-chunk index with a caller-supplied
// vector and returns up to k reassembled snippets ranked by distance.
func (e *Engine) QuerySnippets(ctx context.Context, vector []float32, k int, filters Filters) ([]snippet.Scored, error) {
	hits, err := e.store.SearchChunks(ctx, vector, uint64(2*k), filters.chunkFilter())
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	results, err := e.expandToParents(ctx, hits, filters.targetLanguage())
	if err != nil {
		return nil, err
	}
	if len(results) > k {
		results = results[:k]
	}
	for i := range results {
		results[i].Confidence = round4(DistanceToConfidence(results[i].Distance))
	}
	return results, nil
}

// QueryExampleQuestions searches the example-question index with a
// caller-supplied vector.
func (e *Engine) QueryExampleQuestions(ctx context.Context, vector []float32, k int, filters Filters) ([]QuestionMatch, error) {
	hits, err := e.store.SearchQuestions(ctx, vector, uint64(k), filters.questionFilter())
	if err != nil {
		return nil, fmt.Errorf("search example questions: %w", err)
	}
	out := make([]QuestionMatch, 0, len(hits))
	for _, h := range hits {
		out = append(out, QuestionMatch{
			SnippetID:  h.Question.SnippetID,
			Question:   h.Question.Question,
			Title:      h.Question.Title,
			Group:      h.Question.Group,
			Distance:   h.Distance,
			Confidence: round4(DistanceToConfidence(h.Distance)),
		})
	}
	return out, nil
}

// Answer is the result of RetrieveAndScore: the ranked snippets and the
// aggregated answer confidence.
type Answer struct {
	Snippets   []snippet.Scored
	Confidence float64
}

// RetrieveAndScore runs the full hybrid read path for a question: plan the
// query vectors, search both indexes in parallel, fuse and optionally rerank,
// and score the outcome.
func (e *Engine) RetrieveAndScore(ctx context.Context, question string, k int, filters Filters, useHyde, useKeywordRerank bool) (*Answer, error) {
	if k <= 0 {
		k = 5
	}

	queryText := question
	if useHyde && e.llm != nil {
		answer, err := e.llm.HypotheticalAnswer(ctx, question)
		switch {
		case err != nil:
			e.logger.Warn("hypothetical answer generation failed, querying with raw question", "error", err)
		case answer != "":
			queryText = answer
		}
	}

	// The snippet-text path queries with the (possibly rewritten) text;
	// the example-question path always queries with the raw question.
	texts := []string{queryText}
	if e.exampleQuestions && queryText != question {
		texts = append(texts, question)
	}
	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	textVector := vectors[0]
	questionVector := vectors[len(vectors)-1]

	fetchLimit := uint64(2 * k)
	var (
		wg            sync.WaitGroup
		textHits      []storage.ScoredChunk
		questionHits  []storage.ScoredQuestion
		textErr, qErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		textHits, textErr = e.store.SearchChunks(ctx, textVector, fetchLimit, filters.chunkFilter())
	}()
	if e.exampleQuestions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			questionHits, qErr = e.store.SearchQuestions(ctx, questionVector, fetchLimit, filters.questionFilter())
		}()
	}
	wg.Wait()
	if textErr != nil {
		return nil, fmt.Errorf("search chunks: %w", textErr)
	}
	if qErr != nil {
		return nil, fmt.Errorf("search example questions: %w", qErr)
	}

	targetLang := filters.targetLanguage()
	textResults, err := e.expandToParents(ctx, textHits, targetLang)
	if err != nil {
		return nil, err
	}

	candidates := e.fuse(ctx, textResults, questionHits, targetLang)
	if len(candidates) > 2*k {
		candidates = candidates[:2*k]
	}

	if useKeywordRerank && len(candidates) > k {
		candidates = keywordRerank(question, candidates, k)
	} else if len(candidates) > k {
		candidates = candidates[:k]
	}

	confidences := make([]float64, len(candidates))
	for i := range candidates {
		candidates[i].Confidence = round4(candidates[i].Confidence)
		confidences[i] = candidates[i].Confidence
	}
	return &Answer{
		Snippets:   candidates,
		Confidence: AnswerConfidence(confidences),
	}, nil
}
