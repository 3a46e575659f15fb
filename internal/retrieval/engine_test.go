package retrieval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snipsearch/internal/config"
	"snipsearch/internal/storage"
)

type fakeStore struct {
	chunkHits    []storage.ScoredChunk
	questionHits []storage.ScoredQuestion
	chunks       []storage.ChunkRecord

	searchErr error
	getErr    error

	lastChunkFilter    *storage.ChunkFilter
	lastQuestionFilter *storage.QuestionFilter
}

func (f *fakeStore) SearchChunks(_ context.Context, _ []float32, _ uint64, filter *storage.ChunkFilter) ([]storage.ScoredChunk, error) {
	f.lastChunkFilter = filter
	return f.chunkHits, f.searchErr
}

func (f *fakeStore) GetChunks(_ context.Context, filter *storage.ChunkFilter) ([]storage.ChunkRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	want := make(map[string]bool)
	if filter != nil {
		for _, id := range filter.ParentIDs {
			want[id] = true
		}
	}
	var out []storage.ChunkRecord
	for _, c := range f.chunks {
		if len(want) == 0 || want[c.ParentID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) SearchQuestions(_ context.Context, _ []float32, _ uint64, filter *storage.QuestionFilter) ([]storage.ScoredQuestion, error) {
	f.lastQuestionFilter = filter
	return f.questionHits, nil
}

type fakeEmbedder struct {
	calls [][]string
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type fakeProvider struct {
	hypothetical    string
	hypotheticalErr error
	hydeCalls       int
}

func (f *fakeProvider) Translate(_ context.Context, text, _, _ string) (string, error) {
	return text, nil
}

func (f *fakeProvider) DetectLanguage(context.Context, string) (string, error) {
	return "en", nil
}

func (f *fakeProvider) HypotheticalAnswer(context.Context, string) (string, error) {
	f.hydeCalls++
	return f.hypothetical, f.hypotheticalErr
}

func (f *fakeProvider) ExampleQuestion(context.Context, string, string) (string, error) {
	return "", nil
}

func chunk(parentID, chunkID string, index int, lang string, translated bool, text string) storage.ChunkRecord {
	return storage.ChunkRecord{
		ChunkID:             chunkID,
		ParentID:            parentID,
		ChunkIndex:          index,
		Title:               "title-" + parentID,
		TranslationLanguage: lang,
		IsTranslation:       translated,
		Text:                text,
	}
}

func newTestEngine(store *fakeStore, cfg *config.Config) (*Engine, *fakeEmbedder, *fakeProvider) {
	if cfg == nil {
		cfg = config.Default()
	}
	embedder := &fakeEmbedder{}
	provider := &fakeProvider{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(store, embedder, provider, cfg, logger), embedder, provider
}

func TestRetrieveAndScore_FusesBothPaths(t *testing.T) {
	// Text-path distance 0.4 maps to confidence 0.8, question-path
	// distance 1.0 maps to 0.5. With weight 0.3 the combined score is
	// 0.7*0.8 + 0.3*0.5 = 0.71.
	store := &fakeStore{
		chunkHits: []storage.ScoredChunk{
			{Chunk: chunk("s1", "s1", 0, "en", false, "all about gophers"), Distance: 0.4},
		},
		questionHits: []storage.ScoredQuestion{
			{Question: storage.QuestionRecord{ID: "s1_eq_0", SnippetID: "s1", Question: "what is a gopher?"}, Distance: 1.0},
		},
		chunks: []storage.ChunkRecord{
			chunk("s1", "s1", 0, "en", false, "all about gophers"),
		},
	}
	engine, _, _ := newTestEngine(store, nil)

	answer, err := engine.RetrieveAndScore(context.Background(), "what is a gopher?", 3, Filters{}, false, false)
	require.NoError(t, err)
	require.Len(t, answer.Snippets, 1)
	assert.Equal(t, "s1", answer.Snippets[0].ID)
	assert.Equal(t, "all about gophers", answer.Snippets[0].Text)
	assert.InDelta(t, 0.71, answer.Snippets[0].Confidence, 1e-9)
	assert.InDelta(t, 0.71, answer.Confidence, 1e-9)
}

func TestRetrieveAndScore_QuestionOnlyHitFetchesText(t *testing.T) {
	store := &fakeStore{
		questionHits: []storage.ScoredQuestion{
			{Question: storage.QuestionRecord{ID: "s2_eq_0", SnippetID: "s2"}, Distance: 0.5},
		},
		chunks: []storage.ChunkRecord{
			chunk("s2", "s2", 0, "en", false, "text reached only via its question"),
		},
	}
	engine, _, _ := newTestEngine(store, nil)

	answer, err := engine.RetrieveAndScore(context.Background(), "anything", 3, Filters{}, false, false)
	require.NoError(t, err)
	require.Len(t, answer.Snippets, 1)
	assert.Equal(t, "s2", answer.Snippets[0].ID)
	assert.Equal(t, "text reached only via its question", answer.Snippets[0].Text)
	assert.InDelta(t, 0.75, answer.Snippets[0].Confidence, 1e-9)
}

func TestRetrieveAndScore_QuestionOnlyHitDroppedWhenTextMissing(t *testing.T) {
	store := &fakeStore{
		questionHits: []storage.ScoredQuestion{
			{Question: storage.QuestionRecord{ID: "gone_eq_0", SnippetID: "gone"}, Distance: 0.2},
		},
	}
	engine, _, _ := newTestEngine(store, nil)

	answer, err := engine.RetrieveAndScore(context.Background(), "anything", 3, Filters{}, false, false)
	require.NoError(t, err)
	assert.Empty(t, answer.Snippets)
	assert.Zero(t, answer.Confidence)
}

func TestRetrieveAndScore_HydeRewriteAndFallback(t *testing.T) {
	store := &fakeStore{}
	engine, embedder, provider := newTestEngine(store, nil)
	provider.hypothetical = "a plausible answer"

	_, err := engine.RetrieveAndScore(context.Background(), "the question", 3, Filters{}, true, false)
	require.NoError(t, err)
	require.Len(t, embedder.calls, 1)
	// Rewritten text for the snippet path, raw question for the question path.
	assert.Equal(t, []string{"a plausible answer", "the question"}, embedder.calls[0])

	provider.hypotheticalErr = errors.New("model unavailable")
	_, err = engine.RetrieveAndScore(context.Background(), "the question", 3, Filters{}, true, false)
	require.NoError(t, err)
	require.Len(t, embedder.calls, 2)
	assert.Equal(t, []string{"the question"}, embedder.calls[1])
	assert.Equal(t, 2, provider.hydeCalls)
}

func TestRetrieveAndScore_LanguageFilterOnlyOnSnippetPath(t *testing.T) {
	store := &fakeStore{}
	engine, _, _ := newTestEngine(store, nil)

	filters := Filters{Groups: []string{"g"}, Languages: []string{"de"}}
	_, err := engine.RetrieveAndScore(context.Background(), "frage", 2, filters, false, false)
	require.NoError(t, err)

	require.NotNil(t, store.lastChunkFilter)
	assert.Equal(t, []string{"de"}, store.lastChunkFilter.Languages)
	require.NotNil(t, store.lastQuestionFilter)
	assert.Equal(t, []string{"g"}, store.lastQuestionFilter.Groups)
	assert.Empty(t, store.lastQuestionFilter.SnippetIDs)
}

func TestRetrieveAndScore_KeywordRerank(t *testing.T) {
	// Both snippets score identically on the vector path; the rerank must
	// prefer the one containing the question's tokens.
	store := &fakeStore{
		chunkHits: []storage.ScoredChunk{
			{Chunk: chunk("a", "a", 0, "en", false, "completely unrelated content"), Distance: 0.5},
			{Chunk: chunk("b", "b", 0, "en", false, "goroutines communicate through channels"), Distance: 0.5},
		},
		chunks: []storage.ChunkRecord{
			chunk("a", "a", 0, "en", false, "completely unrelated content"),
			chunk("b", "b", 0, "en", false, "goroutines communicate through channels"),
		},
	}
	engine, _, _ := newTestEngine(store, nil)

	answer, err := engine.RetrieveAndScore(context.Background(), "goroutines channels", 1, Filters{}, false, true)
	require.NoError(t, err)
	require.Len(t, answer.Snippets, 1)
	assert.Equal(t, "b", answer.Snippets[0].ID)
}

func TestQuerySnippets_ReassemblesChunks(t *testing.T) {
	full := "0123456789abcdefghij"
	store := &fakeStore{
		chunkHits: []storage.ScoredChunk{
			{Chunk: chunk("p", "p_1", 1, "en", false, full[8:]), Distance: 0.3},
		},
		chunks: []storage.ChunkRecord{
			chunk("p", "p_1", 1, "en", false, full[8:]),
			chunk("p", "p_0", 0, "en", false, full[:12]),
		},
	}
	cfg := config.Default()
	cfg.Chunking.Size = 12
	cfg.Chunking.Overlap = 4
	engine, _, _ := newTestEngine(store, cfg)

	results, err := engine.QuerySnippets(context.Background(), []float32{1, 0, 0}, 5, Filters{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, full, results[0].Text)
	assert.InDelta(t, 0.3, results[0].Distance, 1e-9)
	assert.InDelta(t, 0.85, results[0].Confidence, 1e-9)
}

func TestQuerySnippets_PrefersRequestedLanguageVariant(t *testing.T) {
	store := &fakeStore{
		chunkHits: []storage.ScoredChunk{
			{Chunk: chunk("p", "p", 0, "en", false, "english original"), Distance: 0.2},
		},
		chunks: []storage.ChunkRecord{
			chunk("p", "p", 0, "en", false, "english original"),
			chunk("p", "p_tr_de", 0, "de", true, "deutsche fassung"),
		},
	}
	engine, _, _ := newTestEngine(store, nil)

	results, err := engine.QuerySnippets(context.Background(), []float32{1, 0, 0}, 5, Filters{Languages: []string{"de"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "deutsche fassung", results[0].Text)

	results, err = engine.QuerySnippets(context.Background(), []float32{1, 0, 0}, 5, Filters{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "english original", results[0].Text)
	require.NotNil(t, results[0].Metadata)
	assert.True(t, results[0].Metadata.HasGeneratedTranslations)
	assert.Equal(t, []string{"de"}, results[0].Metadata.AvailableLanguages)
}

func TestQueryExampleQuestions(t *testing.T) {
	store := &fakeStore{
		questionHits: []storage.ScoredQuestion{
			{Question: storage.QuestionRecord{ID: "s_eq_0", SnippetID: "s", Question: "how?", Title: "t", Group: "g"}, Distance: 0.6},
		},
	}
	engine, _, _ := newTestEngine(store, nil)

	matches, err := engine.QueryExampleQuestions(context.Background(), []float32{1, 0, 0}, 5, Filters{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "s", matches[0].SnippetID)
	assert.Equal(t, "how?", matches[0].Question)
	assert.InDelta(t, 0.7, matches[0].Confidence, 1e-9)
}

func TestRetrieveAndScore_SearchErrorIsFatal(t *testing.T) {
	store := &fakeStore{searchErr: errors.New("store down")}
	engine, _, _ := newTestEngine(store, nil)

	_, err := engine.RetrieveAndScore(context.Background(), "q", 3, Filters{}, false, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")
}
