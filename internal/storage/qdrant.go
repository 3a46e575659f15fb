// Package storage persists snippet chunks and example questions in Qdrant.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// Options configures the Qdrant store.
type Options struct {
	Host               string
	Port               int
	SnippetCollection  string
	QuestionCollection string
	// Dimension is the embedding vector size both collections are created with.
	Dimension int
}

// Store wraps the Qdrant client with connection management, health checks and
// the two snippet-index collections. The underlying client handle is shared
// by all in-flight requests and can be swapped with Reset after an
// out-of-band replacement of the backing data.
type Store struct {
	mu     sync.RWMutex
	client *qdrant.Client
	opts   Options
}

// NewStore creates a Qdrant client and validates connectivity with a retried
// health check, failing fast if the server is unreachable.
func NewStore(opts Options) (*Store, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: opts.Host,
		Port: opts.Port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &Store{
		client: client,
		opts:   opts,
	}

	if err := s.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}
	return s, nil
}

// handle returns the current client under the read lock.
func (s *Store) handle() *qdrant.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// Reset replaces the client handle, reconnecting to Qdrant. Call after the
// backing storage was swapped out from under the server (e.g. a restore from
// backup). Requests in flight during a Reset may observe either the old or
// the new backing store.
func (s *Store) Reset(ctx context.Context) error {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: s.opts.Host,
		Port: s.opts.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to recreate qdrant client: %w", err)
	}

	s.mu.Lock()
	old := s.client
	s.client = client
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return s.healthCheckWithRetry(ctx)
}

// Close closes the Qdrant client connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Health performs a single health check against Qdrant.
func (s *Store) Health(ctx context.Context) error {
	result, err := s.handle().HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// healthCheckWithRetry performs health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *Store) healthCheckWithRetry(ctx context.Context) error {
	b := newBackOff()
	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

func newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// EnsureCollections creates the snippet and example-question collections if
// missing, with Euclid distance vectors and payload indexes on the
// filterable fields. Idempotent.
func (s *Store) EnsureCollections(ctx context.Context) error {
	existing, err := s.handle().ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, name := range existing {
		have[name] = true
	}

	collections := map[string][]string{
		s.opts.SnippetCollection:  {"parent_id", "group", "translation_language"},
		s.opts.QuestionCollection: {"snippet_id", "group"},
	}
	for name, indexFields := range collections {
		if have[name] {
			continue
		}
		err := s.handle().CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.opts.Dimension),
				Distance: qdrant.Distance_Euclid,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
		// Without payload indexes, filtered queries degrade badly.
		for _, field := range indexFields {
			_, err := s.handle().CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
				CollectionName: name,
				FieldName:      field,
				FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
			})
			if err != nil {
				return fmt.Errorf("failed to create index for field %s: %w", field, err)
			}
		}
	}
	return nil
}

// pointID maps a deterministic string chunk/question id onto the UUID point
// id Qdrant requires. Same string always yields the same UUID, so upserting
// the same id overwrites.
func pointID(id string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

// upsertWithRetry performs an upsert with exponential backoff.
func (s *Store) upsertWithRetry(ctx context.Context, collection string, points []*qdrant.PointStruct) error {
	b := newBackOff()
	return backoff.Retry(func() error {
		_, err := s.handle().Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         points,
		})
		return err
	}, backoff.WithContext(b, ctx))
}

// UpsertChunks stores chunk records with embeddings, batched in groups of 100.
// Existing points with the same chunk id are overwritten.
func (s *Store) UpsertChunks(ctx context.Context, chunks []*ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}
	for i, c := range chunks {
		if len(c.Embedding) != s.opts.Dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(c.Embedding), s.opts.Dimension)
		}
	}

	const batchSize = 100
	for i := 0; i < len(chunks); i += batchSize {
		end := min(i+batchSize, len(chunks))
		batch := chunks[i:end]
		points := make([]*qdrant.PointStruct, len(batch))
		for j, c := range batch {
			points[j] = &qdrant.PointStruct{
				Id:      pointID(c.ChunkID),
				Vectors: qdrant.NewVectors(c.Embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					"chunk_id":             c.ChunkID,
					"title":                c.Title,
					"parent_id":            c.ParentID,
					"chunk_index":          c.ChunkIndex,
					"group":                c.Group,
					"original_language":    c.OriginalLanguage,
					"translation_language": c.TranslationLanguage,
					"is_translation":       c.IsTranslation,
					"metadata_json":        c.MetadataJSON,
					"text":                 c.Text,
				}),
			}
		}
		if err := s.upsertWithRetry(ctx, s.opts.SnippetCollection, points); err != nil {
			return fmt.Errorf("failed to upsert chunk batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

func chunkFromPayload(payload map[string]*qdrant.Value) ChunkRecord {
	return ChunkRecord{
		ChunkID:             payload["chunk_id"].GetStringValue(),
		Title:               payload["title"].GetStringValue(),
		ParentID:            payload["parent_id"].GetStringValue(),
		ChunkIndex:          int(payload["chunk_index"].GetIntegerValue()),
		Group:               payload["group"].GetStringValue(),
		OriginalLanguage:    payload["original_language"].GetStringValue(),
		TranslationLanguage: payload["translation_language"].GetStringValue(),
		IsTranslation:       payload["is_translation"].GetBoolValue(),
		MetadataJSON:        payload["metadata_json"].GetStringValue(),
		Text:                payload["text"].GetStringValue(),
	}
}

func (f *ChunkFilter) toQdrant() *qdrant.Filter {
	if f == nil {
		return nil
	}
	var must []*qdrant.Condition
	if len(f.Groups) > 0 {
		must = append(must, qdrant.NewMatchKeywords("group", f.Groups...))
	}
	if len(f.ParentIDs) > 0 {
		must = append(must, qdrant.NewMatchKeywords("parent_id", f.ParentIDs...))
	}
	if len(f.Languages) > 0 {
		must = append(must, qdrant.NewMatchKeywords("translation_language", f.Languages...))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func (f *QuestionFilter) toQdrant() *qdrant.Filter {
	if f == nil {
		return nil
	}
	var must []*qdrant.Condition
	if len(f.Groups) > 0 {
		must = append(must, qdrant.NewMatchKeywords("group", f.Groups...))
	}
	if len(f.SnippetIDs) > 0 {
		must = append(must, qdrant.NewMatchKeywords("snippet_id", f.SnippetIDs...))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// SearchChunks performs vector similarity search over chunk records,
// returning the top limit hits ordered best-first.
func (s *Store) SearchChunks(ctx context.Context, vector []float32, limit uint64, filter *ChunkFilter) ([]ScoredChunk, error) {
	if len(vector) != s.opts.Dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), s.opts.Dimension)
	}

	results, err := s.handle().Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.opts.SnippetCollection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         filter.toQdrant(),
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	hits := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		hits = append(hits, ScoredChunk{
			Chunk:    chunkFromPayload(r.Payload),
			Distance: float64(r.Score),
		})
	}
	return hits, nil
}

// GetChunks scrolls all chunk records matching the filter. A nil filter
// returns the whole collection.
func (s *Store) GetChunks(ctx context.Context, filter *ChunkFilter) ([]ChunkRecord, error) {
	var out []ChunkRecord
	var offset *qdrant.PointId

	qf := filter.toQdrant()
	batchSize := uint32(256)
	for {
		results, err := s.handle().Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.opts.SnippetCollection,
			Filter:         qf,
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll chunks: %w", err)
		}
		for _, r := range results {
			out = append(out, chunkFromPayload(r.Payload))
		}
		if uint32(len(results)) < batchSize {
			break
		}
		offset = results[len(results)-1].Id
	}
	return out, nil
}

// DeleteChunksByParent removes every chunk of the given logical snippet,
// original and translation variants alike. Deleting a snippet with no chunks
// is a no-op.
func (s *Store) DeleteChunksByParent(ctx context.Context, parentID string) error {
	_, err := s.handle().Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.opts.SnippetCollection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("parent_id", parentID)},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to delete chunks for %s: %w", parentID, err)
	}
	return nil
}

// CountChunks returns the number of stored chunk records.
func (s *Store) CountChunks(ctx context.Context) (uint64, error) {
	n, err := s.handle().Count(ctx, &qdrant.CountPoints{
		CollectionName: s.opts.SnippetCollection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// UpsertQuestions stores example-question records.
func (s *Store) UpsertQuestions(ctx context.Context, questions []*QuestionRecord) error {
	if len(questions) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, len(questions))
	for i, q := range questions {
		if len(q.Embedding) != s.opts.Dimension {
			return fmt.Errorf("%w: question %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(q.Embedding), s.opts.Dimension)
		}
		points[i] = &qdrant.PointStruct{
			Id:      pointID(q.ID),
			Vectors: qdrant.NewVectors(q.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				"question_id":    q.ID,
				"snippet_id":     q.SnippetID,
				"question_index": q.QuestionIndex,
				"title":          q.Title,
				"group":          q.Group,
				"text":           q.Question,
			}),
		}
	}
	if err := s.upsertWithRetry(ctx, s.opts.QuestionCollection, points); err != nil {
		return fmt.Errorf("failed to upsert example questions: %w", err)
	}
	return nil
}

func questionFromPayload(payload map[string]*qdrant.Value) QuestionRecord {
	return QuestionRecord{
		ID:            payload["question_id"].GetStringValue(),
		SnippetID:     payload["snippet_id"].GetStringValue(),
		QuestionIndex: int(payload["question_index"].GetIntegerValue()),
		Title:         payload["title"].GetStringValue(),
		Group:         payload["group"].GetStringValue(),
		Question:      payload["text"].GetStringValue(),
	}
}

// SearchQuestions performs vector similarity search over example questions.
func (s *Store) SearchQuestions(ctx context.Context, vector []float32, limit uint64, filter *QuestionFilter) ([]ScoredQuestion, error) {
	if len(vector) != s.opts.Dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), s.opts.Dimension)
	}

	results, err := s.handle().Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.opts.QuestionCollection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         filter.toQdrant(),
		Limit:          qdrant.PtrOf(limit),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search example questions: %w", err)
	}

	hits := make([]ScoredQuestion, 0, len(results))
	for _, r := range results {
		hits = append(hits, ScoredQuestion{
			Question: questionFromPayload(r.Payload),
			Distance: float64(r.Score),
		})
	}
	return hits, nil
}

// GetQuestionsBySnippet returns the stored example questions owned by a
// snippet (or translation-variant id), ordered by question index.
func (s *Store) GetQuestionsBySnippet(ctx context.Context, snippetID string) ([]QuestionRecord, error) {
	var out []QuestionRecord
	var offset *qdrant.PointId

	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("snippet_id", snippetID)},
	}
	batchSize := uint32(256)
	for {
		results, err := s.handle().Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: s.opts.QuestionCollection,
			Filter:         filter,
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll example questions: %w", err)
		}
		for _, r := range results {
			out = append(out, questionFromPayload(r.Payload))
		}
		if uint32(len(results)) < batchSize {
			break
		}
		offset = results[len(results)-1].Id
	}

	sort.Slice(out, func(i, j int) bool { return out[i].QuestionIndex < out[j].QuestionIndex })
	return out, nil
}

// DeleteQuestionsBySnippet removes all example questions owned by a snippet.
// No-op when none exist.
func (s *Store) DeleteQuestionsBySnippet(ctx context.Context, snippetID string) error {
	_, err := s.handle().Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.opts.QuestionCollection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("snippet_id", snippetID)},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to delete example questions for %s: %w", snippetID, err)
	}
	return nil
}
