package indexer

import (
	"context"
	"fmt"
	"sort"

	"snipsearch/internal/snippet"
	"snipsearch/internal/storage"
)

// GenerateExampleQuestion asks the LLM for one question the snippet's text
// would answer and indexes it, replacing any previously indexed questions
// for that id. Returns storage.ErrSnippetNotFound for an unknown id.
func (s *Service) GenerateExampleQuestion(ctx context.Context, snippetID string) (string, error) {
	if s.llm == nil {
		return "", fmt.Errorf("generate example question: no LLM provider configured")
	}
	chunks, err := s.store.GetChunks(ctx, &storage.ChunkFilter{ParentIDs: []string{snippetID}})
	if err != nil {
		return "", fmt.Errorf("generate example question: %w", err)
	}
	var originals []storage.ChunkRecord
	for _, c := range chunks {
		if !c.IsTranslation {
			originals = append(originals, c)
		}
	}
	if len(originals) == 0 {
		return "", fmt.Errorf("generate example question: %w: %s", storage.ErrSnippetNotFound, snippetID)
	}

	first := firstChunk(originals)
	question, err := s.llm.ExampleQuestion(ctx, snippet.MergeChunks(originals, s.chunkOverlap), first.Title)
	if err != nil {
		return "", fmt.Errorf("generate example question: %w", err)
	}
	if question == "" {
		return "", fmt.Errorf("generate example question: empty response")
	}
	if err := s.reindexQuestions(ctx, snippetID, first.Title, first.Group, []string{question}); err != nil {
		return "", err
	}
	return question, nil
}

// BackfillExampleQuestions generates one example question for every snippet
// that has none indexed, so older data participates in the hybrid search
// path. Generation failures are logged and the snippet skipped. Returns the
// ids that received a question.
func (s *Service) BackfillExampleQuestions(ctx context.Context) ([]string, error) {
	if s.llm == nil {
		return nil, fmt.Errorf("backfill example questions: no LLM provider configured")
	}
	all, err := s.store.GetChunks(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("backfill example questions: %w", err)
	}

	byParent := make(map[string][]storage.ChunkRecord)
	for _, c := range all {
		if c.IsTranslation {
			continue
		}
		byParent[c.ParentID] = append(byParent[c.ParentID], c)
	}

	var done []string
	for pid, originals := range byParent {
		existing, err := s.store.GetQuestionsBySnippet(ctx, pid)
		if err != nil {
			return nil, fmt.Errorf("backfill example questions: %w", err)
		}
		if len(existing) > 0 {
			continue
		}

		first := firstChunk(originals)
		question, err := s.llm.ExampleQuestion(ctx, snippet.MergeChunks(originals, s.chunkOverlap), first.Title)
		if err != nil || question == "" {
			s.logger.Warn("Example question generation failed, skipping snippet",
				"snippet", pid, "error", err)
			continue
		}
		if err := s.reindexQuestions(ctx, pid, first.Title, first.Group, []string{question}); err != nil {
			return nil, err
		}
		done = append(done, pid)
	}
	sort.Strings(done)
	return done, nil
}
