package retrieval

import (
	"context"
	"sort"
	"strings"

	"snipsearch/internal/snippet"
	"snipsearch/internal/storage"
)

// fuse merges the two search paths by logical snippet id. Text-only hits keep
// their text confidence; hits on both paths combine the two as a convex
// mixture weighted by the configured example-question weight; question-only
// hits need their snippet text fetched and are dropped when the fetch fails.
// The merged list is sorted by combined confidence descending.
func (e *Engine) fuse(ctx context.Context, textResults []snippet.Scored, questionHits []storage.ScoredQuestion, targetLang string) []snippet.Scored {
	questionConfidence := make(map[string]float64)
	for _, h := range questionHits {
		conf := DistanceToConfidence(h.Distance)
		if prev, ok := questionConfidence[h.Question.SnippetID]; !ok || conf > prev {
			questionConfidence[h.Question.SnippetID] = conf
		}
	}

	merged := make([]snippet.Scored, 0, len(textResults)+len(questionConfidence))
	seen := make(map[string]bool, len(textResults))
	for _, r := range textResults {
		seen[r.ID] = true
		r.Confidence = DistanceToConfidence(r.Distance)
		if qc, ok := questionConfidence[r.ID]; ok {
			r.Confidence = (1-e.questionWeight)*r.Confidence + e.questionWeight*qc
		}
		merged = append(merged, r)
	}

	var missing []string
	for id := range questionConfidence {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		merged = append(merged, e.fetchQuestionOnly(ctx, missing, questionConfidence, targetLang)...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Confidence > merged[j].Confidence
	})
	return merged
}

// fetchQuestionOnly materializes snippets found only through the question
// index. A snippet whose text cannot be fetched is dropped: an index entry
// with unavailable source text is not evidence worth returning.
func (e *Engine) fetchQuestionOnly(ctx context.Context, ids []string, questionConfidence map[string]float64, targetLang string) []snippet.Scored {
	hits := make([]storage.ScoredChunk, 0, len(ids))
	for _, id := range ids {
		hits = append(hits, storage.ScoredChunk{
			Chunk:    storage.ChunkRecord{ChunkID: id, ParentID: id},
			Distance: 0,
		})
	}
	results, err := e.expandToParents(ctx, hits, targetLang)
	if err != nil {
		e.logger.Warn("fetching question-only snippets failed, dropping them", "count", len(ids), "error", err)
		return nil
	}
	for i := range results {
		results[i].Confidence = questionConfidence[results[i].ID]
		results[i].Distance = 0
	}
	return results
}

// keywordRerank blends each candidate's prior confidence with a lexical
// overlap score, the fraction of the question's distinct tokens appearing in
// the candidate's text, and keeps the top k of the re-sorted list.
func keywordRerank(question string, candidates []snippet.Scored, k int) []snippet.Scored {
	tokens := questionTokens(question)
	for i := range candidates {
		overlap := lexicalOverlap(tokens, candidates[i].Text)
		candidates[i].Confidence = 0.7*candidates[i].Confidence + 0.3*overlap
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// questionTokens returns the distinct, lowercased word tokens of a question.
func questionTokens(question string) []string {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !isWordRune(r)
	})
	seen := make(map[string]bool, len(fields))
	tokens := fields[:0]
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func isWordRune(r rune) bool {
	return r == '_' ||
		('a' <= r && r <= 'z') || ('0' <= r && r <= '9') ||
		r > 127
}

// lexicalOverlap is the fraction of tokens present as a substring of text.
func lexicalOverlap(tokens []string, text string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	found := 0
	for _, t := range tokens {
		if strings.Contains(lower, t) {
			found++
		}
	}
	return float64(found) / float64(len(tokens))
}
