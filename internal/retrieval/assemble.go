package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"snipsearch/internal/snippet"
	"snipsearch/internal/storage"
)

// expandToParents reassembles raw chunk hits into logical snippets: every
// distinct parent's full chunk set is fetched, grouped by language, and the
// best-matching variant is reconstructed. The snippet's distance is the
// minimum over all raw hits that resolved to it.
func (e *Engine) expandToParents(ctx context.Context, hits []storage.ScoredChunk, targetLang string) ([]snippet.Scored, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	bestDistance := make(map[string]float64)
	var parentIDs []string
	for _, h := range hits {
		pid := h.Chunk.ParentID
		if pid == "" {
			pid = h.Chunk.ChunkID
		}
		if d, ok := bestDistance[pid]; !ok || h.Distance < d {
			if !ok {
				parentIDs = append(parentIDs, pid)
			}
			bestDistance[pid] = h.Distance
		}
	}

	chunks, err := e.store.GetChunks(ctx, &storage.ChunkFilter{ParentIDs: parentIDs})
	if err != nil {
		return nil, fmt.Errorf("fetch chunks for reassembly: %w", err)
	}

	byParentLang := make(map[string]map[string][]storage.ChunkRecord)
	originals := make(map[string][]storage.ChunkRecord)
	generated := make(map[string]map[string]bool)
	for _, c := range chunks {
		lang := strings.ToLower(c.TranslationLanguage)
		if lang != "" {
			if byParentLang[c.ParentID] == nil {
				byParentLang[c.ParentID] = make(map[string][]storage.ChunkRecord)
			}
			byParentLang[c.ParentID][lang] = append(byParentLang[c.ParentID][lang], c)
		}
		if c.IsTranslation {
			if lang != "" {
				if generated[c.ParentID] == nil {
					generated[c.ParentID] = make(map[string]bool)
				}
				generated[c.ParentID][lang] = true
			}
			continue
		}
		originals[c.ParentID] = append(originals[c.ParentID], c)
	}

	target := strings.ToLower(targetLang)
	var out []snippet.Scored
	for _, pid := range parentIDs {
		group := e.selectVariant(byParentLang[pid], originals[pid], target)
		if len(group) == 0 {
			continue
		}

		first := group[0]
		for _, c := range group[1:] {
			if c.ChunkIndex < first.ChunkIndex {
				first = c
			}
		}
		meta := snippet.ParseMetadataJSON(first.MetadataJSON).Clone()

		available := make(map[string]bool)
		if meta.Language != "" {
			available[meta.Language] = true
		}
		for lang := range generated[pid] {
			available[lang] = true
		}
		for lang := range snippet.LinkedLanguages(meta.LinkedSnippets) {
			available[lang] = true
		}
		meta.HasGeneratedTranslations = len(generated[pid]) > 0
		meta.AvailableLanguages = snippet.SortedLanguages(available)

		out = append(out, snippet.Scored{
			Snippet: snippet.Snippet{
				ID:       pid,
				Text:     snippet.MergeChunks(group, e.chunkOverlap),
				Title:    first.Title,
				Group:    first.Group,
				Metadata: meta,
			},
			Distance: bestDistance[pid],
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	return out, nil
}

// selectVariant picks the chunk set to reassemble: the requested language's
// variant when present, else the original, else any available variant.
func (e *Engine) selectVariant(byLang map[string][]storage.ChunkRecord, original []storage.ChunkRecord, target string) []storage.ChunkRecord {
	if target != "" {
		if group, ok := byLang[target]; ok {
			return group
		}
	}
	if len(original) > 0 {
		return original
	}
	for _, lang := range snippet.SortedLanguages(langSet(byLang)) {
		return byLang[lang]
	}
	return nil
}

func langSet(m map[string][]storage.ChunkRecord) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}
