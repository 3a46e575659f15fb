package indexer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"snipsearch/internal/snippet"
	"snipsearch/internal/storage"
)

// ListOptions controls ListSnippets pagination and filtering.
type ListOptions struct {
	Limit  int
	Offset int
	Groups []string
	// Languages filters snippets by language code. Originals match on their
	// own language, translation entries on the variant language.
	Languages []string
	// IncludeTranslations adds generated translation variants as separate
	// entries with ids of the form "<parent>_tr_<lang>".
	IncludeTranslations bool
}

// TranslationState summarizes the translation coverage of one snippet.
type TranslationState struct {
	HasLinked    bool
	HasGenerated bool
	Languages    []string
}

// ListSnippets reassembles every stored logical snippet and returns one page
// of them plus the total count after filtering.
func (s *Service) ListSnippets(ctx context.Context, opts ListOptions) ([]snippet.Snippet, int, error) {
	all, err := s.store.GetChunks(ctx, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("list snippets: %w", err)
	}
	if len(all) == 0 {
		return nil, 0, nil
	}

	originals := make(map[string][]storage.ChunkRecord)
	translations := make(map[string]map[string][]storage.ChunkRecord)
	for _, c := range all {
		if c.IsTranslation {
			lang := strings.ToLower(c.TranslationLanguage)
			if lang == "" {
				continue
			}
			if translations[c.ParentID] == nil {
				translations[c.ParentID] = make(map[string][]storage.ChunkRecord)
			}
			translations[c.ParentID][lang] = append(translations[c.ParentID][lang], c)
			continue
		}
		originals[c.ParentID] = append(originals[c.ParentID], c)
	}

	langFilter := make(map[string]bool)
	for _, lang := range opts.Languages {
		langFilter[strings.ToLower(lang)] = true
	}

	var out []snippet.Snippet
	for pid, chunks := range originals {
		first := firstChunk(chunks)
		meta := snippet.ParseMetadataJSON(first.MetadataJSON).Clone()

		generated := make(map[string]bool)
		for lang := range translations[pid] {
			generated[lang] = true
		}
		available := make(map[string]bool)
		if meta.Language != "" {
			available[meta.Language] = true
		}
		for lang := range generated {
			available[lang] = true
		}
		for lang := range snippet.LinkedLanguages(meta.LinkedSnippets) {
			available[lang] = true
		}
		meta.HasGeneratedTranslations = len(generated) > 0
		meta.AvailableLanguages = snippet.SortedLanguages(available)
		meta.IsGeneratedTranslation = false

		if len(meta.ExampleQuestions) == 0 {
			if qs, err := s.store.GetQuestionsBySnippet(ctx, pid); err == nil {
				for _, q := range qs {
					meta.ExampleQuestions = append(meta.ExampleQuestions, q.Question)
				}
			}
		}

		if len(langFilter) > 0 {
			lang := strings.ToLower(meta.Language)
			if lang != "" && !langFilter[lang] {
				continue
			}
		}

		out = append(out, snippet.Snippet{
			ID:       pid,
			Text:     snippet.MergeChunks(chunks, s.chunkOverlap),
			Title:    first.Title,
			Group:    first.Group,
			Metadata: meta,
		})
	}

	if opts.IncludeTranslations {
		for pid, byLang := range translations {
			origTitle, origGroup := "", ""
			if chunks, ok := originals[pid]; ok {
				first := firstChunk(chunks)
				origTitle, origGroup = first.Title, first.Group
			}
			for lang, chunks := range byLang {
				if len(langFilter) > 0 && !langFilter[lang] {
					continue
				}
				first := firstChunk(chunks)
				meta := snippet.ParseMetadataJSON(first.MetadataJSON).Clone()
				meta.IsGeneratedTranslation = true
				meta.TranslationSource = "generated"
				meta.HasGeneratedTranslations = false
				meta.AvailableLanguages = []string{lang}

				translationID := fmt.Sprintf("%s_tr_%s", pid, lang)
				if qs, err := s.store.GetQuestionsBySnippet(ctx, translationID); err == nil && len(qs) > 0 {
					meta.ExampleQuestions = nil
					for _, q := range qs {
						meta.ExampleQuestions = append(meta.ExampleQuestions, q.Question)
					}
				}

				title := fmt.Sprintf("[%s]", strings.ToUpper(lang))
				if origTitle != "" {
					title = fmt.Sprintf("%s [%s]", origTitle, strings.ToUpper(lang))
				}
				out = append(out, snippet.Snippet{
					ID:       translationID,
					Text:     snippet.MergeChunks(chunks, s.chunkOverlap),
					Title:    title,
					Group:    origGroup,
					Metadata: meta,
				})
			}
		}
	}

	if len(opts.Groups) > 0 {
		want := make(map[string]bool, len(opts.Groups))
		for _, g := range opts.Groups {
			want[g] = true
		}
		filtered := out[:0]
		for _, e := range out {
			if want[e.Group] {
				filtered = append(filtered, e)
			}
		}
		out = filtered
	}

	// Maps iterate in random order; sort for stable pagination.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID < out[j].ID
	})

	total := len(out)
	if opts.Offset >= total {
		return nil, total, nil
	}
	end := total
	if opts.Limit > 0 && opts.Offset+opts.Limit < end {
		end = opts.Offset + opts.Limit
	}
	return out[opts.Offset:end], total, nil
}

// ListGroups returns the distinct group names, including "" for ungrouped
// snippets, sorted case-insensitively with the ungrouped entry last.
func (s *Service) ListGroups(ctx context.Context) ([]string, error) {
	all, err := s.store.GetChunks(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	if len(all) == 0 {
		return nil, nil
	}
	set := make(map[string]bool)
	for _, c := range all {
		set[c.Group] = true
	}
	groups := make([]string, 0, len(set))
	for g := range set {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if (groups[i] == "") != (groups[j] == "") {
			return groups[j] == ""
		}
		return strings.ToLower(groups[i]) < strings.ToLower(groups[j])
	})
	return groups, nil
}

// UpdateExampleQuestions replaces the example questions of a snippet or a
// translation variant (ids of the form "<parent>_tr_<lang>"). Title and
// group are recovered from existing records.
func (s *Service) UpdateExampleQuestions(ctx context.Context, snippetID string, questions []string) error {
	title, group := "", ""

	if existing, err := s.store.GetQuestionsBySnippet(ctx, snippetID); err == nil && len(existing) > 0 {
		title, group = existing[0].Title, existing[0].Group
	} else {
		parentID := snippetID
		if i := strings.Index(snippetID, "_tr_"); i >= 0 {
			parentID = snippetID[:i]
		}
		chunks, err := s.store.GetChunks(ctx, &storage.ChunkFilter{ParentIDs: []string{parentID}})
		if err != nil {
			return fmt.Errorf("update example questions: %w", err)
		}
		if len(chunks) > 0 {
			first := firstChunk(chunks)
			title, group = first.Title, first.Group
		}
	}

	return s.reindexQuestions(ctx, snippetID, title, group, questions)
}

// TranslationInfo reports which translations exist for a snippet: linked
// siblings declared in metadata, generated variants, and the union of
// variant languages.
func (s *Service) TranslationInfo(ctx context.Context, snippetID string) (TranslationState, error) {
	chunks, err := s.store.GetChunks(ctx, &storage.ChunkFilter{ParentIDs: []string{snippetID}})
	if err != nil {
		return TranslationState{}, fmt.Errorf("translation info: %w", err)
	}

	var state TranslationState
	languages := make(map[string]bool)
	for _, c := range chunks {
		if c.IsTranslation {
			state.HasGenerated = true
		}
		if c.TranslationLanguage != "" {
			languages[c.TranslationLanguage] = true
		}
		if meta := snippet.ParseMetadataJSON(c.MetadataJSON); meta != nil && len(meta.LinkedSnippets) > 0 {
			state.HasLinked = true
		}
	}
	state.Languages = snippet.SortedLanguages(languages)
	return state, nil
}

// LinkedSnippets returns all language versions related to a snippet: the
// original itself, its generated translation variants, and separate linked
// sibling snippets fetched by title, deduplicated by language.
func (s *Service) LinkedSnippets(ctx context.Context, snippetID string) ([]snippet.Snippet, error) {
	chunks, err := s.store.GetChunks(ctx, &storage.ChunkFilter{ParentIDs: []string{snippetID}})
	if err != nil {
		return nil, fmt.Errorf("linked snippets: %w", err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	var originals []storage.ChunkRecord
	byLang := make(map[string][]storage.ChunkRecord)
	for _, c := range chunks {
		if c.IsTranslation {
			if c.TranslationLanguage != "" {
				byLang[c.TranslationLanguage] = append(byLang[c.TranslationLanguage], c)
			}
			continue
		}
		originals = append(originals, c)
	}

	var results []snippet.Snippet
	seen := make(map[string]bool)
	var linkedTitles []string

	if len(originals) > 0 {
		first := firstChunk(originals)
		meta := snippet.ParseMetadataJSON(first.MetadataJSON).Clone()
		if meta.Language == "" {
			meta.Language = "en"
		}
		seen[meta.Language] = true
		linkedTitles = meta.LinkedSnippets
		results = append(results, snippet.Snippet{
			ID:       snippetID,
			Text:     snippet.MergeChunks(originals, s.chunkOverlap),
			Title:    first.Title,
			Group:    first.Group,
			Metadata: meta,
		})
	}

	for _, lang := range snippet.SortedLanguages(setOf(byLang)) {
		if seen[lang] {
			continue
		}
		seen[lang] = true
		trChunks := byLang[lang]
		first := firstChunk(trChunks)
		results = append(results, snippet.Snippet{
			ID:       fmt.Sprintf("%s_tr_%s", snippetID, lang),
			Text:     snippet.MergeChunks(trChunks, s.chunkOverlap),
			Title:    fmt.Sprintf("%s (%s)", first.Title, strings.ToUpper(lang)),
			Group:    first.Group,
			Metadata: snippet.ParseMetadataJSON(first.MetadataJSON),
		})
	}

	if len(linkedTitles) > 0 {
		siblings, err := s.snippetsByTitles(ctx, linkedTitles)
		if err != nil {
			return nil, err
		}
		for _, sib := range siblings {
			if sib.ID == snippetID {
				continue
			}
			lang := ""
			if sib.Metadata != nil {
				lang = sib.Metadata.Language
			}
			if lang != "" && seen[lang] {
				continue
			}
			seen[lang] = true
			results = append(results, sib)
		}
	}
	return results, nil
}

// snippetsByTitles fetches original snippets whose title matches one of the
// given titles, case-insensitively. Titles are not an indexed field, so this
// scans the collection.
func (s *Service) snippetsByTitles(ctx context.Context, titles []string) ([]snippet.Snippet, error) {
	if len(titles) == 0 {
		return nil, nil
	}
	all, err := s.store.GetChunks(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch snippets by title: %w", err)
	}

	want := make(map[string]bool, len(titles))
	for _, t := range titles {
		want[strings.ToLower(t)] = true
	}

	byParent := make(map[string][]storage.ChunkRecord)
	for _, c := range all {
		if c.IsTranslation || !want[strings.ToLower(c.Title)] {
			continue
		}
		byParent[c.ParentID] = append(byParent[c.ParentID], c)
	}

	var out []snippet.Snippet
	for pid, chunks := range byParent {
		first := firstChunk(chunks)
		out = append(out, snippet.Snippet{
			ID:       pid,
			Text:     snippet.MergeChunks(chunks, s.chunkOverlap),
			Title:    first.Title,
			Group:    first.Group,
			Metadata: snippet.ParseMetadataJSON(first.MetadataJSON),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// firstChunk returns the chunk with the lowest index, which carries the
// variant's canonical title/group/metadata.
func firstChunk(chunks []storage.ChunkRecord) storage.ChunkRecord {
	first := chunks[0]
	for _, c := range chunks[1:] {
		if c.ChunkIndex < first.ChunkIndex {
			first = c
		}
	}
	return first
}

func setOf(m map[string][]storage.ChunkRecord) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}
