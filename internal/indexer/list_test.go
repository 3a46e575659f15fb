package indexer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snipsearch/internal/snippet"
)

func seedSnippets(t *testing.T, svc *Service) []string {
	t.Helper()
	ids, err := svc.AddSnippets(context.Background(), []Item{
		{
			Text:     "alpha text",
			Title:    "alpha",
			Group:    "docs",
			Metadata: &snippet.Metadata{Language: "en", ExampleQuestions: []string{"about alpha?"}},
		},
		{
			Text:     "beta text",
			Title:    "beta",
			Group:    "notes",
			Metadata: &snippet.Metadata{Language: "de", LinkedSnippets: []string{"beta-en"}},
		},
		{
			Text:  "gamma text",
			Title: "gamma",
		},
	}, true)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	return ids
}

func TestListSnippets_PaginationAndTotal(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)
	seedSnippets(t, svc)

	page, total, err := svc.ListSnippets(context.Background(), ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "alpha", page[0].Title)
	assert.Equal(t, "beta", page[1].Title)

	page, total, err = svc.ListSnippets(context.Background(), ListOptions{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "gamma", page[0].Title)

	// Offset beyond the end yields an empty page but the true total.
	page, total, err = svc.ListSnippets(context.Background(), ListOptions{Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Empty(t, page)
}

func TestListSnippets_GroupAndLanguageFilters(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)
	seedSnippets(t, svc)

	page, total, err := svc.ListSnippets(context.Background(), ListOptions{Groups: []string{"docs"}})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, page, 1)
	assert.Equal(t, "alpha", page[0].Title)
	// Example questions ride along in the metadata.
	require.NotNil(t, page[0].Metadata)
	assert.Equal(t, []string{"about alpha?"}, page[0].Metadata.ExampleQuestions)

	page, _, err = svc.ListSnippets(context.Background(), ListOptions{Languages: []string{"de"}})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "beta", page[0].Title)
	assert.Contains(t, page[0].Metadata.AvailableLanguages, "en") // via linked title
}

func TestListSnippets_IncludesTranslationEntries(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)

	ids, err := svc.AddSnippets(context.Background(), []Item{
		{
			Text:     "deutscher text",
			Title:    "doc",
			Group:    "docs",
			Metadata: &snippet.Metadata{Language: "de", LinkedSnippets: []string{"doc-en"}},
		},
	}, false)
	require.NoError(t, err)

	page, total, err := svc.ListSnippets(context.Background(), ListOptions{IncludeTranslations: true})
	require.NoError(t, err)
	assert.Equal(t, 3, total) // original + fr + it
	require.Len(t, page, 3)

	byID := make(map[string]snippet.Snippet)
	for _, s := range page {
		byID[s.ID] = s
	}
	orig := byID[ids[0]]
	require.NotNil(t, orig.Metadata)
	assert.True(t, orig.Metadata.HasGeneratedTranslations)

	fr, ok := byID[ids[0]+"_tr_fr"]
	require.True(t, ok)
	assert.Equal(t, "doc [FR]", fr.Title)
	assert.Equal(t, "docs", fr.Group)
	require.NotNil(t, fr.Metadata)
	assert.True(t, fr.Metadata.IsGeneratedTranslation)
	assert.Equal(t, []string{"fr"}, fr.Metadata.AvailableLanguages)
}

func TestListGroups(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)
	seedSnippets(t, svc)

	groups, err := svc.ListGroups(context.Background())
	require.NoError(t, err)
	// Ungrouped sorts last.
	assert.Equal(t, []string{"docs", "notes", ""}, groups)
}

func TestUpdateExampleQuestions_RecoversTitleFromChunks(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)

	ids, err := svc.AddSnippets(context.Background(), []Item{
		{Text: "text", Title: "named", Group: "docs", Metadata: &snippet.Metadata{Language: "en"}},
	}, true)
	require.NoError(t, err)

	err = svc.UpdateExampleQuestions(context.Background(), ids[0], []string{"first?", "second?"})
	require.NoError(t, err)

	questions, err := store.GetQuestionsBySnippet(context.Background(), ids[0])
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, "named", questions[0].Title)
	assert.Equal(t, "docs", questions[0].Group)

	// A second update replaces rather than appends.
	err = svc.UpdateExampleQuestions(context.Background(), ids[0], []string{"only?"})
	require.NoError(t, err)
	questions, err = store.GetQuestionsBySnippet(context.Background(), ids[0])
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, "only?", questions[0].Question)
}

func TestTranslationInfo(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)

	ids, err := svc.AddSnippets(context.Background(), []Item{
		{
			Text:     "deutscher text",
			Title:    "doc",
			Metadata: &snippet.Metadata{Language: "de", LinkedSnippets: []string{"doc-en"}},
		},
	}, false)
	require.NoError(t, err)

	state, err := svc.TranslationInfo(context.Background(), ids[0])
	require.NoError(t, err)
	assert.True(t, state.HasLinked)
	assert.True(t, state.HasGenerated)
	assert.Equal(t, []string{"de", "fr", "it"}, state.Languages)

	empty, err := svc.TranslationInfo(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, empty.HasLinked)
	assert.False(t, empty.HasGenerated)
	assert.Empty(t, empty.Languages)
}

func TestLinkedSnippets(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)

	// Sibling indexed first so the main snippet can link to it by title.
	_, err := svc.AddSnippets(context.Background(), []Item{
		{Text: "english sibling", Title: "doc-en", Metadata: &snippet.Metadata{Language: "en"}},
	}, true)
	require.NoError(t, err)

	ids, err := svc.AddSnippets(context.Background(), []Item{
		{
			Text:     "deutscher text",
			Title:    "doc-de",
			Metadata: &snippet.Metadata{Language: "de", LinkedSnippets: []string{"doc-en"}},
		},
	}, false)
	require.NoError(t, err)

	linked, err := svc.LinkedSnippets(context.Background(), ids[0])
	require.NoError(t, err)
	require.Len(t, linked, 4) // original de, generated fr + it, linked en sibling

	assert.Equal(t, ids[0], linked[0].ID)
	langs := make(map[string]bool)
	for _, s := range linked {
		if s.Metadata != nil && s.Metadata.Language != "" {
			langs[s.Metadata.Language] = true
		}
	}
	assert.True(t, langs["de"])
	assert.True(t, langs["en"])

	none, err := svc.LinkedSnippets(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}
