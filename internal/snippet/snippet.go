package snippet

import (
	"sort"
	"strings"

	"snipsearch/internal/chunker"
	"snipsearch/internal/storage"
)

// Snippet is the user-facing logical unit, reassembled from its stored
// chunks.
type Snippet struct {
	ID       string
	Text     string
	Title    string
	Group    string
	Metadata *Metadata
}

// Scored is a retrieved snippet with its best-match distance and derived
// confidence.
type Scored struct {
	Snippet
	Distance   float64
	Confidence float64
}

// knownLanguageCodes are the 2-letter codes recognized in linked-snippet
// title suffixes.
var knownLanguageCodes = []string{
	"de", "en", "fr", "it", "es", "pt", "nl", "pl", "ru", "zh", "ja", "ko",
}

// LinkedLanguages extracts the language codes implied by linked-snippet
// titles: a title ending in "-<lang>" for a known 2-letter code covers that
// language.
func LinkedLanguages(titles []string) map[string]bool {
	languages := make(map[string]bool)
	for _, title := range titles {
		if title == "" {
			continue
		}
		lower := strings.ToLower(title)
		for _, lang := range knownLanguageCodes {
			if strings.HasSuffix(lower, "-"+lang) {
				languages[lang] = true
				break
			}
		}
	}
	return languages
}

// MergeChunks reconstructs a variant's text from its chunks: sorted by chunk
// index, concatenated with the chunking overlap stripped, so the result is
// exactly the text that was chunked.
func MergeChunks(chunks []storage.ChunkRecord, overlap int) string {
	sorted := append([]storage.ChunkRecord(nil), chunks...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ChunkIndex < sorted[j].ChunkIndex
	})
	texts := make([]string, len(sorted))
	for i, c := range sorted {
		texts[i] = c.Text
	}
	return chunker.Join(texts, overlap)
}

// SortedLanguages returns the keys of a language set in stable order.
func SortedLanguages(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for lang := range set {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}
