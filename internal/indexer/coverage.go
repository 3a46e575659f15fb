package indexer

import (
	"sort"
	"strings"
)

// batchCoverage tracks which languages are already covered or being generated
// for a linked group of snippets within one multi-snippet write. It is scoped
// to a single AddSnippets call; concurrent batches each carry their own and
// may duplicate a translation for the same group, which is accepted.
type batchCoverage struct {
	covered map[string]map[string]bool
}

func newBatchCoverage() *batchCoverage {
	return &batchCoverage{covered: make(map[string]map[string]bool)}
}

// coverageKey identifies a linked group: the set {title} ∪ linked titles,
// deduplicated, sorted and joined. Returns "" when the snippet has no title,
// in which case no group identity exists.
func coverageKey(title string, linked []string) string {
	if title == "" {
		return ""
	}
	seen := map[string]bool{title: true}
	titles := []string{title}
	for _, t := range linked {
		if t != "" && !seen[t] {
			seen[t] = true
			titles = append(titles, t)
		}
	}
	sort.Strings(titles)
	return strings.Join(titles, "\x00")
}

// languages returns the language set recorded for a group key.
func (b *batchCoverage) languages(key string) map[string]bool {
	return b.covered[key]
}

// record unions the given language sets into the group's entry so later
// siblings in the batch see them.
func (b *batchCoverage) record(key string, sets ...map[string]bool) {
	entry := b.covered[key]
	if entry == nil {
		entry = make(map[string]bool)
		b.covered[key] = entry
	}
	for _, set := range sets {
		for lang := range set {
			entry[lang] = true
		}
	}
}
