// Package chunker splits snippet text into overlapping fixed-size windows.
package chunker

import "strings"

// Split divides text into chunks of at most size runes, where each chunk
// after the first starts overlap runes before the end of the previous one.
// Windows are measured in runes, never raw bytes, so a boundary cannot land
// inside a multi-byte character. Joining the chunks with the overlaps
// stripped reconstructs the input exactly. Whitespace-only input yields nil;
// text no longer than size is returned as a single chunk.
//
// Split assumes overlap < size. Configurations violating that are rejected
// by config.Validate at startup.
func Split(text string, size, overlap int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	if size <= 0 || len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end >= len(runes) {
			break
		}
		start = end - overlap
	}
	return chunks
}

// Join reverses Split: it concatenates chunks, dropping the leading overlap
// runes of every chunk after the first.
func Join(chunks []string, overlap int) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(chunks[0])
	for _, c := range chunks[1:] {
		runes := []rune(c)
		if overlap >= len(runes) {
			continue
		}
		b.WriteString(string(runes[overlap:]))
	}
	return b.String()
}
