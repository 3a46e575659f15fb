package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit_ShortText(t *testing.T) {
	chunks := Split("hello world", 1500, 200)
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0] != "hello world" {
		t.Errorf("Chunk content changed: %q", chunks[0])
	}
}

func TestSplit_EmptyAndWhitespace(t *testing.T) {
	if chunks := Split("", 100, 10); chunks != nil {
		t.Errorf("Empty input: expected nil, got %v", chunks)
	}
	if chunks := Split("   \n\t ", 100, 10); chunks != nil {
		t.Errorf("Whitespace input: expected nil, got %v", chunks)
	}
}

func TestSplit_TwoChunks(t *testing.T) {
	text := strings.Repeat("A", 2000)
	chunks := Split(text, 1500, 200)
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 1500 {
		t.Errorf("Chunk 0 length: expected 1500, got %d", len(chunks[0]))
	}
	// Second chunk starts 200 before the end of the first.
	if len(chunks[1]) != 2000-(1500-200) {
		t.Errorf("Chunk 1 length: expected 700, got %d", len(chunks[1]))
	}
}

func TestSplit_OverlapOffsets(t *testing.T) {
	text := "abcdefghijklmnopqrstuvwxyz"
	chunks := Split(text, 10, 3)
	for i := 1; i < len(chunks); i++ {
		// Each chunk repeats the last 3 bytes of its predecessor.
		prev := chunks[i-1]
		if !strings.HasPrefix(chunks[i], prev[len(prev)-3:]) {
			t.Errorf("Chunk %d does not overlap its predecessor: %q -> %q", i, prev, chunks[i])
		}
	}
}

func TestSplit_RoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		text    string
		size    int
		overlap int
	}{
		{"exact multiple", strings.Repeat("x", 3000), 1000, 100},
		{"ragged tail", strings.Repeat("y", 2741), 500, 50},
		{"tiny windows", "the quick brown fox jumps over the lazy dog", 7, 2},
		{"no overlap", strings.Repeat("z", 999), 100, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chunks := Split(tc.text, tc.size, tc.overlap)
			for i, c := range chunks {
				if len(c) > tc.size {
					t.Errorf("Chunk %d exceeds size: %d > %d", i, len(c), tc.size)
				}
			}
			if got := Join(chunks, tc.overlap); got != tc.text {
				t.Errorf("Round trip failed: got %d bytes, want %d", len(got), len(tc.text))
			}
		})
	}
}

func TestSplit_MultiByteRuneBoundaries(t *testing.T) {
	// 2000 two-byte runes: byte-offset windows would cut characters in
	// half at the 1500 mark.
	text := strings.Repeat("ä", 2000)
	chunks := Split(text, 1500, 200)
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("Chunk %d is not valid UTF-8", i)
		}
		if n := utf8.RuneCountInString(c); n > 1500 {
			t.Errorf("Chunk %d exceeds window: %d runes", i, n)
		}
	}
	if got := Join(chunks, 200); got != text {
		t.Errorf("Round trip failed: got %d bytes, want %d", len(got), len(text))
	}

	// Mixed-width text stays whole when it fits the window in runes even
	// though it exceeds it in bytes.
	mixed := "a" + strings.Repeat("ä", 1200)
	single := Split(mixed, 1500, 200)
	if len(single) != 1 || single[0] != mixed {
		t.Fatalf("Expected mixed text to stay a single chunk, got %d", len(single))
	}
}

func TestSplit_IdempotentOnShortText(t *testing.T) {
	text := "short enough to stay whole"
	once := Split(text, 1500, 200)
	if len(once) != 1 {
		t.Fatalf("Expected single chunk, got %d", len(once))
	}
	twice := Split(once[0], 1500, 200)
	if len(twice) != 1 || twice[0] != text {
		t.Errorf("Re-chunking altered a short text: %v", twice)
	}
}
