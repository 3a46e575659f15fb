// Package snippet holds the logical-snippet domain types shared by the write
// and read paths.
package snippet

import "encoding/json"

// Metadata is the free-form snippet metadata: a fixed set of well-known
// optional fields plus an open extension bag for unrecognized keys, so that
// unknown keys survive a write/read round trip.
type Metadata struct {
	// Language is the snippet's own language code, when the caller knows it.
	Language string `json:"language,omitempty"`
	// LinkedSnippets lists titles of sibling snippets that are translations
	// of this one.
	LinkedSnippets []string `json:"linked_snippets,omitempty"`
	// ExampleQuestions are indexed separately for the hybrid search path.
	ExampleQuestions []string `json:"example_questions,omitempty"`
	// TranslationSource is "original" or "generated" for stored variants.
	TranslationSource string `json:"translation_source,omitempty"`

	// Derived, read-side only.
	HasGeneratedTranslations bool     `json:"has_generated_translations,omitempty"`
	AvailableLanguages       []string `json:"available_languages,omitempty"`
	IsGeneratedTranslation   bool     `json:"is_generated_translation,omitempty"`

	// Extra carries unrecognized keys.
	Extra map[string]any `json:"-"`
}

// wellKnownKeys are handled by the typed fields and excluded from Extra.
var wellKnownKeys = map[string]bool{
	"language":                   true,
	"linked_snippets":            true,
	"example_questions":          true,
	"translation_source":         true,
	"has_generated_translations": true,
	"available_languages":        true,
	"is_generated_translation":   true,
}

type metadataAlias Metadata

// MarshalJSON emits the typed fields merged with the extension bag. Typed
// fields win on key collision.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+4)
	for k, v := range m.Extra {
		if !wellKnownKeys[k] {
			out[k] = v
		}
	}

	typed, err := json.Marshal(metadataAlias(m))
	if err != nil {
		return nil, err
	}
	var typedMap map[string]any
	if err := json.Unmarshal(typed, &typedMap); err != nil {
		return nil, err
	}
	for k, v := range typedMap {
		out[k] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON fills the typed fields and routes unknown keys into Extra.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var alias metadataAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range raw {
		if wellKnownKeys[k] {
			delete(raw, k)
		}
	}
	if len(raw) > 0 {
		alias.Extra = raw
	}
	*m = Metadata(alias)
	return nil
}

// Clone returns a deep-enough copy for read-side enrichment without mutating
// the caller's metadata.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return &Metadata{}
	}
	out := *m
	out.LinkedSnippets = append([]string(nil), m.LinkedSnippets...)
	out.ExampleQuestions = append([]string(nil), m.ExampleQuestions...)
	out.AvailableLanguages = append([]string(nil), m.AvailableLanguages...)
	if m.Extra != nil {
		out.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

// ParseMetadataJSON decodes a stored metadata blob. Missing, empty or
// malformed input yields nil rather than an error: stored metadata that no
// longer parses is treated as absent.
func ParseMetadataJSON(s string) *Metadata {
	if s == "" {
		return nil
	}
	var m Metadata
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return &m
}
