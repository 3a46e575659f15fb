// Package llm provides the chat-completion collaborators of the indexing and
// retrieval pipeline: machine translation, language identification,
// hypothetical-answer rewriting and example-question generation.
package llm

import "context"

// Provider is the narrow contract the pipeline consumes. Any call may fail;
// callers treat failures as degradable and skip the feature rather than
// aborting the enclosing operation.
type Provider interface {
	// Translate returns text translated from sourceLang to targetLang.
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)

	// DetectLanguage returns the ISO 639-1 code of the text's language.
	DetectLanguage(ctx context.Context, text string) (string, error)

	// HypotheticalAnswer returns a short plausible answer to the question
	// for HyDE retrieval, or "" when generation is unavailable.
	HypotheticalAnswer(ctx context.Context, question string) (string, error)

	// ExampleQuestion returns one question the snippet text would answer,
	// or "" when generation is unavailable.
	ExampleQuestion(ctx context.Context, text, title string) (string, error)
}

// languageNames maps ISO 639-1 codes to the names used in prompts.
var languageNames = map[string]string{
	"en": "English",
	"de": "German",
	"fr": "French",
	"it": "Italian",
	"es": "Spanish",
	"pt": "Portuguese",
	"nl": "Dutch",
	"pl": "Polish",
	"ru": "Russian",
	"ja": "Japanese",
	"zh": "Chinese",
	"ko": "Korean",
}

// LanguageName returns the prompt-facing name for a language code, falling
// back to the code itself.
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return code
}
