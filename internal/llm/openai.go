package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/pemistahl/lingua-go"
)

// maxSnippetPromptLen bounds the snippet text inlined into the
// example-question prompt.
const maxSnippetPromptLen = 2000

// OpenAIProvider implements Provider with OpenAI chat completions. Language
// detection first tries a local lingua classifier and only falls back to the
// model when the classifier is undecided.
type OpenAIProvider struct {
	client   *openai.Client
	model    string
	detector lingua.LanguageDetector
}

// NewOpenAIProvider creates a provider using the given client and chat model.
func NewOpenAIProvider(client *openai.Client, model string) *OpenAIProvider {
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(
			lingua.English, lingua.German, lingua.French, lingua.Italian,
			lingua.Spanish, lingua.Portuguese, lingua.Dutch, lingua.Polish,
			lingua.Russian, lingua.Japanese, lingua.Chinese, lingua.Korean,
		).
		Build()
	return &OpenAIProvider{
		client:   client,
		model:    model,
		detector: detector,
	}
}

func (p *OpenAIProvider) complete(ctx context.Context, system, user string, maxTokens int64) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(user))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               openai.ChatModel(p.model),
		MaxCompletionTokens: openai.Int(maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Translate translates text between two languages, preserving meaning, tone
// and formatting. Returns the input unchanged when source equals target.
func (p *OpenAIProvider) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("empty text")
	}
	if sourceLang == targetLang {
		return text, nil
	}

	system := fmt.Sprintf(
		"You are a professional translator. Translate the following text from %s to %s. "+
			"Preserve the meaning, tone, and formatting of the original text. "+
			"Output ONLY the translated text, no explanations or notes.",
		LanguageName(sourceLang), LanguageName(targetLang),
	)
	// Allow for expansion relative to the source text.
	budget := int64(len(text)) * 2
	if budget < 256 {
		budget = 256
	}
	out, err := p.complete(ctx, system, text, budget)
	if err != nil {
		return "", fmt.Errorf("translate %s->%s: %w", sourceLang, targetLang, err)
	}
	if out == "" {
		return "", fmt.Errorf("translate %s->%s: empty response", sourceLang, targetLang)
	}
	return out, nil
}

// DetectLanguage identifies the language of the text, preferring the local
// classifier over a model round-trip. Defaults to "en" for empty input.
func (p *OpenAIProvider) DetectLanguage(ctx context.Context, text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "en", nil
	}

	// The first 1000 characters are plenty for classification.
	sample := trimmed
	if len(sample) > 1000 {
		sample = sample[:1000]
	}
	if lang, ok := p.detector.DetectLanguageOf(sample); ok {
		return strings.ToLower(lang.IsoCode639_1().String()), nil
	}

	prompt := "Detect the language of the following text. " +
		"Respond with ONLY the ISO 639-1 language code (e.g. 'en' for English, 'de' for German). " +
		"Do not include any other text.\n\nText: "
	if len(sample) > 500 {
		sample = sample[:500]
	}
	out, err := p.complete(ctx, "", prompt+sample, 10)
	if err != nil {
		return "", err
	}
	code := strings.ToLower(out)
	if len(code) > 2 {
		code = code[:2]
	}
	if code == "" {
		code = "en"
	}
	return code, nil
}

// HypotheticalAnswer generates a 1-2 sentence answer to the question, used to
// build the HyDE query vector.
func (p *OpenAIProvider) HypotheticalAnswer(ctx context.Context, question string) (string, error) {
	prompt := "Answer the following question in 1-2 short sentences, without using any external sources. " +
		"Be concise and direct.\n\nQuestion: " + question
	return p.complete(ctx, "", prompt, 150)
}

// ExampleQuestion generates one question the snippet would answer, for the
// example-question index.
func (p *OpenAIProvider) ExampleQuestion(ctx context.Context, text, title string) (string, error) {
	sample := text
	if len(sample) > maxSnippetPromptLen {
		sample = sample[:maxSnippetPromptLen] + "..."
	}
	titleContext := ""
	if title != "" {
		titleContext = fmt.Sprintf(" titled %q", title)
	}

	system := "You generate example questions for a knowledge base. " +
		"Given a text snippet, generate ONE clear, natural question that this snippet would answer. " +
		"The question should be something a user might actually ask. " +
		"Be concise - output only the question, no explanations or prefixes."
	user := fmt.Sprintf(
		"Generate one example question that the following snippet%s would answer:\n\n---\n%s\n---\n\nQuestion:",
		titleContext, sample,
	)

	out, err := p.complete(ctx, system, user, 100)
	if err != nil {
		return "", err
	}
	return stripQuestionPrefix(out), nil
}

// stripQuestionPrefix removes boilerplate prefixes models tend to emit.
func stripQuestionPrefix(question string) string {
	for _, prefix := range []string{"Question:", "Q:", "Example question:"} {
		if len(question) >= len(prefix) && strings.EqualFold(question[:len(prefix)], prefix) {
			return strings.TrimSpace(question[len(prefix):])
		}
	}
	return question
}
