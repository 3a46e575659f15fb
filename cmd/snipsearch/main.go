// Package main provides the snipsearch CLI for managing and querying the
// snippet index in Qdrant.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"snipsearch/internal/config"
	"snipsearch/internal/embedding"
	"snipsearch/internal/indexer"
	"snipsearch/internal/llm"
	"snipsearch/internal/retrieval"
	"snipsearch/internal/snippet"
	"snipsearch/internal/storage"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "snipsearch",
	Short: "Snippet indexing and hybrid retrieval tool",
	Long: `CLI tool for managing a multi-language snippet index in Qdrant.

Environment variables:
  QDRANT_HOST                  Qdrant hostname (default: localhost)
  QDRANT_PORT                  Qdrant gRPC port (default: 6334)
  OPENAI_API_KEY               OpenAI API key (required)
  EMBEDDING_MODEL              Embedding model override
  CHAT_MODEL                   Chat model override
  ENABLE_TRANSLATION_INDEXING  "true"/"false" translation toggle`,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import snippets from a JSON file",
	Long: `Imports snippets from a JSON file: either a top-level array of
{text, title, group, metadata} objects or an object with a "snippets" key
holding that array. All snippets are ingested as one batch so linked
siblings share translation coverage.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed snippets",
	RunE:  runList,
}

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List snippet groups",
	RunE:  runGroups,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a snippet and all its variants",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var infoCmd = &cobra.Command{
	Use:   "info <id>",
	Short: "Show translation coverage and linked versions of a snippet",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var questionsCmd = &cobra.Command{
	Use:   "questions [id] [question]...",
	Short: "Replace or generate the example questions of a snippet",
	Long: `Replaces the example questions of a snippet with the given list.
With --generate, one question is generated by the LLM instead; with
--missing, questions are generated for every snippet that has none.`,
	Args: cobra.ArbitraryArgs,
	RunE: runQuestions,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reconnect to Qdrant after an out-of-band data replacement",
	RunE:  runReset,
}

var (
	importGroup     string
	skipTranslation bool

	askCount     int
	askGroups    []string
	askLanguages []string
	askHyde      bool
	askRerank    bool

	listLimit        int
	listOffset       int
	listGroups       []string
	listLanguages    []string
	listTranslations bool

	generateQuestion bool
	generateMissing  bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")

	importCmd.Flags().StringVar(&importGroup, "group", "", "assign all imported snippets to this group")
	importCmd.Flags().BoolVar(&skipTranslation, "skip-translation", false, "do not generate translation variants")

	askCmd.Flags().IntVarP(&askCount, "count", "k", 5, "number of snippets to retrieve")
	askCmd.Flags().StringSliceVar(&askGroups, "group", nil, "restrict to these groups")
	askCmd.Flags().StringSliceVar(&askLanguages, "language", nil, "restrict the text search to these languages")
	askCmd.Flags().BoolVar(&askHyde, "hyde", true, "query with a generated hypothetical answer")
	askCmd.Flags().BoolVar(&askRerank, "rerank", true, "rerank results by lexical overlap")

	listCmd.Flags().IntVar(&listLimit, "limit", 20, "page size")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "page offset")
	listCmd.Flags().StringSliceVar(&listGroups, "group", nil, "restrict to these groups")
	listCmd.Flags().StringSliceVar(&listLanguages, "language", nil, "restrict to these languages")
	listCmd.Flags().BoolVar(&listTranslations, "include-translations", false, "list generated translation variants as separate entries")

	questionsCmd.Flags().BoolVar(&generateQuestion, "generate", false, "generate one question via the LLM instead of supplying them")
	questionsCmd.Flags().BoolVar(&generateMissing, "missing", false, "generate questions for all snippets that have none")

	rootCmd.AddCommand(importCmd, askCmd, listCmd, groupsCmd, infoCmd, questionsCmd, deleteCmd, resetCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the wired collaborators every command needs.
type app struct {
	cfg     *config.Config
	store   *storage.Store
	service *indexer.Service
	engine  *retrieval.Engine
	logger  *slog.Logger
}

func setup() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	store, err := storage.NewStore(storage.Options{
		Host:               cfg.Qdrant.Host,
		Port:               cfg.Qdrant.Port,
		SnippetCollection:  cfg.Qdrant.SnippetCollection,
		QuestionCollection: cfg.Qdrant.QuestionCollection,
		Dimension:          cfg.Embedding.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant: %w", err)
	}

	client, err := embedding.NewOpenAIClient()
	if err != nil {
		store.Close()
		return nil, err
	}
	embedder := embedding.NewEmbedder(client, cfg.Embedding.Model, cfg.Embedding.BatchSize)
	provider := llm.NewOpenAIProvider(client, cfg.LLM.ChatModel)

	return &app{
		cfg:     cfg,
		store:   store,
		service: indexer.NewService(store, embedder, provider, cfg, logger),
		engine:  retrieval.NewEngine(store, embedder, provider, cfg, logger),
		logger:  logger,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("Failed to close store", "error", err)
	}
}

// importItem mirrors the JSON shape produced by the snippet extraction
// tooling.
type importItem struct {
	Text     string            `json:"text"`
	Title    string            `json:"title"`
	Group    string            `json:"group"`
	Metadata *snippet.Metadata `json:"metadata"`
}

func readImportFile(path string) ([]importItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}

	var items []importItem
	if err := json.Unmarshal(data, &items); err == nil {
		return items, nil
	}
	var wrapped struct {
		Snippets []importItem `json:"snippets"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse import file: %w", err)
	}
	return wrapped.Snippets, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	start := time.Now()

	items, err := readImportFile(args[0])
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("Nothing to import")
		return nil
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.EnsureCollections(ctx); err != nil {
		return fmt.Errorf("failed to ensure collections: %w", err)
	}

	batch := make([]indexer.Item, 0, len(items))
	for _, it := range items {
		group := it.Group
		if importGroup != "" {
			group = importGroup
		}
		batch = append(batch, indexer.Item{
			Text:     it.Text,
			Title:    it.Title,
			Group:    group,
			Metadata: it.Metadata,
		})
	}

	fmt.Printf("Importing %d snippets...\n", len(batch))
	ids, err := a.service.AddSnippets(ctx, batch, skipTranslation)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	fmt.Printf("Imported %d snippets in %s\n", len(ids), time.Since(start).Round(time.Second))
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	answer, err := a.engine.RetrieveAndScore(ctx, args[0], askCount, retrieval.Filters{
		Groups:    askGroups,
		Languages: askLanguages,
	}, askHyde, askRerank)
	if err != nil {
		return err
	}

	if len(answer.Snippets) == 0 {
		fmt.Println("No matching snippets")
		return nil
	}
	fmt.Printf("Answer confidence: %.4f\n\n", answer.Confidence)
	for i, s := range answer.Snippets {
		title := s.Title
		if title == "" {
			title = s.ID
		}
		fmt.Printf("%d. %s (confidence %.4f)\n", i+1, title, s.Confidence)
		fmt.Println(indent(s.Text, "   "))
		fmt.Println()
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	snippets, total, err := a.service.ListSnippets(ctx, indexer.ListOptions{
		Limit:               listLimit,
		Offset:              listOffset,
		Groups:              listGroups,
		Languages:           listLanguages,
		IncludeTranslations: listTranslations,
	})
	if err != nil {
		return err
	}

	fmt.Printf("%d snippets (showing %d)\n", total, len(snippets))
	for _, s := range snippets {
		line := s.ID
		if s.Title != "" {
			line += "  " + s.Title
		}
		if s.Group != "" {
			line += "  [" + s.Group + "]"
		}
		if s.Metadata != nil && s.Metadata.Language != "" {
			line += "  (" + s.Metadata.Language + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func runGroups(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	groups, err := a.service.ListGroups(ctx)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if g == "" {
			g = "(ungrouped)"
		}
		fmt.Println(g)
	}
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	state, err := a.service.TranslationInfo(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Linked siblings:        %v\n", state.HasLinked)
	fmt.Printf("Generated translations: %v\n", state.HasGenerated)
	fmt.Printf("Languages:              %s\n", strings.Join(state.Languages, ", "))

	linked, err := a.service.LinkedSnippets(ctx, args[0])
	if err != nil {
		return err
	}
	if len(linked) > 0 {
		fmt.Println("\nVersions:")
		for _, s := range linked {
			lang := ""
			if s.Metadata != nil {
				lang = s.Metadata.Language
			}
			fmt.Printf("  %s  %s (%s)\n", s.ID, s.Title, lang)
		}
	}
	return nil
}

func runQuestions(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	if generateMissing {
		ids, err := a.service.BackfillExampleQuestions(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Generated questions for %d snippets\n", len(ids))
		return nil
	}
	if len(args) == 0 {
		return fmt.Errorf("snippet id required")
	}
	if generateQuestion {
		question, err := a.service.GenerateExampleQuestion(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Indexed generated question for %s: %s\n", args[0], question)
		return nil
	}

	if err := a.service.UpdateExampleQuestions(ctx, args[0], args[1:]); err != nil {
		return err
	}
	fmt.Printf("Indexed %d example questions for %s\n", len(args)-1, args[0])
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.service.DeleteSnippet(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	fmt.Println("Store reconnected")
	return nil
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
