package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"kb/config"
	"kb/internal/adapter/analyzer"
	"kb/internal/adapter/embedding"
	"kb/internal/adapter/retriever"
	"kb/internal/adapter/store"
	"kb/internal/port"
	"kb/internal/usecase"
)

var (
	queryText string
	queryTopK int
	queryDoc  string
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search indexed documentation",
	Long: `Search for relevant passages with hybrid semantic+lexical retrieval.

Examples:
  kb query -q "page compaction"
  kb query -q "page compaction" --top-k 10 --json
  kb query -q "compaction" --doc docs:storage`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().StringVar(&queryDoc, "doc", "", "restrict results to one document ID")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("query")
}

// newRetriever assembles the hybrid retrieval stack from config.
func newRetriever(bolt *store.Bolt, vectors *store.BoltVectorStore, tokenizer *analyzer.Tokenizer) (port.Retriever, *retriever.HybridRetriever, error) {
	cfg := GetConfig()

	embedder, err := embedding.NewGeminiEmbedder(
		cfg.Embedding.APIKeyEnv,
		cfg.Embedding.Model,
		cfg.Embedding.Dimension,
		cfg.Embedding.BatchSize,
	)
	if err != nil {
		return nil, nil, err
	}

	semantic := retriever.NewSemanticRetriever(vectors, embedder)
	lexical := retriever.NewLexicalRetriever(bolt, tokenizer)
	hybrid := retriever.NewHybridRetriever(semantic, lexical, cfg.Retrieve.Alpha, cfg.Retrieve.MinScore)

	var top port.Retriever = hybrid
	if cfg.Retrieve.RerankEnabled {
		reranker := retriever.NewTermOverlapReranker(tokenizer)
		top = retriever.NewRerankedRetriever(hybrid, reranker, cfg.Retrieve.RerankCandidates)
	}

	return top, hybrid, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	dir := GetRootDir()

	dbPath := config.IndexDBPath(dir)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("no index found. Run 'kb index' first")
	}

	bolt, vectors, err := openIndex(dbPath, cfg.Embedding.Dimension, false)
	if err != nil {
		return err
	}
	defer bolt.Close()

	tokenizer := analyzer.NewTokenizer()
	top, hybrid, err := newRetriever(bolt, vectors, tokenizer)
	if err != nil {
		return err
	}

	topK := cfg.Retrieve.TopK
	if queryTopK > 0 {
		topK = queryTopK
	}

	var chunks []usecase.SearchResult
	if queryDoc != "" {
		scored, err := hybrid.SearchFiltered(queryText, topK, queryDoc)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		chunks, err = usecase.Flatten(scored, bolt)
		if err != nil {
			return err
		}
	} else {
		scored, err := usecase.NewRetrieveUseCase(top).Retrieve(queryText, topK)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		chunks, err = usecase.Flatten(scored, bolt)
		if err != nil {
			return err
		}
	}

	if queryJSON {
		output, _ := json.MarshalIndent(chunks, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(chunks) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results for: %s\n\n", len(chunks), queryText)
	for i, r := range chunks {
		heading := ""
		if len(r.HeadingPath) > 0 {
			heading = " > " + strings.Join(r.HeadingPath, " > ")
		}
		fmt.Printf("--- [%d] %s%s (score: %.3f) ---\n", i+1, r.Path, heading, r.Score)
		text := r.Content
		if len(text) > 500 {
			text = text[:500] + "..."
		}
		fmt.Println(text)
		fmt.Println()
	}

	return nil
}
