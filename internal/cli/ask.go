package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"kb/config"
	"kb/internal/adapter/analyzer"
	"kb/internal/adapter/citation"
	"kb/internal/adapter/llm"
	"kb/internal/usecase"
)

var (
	askText string
	askTopK int
	askJSON bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Answer a question from the indexed documentation",
	Long: `Retrieve relevant passages, generate an answer, and align it against
the retrieved sources. When no source supports the answer, a fallback
message is returned instead of an uncited answer.

Examples:
  kb ask -q "how does compaction work?"
  kb ask -q "how does compaction work?" --json`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askText, "query", "q", "", "question (required)")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of sources to retrieve (default from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
	askCmd.MarkFlagRequired("query")
}

func runAsk(cmd *cobra.Command, args []string) error {
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
	top, _, err := newRetriever(bolt, vectors, tokenizer)
	if err != nil {
		return err
	}

	generator, err := llm.NewGeminiLLM(
		cfg.LLM.APIKeyEnv,
		cfg.LLM.Model,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.TimeoutSeconds,
	)
	if err != nil {
		return err
	}

	aligner := citation.NewAligner(tokenizer, cfg.Citation.MinOverlap)

	topK := cfg.Retrieve.TopK
	if askTopK > 0 {
		topK = askTopK
	}

	ask, err := usecase.NewAskUseCase(top, generator, bolt, aligner, topK)
	if err != nil {
		return err
	}

	answer, err := ask.Ask(askText)
	if err != nil {
		return err
	}

	if askJSON {
		output, _ := json.MarshalIndent(answer, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Println(answer.Text)
	if len(answer.Citations) > 0 {
		fmt.Println("\nSources:")
		for _, c := range answer.Citations {
			heading := ""
			if len(c.HeadingPath) > 0 {
				heading = " > " + strings.Join(c.HeadingPath, " > ")
			}
			fmt.Printf("  [%d] %s (%s%s)\n", c.ID, c.Title, c.Path, heading)
		}
	}

	return nil
}
