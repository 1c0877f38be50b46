package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"kb/config"
	"kb/internal/adapter/analyzer"
	"kb/internal/adapter/chunker"
	"kb/internal/adapter/embedding"
	"kb/internal/adapter/source"
	"kb/internal/adapter/store"
	"kb/internal/domain"
	"kb/internal/usecase"
)

var indexRebuild bool

var indexCmd = &cobra.Command{
	Use:   "index <documents.jsonl> [more.jsonl...]",
	Short: "Index cleaned document records",
	Long: `Index newline-delimited document records into the local knowledge base.
Unchanged documents (same checksum) are skipped; changed ones are
re-chunked, re-embedded and replaced. The index is stored in
.kb/index.db under the target directory.

Examples:
  kb index docs.jsonl                # Incremental index
  kb index "build/*.jsonl"           # Glob over cleaner output
  kb index docs.jsonl --rebuild      # Reprocess everything`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&indexRebuild, "rebuild", false, "reprocess every document regardless of checksums")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	dir := GetRootDir()

	if err := config.EnsureKBDir(dir); err != nil {
		return fmt.Errorf("failed to create .kb directory: %w", err)
	}

	embedder, err := embedding.NewGeminiEmbedder(
		cfg.Embedding.APIKeyEnv,
		cfg.Embedding.Model,
		cfg.Embedding.Dimension,
		cfg.Embedding.BatchSize,
	)
	if err != nil {
		return err
	}

	dbPath := config.IndexDBPath(dir)
	bolt, vectors, err := openIndex(dbPath, cfg.Embedding.Dimension, indexRebuild)
	if err != nil {
		return err
	}
	defer bolt.Close()

	signature := store.ComputeSignature(
		cfg.Embedding.Model,
		cfg.Embedding.Dimension,
		cfg.Chunking.ChunkSize,
		cfg.Chunking.ChunkOverlap,
		cfg.Chunking.MaxSectionChars,
	)

	ch := chunker.NewMarkdownChunker(
		cfg.Chunking.MaxSectionChars,
		cfg.Chunking.ChunkSize,
		cfg.Chunking.ChunkOverlap,
	)

	builder := usecase.NewIndexBuilder(ch, embedder, vectors, bolt, signature, cfg.Embedding.BatchSize)

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Indexing"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)
	builder.SetProgress(func(docID string, indexed bool) {
		bar.Add(1)
	})

	inputs, err := expandInputs(args)
	if err != nil {
		return err
	}
	src, err := source.NewJSONLSource(inputs...)
	if err != nil {
		return err
	}
	defer src.Close()

	build := builder.Build
	if indexRebuild {
		build = builder.ForceRebuild
	}

	stats, err := build(src)
	bar.Finish()
	if err != nil {
		return err
	}

	printBuildStats(stats)
	return nil
}

func printBuildStats(stats domain.BuildStats) {
	fmt.Printf("Documents: %d total, %d indexed, %d skipped\n",
		stats.Total, stats.Indexed, stats.Skipped)
	fmt.Printf("Chunks: %d added, %d deleted\n",
		stats.ChunksAdded, stats.ChunksDeleted)
	if len(stats.Errors) > 0 {
		fmt.Printf("Errors (%d):\n", len(stats.Errors))
		for _, e := range stats.Errors {
			fmt.Printf("  %s: %s\n", e.DocID, e.Err)
		}
	}
}

// expandInputs resolves directory arguments to the record files they
// contain; file and glob arguments pass through unchanged.
func expandInputs(args []string) ([]string, error) {
	var inputs []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err == nil && info.IsDir() {
			found, err := source.Discover(arg, nil, nil)
			if err != nil {
				return nil, fmt.Errorf("failed to scan %s: %w", arg, err)
			}
			if len(found) == 0 {
				return nil, fmt.Errorf("no .jsonl files found under %s", arg)
			}
			inputs = append(inputs, found...)
			continue
		}
		inputs = append(inputs, arg)
	}
	return inputs, nil
}

// openIndex opens the index database and validates its embedding
// dimension. With rebuild set, a dimension mismatch wipes the stale
// database instead of failing.
func openIndex(dbPath string, dimension int, rebuild bool) (*store.Bolt, *store.BoltVectorStore, error) {
	bolt, err := store.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open index store: %w", err)
	}

	vectors := store.NewBoltVectorStore(bolt.DB(), analyzer.NewTokenizer())
	err = vectors.Init(dimension)
	if errors.Is(err, store.ErrDimensionMismatch) && rebuild {
		bolt.Close()
		if err := os.Remove(dbPath); err != nil {
			return nil, nil, fmt.Errorf("failed to remove stale index: %w", err)
		}
		bolt, err = store.Open(dbPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to reopen index store: %w", err)
		}
		vectors = store.NewBoltVectorStore(bolt.DB(), analyzer.NewTokenizer())
		err = vectors.Init(dimension)
	}
	if err != nil {
		bolt.Close()
		if errors.Is(err, store.ErrDimensionMismatch) {
			return nil, nil, fmt.Errorf("%w: stored index uses a different embedding dimension, run 'kb index --rebuild'", err)
		}
		return nil, nil, err
	}

	return bolt, vectors, nil
}
