package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"kb/config"
	"kb/internal/adapter/store"
)

var docsJSON bool

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "List indexed documents",
	RunE:  runDocs,
}

func init() {
	rootCmd.AddCommand(docsCmd)
	docsCmd.Flags().BoolVar(&docsJSON, "json", false, "output as JSON")
}

func runDocs(cmd *cobra.Command, args []string) error {
	dir := GetRootDir()

	dbPath := config.IndexDBPath(dir)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("no index found. Run 'kb index' first")
	}

	bolt, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open index: %w", err)
	}
	defer bolt.Close()

	docs, err := bolt.ListDocuments()
	if err != nil {
		return err
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].DocID < docs[j].DocID
	})

	if docsJSON {
		output, _ := json.MarshalIndent(docs, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(docs) == 0 {
		fmt.Println("No documents indexed.")
		return nil
	}

	fmt.Printf("%d documents indexed:\n\n", len(docs))
	for _, d := range docs {
		fmt.Printf("  %-30s %s (%d chunks)\n", d.DocID, d.Path, len(d.ChunkIDs))
	}

	stats, err := bolt.Stats()
	if err == nil {
		fmt.Printf("\nTotal chunks: %d, avg chunk length: %.1f tokens\n",
			stats.TotalChunks, stats.AvgChunkLen())
	}

	return nil
}
