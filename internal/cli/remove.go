package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"kb/config"
)

var removeCmd = &cobra.Command{
	Use:   "remove <doc-id>",
	Short: "Remove a document and its chunks from the index",
	Long: `Remove one document from the knowledge base: its chunks, postings and
state record. Useful when a document disappears from the cleaner
output, since indexing never deletes documents on its own.

Example:
  kb remove docs:deprecated-guide`,
	Args: cobra.ExactArgs(1),
	RunE: runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	dir := GetRootDir()
	docID := args[0]

	dbPath := config.IndexDBPath(dir)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("no index found. Run 'kb index' first")
	}

	bolt, vectors, err := openIndex(dbPath, cfg.Embedding.Dimension, false)
	if err != nil {
		return err
	}
	defer bolt.Close()

	_, found, err := bolt.GetDocument(docID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("document %s is not indexed", docID)
	}

	chunkIDs, err := bolt.GetChunkIDs(docID)
	if err != nil {
		return err
	}
	if err := vectors.Delete(chunkIDs); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if err := bolt.DeleteDocument(docID); err != nil {
		return fmt.Errorf("failed to delete document state: %w", err)
	}

	fmt.Printf("Removed %s (%d chunks)\n", docID, len(chunkIDs))
	return nil
}
