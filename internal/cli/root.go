package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"kb/config"
)

var (
	cfgFile string
	cfg     *config.Config
	rootDir string
)

var rootCmd = &cobra.Command{
	Use:   "kb",
	Short: "Documentation knowledge base - index cleaned docs and answer questions with citations",
	Long: `kb indexes cleaned documentation records into a local vector and keyword
index, serves hybrid semantic+lexical search over it, and answers
questions with citations aligned against the retrieved sources.

Example usage:
  kb index docs.jsonl              # Incrementally index a document stream
  kb query -q "page compaction"    # Search for relevant passages
  kb ask -q "how does compaction work?"
  kb docs                          # List indexed documents`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		// Credentials commonly live in a local .env during development.
		_ = godotenv.Load()

		if rootDir == "" {
			rootDir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
		}

		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./kb.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", "", "index directory (default is current directory)")
}

func GetConfig() *config.Config {
	return cfg
}

func GetRootDir() string {
	return rootDir
}
