// Package cli implements the docqa command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docqa/config"
	"docqa/internal/logger"
)

var (
	cfgFile string
	dataDir string
	verbose bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Question answering over PDF documents",
	Long: `docqa ingests PDF documents into a hybrid lexical and vector index
and answers questions about them with cited passages.

Example usage:
  docqa ingest report.pdf          # Ingest a document
  docqa ingest ./papers            # Ingest every PDF in a directory
  docqa ask -q "what was decided?" # Ask a question
  docqa documents                  # List ingested documents`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			wd, werr := os.Getwd()
			if werr != nil {
				return fmt.Errorf("failed to get working directory: %w", werr)
			}
			cfg, err = config.LoadFromDir(wd)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if dataDir != "" {
			cfg.Storage.DataDir = dataDir
		}
		logger.SetVerbose(verbose)
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./docqa.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default from config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
}

func GetConfig() *config.Config {
	return cfg
}
