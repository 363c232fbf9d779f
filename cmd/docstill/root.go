package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/selmo/docstill/internal/config"
	"github.com/selmo/docstill/version"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "docstill",
	Short: "Document analysis pipeline with parser arbitration and structural chunking",
	Long: `Docstill distills documents into structured analysis results.

Every supported file type is parsed by several competing parsers; the
best candidate wins on text quality. The winning text is chunked along
document structure, each chunk is analyzed by an LLM provider, and the
per-chunk results are merged into keywords, an entity graph, and
hierarchical summaries.

Supported inputs: pdf, docx, html, htm, md, markdown, csv, txt.`,
	Version: version.GitRelease,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if logFormat != "" {
			cfg.Log.Format = logFormat
		}
		logger, err = newLogger(cfg.Log)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./docstill.yaml or ~/.docstill/docstill.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "", "log level: debug, info, warn, error",
	)
	rootCmd.PersistentFlags().StringVar(
		&logFormat, "log-format", "", "log format: json or text",
	)

	rootCmd.AddCommand(versionCmd)
}
