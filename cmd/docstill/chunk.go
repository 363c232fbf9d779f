package main

import (
	"github.com/spf13/cobra"

	"github.com/selmo/docstill/internal/chunker"
	"github.com/selmo/docstill/internal/doctree"
	"github.com/selmo/docstill/internal/parser"
)

var chunkBudget int

var chunkCmd = &cobra.Command{
	Use:   "chunk <file>",
	Short: "Parse a document and print its chunk plan",
	Long: `Chunk parses the file, builds the structure tree from the winning
text, and prints the resulting chunks as JSON without calling the
analysis provider. Chunk ranges partition the text exactly; oversized
entries mark structural units that exceed the budget on their own.

Examples:
  docstill chunk report.pdf
  docstill chunk --budget 500 report.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		arb := newArbiter(cfg, logger)
		doc, _, err := arb.Arbitrate(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		title := doc.Hints.Title
		if title == "" {
			title = parser.TitleFromFilename(args[0])
		}
		tree := doctree.Build(doc.Text, title, doc.Hints)

		ccfg := chunkingConfig(cfg)
		if chunkBudget > 0 {
			ccfg.TokenBudget = chunkBudget
		}
		return printJSON(cmd.OutOrStdout(), chunker.ChunkTree(doc.Text, tree, ccfg))
	},
}

func init() {
	chunkCmd.Flags().IntVar(&chunkBudget, "budget", 0, "token budget per chunk (default from config)")

	rootCmd.AddCommand(chunkCmd)
}
