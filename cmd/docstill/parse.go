package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/selmo/docstill/internal/arbiter"
)

var parseText bool

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Parse one document and print the arbitration summary",
	Long: `Parse runs every registered parser for the file type, scores each
candidate text, and prints the arbitration summary as JSON: which parser
won, per-parser quality scores, and whether the document was treated as
scanned.

With --text the winning text itself is printed instead, which is useful
for eyeballing what a given parser actually extracted.

Examples:
  docstill parse report.pdf
  docstill parse --text report.pdf > report.txt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		arb := newArbiter(cfg, logger)
		doc, attempts, err := arb.Arbitrate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if parseText {
			fmt.Fprint(cmd.OutOrStdout(), doc.Text)
			return nil
		}
		return printJSON(cmd.OutOrStdout(), arbiter.NewSummary(doc, attempts))
	},
}

func init() {
	parseCmd.Flags().BoolVar(&parseText, "text", false, "print the winning text instead of the summary")

	rootCmd.AddCommand(parseCmd)
}
