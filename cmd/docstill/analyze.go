package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/selmo/docstill/internal/analyze"
	"github.com/selmo/docstill/internal/arbiter"
	"github.com/selmo/docstill/internal/pipeline"
)

var (
	analyzeTitle   string
	analyzeOut     string
	analyzeBudget  int
	analyzeWorkers int
	analyzeForce   bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file> [file...]",
	Short: "Run the full pipeline: parse, chunk, analyze, integrate",
	Long: `Analyze runs each file through the whole pipeline and writes the
artifacts (run.json, arbitration.json, chunks.json, chunk_results.json,
result.json) to a per-document directory under the output dir.

A file whose parsers all fail is reported and skipped; chunk-level
analysis failures degrade the run to partial instead of aborting it.
Repeat runs over unchanged files are served from the cache.

Examples:
  docstill analyze report.pdf
  docstill analyze --title "Q3 Report" --budget 800 report.pdf
  docstill analyze --force docs/*.md`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if analyzeWorkers > 0 {
			cfg.Analysis.Workers = analyzeWorkers
		}
		outDir := cfg.Output.Dir
		if analyzeOut != "" {
			outDir = analyzeOut
		}

		store, err := newCacheStore(cfg.Cache)
		if err != nil {
			return err
		}
		stats := analyze.NewCallStats(time.Hour)
		runner := newRunner(cfg, store, stats, logger)

		ctx := cmd.Context()
		var failed []string
		for _, path := range args {
			if err := ctx.Err(); err != nil {
				return err
			}

			run := pipeline.NewRun(path, analyzeTitle)
			rlog := logger.With("run_id", run.ID, "file", path)
			rlog.Info("starting run")

			out, err := runner.Process(ctx, run, path, pipeline.Options{
				ForceReparse:  analyzeForce,
				ForceChunking: analyzeForce,
				TokenBudget:   analyzeBudget,
			})
			if err != nil {
				var pf *arbiter.ParseFailure
				if errors.As(err, &pf) {
					rlog.Error("all parsers failed", "error", err)
				} else {
					rlog.Error("run failed", "error", err)
				}
				failed = append(failed, path)
				continue
			}

			snap := run.Snapshot()
			dir := filepath.Join(outDir, artifactDirName(path, snap.ContentHash))
			if err := out.WriteArtifacts(dir); err != nil {
				rlog.Error("writing artifacts failed", "error", err)
				failed = append(failed, path)
				continue
			}
			rlog.Info("run finished",
				"status", snap.Status,
				"parser", out.Document.ChosenParserID,
				"scanned", out.Document.IsScanned,
				"chunks", snap.Progress.TotalChunks,
				"chunks_ok", snap.Progress.ChunksOK,
				"chunks_failed", snap.Progress.ChunksFailed,
				"artifacts", dir,
			)
		}

		if s := stats.Snapshot(); s.Count > 0 {
			logger.Info("provider call stats",
				"model", cfg.Provider.Model,
				"calls", s.Count,
				"avg_ms", s.AvgMs,
				"p95_ms", s.P95Ms,
			)
		}
		if len(failed) > 0 {
			return fmt.Errorf("%d of %d file(s) failed: %s",
				len(failed), len(args), strings.Join(failed, ", "))
		}
		return nil
	},
}

// artifactDirName is stable per file content, so re-analyzing the same
// document overwrites its previous artifacts instead of piling up dirs.
func artifactDirName(path, contentHash string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if stem == "" {
		stem = "document"
	}
	if len(contentHash) > 12 {
		contentHash = contentHash[:12]
	}
	if contentHash == "" {
		return stem
	}
	return stem + "-" + contentHash
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeTitle, "title", "", "document title override")
	analyzeCmd.Flags().StringVar(&analyzeOut, "out", "", "artifacts directory (default from config)")
	analyzeCmd.Flags().IntVar(&analyzeBudget, "budget", 0, "token budget per chunk (default from config)")
	analyzeCmd.Flags().IntVar(&analyzeWorkers, "workers", 0, "concurrent analysis workers (default from config)")
	analyzeCmd.Flags().BoolVar(&analyzeForce, "force", false, "ignore cached parse and chunk results")

	rootCmd.AddCommand(analyzeCmd)
}
