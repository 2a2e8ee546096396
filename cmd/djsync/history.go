package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/djsync/internal/report"
	"github.com/franz/djsync/internal/store"
	"github.com/franz/djsync/internal/util"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past sync runs from the run ledger",
	Long: `List recent sync runs, newest first.

With --report a Markdown summary of one run (the latest by default) is written
to <state_dir>/reports/<timestamp>/summary.md or --out.`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "n", 10, "number of runs to list")
	historyCmd.Flags().Bool("report", false, "write a Markdown report instead of listing")
	historyCmd.Flags().Int64("run", 0, "run ID to report on (default: latest)")
	historyCmd.Flags().String("out", "", "output directory for the report")
	historyCmd.Flags().String("event-log", "", "event log to reference in the report")
	historyCmd.Flags().Int("prune", 0, "delete all but the N most recent runs")
}

func runHistory(cmd *cobra.Command, args []string) error {
	db, err := openLedger()
	if err != nil {
		return fmt.Errorf("failed to open run ledger: %w", err)
	}
	defer db.Close()

	if keep, _ := cmd.Flags().GetInt("prune"); keep > 0 {
		removed, err := db.PruneRuns(keep)
		if err != nil {
			return err
		}
		util.SuccessLog("Pruned %d runs, kept the latest %d", removed, keep)
		return nil
	}

	if wantReport, _ := cmd.Flags().GetBool("report"); wantReport {
		runID, _ := cmd.Flags().GetInt64("run")
		eventLog, _ := cmd.Flags().GetString("event-log")
		outputDir, _ := cmd.Flags().GetString("out")
		return writeRunReport(db, runID, eventLog, outputDir)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := db.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		util.InfoLog("No sync runs recorded yet")
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-5s %-16s %-10s %-8s %7s %7s  %s\n", "ID", "STARTED", "STATUS", "MODE", "BATCHES", "FILES", "DURATION")
	for _, r := range runs {
		mode := r.Mode
		if r.DryRun {
			mode += "*"
		}
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.Duration().Round(time.Second).String()
		}
		fmt.Fprintf(out, "%-5d %-16s %-10s %-8s %7d %7s  %s\n",
			r.ID, humanize.Time(r.StartedAt), r.Status, mode, r.Batches, humanize.Comma(int64(r.Mappings)), duration)
		if r.Error != "" {
			fmt.Fprintf(out, "      %s\n", r.Error)
		}
	}
	return nil
}

func writeRunReport(db *store.Store, runID int64, eventLog, outputDir string) error {
	summary, err := report.GenerateSummaryReport(db, runID, eventLog)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}
	summary.DatabasePath = statePath(ledgerFile)

	if outputDir == "" {
		outputDir = statePath("reports", time.Now().Format("20060102-150405"))
	}
	outputPath := filepath.Join(outputDir, "summary.md")

	if err := report.WriteMarkdownReport(summary, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.SuccessLog("Report for run %d saved to: %s", summary.RunID, outputPath)
	util.InfoLog("  Batches: %d ok, %d failed", summary.BatchesOK, summary.BatchesFailed)
	util.InfoLog("  Files synced: %s", humanize.Comma(int64(summary.FilesSynced)))
	return nil
}
