package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/djsync/internal/store"
)

// SummaryReport describes one sync run
type SummaryReport struct {
	GeneratedAt time.Time

	// Run
	RunID      int64
	Mode       string
	FullScan   bool
	DryRun     bool
	EndDate    string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time

	// Batches
	Mappings      int
	BatchesOK     int
	BatchesFailed int
	FilesSynced   int
	Checkpoint    string
	Batches       []BatchSummary

	// Details
	TopErrors []ErrorSummary

	// Metadata
	DatabasePath string
	EventLogPath string
}

// Duration returns the run's wall time
func (r *SummaryReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// BatchSummary is one row of the batch table
type BatchSummary struct {
	Context      string
	Files        int
	Source       string
	ExitCode     int
	Duration     time.Duration
	Checkpointed bool
	Failed       bool
	Error        string
}

// ErrorSummary represents an error with its count
type ErrorSummary struct {
	Error string
	Count int
}

// GenerateSummaryReport builds a report for a run from the ledger. runID 0
// selects the most recent run.
func GenerateSummaryReport(db *store.Store, runID int64, eventLogPath string) (*SummaryReport, error) {
	var run *store.Run
	var err error
	if runID == 0 {
		runs, lerr := db.ListRuns(1)
		if lerr != nil {
			return nil, fmt.Errorf("failed to list runs: %w", lerr)
		}
		if len(runs) > 0 {
			run = runs[0]
		}
	} else {
		run, err = db.GetRun(runID)
		if err != nil {
			return nil, fmt.Errorf("failed to load run %d: %w", runID, err)
		}
	}
	if run == nil {
		return nil, fmt.Errorf("no sync run recorded")
	}

	report := &SummaryReport{
		GeneratedAt:  time.Now(),
		RunID:        run.ID,
		Mode:         run.Mode,
		FullScan:     run.FullScan,
		DryRun:       run.DryRun,
		EndDate:      run.EndDate,
		Status:       run.Status,
		Error:        run.Error,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		Mappings:     run.Mappings,
		EventLogPath: eventLogPath,
		Batches:      make([]BatchSummary, 0),
		TopErrors:    make([]ErrorSummary, 0),
	}

	batches, err := db.GetBatches(run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load batches: %w", err)
	}

	for _, b := range batches {
		failed := b.Status != store.BatchOK
		report.Batches = append(report.Batches, BatchSummary{
			Context:      b.Context,
			Files:        b.Files,
			Source:       b.Source,
			ExitCode:     b.ExitCode,
			Duration:     b.Duration,
			Checkpointed: b.Checkpointed,
			Failed:       failed,
			Error:        b.Error,
		})
		if failed {
			report.BatchesFailed++
			continue
		}
		report.BatchesOK++
		report.FilesSynced += b.Files
		if b.Checkpointed {
			report.Checkpoint = b.Context
		}
	}

	report.TopErrors = gatherTopErrors(batches, 10)
	return report, nil
}

// gatherTopErrors counts the distinct errors of failed batches
func gatherTopErrors(batches []*store.Batch, limit int) []ErrorSummary {
	errorCounts := make(map[string]int)
	for _, b := range batches {
		if b.Error != "" {
			errorCounts[b.Error]++
		}
	}

	errors := make([]ErrorSummary, 0, len(errorCounts))
	for err, count := range errorCounts {
		errors = append(errors, ErrorSummary{
			Error: err,
			Count: count,
		})
	}

	// Most common first, then alphabetical for stable output
	sort.Slice(errors, func(i, j int) bool {
		if errors[i].Count != errors[j].Count {
			return errors[i].Count > errors[j].Count
		}
		return errors[i].Error < errors[j].Error
	})

	if len(errors) > limit {
		errors = errors[:limit]
	}

	return errors
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var md strings.Builder

	// Header
	md.WriteString("# djsync - Sync Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))

	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Ledger:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	// Overview
	md.WriteString("## 📊 Overview\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Run | #%d |\n", report.RunID))
	md.WriteString(fmt.Sprintf("| Status | %s |\n", report.Status))
	md.WriteString(fmt.Sprintf("| Mode | %s |\n", describeMode(report)))
	md.WriteString(fmt.Sprintf("| Started | %s (%s) |\n", report.StartedAt.Format("2006-01-02 15:04:05"), humanize.Time(report.StartedAt)))
	if d := report.Duration(); d > 0 {
		md.WriteString(fmt.Sprintf("| Duration | %s |\n", d.Round(time.Second)))
	}
	if report.EndDate != "" {
		md.WriteString(fmt.Sprintf("| End Date | %s |\n", report.EndDate))
	}
	md.WriteString(fmt.Sprintf("| Mappings | %s |\n", humanize.Comma(int64(report.Mappings))))
	md.WriteString(fmt.Sprintf("| Files Synced | %s |\n", humanize.Comma(int64(report.FilesSynced))))
	md.WriteString(fmt.Sprintf("| Batches | %d ok / %d failed |\n", report.BatchesOK, report.BatchesFailed))
	if report.Checkpoint != "" {
		md.WriteString(fmt.Sprintf("| Checkpoint | %s |\n", report.Checkpoint))
	}
	md.WriteString("\n")

	if report.Error != "" {
		md.WriteString("## 🚨 Failure\n\n")
		md.WriteString(fmt.Sprintf("```\n%s\n```\n\n", report.Error))
	}

	// Batches
	if len(report.Batches) > 0 {
		md.WriteString("## 📅 Batches\n\n")
		md.WriteString("| Date Context | Files | Exit | Duration | Checkpoint | Source |\n")
		md.WriteString("|--------------|-------|------|----------|------------|--------|\n")
		for _, b := range report.Batches {
			mark := "✅"
			if b.Failed {
				mark = "❌"
			}
			checkpointed := ""
			if b.Checkpointed {
				checkpointed = "yes"
			}
			md.WriteString(fmt.Sprintf("| %s %s | %d | %d | %s | %s | `%s` |\n",
				mark, b.Context, b.Files, b.ExitCode, b.Duration.Round(time.Millisecond),
				checkpointed, truncatePath(b.Source, 60)))
		}
		md.WriteString("\n")
	}

	// Errors
	if len(report.TopErrors) > 0 {
		md.WriteString("## ⚠️ Top Errors\n\n")
		md.WriteString("| Count | Error |\n")
		md.WriteString("|-------|-------|\n")
		for _, err := range report.TopErrors {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", err.Count, err.Error))
		}
		md.WriteString("\n")
	}

	// Footer
	md.WriteString("---\n\n")
	md.WriteString("*Generated by djsync*\n")

	if err := os.WriteFile(outputPath, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

func describeMode(r *SummaryReport) string {
	mode := r.Mode
	if r.Mode == "remote" {
		if r.FullScan {
			mode += ", full scan"
		} else {
			mode += ", quick scan"
		}
	}
	if r.DryRun {
		mode += ", dry run"
	}
	return mode
}

// truncatePath truncates a file path to a maximum length
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	// Truncate from the middle, keeping start and end
	start := maxLen/2 - 2
	end := len(path) - (maxLen/2 - 2)
	return path[:start] + "..." + path[end:]
}
