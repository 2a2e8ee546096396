package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/djsync/internal/checkpoint"
	"github.com/franz/djsync/internal/store"
	"github.com/franz/djsync/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure djsync can operate correctly.

This command checks:
- Required tools (rsync, ffmpeg, ffprobe)
- SQLite version and run ledger integrity
- Sync checkpoint and state directory
- rsync daemon and media server reachability
- Disk space availability

Use this command to troubleshoot issues before running a sync.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().StringP("output", "o", "", "output library directory to check (optional)")
	doctorCmd.Flags().Bool("offline", false, "skip the rsync daemon and media server checks")
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== djsync doctor - System Diagnostics ===")
	util.InfoLog("")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results := []checkResult{
		checkTool(ctx, util.RunCommand, "rsync", "rsync", "--version"),
		checkTool(ctx, util.RunCommand, "ffmpeg", viper.GetString("encode.ffmpeg"), "-version"),
		checkTool(ctx, util.RunCommand, "ffprobe", viper.GetString("encode.ffprobe"), "-version"),
		checkSQLite(),
		checkStateDirectory(statePath()),
		checkDatabase(statePath(ledgerFile)),
		checkCheckpoint(newCheckpointStore()),
	}

	if offline, _ := cmd.Flags().GetBool("offline"); !offline {
		results = append(results, checkRsyncDaemon(ctx), checkMediaServer(ctx))
	}

	results = append(results, checkDiskSpace(statePath(), "state"))
	if output, _ := cmd.Flags().GetString("output"); output != "" {
		results = append(results, checkOutputDirectory(output), checkDiskSpace(output, "output"))
	}

	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("❌ Some critical checks failed. Please resolve errors before syncing.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("⚠️  Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("✅ All checks passed! Ready to sync.")
	}

	return nil
}

// checkTool runs "<binary> <versionFlag>" and reports the version from the
// first output line. rsync, ffmpeg and ffprobe all print "<name> version X".
func checkTool(ctx context.Context, run util.CommandRunner, name, binary, versionFlag string) checkResult {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	code, output, err := run(ctx, binary, versionFlag)
	if err != nil || code != 0 {
		return checkResult{
			name:    name,
			error:   true,
			message: fmt.Sprintf("%s not found or not executable", binary),
		}
	}

	version := "unknown"
	firstLine, _, _ := strings.Cut(output, "\n")
	if parts := strings.Fields(firstLine); len(parts) >= 3 {
		version = parts[2]
	}

	return checkResult{
		name:    name,
		message: fmt.Sprintf("version %s", version),
	}
}

// checkSQLite verifies SQLite version
func checkSQLite() checkResult {
	// modernc.org/sqlite is linked in, so only the version query can fail
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies the run ledger
func checkDatabase(dbPath string) checkResult {
	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Run ledger",
				message: fmt.Sprintf("%s (will be created on first sync)", dbPath),
			}
		}
		return checkResult{
			name:    "Run ledger",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Run ledger",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return checkResult{
			name:    "Run ledger",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "Run ledger",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	runs, _ := db.ListRuns(0)
	failed, _ := db.CountRunsByStatus(store.RunFailed)
	synced, _ := db.CountSyncedFiles()

	result := checkResult{
		name: "Run ledger",
		message: fmt.Sprintf("%s (%s, %d runs, %s files synced)",
			dbPath, humanize.Bytes(uint64(info.Size())), len(runs), humanize.Comma(int64(synced))),
	}
	if len(runs) > 0 && runs[0].Status == store.RunFailed {
		result.warning = true
		result.message += fmt.Sprintf("; last run failed (%d failed in total)", failed)
	}
	return result
}

// checkCheckpoint reports the last synced date context
func checkCheckpoint(cp *checkpoint.FileStore) checkResult {
	current, err := cp.Load()
	if err != nil {
		return checkResult{
			name:    "Sync checkpoint",
			error:   true,
			message: fmt.Sprintf("%s: %v", cp.Path(), err),
		}
	}
	if current == nil {
		return checkResult{
			name:    "Sync checkpoint",
			message: "none (the next sync starts from the oldest date)",
		}
	}
	return checkResult{
		name:    "Sync checkpoint",
		message: fmt.Sprintf("last synced %s", current.Context),
	}
}

// checkStateDirectory verifies the state directory is writable
func checkStateDirectory(path string) checkResult {
	return checkWritableDirectory("State directory", path)
}

// checkOutputDirectory verifies the output library is writable
func checkOutputDirectory(path string) checkResult {
	return checkWritableDirectory("Output directory", path)
}

func checkWritableDirectory(name, path string) checkResult {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(path, 0755); err != nil {
				return checkResult{
					name:    name,
					error:   true,
					message: fmt.Sprintf("cannot create %s: %v", path, err),
				}
			}
			return checkResult{
				name:    name,
				message: fmt.Sprintf("%s (created)", path),
			}
		}
		return checkResult{
			name:    name,
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", path, err),
		}
	}

	if !info.IsDir() {
		return checkResult{
			name:    name,
			error:   true,
			message: fmt.Sprintf("%s is not a directory", path),
		}
	}

	testFile := filepath.Join(path, ".djsync_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    name,
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    name,
		message: fmt.Sprintf("%s (writable)", path),
	}
}

// checkRsyncDaemon lists the configured rsync module
func checkRsyncDaemon(ctx context.Context) checkResult {
	rsync, err := newRsync()
	if err != nil {
		return checkResult{name: "rsync daemon", warning: true, message: err.Error()}
	}
	return checkReachable(ctx, "rsync daemon", rsync.Destination(), rsync)
}

// checkMediaServer pings the Subsonic API
func checkMediaServer(ctx context.Context) checkResult {
	client, err := newSubsonic()
	if err != nil {
		return checkResult{name: "Media server", warning: true, message: err.Error()}
	}
	return checkReachable(ctx, "Media server", viper.GetString("navidrome.host"), pingFunc(client.Ping))
}

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func checkReachable(ctx context.Context, name, target string, hc healthChecker) checkResult {
	if err := hc.HealthCheck(ctx); err != nil {
		return checkResult{
			name:    name,
			error:   true,
			message: fmt.Sprintf("%s: %v", target, err),
		}
	}
	return checkResult{
		name:    name,
		message: fmt.Sprintf("%s (reachable)", target),
	}
}

// checkDiskSpace verifies available disk space
func checkDiskSpace(path string, label string) checkResult {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return checkResult{
			name:    fmt.Sprintf("Disk space (%s)", label),
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)
	totalBytes := stat.Blocks * uint64(stat.Bsize)
	usedBytes := totalBytes - (stat.Bfree * uint64(stat.Bsize))

	usedPercent := float64(usedBytes) / float64(totalBytes) * 100

	// Transcoded batches are small; warn below 2GB
	warning := false
	warningMsg := ""
	if availBytes < 2*humanize.GByte {
		warning = true
		warningMsg = " (low space!)"
	} else if usedPercent > 95 {
		warning = true
		warningMsg = " (>95% used)"
	}

	return checkResult{
		name:    fmt.Sprintf("Disk space (%s)", label),
		warning: warning,
		message: fmt.Sprintf("%s available%s", humanize.Bytes(availBytes), warningMsg),
	}
}
