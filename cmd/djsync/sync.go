package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/djsync/internal/collection"
	"github.com/franz/djsync/internal/playlist"
	"github.com/franz/djsync/internal/syncer"
	"github.com/franz/djsync/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the library with the media server",
}

var syncMusicCmd = &cobra.Command{
	Use:   "music",
	Short: "Transcode, transfer and scan new tracks date by date",
	Long: `Sync the tracks of the _pruned playlist that are newer than the sync
checkpoint. Each date context is transcoded into --output, pushed with rsync
and scanned by the media server before the checkpoint advances. A failing
date stops the run; the next run resumes from it.`,
	Example: `  djsync sync music -i rekordbox.xml -o ~/music --scan-mode quick
  djsync sync music -i rekordbox.xml -o ~/music --sync-mode local
  djsync sync music -i rekordbox.xml -o ~/music --scan-mode full --end-date 2025/10\ october/09 --dry-run`,
	RunE: runSyncMusic,
}

var syncPlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the batches a sync would process",
	RunE:  runSyncPlan,
}

var syncPlaylistCmd = &cobra.Command{
	Use:     "playlist",
	Short:   "Export a playlist as M3U8 and push it to the media server",
	Example: `  djsync sync playlist -c rekordbox.xml -p dynamic.unplayed`,
	RunE:    runSyncPlaylist,
}

var syncPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "List new and retagged tracks a sync would send",
	Long: `Compare the _pruned playlist with the client mirror. New tracks are the
ones past the sync checkpoint; changed tracks are already mirrored but their
library tags differ from the mirror copy. Nothing is written.`,
	Example: `  djsync sync preview -c rekordbox.xml --client-mirror-path ~/mirror --library-path ~/Music/DJ`,
	RunE:    runSyncPreview,
}

func init() {
	for _, cmd := range []*cobra.Command{syncMusicCmd, syncPlanCmd} {
		cmd.Flags().StringP("input", "i", "", "Rekordbox XML collection (required)")
		cmd.Flags().StringP("output", "o", "", "root of the date-organized output library (required)")
		cmd.Flags().String("end-date", "", "ignore tracks added after this date (YYYY/MM month/DD or YYYY-MM-DD)")
	}
	syncMusicCmd.Flags().String("scan-mode", "", "media server scan after each date: quick or full (required in remote mode)")
	syncMusicCmd.Flags().String("sync-mode", string(syncer.ModeRemote), "local (transcode only) or remote")
	syncMusicCmd.Flags().BoolP("dry-run", "d", false, "simulate without writing files or advancing the checkpoint")

	syncPlaylistCmd.Flags().StringP("collection", "c", "", "Rekordbox XML collection (required)")
	syncPlaylistCmd.Flags().StringP("playlist-path", "p", "", "dot-separated playlist path, e.g. dynamic.unplayed (required)")
	syncPlaylistCmd.Flags().BoolP("dry-run", "d", false, "simulate the transfer")

	syncPreviewCmd.Flags().StringP("collection", "c", "", "Rekordbox XML collection (required)")
	syncPreviewCmd.Flags().String("client-mirror-path", "", "date-organized copy of the synced library (required)")
	syncPreviewCmd.Flags().String("library-path", "", "directory holding the collection's source files (required)")

	syncCmd.AddCommand(syncMusicCmd, syncPlanCmd, syncPlaylistCmd, syncPreviewCmd)
	rootCmd.AddCommand(syncCmd)
}

// syncArgs are the validated sync flags
type syncArgs struct {
	input  string
	output string
	opts   syncer.Options
}

func parseSyncArgs(input, output, scanMode, syncMode, endDate string, dryRun bool) (*syncArgs, error) {
	if input == "" {
		return nil, util.Usagef("--input is required")
	}
	if output == "" {
		return nil, util.Usagef("--output is required")
	}
	mode, err := syncer.ParseMode(syncMode)
	if err != nil {
		return nil, err
	}

	opts := syncer.DefaultOptions()
	opts.Mode = mode
	opts.DryRun = dryRun
	opts.EndDate = endDate

	switch scanMode {
	case "full":
		opts.FullScan = true
	case "quick":
	case "":
		if mode == syncer.ModeRemote {
			return nil, util.Usagef("--scan-mode is required in remote mode")
		}
	default:
		return nil, util.Usagef("invalid --scan-mode %q (quick or full)", scanMode)
	}
	if endDate != "" {
		if _, err := syncer.ParseEndDate(endDate); err != nil {
			return nil, util.Usagef("invalid --end-date: %v", err)
		}
	}

	opts.DryRunNoopCode = viper.GetInt("sync.dry_run_noop_code")
	opts.PollFull = viper.GetDuration("sync.poll_full")
	opts.PollQuick = viper.GetDuration("sync.poll_quick")
	opts.MaxScanWait = viper.GetDuration("sync.max_scan_wait")
	return &syncArgs{input: input, output: output, opts: opts}, nil
}

func syncArgsFromFlags(cmd *cobra.Command) (*syncArgs, error) {
	input, _ := cmd.Flags().GetString("input")
	output, _ := cmd.Flags().GetString("output")
	endDate, _ := cmd.Flags().GetString("end-date")
	scanMode, syncMode := "", string(syncer.ModeLocal)
	if cmd.Flags().Lookup("scan-mode") != nil {
		scanMode, _ = cmd.Flags().GetString("scan-mode")
		syncMode, _ = cmd.Flags().GetString("sync-mode")
	}
	dryRun := false
	if cmd.Flags().Lookup("dry-run") != nil {
		dryRun, _ = cmd.Flags().GetBool("dry-run")
	}
	return parseSyncArgs(input, output, scanMode, syncMode, endDate, dryRun)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runSyncMusic(cmd *cobra.Command, args []string) error {
	sa, err := syncArgsFromFlags(cmd)
	if err != nil {
		return err
	}

	cat, err := collection.Load(sa.input)
	if err != nil {
		return err
	}

	checkpoints := newCheckpointStore()
	if !sa.opts.DryRun {
		if err := checkpoints.Lock(); err != nil {
			return err
		}
		defer checkpoints.Unlock()
	}

	mappings, err := syncer.CreateSyncMappings(cat, sa.output, checkpoints, viper.GetString("rekordbox_root"))
	if err != nil {
		return err
	}
	if len(mappings) == 0 {
		util.SuccessLog("Nothing to sync")
		return nil
	}

	logger := newEventLogger()
	defer logger.Close()

	cfg := &syncer.Config{
		Transcoder:  newTranscoder(logger),
		Checkpoints: checkpoints,
		Logger:      logger,
		Options:     sa.opts,
	}
	if sa.opts.Mode == syncer.ModeRemote {
		rsync, err := newRsync()
		if err != nil {
			return err
		}
		scanner, err := newSubsonic()
		if err != nil {
			return err
		}
		cfg.Transport = rsync
		cfg.Scanner = scanner
	}

	ledger, err := openLedger()
	if err != nil {
		util.WarnLog("Run history disabled: %v", err)
	} else {
		defer ledger.Close()
		cfg.Ledger = ledger
	}

	engine, err := syncer.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	util.InfoLog("Syncing %s files (%s mode)", humanize.Comma(int64(len(mappings))), sa.opts.Mode)
	result, err := engine.Run(ctx, mappings)
	printSyncSummary(result, sa.opts)
	return err
}

func printSyncSummary(result *syncer.Result, opts syncer.Options) {
	if result == nil {
		return
	}
	if result.Skipped > 0 {
		util.InfoLog("Skipped %s files after the end date", humanize.Comma(int64(result.Skipped)))
	}
	msg := fmt.Sprintf("%s files in %d date batches (%s)",
		humanize.Comma(int64(result.Files())), len(result.Batches), result.Duration.Round(time.Millisecond))
	if opts.DryRun {
		util.DryRunLog("sync", msg)
		return
	}
	util.SuccessLog("Synced %s", msg)
}

func runSyncPlan(cmd *cobra.Command, args []string) error {
	sa, err := syncArgsFromFlags(cmd)
	if err != nil {
		return err
	}
	cat, err := collection.Load(sa.input)
	if err != nil {
		return err
	}

	mappings, err := syncer.CreateSyncMappings(cat, sa.output, newCheckpointStore(), viper.GetString("rekordbox_root"))
	if err != nil {
		return err
	}
	batches, skipped, err := syncer.Plan(mappings, sa.opts.EndDate)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	total := 0
	for _, b := range batches {
		fmt.Fprintf(out, "%-28s %5d files  %s\n", b.Context, len(b.Mappings), b.Dir())
		total += len(b.Mappings)
	}
	fmt.Fprintf(out, "\n%s files in %d batches", humanize.Comma(int64(total)), len(batches))
	if skipped > 0 {
		fmt.Fprintf(out, ", %s after the end date", humanize.Comma(int64(skipped)))
	}
	fmt.Fprintln(out)
	return nil
}

func runSyncPreview(cmd *cobra.Command, args []string) error {
	collectionPath, _ := cmd.Flags().GetString("collection")
	mirror, _ := cmd.Flags().GetString("client-mirror-path")
	libraryPath, _ := cmd.Flags().GetString("library-path")
	switch {
	case collectionPath == "":
		return util.Usagef("--collection is required")
	case mirror == "":
		return util.Usagef("--client-mirror-path is required")
	case libraryPath == "":
		return util.Usagef("--library-path is required")
	}

	cat, err := collection.Load(collectionPath)
	if err != nil {
		return err
	}
	tracks, err := syncer.Preview(cat, &syncer.PreviewConfig{
		MirrorDir:    mirror,
		LibraryDir:   libraryPath,
		Checkpoints:  newCheckpointStore(),
		LocationRoot: viper.GetString("rekordbox_root"),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	counts := map[syncer.Change]int{}
	for _, t := range tracks {
		fmt.Fprintf(out, "%-8s %-10s %s - %s (%s)\n", t.Change, t.DateAdded, t.Artist, t.Title, t.Album)
		counts[t.Change]++
	}
	fmt.Fprintf(out, "\n%s new, %s changed\n",
		humanize.Comma(int64(counts[syncer.ChangeNew])), humanize.Comma(int64(counts[syncer.ChangeTags])))
	return nil
}

func runSyncPlaylist(cmd *cobra.Command, args []string) error {
	collectionPath, _ := cmd.Flags().GetString("collection")
	dotPath, _ := cmd.Flags().GetString("playlist-path")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if collectionPath == "" {
		return util.Usagef("--collection is required")
	}
	if dotPath == "" {
		return util.Usagef("--playlist-path is required")
	}
	if err := requireConfig("navidrome.music_root"); err != nil {
		return err
	}

	cat, err := collection.Load(collectionPath)
	if err != nil {
		return err
	}
	entries, err := playlist.Build(cat, dotPath, playlist.Options{
		LocationRoot: viper.GetString("rekordbox_root"),
		MediaRoot:    viper.GetString("navidrome.music_root"),
		Extension:    viper.GetString("encode.extension"),
	})
	if err != nil {
		return err
	}

	name := playlist.FileName(dotPath)
	local := statePath(outputDir, "playlists", name)
	if dryRun {
		util.DryRunLog("playlist", fmt.Sprintf("write %d entries to %s", len(entries), local))
	} else {
		if err := playlist.Write(local, entries); err != nil {
			return err
		}
		util.InfoLog("Wrote %d entries to %s", len(entries), local)
	}

	rsync, err := newRsync()
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	if err := rsync.HealthCheck(ctx); err != nil {
		return fmt.Errorf("transport unhealthy, abort playlist sync: %w", err)
	}

	// The "/./" marker keeps playlists/<name> as the remote relative path
	source := statePath(outputDir) + string(filepath.Separator) + "." + string(filepath.Separator) + filepath.Join("playlists", name)
	res, err := rsync.Transfer(ctx, source, dryRun)
	if err != nil {
		return err
	}
	noop := viper.GetInt("sync.dry_run_noop_code")
	if res.ExitCode != 0 && !(dryRun && res.ExitCode == noop) {
		return &syncer.TransferError{Source: source, ExitCode: res.ExitCode, Output: res.Output}
	}
	util.SuccessLog("Playlist %s synced to %s", dotPath, rsync.Destination())
	return nil
}
