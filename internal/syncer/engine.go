// Package syncer drives date-ordered batch synchronization: each date context
// is transcoded, transferred to the media server and scanned before the
// checkpoint moves past it
package syncer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/franz/djsync/internal/checkpoint"
	"github.com/franz/djsync/internal/collection"
	"github.com/franz/djsync/internal/datectx"
	"github.com/franz/djsync/internal/report"
	"github.com/franz/djsync/internal/store"
	"github.com/franz/djsync/internal/transfer"
	"github.com/franz/djsync/internal/util"
	"github.com/schollz/progressbar/v3"
)

// Mode selects how far a batch travels
type Mode string

const (
	// ModeLocal transcodes only
	ModeLocal Mode = "local"
	// ModeRemote transcodes, transfers and triggers a remote scan
	ModeRemote Mode = "remote"
)

// ParseMode validates a sync mode name
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLocal, ModeRemote:
		return Mode(s), nil
	}
	return "", util.Usagef("invalid sync mode '%s' (expect local or remote)", s)
}

// Defaults for Options
const (
	DefaultDryRunNoopCode = 23
	DefaultPollFull       = 5 * time.Second
	DefaultPollQuick      = time.Second
)

// Transcoder converts a batch and returns the mappings it produced
type Transcoder interface {
	Transcode(ctx context.Context, batch []collection.FileMapping, dryRun bool) ([]collection.FileMapping, error)
}

// Transport moves a date-context directory to the media server
type Transport interface {
	HealthCheck(ctx context.Context) error
	Transfer(ctx context.Context, source string, dryRun bool) (*transfer.Result, error)
}

// Scanner is the media server's library scan API
type Scanner interface {
	StartScan(ctx context.Context, full bool) error
	ScanStatus(ctx context.Context) (bool, error)
}

// Ledger records run history. Failures are logged and never abort a run.
type Ledger interface {
	StartRun(run *store.Run) (int64, error)
	InsertBatch(b *store.Batch) error
	FinishRun(id int64, status, errMsg string) error
}

// Options controls a sync run
type Options struct {
	Mode     Mode
	FullScan bool
	// EndDate drops mappings dated after it. Accepts a date context or an
	// ISO date.
	EndDate string
	DryRun  bool
	// DryRunNoopCode is the transport exit code that means "nothing to
	// transfer", which is the expected outcome of a dry run
	DryRunNoopCode int
	PollFull       time.Duration
	PollQuick      time.Duration
	// MaxScanWait bounds the wait for a remote scan. Zero waits forever.
	MaxScanWait time.Duration
}

// DefaultOptions returns remote mode with the standard poll intervals
func DefaultOptions() Options {
	return Options{
		Mode:           ModeRemote,
		DryRunNoopCode: DefaultDryRunNoopCode,
		PollFull:       DefaultPollFull,
		PollQuick:      DefaultPollQuick,
	}
}

// Config wires the engine's collaborators
type Config struct {
	Transcoder  Transcoder
	Transport   Transport
	Scanner     Scanner
	Checkpoints checkpoint.Store
	Ledger      Ledger
	Logger      *report.EventLogger
	Options     Options
}

// Engine runs batch synchronization
type Engine struct {
	transcoder  Transcoder
	transport   Transport
	scanner     Scanner
	checkpoints checkpoint.Store
	ledger      Ledger
	logger      *report.EventLogger
	opts        Options
	sleep       func(ctx context.Context, d time.Duration) error
}

// BatchResult is the outcome of one processed batch
type BatchResult struct {
	Context      string
	Timestamp    int64
	Files        int
	Source       string
	ExitCode     int
	Duration     time.Duration
	Checkpointed bool
}

// Result summarizes a run. On failure it holds the batches processed so far,
// the failed one last.
type Result struct {
	Mappings []collection.FileMapping
	Skipped  int
	Batches  []BatchResult
	Duration time.Duration
}

// Files returns the number of files in completed batches
func (r *Result) Files() int {
	n := 0
	for _, b := range r.Batches {
		n += b.Files
	}
	return n
}

// New creates an engine. Remote mode needs a transport and a scanner.
func New(cfg *Config) (*Engine, error) {
	opts := cfg.Options
	if opts.Mode == "" {
		opts.Mode = ModeRemote
	}
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if opts.DryRunNoopCode == 0 {
		opts.DryRunNoopCode = DefaultDryRunNoopCode
	}
	if opts.PollFull <= 0 {
		opts.PollFull = DefaultPollFull
	}
	if opts.PollQuick <= 0 {
		opts.PollQuick = DefaultPollQuick
	}

	if cfg.Transcoder == nil {
		return nil, fmt.Errorf("%w: transcoder is required", util.ErrInvalidConfig)
	}
	if cfg.Checkpoints == nil {
		return nil, fmt.Errorf("%w: checkpoint store is required", util.ErrInvalidConfig)
	}
	if opts.Mode == ModeRemote && (cfg.Transport == nil || cfg.Scanner == nil) {
		return nil, fmt.Errorf("%w: remote mode requires a transport and a scanner", util.ErrInvalidConfig)
	}

	return &Engine{
		transcoder:  cfg.Transcoder,
		transport:   cfg.Transport,
		scanner:     cfg.Scanner,
		checkpoints: cfg.Checkpoints,
		ledger:      cfg.Ledger,
		logger:      cfg.Logger,
		opts:        opts,
		sleep:       sleepContext,
	}, nil
}

// Options returns the effective options
func (e *Engine) Options() Options { return e.opts }

// Run syncs the mappings batch by batch in chronological order. The first
// failing batch aborts the run with a *BatchError; the checkpoint then still
// names the last batch that fully succeeded.
func (e *Engine) Run(ctx context.Context, mappings []collection.FileMapping) (*Result, error) {
	start := time.Now()
	result := &Result{}

	runID := e.startRun(len(mappings))
	err := e.run(ctx, mappings, runID, result)
	result.Duration = time.Since(start)

	e.finishRun(runID, err)
	e.logger.LogRun(string(e.opts.Mode), len(result.Mappings), result.Duration, err)
	if err != nil {
		util.ErrorLog("%v", err)
		return result, err
	}

	util.InfoLog("Sync duration: %s", result.Duration.Round(time.Millisecond))
	return result, nil
}

func (e *Engine) run(ctx context.Context, mappings []collection.FileMapping, runID int64, result *Result) error {
	if e.opts.Mode == ModeRemote {
		if err := e.transport.HealthCheck(ctx); err != nil {
			return fmt.Errorf("transport unhealthy, abort sync: %w", err)
		}
	}

	batches, skipped, err := Plan(mappings, e.opts.EndDate)
	if err != nil {
		return err
	}
	result.Skipped = skipped
	for _, b := range batches {
		result.Mappings = append(result.Mappings, b.Mappings...)
	}

	total := len(result.Mappings)
	if total == 0 {
		util.InfoLog("Nothing to sync")
		return nil
	}
	util.InfoLog("Syncing %d mappings in %d batches", total, len(batches))

	var bar *progressbar.ProgressBar
	if util.ShowProgress() {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Syncing"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
	}

	done := 0
	for i := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}

		b := &batches[i]
		util.InfoLog("Processing batch in date context '%s' (%d files)", b.Context, len(b.Mappings))

		br, err := e.syncBatch(ctx, b)
		if err == nil {
			err = e.advanceCheckpoint(b.Context, b.Timestamp, br)
		}
		result.Batches = append(result.Batches, *br)
		e.recordBatch(runID, br, err)
		e.logger.LogBatch(b.Context, br.Files, br.Duration, err)
		if err != nil {
			return err
		}

		done += len(b.Mappings)
		if bar != nil {
			bar.Describe(fmt.Sprintf("Syncing | %s", b.Context))
			bar.Set(done)
		} else {
			util.InfoLog("Sync progress: %.2f%%", float64(done)/float64(total)*100)
		}
		util.SuccessLog("Processed batch in date context '%s'", b.Context)
	}
	return nil
}

// syncBatch runs transcode, transfer and scan for one batch
func (e *Engine) syncBatch(ctx context.Context, b *Batch) (*BatchResult, error) {
	start := time.Now()
	br := &BatchResult{Context: b.Context, Timestamp: b.Timestamp, Files: len(b.Mappings)}
	defer func() { br.Duration = time.Since(start) }()

	fail := func(stage Stage, err error) (*BatchResult, error) {
		return br, &BatchError{Context: b.Context, Stage: stage, Err: err}
	}

	encoded, err := e.transcoder.Transcode(ctx, b.Mappings, e.opts.DryRun)
	if err != nil {
		return fail(StageTranscode, err)
	}
	util.DebugLog("Finished encoding batch in date context '%s'", b.Context)

	if e.opts.Mode == ModeLocal {
		util.InfoLog("Local sync mode: skipping remote transfer and scan")
		return br, nil
	}

	// the transcoder decides where files land; send its output directory
	dir := b.Dir()
	if len(encoded) > 0 {
		dir = path.Dir(encoded[len(encoded)-1].Dest)
	}
	source, err := datectx.RelativeRoot(dir)
	if err != nil {
		return fail(StageTransfer, err)
	}
	br.Source = source

	res, err := e.transport.Transfer(ctx, source, e.opts.DryRun)
	if err == nil && res == nil {
		err = errors.New("transport returned no result")
	}
	if res != nil {
		br.ExitCode = res.ExitCode
	}
	if err == nil && !e.transferSucceeded(res.ExitCode) {
		err = &TransferError{Source: source, ExitCode: res.ExitCode, Output: res.Output}
	}
	e.logger.LogTransfer(b.Context, source, br.ExitCode, e.opts.DryRun, err)
	if err != nil {
		return fail(StageTransfer, err)
	}

	if e.opts.DryRun {
		util.DryRunLog("scan", fmt.Sprintf("would start remote scan for '%s'", b.Context))
		return br, nil
	}

	util.InfoLog("File transfer succeeded, initiating remote scan")
	scanStart := time.Now()
	err = e.scan(ctx, b.Context)
	e.logger.LogScan(b.Context, e.opts.FullScan, time.Since(scanStart), err)
	if err != nil {
		return fail(StageScan, err)
	}
	return br, nil
}

func (e *Engine) transferSucceeded(code int) bool {
	if code == 0 {
		return true
	}
	return e.opts.DryRun && code == e.opts.DryRunNoopCode
}

// scan starts a remote scan and polls until the server reports it idle
func (e *Engine) scan(ctx context.Context, dateContext string) error {
	if err := e.scanner.StartScan(ctx, e.opts.FullScan); err != nil {
		return fmt.Errorf("start scan: %w", err)
	}

	interval := e.opts.PollQuick
	if e.opts.FullScan {
		interval = e.opts.PollFull
	}

	var waited time.Duration
	for {
		scanning, err := e.scanner.ScanStatus(ctx)
		if err != nil {
			return fmt.Errorf("unable to get scan status: %w", err)
		}
		if !scanning {
			util.InfoLog("Remote scan complete")
			return nil
		}
		if e.opts.MaxScanWait > 0 && waited >= e.opts.MaxScanWait {
			return &ScanTimeoutError{Context: dateContext, Waited: waited}
		}

		util.DebugLog("Remote scan in progress, waiting...")
		if err := e.sleep(ctx, interval); err != nil {
			return err
		}
		waited += interval
	}
}

// advanceCheckpoint moves the checkpoint to the batch's context unless a
// newer context is already recorded. Dry runs never touch it.
func (e *Engine) advanceCheckpoint(dateContext string, timestamp int64, br *BatchResult) error {
	if e.opts.DryRun {
		return nil
	}

	processed, err := e.checkpoints.IsProcessed(dateContext)
	if err != nil {
		return &BatchError{Context: dateContext, Stage: StageCheckpoint, Err: err}
	}
	if processed {
		util.InfoLog("Already processed date context: %s", dateContext)
		return nil
	}

	if err := e.checkpoints.Save(dateContext); err != nil {
		return &BatchError{Context: dateContext, Stage: StageCheckpoint, Err: err}
	}
	br.Checkpointed = true
	e.logger.LogCheckpoint(dateContext, timestamp)
	return nil
}

func (e *Engine) startRun(mappings int) int64 {
	if e.ledger == nil {
		return 0
	}
	id, err := e.ledger.StartRun(&store.Run{
		Mode:     string(e.opts.Mode),
		FullScan: e.opts.FullScan,
		DryRun:   e.opts.DryRun,
		EndDate:  e.opts.EndDate,
		Mappings: mappings,
	})
	if err != nil {
		util.WarnLog("Failed to record run in ledger: %v", err)
		return 0
	}
	return id
}

func (e *Engine) recordBatch(runID int64, br *BatchResult, err error) {
	if e.ledger == nil || runID == 0 {
		return
	}
	rec := &store.Batch{
		RunID:        runID,
		Context:      br.Context,
		Timestamp:    br.Timestamp,
		Files:        br.Files,
		Source:       br.Source,
		ExitCode:     br.ExitCode,
		Duration:     br.Duration,
		Checkpointed: br.Checkpointed,
		Status:       store.BatchOK,
	}
	if err != nil {
		rec.Status = store.BatchFailed
		rec.Error = err.Error()
	}
	if lerr := e.ledger.InsertBatch(rec); lerr != nil {
		util.WarnLog("Failed to record batch in ledger: %v", lerr)
	}
}

func (e *Engine) finishRun(runID int64, err error) {
	if e.ledger == nil || runID == 0 {
		return
	}
	status, msg := store.RunSucceeded, ""
	if err != nil {
		status, msg = store.RunFailed, err.Error()
	}
	if lerr := e.ledger.FinishRun(runID, status, msg); lerr != nil {
		util.WarnLog("Failed to finish run in ledger: %v", lerr)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsValidationError reports whether err wraps a *ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
