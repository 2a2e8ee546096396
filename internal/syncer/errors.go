package syncer

import (
	"fmt"
	"strings"
	"time"
)

// Stage names the step of a batch that failed
type Stage string

const (
	StageTranscode  Stage = "transcode"
	StageTransfer   Stage = "transfer"
	StageScan       Stage = "scan"
	StageCheckpoint Stage = "checkpoint"
)

// ValidationError rejects input the engine cannot order: a mapping without a
// date context or an unusable end date
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed for '%s': %s", e.Path, e.Reason)
}

// BatchError aborts a run. Context names the date context to resume from.
type BatchError struct {
	Context string
	Stage   Stage
	Err     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch sync failed for date context '%s' during %s: %v", e.Context, e.Stage, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// TransferError reports a transport exit code that does not count as success
type TransferError struct {
	Source   string
	ExitCode int
	Output   string
}

func (e *TransferError) Error() string {
	msg := fmt.Sprintf("transfer of '%s' exited %d", e.Source, e.ExitCode)
	if out := strings.TrimSpace(e.Output); out != "" {
		if i := strings.LastIndexByte(out, '\n'); i >= 0 {
			out = out[i+1:]
		}
		msg += ": " + out
	}
	return msg
}

// ScanTimeoutError reports a remote scan still running after the configured
// ceiling
type ScanTimeoutError struct {
	Context string
	Waited  time.Duration
}

func (e *ScanTimeoutError) Error() string {
	return fmt.Sprintf("remote scan for '%s' still running after %s", e.Context, e.Waited)
}
