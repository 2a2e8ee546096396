// Package transfer pushes date-context directories to the media server with
// an rsync daemon
package transfer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/franz/djsync/internal/util"
)

// Result is the outcome of one rsync invocation
type Result struct {
	ExitCode int
	Output   string
	Duration time.Duration
}

// Config describes the rsync daemon
type Config struct {
	Binary string
	Host   string
	Port   int
	User   string
	Module string
	Runner util.CommandRunner
	// Retry governs the health check. Nil checks once.
	Retry *util.RetryConfig
}

// Rsync transfers files to an rsync daemon module
type Rsync struct {
	binary string
	url    string
	module string
	run    util.CommandRunner
	retry  *util.RetryConfig
}

// NewRsync creates an Rsync transport
func NewRsync(cfg Config) *Rsync {
	r := &Rsync{
		binary: cfg.Binary,
		url:    DaemonURL(cfg.User, cfg.Host, cfg.Port),
		module: cfg.Module,
		run:    cfg.Runner,
		retry:  cfg.Retry,
	}
	if r.binary == "" {
		r.binary = "rsync"
	}
	if r.run == nil {
		r.run = util.RunCommand
	}
	if r.retry == nil {
		r.retry = util.NoRetry()
	}
	return r
}

// DaemonURL builds rsync://[user@]host[:port]
func DaemonURL(user, host string, port int) string {
	var b strings.Builder
	b.WriteString("rsync://")
	if user != "" {
		b.WriteString(user)
		b.WriteByte('@')
	}
	b.WriteString(host)
	if port > 0 {
		fmt.Fprintf(&b, ":%d", port)
	}
	return b.String()
}

// URL returns the daemon address
func (r *Rsync) URL() string { return r.url }

// Destination returns the daemon module address files are sent to
func (r *Rsync) Destination() string { return r.url + "/" + r.module }

// HealthCheck lists the daemon's modules and fails with util.ErrUnhealthy
// when the daemon does not answer
func (r *Rsync) HealthCheck(ctx context.Context) error {
	err := util.Retry(ctx, r.retry, func(ctx context.Context) error {
		code, out, err := r.run(ctx, r.binary, r.url)
		if err != nil {
			return err
		}
		if code != 0 {
			// a daemon that is still starting refuses connections
			return &util.TransientError{Err: fmt.Errorf("rsync %s exited %d: %s", r.url, code, strings.TrimSpace(out))}
		}
		return nil
	}, "rsync health check")
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrUnhealthy, err)
	}
	util.InfoLog("rsync daemon is running at %s", r.url)
	return nil
}

// Args returns the rsync arguments for sending source. The source is expected
// in "/prefix/./relative" form so that -R recreates only the relative part.
func (r *Rsync) Args(source string, dryRun bool) []string {
	args := []string{source, r.Destination(), "-avzitR", "--progress", "--exclude", ".*"}
	if dryRun {
		args = append(args, "--dry-run")
	}
	return args
}

// Transfer sends source to the daemon module. A non-zero exit code is
// reported in the Result, not as an error.
func (r *Rsync) Transfer(ctx context.Context, source string, dryRun bool) (*Result, error) {
	util.InfoLog("Transfer from '%s' to '%s'", source, r.Destination())

	args := r.Args(source, dryRun)
	util.DebugLog("Run command: %s %s", r.binary, strings.Join(args, " "))

	start := time.Now()
	code, out, err := r.run(ctx, r.binary, args...)
	result := &Result{ExitCode: code, Output: out, Duration: time.Since(start)}
	if err != nil {
		return result, err
	}

	if code != 0 {
		util.DebugLog("rsync exited %d:\n%s", code, strings.TrimSpace(out))
	} else {
		util.DebugLog("rsync finished in %s", result.Duration.Round(time.Millisecond))
	}
	return result, nil
}
