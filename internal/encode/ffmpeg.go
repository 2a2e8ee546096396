// Package encode transcodes batches of tracks to the format the media server
// streams, using ffmpeg on a bounded worker pool
package encode

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/franz/djsync/internal/collection"
	"github.com/franz/djsync/internal/report"
	"github.com/franz/djsync/internal/util"
	"github.com/sourcegraph/conc/pool"
)

const (
	DefaultExtension  = ".mp3"
	DefaultSampleRate = 44100
	DefaultBitrate    = "320k"
)

// Config configures the ffmpeg transcoder
type Config struct {
	FFmpeg     string // ffmpeg binary, default "ffmpeg"
	FFprobe    string // ffprobe binary, default "ffprobe"
	Threads    int    // concurrent ffmpeg processes, default NumCPU
	Extension  string // output extension, default ".mp3"
	SampleRate int
	Bitrate    string
	// SkipCover disables cover stream detection
	SkipCover bool
	Runner    util.CommandRunner
	// ProbeRunner runs ffprobe. Default: Runner when set, else util.RunOutput
	// so stderr never reaches the JSON parser.
	ProbeRunner util.CommandRunner
	Logger      *report.EventLogger
}

// FFmpeg transcodes files with the ffmpeg command line tool
type FFmpeg struct {
	ffmpeg     string
	ffprobe    string
	threads    int
	extension  string
	sampleRate int
	bitrate    string
	skipCover  bool
	run        util.CommandRunner
	probe      util.CommandRunner
	logger     *report.EventLogger
}

// New creates an ffmpeg transcoder
func New(cfg *Config) *FFmpeg {
	if cfg == nil {
		cfg = &Config{}
	}
	f := &FFmpeg{
		ffmpeg:     cfg.FFmpeg,
		ffprobe:    cfg.FFprobe,
		threads:    cfg.Threads,
		extension:  cfg.Extension,
		sampleRate: cfg.SampleRate,
		bitrate:    cfg.Bitrate,
		skipCover:  cfg.SkipCover,
		run:        cfg.Runner,
		probe:      cfg.ProbeRunner,
		logger:     cfg.Logger,
	}
	if f.ffmpeg == "" {
		f.ffmpeg = "ffmpeg"
	}
	if f.ffprobe == "" {
		f.ffprobe = "ffprobe"
	}
	if f.threads <= 0 {
		f.threads = runtime.NumCPU()
	}
	if f.extension == "" {
		f.extension = DefaultExtension
	}
	if !strings.HasPrefix(f.extension, ".") {
		f.extension = "." + f.extension
	}
	if f.sampleRate <= 0 {
		f.sampleRate = DefaultSampleRate
	}
	if f.bitrate == "" {
		f.bitrate = DefaultBitrate
	}
	if f.probe == nil {
		f.probe = cfg.Runner
	}
	if f.probe == nil {
		f.probe = util.RunOutput
	}
	if f.run == nil {
		f.run = util.RunCommand
	}
	return f
}

// OutputPath replaces the extension of dest with the transcoder's extension
func (f *FFmpeg) OutputPath(dest string) string {
	return strings.TrimSuffix(dest, filepath.Ext(dest)) + f.extension
}

// Args returns the ffmpeg arguments for one file. coverStream < 0 omits the
// artwork mapping.
func (f *FFmpeg) Args(source, dest string, coverStream int) []string {
	args := []string{
		"-i", source,
		"-ar", strconv.Itoa(f.sampleRate),
		"-write_id3v2", "1",
		"-b:a", f.bitrate,
		"-map", "0:0",
	}
	if coverStream >= 0 {
		args = append(args, "-map", fmt.Sprintf("0:%d", coverStream))
	}
	return append(args, "-y", dest)
}

// Transcode encodes every mapping of the batch and returns the mappings with
// their destinations rewritten to the output extension, in input order. The
// first failure cancels the remaining work. In dry-run mode nothing is
// written but the rewritten mappings are still returned.
func (f *FFmpeg) Transcode(ctx context.Context, batch []collection.FileMapping, dryRun bool) ([]collection.FileMapping, error) {
	out := make([]collection.FileMapping, len(batch))
	for i, m := range batch {
		out[i] = collection.FileMapping{Source: m.Source, Dest: f.OutputPath(m.Dest)}
	}

	if dryRun {
		for _, m := range out {
			util.DryRunLog("encode", fmt.Sprintf("%s -> %s", m.Source, m.Dest))
		}
		return out, nil
	}

	p := pool.New().
		WithContext(ctx).
		WithMaxGoroutines(f.threads).
		WithCancelOnError().
		WithFirstError()

	for _, m := range out {
		p.Go(func(ctx context.Context) error {
			return f.encodeOne(ctx, m)
		})
	}

	if err := p.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

func (f *FFmpeg) encodeOne(ctx context.Context, m collection.FileMapping) error {
	start := time.Now()
	if err := os.MkdirAll(filepath.Dir(m.Dest), 0755); err != nil {
		err = fmt.Errorf("failed to create output directory: %w", err)
		f.logger.LogTranscode(m.Source, m.Dest, time.Since(start), err)
		return err
	}

	cover := -1
	if !f.skipCover {
		streams, err := f.probeVideoStreams(ctx, m.Source)
		if err != nil {
			util.WarnLog("Cover detection failed for %s, encoding without cover: %v", m.Source, err)
		} else {
			cover = chooseCover(streams)
		}
	}

	args := f.Args(m.Source, m.Dest, cover)
	util.DebugLog("Run command: %s %s", f.ffmpeg, strings.Join(args, " "))

	code, output, err := f.run(ctx, f.ffmpeg, args...)
	if err == nil && code != 0 {
		err = fmt.Errorf("ffmpeg exited %d for %s: %s", code, m.Source, lastLine(output))
	}
	if err != nil {
		err = fmt.Errorf("transcode %s: %w", m.Source, err)
	}
	f.logger.LogTranscode(m.Source, m.Dest, time.Since(start), err)
	if err != nil {
		return err
	}

	util.DebugLog("Encoded %s", m.Dest)
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
