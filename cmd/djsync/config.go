package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/franz/djsync/internal/checkpoint"
	"github.com/franz/djsync/internal/collection"
	"github.com/franz/djsync/internal/encode"
	"github.com/franz/djsync/internal/report"
	"github.com/franz/djsync/internal/store"
	"github.com/franz/djsync/internal/subsonic"
	"github.com/franz/djsync/internal/syncer"
	"github.com/franz/djsync/internal/transfer"
	"github.com/franz/djsync/internal/util"
	"github.com/spf13/viper"
)

// State file names below state_dir
const (
	checkpointFile = "sync_state.txt"
	ledgerFile     = "djsync.db"
	logsDir        = "logs"
	outputDir      = "output"
)

func setDefaults() {
	viper.SetDefault("rekordbox_root", collection.DefaultRoot)
	viper.SetDefault("rsync.module", "navidrome")
	viper.SetDefault("navidrome.port", 4533)
	viper.SetDefault("navidrome.client_id", subsonic.DefaultClientID)
	viper.SetDefault("encode.ffmpeg", "ffmpeg")
	viper.SetDefault("encode.ffprobe", "ffprobe")
	viper.SetDefault("encode.extension", encode.DefaultExtension)
	viper.SetDefault("sync.poll_full", syncer.DefaultPollFull)
	viper.SetDefault("sync.poll_quick", syncer.DefaultPollQuick)
	viper.SetDefault("sync.max_scan_wait", time.Duration(0))
	viper.SetDefault("sync.dry_run_noop_code", syncer.DefaultDryRunNoopCode)
}

// GetConfigString retrieves a string config value with proper precedence:
// 1. Command-line flag (if set)
// 2. Environment variable (DJSYNC_*)
// 3. Config file
// 4. Default value
func GetConfigString(key string, defaultValue string) string {
	val := viper.GetString(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// GetConfigInt retrieves an int config value with proper precedence
func GetConfigInt(key string, defaultValue int) int {
	val := viper.GetInt(key)
	if val == 0 {
		return defaultValue
	}
	return val
}

// statePath joins name onto the configured state directory
func statePath(name ...string) string {
	return filepath.Join(append([]string{GetConfigString("state_dir", "state")}, name...)...)
}

func newCheckpointStore() *checkpoint.FileStore {
	return checkpoint.NewFileStore(statePath(checkpointFile))
}

func openLedger() (*store.Store, error) {
	return store.Open(statePath(ledgerFile))
}

// newEventLogger opens the JSONL event log, falling back to a no-op logger
func newEventLogger() *report.EventLogger {
	logLevel := report.LevelInfo
	if viper.GetBool("quiet") {
		logLevel = report.LevelWarning
	} else if viper.GetBool("verbose") {
		logLevel = report.LevelDebug
	}

	logger, err := report.NewEventLogger(statePath(logsDir), logLevel)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}
	if logger.Path() != "" {
		util.DebugLog("Event log: %s", logger.Path())
	}
	return logger
}

func requireConfig(keys ...string) error {
	for _, key := range keys {
		if viper.GetString(key) == "" {
			return fmt.Errorf("%w: %s is not set (config file or DJSYNC_ environment)", util.ErrInvalidConfig, key)
		}
	}
	return nil
}

func newRsync() (*transfer.Rsync, error) {
	if err := requireConfig("rsync.host", "rsync.module"); err != nil {
		return nil, err
	}
	return transfer.NewRsync(transfer.Config{
		Host:   viper.GetString("rsync.host"),
		Port:   viper.GetInt("rsync.port"),
		User:   viper.GetString("rsync.user"),
		Module: viper.GetString("rsync.module"),
		Retry: &util.RetryConfig{
			MaxAttempts: GetConfigInt("rsync.health_attempts", 1),
			InitialWait: 2 * time.Second,
			MaxWait:     10 * time.Second,
		},
	}), nil
}

func newSubsonic() (*subsonic.Client, error) {
	if err := requireConfig("navidrome.host", "navidrome.username"); err != nil {
		return nil, err
	}
	return subsonic.NewClient(subsonic.Config{
		BaseURL:  subsonic.BaseURL(viper.GetString("navidrome.host"), viper.GetInt("navidrome.port")),
		Username: viper.GetString("navidrome.username"),
		Password: viper.GetString("navidrome.password"),
		ClientID: viper.GetString("navidrome.client_id"),
	}), nil
}

func newTranscoder(logger *report.EventLogger) *encode.FFmpeg {
	return encode.New(&encode.Config{
		FFmpeg:    viper.GetString("encode.ffmpeg"),
		FFprobe:   viper.GetString("encode.ffprobe"),
		Threads:   viper.GetInt("encode.threads"),
		Extension: viper.GetString("encode.extension"),
		SkipCover: viper.GetBool("encode.skip_cover"),
		Logger:    logger,
	})
}
