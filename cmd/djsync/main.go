package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/franz/djsync/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "djsync",
		Short: "DJ library catalog and date-ordered media server sync",
		Long: `djsync keeps a Rekordbox XML catalog, a date-organized music library and a
Subsonic-compatible media server in step.

Tracks are grouped by the date they were added (YYYY/MM month/DD). Each date is
transcoded, pushed to the server with rsync and scanned before the sync
checkpoint advances, so an interrupted sync resumes where it stopped.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupLogging,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/djsync.yaml)")
	rootCmd.PersistentFlags().String("state-dir", "state", "directory for the sync checkpoint, ledger and event logs")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	viper.BindPFlag("state_dir", rootCmd.PersistentFlags().Lookup("state-dir"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &util.UsageError{Msg: err.Error()}
	})
}

func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in common locations
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("djsync")
		viper.SetConfigType("yaml")
	}

	// DJSYNC_RSYNC_HOST overrides rsync.host
	viper.SetEnvPrefix("DJSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

func setupLogging(cmd *cobra.Command, args []string) error {
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))
	if !util.IsTerminal(os.Stderr.Fd()) {
		util.SetColors(false)
	}
	return nil
}

// exitCode maps an error to the process exit status. Argument validation
// failures exit 2.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case util.IsUsageError(err):
		return 2
	default:
		return 1
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
