package main

import (
	"fmt"
	"strings"

	"github.com/miku/oaipoll"
	"github.com/miku/oaipoll/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	cfgFile  string
	logLevel string
	verbose  bool

	rootCmd = &cobra.Command{
		Use:           "oaipoll",
		Short:         "Incremental OAI-PMH harvester",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath(), "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides config")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "be verbose, same as --log-level debug")

	rootCmd.AddCommand(runCmd, harvestCmd, infoCmd, &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), oaipoll.Version)
		},
	})
}

// newLogger builds a JSON logger, or a console logger in development mode.
// Flags take precedence over the configured level.
func newLogger(level string, development bool) (*zap.Logger, error) {
	if verbose {
		level = "debug"
	}
	if logLevel != "" {
		level = logLevel
	}
	var zcfg zap.Config
	if development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.OutputPaths = []string{"stderr"}
	return zcfg.Build()
}
