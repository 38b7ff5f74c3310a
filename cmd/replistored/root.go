package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logLevel string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "replistored",
		Short:         "Operational tooling for a replistore node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.AddCommand(newServeCmd(), newSimulateCmd())
	return root
}

// newLogger builds a development-style zap.Logger, following
// edirooss-zmux-server's cmd/zmux-server/main.go encoder config.
func newLogger() (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, err
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = ""
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true
	return cfg.Build()
}
