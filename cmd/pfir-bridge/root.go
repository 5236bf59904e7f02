package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "pfir-bridge",
	Short: "LEGO Power Functions IR bridge",
	Long: `pfir-bridge transmits LEGO Power Functions infrared frames on a GPIO line.

The serve command runs the daemon: commands arrive over MQTT, a serial
BLE-UART bridge or HTTP, and all four channels are refreshed periodically so
combo-mode receivers keep their outputs. The send and frame commands are
one-shot helpers for testing wiring and inspecting the encoding.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func mustLogger() *zap.SugaredLogger {
	logger, err := newLogger(debug)
	if err != nil {
		return zap.NewExample().Sugar()
	}
	return logger
}
