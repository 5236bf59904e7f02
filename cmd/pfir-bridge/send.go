package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/sweeney/pfir-bridge/internal/ir"
	"github.com/sweeney/pfir-bridge/internal/pfir"
)

var (
	sendCmdFlags    commandFlags
	sendChip        string
	sendPin         int
	sendRepeats     int
	sendRepeatDelay time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Transmit one command and exit",
	Long: `Apply a single command on the IR line and exit.

Combo-mode receivers time out shortly after the last frame, so the output
only moves briefly. Use serve for sustained control.`,
	Args: cobra.NoArgs,
	RunE: runSend,
}

func init() {
	sendCmdFlags.register(sendCmd.Flags())
	sendCmd.Flags().StringVar(&sendChip, "chip", ir.DefaultChip, "GPIO chip")
	sendCmd.Flags().IntVar(&sendPin, "pin", ir.DefaultPin, "GPIO line offset driving the IR LED")
	sendCmd.Flags().IntVar(&sendRepeats, "repeats", pfir.DefaultConfig().Repeats, "Times to send the frame")
	sendCmd.Flags().DurationVar(&sendRepeatDelay, "repeat-delay", pfir.DefaultConfig().RepeatDelay, "Delay after each frame")
	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) (err error) {
	c, err := sendCmdFlags.command(cmd.Flags())
	if err != nil {
		return err
	}

	logger := mustLogger()
	defer logger.Sync()

	line, err := ir.NewRealLine(sendChip, sendPin)
	if err != nil {
		return fmt.Errorf("init ir: %w", err)
	}
	defer func() { err = multierr.Append(err, line.Close()) }()

	signal := ir.NewSignal(line, ir.SpinDelay{SleepThreshold: ir.DefaultSleepThreshold})
	engine := pfir.NewEngine(signal, pfir.DefaultConfig(), logger.Named("pfir"))

	if err := engine.ApplyRepeated(c, sendRepeats, sendRepeatDelay); err != nil {
		return fmt.Errorf("send %s: %w", c, err)
	}
	logger.Infow("sent", "command", c.String(), "repeats", sendRepeats, "frames", engine.Stats().Frames)
	return nil
}
