// Package main is the entry point for the dfam2cv CLI
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/james-see/dfam2cv/pkg/transport"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configPath string
	verbose    bool
	logFile    string
	logHandle  *os.File
)

func main() {
	err := rootCmd.Execute()
	// PersistentPostRunE is skipped when a command fails
	closeLog()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dfam2cv",
	Short: "Drive a Moog DFAM from MIDI",
	Long: `dfam2cv turns MIDI into the control voltages, gates, velocities and
clock-advance pulses of a two-lane MIDI-to-CV interface for the Moog DFAM.

Examples:
  dfam2cv ports
  dfam2cv run --port "USB MIDI" --frames /dev/ttyACM0
  dfam2cv run --serial /dev/ttyAMA0
  dfam2cv render song.mid --clock
  dfam2cv config show
  dfam2cv tui --port "USB MIDI"
  dfam2cv serve --listen :8080`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogger(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "dfam2cv.eeprom", "Settings image path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to a file instead of stderr")

	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(calibrateCmd)
}

// initLogger installs the default slog logger. The TUI owns the terminal, so
// without --log-file its logs are discarded.
func initLogger(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stderr
	switch {
	case logFile != "":
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logHandle = f
		w = f
	case cmd.Name() == tuiCmd.Name():
		w = io.Discard
	}

	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	})
	slog.SetDefault(slog.New(h))
	return nil
}

// closeLog closes the --log-file handle and points slog back at stderr
func closeLog() error {
	if logHandle == nil {
		return nil
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	err := logHandle.Close()
	logHandle = nil
	if err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	return nil
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List MIDI input ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names := transport.InPorts()
		if len(names) == 0 {
			fmt.Println("No MIDI inputs found")
			return nil
		}
		for i, name := range names {
			fmt.Printf("%2d  %s\n", i, name)
		}
		return nil
	},
}
