package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/james-see/dfam2cv/pkg/dac"
	"github.com/james-see/dfam2cv/pkg/engine"
	"github.com/james-see/dfam2cv/pkg/hw"
	"github.com/james-see/dfam2cv/pkg/sequencer"
	"github.com/james-see/dfam2cv/pkg/store"
)

var calibrateVolts float64

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and edit the stored settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored settings as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		return store.ExportYAML(os.Stdout, p)
	},
}

var configExportCmd = &cobra.Command{
	Use:   "export <file.yaml>",
	Short: "Write the stored settings to a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProfile()
		if err != nil {
			return err
		}
		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", args[0], err)
		}
		defer f.Close()
		if err := store.ExportYAML(f, p); err != nil {
			return err
		}
		fmt.Printf("Exported %s -> %s\n", configPath, args[0])
		return nil
	},
}

var configImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Replace the stored settings from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		p, err := store.ImportYAML(f)
		if err != nil {
			return err
		}
		if err := (store.File{Path: configPath}).Save(p); err != nil {
			return err
		}
		fmt.Printf("Imported %s -> %s\n", args[0], configPath)
		return nil
	},
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Restore factory settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := store.File{Path: configPath}
		if err := f.Erase(); err != nil {
			return err
		}
		if _, err := f.LoadOrDefault(); err != nil {
			return err
		}
		fmt.Printf("Reset %s to factory settings\n", configPath)
		return nil
	},
}

var configChannelsCmd = &cobra.Command{
	Use:   "channels <a> <b> <keyboard>",
	Short: "Set the MIDI channels of lane A, lane B and the keyboard step control",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var channels [3]uint8
		for i, arg := range args {
			v, err := parseUint8(arg, 1, 16)
			if err != nil {
				return fmt.Errorf("channel %q: %w", arg, err)
			}
			channels[i] = v
		}
		p, err := editProfile(func(e *engine.Engine) { e.UpdateMIDIChannels(channels) })
		if err != nil {
			return err
		}
		fmt.Printf("Channels: A=%d B=%d keyboard=%d\n", p.Global.ChannelA, p.Global.ChannelB, p.Global.KeyboardChannel)
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys <n1> ... <n8>",
	Short: "Set the MIDI notes that select steps 1-8 in keyboard mode",
	Args:  cobra.ExactArgs(sequencer.Steps),
	RunE: func(cmd *cobra.Command, args []string) error {
		var keys [sequencer.Steps]uint8
		for i, arg := range args {
			v, err := parseUint8(arg, 0, 127)
			if err != nil {
				return fmt.Errorf("note %q: %w", arg, err)
			}
			keys[i] = v
		}
		p, err := editProfile(func(e *engine.Engine) { e.UpdateKeyboardPrefs(keys) })
		if err != nil {
			return err
		}
		fmt.Printf("Keys: %v\n", p.Global.Keys)
		return nil
	},
}

var calibrateCmd = &cobra.Command{
	Use:   "calibrate <a|b> <point>",
	Short: "Output a calibration anchor, or correct it from a measured voltage",
	Long: `Outputs the code for anchor <point> (0-10, one per octave) on a lane. With
--volts, the anchor is first corrected so that the measured voltage lands on
<point> volts, and the corrected table is saved.`,
	Args: cobra.ExactArgs(2),
	RunE: runCalibrate,
}

func init() {
	calibrateCmd.Flags().Float64Var(&calibrateVolts, "volts", 0, "Voltage measured at the anchor")
	calibrateCmd.Flags().StringVar(&framesPath, "frames", "", "Write the anchor frame to this file or device")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configExportCmd)
	configCmd.AddCommand(configImportCmd)
	configCmd.AddCommand(configResetCmd)
	configCmd.AddCommand(configChannelsCmd)
	configCmd.AddCommand(configKeysCmd)
}

func parseUint8(s string, min, max int) (uint8, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if v < min || v > max {
		return 0, fmt.Errorf("out of range %d-%d", min, max)
	}
	return uint8(v), nil
}

// editProfile applies fn to an offline engine loaded from the stored
// settings and saves the result
func editProfile(fn func(*engine.Engine)) (engine.Profile, error) {
	return editProfileWith(hw.NewLogSink(slog.Default()), fn)
}

func editProfileWith(sink hw.Sink, fn func(*engine.Engine)) (engine.Profile, error) {
	f := store.File{Path: configPath}
	p, err := f.LoadOrDefault()
	if err != nil {
		return engine.Profile{}, err
	}
	e := engine.New(engine.Config{Sink: sink, Profile: p, Logger: slog.Default()})
	fn(e)
	p = e.Snapshot()
	return p, f.Save(p)
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	ch, err := hw.ParseChannel(args[0])
	if err != nil {
		return err
	}
	point, err := strconv.Atoi(args[1])
	if err != nil || point < 0 || point >= dac.Points {
		return fmt.Errorf("point must be 0-%d", dac.Points-1)
	}

	sinks := hw.Multi{hw.NewLogSink(slog.Default())}
	var frames *hw.FrameSink
	if framesPath != "" {
		out, err := os.OpenFile(framesPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open frames output: %w", err)
		}
		defer out.Close()
		frames = hw.NewFrameSink(out, 64)
		sinks = append(sinks, frames)
	}

	var code uint16
	adjusted := false
	p, err := editProfileWith(sinks, func(e *engine.Engine) {
		if calibrateVolts > 0 {
			adjusted = e.AdjustCalibration(ch, point, calibrateVolts)
		}
		code = e.Calibrate(ch, point)
	})
	if frames != nil {
		if cerr := frames.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return err
	}
	if calibrateVolts > 0 && !adjusted {
		return fmt.Errorf("anchor %d cannot be adjusted", point)
	}

	cal := p.A.Calibration
	if ch == hw.ChannelB {
		cal = p.B.Calibration
	}
	fmt.Printf("Lane %s anchor %d: code %d (%.6f codes/semitone)\n", ch, point, code, cal[point])
	return nil
}
