package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/james-see/dfam2cv/pkg/clock"
	"github.com/james-see/dfam2cv/pkg/engine"
	"github.com/james-see/dfam2cv/pkg/event"
	"github.com/james-see/dfam2cv/pkg/hw"
	"github.com/james-see/dfam2cv/pkg/store"
	"github.com/james-see/dfam2cv/pkg/transport"
)

var (
	outputFile     string
	synthClock     bool
	tailMs         uint32
	recordDuration time.Duration
)

var renderCmd = &cobra.Command{
	Use:   "render <input.mid>",
	Short: "Render a MIDI file to an output trace",
	Long: `Plays a Standard MIDI File into the engine on a virtual clock and prints
every DAC, gate, velocity, clock-advance and LED write with its timestamp.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var recordCmd = &cobra.Command{
	Use:   "record <output.mid>",
	Short: "Record a live MIDI input to a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runRecord,
}

func init() {
	renderCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Trace file path (default stdout)")
	renderCmd.Flags().BoolVar(&synthClock, "clock", false, "Add Start, 24 PPQN clocks and Stop from the file tempo")
	renderCmd.Flags().Uint32Var(&tailMs, "tail", 500, "Milliseconds to keep running after the last event")
	renderCmd.Flags().StringVar(&modeSwitch, "mode-switch", "clock", "Mode switch position (clock or keyboard)")

	recordCmd.Flags().StringVarP(&portName, "port", "p", "", "MIDI input port name (required)")
	recordCmd.Flags().DurationVarP(&recordDuration, "duration", "d", 0, "Stop after this long (default until interrupted)")
	_ = recordCmd.MarkFlagRequired("port")
}

func loadProfile() (engine.Profile, error) {
	p, err := (store.File{Path: configPath}).Load()
	if errors.Is(err, store.ErrNotConfigured) {
		return engine.DefaultProfile(), nil
	}
	return p, err
}

func runRender(cmd *cobra.Command, args []string) error {
	input := args[0]
	clockControlled, err := parseModeSwitch(modeSwitch)
	if err != nil {
		return err
	}
	profile, err := loadProfile()
	if err != nil {
		return err
	}
	events, err := transport.LoadSMFFile(input, transport.SMFOptions{Clock: synthClock})
	if err != nil {
		return err
	}

	clk := clock.NewCounter(0)
	rec := hw.NewRecorder(clk.Millis)
	e := engine.New(engine.Config{
		Clock:    clk,
		Sink:     rec,
		Controls: &hw.StaticControls{ClockControlled: clockControlled},
		Profile:  profile,
		Logger:   slog.Default(),
	})
	transport.Render(e, clk, events, tailMs)

	var w io.Writer = os.Stdout
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create trace file: %w", err)
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)
	for _, c := range rec.Calls {
		fmt.Fprintln(bw, c.String())
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write trace: %w", err)
	}

	if outputFile != "" {
		fmt.Printf("Rendered %s -> %s (%d events, %d writes, %d ms)\n",
			input, outputFile, len(events), len(rec.Calls), clk.Millis())
	}
	return nil
}

func runRecord(cmd *cobra.Command, args []string) error {
	output := args[0]
	ctx, cancel := signalContext()
	defer cancel()
	if recordDuration > 0 {
		ctx, cancel = context.WithTimeout(ctx, recordDuration)
		defer cancel()
	}

	var (
		mu     sync.Mutex
		events []transport.Timed
		start  = time.Now()
	)
	p, err := transport.OpenPort(portName, func(ev event.Event) {
		at := uint32(time.Since(start) / time.Millisecond)
		mu.Lock()
		events = append(events, transport.Timed{At: at, Event: ev})
		mu.Unlock()
	}, slog.Default())
	if err != nil {
		return err
	}

	fmt.Printf("Recording %s, press Ctrl+C to stop\n", portName)
	<-ctx.Done()
	p.Close()

	mu.Lock()
	defer mu.Unlock()
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create MIDI file: %w", err)
	}
	defer f.Close()
	if err := transport.WriteSMF(f, events); err != nil {
		return err
	}
	fmt.Printf("Recorded %d events -> %s\n", len(events), output)
	return nil
}
