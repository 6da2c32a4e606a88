package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/james-see/dfam2cv/pkg/api"
	"github.com/james-see/dfam2cv/pkg/engine"
	"github.com/james-see/dfam2cv/pkg/event"
	"github.com/james-see/dfam2cv/pkg/hw"
	"github.com/james-see/dfam2cv/pkg/store"
	"github.com/james-see/dfam2cv/pkg/transport"
	"github.com/james-see/dfam2cv/pkg/tui"
)

var (
	portName   string
	serialName string
	baud       int
	modeSwitch string
	framesPath string
	playPath   string
	listenAddr string
	queueDepth int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine on a live MIDI input",
	Long: `Runs the engine until interrupted. Input comes from a MIDI port, a raw
serial UART, or a MIDI file played in real time. Outputs are logged and,
with --frames, written as DAC frames to a file or serial bridge.`,
	Args: cobra.NoArgs,
	RunE: runLive,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Run the engine with a terminal monitor",
	Args:  cobra.NoArgs,
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with the REST API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	for _, cmd := range []*cobra.Command{runCmd, tuiCmd, serveCmd} {
		cmd.Flags().StringVarP(&portName, "port", "p", "", "MIDI input port name")
		cmd.Flags().StringVar(&serialName, "serial", "", "Serial device carrying raw MIDI")
		cmd.Flags().IntVar(&baud, "baud", transport.MIDIBaud, "Serial baud rate")
		cmd.Flags().StringVar(&modeSwitch, "mode-switch", "clock", "Mode switch position (clock or keyboard)")
		cmd.Flags().StringVar(&framesPath, "frames", "", "Write output frames to this file or device")
		cmd.Flags().IntVar(&queueDepth, "queue", 256, "Event queue depth")
	}
	runCmd.Flags().StringVar(&playPath, "play", "", "Play a MIDI file instead of a live input")
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", ":8080", "API listen address")
}

// live is a running engine with its inputs and outputs
type live struct {
	runner   *engine.Runner
	monitor  *hw.Monitor
	controls *hw.Switches
	store    *store.File
	closers  []func()
	done     chan struct{}
}

func (l *live) Close() {
	<-l.done
	for i := len(l.closers) - 1; i >= 0; i-- {
		l.closers[i]()
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func parseModeSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "clock", "ccs":
		return true, nil
	case "keyboard", "kcs":
		return false, nil
	}
	return false, fmt.Errorf("unknown mode switch position %q (want clock or keyboard)", s)
}

// startLive loads the settings, builds the engine and connects the inputs.
// requireInput rejects a run with no input source.
func startLive(ctx context.Context, requireInput bool) (*live, error) {
	logger := slog.Default()

	clockControlled, err := parseModeSwitch(modeSwitch)
	if err != nil {
		return nil, err
	}

	f := &store.File{Path: configPath}
	profile, err := f.LoadOrDefault()
	if err != nil {
		return nil, err
	}

	l := &live{
		monitor:  hw.NewMonitor(),
		controls: hw.NewSwitches(clockControlled),
		store:    f,
		done:     make(chan struct{}),
	}
	sinks := hw.Multi{l.monitor, hw.NewLogSink(logger)}
	if framesPath != "" {
		out, err := os.OpenFile(framesPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open frames output: %w", err)
		}
		frames := hw.NewFrameSink(out, 1024)
		sinks = append(sinks, frames)
		l.closers = append(l.closers, func() {
			if err := frames.Close(); err != nil {
				logger.Warn("frame output failed", "err", err)
			}
			if n := frames.Dropped(); n > 0 {
				logger.Warn("frames dropped", "count", n)
			}
			out.Close()
		})
	}

	e := engine.New(engine.Config{
		Sink:     sinks,
		Controls: l.controls,
		Profile:  profile,
		Logger:   logger,
	})
	l.runner = engine.NewRunner(e, queueDepth)
	go func() {
		l.runner.Run(ctx)
		close(l.done)
	}()

	submit := func(ev event.Event) { l.runner.Submit(ev) }
	switch {
	case serialName != "":
		rc, err := transport.OpenSerial(transport.SerialConfig{Name: serialName, Baud: baud})
		if err != nil {
			return l, err
		}
		l.closers = append(l.closers, func() { rc.Close() })
		s := transport.NewSerial(rc, sinks, logger)
		go func() {
			if err := s.Run(ctx, submit); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("serial input stopped", "err", err)
			}
		}()
	case portName != "":
		p, err := transport.OpenPort(portName, submit, logger)
		if err != nil {
			return l, err
		}
		l.closers = append(l.closers, p.Close)
	case playPath != "":
		events, err := transport.LoadSMFFile(playPath, transport.SMFOptions{Clock: true})
		if err != nil {
			return l, err
		}
		go func() {
			n, err := transport.Play(ctx, events, l.runner.Submit)
			logger.Info("playback finished", "file", playPath, "queued", n, "err", err)
		}()
	case requireInput:
		return l, errors.New("no input: use --port, --serial or --play (see dfam2cv ports)")
	}
	return l, nil
}

func runLive(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	l, err := startLive(ctx, true)
	if l != nil {
		defer l.Close()
	}
	if err != nil {
		cancel()
		return err
	}

	fmt.Println("Engine running, press Ctrl+C to stop")
	<-ctx.Done()
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	l, err := startLive(ctx, false)
	if l != nil {
		defer l.Close()
	}
	if err != nil {
		cancel()
		return err
	}

	err = tui.Run(ctx, tui.RunnerBackend{Runner: l.runner, Monitor: l.monitor, Controls: l.controls})
	cancel()
	return err
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	l, err := startLive(ctx, false)
	if l != nil {
		defer l.Close()
	}
	if err != nil {
		cancel()
		return err
	}

	fmt.Printf("Starting API server on %s...\n", listenAddr)
	fmt.Printf("Swagger docs available at http://localhost%s/swagger/index.html\n", displayAddr(listenAddr))
	s := api.NewServer(api.Config{Runner: l.runner, Monitor: l.monitor, Controls: l.controls, Store: l.store})
	err = s.Run(ctx, listenAddr)
	cancel()
	return err
}

func displayAddr(addr string) string {
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		return addr[i:]
	}
	return addr
}
