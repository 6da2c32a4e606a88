// Package main is the entry point for the dfam2cv API server
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/james-see/dfam2cv/pkg/api"
	"github.com/james-see/dfam2cv/pkg/engine"
	"github.com/james-see/dfam2cv/pkg/event"
	"github.com/james-see/dfam2cv/pkg/hw"
	"github.com/james-see/dfam2cv/pkg/store"
	"github.com/james-see/dfam2cv/pkg/transport"
)

func main() {
	port := flag.Int("port", 8080, "Server port")
	config := flag.String("config", "dfam2cv.eeprom", "Settings image path")
	midiIn := flag.String("midi", "", "MIDI input port name")
	keyboard := flag.Bool("keyboard", false, "Start with the mode switch in keyboard position")
	debug := flag.Bool("debug", false, "Debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(*port, *config, *midiIn, !*keyboard, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func run(port int, config, midiIn string, clockControlled bool, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	f := &store.File{Path: config}
	profile, err := f.LoadOrDefault()
	if err != nil {
		return err
	}

	monitor := hw.NewMonitor()
	controls := hw.NewSwitches(clockControlled)
	e := engine.New(engine.Config{
		Sink:     hw.Multi{monitor, hw.NewLogSink(logger)},
		Controls: controls,
		Profile:  profile,
		Logger:   logger,
	})
	runner := engine.NewRunner(e, 256)
	done := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	if midiIn != "" {
		p, err := transport.OpenPort(midiIn, func(ev event.Event) { runner.Submit(ev) }, logger)
		if err != nil {
			return err
		}
		defer p.Close()
	}

	fmt.Printf("Starting dfam2cv API server on port %d...\n", port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", port)

	s := api.NewServer(api.Config{Runner: runner, Monitor: monitor, Controls: controls, Store: f, Logger: logger})
	if err := s.Run(ctx, fmt.Sprintf(":%d", port)); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
