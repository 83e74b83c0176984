// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"streampump/cmd"
	"streampump/internal/audio"
	"streampump/internal/config"
	applog "streampump/internal/log"
	"streampump/internal/metrics"
	"streampump/internal/tui"
	"streampump/pkg/build"
)

// main is the entry point for the stream pump.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase:
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Configure logging and the metrics endpoint
//   - Execute one-off commands if requested
//
// 2. Pumping Phase:
//   - Build the engine (source, processor chain, transports)
//   - Start the pump
//   - Block until end of stream, a termination signal or the TUI exits
//
// 3. Shutdown Phase:
//   - Stop the pump, drain queued frames
//   - Close recordings, transports and the source
func main() {
	if err := run(); err != nil {
		applog.Errorf("%v", err)
		applog.Sync()
		os.Exit(1)
	}
	applog.Sync()
}

func run() error {
	// ==================== STARTUP PHASE ====================

	// Development builds carry no ldflags and keep the defaults.
	buildErr := build.Initialize()

	opts, err := cmd.ParseArgs()
	if err != nil {
		return err
	}
	if opts == nil {
		// Help or version output only.
		return nil
	}
	cfg := opts.Config

	configureLogging(cfg)
	if buildErr != nil {
		applog.Debugf("Build info: %v", buildErr)
	}
	applog.Debugf("%s", build.GetBuildFlags())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				applog.Errorf("Metrics server: %v", err)
			}
		}()
	}

	if opts.Command == cmd.CommandList {
		selected, err := listDevices(cfg)
		if err != nil || !selected {
			return err
		}
	}

	// ==================== PUMPING PHASE ====================

	var (
		tap        *tui.SpectrumTap
		engineOpts []audio.Option
	)
	if cfg.TUI {
		tap = &tui.SpectrumTap{}
		engineOpts = append(engineOpts, audio.WithTransport(tap))
	}

	engine, err := audio.NewEngine(cfg, engineOpts...)
	if err != nil {
		return err
	}
	defer func() {
		// ==================== SHUTDOWN PHASE ====================
		if err := engine.Close(); err != nil {
			applog.Errorf("Error closing engine: %v", err)
		}
		for _, path := range engine.Status().Recording {
			fmt.Printf("Recording saved to: %s\n", path)
		}
	}()

	if err := engine.Start(); err != nil {
		return err
	}

	if cfg.TUI {
		ended := make(chan error, 1)
		go func() {
			if err := engine.Wait(ctx); !errors.Is(err, context.Canceled) {
				ended <- err
			}
		}()
		return tui.RunStatus(ctx, engine, tap, ended)
	}

	applog.Infof("Pumping, press Ctrl+C to stop")
	err = engine.Wait(ctx)
	if errors.Is(err, context.Canceled) {
		applog.Infof("Interrupted, shutting down")
		return nil
	}
	return err
}

// configureLogging applies the log settings from cfg. The status view owns the
// terminal, so only errors are logged while it runs.
func configureLogging(cfg *config.Config) {
	applog.Configure(cfg.LogJSON)

	level, ok := applog.ParseLevel(cfg.LogLevel)
	if !ok {
		level = applog.LevelInfo
		applog.Warnf("Unknown log level %q, using info", cfg.LogLevel)
	}
	if cfg.Debug {
		level = applog.LevelDebug
	}
	if cfg.TUI {
		level = applog.LevelError
	}
	applog.SetLevel(level)
}

// listDevices prints the input devices, or with the TUI lets the user pick one
// to pump from. It reports whether a device was picked and cfg now selects it.
func listDevices(cfg *config.Config) (bool, error) {
	if err := audio.Initialize(); err != nil {
		return false, err
	}
	defer audio.Terminate()

	if !cfg.TUI {
		return false, audio.ListDevices()
	}

	selection, err := tui.SelectDevice()
	if err != nil || selection == nil {
		return false, err
	}

	cfg.Input.Kind = config.InputMic
	cfg.Input.Device = selection.DeviceID
	cfg.Input.SampleRate = selection.SampleRate
	if err := cfg.Validate(); err != nil {
		return false, fmt.Errorf("invalid configuration: %w", err)
	}
	return true, nil
}
