// SPDX-License-Identifier: MIT
package main

import (
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"stemmix/cmd"
	"stemmix/internal/analysis"
	"stemmix/internal/asset"
	"stemmix/internal/control"
	"stemmix/internal/device"
	"stemmix/internal/engine"
	applog "stemmix/internal/log"
	"stemmix/internal/transport"
	"stemmix/internal/transport/udp"
)

// main is the entry point for the mixing engine. The program flow is
// divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Configure runtime settings
//   - Initialize PortAudio
//   - Parse command line arguments and load configuration
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Start the render engine on the output device
//   - Start the OSC control server
//   - Start optional status publishers (websocket hub, UDP meters)
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop publishers, control server and the engine
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Limit OS threads to optimize for real-time audio:
	// - One thread dedicated to the render callback (time-critical)
	// - One thread for control dispatch and I/O
	runtime.GOMAXPROCS(2)

	if err := device.Initialize(); err != nil {
		log.Fatal(err)
	}
	defer device.Terminate()

	cfg, err := cmd.ParseArgs()
	if err != nil {
		log.Fatal(err)
	}
	if cfg == nil {
		// Help or version output; nothing to run.
		return
	}

	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}
	if cfg.Debug {
		applog.SetLevel(applog.LevelDebug)
	}

	// Handle one-off commands that don't require the engine to be running
	if cfg.Command == "list" {
		if err := device.ListDevices(); err != nil {
			log.Fatal(err)
		}
		return
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	store := asset.NewStore()
	clock := engine.NewTempoClock(120)
	eng := engine.New(cfg, store, clock)

	// Status publishing is optional; the engine renders the same with or
	// without observers.
	var hub *transport.Hub
	var statusSink transport.Transport
	if cfg.Status.WebSocketEnabled {
		hub = transport.NewHub(cfg.Status.WebSocketPort)
		statusSink = hub
	}

	var meters *analysis.MeterProcessor
	if cfg.Status.WebSocketEnabled || cfg.Status.UDPEnabled {
		meters = analysis.NewMeterProcessor(engine.NumDecks, statusSink)
		eng.AddProcessor(meters)
	}
	if hub != nil {
		eng.AddProcessor(analysis.NewSpectrumProcessor(
			cfg.Audio.FramesPerBuffer, cfg.Audio.SampleRate, hub))
	}

	var publisher *udp.Publisher
	if cfg.Status.UDPEnabled {
		sender, err := udp.NewSender(cfg.Status.UDPTargetAddress)
		if err != nil {
			log.Fatal(err)
		}
		defer sender.Close()

		publisher, err = udp.NewPublisher(cfg.Status.UDPSendInterval, sender, meters)
		if err != nil {
			log.Fatal(err)
		}
	}

	// CRITICAL: Start of real-time audio. Opening the output stream is the
	// one fatal device error path; from here on device trouble is logged,
	// never fatal.
	if err := eng.Start(); err != nil {
		log.Fatal(err)
	}

	ctl, err := control.NewServer(&cfg.Control, eng, statusSink)
	if err != nil {
		log.Fatal(err)
	}
	if err := ctl.Start(); err != nil {
		log.Fatal(err)
	}

	if publisher != nil {
		publisher.Start()
	}

	applog.Infof("stemmix: running on %s (Ctrl+C to stop)", cfg.Control.ListenAddress)

	// Block until termination signal is received
	<-done

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if publisher != nil {
		if err := publisher.Stop(); err != nil {
			applog.Errorf("Error stopping meter publisher: %v", err)
		}
	}
	ctl.Stop()
	if hub != nil {
		if err := hub.Close(); err != nil {
			applog.Errorf("Error closing status hub: %v", err)
		}
	}
	if err := eng.Stop(); err != nil {
		applog.Errorf("Error stopping engine: %v", err)
	}
	eng.Cleanup()
}
