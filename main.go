// SPDX-License-Identifier: MIT
package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"lfnmon/cmd"
	"lfnmon/internal/analysis"
	"lfnmon/internal/audio"
	"lfnmon/internal/config"
	applog "lfnmon/internal/log"
	"lfnmon/internal/monitor"
	"lfnmon/internal/record"
	"lfnmon/internal/session"
	"lfnmon/internal/store"
	"lfnmon/internal/transport"
	"lfnmon/internal/tui"
	"lfnmon/pkg/build"
)

// main is the entry point. The program flow has three phases:
//
//  1. Startup (cold path): build info, argument parsing, PortAudio init,
//     device negotiation.
//  2. Capture (hot path): the PortAudio callback produces blocks onto the
//     queue while a single consumer (monitor or recorder) drains it.
//  3. Shutdown (cold path): signal handling, cooperative stop, sink close.
func main() {
	build.Initialize()

	// Two threads suffice: one for the capture callback, one for the
	// consumer and I/O.
	runtime.GOMAXPROCS(2)

	opts, err := cmd.ParseArgs()
	if err != nil {
		applog.Fatalf("%v", err)
	}
	if opts == nil {
		return // --help or --version already handled
	}
	if level, ok := applog.ParseLevel(opts.Config.LogLevel); ok {
		applog.SetLevel(level)
	}

	if err := audio.Initialize(); err != nil {
		applog.Fatalf("%v", err)
	}
	defer audio.Terminate()

	switch opts.Command {
	case cmd.CommandList:
		if opts.Interactive {
			err = tui.StartDeviceBrowser()
		} else {
			err = audio.ListDevices()
		}
	case cmd.CommandRecord:
		err = runRecord(opts)
	default:
		err = runMonitor(opts)
	}
	if err != nil {
		applog.Fatalf("%v", err)
	}
}

// negotiate resolves the capture stream for the configured device.
func negotiate(cfg *config.Config, sess *session.Session) (audio.StreamConfig, error) {
	sess.SetState(session.Negotiating)
	host := &audio.PortAudioHost{
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		LowLatency:      cfg.Audio.LowLatency,
	}
	neg := audio.NewNegotiator(host, cfg.Audio.FramesPerBuffer, cfg.Audio.LowLatency)
	return neg.Negotiate(cfg.Audio.InputDevice, cfg.Audio.SampleRate)
}

// capture starts the producer, runs the consumer until it finishes or a
// termination signal arrives, and stops everything cooperatively.
func capture(sess *session.Session, queue *audio.Queue, producer *audio.Producer, consume func() error) error {
	if err := producer.Start(); err != nil {
		sess.SetState(session.Failed)
		return err
	}

	done := make(chan error, 1)
	go func() { done <- consume() }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	var err error
	select {
	case err = <-done:
		// Consumer finished on its own (planned duration, stream end).
		// Nothing drains the queue anymore, so close it first: a capture
		// callback parked in a backpressure Push wakes with ErrQueueClosed
		// and the stream can then stop without waiting on it.
		queue.Close()
		stopErr := producer.Stop()
		if err == nil {
			err = stopErr
		}
	case s := <-sig:
		applog.Infof("received %v, shutting down", s)
		sess.SetState(session.Stopping)
		sess.Stop()
		// Stopping the producer pushes the end-of-stream sentinel, which
		// lets the consumer drain and exit.
		stopErr := producer.Stop()
		err = <-done
		if err == nil {
			err = stopErr
		}
	}
	return err
}

func runMonitor(opts *cmd.Options) error {
	cfg := opts.Config
	sess := session.New(0, cfg.Recording.SegmentDuration)

	streamCfg, err := negotiate(cfg, sess)
	if err != nil {
		sess.SetState(session.Failed)
		return err
	}

	policy, err := audio.ParsePolicy(cfg.Queue.Policy)
	if err != nil {
		return err
	}
	queue, err := audio.NewQueue(cfg.Queue.Capacity, policy)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	mopts := monitor.Options{
		ReadTimeout: cfg.Queue.ReadTimeout,
		WindowSecs:  cfg.Monitor.WindowSeconds,
		SummaryDir:  cfg.Monitor.SummaryDir,
	}
	if cfg.AlertLogPath != "" {
		alertLog, err := store.OpenAlertLog(cfg.AlertLogPath)
		if err != nil {
			return err
		}
		defer alertLog.Close()
		mopts.AlertLog = alertLog
	}
	if cfg.Transport.WebSocketEnabled {
		ws := transport.NewWebSocketTransport(cfg.Transport.WebSocketPort, cfg.Transport.MinSendInterval)
		defer ws.Close()
		mopts.Transport = ws
	}

	analyzer, err := analysis.NewAnalyzer(cfg.Monitor.NPerSeg, cfg.Monitor.NOverlap, bands(cfg))
	if err != nil {
		return err
	}

	mon := monitor.New(queue, analyzer, db, mopts)
	producer := audio.NewProducer(streamCfg, queue)

	applog.Infof("monitoring %q at %.0f Hz; database %s", streamCfg.DeviceName, streamCfg.SampleRate, cfg.DBPath)
	if err := capture(sess, queue, producer, func() error { return mon.Run(sess) }); err != nil {
		return err
	}

	stats, err := db.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("\n%d windows analyzed, %d alerts; %d measurements on record\n",
		mon.Windows(), mon.Alerts(), stats.Measurements)
	for _, b := range stats.Bands {
		fmt.Printf("  %-12s %6d windows, avg %6.1f dB, max %6.1f dB\n",
			b.Band, b.Count, b.AvgLevel, b.MaxLevel)
	}
	return nil
}

func runRecord(opts *cmd.Options) error {
	cfg := opts.Config
	sess := session.New(opts.Duration, cfg.Recording.SegmentDuration)

	streamCfg, err := negotiate(cfg, sess)
	if err != nil {
		sess.SetState(session.Failed)
		return err
	}

	// Recording favors completeness: a full queue blocks the producer
	// rather than dropping audio.
	queue, err := audio.NewQueue(cfg.Queue.Capacity, audio.Backpressure)
	if err != nil {
		return err
	}

	rec := record.NewRecorder(queue, record.Config{
		OutputDir:      cfg.Recording.OutputDir,
		BitDepth:       cfg.Recording.BitDepth,
		FilterCutoffHz: cfg.Recording.FilterCutoffHz,
		FilterChunk:    cfg.Recording.FilterChunk,
		ReadTimeout:    cfg.Queue.ReadTimeout,
	})
	producer := audio.NewProducer(streamCfg, queue)

	applog.Infof("recording %q at %.0f Hz into %s (%v segments)",
		streamCfg.DeviceName, streamCfg.SampleRate, cfg.Recording.OutputDir, cfg.Recording.SegmentDuration)

	var summary record.Summary
	err = capture(sess, queue, producer, func() error {
		var runErr error
		summary, runErr = rec.Run(sess)
		return runErr
	})
	if err != nil {
		return err
	}

	fmt.Printf("\n%d segment(s), %d frames saved to %s\n", summary.Segments, summary.Frames, summary.OutputDir)
	return nil
}

func bands(cfg *config.Config) []analysis.Band {
	out := make([]analysis.Band, len(cfg.Monitor.Bands))
	for i, b := range cfg.Monitor.Bands {
		out[i] = analysis.Band{Name: b.Name, Low: b.LowHz, High: b.HighHz, Threshold: b.ThresholdDB}
	}
	return out
}
