// posrelay runs the relay server: a dumb star-topology fan-out with fault
// injection and a clock source for the attached nodes.
//
// Usage:
//
//	posrelay --config=relay.yaml [--debug]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Klingon-tech/klingnet-pos/config"
	"github.com/Klingon-tech/klingnet-pos/internal/detector"
	"github.com/Klingon-tech/klingnet-pos/internal/logging"
	"github.com/Klingon-tech/klingnet-pos/internal/relay"
)

func main() {
	// ── 1. Flags + config ────────────────────────────────────────────────
	configPath := flag.String("config", "relay.yaml", "path to relay config file")
	debug := flag.Bool("debug", false, "single-step mode: disable the periodic clock tick")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "posrelay: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Logger ────────────────────────────────────────────────────────
	logger := logging.New(cfg.Log)

	// ── 3. Double-spend detector (sqlite audit log optional) ────────────
	alertMgr, err := detector.NewAlertManager(cfg.Detector.AlertLogPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open alert audit log")
	}
	defer alertMgr.Close()

	alertMgr.Listen(func(a detector.Alert) {
		logger.Warn().
			Str("attack_id", a.AttackID).
			Str("type", a.Type).
			Str("severity", a.Severity).
			Float64("confidence", a.Confidence).
			Msg(a.Description)
	})

	det := detector.New(detector.Config{
		DetectionWindow:     cfg.Detector.DetectionWindowSeconds,
		SimilarityThreshold: cfg.Detector.SimilarityThreshold,
	}, alertMgr, logger)

	// ── 4. Relay server ──────────────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := relay.New(relay.Config{
		Addr:         addr,
		StepInterval: time.Duration(cfg.Step.IntervalSeconds * float64(time.Second)),
		Debug:        *debug,
	}, det, logger)

	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start relay")
	}
	logger.Info().Str("addr", srv.Addr()).Bool("debug", *debug).Msg("relay listening")

	// ── 5. Operator console blocks the main goroutine; Ctrl-C also stops
	// the server so a background/daemonized posrelay shuts down cleanly. ──
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		srv.Stop()
		os.Exit(0)
	}()

	relay.RunConsole(srv, os.Stdin, os.Stdout)
	srv.Stop()
	logger.Info().Msg("relay stopped")
}
