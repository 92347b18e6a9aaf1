// relayd — signaling broker for relaypeer.
//
// Endpoints connect over WebSocket at /ws, receive a random identity, and
// exchange SDP/ICE messages addressed by identity. Prometheus metrics are
// served at /metrics.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/1ureka/relaypeer/internal/config"
	"github.com/1ureka/relaypeer/internal/observability"
	"github.com/1ureka/relaypeer/internal/signaling"
)

var version = "dev"

func main() {
	// Root context — cancelled on Ctrl+C or SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := flag.String("config", "", "Path to a YAML config file")
	listen := flag.String("listen", "", "Listen address, e.g. :7420 (overrides broker.listen)")
	pin := flag.String("pin", "", "PIN endpoints must present; \"random\" generates one")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Broker.Listen = *listen
	}
	if *pin != "" {
		cfg.Broker.PIN = *pin
	}
	if cfg.Broker.PIN == "random" {
		cfg.Broker.PIN = signaling.GeneratePIN(4)
	}
	if *debugMode {
		cfg.Log.Level = "debug"
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("relayd starting",
		zap.String("version", version),
		zap.String("listen", cfg.Broker.Listen),
		zap.Bool("pin", cfg.Broker.PIN != ""))
	if cfg.Broker.PIN != "" {
		logger.Info("endpoints must present PIN", zap.String("pin", cfg.Broker.PIN))
	}

	srv := signaling.NewServer(
		signaling.WithPIN(cfg.Broker.PIN),
		signaling.WithLogger(logger),
	)
	if err := srv.ListenAndServe(ctx, cfg.Broker.Listen); err != nil {
		logger.Error("broker stopped", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("relayd stopped")
}
