package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/config"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/logger"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/mqtt"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/simulator"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Send simulated sensor readings",
	Long: `Act as one or more tank sensors and send readings to a running server,
either through the HTTP ingestion endpoint or through the MQTT broker.`,
	RunE: runSimulate,
}

var simulateOpts struct {
	mode        string
	url         string
	broker      string
	devices     []string
	interval    time.Duration
	rounds      int
	anomalyRate float64
	logLevel    string
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	f := simulateCmd.Flags()
	f.StringVar(&simulateOpts.mode, "mode", "http", "transport: http or mqtt")
	f.StringVar(&simulateOpts.url, "url", "http://localhost:3000", "server base URL for http mode")
	f.StringVar(&simulateOpts.broker, "broker", "tcp://localhost:1883", "broker URL for mqtt mode")
	f.StringSliceVar(&simulateOpts.devices, "devices", []string{"GREENPULSE-V1-00001", "GREENPULSE-V1-00002", "GREENPULSE-V1-00003"}, "device ids to simulate")
	f.DurationVar(&simulateOpts.interval, "interval", 30*time.Second, "time between rounds")
	f.IntVar(&simulateOpts.rounds, "rounds", 0, "rounds to send, 0 runs until interrupted")
	f.Float64Var(&simulateOpts.anomalyRate, "anomaly-rate", 0.05, "probability of an out-of-range pH sample")
	f.StringVar(&simulateOpts.logLevel, "log-level", "info", "debug, info, warn or error")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if len(simulateOpts.devices) == 0 {
		return errors.New("at least one device id is required")
	}
	if simulateOpts.interval <= 0 {
		return errors.New("interval must be positive")
	}
	if simulateOpts.anomalyRate < 0 || simulateOpts.anomalyRate > 1 {
		return errors.New("anomaly-rate must be between 0 and 1")
	}

	log, err := logger.NewLogger(simulateOpts.logLevel, "console", "greenpulse-simulator")
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	var sink simulator.Sink
	switch strings.ToLower(simulateOpts.mode) {
	case "http":
		sink = simulator.NewHTTPSink(simulateOpts.url)
		log.Info("simulating over http", zap.String("url", simulateOpts.url))
	case "mqtt":
		client, err := mqtt.NewClient(config.MQTTConfig{
			Enabled:   true,
			BrokerURL: simulateOpts.broker,
			ClientID:  "greenpulse-simulator-" + uuid.NewString()[:8],
			Username:  os.Getenv("MQTT_USERNAME"),
			Password:  os.Getenv("MQTT_PASSWORD"),
		}, log.Named("mqtt"))
		if err != nil {
			return err
		}
		defer client.Disconnect()
		sink = simulator.NewMQTTSink(client)
		log.Info("simulating over mqtt", zap.String("broker", simulateOpts.broker))
	default:
		return fmt.Errorf("unknown mode %q", simulateOpts.mode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim := simulator.New(sink, simulateOpts.devices, simulateOpts.anomalyRate, log)
	if err := sim.Run(ctx, simulateOpts.interval, simulateOpts.rounds); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
