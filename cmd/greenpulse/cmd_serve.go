package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/alerting"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/handlers"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/middleware"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/mqtt"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/repository"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/service"
	"github.com/SittikornFirst/greenpulse-wolffia-tracking/internal/websocket"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the GreenPulse server",
	Long:  `Start the HTTP API, the WebSocket hub and the MQTT consumer.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()
	cfg, log := a.cfg, a.log

	if cfg.IsProduction() && cfg.JWTSecret == "change_me_in_production" {
		return errors.New("JWT_SECRET still has the placeholder value")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	authSvc := service.NewAuthService(a.db.DB, cfg.JWTSecret, cfg.JWTExpire, log.Named("auth"))

	// Realtime hub, relayed over Redis when several instances share one dashboard
	hub := websocket.NewHub(func(token string) (string, error) {
		user, err := authSvc.Authenticate(ctx, token)
		if err != nil {
			return "", err
		}
		return user.ID, nil
	}, log.Named("ws"))
	go hub.Run(ctx)

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		if _, err := websocket.AttachRelay(ctx, hub, rdb, cfg.Redis.Channel); err != nil {
			return fmt.Errorf("failed to start realtime relay: %w", err)
		}
		log.Info("realtime relay attached", zap.String("channel", cfg.Redis.Channel))
	}
	notifier := websocket.NewNotifier(hub)

	store := repository.NewStore(a.db.DB)
	evaluator := alerting.NewEvaluator(store, notifier, log.Named("alerting"), alerting.WithCooldown(cfg.AlertCooldown))
	ingestion := service.NewIngestionService(store, evaluator, notifier, log.Named("ingest"))
	readings := service.NewReadingService(a.db.DB, log.Named("readings"))

	upgrader := websocket.Upgrader(cfg.CORSOrigins)
	router := handlers.NewRouter(handlers.Services{
		Auth:      authSvc,
		Users:     service.NewUserService(a.db.DB, log.Named("users")),
		Farms:     service.NewFarmService(a.db.DB, log.Named("farms")),
		Devices:   service.NewDeviceService(a.db.DB, notifier, log.Named("devices")),
		Ingestion: ingestion,
		Readings:  readings,
		Alerts:    service.NewAlertService(a.db.DB, notifier, log.Named("alerts")),
		Analytics: service.NewAnalyticsService(a.db.DB, readings, log.Named("analytics")),
		Realtime: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hub.ServeWs(upgrader, w, r)
		}),
		PublicURL: cfg.PublicURL,
	}, log.Named("http"))

	var handler http.Handler = router
	handler = middleware.CORS(cfg.CORSOrigins)(handler)
	handler = middleware.RequestLogger(log.Named("access"))(handler)
	handler = middleware.Recover(log)(handler)

	// Broker ingestion is optional so the API runs without a broker in development
	var broker *mqtt.Client
	if cfg.MQTT.Enabled {
		broker, err = mqtt.NewClient(cfg.MQTT, log.Named("mqtt"))
		if err != nil {
			log.Warn("mqtt disabled", zap.Error(err))
		} else {
			consumer := mqtt.NewConsumer(ingestion, cfg.MQTT.Topic, log.Named("mqtt"))
			if err := consumer.Start(broker); err != nil {
				broker.Disconnect()
				return fmt.Errorf("failed to subscribe to %s: %w", cfg.MQTT.Topic, err)
			}
			log.Info("mqtt consumer started", zap.String("topic", cfg.MQTT.Topic))
		}
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("addr", server.Addr),
			zap.String("env", cfg.NodeEnv),
			zap.Bool("mqtt", broker != nil),
			zap.Bool("redis", cfg.Redis.Addr != ""))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-shutdown:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error", zap.Error(err))
	}
	if broker != nil {
		broker.Disconnect()
	}
	cancel()

	log.Info("shutdown complete")
	return nil
}
