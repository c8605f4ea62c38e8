package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/middleware"
)

// analyticsCmd aggregates recommendation events published by serve instances
// and exposes the totals at GET /api/v1/analytics.
var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Aggregate recommendation events from Kafka and serve the totals",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(cfg.Kafka.Brokers) == 0 {
			return errors.New("analytics requires kafka.brokers (or JM_KAFKA_BROKERS)")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		slog.Info("starting analytics service", "port", cfg.Server.Port)
		aggregator := analytics.NewAggregator()
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.RecommendEvents, analytics.HandleEvent(aggregator))
		defer consumer.Close()
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("analytics consumer error", "error", err)
			}
		}()
		slog.Info("analytics consumer started", "topic", cfg.Kafka.Topics.RecommendEvents)

		checker := health.NewChecker(0)
		checker.Register("aggregator", health.CountCheck("requests", func() int {
			return int(aggregator.Stats().TotalRequests)
		}, false))

		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(aggregator).Stats)
		mux.HandleFunc("GET /health/live", checker.LiveHandler())
		mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

		var chain http.Handler = mux
		chain = middleware.Logging(chain)
		chain = middleware.RequestID(chain)

		server := &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      chain,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				slog.Error("server shutdown error", "error", err)
			}
		}()

		slog.Info("analytics service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		slog.Info("analytics service stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyticsCmd)
}
