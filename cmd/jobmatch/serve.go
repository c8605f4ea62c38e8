package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/app"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/feed"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/internal/handler"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/jobmatch/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Load postings and serve the recommendation API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("starting jobmatch", "port", cfg.Server.Port, "provider", cfg.Embedding.Provider)

	var (
		opts      app.Options
		collector *analytics.Collector
	)
	streaming := len(cfg.Kafka.Brokers) > 0
	if streaming {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.RecommendEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, 0, 0, 0)
		opts.Tracker = collector
	}

	engine, err := app.Build(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer engine.Close()

	if _, err := engine.LoadConfigured(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	if streaming {
		collector.Start(ctx)
		defer collector.Close()
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.RecommendEvents)

		applier := feed.NewApplier(engine.Index, engine.Metrics)
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.PostingEvents, applier.Handler())
		defer consumer.Close()
		wg.Go(func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("posting feed consumer error", "error", err)
			}
		})
		slog.Info("posting feed consumer started", "topic", cfg.Kafka.Topics.PostingEvents)
	}

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(engine.Metrics, cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	router := handler.NewRouter(handler.Router{
		API:       handler.New(engine.Service, engine.Embedder.Cache, cfg.Recommend.DefaultLimit, cfg.Recommend.MaxResults),
		Analytics: analytics.NewHandler(engine.Aggregator),
		Health:    engine.HealthChecker(),
		Metrics:   engine.Metrics,
		Timeout:   cfg.Recommend.Timeout,
	})
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("jobmatch listening", "addr", server.Addr, "postings", engine.Index.Len())
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	wg.Wait()
	slog.Info("jobmatch stopped")
	return nil
}
