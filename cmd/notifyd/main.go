// Command notifyd runs the notification pipeline as a standalone service:
// the HTTP API, the job workers and a prometheus /metrics endpoint.
//
// State lives in memory. When a Redis URL is configured the job queue is
// kept in Redis instead.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/growthbook/notify"
	"github.com/growthbook/notify/chat"
	"github.com/growthbook/notify/jobs/redisjobs"
	"github.com/growthbook/notify/observability"
	"github.com/growthbook/notify/store/memory"
)

func main() {
	configPath := flag.String("config", DefaultConfigPath, "Path to YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("notifyd failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	opts := append(cfg.options(),
		notify.WithStore(memory.New()),
		notify.WithLogger(logger),
		notify.WithMetrics(observability.NewMetrics(reg)),
		notify.WithTracer(observability.NewTracer()),
	)
	if len(cfg.Chat) > 0 {
		opts = append(opts, notify.WithChatSource(chat.StaticSource(cfg.Chat)))
	}

	if cfg.RedisURL != "" {
		redisOpts, err := goredis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb := goredis.NewClient(redisOpts)
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return err
		}
		opts = append(opts, notify.WithJobStore(redisjobs.New(rdb)))
		logger.Info("job queue on redis", "addr", redisOpts.Addr)
	}

	n, err := notify.New(opts...)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := n.Store().Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/", n.Handler())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}
	n.Stop(shutdownCtx)
	return nil
}
