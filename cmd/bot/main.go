package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/maaaruch/online-voting/internal/app"
	"github.com/maaaruch/online-voting/internal/config"
	"github.com/maaaruch/online-voting/internal/logger"
	"github.com/maaaruch/online-voting/internal/metrics"
	"github.com/maaaruch/online-voting/internal/storage"
	"github.com/maaaruch/online-voting/internal/storage/memory"
	"github.com/maaaruch/online-voting/internal/voting"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(cfg.MetricsNamespace, reg)

	repo, closeRepo, err := openRepository(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Backend).Msg("open storage")
	}
	defer closeRepo()

	svc := voting.New(repo,
		voting.WithLogger(log),
		voting.WithMetrics(m),
		voting.WithBcryptCost(cfg.BcryptCost),
	)

	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		log.Fatal().Err(err).Msg("create bot")
	}
	bot.Debug = cfg.Debug
	log.Info().Str("bot", bot.Self.UserName).Str("backend", cfg.Backend).Msg("bot started")

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	application := app.New(bot, svc, m, log)
	application.Run(ctx)

	log.Info().Msg("shutting down")
}

func openRepository(cfg config.Config) (voting.Repository, func(), error) {
	if cfg.Backend == config.BackendSQLite {
		s, err := storage.Open(cfg.SQLiteDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
	return memory.New(), func() {}, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log *zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server")
		}
	}()
	log.Info().Str("addr", addr).Msg("serving metrics")
	return srv
}
