package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"expenses.durgadawaghar.com/internal/cache"
	"expenses.durgadawaghar.com/internal/config"
	"expenses.durgadawaghar.com/internal/extractor"
	"expenses.durgadawaghar.com/internal/handler"
	"expenses.durgadawaghar.com/internal/logger"
	"expenses.durgadawaghar.com/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	port := flag.Int("port", cfg.Port, "HTTP server port")
	driver := flag.String("driver", cfg.DBDriver, "Database driver (sqlite or postgres)")
	dsn := flag.String("db", cfg.DatabaseURL, "SQLite path or Postgres URL")
	flag.Parse()

	log := logger.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Amounts go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	engine, err := extractor.Load(cfg.KeywordsFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.KeywordsFile).Msg("loading keyword profiles")
	}

	// Initialize database
	st, err := store.Open(*driver, *dsn)
	if err != nil {
		log.Fatal().Err(err).Str("driver", *driver).Msg("opening database")
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.Ping(ctx); err != nil {
		log.Fatal().Err(err).Str("driver", *driver).Msg("database unreachable")
	}
	if err := st.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("applying schema")
	}

	opts := handler.Options{
		Style:  cfg.SourceStyle,
		Secret: cfg.APISecret,
		Logger: log,
	}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL, cache.DefaultTTL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, serving without cache")
		} else {
			defer rc.Close()
			opts.Cache = rc
		}
	}

	h := handler.NewHandler(st, engine, opts)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           handler.Wrap(h.Routes(), log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("driver", *driver).
			Str("style", string(cfg.SourceStyle)).
			Bool("cache", opts.Cache != nil).
			Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	waitForShutdown(srv, log)
}

func waitForShutdown(srv *http.Server, log zerolog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutting down server")
	}
	log.Info().Msg("server stopped")
}
