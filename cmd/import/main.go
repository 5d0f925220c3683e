package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"expenses.durgadawaghar.com/internal/cache"
	"expenses.durgadawaghar.com/internal/config"
	"expenses.durgadawaghar.com/internal/extractor"
	"expenses.durgadawaghar.com/internal/inbox"
	"expenses.durgadawaghar.com/internal/logger"
	"expenses.durgadawaghar.com/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	file := flag.String("file", "", "SMS export to import")
	phone := flag.String("phone", "", "Phone number the expenses belong to")
	year := flag.Int("year", 0, "Year of the export (0 detects it from the text)")
	styleName := flag.String("style", string(cfg.SourceStyle), "Source style of the exported messages")
	tz := flag.String("tz", "Asia/Kolkata", "Time zone of the header timestamps")
	driver := flag.String("driver", cfg.DBDriver, "Database driver (sqlite or postgres)")
	dsn := flag.String("db", cfg.DatabaseURL, "SQLite path or Postgres URL")
	flag.Parse()

	log := logger.New(cfg.LogLevel)
	if *file == "" || *phone == "" {
		flag.Usage()
		os.Exit(2)
	}

	style, err := extractor.ParseSourceStyle(*styleName)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid style")
	}
	loc, err := time.LoadLocation(*tz)
	if err != nil {
		log.Fatal().Err(err).Str("tz", *tz).Msg("loading time zone")
	}
	engine, err := extractor.Load(cfg.KeywordsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("loading keyword profiles")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("reading export")
	}
	var messages []inbox.Message
	if *year == 0 {
		messages = inbox.ParseWithAutoYear(string(data), loc)
	} else {
		messages = inbox.Parse(string(data), *year, loc)
	}

	ctx := logger.WithContext(context.Background(), log)
	st, err := store.Open(*driver, *dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("opening database")
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("applying schema")
	}

	var imported, skipped, duplicates int
	for _, m := range messages {
		result := engine.Extract(extractor.RawMessage{
			Text:        m.Body,
			SourceApp:   m.Sender,
			SourceStyle: style,
		})
		if !result.Recordable() {
			skipped++
			log.Debug().
				Str("sender", m.Sender).
				Str("direction", string(result.Direction)).
				Str("reason", string(result.Reason)).
				Msg("skipped")
			continue
		}

		_, err := st.CreateExpense(ctx, store.Expense{
			UserPhone:       *phone,
			Amount:          result.Amount,
			Merchant:        result.Merchant,
			Category:        string(result.Category),
			AppName:         m.Sender,
			SourceStyle:     string(style),
			OriginalMessage: m.Body,
			Date:            m.Date,
		})
		if errors.Is(err, store.ErrDuplicate) {
			duplicates++
			continue
		}
		if err != nil {
			log.Fatal().Err(err).Str("sender", m.Sender).Msg("saving expense")
		}
		imported++
	}

	// Listings cached by a running server are stale now
	if cfg.RedisURL != "" && imported > 0 {
		if rc, err := cache.NewRedis(ctx, cfg.RedisURL, cache.DefaultTTL); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, cached listings expire on their own")
		} else {
			if err := rc.Invalidate(ctx, *phone); err != nil {
				log.Warn().Err(err).Msg("invalidating cache")
			}
			rc.Close()
		}
	}

	log.Info().
		Str("file", *file).
		Str("messages", humanize.Comma(int64(len(messages)))).
		Int("imported", imported).
		Int("skipped", skipped).
		Int("duplicates", duplicates).
		Msg("import complete")
}
