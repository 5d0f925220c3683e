package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"expenses.durgadawaghar.com/internal/config"
	"expenses.durgadawaghar.com/internal/extractor"
	"expenses.durgadawaghar.com/internal/logger"
	"expenses.durgadawaghar.com/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	driver := flag.String("driver", cfg.DBDriver, "Database driver (sqlite or postgres)")
	dsn := flag.String("db", cfg.DatabaseURL, "SQLite path or Postgres URL")
	recat := flag.Bool("recategorize", false, "Re-run categorization over stored expenses")
	styleName := flag.String("style", string(cfg.SourceStyle), "Source style for expenses stored without one")
	dryRun := flag.Bool("dry-run", false, "Report category changes without writing them")
	flag.Parse()

	log := logger.New(cfg.LogLevel)
	ctx := logger.WithContext(context.Background(), log)

	st, err := store.Open(*driver, *dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("opening database")
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("applying schema")
	}
	log.Info().Str("driver", *driver).Msg("schema up to date")

	if !*recat {
		return
	}

	fallback, err := extractor.ParseSourceStyle(*styleName)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid style")
	}
	engine, err := extractor.Load(cfg.KeywordsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("loading keyword profiles")
	}

	stats, err := recategorize(ctx, st, engine, fallback, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("recategorizing")
	}
	log.Info().
		Int("scanned", stats.scanned).
		Int("changed", stats.changed).
		Int("unsupported", stats.unsupported).
		Bool("dry_run", *dryRun).
		Msg("recategorization complete")
}

type recategorizeStats struct {
	scanned     int
	changed     int
	unsupported int
}

// recategorize re-runs each stored expense through the category rules of
// the style that produced it. Rows stored without a style use fallback.
func recategorize(ctx context.Context, st *store.Store, engine *extractor.Engine, fallback extractor.SourceStyle, dryRun bool) (recategorizeStats, error) {
	log := logger.FromContext(ctx)
	var stats recategorizeStats

	expenses, err := st.AllExpenses(ctx)
	if err != nil {
		return stats, fmt.Errorf("loading expenses: %w", err)
	}

	for _, e := range expenses {
		stats.scanned++

		style := fallback
		if e.SourceStyle != "" {
			parsed, err := extractor.ParseSourceStyle(e.SourceStyle)
			if err != nil {
				stats.unsupported++
				continue
			}
			style = parsed
		}
		rules, ok := engine.Rules(style)
		if !ok {
			stats.unsupported++
			log.Warn().Str("id", e.ID).Str("style", string(style)).Msg("no profile for style")
			continue
		}

		category := string(rules.Categorize(e.Merchant))
		if category == e.Category {
			continue
		}
		stats.changed++
		log.Info().
			Str("id", e.ID).
			Str("style", string(rules.Style())).
			Str("merchant", e.Merchant).
			Str("from", e.Category).
			Str("to", category).
			Msg("recategorized")
		if dryRun {
			continue
		}
		if err := st.UpdateCategory(ctx, e.ID, category); err != nil {
			return stats, fmt.Errorf("updating %s: %w", e.ID, err)
		}
	}
	return stats, nil
}
