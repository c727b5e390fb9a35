// Command seed loads history and forecast CSV exports into the local SQLite
// warehouse and drops cached warehouse responses.
//
// Usage:
//
//	go run ./cmd/seed --history=data/history.csv --forecast=data/forecast.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/forest-dashboard/backend/internal/cache/redis"
	"github.com/forest-dashboard/backend/internal/forest"
	"github.com/forest-dashboard/backend/internal/query"
	"github.com/forest-dashboard/backend/internal/seed"
	"github.com/forest-dashboard/backend/internal/storage/sqlite"
	"github.com/forest-dashboard/backend/pkg/config"
	appLogger "github.com/forest-dashboard/backend/pkg/logger"
)

func main() {
	historyPath := flag.String("history", "", "CSV with country, ds, loss_km2")
	forecastPath := flag.String("forecast", "", "CSV with country, ds, loss_km2_pred, loss_km2_lo, loss_km2_hi")
	flag.Parse()

	if *historyPath == "" && *forecastPath == "" {
		fmt.Fprintln(os.Stderr, "nothing to load: pass --history and/or --forecast")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := appLogger.Init(cfg.Logging.Level, "console", "stderr"); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *historyPath, *forecastPath); err != nil {
		appLogger.Fatal("Seed failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, historyPath, forecastPath string) error {
	tables := query.Tables{History: cfg.Warehouse.HistoryTable, Forecast: cfg.Warehouse.ForecastTable}

	db, err := sqlite.NewClient(ctx, cfg.Warehouse.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.InitSchema(ctx, tables); err != nil {
		return err
	}

	if historyPath != "" {
		rows, err := readFile(historyPath, seed.ReadHistory)
		if err != nil {
			return err
		}
		if err := db.InsertHistory(ctx, tables.History, rows); err != nil {
			return err
		}
		appLogger.Info("History loaded", zap.String("file", historyPath), zap.Int("rows", len(rows)))
	}

	if forecastPath != "" {
		rows, err := readFile(forecastPath, seed.ReadForecast)
		if err != nil {
			return err
		}
		if err := db.InsertForecast(ctx, tables.Forecast, rows); err != nil {
			return err
		}
		appLogger.Info("Forecast loaded", zap.String("file", forecastPath), zap.Int("rows", len(rows)))
	}

	if cfg.Redis.Enabled {
		invalidateCache(ctx, cfg.Redis)
	}
	return nil
}

func readFile[T any](path string, parse func(io.Reader) ([]T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// invalidateCache is best effort; stale entries expire with their TTL anyway.
func invalidateCache(ctx context.Context, cfg config.RedisConfig) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.Host, cfg.Port, cfg.Password, cfg.DB)
	if err != nil {
		appLogger.Warn("Skipping cache invalidation", zap.Error(err))
		return
	}
	defer client.Close()

	n, err := client.Invalidate(ctx, forest.WarehouseKinds...)
	if err != nil {
		appLogger.Warn("Cache invalidation failed", zap.Error(err))
		return
	}
	appLogger.Info("Cached warehouse responses dropped", zap.Int("keys", n))
}
