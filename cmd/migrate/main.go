package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/melodium-shop/melodium/internal/app"
	"github.com/melodium-shop/melodium/internal/migrate"
	"github.com/melodium-shop/melodium/internal/platform/db"
)

const usage = `usage: migrate <command>

commands:
  up      apply all pending migrations
  down    roll back the most recent applied migration
  status  list migrations and their applied state
`

func main() {
	if len(os.Args) != 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := migrate.NewRunner(pool, logger, migrate.All)
	if err != nil {
		logger.Error("invalid migration registry", slog.Any("error", err))
		os.Exit(1)
	}

	switch os.Args[1] {
	case "up":
		applied, err := runner.Up(ctx)
		if err != nil {
			logger.Error("migrate up", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("migrations applied", slog.Int("count", applied))
	case "down":
		m, err := runner.Down(ctx)
		if err != nil {
			logger.Error("migrate down", slog.Any("error", err))
			os.Exit(1)
		}
		if m == nil {
			logger.Info("nothing to roll back")
			return
		}
		logger.Info("migration rolled back", slog.Int("id", m.ID), slog.String("name", m.Name))
	case "status":
		statuses, err := runner.Status(ctx)
		if err != nil {
			logger.Error("migrate status", slog.Any("error", err))
			os.Exit(1)
		}
		for _, s := range statuses {
			state := "pending"
			if s.Applied {
				state = "applied"
				if s.ExecutedAt != nil {
					state = "applied " + s.ExecutedAt.Format("2006-01-02 15:04:05")
				}
			}
			fmt.Printf("%3d  %-40s %s\n", s.ID, s.Name, state)
		}
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}
