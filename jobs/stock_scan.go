package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/melodium-shop/melodium/internal/jobs"
)

// StockScanJob flags physical products running low so staff can restock
// before carts start failing on the non-negative stock constraint.
type StockScanJob struct {
	Pool    *pgxpool.Pool
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewStockScanJob initialises the stock scan handler.
func NewStockScanJob(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockScanJob {
	return &StockScanJob{Pool: pool, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *StockScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Pool == nil {
		return errors.New("stock scan: handler not configured")
	}
	var payload StockScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Threshold <= 0 {
		payload.Threshold = 5
	}

	tracker := j.Metrics.Track(TaskStockScan)

	const query = `
		SELECT id, title, stock
		FROM products
		WHERE stock <= $1
		ORDER BY stock, id`
	rows, err := j.Pool.Query(ctx, query, payload.Threshold)
	if err != nil {
		j.Logger.Error("stock scan query failed", slog.Any("error", err))
		return tracker.End(err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			id    int64
			title string
			stock int
		)
		if err := rows.Scan(&id, &title, &stock); err != nil {
			return tracker.End(err)
		}
		count++
		j.Logger.Warn("low stock",
			slog.Int64("product_id", id),
			slog.String("title", title),
			slog.Int("stock", stock),
			slog.Int("threshold", payload.Threshold),
		)
	}
	if err := rows.Err(); err != nil {
		return tracker.End(err)
	}

	j.Metrics.SetLowStock(count)
	j.Logger.Info("stock scan complete", slog.Int("flagged", count))
	return tracker.End(nil)
}
