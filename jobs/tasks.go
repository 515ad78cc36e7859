// Package jobs defines the background task catalogue and the Asynq
// worker that processes it.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCouponSweep deactivates coupons past their validity window
	// or usage cap.
	TaskCouponSweep = "coupons:sweep"
	// TaskStockScan reports products at or below a stock threshold.
	TaskStockScan = "catalog:stock_scan"
)

// StockScanPayload parameterises a stock scan run.
type StockScanPayload struct {
	Threshold int `json:"threshold"`
}

// NewCouponSweepTask constructs the coupon sweep task.
func NewCouponSweepTask() *asynq.Task {
	return asynq.NewTask(TaskCouponSweep, nil)
}

// NewStockScanTask constructs a stock scan task.
func NewStockScanTask(threshold int) (*asynq.Task, error) {
	data, err := json.Marshal(StockScanPayload{Threshold: threshold})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockScan, data), nil
}
