package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/melodium-shop/melodium/internal/commerce/coupons"
	jobmetrics "github.com/melodium-shop/melodium/internal/jobs"
)

// CouponSweepJob retires coupons the redemption path would refuse anyway,
// keeping admin listings honest.
type CouponSweepJob struct {
	Service *coupons.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCouponSweepJob initialises the sweep handler.
func NewCouponSweepJob(service *coupons.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *CouponSweepJob {
	return &CouponSweepJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle executes the sweep.
func (j *CouponSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("coupon sweep: handler not configured")
	}
	tracker := j.Metrics.Track(TaskCouponSweep)
	swept, err := j.Service.SweepDead(ctx)
	if err != nil {
		j.Logger.Error("coupon sweep failed", slog.Any("error", err))
		return tracker.End(err)
	}
	if swept > 0 {
		j.Logger.Info("coupon sweep", slog.Int64("deactivated", swept))
	}
	return tracker.End(nil)
}
