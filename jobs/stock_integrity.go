package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/SanmishaTech/clinicminds-sub002/internal/jobs"
	"github.com/SanmishaTech/clinicminds-sub002/internal/stock"
)

// StockIntegrityJob scans for balance rows diverging from the ledger.
// Drift never repairs itself; the operator rebuild script is the fix.
type StockIntegrityJob struct {
	Stock   *stock.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewStockIntegrityJob initialises the scan handler.
func NewStockIntegrityJob(stockSvc *stock.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockIntegrityJob {
	return &StockIntegrityJob{Stock: stockSvc, Logger: logger, Metrics: metrics}
}

// Handle executes the integrity scan.
func (j *StockIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Stock == nil {
		return errors.New("stock integrity: handler not configured")
	}
	tracker := j.Metrics.Track(TaskStockIntegrityScan)

	drift, err := j.Stock.IntegrityScan(ctx)
	if err != nil {
		return tracker.End(err)
	}
	j.Metrics.SetStockDrift(len(drift))
	if len(drift) > 0 {
		j.Logger.Error("stock integrity scan found drift", slog.Int("rows", len(drift)))
	} else {
		j.Logger.Info("stock integrity scan clean")
	}
	return tracker.End(nil)
}
