package scanworker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/imageguard-labs/imageguard-backend/pkg/db/models"
	"github.com/imageguard-labs/imageguard-backend/pkg/logger"
)

const (
	defaultPendingAge = 5 * time.Minute
	defaultBatchSize  = 50
)

// scanSource lists scans stuck in the pending state.
type scanSource interface {
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Scan, error)
}

// dispatcher hands a scan back to the asynchronous executor.
type dispatcher interface {
	Dispatch(orgID, scanID uuid.UUID)
}

// StaleScanJobParams configure the stale pending scan reconciler.
type StaleScanJobParams struct {
	Logger     *logger.Logger
	Scans      scanSource
	Dispatcher dispatcher
	PendingAge time.Duration
	BatchSize  int
}

// NewStaleScanJob builds the job that re-dispatches scans whose dispatch
// was lost, typically to a process restart between Create and Run.
func NewStaleScanJob(params StaleScanJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Scans == nil {
		return nil, fmt.Errorf("scan source required")
	}
	if params.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	age := params.PendingAge
	if age <= 0 {
		age = defaultPendingAge
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &staleScanJob{
		logg:       params.Logger,
		scans:      params.Scans,
		dispatcher: params.Dispatcher,
		pendingAge: age,
		batchSize:  batch,
		now:        time.Now,
	}, nil
}

type staleScanJob struct {
	logg       *logger.Logger
	scans      scanSource
	dispatcher dispatcher
	pendingAge time.Duration
	batchSize  int
	now        func() time.Time
}

func (j *staleScanJob) Name() string {
	return "stale_scan_reconcile"
}

// Run re-dispatches pending scans older than the configured age. MarkRunning
// inside the executor stays the single claim point, so a scan picked up here
// and by a concurrent API dispatch still runs once.
func (j *staleScanJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.pendingAge)
	stale, err := j.scans.ListStalePending(ctx, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("list stale pending scans: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	for _, scan := range stale {
		scanCtx := j.logg.WithField(ctx, "scan_id", scan.ID.String())
		j.logg.Info(scanCtx, "re-dispatching stale pending scan")
		j.dispatcher.Dispatch(scan.OrgID, scan.ID)
	}
	j.logg.Info(j.logg.WithField(ctx, "count", len(stale)), "stale scan reconcile cycle complete")
	return nil
}
