package scanworker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/imageguard-labs/imageguard-backend/pkg/db/models"
)

type stubScanSource struct {
	scans   []models.Scan
	err     error
	cutoffs []time.Time
	limits  []int
}

func (s *stubScanSource) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Scan, error) {
	s.cutoffs = append(s.cutoffs, olderThan)
	s.limits = append(s.limits, limit)
	return s.scans, s.err
}

type stubDispatcher struct {
	dispatched []uuid.UUID
}

func (s *stubDispatcher) Dispatch(orgID, scanID uuid.UUID) {
	s.dispatched = append(s.dispatched, scanID)
}

func TestStaleScanJobRedispatchesEachStaleScan(t *testing.T) {
	first := models.Scan{ID: uuid.New(), OrgID: uuid.New()}
	second := models.Scan{ID: uuid.New(), OrgID: uuid.New()}
	source := &stubScanSource{scans: []models.Scan{first, second}}
	disp := &stubDispatcher{}

	job, err := NewStaleScanJob(StaleScanJobParams{
		Logger:     quietLogger(),
		Scans:      source,
		Dispatcher: disp,
		PendingAge: 10 * time.Minute,
		BatchSize:  25,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	frozen := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job.(*staleScanJob).now = func() time.Time { return frozen }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(disp.dispatched) != 2 || disp.dispatched[0] != first.ID || disp.dispatched[1] != second.ID {
		t.Fatalf("unexpected dispatches: %v", disp.dispatched)
	}
	wantCutoff := frozen.Add(-10 * time.Minute)
	if len(source.cutoffs) != 1 || !source.cutoffs[0].Equal(wantCutoff) {
		t.Fatalf("unexpected cutoff %v, want %v", source.cutoffs, wantCutoff)
	}
	if source.limits[0] != 25 {
		t.Fatalf("unexpected batch size %d", source.limits[0])
	}
}

func TestStaleScanJobNoStaleScans(t *testing.T) {
	disp := &stubDispatcher{}
	job, err := NewStaleScanJob(StaleScanJobParams{
		Logger:     quietLogger(),
		Scans:      &stubScanSource{},
		Dispatcher: disp,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(disp.dispatched) != 0 {
		t.Fatalf("expected no dispatches, got %v", disp.dispatched)
	}
}

func TestStaleScanJobPropagatesListError(t *testing.T) {
	job, err := NewStaleScanJob(StaleScanJobParams{
		Logger:     quietLogger(),
		Scans:      &stubScanSource{err: errors.New("db down")},
		Dispatcher: &stubDispatcher{},
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error from list failure")
	}
}

func TestStaleScanJobDefaults(t *testing.T) {
	source := &stubScanSource{}
	job, err := NewStaleScanJob(StaleScanJobParams{
		Logger:     quietLogger(),
		Scans:      source,
		Dispatcher: &stubDispatcher{},
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if source.limits[0] != defaultBatchSize {
		t.Fatalf("expected default batch size, got %d", source.limits[0])
	}
}
