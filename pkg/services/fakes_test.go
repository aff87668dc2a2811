package services

import (
	"context"
	"sort"
	"time"

	"friction-intel-api/pkg/models"
	"friction-intel-api/pkg/store"
)

// fakeStore is an in-memory store.Store for service tests.
type fakeStore struct {
	cases     []models.RawCase
	records   []models.FrictionRecord
	snapshots []models.AccountSnapshot

	lockHeld  bool
	lockCount int

	markErr    error
	insertErr  error
	markedIDs  [][]string
	savedCount int
}

func (f *fakeStore) FetchUnprocessedCases(_ context.Context, accountID string, limit int) ([]models.RawCase, error) {
	var out []models.RawCase
	for _, c := range f.cases {
		if c.AccountID == accountID && !c.Processed {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) CountCases(_ context.Context, accountID string) (int, error) {
	count := 0
	for _, c := range f.cases {
		if c.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) CountUnprocessedCases(_ context.Context, accountID string) (int, error) {
	count := 0
	for _, c := range f.cases {
		if c.AccountID == accountID && !c.Processed {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) MarkCasesProcessed(ctx context.Context, caseIDs []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.markErr != nil {
		return f.markErr
	}
	f.markedIDs = append(f.markedIDs, caseIDs)
	for i := range f.cases {
		for _, id := range caseIDs {
			if f.cases[i].ID == id {
				f.cases[i].Processed = true
			}
		}
	}
	return nil
}

func (f *fakeStore) InsertFrictionRecords(ctx context.Context, records []models.FrictionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.insertErr != nil {
		return f.insertErr
	}
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeStore) FrictionRecordsInWindow(_ context.Context, accountID string, from, to time.Time) ([]models.FrictionRecord, error) {
	var out []models.FrictionRecord
	for _, r := range f.records {
		if r.AccountID == accountID && r.IsFriction &&
			!r.CreatedAt.Before(from) && r.CreatedAt.Before(to) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) LatestSnapshotBefore(_ context.Context, accountID, date string) (*models.AccountSnapshot, error) {
	var best *models.AccountSnapshot
	for i := range f.snapshots {
		s := f.snapshots[i]
		if s.AccountID != accountID || s.SnapshotDate >= date {
			continue
		}
		if best == nil || s.SnapshotDate > best.SnapshotDate {
			best = &f.snapshots[i]
		}
	}
	return best, nil
}

func (f *fakeStore) SaveSnapshot(_ context.Context, snapshot *models.AccountSnapshot) error {
	f.savedCount++
	for i := range f.snapshots {
		if f.snapshots[i].AccountID == snapshot.AccountID && f.snapshots[i].SnapshotDate == snapshot.SnapshotDate {
			f.snapshots[i] = *snapshot
			return nil
		}
	}
	f.snapshots = append(f.snapshots, *snapshot)
	return nil
}

func (f *fakeStore) ListSnapshots(_ context.Context, accountID string, limit int) ([]models.AccountSnapshot, error) {
	var out []models.AccountSnapshot
	for _, s := range f.snapshots {
		if s.AccountID == accountID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SnapshotDate > out[j].SnapshotDate })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) AcquireAccountLock(_ context.Context, _ string) (func(), error) {
	if f.lockHeld {
		return nil, store.ErrLockHeld
	}
	f.lockHeld = true
	f.lockCount++
	return func() { f.lockHeld = false }, nil
}

// fakeTicketBridge returns a fixed status map.
type fakeTicketBridge struct {
	statuses models.TicketStatusByTheme
	err      error
}

func (f *fakeTicketBridge) StatusByTheme(_ context.Context, _ string, _ []string) (models.TicketStatusByTheme, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.statuses, nil
}

// fakeHealthProvider returns a fixed signal.
type fakeHealthProvider struct {
	signal *models.HealthSignal
	err    error
}

func (f *fakeHealthProvider) AccountHealth(_ context.Context, _ string) (*models.HealthSignal, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.signal, nil
}

// fakePublisher records published snapshots.
type fakePublisher struct {
	published []*models.AccountSnapshot
}

func (f *fakePublisher) PublishSnapshot(_ context.Context, snapshot *models.AccountSnapshot) error {
	f.published = append(f.published, snapshot)
	return nil
}

func floatPtr(v float64) *float64 { return &v }
