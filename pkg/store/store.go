package store

import (
	"context"
	"errors"
	"time"

	"friction-intel-api/pkg/models"
)

// ErrLockHeld is returned when an account's advisory lock is already taken by
// another batch or scoring run.
var ErrLockHeld = errors.New("account lock is held")

// Store is the persistence contract the friction pipeline runs against.
type Store interface {
	// FetchUnprocessedCases returns up to limit unprocessed cases for the
	// account, newest first.
	FetchUnprocessedCases(ctx context.Context, accountID string, limit int) ([]models.RawCase, error)

	// CountCases returns the account's lifetime case volume.
	CountCases(ctx context.Context, accountID string) (int, error)

	// CountUnprocessedCases returns how many cases still await classification.
	CountUnprocessedCases(ctx context.Context, accountID string) (int, error)

	// MarkCasesProcessed flips processed to true for the given case ids.
	// Processed is monotonic; nothing in this service ever unsets it.
	MarkCasesProcessed(ctx context.Context, caseIDs []string) error

	// InsertFrictionRecords bulk-inserts classification verdicts.
	InsertFrictionRecords(ctx context.Context, records []models.FrictionRecord) error

	// FrictionRecordsInWindow returns the account's is_friction records
	// created in [from, to).
	FrictionRecordsInWindow(ctx context.Context, accountID string, from, to time.Time) ([]models.FrictionRecord, error)

	// LatestSnapshotBefore returns the most recent snapshot strictly older
	// than date (YYYY-MM-DD), or nil when none exists.
	LatestSnapshotBefore(ctx context.Context, accountID, date string) (*models.AccountSnapshot, error)

	// SaveSnapshot atomically replaces the account's snapshot for its date.
	SaveSnapshot(ctx context.Context, snapshot *models.AccountSnapshot) error

	// ListSnapshots returns up to limit snapshots for the account, newest
	// first.
	ListSnapshots(ctx context.Context, accountID string, limit int) ([]models.AccountSnapshot, error)

	// AcquireAccountLock takes the account's single-flight advisory lock.
	// It returns ErrLockHeld without blocking when another run owns it; the
	// returned release function must be called exactly once otherwise.
	AcquireAccountLock(ctx context.Context, accountID string) (release func(), err error)
}
