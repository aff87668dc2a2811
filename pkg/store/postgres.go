package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"friction-intel-api/pkg/models"
)

// PostgresStore implements Store on top of a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and verifies the connection.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// FetchUnprocessedCases returns up to limit unprocessed cases, newest first.
func (s *PostgresStore) FetchUnprocessedCases(ctx context.Context, accountID string, limit int) ([]models.RawCase, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, case_text, created_at, processed
		FROM raw_cases
		WHERE account_id = $1 AND processed = false
		ORDER BY created_at DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unprocessed cases: %w", err)
	}
	defer rows.Close()

	var cases []models.RawCase
	for rows.Next() {
		var c models.RawCase
		if err := rows.Scan(&c.ID, &c.AccountID, &c.Text, &c.CreatedAt, &c.Processed); err != nil {
			return nil, fmt.Errorf("failed to scan case row: %w", err)
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// CountCases returns the account's lifetime case volume.
func (s *PostgresStore) CountCases(ctx context.Context, accountID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM raw_cases WHERE account_id = $1`, accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cases: %w", err)
	}
	return count, nil
}

// CountUnprocessedCases returns how many cases still await classification.
func (s *PostgresStore) CountUnprocessedCases(ctx context.Context, accountID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM raw_cases WHERE account_id = $1 AND processed = false`, accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unprocessed cases: %w", err)
	}
	return count, nil
}

// MarkCasesProcessed flips processed to true for the given ids.
func (s *PostgresStore) MarkCasesProcessed(ctx context.Context, caseIDs []string) error {
	if len(caseIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE raw_cases SET processed = true WHERE id = ANY($1)`, caseIDs)
	if err != nil {
		return fmt.Errorf("failed to mark cases processed: %w", err)
	}
	return nil
}

// InsertFrictionRecords bulk-inserts verdicts in one batch round trip.
func (s *PostgresStore) InsertFrictionRecords(ctx context.Context, records []models.FrictionRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		evidence, err := json.Marshal(r.Evidence)
		if err != nil {
			return fmt.Errorf("failed to marshal evidence for case %s: %w", r.CaseID, err)
		}
		batch.Queue(`
			INSERT INTO friction_records
				(id, account_id, case_id, is_friction, theme_key, severity,
				 sentiment, root_cause, evidence, summary, reason, confidence, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			r.ID, r.AccountID, r.CaseID, r.IsFriction, r.ThemeKey, r.Severity,
			r.Sentiment, r.RootCause, evidence, r.Summary, r.Reason, r.Confidence, r.CreatedAt)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert friction records: %w", err)
		}
	}
	return nil
}

// FrictionRecordsInWindow returns is_friction records created in [from, to).
func (s *PostgresStore) FrictionRecordsInWindow(ctx context.Context, accountID string, from, to time.Time) ([]models.FrictionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, case_id, is_friction, theme_key, severity,
		       sentiment, root_cause, evidence, summary, reason, confidence, created_at
		FROM friction_records
		WHERE account_id = $1 AND is_friction = true
		  AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC`, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch friction records: %w", err)
	}
	defer rows.Close()

	var records []models.FrictionRecord
	for rows.Next() {
		var r models.FrictionRecord
		var evidence []byte
		if err := rows.Scan(&r.ID, &r.AccountID, &r.CaseID, &r.IsFriction, &r.ThemeKey,
			&r.Severity, &r.Sentiment, &r.RootCause, &evidence, &r.Summary,
			&r.Reason, &r.Confidence, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan friction record: %w", err)
		}
		if len(evidence) > 0 {
			if err := json.Unmarshal(evidence, &r.Evidence); err != nil {
				return nil, fmt.Errorf("failed to decode evidence for record %s: %w", r.ID, err)
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// LatestSnapshotBefore returns the newest snapshot older than date, or nil.
func (s *PostgresStore) LatestSnapshotBefore(ctx context.Context, accountID, date string) (*models.AccountSnapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT account_id, snapshot_date, ofi_score, friction_card_count,
		       high_severity_count, case_volume, top_themes,
		       trend_vs_prior_period, trend_direction, score_breakdown, created_at
		FROM account_snapshots
		WHERE account_id = $1 AND snapshot_date < $2
		ORDER BY snapshot_date DESC
		LIMIT 1`, accountID, date)

	snapshot, err := scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return snapshot, err
}

// SaveSnapshot upserts the snapshot keyed on (account_id, snapshot_date) so
// recalculating the same day replaces the whole row atomically.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, snapshot *models.AccountSnapshot) error {
	topThemes, err := json.Marshal(snapshot.TopThemes)
	if err != nil {
		return fmt.Errorf("failed to marshal top themes: %w", err)
	}
	breakdown, err := json.Marshal(snapshot.Breakdown)
	if err != nil {
		return fmt.Errorf("failed to marshal score breakdown: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO account_snapshots
			(account_id, snapshot_date, ofi_score, friction_card_count,
			 high_severity_count, case_volume, top_themes,
			 trend_vs_prior_period, trend_direction, score_breakdown, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (account_id, snapshot_date) DO UPDATE SET
			ofi_score = EXCLUDED.ofi_score,
			friction_card_count = EXCLUDED.friction_card_count,
			high_severity_count = EXCLUDED.high_severity_count,
			case_volume = EXCLUDED.case_volume,
			top_themes = EXCLUDED.top_themes,
			trend_vs_prior_period = EXCLUDED.trend_vs_prior_period,
			trend_direction = EXCLUDED.trend_direction,
			score_breakdown = EXCLUDED.score_breakdown,
			created_at = EXCLUDED.created_at`,
		snapshot.AccountID, snapshot.SnapshotDate, snapshot.OFIScore,
		snapshot.FrictionCardCount, snapshot.HighSeverityCount, snapshot.CaseVolume,
		topThemes, snapshot.TrendVsPrior, snapshot.TrendDirection, breakdown,
		snapshot.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns up to limit snapshots, newest first.
func (s *PostgresStore) ListSnapshots(ctx context.Context, accountID string, limit int) ([]models.AccountSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT account_id, snapshot_date, ofi_score, friction_card_count,
		       high_severity_count, case_volume, top_themes,
		       trend_vs_prior_period, trend_direction, score_breakdown, created_at
		FROM account_snapshots
		WHERE account_id = $1
		ORDER BY snapshot_date DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []models.AccountSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, *snapshot)
	}
	return snapshots, rows.Err()
}

// AcquireAccountLock takes a session-level advisory lock on a dedicated
// pooled connection so it survives until release regardless of what other
// queries the run issues.
func (s *PostgresStore) AcquireAccountLock(ctx context.Context, accountID string) (func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection for lock: %w", err)
	}

	var locked bool
	key := accountLockKey(accountID)
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to take advisory lock: %w", err)
	}
	if !locked {
		conn.Release()
		return nil, ErrLockHeld
	}

	release := func() {
		// Unlock on a fresh context: the run's context may already be
		// cancelled and the lock must still be freed.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(unlockCtx, `SELECT pg_advisory_unlock($1)`, key); err != nil {
			log.Printf("CRITICAL: failed to release advisory lock for account %s: %v", accountID, err)
		}
		conn.Release()
	}
	return release, nil
}

// accountLockKey hashes an account id into the bigint keyspace advisory locks
// use.
func accountLockKey(accountID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(accountID))
	return int64(h.Sum64())
}

// rowScanner covers pgx.Row and pgx.Rows for the shared snapshot scan.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*models.AccountSnapshot, error) {
	var snapshot models.AccountSnapshot
	var topThemes, breakdown []byte
	var date time.Time
	if err := row.Scan(&snapshot.AccountID, &date, &snapshot.OFIScore,
		&snapshot.FrictionCardCount, &snapshot.HighSeverityCount, &snapshot.CaseVolume,
		&topThemes, &snapshot.TrendVsPrior, &snapshot.TrendDirection, &breakdown,
		&snapshot.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	snapshot.SnapshotDate = date.Format("2006-01-02")
	if len(topThemes) > 0 {
		if err := json.Unmarshal(topThemes, &snapshot.TopThemes); err != nil {
			return nil, fmt.Errorf("failed to decode top themes: %w", err)
		}
	}
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &snapshot.Breakdown); err != nil {
			return nil, fmt.Errorf("failed to decode score breakdown: %w", err)
		}
	}
	return &snapshot, nil
}
