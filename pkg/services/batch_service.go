package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"friction-intel-api/pkg/models"
	"friction-intel-api/pkg/store"
)

// Classifier is the slice of the classifier service the batch engine needs.
type Classifier interface {
	Classify(ctx context.Context, caseText string) (*models.FrictionVerdict, error)
}

// BatchConfig tunes the batch engine's pacing and retry policy. The defaults
// encode the classifier API's rate-limit contract.
type BatchConfig struct {
	BatchSize     int
	CaseDelay     time.Duration
	RetryInitial  time.Duration
	RetryMax      time.Duration
	RetryAttempts int
}

// DefaultBatchConfig returns the production pacing settings.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:     50,
		CaseDelay:     300 * time.Millisecond,
		RetryInitial:  3 * time.Second,
		RetryMax:      60 * time.Second,
		RetryAttempts: 5,
	}
}

// BatchService iterates an account's unprocessed cases through the
// classifier. Cases run strictly sequentially with a fixed delay after every
// call; the classifier API is rate limited and concurrency here would trip it.
type BatchService struct {
	store      store.Store
	classifier Classifier
	cfg        BatchConfig
}

// NewBatchService creates a batch engine over the given store and classifier.
func NewBatchService(st store.Store, classifier Classifier, cfg BatchConfig) *BatchService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchConfig().BatchSize
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = DefaultBatchConfig().RetryAttempts
	}
	return &BatchService{store: st, classifier: classifier, cfg: cfg}
}

// ProcessAccountBatch classifies up to batchSize unprocessed cases for the
// account (batchSize <= 0 uses the configured default).
//
// Every fetched case that was attempted is marked processed afterwards,
// including parse and API failures: a case gets exactly one classification
// attempt, ever, so a poison case can never wedge the pipeline. The whole
// batch aborts only when credentials are rejected or when the very first case
// exhausts its retries against an unreachable service.
func (bs *BatchService) ProcessAccountBatch(ctx context.Context, accountID string, batchSize int) (*models.BatchResult, error) {
	if batchSize <= 0 {
		batchSize = bs.cfg.BatchSize
	}

	release, err := bs.store.AcquireAccountLock(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrLockHeld) {
			return nil, fmt.Errorf("%w: account %s", ErrAccountBusy, accountID)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	defer release()

	cases, err := bs.store.FetchUnprocessedCases(ctx, accountID, batchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	result := &models.BatchResult{AccountID: accountID, Status: models.BatchCompleted}

	if len(cases) == 0 {
		total, err := bs.store.CountCases(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if total == 0 {
			result.Status = models.BatchNeedsSync
		} else {
			result.Status = models.BatchUpToDate
		}
		return result, nil
	}

	var (
		attempted []string
		records   []models.FrictionRecord
		fatalErr  error
	)

	for i, c := range cases {
		if ctx.Err() != nil {
			fatalErr = ctx.Err()
			break
		}

		verdict, err := bs.classifyWithRetry(ctx, c.Text)
		if err != nil {
			if errors.Is(err, ErrConfiguration) || (i == 0 && errors.Is(err, ErrTransientService)) {
				// Dead key or dead service: stop before burning the rest of
				// the batch. The failing case stays unprocessed and is
				// refetched once the service is healthy again.
				fatalErr = err
				break
			}

			attempted = append(attempted, c.ID)
			result.FailedCount++
			if result.FirstError == "" {
				result.FirstError = err.Error()
			}
			log.Printf("classification failed for case %s (account %s): %v", c.ID, accountID, err)
		} else {
			attempted = append(attempted, c.ID)
			result.Analyzed++
			if verdict.IsFriction {
				result.FrictionCount++
			} else {
				result.NormalCount++
			}
			records = append(records, models.FrictionRecord{
				ID:         uuid.NewString(),
				AccountID:  accountID,
				CaseID:     c.ID,
				IsFriction: verdict.IsFriction,
				ThemeKey:   verdict.ThemeKey,
				Severity:   verdict.Severity,
				Sentiment:  verdict.Sentiment,
				RootCause:  verdict.RootCause,
				Evidence:   verdict.Evidence,
				Summary:    verdict.Summary,
				Reason:     verdict.Reason,
				Confidence: verdict.Confidence,
				CreatedAt:  time.Now().UTC(),
			})
		}

		bs.pause(ctx)
	}

	bs.finalize(ctx, accountID, attempted, records, result)

	if fatalErr != nil {
		if len(attempted) > 0 {
			log.Printf("batch for account %s aborted after %d cases: %v", accountID, len(attempted), fatalErr)
		}
		return nil, fatalErr
	}

	remaining, err := bs.store.CountUnprocessedCases(ctx, accountID)
	if err != nil {
		log.Printf("failed to count remaining cases for account %s: %v", accountID, err)
	} else {
		result.Remaining = remaining
	}

	return result, nil
}

// finalize persists verdicts and marks every attempted case processed. It
// runs detached from the request context so an abort mid-batch still settles
// the cases that were attempted.
func (bs *BatchService) finalize(ctx context.Context, accountID string, attempted []string, records []models.FrictionRecord, result *models.BatchResult) {
	if len(attempted) == 0 {
		return
	}

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := bs.store.InsertFrictionRecords(persistCtx, records); err != nil {
		result.PersistError = err.Error()
		log.Printf("failed to insert %d friction records for account %s: %v", len(records), accountID, err)
	}

	if err := bs.store.MarkCasesProcessed(persistCtx, attempted); err != nil {
		// Unmarked-but-attempted cases will be reclassified next run. That is
		// duplicate spend, so this failure is the loudest one in the batch.
		result.PersistError = err.Error()
		log.Printf("CRITICAL: failed to mark %d cases processed for account %s, reprocessing will occur: %v",
			len(attempted), accountID, err)
	}
}

// classifyWithRetry retries rate-limit and overload failures with doubling
// backoff. Configuration and parse failures are returned immediately.
func (bs *BatchService) classifyWithRetry(ctx context.Context, caseText string) (*models.FrictionVerdict, error) {
	delay := bs.cfg.RetryInitial
	var lastErr error

	for attempt := 1; attempt <= bs.cfg.RetryAttempts; attempt++ {
		verdict, err := bs.classifier.Classify(ctx, caseText)
		if err == nil {
			return verdict, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
		if attempt == bs.cfg.RetryAttempts {
			break
		}

		log.Printf("classifier overloaded (attempt %d/%d), retrying in %s", attempt, bs.cfg.RetryAttempts, delay)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrTransientService, ctx.Err())
		case <-time.After(delay):
		}

		delay *= 2
		if delay > bs.cfg.RetryMax {
			delay = bs.cfg.RetryMax
		}
	}

	return nil, lastErr
}

// pause applies the fixed inter-call delay that keeps the pipeline under the
// classifier's requests-per-second ceiling.
func (bs *BatchService) pause(ctx context.Context) {
	if bs.cfg.CaseDelay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(bs.cfg.CaseDelay):
	}
}
