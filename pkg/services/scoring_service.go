package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"friction-intel-api/pkg/models"
	"friction-intel-api/pkg/store"
)

// scoringWindowDays is the trailing window of friction records one OFI
// calculation looks at.
const scoringWindowDays = 14

// severityWeights maps severity 1..5 to its scoring weight. Sub-exponential
// so a handful of severity-5 issues cannot saturate the score on their own.
var severityWeights = map[int]float64{
	1: 1,
	2: 2,
	3: 3,
	4: 5,
	5: 8,
}

// ticketDamping discounts a record's weight by how far along remediation is
// for its theme.
var ticketDamping = map[string]float64{
	models.TicketStatusResolved:   0.2,
	models.TicketStatusInProgress: 0.5,
	models.TicketStatusOpen:       1.0,
}

// SnapshotPublisher emits a persisted snapshot to downstream consumers.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, snapshot *models.AccountSnapshot) error
}

// ScoringService computes the Operational Friction Index for an account and
// persists one auditable snapshot per day.
type ScoringService struct {
	store     store.Store
	tickets   TicketBridge
	health    HealthProvider
	publisher SnapshotPublisher // optional
}

// NewScoringService creates a scoring engine. publisher may be nil when no
// event sink is configured.
func NewScoringService(st store.Store, tickets TicketBridge, health HealthProvider, publisher SnapshotPublisher) *ScoringService {
	return &ScoringService{store: st, tickets: tickets, health: health, publisher: publisher}
}

// ComputeOFI scores the account as of the given date and replaces that date's
// snapshot. Zero friction records in the window yield a NoData result and no
// snapshot row. Every intermediate term lands in the snapshot's breakdown so
// the final number can be reproduced by hand.
func (ss *ScoringService) ComputeOFI(ctx context.Context, accountID string, asOf time.Time) (*models.OFIResult, error) {
	release, err := ss.store.AcquireAccountLock(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrLockHeld) {
			return nil, fmt.Errorf("%w: account %s", ErrAccountBusy, accountID)
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	defer release()

	day := asOf.UTC().Truncate(24 * time.Hour)
	windowEnd := day.Add(24 * time.Hour)
	windowStart := windowEnd.AddDate(0, 0, -scoringWindowDays)
	snapshotDate := day.Format("2006-01-02")

	records, err := ss.store.FrictionRecordsInWindow(ctx, accountID, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if len(records) == 0 {
		return &models.OFIResult{NoData: true}, nil
	}

	caseVolume, err := ss.store.CountCases(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	statuses := ss.ticketStatuses(ctx, accountID, records)
	healthSignal := ss.healthSignal(ctx, accountID)

	breakdown, score := calculateScore(records, caseVolume, statuses, healthSignal)

	trendPct, trendDirection, err := ss.computeTrend(ctx, accountID, snapshotDate, score)
	if err != nil {
		return nil, err
	}

	snapshot := &models.AccountSnapshot{
		AccountID:         accountID,
		SnapshotDate:      snapshotDate,
		OFIScore:          score,
		FrictionCardCount: len(records),
		HighSeverityCount: countHighSeverity(records),
		CaseVolume:        caseVolume,
		TopThemes:         topThemes(records),
		TrendVsPrior:      trendPct,
		TrendDirection:    trendDirection,
		Breakdown:         breakdown,
		CreatedAt:         time.Now().UTC(),
	}

	if err := ss.store.SaveSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if ss.publisher != nil {
		if err := ss.publisher.PublishSnapshot(ctx, snapshot); err != nil {
			log.Printf("failed to publish snapshot event for account %s: %v", accountID, err)
		}
	}

	return &models.OFIResult{Snapshot: snapshot}, nil
}

// calculateScore runs the scoring formula and returns the breakdown plus the
// final clamped score.
func calculateScore(records []models.FrictionRecord, caseVolume int, statuses models.TicketStatusByTheme, health *models.HealthSignal) (models.ScoreBreakdown, int) {
	// Severity weighting with per-theme ticket damping. A theme with no
	// known ticket counts as open: absence of evidence of remediation must
	// not reduce the score.
	weighted := 0.0
	for _, r := range records {
		weight := severityWeights[clampSeverity(r.Severity)]
		damping := 1.0
		if status, ok := statuses[r.ThemeKey]; ok {
			if d, ok := ticketDamping[status]; ok {
				damping = d
			}
		}
		weighted += weight * damping
	}

	baseScore := math.Log10(weighted+1) * 15

	// Window numerator over lifetime denominator. Asymmetric on purpose;
	// see DESIGN.md before "fixing" this.
	volume := caseVolume
	if volume < 1 {
		volume = 1
	}
	density := float64(len(records)) / float64(volume) * 100

	densityMultiplier := clampFloat(density/5, 0.5, 1.5)

	highSeverityBoost := math.Min(15, float64(countHighSeverity(records))*1.5)

	amplifier := healthAmplifier(health)

	final := math.Round((baseScore*densityMultiplier + highSeverityBoost) * amplifier)
	score := int(clampFloat(final, 0, 100))

	return models.ScoreBreakdown{
		WeightedScore:     weighted,
		BaseScore:         baseScore,
		FrictionDensity:   density,
		DensityMultiplier: densityMultiplier,
		HighSeverityBoost: highSeverityBoost,
		HealthAmplifier:   amplifier,
		CaseVolume:        caseVolume,
		WindowDays:        scoringWindowDays,
	}, score
}

// healthAmplifier derives the external-signal multiplier. Status beats raw
// health score; the NPS penalty stacks on either branch independently.
func healthAmplifier(health *models.HealthSignal) float64 {
	amplifier := 1.0
	if health == nil {
		return amplifier
	}

	status := strings.ToLower(health.Status)
	switch {
	case strings.Contains(status, "churn") || strings.Contains(status, "at risk") || strings.Contains(status, "at_risk"):
		amplifier *= 1.3
	case health.HealthScore != nil && *health.HealthScore < 60:
		amplifier *= 1.2
	}

	if health.NPSScore != nil && *health.NPSScore < 7 {
		amplifier *= 1.15
	}

	return amplifier
}

// computeTrend compares against the most recent prior snapshot. No prior, or
// a prior score of zero, means no comparison.
func (ss *ScoringService) computeTrend(ctx context.Context, accountID, snapshotDate string, score int) (*int, string, error) {
	prior, err := ss.store.LatestSnapshotBefore(ctx, accountID, snapshotDate)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if prior == nil || prior.OFIScore == 0 {
		return nil, models.TrendStable, nil
	}

	pct := int(math.Round(float64(score-prior.OFIScore) / float64(prior.OFIScore) * 100))
	direction := models.TrendStable
	if pct > 15 {
		direction = models.TrendWorsening
	} else if pct < -15 {
		direction = models.TrendImproving
	}
	return &pct, direction, nil
}

// topThemes groups the window's records by theme and keeps the five most
// frequent, each with its average severity.
func topThemes(records []models.FrictionRecord) []models.ThemeSummary {
	counts := make(map[string]int)
	severitySums := make(map[string]int)
	for _, r := range records {
		counts[r.ThemeKey]++
		severitySums[r.ThemeKey] += clampSeverity(r.Severity)
	}

	summaries := make([]models.ThemeSummary, 0, len(counts))
	for theme, count := range counts {
		summaries = append(summaries, models.ThemeSummary{
			Theme:       theme,
			Count:       count,
			AvgSeverity: float64(severitySums[theme]) / float64(count),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Count != summaries[j].Count {
			return summaries[i].Count > summaries[j].Count
		}
		return summaries[i].Theme < summaries[j].Theme
	})

	if len(summaries) > 5 {
		summaries = summaries[:5]
	}
	return summaries
}

func countHighSeverity(records []models.FrictionRecord) int {
	count := 0
	for _, r := range records {
		if r.Severity >= 4 {
			count++
		}
	}
	return count
}

// ticketStatuses asks the bridge for the best status per theme present in the
// window. A bridge failure degrades to "no data", which scores as open.
func (ss *ScoringService) ticketStatuses(ctx context.Context, accountID string, records []models.FrictionRecord) models.TicketStatusByTheme {
	seen := make(map[string]bool)
	var themes []string
	for _, r := range records {
		if !seen[r.ThemeKey] {
			seen[r.ThemeKey] = true
			themes = append(themes, r.ThemeKey)
		}
	}

	statuses, err := ss.tickets.StatusByTheme(ctx, accountID, themes)
	if err != nil {
		log.Printf("ticket bridge unavailable for account %s, scoring all themes as open: %v", accountID, err)
		return models.TicketStatusByTheme{}
	}
	return statuses
}

// healthSignal fetches the optional health reading. Provider failures just
// leave the amplifier at 1.0.
func (ss *ScoringService) healthSignal(ctx context.Context, accountID string) *models.HealthSignal {
	signal, err := ss.health.AccountHealth(ctx, accountID)
	if err != nil {
		log.Printf("health provider unavailable for account %s: %v", accountID, err)
		return nil
	}
	return signal
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
