package models

import "time"

// Theme keys the classifier is allowed to emit. "other" is the catch-all and
// is expected to be rare; "normal_support" is reserved for non-friction cases.
const (
	ThemeBillingConfusion     = "billing_confusion"
	ThemeIntegrationFailures  = "integration_failures"
	ThemeUIConfusion          = "ui_confusion"
	ThemePerformanceIssues    = "performance_issues"
	ThemeMissingFeatures      = "missing_features"
	ThemeTrainingGaps         = "training_gaps"
	ThemeSupportResponseTime  = "support_response_time"
	ThemeDataQuality          = "data_quality"
	ThemeReportingIssues      = "reporting_issues"
	ThemeAccessPermissions    = "access_permissions"
	ThemeConfigProblems       = "configuration_problems"
	ThemeNotificationIssues   = "notification_issues"
	ThemeWorkflowInefficiency = "workflow_inefficiency"
	ThemeMobileIssues         = "mobile_issues"
	ThemeDocumentationGaps    = "documentation_gaps"
	ThemeOther                = "other"
	ThemeNormalSupport        = "normal_support"
)

// FrictionThemes lists the themes selectable for a friction verdict.
var FrictionThemes = []string{
	ThemeBillingConfusion,
	ThemeIntegrationFailures,
	ThemeUIConfusion,
	ThemePerformanceIssues,
	ThemeMissingFeatures,
	ThemeTrainingGaps,
	ThemeSupportResponseTime,
	ThemeDataQuality,
	ThemeReportingIssues,
	ThemeAccessPermissions,
	ThemeConfigProblems,
	ThemeNotificationIssues,
	ThemeWorkflowInefficiency,
	ThemeMobileIssues,
	ThemeDocumentationGaps,
	ThemeOther,
}

// Sentiment labels for a classified case.
const (
	SentimentFrustrated = "frustrated"
	SentimentNeutral    = "neutral"
	SentimentSatisfied  = "satisfied"
)

// Ticket statuses reported by the ticket system bridge.
const (
	TicketStatusResolved   = "resolved"
	TicketStatusInProgress = "in_progress"
	TicketStatusOpen       = "open"
)

// Trend directions on a snapshot.
const (
	TrendImproving = "improving"
	TrendStable    = "stable"
	TrendWorsening = "worsening"
)

// RawCase is one ingested support interaction. The ingestion pipeline owns
// these rows; this service only reads them and flips Processed.
type RawCase struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Processed bool      `json:"processed"`
}

// FrictionVerdict is the classifier's structured output for a single case.
type FrictionVerdict struct {
	IsFriction bool     `json:"is_friction"`
	ThemeKey   string   `json:"theme_key"`
	Severity   int      `json:"severity"`
	Sentiment  string   `json:"sentiment"`
	RootCause  string   `json:"root_cause"`
	Evidence   []string `json:"evidence"`
	Summary    string   `json:"summary"`
	Reason     string   `json:"reason"`
	Confidence float64  `json:"confidence"`
}

// FrictionRecord is a persisted verdict, immutable once written.
type FrictionRecord struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"account_id"`
	CaseID     string    `json:"case_id"`
	IsFriction bool      `json:"is_friction"`
	ThemeKey   string    `json:"theme_key"`
	Severity   int       `json:"severity"`
	Sentiment  string    `json:"sentiment"`
	RootCause  string    `json:"root_cause"`
	Evidence   []string  `json:"evidence"`
	Summary    string    `json:"summary"`
	Reason     string    `json:"reason"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// BatchStatus distinguishes the terminal states of a batch run.
type BatchStatus string

const (
	// BatchNeedsSync means the account has no cases at all; ingestion has not
	// run yet for it.
	BatchNeedsSync BatchStatus = "needs_sync"
	// BatchUpToDate means every existing case is already processed.
	BatchUpToDate BatchStatus = "up_to_date"
	// BatchCompleted means at least one case was attempted this run.
	BatchCompleted BatchStatus = "completed"
)

// BatchResult summarizes one ProcessAccountBatch invocation.
type BatchResult struct {
	AccountID     string      `json:"account_id"`
	Status        BatchStatus `json:"status"`
	Analyzed      int         `json:"analyzed"`
	FrictionCount int         `json:"friction_count"`
	NormalCount   int         `json:"normal_count"`
	FailedCount   int         `json:"failed_count"`
	Remaining     int         `json:"remaining"`
	FirstError    string      `json:"first_error,omitempty"`
	PersistError  string      `json:"persist_error,omitempty"`
}

// TicketStatusByTheme maps a theme key to the best known ticket status for it.
type TicketStatusByTheme map[string]string

// HealthSignal is the optional third-party account health reading. Nil
// pointer fields mean the provider had no value.
type HealthSignal struct {
	HealthScore *float64 `json:"health_score"`
	NPSScore    *float64 `json:"nps_score"`
	Status      string   `json:"status"`
}

// ThemeSummary is one entry of a snapshot's top-theme ranking.
type ThemeSummary struct {
	Theme       string  `json:"theme"`
	Count       int     `json:"count"`
	AvgSeverity float64 `json:"avg_severity"`
}

// ScoreBreakdown holds every intermediate term of an OFI calculation so the
// final number can be audited.
type ScoreBreakdown struct {
	WeightedScore     float64 `json:"weighted_score"`
	BaseScore         float64 `json:"base_score"`
	FrictionDensity   float64 `json:"friction_density"`
	DensityMultiplier float64 `json:"density_multiplier"`
	HighSeverityBoost float64 `json:"high_severity_boost"`
	HealthAmplifier   float64 `json:"health_amplifier"`
	CaseVolume        int     `json:"case_volume"`
	WindowDays        int     `json:"window_days"`
}

// AccountSnapshot is one scoring result, at most one per account per day.
type AccountSnapshot struct {
	AccountID         string         `json:"account_id"`
	SnapshotDate      string         `json:"snapshot_date"` // YYYY-MM-DD
	OFIScore          int            `json:"ofi_score"`
	FrictionCardCount int            `json:"friction_card_count"`
	HighSeverityCount int            `json:"high_severity_count"`
	CaseVolume        int            `json:"case_volume"`
	TopThemes         []ThemeSummary `json:"top_themes"`
	TrendVsPrior      *int           `json:"trend_vs_prior_period"` // signed %, nil if no prior
	TrendDirection    string         `json:"trend_direction"`
	Breakdown         ScoreBreakdown `json:"score_breakdown"`
	CreatedAt         time.Time      `json:"created_at"`
}

// OFIResult is what the scoring engine returns to callers. NoData is set when
// the window held zero friction records; in that case no snapshot was written.
type OFIResult struct {
	NoData   bool             `json:"no_data"`
	Snapshot *AccountSnapshot `json:"snapshot,omitempty"`
}

// IsFrictionTheme reports whether key is a valid theme for a friction verdict.
func IsFrictionTheme(key string) bool {
	for _, t := range FrictionThemes {
		if t == key {
			return true
		}
	}
	return false
}

// IsSentiment reports whether s is a known sentiment label.
func IsSentiment(s string) bool {
	return s == SentimentFrustrated || s == SentimentNeutral || s == SentimentSatisfied
}
