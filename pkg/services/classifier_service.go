package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"friction-intel-api/pkg/llm"
	"friction-intel-api/pkg/models"
)

// maxCaseTextChars bounds how much case text is sent to the model. Longer
// cases are cut and the rubric is told about it, trading tail content for a
// predictable token budget.
const maxCaseTextChars = 2000

const truncationMarker = "\n\n[NOTE: case text truncated at 2000 characters]"

// verdictConfidence is the fixed confidence recorded on every verdict. The
// rubric does not ask the model to self-grade.
const verdictConfidence = 0.8

// ChatClient is the slice of the llm client the classifier needs.
type ChatClient interface {
	ChatCompletion(ctx context.Context, messages []llm.ChatMessage, maxTokens int, temperature float32) (string, error)
}

// ClassifierService turns raw support-case text into a FrictionVerdict using
// an LLM held to a strict rubric.
type ClassifierService struct {
	client ChatClient
}

// NewClassifierService creates a classifier backed by the given chat client.
func NewClassifierService(client ChatClient) *ClassifierService {
	return &ClassifierService{client: client}
}

const classifierSystemPrompt = `You are a customer-success analyst who separates real product friction from routine support traffic. Respond with exactly one JSON object and nothing else.

Mark is_friction = true ONLY for systemic product or UX defects:
- bugs and broken features
- confusing UI that blocks a workflow
- performance problems
- integration or API failures
- missing functionality that blocks the customer
- data-quality issues caused by the system
- billing-system malfunctions

Mark is_friction = false for anything transactional or routine:
- auto-replies
- profile or contact-info changes
- onboarding setup tasks
- how-to questions that the documentation answers
- feature requests without demonstrated blocking pain
- positive feedback
- cancellations
- "how do I use X" questions, unless the confusion comes from genuinely unclear UI

When is_friction is true, pick theme_key from this list:
billing_confusion, integration_failures, ui_confusion, performance_issues, missing_features, training_gaps, support_response_time, data_quality, reporting_issues, access_permissions, configuration_problems, notification_issues, workflow_inefficiency, mobile_issues, documentation_gaps
Use "other" only when none of those apply; it should be rare.

Grade severity 1-5: 1 = minor inconvenience, 5 = critical blocker.
Grade sentiment as one of: frustrated, neutral, satisfied.

Return this JSON shape:
{"is_friction": bool, "theme_key": "...", "severity": 1-5, "sentiment": "...", "root_cause": "...", "evidence": ["up to 2 short quotes"], "summary": "...", "reason": "..."}`

// Classify runs one case through the rubric. API failures and unparseable
// responses come back as errors from the taxonomy in errors.go; they never
// panic and never poison a whole batch.
func (cs *ClassifierService) Classify(ctx context.Context, caseText string) (*models.FrictionVerdict, error) {
	text := caseText
	if len(text) > maxCaseTextChars {
		cut := maxCaseTextChars
		// Back off to a rune boundary so a multi-byte character at the cut
		// point is dropped whole instead of sent as invalid bytes.
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + truncationMarker
	}

	messages := []llm.ChatMessage{
		{Role: "system", Content: classifierSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Classify the following support case:\n\n%s", text)},
	}

	response, err := cs.client.ChatCompletion(ctx, messages, 500, 0.2)
	if err != nil {
		return nil, classifyLLMError(err)
	}

	raw, ok := extractFirstJSONObject(response)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrParse)
	}

	verdict, err := decodeVerdict(raw)
	if err != nil {
		return nil, err
	}
	return verdict, nil
}

// rawVerdict decodes with a pointer on is_friction so a missing field can be
// told apart from an explicit false.
type rawVerdict struct {
	IsFriction *bool    `json:"is_friction"`
	ThemeKey   string   `json:"theme_key"`
	Severity   int      `json:"severity"`
	Sentiment  string   `json:"sentiment"`
	RootCause  string   `json:"root_cause"`
	Evidence   []string `json:"evidence"`
	Summary    string   `json:"summary"`
	Reason     string   `json:"reason"`
}

// decodeVerdict validates the model's JSON before anything downstream trusts
// it. Out-of-range severity is clamped, an unknown theme falls back to
// "other", and non-friction verdicts are normalized to normal_support with
// severity 1.
func decodeVerdict(raw string) (*models.FrictionVerdict, error) {
	var rv rawVerdict
	if err := json.Unmarshal([]byte(raw), &rv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if rv.IsFriction == nil {
		return nil, fmt.Errorf("%w: missing is_friction field", ErrParse)
	}

	verdict := &models.FrictionVerdict{
		IsFriction: *rv.IsFriction,
		RootCause:  rv.RootCause,
		Summary:    rv.Summary,
		Reason:     rv.Reason,
		Confidence: verdictConfidence,
	}

	if !verdict.IsFriction {
		verdict.ThemeKey = models.ThemeNormalSupport
		verdict.Severity = 1
		verdict.Sentiment = models.SentimentNeutral
		return verdict, nil
	}

	verdict.ThemeKey = rv.ThemeKey
	if !models.IsFrictionTheme(verdict.ThemeKey) {
		verdict.ThemeKey = models.ThemeOther
	}

	verdict.Severity = clampSeverity(rv.Severity)

	verdict.Sentiment = rv.Sentiment
	if !models.IsSentiment(verdict.Sentiment) {
		verdict.Sentiment = models.SentimentNeutral
	}

	if len(rv.Evidence) > 2 {
		rv.Evidence = rv.Evidence[:2]
	}
	verdict.Evidence = rv.Evidence

	return verdict, nil
}

func clampSeverity(severity int) int {
	if severity < 1 {
		return 1
	}
	if severity > 5 {
		return 5
	}
	return severity
}

// extractFirstJSONObject scans for the first balanced top-level {...} in a
// response that may wrap the JSON in prose or code fences. String literals
// and escapes are honored so braces inside values do not break the balance.
func extractFirstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
