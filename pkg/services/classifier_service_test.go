package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"friction-intel-api/pkg/llm"
	"friction-intel-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChatClient returns a canned response or error and captures the last
// prompt it was given.
type fakeChatClient struct {
	response string
	err      error
	lastUser string
}

func (f *fakeChatClient) ChatCompletion(_ context.Context, messages []llm.ChatMessage, _ int, _ float32) (string, error) {
	for _, m := range messages {
		if m.Role == "user" {
			f.lastUser = m.Content
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestClassifyFrictionVerdict(t *testing.T) {
	client := &fakeChatClient{response: `Here is my analysis:
{"is_friction": true, "theme_key": "integration_failures", "severity": 4, "sentiment": "frustrated", "root_cause": "export endpoint returns 500", "evidence": ["throwing a 500 error for three days"], "summary": "Export API broken", "reason": "systemic API failure blocking reports"}`}
	cs := NewClassifierService(client)

	verdict, err := cs.Classify(context.Background(), "The export button has been throwing a 500 error for three days")
	require.NoError(t, err)

	assert.True(t, verdict.IsFriction)
	assert.Equal(t, models.ThemeIntegrationFailures, verdict.ThemeKey)
	assert.Equal(t, 4, verdict.Severity)
	assert.Equal(t, models.SentimentFrustrated, verdict.Sentiment)
	assert.Equal(t, 0.8, verdict.Confidence)
}

func TestClassifyNormalSupportForcesThemeAndSeverity(t *testing.T) {
	// Even if the model emits a theme and high severity, a non-friction
	// verdict is normalized.
	client := &fakeChatClient{response: `{"is_friction": false, "theme_key": "billing_confusion", "severity": 5, "sentiment": "frustrated", "summary": "Billing email change", "reason": "routine contact-info update"}`}
	cs := NewClassifierService(client)

	verdict, err := cs.Classify(context.Background(), "Please update my billing email to new@x.com")
	require.NoError(t, err)

	assert.False(t, verdict.IsFriction)
	assert.Equal(t, models.ThemeNormalSupport, verdict.ThemeKey)
	assert.Equal(t, 1, verdict.Severity)
}

func TestClassifySeverityClamped(t *testing.T) {
	for _, tc := range []struct {
		raw  int
		want int
	}{
		{-3, 1}, {0, 1}, {1, 1}, {5, 5}, {9, 5}, {100, 5},
	} {
		client := &fakeChatClient{response: fmt.Sprintf(
			`{"is_friction": true, "theme_key": "ui_confusion", "severity": %d, "sentiment": "neutral", "summary": "s", "reason": "r"}`, tc.raw)}
		cs := NewClassifierService(client)

		verdict, err := cs.Classify(context.Background(), "case text")
		require.NoError(t, err)
		assert.Equal(t, tc.want, verdict.Severity, "severity %d", tc.raw)
	}
}

func TestClassifyUnknownThemeFallsBackToOther(t *testing.T) {
	client := &fakeChatClient{response: `{"is_friction": true, "theme_key": "made_up_theme", "severity": 2, "sentiment": "neutral", "summary": "s", "reason": "r"}`}
	cs := NewClassifierService(client)

	verdict, err := cs.Classify(context.Background(), "case text")
	require.NoError(t, err)
	assert.Equal(t, models.ThemeOther, verdict.ThemeKey)
}

func TestClassifyEvidenceCappedAtTwo(t *testing.T) {
	client := &fakeChatClient{response: `{"is_friction": true, "theme_key": "data_quality", "severity": 3, "sentiment": "neutral", "evidence": ["a", "b", "c", "d"], "summary": "s", "reason": "r"}`}
	cs := NewClassifierService(client)

	verdict, err := cs.Classify(context.Background(), "case text")
	require.NoError(t, err)
	assert.Len(t, verdict.Evidence, 2)
}

func TestClassifyTruncatesLongCaseText(t *testing.T) {
	client := &fakeChatClient{response: `{"is_friction": false, "summary": "s", "reason": "r"}`}
	cs := NewClassifierService(client)

	longText := strings.Repeat("x", 5000)
	_, err := cs.Classify(context.Background(), longText)
	require.NoError(t, err)

	assert.Contains(t, client.lastUser, truncationMarker)
	assert.NotContains(t, client.lastUser, strings.Repeat("x", 2001))
}

func TestClassifyTruncatesOnRuneBoundary(t *testing.T) {
	client := &fakeChatClient{response: `{"is_friction": false, "summary": "s", "reason": "r"}`}
	cs := NewClassifierService(client)

	// A 3-byte rune straddles the 2000-byte cut point; it must be dropped
	// whole rather than split into invalid bytes.
	text := strings.Repeat("x", 1999) + strings.Repeat("界", 400)
	_, err := cs.Classify(context.Background(), text)
	require.NoError(t, err)

	assert.True(t, utf8.ValidString(client.lastUser))
	assert.Contains(t, client.lastUser, strings.Repeat("x", 1999)+truncationMarker)
}

func TestClassifyParseFailures(t *testing.T) {
	for name, response := range map[string]string{
		"no json":            "I cannot classify this case.",
		"unbalanced braces":  `{"is_friction": true, "severity": 3`,
		"missing isfriction": `{"theme_key": "ui_confusion", "severity": 3, "summary": "s", "reason": "r"}`,
		"wrong types":        `{"is_friction": "yes", "severity": "high"}`,
	} {
		t.Run(name, func(t *testing.T) {
			cs := NewClassifierService(&fakeChatClient{response: response})
			_, err := cs.Classify(context.Background(), "case text")
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestClassifyAPIErrorClassification(t *testing.T) {
	rateLimited := &fakeChatClient{err: &llm.APIError{StatusCode: 429, Message: "slow down"}}
	_, err := NewClassifierService(rateLimited).Classify(context.Background(), "text")
	assert.ErrorIs(t, err, ErrTransientService)

	unauthorized := &fakeChatClient{err: &llm.APIError{StatusCode: 401, Message: "bad key"}}
	_, err = NewClassifierService(unauthorized).Classify(context.Background(), "text")
	assert.ErrorIs(t, err, ErrConfiguration)

	network := &fakeChatClient{err: errors.New("connection refused")}
	_, err = NewClassifierService(network).Classify(context.Background(), "text")
	assert.ErrorIs(t, err, ErrTransientService)
}

func TestExtractFirstJSONObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`, true},
		{"prose wrapped", "Sure! Here you go:\n```json\n{\"a\": 1}\n```\nHope that helps.", `{"a": 1}`, true},
		{"nested braces", `{"a": {"b": 2}}`, `{"a": {"b": 2}}`, true},
		{"braces in strings", `{"a": "curly } brace", "b": 1}`, `{"a": "curly } brace", "b": 1}`, true},
		{"escaped quotes", `{"a": "say \"hi\" {now}"}`, `{"a": "say \"hi\" {now}"}`, true},
		{"first of two", `{"a": 1} {"b": 2}`, `{"a": 1}`, true},
		{"no object", "nothing here", "", false},
		{"never closed", `{"a": 1`, "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := extractFirstJSONObject(tc.input)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRubricPromptListsEveryTheme(t *testing.T) {
	for _, theme := range models.FrictionThemes {
		assert.Contains(t, classifierSystemPrompt, theme)
	}
}
