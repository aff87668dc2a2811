package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"friction-intel-api/pkg/models"
)

// TicketBridge resolves the best known ticket status per friction theme for
// an account. Backed by the external ticket system (Jira); out-of-scope data
// that only feeds the damping multiplier.
type TicketBridge interface {
	StatusByTheme(ctx context.Context, accountID string, themes []string) (models.TicketStatusByTheme, error)
}

// HealthProvider returns the optional third-party health reading for an
// account. A nil signal means the provider knows nothing about the account.
type HealthProvider interface {
	AccountHealth(ctx context.Context, accountID string) (*models.HealthSignal, error)
}

// HTTPTicketBridge calls the ticket-system bridge REST endpoint.
type HTTPTicketBridge struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPTicketBridge creates a bridge client against baseURL.
func NewHTTPTicketBridge(baseURL string) *HTTPTicketBridge {
	return &HTTPTicketBridge{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type ticketStatusResponse struct {
	Statuses map[string]string `json:"statuses"`
}

// StatusByTheme fetches per-theme ticket statuses. Themes the bridge does not
// know are simply absent from the result; the scoring engine treats absence
// as "open".
func (b *HTTPTicketBridge) StatusByTheme(ctx context.Context, accountID string, themes []string) (models.TicketStatusByTheme, error) {
	if len(themes) == 0 {
		return models.TicketStatusByTheme{}, nil
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/ticket-status?themes=%s",
		b.baseURL, url.PathEscape(accountID), url.QueryEscape(strings.Join(themes, ",")))

	var resp ticketStatusResponse
	if err := getJSON(ctx, b.httpClient, endpoint, &resp); err != nil {
		return nil, fmt.Errorf("ticket bridge request failed: %w", err)
	}

	statuses := models.TicketStatusByTheme{}
	for theme, status := range resp.Statuses {
		switch status {
		case models.TicketStatusResolved, models.TicketStatusInProgress, models.TicketStatusOpen:
			statuses[theme] = status
		}
	}
	return statuses, nil
}

// HTTPHealthProvider calls the health-signal provider REST endpoint.
type HTTPHealthProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPHealthProvider creates a provider client against baseURL.
func NewHTTPHealthProvider(baseURL string) *HTTPHealthProvider {
	return &HTTPHealthProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// AccountHealth fetches the account's health signal. A 404 means the account
// is unknown to the provider and is not an error.
func (p *HTTPHealthProvider) AccountHealth(ctx context.Context, accountID string) (*models.HealthSignal, error) {
	endpoint := fmt.Sprintf("%s/accounts/%s/health", p.baseURL, url.PathEscape(accountID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build health request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read health response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health provider error (status %d): %s", resp.StatusCode, string(body))
	}

	var signal models.HealthSignal
	if err := json.Unmarshal(body, &signal); err != nil {
		return nil, fmt.Errorf("failed to decode health response: %w", err)
	}
	return &signal, nil
}

// getJSON runs a GET and decodes a 200 JSON body into out.
func getJSON(ctx context.Context, client *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}
