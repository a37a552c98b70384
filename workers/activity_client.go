// workers/activity_client.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"xp-ledger/logger"
	"xp-ledger/models"
	"xp-ledger/utils"
)

// ActivityClient reads raw user activity from the activity service. It backs the
// recalculator and audit.
type ActivityClient struct {
	baseURL      string
	serviceToken string
	httpClient   *http.Client
	log          *logger.Logger
}

type userIDsResponse struct {
	UserIDs []string `json:"user_ids"`
}

func NewActivityClient(baseURL, serviceToken string, log *logger.Logger) (*ActivityClient, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("activity service URL is empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid activity service URL '%s': %w", baseURL, err)
	}
	return &ActivityClient{
		baseURL:      baseURL,
		serviceToken: serviceToken,
		httpClient:   utils.HTTPClient,
		log:          log.With("service", "ActivityClient"),
	}, nil
}

// History fetches GET /api/v1/activity/users/:id.
func (c *ActivityClient) History(ctx context.Context, userID string) (*models.ActivityHistory, error) {
	var h models.ActivityHistory
	if err := c.get(ctx, &h, "api", "v1", "activity", "users", userID); err != nil {
		return nil, err
	}
	if h.UserID == "" {
		h.UserID = userID
	}
	return &h, nil
}

// UserIDs fetches GET /api/v1/activity/users.
func (c *ActivityClient) UserIDs(ctx context.Context) ([]string, error) {
	var resp userIDsResponse
	if err := c.get(ctx, &resp, "api", "v1", "activity", "users"); err != nil {
		return nil, err
	}
	return resp.UserIDs, nil
}

func (c *ActivityClient) get(ctx context.Context, out any, segments ...string) error {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid activity service URL '%s': %w", c.baseURL, err)
	}
	endpoint := base.JoinPath(segments...).String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", endpoint, err)
	}
	req.Header.Set("X-Service-Token", c.serviceToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("activity request failed", "url", endpoint, "error", err)
		return fmt.Errorf("activity service request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.log.Warn("activity service returned non-200", "url", endpoint, "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("activity service non-200 response: %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode activity service response: %w", err)
	}
	return nil
}
