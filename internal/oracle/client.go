// Package oracle is the client of the authoritative permission backend. It
// answers the checks the local cache cannot: condition predicates (IP,
// device, time), organization-membership chains, and anything gating a
// destructive or security-sensitive action.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff"

	"labguard/internal/model"
)

// ErrUnavailable marks a network or server failure. Gating call sites must
// treat the accompanying result as a denial, never as an exception.
var ErrUnavailable = errors.New("permission oracle unavailable")

// Requirement describes a grant that would have satisfied a denied request,
// for diagnostic UI.
type Requirement struct {
	ResourceType model.ResourceType `json:"resourceType"`
	Action       model.Action       `json:"action"`
	ResourceID   string             `json:"resourceId,omitempty"`
}

// CheckResult is the oracle's verdict. Reason is human-readable and only set
// on denial.
type CheckResult struct {
	HasPermission bool          `json:"hasPermission"`
	Reason        string        `json:"reason,omitempty"`
	Required      []Requirement `json:"required,omitempty"`
}

// Client talks to the permission backend over HTTP. Calls are independent,
// cancellable and idempotent; failures are retried with bounded exponential
// backoff and then surface as a closed (denied) result.
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	token      string
	maxRetries uint64
}

// NewClient creates an oracle client. token is the upstream-issued bearer
// token identifying the principal; the oracle never mints identities.
func NewClient(logger *slog.Logger, baseURL, token string) *Client {
	return &Client{
		logger:     logger.With("component", "permission_oracle"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		token:      token,
		maxRetries: 2,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// CheckPermission asks the backend for an authoritative decision. It fails
// closed: any transport or server failure yields hasPermission=false plus
// ErrUnavailable, logged here so UI gates can ignore the error safely.
func (c *Client) CheckPermission(ctx context.Context, rt model.ResourceType, action model.Action, resourceID string) (CheckResult, error) {
	query := url.Values{}
	query.Set("resourceType", string(rt))
	query.Set("action", string(action))
	if resourceID != "" {
		query.Set("resourceId", resourceID)
	}

	var result CheckResult
	err := c.getJSON(ctx, "/api/permissions/check?"+query.Encode(), &result)
	if err != nil {
		c.logger.Error("remote permission check failed",
			"resource_type", rt, "action", action, "resource_id", resourceID, "error", err)
		return CheckResult{HasPermission: false, Reason: "permission service unavailable"},
			fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return result, nil
}

// UserPermissions fetches every grant that applies to the principal. It is
// the cache's fetch source.
func (c *Client) UserPermissions(ctx context.Context) ([]model.Permission, error) {
	var grants []model.Permission
	if err := c.getJSON(ctx, "/api/permissions/user", &grants); err != nil {
		return nil, fmt.Errorf("failed to fetch user permissions: %w", err)
	}
	return grants, nil
}

// getJSON performs a GET with bounded retry and decodes the {success, data}
// envelope into out. Client errors (4xx) are permanent; network errors and
// 5xx are retried.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error: %s", resp.Status)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("request rejected: %s", resp.Status))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
		}
		if !env.Success {
			return backoff.Permanent(fmt.Errorf("backend refused request: %s", env.Message))
		}
		if out != nil && env.Data != nil {
			if err := json.Unmarshal(env.Data, out); err != nil {
				return backoff.Permanent(fmt.Errorf("failed to decode response data: %w", err))
			}
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newBackOff(), c.maxRetries), ctx)
	return backoff.Retry(operation, policy)
}

func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 15 * time.Second
	return b
}
