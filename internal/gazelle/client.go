// Package gazelle talks to a Gazelle tracker's ajax API and normalizes
// its responses into the music data model: HTML entities unescaped,
// file lists parsed, and one torrent per group picked by the selection
// policy.
package gazelle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/welp-ops/gazelle-subsonic/internal/selection"
)

// ErrNotFound is returned when the tracker reports that the requested
// id does not exist, as opposed to a general API failure.
var ErrNotFound = errors.New("gazelle: no such id")

// UpstreamError is a tracker-reported failure other than not-found. The
// verbatim tracker message is kept for logs; it is not assumed safe to
// show to subsonic clients.
type UpstreamError struct {
	Action  string
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("gazelle: action %q failed: %s", e.Action, e.Message)
}

// Failure messages the tracker uses for ids that don't exist. Anything
// else stays an UpstreamError.
var notFoundMessages = map[string]bool{
	"bad id parameter": true,
	"no such artist":   true,
}

// Config is the tracker connection configuration.
type Config struct {
	// BaseURL is the tracker root, no trailing slash.
	BaseURL string
	// AuthToken is an API token sent in the Authorization header.
	AuthToken string
	// PageSize is the number of results the tracker returns per browse
	// page. Fixed by the tracker, not negotiable per request.
	PageSize int
}

// Client is the catalog gateway.
type Client struct {
	cfg    Config
	policy selection.Policy
	http   *http.Client
	log    *slog.Logger
}

// New builds a Client. The policy decides which torrent a fetched group
// exposes.
func New(cfg Config, policy selection.Policy, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	return &Client{
		cfg:    cfg,
		policy: policy,
		http:   &http.Client{},
		log:    log,
	}
}

// PageSize is the tracker's fixed browse page size.
func (c *Client) PageSize() int { return c.cfg.PageSize }

type apiEnvelope struct {
	Status   string          `json:"status"`
	Error    string          `json:"error"`
	Response json.RawMessage `json:"response"`
}

// call performs one ajax API request and decodes the response payload
// into out. Tracker-level failures come back as ErrNotFound or
// *UpstreamError.
func (c *Client) call(ctx context.Context, action string, params url.Values, out any) error {
	u := fmt.Sprintf("%s/ajax.php?action=%s", c.cfg.BaseURL, url.QueryEscape(action))
	if len(params) > 0 {
		u += "&" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("gazelle: build request: %w", err)
	}
	req.Header.Set("Authorization", c.cfg.AuthToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gazelle: %s request: %w", action, err)
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("gazelle: decode %s response: %w", action, err)
	}

	if envelope.Status != "success" {
		if notFoundMessages[envelope.Error] {
			return ErrNotFound
		}
		return &UpstreamError{Action: action, Message: envelope.Error}
	}

	if err := json.Unmarshal(envelope.Response, out); err != nil {
		return fmt.Errorf("gazelle: decode %s payload: %w", action, err)
	}
	return nil
}
