// Long-lived token refresh for Instagram accounts.
//
// Long-lived tokens are valid for 60 days. A token that is at least 24 hours
// old and not yet expired can be exchanged for a fresh one with the same
// lifetime. The scheduler refreshes weekly so the token never lapses.

package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
)

const defaultRefreshURL = "https://graph.instagram.com/refresh_access_token"

// LongLivedTokenResult holds a refreshed long-lived access token.
type LongLivedTokenResult struct {
	AccessToken string // Long-lived token (60 days)
	ExpiresIn   int64  // Seconds until expiry (typically 5184000 = 60 days)
}

// longTokenResponse is the JSON response from the refresh endpoint.
type longTokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	Error       *APIError `json:"error,omitempty"`
}

// RefreshLongLivedToken exchanges the client's current long-lived token for
// a new one and switches the client to it.
//
// Endpoint: GET https://graph.instagram.com/refresh_access_token
//
//	?grant_type=ig_refresh_token
//	&access_token={long_lived_token}
func (c *Client) RefreshLongLivedToken(ctx context.Context) (*LongLivedTokenResult, error) {
	u := fmt.Sprintf("%s?grant_type=ig_refresh_token&access_token=%s",
		c.refreshURL, url.QueryEscape(c.accessToken))

	log.Debug().Msg("Refreshing long-lived token")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token refresh request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var result longTokenResponse
	if err := json.Unmarshal(body, &result); err != nil && resp.StatusCode == http.StatusOK {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if result.Error != nil {
		return nil, fmt.Errorf("token refresh failed: %w", result.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token refresh failed (status %d): %s",
			resp.StatusCode, truncate(string(body), 300))
	}
	if result.AccessToken == "" {
		return nil, fmt.Errorf("no access token in response: %s", truncate(string(body), 300))
	}

	c.SetAccessToken(result.AccessToken)

	days := result.ExpiresIn / 86400
	log.Info().Int64("expiresInDays", days).Msg("Long-lived token refreshed")

	return &LongLivedTokenResult{
		AccessToken: result.AccessToken,
		ExpiresIn:   result.ExpiresIn,
	}, nil
}
