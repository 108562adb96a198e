// Package instagram provides a client for the Instagram Graph API
// content publishing endpoints used for catalog posts: image containers,
// carousel containers (up to 20 items), status checks and publishing.
//
// Instagram publishing is a multi-step process:
//  1. Create media containers (one per image, fetched by Instagram from a public URL)
//  2. For carousels: create a carousel container referencing child containers
//  3. Wait until each container reports FINISHED
//  4. Publish the top-level container
//
// Waiting is owned by the caller (see internal/publisher); this package only
// issues single requests.
package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBaseURL is the Graph API base URL for business accounts.
	DefaultBaseURL = "https://graph.facebook.com/v22.0"

	// defaultTimeout is the HTTP client timeout for API calls.
	defaultTimeout = 30 * time.Second

	// MaxCarouselItems is the Instagram carousel size limit.
	MaxCarouselItems = 20
)

// Container status codes returned by ContainerStatus.
const (
	StatusInProgress = "IN_PROGRESS"
	StatusFinished   = "FINISHED"
	StatusError      = "ERROR"
	StatusExpired    = "EXPIRED"
	StatusPublished  = "PUBLISHED"
)

// ErrNoID is returned when a create or publish call succeeds at the HTTP
// level but carries no id.
var ErrNoID = errors.New("no id returned")

// APIError is an error object returned by the Graph API.
type APIError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Instagram API error: %s (type: %s, code: %d)", e.Message, e.Type, e.Code)
}

// Client provides methods for publishing to Instagram via the Graph API.
type Client struct {
	httpClient  *http.Client
	accessToken string
	userID      string
	baseURL     string
	refreshURL  string
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at another Graph API version or host.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient creates an Instagram API client.
func NewClient(accessToken, userID string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		accessToken: accessToken,
		userID:      userID,
		baseURL:     DefaultBaseURL,
		refreshURL:  defaultRefreshURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// --- API response types ---

// apiResponse is the generic Instagram Graph API response.
type apiResponse struct {
	ID    string    `json:"id"`
	Error *APIError `json:"error,omitempty"`
}

// containerStatusResponse is the response from GET /{container_id}?fields=status_code.
type containerStatusResponse struct {
	ID         string    `json:"id"`
	StatusCode string    `json:"status_code"`
	Error      *APIError `json:"error,omitempty"`
}

// --- Container creation ---

// CreateImageContainer creates an image media container. imageURL must be
// publicly reachable. Carousel children carry no caption; caption is
// ignored when isCarouselItem is true.
func (c *Client) CreateImageContainer(ctx context.Context, imageURL, caption string, isCarouselItem bool) (string, error) {
	log.Debug().Bool("isCarouselItem", isCarouselItem).Str("imageUrl", imageURL).Msg("Creating image container")
	params := url.Values{
		"image_url":    {imageURL},
		"access_token": {c.accessToken},
	}
	if isCarouselItem {
		params.Set("is_carousel_item", "true")
	} else if caption != "" {
		params.Set("caption", caption)
	}

	resp, err := c.postForm(ctx, fmt.Sprintf("/%s/media", c.userID), params)
	if err != nil {
		return "", fmt.Errorf("create image container: %w", err)
	}
	log.Info().Str("containerId", resp.ID).Bool("isCarouselItem", isCarouselItem).Msg("Image container created")
	return resp.ID, nil
}

// CreateCarouselContainer creates a carousel container from child container IDs.
func (c *Client) CreateCarouselContainer(ctx context.Context, children []string, caption string) (string, error) {
	if len(children) < 2 {
		return "", fmt.Errorf("carousel requires at least 2 items, got %d", len(children))
	}
	if len(children) > MaxCarouselItems {
		return "", fmt.Errorf("carousel supports at most %d items, got %d", MaxCarouselItems, len(children))
	}

	params := url.Values{
		"media_type":   {"CAROUSEL"},
		"children":     {strings.Join(children, ",")},
		"caption":      {caption},
		"access_token": {c.accessToken},
	}

	resp, err := c.postForm(ctx, fmt.Sprintf("/%s/media", c.userID), params)
	if err != nil {
		return "", fmt.Errorf("create carousel container: %w", err)
	}
	log.Info().Str("containerId", resp.ID).Int("children", len(children)).Msg("Carousel container created")
	return resp.ID, nil
}

// --- Publishing ---

// Publish publishes a media container (carousel or single).
// Returns the Instagram media ID of the published post.
func (c *Client) Publish(ctx context.Context, containerID string) (string, error) {
	log.Debug().Str("containerId", containerID).Msg("Publishing container")
	params := url.Values{
		"creation_id":  {containerID},
		"access_token": {c.accessToken},
	}

	resp, err := c.postForm(ctx, fmt.Sprintf("/%s/media_publish", c.userID), params)
	if err != nil {
		return "", fmt.Errorf("publish container %s: %w", containerID, err)
	}
	log.Info().Str("containerId", containerID).Str("postId", resp.ID).Msg("Container published successfully")
	return resp.ID, nil
}

// --- Status polling ---

// ContainerStatus returns the processing status of a media container:
// IN_PROGRESS, FINISHED, ERROR, EXPIRED or PUBLISHED.
func (c *Client) ContainerStatus(ctx context.Context, containerID string) (string, error) {
	endpoint := fmt.Sprintf("/%s?fields=status_code&access_token=%s",
		url.PathEscape(containerID), url.QueryEscape(c.accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("container status request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var status containerStatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return "", fmt.Errorf("parse response: %w (body: %s)", err, truncate(string(body), 200))
	}
	if status.Error != nil {
		return "", status.Error
	}

	log.Trace().Str("containerId", containerID).Str("status", status.StatusCode).Msg("Container status")
	return status.StatusCode, nil
}

// SetAccessToken swaps the token used for subsequent calls, e.g. after a
// refresh.
func (c *Client) SetAccessToken(token string) {
	c.accessToken = token
}

// --- Internal helpers ---

// postForm sends a POST request with form-encoded parameters to the Instagram API.
func (c *Client) postForm(ctx context.Context, endpoint string, params url.Values) (*apiResponse, error) {
	startTime := time.Now()

	// Log form parameter names (not values) at Trace level
	paramNames := make([]string, 0, len(params))
	for key := range params {
		paramNames = append(paramNames, key)
	}
	log.Trace().Strs("formParams", paramNames).Msg("Form parameters")

	log.Debug().Str("method", http.MethodPost).Str("path", endpoint).Msg("Instagram API request")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint,
		strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		log.Debug().Int("statusCode", 0).Dur("duration", duration).Err(err).Msg("Instagram API response")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	log.Debug().Int("statusCode", httpResp.StatusCode).Dur("duration", duration).Msg("Instagram API response")

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w (body: %s)", err, truncate(string(body), 200))
	}

	if resp.Error != nil {
		log.Error().Str("errorMessage", resp.Error.Message).Str("errorType", resp.Error.Type).Int("errorCode", resp.Error.Code).Msg("Instagram API error")
		return nil, resp.Error
	}

	if resp.ID == "" {
		return nil, fmt.Errorf("%w (body: %s)", ErrNoID, truncate(string(body), 200))
	}

	return &resp, nil
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
