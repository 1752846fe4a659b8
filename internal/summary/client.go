// Package summary talks to the external daily analysis service and turns its
// answer into the day's stored analysis and dish.
package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrNoReflections = errors.New("no reflections to analyze")
	ErrNotConfigured = errors.New("summary service URL not configured")
	ErrEmptySummary  = errors.New("summary service returned an empty summary")
)

// ScrollData is the behavioral aggregate sent for analysis
type ScrollData struct {
	ScrollDistance float64 `json:"scrollDistance"`
	ActiveSeconds  int     `json:"activeSeconds"`
	TabSwitches    int     `json:"tabSwitches"`
}

// Request is the body of POST /daily-analysis
type Request struct {
	ScrollData  ScrollData `json:"scrollData"`
	Reflections []string   `json:"reflections"`
}

type response struct {
	Summary string `json:"summary"`
}

// APIError is a non-200 answer from the service
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("summary API error [%s]", e.Status)
	}
	return fmt.Sprintf("summary API error [%s]: %s", e.Status, e.Message)
}

// Client is an HTTP client for the daily analysis service
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a client. perMinute <= 0 disables rate limiting.
func NewClient(baseURL, apiKey string, timeout time.Duration, perMinute int) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(float64(perMinute) / 60)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// DailyAnalysis asks the service for a summary of the day
func (c *Client) DailyAnalysis(ctx context.Context, req Request) (string, error) {
	if len(req.Reflections) == 0 {
		return "", ErrNoReflections
	}
	var out response
	if err := c.post(ctx, "/daily-analysis", req, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Summary) == "" {
		return "", ErrEmptySummary
	}
	return out.Summary, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseError(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	apiErr := &APIError{StatusCode: resp.StatusCode, Status: resp.Status}
	var parsed struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
		apiErr.Message = parsed.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
