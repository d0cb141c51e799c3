package astrologer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/biter777/countries"

	"mira-agent/internal/domain"
)

const (
	rapidAPIHost   = "astrologer.p.rapidapi.com"
	defaultBaseURL = "https://" + rapidAPIHost
	birthChartPath = "/api/v4/birth-chart"

	// Per-attempt timeout, kept short to fit synchronous request budgets.
	requestTimeout = 4 * time.Second
)

// APIError is the classified failure surfaced by the client: a message,
// the upstream HTTP status when one was received, the attempt count for
// exhausted retries, and the original cause description.
type APIError struct {
	Message    string
	StatusCode int
	RetryCount int
	Cause      string
}

func (e *APIError) Error() string {
	parts := []string{e.Message}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("Status: %d", e.StatusCode))
	}
	if e.RetryCount != 0 {
		parts = append(parts, fmt.Sprintf("Retries: %d", e.RetryCount))
	}
	if e.Cause != "" {
		parts = append(parts, fmt.Sprintf("Original: %s", e.Cause))
	}
	return strings.Join(parts, " | ")
}

func (e *APIError) HTTPStatusCode() int {
	return e.StatusCode
}

// Getter resolves the secret payload holding the upstream API key.
type Getter interface {
	GetSecret(ctx context.Context, name string) (map[string]string, error)
}

// chartRequest is the upstream birth-chart request shape.
type chartRequest struct {
	Subject chartSubject `json:"subject"`
	Theme   string       `json:"theme"`
}

type chartSubject struct {
	Year             int    `json:"year"`
	Month            int    `json:"month"`
	Day              int    `json:"day"`
	Hour             int    `json:"hour"`
	Minute           int    `json:"minute"`
	City             string `json:"city"`
	Nation           string `json:"nation"`
	Name             string `json:"name"`
	ZodiacType       string `json:"zodiac_type"`
	GeonamesUsername string `json:"geonames_username,omitempty"`
}

// chartResponse is the minimal upstream response shape: the rendered SVG
// plus the structured chart payload.
type chartResponse struct {
	Chart   string                      `json:"chart"`
	Data    map[string]domain.ChartBody `json:"data"`
	Aspects []domain.ChartAspect        `json:"aspects"`
}

// Client calls the external astrology computation service with bounded
// retry and per-attempt timeouts.
type Client struct {
	secrets          Getter
	secretName       string
	geonamesUsername string
	baseURL          string
	httpClient       *http.Client
	sleep            func(time.Duration)
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithSleep overrides the backoff sleep, for tests.
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// New creates a Client. The API key is resolved through the injected secret
// getter on every request and cached by the resolver itself.
func New(secrets Getter, secretName, geonamesUsername string, opts ...Option) (*Client, error) {
	if secrets == nil {
		return nil, errors.New("astrologer: secret getter must not be nil")
	}
	if strings.TrimSpace(secretName) == "" {
		return nil, errors.New("astrologer: secret name must not be empty")
	}
	c := &Client{
		secrets:          secrets,
		secretName:       secretName,
		geonamesUsername: geonamesUsername,
		baseURL:          defaultBaseURL,
		httpClient:       &http.Client{Timeout: requestTimeout},
		sleep:            time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GenerateChart translates the profile into the upstream request shape and
// returns the generated chart. Transport-level failures are retried on the
// fixed backoff schedule; upstream non-2xx responses and unresolvable
// profile data surface immediately.
func (c *Client) GenerateChart(ctx context.Context, profile domain.UserProfile) (domain.ChartArtifact, error) {
	payload, err := buildPayload(profile, c.geonamesUsername)
	if err != nil {
		return domain.ChartArtifact{}, &APIError{Message: "invalid profile data", Cause: err.Error()}
	}

	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return domain.ChartArtifact{}, err
	}

	var lastErr error
	state := stateAttempting
	for attempt := 0; ; {
		switch state {
		case stateAttempting:
			resp, err := c.post(ctx, apiKey, payload)
			if err == nil {
				state = stateSucceeded
				return domain.ChartArtifact{
					Data: domain.ChartData{Data: resp.Data, Aspects: resp.Aspects},
					SVG:  resp.Chart,
				}, nil
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				// Upstream hard error, no retry.
				return domain.ChartArtifact{}, apiErr
			}
			lastErr = err
			if attempt == maxAttempts-1 {
				state = stateExhaustedFailed
			} else {
				state = stateBackingOff
			}
		case stateBackingOff:
			c.sleep(nextDelay(attempt))
			attempt++
			state = stateAttempting
		case stateExhaustedFailed:
			return domain.ChartArtifact{}, &APIError{
				Message:    "API request failed after retries",
				RetryCount: maxAttempts,
				Cause:      lastErr.Error(),
			}
		}
	}
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	secret, err := c.secrets.GetSecret(ctx, c.secretName)
	if err != nil {
		return "", &APIError{Message: "failed to retrieve API key", Cause: err.Error()}
	}
	apiKey := secret["api_key"]
	if apiKey == "" {
		return "", &APIError{Message: "API key not found in secret"}
	}
	return apiKey, nil
}

func (c *Client) post(ctx context.Context, apiKey string, payload chartRequest) (chartResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return chartResponse{}, fmt.Errorf("astrologer: marshal request: %w", err)
	}

	url := strings.TrimRight(c.baseURL, "/") + birthChartPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return chartResponse{}, fmt.Errorf("astrologer: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-RapidAPI-Host", rapidAPIHost)
	req.Header.Set("X-RapidAPI-Key", apiKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return chartResponse{}, fmt.Errorf("astrologer: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return chartResponse{}, &APIError{
			Message:    "astrologer API error",
			StatusCode: res.StatusCode,
			Cause:      string(buf),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return chartResponse{}, fmt.Errorf("astrologer: read response body: %w", err)
	}
	var parsed chartResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return chartResponse{}, &APIError{Message: "malformed astrologer response", Cause: err.Error()}
	}
	return parsed, nil
}

// buildPayload translates natal profile fields into the upstream shape:
// "YYYY-MM-DD" and "HH:MM" decomposed into integers, the location reduced
// to its text before the first comma, and the country name resolved to its
// two-letter code.
func buildPayload(profile domain.UserProfile, geonamesUsername string) (chartRequest, error) {
	year, month, day, err := splitDate(profile.BirthDate)
	if err != nil {
		return chartRequest{}, err
	}
	hour, minute, err := splitTime(profile.BirthTime)
	if err != nil {
		return chartRequest{}, err
	}
	nation, err := countryCode(profile.BirthCountry)
	if err != nil {
		return chartRequest{}, err
	}

	city := strings.TrimSpace(strings.SplitN(profile.BirthLocation, ",", 2)[0])
	if city == "" {
		return chartRequest{}, fmt.Errorf("empty birth location")
	}

	return chartRequest{
		Subject: chartSubject{
			Year:             year,
			Month:            month,
			Day:              day,
			Hour:             hour,
			Minute:           minute,
			City:             city,
			Nation:           nation,
			Name:             profile.FullName(),
			ZodiacType:       "Tropic",
			GeonamesUsername: geonamesUsername,
		},
		Theme: "dark",
	}, nil
}

func splitDate(birthDate string) (year, month, day int, err error) {
	parts := strings.Split(birthDate, "-")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("malformed birth date %q", birthDate)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		nums[i], err = strconv.Atoi(p)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("malformed birth date %q", birthDate)
		}
	}
	return nums[0], nums[1], nums[2], nil
}

func splitTime(birthTime string) (hour, minute int, err error) {
	parts := strings.Split(birthTime, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed birth time %q", birthTime)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed birth time %q", birthTime)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("malformed birth time %q", birthTime)
	}
	return hour, minute, nil
}

// countryCode resolves a country name to its ISO 3166-1 alpha-2 code by
// fuzzy name matching. An unresolvable name is a non-retryable input error.
func countryCode(name string) (string, error) {
	country := countries.ByName(strings.TrimSpace(name))
	if country == countries.Unknown {
		return "", fmt.Errorf("unknown country: %q", name)
	}
	return country.Alpha2(), nil
}
