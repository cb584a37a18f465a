package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"travel-inquiry-agent/config"
	"travel-inquiry-agent/internal/model"
)

const extractionPrompt = `You are a travel agency assistant. Extract the travel inquiry from the conversation below.
Respond with a single JSON object and nothing else, using these fields:
  origin (string), destination (string, required), departure_date (YYYY-MM-DD, required),
  return_date (YYYY-MM-DD or null), passengers (integer, required), budget (number or null),
  budget_currency (string), notes (string).
Leave unknown optional fields null. Do not guess required fields that are absent.`

// Extractor turns the accumulated text of a conversation thread into a
// structured travel inquiry.
type Extractor interface {
	Extract(ctx context.Context, threadKey string, messages []model.ThreadMessage) (*model.TravelInquiry, error)
}

// Client calls an OpenAI-compatible chat completions backend. All callers
// share one rate limiter so batch workers collectively stay under the
// backend's per-minute quota.
type Client struct {
	endpoint   string
	apiKey     string
	model      string
	maxRetries int
	maxContext int
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates an extraction client from configuration.
func NewClient(cfg config.ExtractionConfig) *Client {
	return &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		maxContext: cfg.MaxContextChars,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		limiter:    rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMinute)/60.0), cfg.RateLimitPerMinute),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// payload is the structured answer expected from the backend.
type payload struct {
	Origin         string   `json:"origin"`
	Destination    string   `json:"destination"`
	DepartureDate  string   `json:"departure_date"`
	ReturnDate     *string  `json:"return_date"`
	Passengers     *int     `json:"passengers"`
	Budget         *float64 `json:"budget"`
	BudgetCurrency string   `json:"budget_currency"`
	Notes          string   `json:"notes"`
}

// Extract sends the thread context to the backend and validates the reply.
// Transient backend errors are retried with exponential backoff up to the
// configured budget; a schema-invalid reply is retried exactly once before
// the call fails terminally with KindInvalidSchema.
func (c *Client) Extract(ctx context.Context, threadKey string, messages []model.ThreadMessage) (*model.TravelInquiry, error) {
	threadContext := buildContext(messages, c.maxContext)

	schemaRetried := false
	attempt := 0
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &Failure{Kind: KindBackendUnavailable, Err: err}
		}

		content, err := c.call(ctx, threadContext)
		if err == nil {
			inquiry, verr := c.parseAndValidate(content, threadKey, messages)
			if verr == nil {
				return inquiry, nil
			}
			if schemaRetried {
				return nil, &Failure{Kind: KindInvalidSchema, Err: verr}
			}
			schemaRetried = true
			logrus.Warnf("Extraction payload failed validation for thread %s, retrying once: %v", shortKey(threadKey), verr)
			continue
		}

		if attempt >= c.maxRetries {
			return nil, &Failure{Kind: KindBackendUnavailable, Err: err}
		}
		attempt++
		backoff := time.Duration(1<<uint(attempt-1)) * time.Second
		logrus.Warnf("Extraction backend error for thread %s (attempt %d/%d), backing off %s: %v",
			shortKey(threadKey), attempt, c.maxRetries, backoff, err)
		select {
		case <-ctx.Done():
			return nil, &Failure{Kind: KindBackendUnavailable, Err: ctx.Err()}
		case <-time.After(backoff):
		}
	}
}

// call performs one chat completion request and returns the assistant text.
func (c *Client) call(ctx context.Context, threadContext string) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: extractionPrompt},
			{Role: "user", Content: threadContext},
		},
		Temperature: 0,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("backend returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("backend returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// parseAndValidate decodes the assistant payload and enforces the schema:
// destination and departure date are required, dates must parse, the
// passenger count must be present and non-negative. Missing optional
// fields lower the confidence flag instead of failing the call.
func (c *Client) parseAndValidate(content, threadKey string, messages []model.ThreadMessage) (*model.TravelInquiry, error) {
	var p payload
	if err := json.Unmarshal([]byte(stripFences(content)), &p); err != nil {
		return nil, fmt.Errorf("payload is not valid JSON: %w", err)
	}

	if strings.TrimSpace(p.Destination) == "" {
		return nil, fmt.Errorf("payload missing required field destination")
	}
	departure, err := time.Parse("2006-01-02", p.DepartureDate)
	if err != nil {
		return nil, fmt.Errorf("payload has unparseable departure_date %q", p.DepartureDate)
	}
	if p.Passengers == nil {
		return nil, fmt.Errorf("payload missing required field passengers")
	}
	if *p.Passengers < 0 {
		return nil, fmt.Errorf("payload has negative passenger count %d", *p.Passengers)
	}

	inquiry := &model.TravelInquiry{
		ThreadKey:     threadKey,
		Origin:        strings.TrimSpace(p.Origin),
		Destination:   strings.TrimSpace(p.Destination),
		DepartureDate: departure,
		Passengers:    *p.Passengers,
		Notes:         strings.TrimSpace(p.Notes),
		Confidence:    model.ConfidenceHigh,
	}

	if p.ReturnDate != nil && *p.ReturnDate != "" {
		ret, err := time.Parse("2006-01-02", *p.ReturnDate)
		if err != nil {
			return nil, fmt.Errorf("payload has unparseable return_date %q", *p.ReturnDate)
		}
		inquiry.ReturnDate = &ret
	}
	if p.Budget != nil {
		inquiry.Budget = *p.Budget
		inquiry.BudgetCurrency = strings.ToUpper(strings.TrimSpace(p.BudgetCurrency))
	}

	if inquiry.Origin == "" || inquiry.ReturnDate == nil || p.Budget == nil {
		inquiry.Confidence = model.ConfidenceLow
	}

	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.MessageID)
	}
	inquiry.SourceMessageIDs = strings.Join(ids, ",")

	return inquiry, nil
}

// buildContext flattens the thread into prompt text, dropping the oldest
// messages first when the context budget is exceeded.
func buildContext(messages []model.ThreadMessage, maxChars int) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, fmt.Sprintf("From: %s\nDate: %s\n%s", m.Sender, m.ReceivedAt.Format(time.RFC3339), m.Body))
	}

	joined := strings.Join(parts, "\n---\n")
	for len(joined) > maxChars && len(parts) > 1 {
		parts = parts[1:]
		joined = strings.Join(parts, "\n---\n")
	}
	if len(joined) > maxChars {
		joined = joined[len(joined)-maxChars:]
	}
	return joined
}

// stripFences removes a markdown code fence around the payload, which some
// models add despite instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
