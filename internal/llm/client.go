// Package llm talks to the Gemini generative language REST API.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"green-assessment-service/internal/domain"
)

const (
	defaultTimeout = 60 * time.Second
	maxErrorBody   = 4 << 10
)

// Config configures a Client.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	Timeout           time.Duration
	RequestsPerMinute int
	HTTPClient        *http.Client
}

// APIError is returned when the service answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("generation service error (status %d): %s", e.StatusCode, e.Body)
}

// GenerationConfig tunes sampling. Zero fields are omitted from the request.
type GenerationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	TopP             float64 `json:"topP,omitempty"`
	TopK             int     `json:"topK,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

// NarrativeConfig is used for free-text recommendations.
var NarrativeConfig = GenerationConfig{Temperature: 0.75, TopP: 0.95, TopK: 40}

// JSONConfig asks the model for a JSON document.
var JSONConfig = GenerationConfig{ResponseMimeType: "application/json"}

// Part is a piece of message content.
type Part struct {
	Text string `json:"text"`
}

// Content is one conversation turn. Role is "user" or "model".
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// UserText builds a single-part user turn.
func UserText(text string) Content {
	return Content{Role: "user", Parts: []Part{{Text: text}}}
}

// ModelText builds a single-part model turn.
func ModelText(text string) Content {
	return Content{Role: "model", Parts: []Part{{Text: text}}}
}

// Request is a single generation call.
type Request struct {
	SystemInstruction string
	Contents          []Content
	Config            GenerationConfig
}

type wireRequest struct {
	SystemInstruction *Content         `json:"systemInstruction,omitempty"`
	Contents          []Content        `json:"contents"`
	GenerationConfig  GenerationConfig `json:"generationConfig"`
}

type wireResponse struct {
	Candidates []struct {
		Content struct {
			Parts []Part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (r wireResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}

// Client is safe for concurrent use.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}
	return &Client{cfg: cfg, http: httpClient, limiter: limiter}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.cfg.APIKey != ""
}

// Generate performs a blocking generateContent call and returns the text.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.do(ctx, "generateContent", nil, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	var parsed wireResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	text := parsed.text()
	if strings.TrimSpace(text) == "" {
		return "", domain.ErrEmptyResponse
	}
	return text, nil
}

// Stream performs a streamGenerateContent call and emits text chunks as
// they arrive. Both channels are closed when the stream ends; at most one
// error is delivered.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan string, <-chan error) {
	out := make(chan string)
	errChan := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errChan)

		ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		resp, err := c.do(ctx, "streamGenerateContent", url.Values{"alt": {"sse"}}, req)
		if err != nil {
			errChan <- err
			return
		}
		defer resp.Body.Close()

		received := false
		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				errChan <- fmt.Errorf("read stream: %w", err)
				return
			}

			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "data:") {
				data := strings.TrimSpace(strings.TrimPrefix(trimmed, "data:"))
				var chunk wireResponse
				if jsonErr := json.Unmarshal([]byte(data), &chunk); jsonErr == nil {
					if text := chunk.text(); text != "" {
						received = true
						select {
						case out <- text:
						case <-ctx.Done():
							errChan <- ctx.Err()
							return
						}
					}
				}
			}

			if errors.Is(err, io.EOF) {
				break
			}
		}
		if !received {
			errChan <- domain.ErrEmptyResponse
		}
	}()

	return out, errChan
}

func (c *Client) do(ctx context.Context, method string, query url.Values, req Request) (*http.Response, error) {
	if !c.Enabled() {
		return nil, domain.ErrAPIKeyMissing
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	wire := wireRequest{Contents: req.Contents, GenerationConfig: req.Config}
	if req.SystemInstruction != "" {
		wire.SystemInstruction = &Content{Parts: []Part{{Text: req.SystemInstruction}}}
	}
	jsonBody, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("key", c.cfg.APIKey)
	endpoint := fmt.Sprintf("%s/%s:%s?%s", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model, method, query.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call generation service: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return resp, nil
}
