package abusegate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"covercheck/pkg/sentinel"
)

const defaultClientTimeout = 2 * time.Second

// HTTPEvaluator calls an external bot-score provider over HTTP. Timeouts,
// connection errors, and 5xx responses all read as sentinel.ErrUnavailable so
// the gate applies its fallback policy rather than failing the submission.
type HTTPEvaluator struct {
	url    string
	secret string
	client *http.Client
}

// NewHTTPEvaluator constructs a provider client. Returns nil when url is
// empty (gate not configured).
func NewHTTPEvaluator(url, secret string) *HTTPEvaluator {
	if url == "" {
		return nil
	}
	return &HTTPEvaluator{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: defaultClientTimeout},
	}
}

type verifyRequest struct {
	Secret string `json:"secret"`
	Token  string `json:"token"`
}

type verifyResponse struct {
	Score float64 `json:"score"`
}

// Evaluate posts the token to the provider and returns its score.
func (e *HTTPEvaluator) Evaluate(ctx context.Context, token string) (float64, error) {
	body, err := json.Marshal(verifyRequest{Secret: e.secret, Token: token})
	if err != nil {
		return 0, fmt.Errorf("encode verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("abuse gate provider: %w", sentinel.ErrUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return 0, fmt.Errorf("abuse gate provider status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("abuse gate provider status %d", resp.StatusCode)
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode verify response: %w", err)
	}
	if out.Score < 0 || out.Score > 1 {
		return 0, fmt.Errorf("abuse gate provider score %f out of range", out.Score)
	}
	return out.Score, nil
}

// StaticEvaluator returns a fixed score; used in development and tests.
type StaticEvaluator struct {
	Score float64
	Err   error
}

func (e StaticEvaluator) Evaluate(_ context.Context, _ string) (float64, error) {
	if e.Err != nil {
		return 0, e.Err
	}
	return e.Score, nil
}
