// Package evaluator adapts the security gate's Evaluator interface to an
// external LLM-backed judge reached over a loopback HTTP endpoint (§4.6).
// The shape is grounded on the teacher's internal/mcp HTTPTransport: a
// small JSON-over-HTTP client with context-bound requests and no
// connection pooling surprises.
package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/marveldaemon/mhd/internal/logging"
	"github.com/marveldaemon/mhd/internal/security"
	"github.com/marveldaemon/mhd/internal/wire"
)

// Timeout bounds a single evaluator round trip; the gate's own caller
// enforces the hook-level 35s budget (§4.1), this is the inner budget that
// leaves room for a retry within it.
const Timeout = 20 * time.Second

// Client talks to a locally-hosted evaluator endpoint over HTTP.
type Client struct {
	url        string
	httpClient *http.Client
}

// New builds a Client pointed at a loopback evaluator endpoint, e.g.
// http://127.0.0.1:8765/evaluate.
func New(url string) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Timeout: Timeout},
	}
}

type evalRequest struct {
	SessionID   string `json:"session_id"`
	Root        string `json:"root"`
	Command     string `json:"command"`
	Description string `json:"description"`
}

type evalResponse struct {
	Decision      wire.PermissionDecision `json:"decision"`
	Reason        string                  `json:"reason"`
	RequiresHuman bool                    `json:"requires_human"`
	SuggestedRule *wire.Rule              `json:"suggested_rule,omitempty"`
}

// Evaluate implements security.Evaluator. A single retry with exponential
// backoff covers transient loopback-connection failures (the evaluator
// process may be mid-restart); anything else is surfaced so the gate can
// fail safe to "ask" (§4.6 "evaluator unreachable falls back to ask, never
// to allow").
func (c *Client) Evaluate(ctx context.Context, root, command, description string) (security.EvalResult, error) {
	reqBody := evalRequest{
		SessionID:   uuid.NewString(),
		Root:        root,
		Command:     command,
		Description: description,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return security.EvalResult{}, fmt.Errorf("marshal evaluator request: %w", err)
	}

	var resp evalResponse
	op := func() error {
		r, err := c.post(ctx, body)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return security.EvalResult{}, fmt.Errorf("evaluator request failed: %w", err)
	}

	logging.Debug().Str("command", command).Str("decision", string(resp.Decision)).Msg("evaluator responded")

	return security.EvalResult{
		Decision:      resp.Decision,
		Reason:        resp.Reason,
		RequiresHuman: resp.RequiresHuman,
		SuggestedRule: resp.SuggestedRule,
	}, nil
}

func (c *Client) post(ctx context.Context, body []byte) (evalResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return evalResponse{}, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return evalResponse{}, err // retryable: network error
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return evalResponse{}, fmt.Errorf("evaluator returned %d: %s", resp.StatusCode, string(data))
	}

	var out evalResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return evalResponse{}, backoff.Permanent(fmt.Errorf("decode evaluator response: %w", err))
	}
	return out, nil
}
