// Package ingest streams transactions through the scoring service into the
// result store, one at a time and without retries.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hed1ad/aegis/pkg/server"
	"github.com/hed1ad/aegis/pkg/txn"
)

var (
	// ErrTransport covers connection failures and timeouts.
	ErrTransport = errors.New("scoring transport error")
	// ErrResponse covers non-2xx statuses and undecodable bodies.
	ErrResponse = errors.New("scoring response error")
)

// Client calls the scoring endpoint.
type Client struct {
	url  string
	http *http.Client
}

// NewClient returns a client that abandons any request still running after timeout.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{url: url, http: &http.Client{Timeout: timeout}}
}

// Score sends t for scoring.
func (c *Client) Score(ctx context.Context, t txn.Transaction) (server.PredictResponse, error) {
	body, err := json.Marshal(t)
	if err != nil {
		return server.PredictResponse{}, fmt.Errorf("encode %s: %w", t.ID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return server.PredictResponse{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return server.PredictResponse{}, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return server.PredictResponse{}, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e server.ErrorResponse
		msg := string(bytes.TrimSpace(data))
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return server.PredictResponse{}, fmt.Errorf("%w: status %d: %s", ErrResponse, resp.StatusCode, msg)
	}

	var out struct {
		TxnID   *string  `json:"txn_id"`
		IFScore *float64 `json:"if_score"`
		AEMSE   *float64 `json:"ae_mse"`
		Label   *int     `json:"label"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return server.PredictResponse{}, fmt.Errorf("%w: decode: %w", ErrResponse, err)
	}
	if out.TxnID == nil || out.IFScore == nil || out.AEMSE == nil || out.Label == nil {
		return server.PredictResponse{}, fmt.Errorf("%w: incomplete body %s", ErrResponse, bytes.TrimSpace(data))
	}
	if *out.TxnID != t.ID {
		return server.PredictResponse{}, fmt.Errorf("%w: response for %q, sent %q", ErrResponse, *out.TxnID, t.ID)
	}
	if *out.Label != 0 && *out.Label != 1 {
		return server.PredictResponse{}, fmt.Errorf("%w: label %d", ErrResponse, *out.Label)
	}

	return server.PredictResponse{
		TxnID:   *out.TxnID,
		IFScore: *out.IFScore,
		AEMSE:   *out.AEMSE,
		Label:   *out.Label,
	}, nil
}
