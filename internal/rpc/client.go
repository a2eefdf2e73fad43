package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/USA-RedDragon/divi-gateway/internal/config"
	"github.com/USA-RedDragon/divi-gateway/internal/metrics"
)

// Client is a thin JSON-RPC wrapper over the daemon's HTTP interface.
// It never retries: every call maps to exactly one Outcome.
type Client struct {
	endpoint   string
	username   string
	password   string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

func NewClient(config config.RPC, metrics *metrics.Metrics) *Client {
	return &Client{
		endpoint: fmt.Sprintf("http://%s:%d", config.Host, config.Port),
		username: config.Username,
		password: config.Password,
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
		metrics: metrics,
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcErrorResponse struct {
	Error *rpcError `json:"error"`
}

// Call posts one JSON-RPC request to the daemon and classifies the answer.
func (c *Client) Call(ctx context.Context, method string, params []any) Outcome {
	start := time.Now()
	outcome, err := c.call(ctx, method, params)
	if c.metrics != nil {
		c.metrics.ObserveUpstreamCall(method, outcome.Kind.String(), time.Since(start))
	}
	if outcome.Kind == KindSuccess {
		slog.Debug("upstream call", "method", method, "params", params, "outcome", outcome.Kind)
	} else {
		slog.Error("upstream call failed", "method", method, "params", params, "outcome", outcome.Kind, "error", err)
	}
	return outcome
}

func (c *Client) call(ctx context.Context, method string, params []any) (Outcome, error) {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return Outcome{Kind: KindUnknown}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{Kind: KindUnknown}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return Outcome{Kind: KindTimeout}, err
		}
		return Outcome{Kind: KindUnavailable}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return Outcome{Kind: KindTimeout}, err
		}
		return Outcome{Kind: KindUnavailable}, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		// The daemon answers RPC-level failures as HTTP errors carrying a
		// JSON-RPC error body. Anything else is an HTTP-level problem.
		var errResp rpcErrorResponse
		if err := json.Unmarshal(payload, &errResp); err == nil && errResp.Error != nil {
			return Outcome{Kind: KindUpstreamError, UpstreamMessage: errResp.Error.Message},
				fmt.Errorf("upstream error %d: %s", errResp.Error.Code, errResp.Error.Message)
		}
		return Outcome{Kind: KindProtocolError}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if !json.Valid(payload) {
		return Outcome{Kind: KindUnknown}, errors.New("upstream answered with invalid JSON")
	}

	return Outcome{Kind: KindSuccess, Payload: payload}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}
