package osmosis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// apiError is a non-2xx REST gateway response.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

// isNotFound reports whether err is a gateway not-found response. LCD
// gateways return 404 for unknown routes but surface missing state as a 500
// with a grpc NotFound message, so both shapes are checked.
func isNotFound(err error) bool {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusNotFound ||
		strings.Contains(strings.ToLower(apiErr.Message), "not found")
}

func (c *Client) doGet(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.chain.RESTEndpoint+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) doPost(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chain.RESTEndpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return checkStatus(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func checkStatus(status int, body []byte) error {
	var gw errorResponse
	if err := json.Unmarshal(body, &gw); err == nil && gw.Message != "" {
		return &apiError{Status: status, Message: gw.Message}
	}
	msg := string(body)
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return &apiError{Status: status, Message: msg}
}

// broadcastTx signs a single-message transaction envelope and broadcasts it
// synchronously, returning the decoded tx response once the node accepts it.
// A non-zero ABCI code is an error even when the HTTP status is 200.
func (c *Client) broadcastTx(ctx context.Context, msgType string, msg any) (*txResponse, error) {
	envelope, err := json.Marshal(map[string]any{
		"chain_id": c.chain.ID,
		"msgs": []map[string]any{
			{"type": msgType, "value": msg},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tx envelope: %w", err)
	}

	sig, err := c.signer.Sign(ctx, envelope)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	body := map[string]any{
		"tx_bytes":  base64.StdEncoding.EncodeToString(envelope),
		"signature": base64.StdEncoding.EncodeToString(sig),
		"mode":      "BROADCAST_MODE_SYNC",
	}

	var resp txResponse
	if err := c.doPost(ctx, "/cosmos/tx/v1beta1/txs", body, &resp); err != nil {
		return nil, fmt.Errorf("broadcast tx: %w", err)
	}
	if resp.TxResponse.Code != 0 {
		return nil, fmt.Errorf("tx %s failed with code %d: %s",
			resp.TxResponse.TxHash, resp.TxResponse.Code, resp.TxResponse.RawLog)
	}
	return &resp, nil
}
