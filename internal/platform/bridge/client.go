// Package bridge moves token value between the home and remote chains through
// a bridge relayer API. Transfers are submitted once and then polled until
// they settle on the destination chain.
package bridge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/CryptoChem0000/clrebalancer/internal/domain"
	"github.com/CryptoChem0000/clrebalancer/internal/registry"
)

var (
	// ErrNoRoute means the relayer has no route between the two chains for
	// the requested denom.
	ErrNoRoute = errors.New("bridge: no route for transfer")

	// ErrTransferFailed means the relayer reported the transfer as failed.
	// The submitting tx may still have succeeded on the source chain.
	ErrTransferFailed = errors.New("bridge: transfer failed")

	// ErrTransferTimeout means the transfer did not settle within the
	// configured timeout. The transfer may still land later; the next cycle's
	// stray-balance sweep picks the funds up wherever they end up.
	ErrTransferTimeout = errors.New("bridge: transfer timed out")
)

const (
	defaultTimeout      = 10 * time.Minute
	defaultPollInterval = 5 * time.Second
	requestTimeout      = 15 * time.Second
)

// Client implements domain.BridgeClient against a relayer REST API.
type Client struct {
	baseURL      string
	signer       domain.Signer
	addresses    map[string]string
	registry     *registry.Registry
	timeout      time.Duration
	pollInterval time.Duration
	http         *http.Client
	logger       *slog.Logger
}

var _ domain.BridgeClient = (*Client)(nil)

// NewClient creates a bridge client. addresses maps chain ids to the wallet's
// bech32 address on that chain (prefixes differ per chain); timeout bounds
// the whole submit-and-settle round trip; pollInterval spaces the status
// polls.
func NewClient(endpoint string, signer domain.Signer, addresses map[string]string, reg *registry.Registry, timeout, pollInterval time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Client{
		baseURL:      strings.TrimRight(endpoint, "/"),
		signer:       signer,
		addresses:    addresses,
		registry:     reg,
		timeout:      timeout,
		pollInterval: pollInterval,
		http:         &http.Client{Timeout: requestTimeout},
		logger:       logger.With(slog.String("component", "bridge_client")),
	}
}

type transferRequest struct {
	FromChainID string `json:"from_chain_id"`
	ToChainID   string `json:"to_chain_id"`
	Denom       string `json:"denom"`
	DestDenom   string `json:"dest_denom"`
	Amount      string `json:"amount"`
	Sender      string `json:"sender"`
	Receiver    string `json:"receiver"`
	Signature   string `json:"signature"`
}

type transferResponse struct {
	TransferID string `json:"transfer_id"`
	TxHash     string `json:"tx_hash"`
}

type transferStatusResponse struct {
	Status    string `json:"status"`
	AmountOut string `json:"amount_out"`
	Reason    string `json:"reason"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BridgeToken submits a transfer and blocks until it settles on the
// destination chain, fails, or the timeout elapses. Broadcast is the commit
// point: once submission succeeds the transfer is never resubmitted.
func (c *Client) BridgeToken(ctx context.Context, params domain.BridgeParams) (domain.BridgeResult, error) {
	dest, err := c.registry.Counterpart(params.FromToken, params.ToChainID)
	if err != nil {
		return domain.BridgeResult{}, fmt.Errorf("bridge: resolve destination token: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	sub, err := c.submit(ctx, params, dest)
	if err != nil {
		return domain.BridgeResult{}, err
	}
	c.logger.Info("bridge transfer submitted",
		slog.String("transfer_id", sub.TransferID),
		slog.String("tx_hash", sub.TxHash),
		slog.String("denom", params.FromToken.Denom),
		slog.String("amount", params.Amount.Amount),
		slog.String("to_chain_id", params.ToChainID))

	status, err := c.awaitSettlement(ctx, sub.TransferID)
	if err != nil {
		return domain.BridgeResult{}, err
	}

	c.logger.Info("bridge transfer settled",
		slog.String("transfer_id", sub.TransferID),
		slog.String("amount_out", status.AmountOut))
	return domain.BridgeResult{
		TxHash:             sub.TxHash,
		ChainID:            params.FromToken.ChainID,
		DestinationToken:   dest,
		DestinationAddress: c.addressOn(params.ToChainID),
		AmountOut:          domain.TokenAmountFromString(status.AmountOut, dest),
	}, nil
}

// addressOn resolves the wallet address on the given chain, falling back to
// the signer's own rendering when the chain is not in the map.
func (c *Client) addressOn(chainID string) string {
	if a, ok := c.addresses[chainID]; ok {
		return a
	}
	return c.signer.Address()
}

func (c *Client) submit(ctx context.Context, params domain.BridgeParams, dest domain.Token) (transferResponse, error) {
	req := transferRequest{
		FromChainID: params.FromToken.ChainID,
		ToChainID:   params.ToChainID,
		Denom:       params.FromToken.Denom,
		DestDenom:   dest.Denom,
		Amount:      params.Amount.Amount,
		Sender:      c.addressOn(params.FromToken.ChainID),
		Receiver:    c.addressOn(params.ToChainID),
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return transferResponse{}, fmt.Errorf("bridge: marshal transfer: %w", err)
	}
	sig, err := c.signer.Sign(ctx, payload)
	if err != nil {
		return transferResponse{}, fmt.Errorf("bridge: sign transfer: %w", err)
	}
	req.Signature = base64.StdEncoding.EncodeToString(sig)

	var resp transferResponse
	if err := c.doPost(ctx, "/v1/transfers", req, &resp); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Code == "no_route" {
			return transferResponse{}, fmt.Errorf("%w: %s from %s to %s",
				ErrNoRoute, params.FromToken.Denom, params.FromToken.ChainID, params.ToChainID)
		}
		return transferResponse{}, fmt.Errorf("bridge: submit transfer: %w", err)
	}
	return resp, nil
}

func (c *Client) awaitSettlement(ctx context.Context, transferID string) (transferStatusResponse, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var status transferStatusResponse
		if err := c.doGet(ctx, "/v1/transfers/"+transferID, &status); err != nil {
			// Transient poll failures are retried until the deadline; the
			// transfer keeps progressing on its own.
			c.logger.Warn("transfer status poll failed",
				slog.String("transfer_id", transferID),
				slog.Any("error", err))
		} else {
			switch status.Status {
			case "completed":
				return status, nil
			case "failed":
				return transferStatusResponse{}, fmt.Errorf("%w: transfer %s: %s",
					ErrTransferFailed, transferID, status.Reason)
			}
		}

		select {
		case <-ctx.Done():
			return transferStatusResponse{}, fmt.Errorf("%w: transfer %s: %v",
				ErrTransferTimeout, transferID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// apiError is a non-2xx relayer response.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

func (c *Client) doGet(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
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
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
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
		var gw errorResponse
		if err := json.Unmarshal(body, &gw); err == nil && gw.Message != "" {
			return &apiError{Status: resp.StatusCode, Code: gw.Code, Message: gw.Message}
		}
		msg := string(body)
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return &apiError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
