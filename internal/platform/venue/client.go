// Package venue implements the remote swap venue: a REST client for quotes
// and swap execution, and a websocket ticker feed that keeps the price cache
// warm.
package venue

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
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/CryptoChem0000/clrebalancer/internal/domain"
)

const requestTimeout = 15 * time.Second

// Client talks to the venue's REST API. It implements domain.SwapClient.
// When a price cache is configured, GetPrice serves fresh cached ticks
// without touching the REST API.
type Client struct {
	baseURL     string
	chainID     string
	signer      domain.Signer
	cache       domain.PriceCache
	maxPriceAge time.Duration
	http        *http.Client
	logger      *slog.Logger
}

var _ domain.SwapClient = (*Client)(nil)

// NewClient creates a venue client. cache may be nil; maxPriceAge bounds how
// stale a cached price may be before falling back to REST.
func NewClient(baseURL string, chain domain.ChainInfo, signer domain.Signer, cache domain.PriceCache, maxPriceAge time.Duration, logger *slog.Logger) *Client {
	if maxPriceAge <= 0 {
		maxPriceAge = 30 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		chainID:     chain.ID,
		signer:      signer,
		cache:       cache,
		maxPriceAge: maxPriceAge,
		http:        &http.Client{Timeout: requestTimeout},
		logger:      logger.With(slog.String("component", "venue_client")),
	}
}

type priceResponse struct {
	Price string `json:"price"`
}

type poolConfigResponse struct {
	PoolAddress  string `json:"pool_address"`
	MinBaseOut   string `json:"min_base_out"`
	BaseDecimals int    `json:"base_decimals"`
}

type swapRequest struct {
	ChainID   string `json:"chain_id"`
	Sender    string `json:"sender"`
	DenomIn   string `json:"denom_in"`
	DenomOut  string `json:"denom_out"`
	AmountIn  string `json:"amount_in"`
	MinAmount string `json:"min_amount,omitempty"`
	Signature string `json:"signature"`
}

type swapResponse struct {
	TxHash    string `json:"tx_hash"`
	AmountOut string `json:"amount_out"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GetPrice returns the venue's current price of assetIn quoted in assetOut.
func (c *Client) GetPrice(ctx context.Context, assetIn, assetOut domain.Token) (*apd.Decimal, error) {
	pair := pairKey(assetIn.Denom, assetOut.Denom)
	if cached := c.cachedPrice(ctx, pair); cached != nil {
		return cached, nil
	}

	path := fmt.Sprintf("/v1/prices?base=%s&quote=%s",
		url.QueryEscape(assetIn.Denom), url.QueryEscape(assetOut.Denom))
	var resp priceResponse
	if err := c.doGet(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("venue: query price %s: %w", pair, err)
	}
	price, _, err := apd.NewFromString(resp.Price)
	if err != nil {
		return nil, fmt.Errorf("venue: parse price %q: %w", resp.Price, err)
	}

	if c.cache != nil {
		if err := c.cache.SetPrice(ctx, pair, resp.Price, time.Now().UTC()); err != nil {
			c.logger.Warn("price cache write failed", slog.String("pair", pair), slog.Any("error", err))
		}
	}
	return price, nil
}

func (c *Client) cachedPrice(ctx context.Context, pair string) *apd.Decimal {
	if c.cache == nil {
		return nil
	}
	raw, ts, err := c.cache.GetPrice(ctx, pair)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.logger.Warn("price cache read failed", slog.String("pair", pair), slog.Any("error", err))
		}
		return nil
	}
	if time.Since(ts) > c.maxPriceAge {
		return nil
	}
	price, _, err := apd.NewFromString(raw)
	if err != nil {
		return nil
	}
	return price
}

// GetPoolConfigByDenom returns the venue pool trading the given base denom.
func (c *Client) GetPoolConfigByDenom(ctx context.Context, denom string) (domain.VenuePoolConfig, error) {
	path := "/v1/pools/by_denom?denom=" + url.QueryEscape(denom)
	var resp poolConfigResponse
	if err := c.doGet(ctx, path, &resp); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return domain.VenuePoolConfig{}, fmt.Errorf("venue: pool for %s: %w", denom, domain.ErrNotFound)
		}
		return domain.VenuePoolConfig{}, fmt.Errorf("venue: query pool for %s: %w", denom, err)
	}
	return domain.VenuePoolConfig{
		PoolAddress: resp.PoolAddress,
		MinBaseOut: domain.TokenAmountFromString(resp.MinBaseOut, domain.Token{
			ChainID:  c.chainID,
			Denom:    denom,
			Decimals: resp.BaseDecimals,
		}),
	}, nil
}

// Swap executes a swap and returns once it is confirmed on the remote chain.
func (c *Client) Swap(ctx context.Context, params domain.SwapParams) (domain.SwapResult, error) {
	req := swapRequest{
		ChainID:   c.chainID,
		Sender:    c.signer.Address(),
		DenomIn:   params.TokenIn.Denom,
		DenomOut:  params.TokenOut.Denom,
		AmountIn:  params.AmountIn.Amount,
		MinAmount: params.MinAmount.Amount,
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("venue: marshal swap: %w", err)
	}
	sig, err := c.signer.Sign(ctx, payload)
	if err != nil {
		return domain.SwapResult{}, fmt.Errorf("venue: sign swap: %w", err)
	}
	req.Signature = base64.StdEncoding.EncodeToString(sig)

	var resp swapResponse
	if err := c.doPost(ctx, "/v1/swaps", req, &resp); err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Code == "min_output_not_met" {
			return domain.SwapResult{}, fmt.Errorf("venue: swap %s: %w", req.DenomIn, domain.ErrMinimumOutputNotMet)
		}
		return domain.SwapResult{}, fmt.Errorf("venue: swap %s: %w", req.DenomIn, err)
	}

	c.logger.Info("swap executed",
		slog.String("denom_in", req.DenomIn),
		slog.String("denom_out", req.DenomOut),
		slog.String("amount_in", req.AmountIn),
		slog.String("amount_out", resp.AmountOut),
		slog.String("tx_hash", resp.TxHash))
	return domain.SwapResult{
		TxHash:    resp.TxHash,
		ChainID:   c.chainID,
		AmountOut: domain.TokenAmountFromString(resp.AmountOut, params.TokenOut),
	}, nil
}

// apiError is a non-2xx venue API response.
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

func pairKey(base, quote string) string {
	return base + "/" + quote
}
