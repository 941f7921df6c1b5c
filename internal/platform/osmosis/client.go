// Package osmosis implements the home-chain account and concentrated-liquidity
// pool client against a Cosmos REST (LCD) gateway.
package osmosis

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/CryptoChem0000/clrebalancer/internal/domain"
	"github.com/CryptoChem0000/clrebalancer/internal/registry"
)

const (
	requestTimeout = 15 * time.Second

	msgCreatePosition   = "/osmosis.concentratedliquidity.v1beta1.MsgCreatePosition"
	msgWithdrawPosition = "/osmosis.concentratedliquidity.v1beta1.MsgWithdrawPosition"
)

// Client talks to one chain's REST gateway. It implements both
// domain.ChainAccount and domain.PoolClient; all writes sign with the single
// wallet account, so callers must serialize mutating calls.
type Client struct {
	chain    domain.ChainInfo
	signer   domain.Signer
	registry *registry.Registry
	http     *http.Client
	logger   *slog.Logger
}

var (
	_ domain.ChainAccount = (*Client)(nil)
	_ domain.PoolClient   = (*Client)(nil)
)

// NewClient creates a Client for the given chain.
func NewClient(chain domain.ChainInfo, signer domain.Signer, reg *registry.Registry, logger *slog.Logger) *Client {
	return &Client{
		chain:    chain,
		signer:   signer,
		registry: reg,
		http:     &http.Client{Timeout: requestTimeout},
		logger:   logger.With(slog.String("component", "osmosis_client"), slog.String("chain_id", chain.ID)),
	}
}

// ChainID returns the chain this client is bound to.
func (c *Client) ChainID() string {
	return c.chain.ID
}

// GetAvailableBalances returns the wallet's spendable balances keyed by denom.
func (c *Client) GetAvailableBalances(ctx context.Context) (map[string]domain.TokenAmount, error) {
	path := fmt.Sprintf("/cosmos/bank/v1beta1/spendable_balances/%s?pagination.limit=500", c.signer.Address())
	var resp balancesResponse
	if err := c.doGet(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("osmosis: query balances: %w", err)
	}

	out := make(map[string]domain.TokenAmount, len(resp.Balances))
	for _, b := range resp.Balances {
		out[b.Denom] = domain.TokenAmountFromString(b.Amount, c.resolveToken(b.Denom))
	}
	return out, nil
}

// GetTokenAvailableBalance returns the wallet's spendable balance of one denom.
func (c *Client) GetTokenAvailableBalance(ctx context.Context, denom string) (domain.TokenAmount, error) {
	path := fmt.Sprintf("/cosmos/bank/v1beta1/spendable_balances/%s/by_denom?denom=%s",
		c.signer.Address(), url.QueryEscape(denom))
	var resp balanceResponse
	if err := c.doGet(ctx, path, &resp); err != nil {
		return domain.TokenAmount{}, fmt.Errorf("osmosis: query balance %s: %w", denom, err)
	}
	return domain.TokenAmountFromString(resp.Balance.Amount, c.resolveToken(denom)), nil
}

// GetPoolInfo reads pool parameters and the current spot price.
func (c *Client) GetPoolInfo(ctx context.Context, poolID uint64) (domain.Pool, error) {
	var resp poolResponse
	path := fmt.Sprintf("/osmosis/concentratedliquidity/v1beta1/pools/%d", poolID)
	if err := c.doGet(ctx, path, &resp); err != nil {
		return domain.Pool{}, fmt.Errorf("osmosis: query pool %d: %w", poolID, err)
	}

	token0, err := c.registry.Get(c.chain.ID, resp.Pool.Token0)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("osmosis: pool %d token0: %w", poolID, err)
	}
	token1, err := c.registry.Get(c.chain.ID, resp.Pool.Token1)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("osmosis: pool %d token1: %w", poolID, err)
	}
	spacing, err := strconv.ParseInt(resp.Pool.TickSpacing, 10, 64)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("osmosis: pool %d tick spacing %q: %w", poolID, resp.Pool.TickSpacing, err)
	}
	tick, err := strconv.ParseInt(resp.Pool.CurrentTick, 10, 64)
	if err != nil {
		return domain.Pool{}, fmt.Errorf("osmosis: pool %d current tick %q: %w", poolID, resp.Pool.CurrentTick, err)
	}

	price, err := c.spotPrice(ctx, poolID, token0.Denom, token1.Denom)
	if err != nil {
		return domain.Pool{}, err
	}

	return domain.Pool{
		ID:           poolID,
		Token0:       token0,
		Token1:       token1,
		TickSpacing:  spacing,
		CurrentTick:  tick,
		CurrentPrice: price,
	}, nil
}

func (c *Client) spotPrice(ctx context.Context, poolID uint64, base, quote string) (*apd.Decimal, error) {
	path := fmt.Sprintf("/osmosis/poolmanager/v2/pools/%d/prices?base_asset_denom=%s&quote_asset_denom=%s",
		poolID, url.QueryEscape(base), url.QueryEscape(quote))
	var resp spotPriceResponse
	if err := c.doGet(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("osmosis: query spot price pool %d: %w", poolID, err)
	}
	price, _, err := apd.NewFromString(resp.SpotPrice)
	if err != nil {
		return nil, fmt.Errorf("osmosis: parse spot price %q: %w", resp.SpotPrice, err)
	}
	return price, nil
}

// GetPositionInfo reads one position by id. A missing position maps to
// domain.ErrPositionNotFound so callers can distinguish it from query
// failures.
func (c *Client) GetPositionInfo(ctx context.Context, positionID uint64) (domain.Position, error) {
	var resp positionByIDResponse
	path := fmt.Sprintf("/osmosis/concentratedliquidity/v1beta1/position_by_id?position_id=%d", positionID)
	if err := c.doGet(ctx, path, &resp); err != nil {
		if isNotFound(err) {
			return domain.Position{}, fmt.Errorf("osmosis: position %d: %w", positionID, domain.ErrPositionNotFound)
		}
		return domain.Position{}, fmt.Errorf("osmosis: query position %d: %w", positionID, err)
	}
	return parsePosition(resp.Position)
}

// GetPositions lists all positions owned by the wallet across all pools.
func (c *Client) GetPositions(ctx context.Context) ([]domain.Position, error) {
	path := fmt.Sprintf("/osmosis/concentratedliquidity/v1beta1/positions/%s?pagination.limit=500", c.signer.Address())
	var resp positionsResponse
	if err := c.doGet(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("osmosis: query positions: %w", err)
	}

	out := make([]domain.Position, 0, len(resp.Positions))
	for _, p := range resp.Positions {
		pos, err := parsePosition(p)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, nil
}

func parsePosition(p positionPayload) (domain.Position, error) {
	id, err := strconv.ParseUint(p.Position.PositionID, 10, 64)
	if err != nil {
		return domain.Position{}, fmt.Errorf("osmosis: parse position id %q: %w", p.Position.PositionID, err)
	}
	poolID, err := strconv.ParseUint(p.Position.PoolID, 10, 64)
	if err != nil {
		return domain.Position{}, fmt.Errorf("osmosis: parse pool id %q: %w", p.Position.PoolID, err)
	}
	lower, err := strconv.ParseInt(p.Position.LowerTick, 10, 64)
	if err != nil {
		return domain.Position{}, fmt.Errorf("osmosis: parse lower tick %q: %w", p.Position.LowerTick, err)
	}
	upper, err := strconv.ParseInt(p.Position.UpperTick, 10, 64)
	if err != nil {
		return domain.Position{}, fmt.Errorf("osmosis: parse upper tick %q: %w", p.Position.UpperTick, err)
	}
	return domain.Position{
		PositionID: id,
		PoolID:     poolID,
		LowerTick:  lower,
		UpperTick:  upper,
		Liquidity:  p.Position.Liquidity,
	}, nil
}

// CreatePosition opens a full-deposit position in the given tick range.
func (c *Client) CreatePosition(ctx context.Context, params domain.CreatePositionParams) (domain.CreatePositionResult, error) {
	msg := map[string]any{
		"pool_id":           strconv.FormatUint(params.PoolID, 10),
		"sender":            c.signer.Address(),
		"lower_tick":        strconv.FormatInt(params.LowerTick, 10),
		"upper_tick":        strconv.FormatInt(params.UpperTick, 10),
		"tokens_provided":   provided(params.Amount0, params.Amount1),
		"token_min_amount0": "0",
		"token_min_amount1": "0",
	}

	resp, err := c.broadcastTx(ctx, msgCreatePosition, msg)
	if err != nil {
		return domain.CreatePositionResult{}, fmt.Errorf("osmosis: create position: %w", err)
	}

	idStr, ok := eventAttr(resp.TxResponse.Events, "create_position", "position_id")
	if !ok {
		return domain.CreatePositionResult{}, fmt.Errorf("osmosis: create position tx %s: no position_id event", resp.TxResponse.TxHash)
	}
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return domain.CreatePositionResult{}, fmt.Errorf("osmosis: parse created position id %q: %w", idStr, err)
	}

	amount0, _ := eventAttr(resp.TxResponse.Events, "create_position", "amount0")
	amount1, _ := eventAttr(resp.TxResponse.Events, "create_position", "amount1")

	result := domain.CreatePositionResult{
		PositionID: id,
		Amount0:    domain.TokenAmountFromString(amount0, params.Amount0.Token),
		Amount1:    domain.TokenAmountFromString(amount1, params.Amount1.Token),
		TxHash:     resp.TxResponse.TxHash,
		GasFees:    c.gasFees(resp.TxResponse.Events),
	}

	c.logger.Info("position created",
		slog.Uint64("position_id", id),
		slog.Uint64("pool_id", params.PoolID),
		slog.Int64("lower_tick", params.LowerTick),
		slog.Int64("upper_tick", params.UpperTick),
		slog.String("tx_hash", result.TxHash))
	return result, nil
}

// WithdrawPosition removes liquidity from a position. An empty Liquidity
// withdraws the full position. Spread and incentive rewards collected by the
// withdrawal are reported alongside the principal.
func (c *Client) WithdrawPosition(ctx context.Context, params domain.WithdrawPositionParams) (domain.WithdrawPositionResult, error) {
	liquidity := params.Liquidity
	if liquidity == "" {
		pos, err := c.GetPositionInfo(ctx, params.PositionID)
		if err != nil {
			return domain.WithdrawPositionResult{}, err
		}
		liquidity = pos.Liquidity
	}

	msg := map[string]any{
		"position_id":      strconv.FormatUint(params.PositionID, 10),
		"sender":           c.signer.Address(),
		"liquidity_amount": liquidity,
	}

	resp, err := c.broadcastTx(ctx, msgWithdrawPosition, msg)
	if err != nil {
		return domain.WithdrawPositionResult{}, fmt.Errorf("osmosis: withdraw position %d: %w", params.PositionID, err)
	}

	amount0, _ := eventAttr(resp.TxResponse.Events, "withdraw_position", "amount0")
	amount1, _ := eventAttr(resp.TxResponse.Events, "withdraw_position", "amount1")
	denom0, _ := eventAttr(resp.TxResponse.Events, "withdraw_position", "denom0")
	denom1, _ := eventAttr(resp.TxResponse.Events, "withdraw_position", "denom1")

	var rewards []domain.TokenAmount
	for _, typ := range []string{"collect_spread_rewards", "collect_incentives"} {
		if raw, ok := eventAttr(resp.TxResponse.Events, typ, "tokens_out"); ok {
			for _, cn := range parseCoins(raw) {
				rewards = append(rewards, domain.TokenAmountFromString(cn.Amount, c.resolveToken(cn.Denom)))
			}
		}
	}

	result := domain.WithdrawPositionResult{
		Amount0: domain.TokenAmountFromString(amount0, c.resolveToken(denom0)),
		Amount1: domain.TokenAmountFromString(amount1, c.resolveToken(denom1)),
		Rewards: rewards,
		TxHash:  resp.TxResponse.TxHash,
		GasFees: c.gasFees(resp.TxResponse.Events),
	}

	c.logger.Info("position withdrawn",
		slog.Uint64("position_id", params.PositionID),
		slog.Int("rewards", len(rewards)),
		slog.String("tx_hash", result.TxHash))
	return result, nil
}

// provided renders the deposit as a denom-sorted coin list, dropping zero
// legs; the chain rejects zero coins inside tokens_provided.
func provided(amount0, amount1 domain.TokenAmount) []coin {
	var coins []coin
	for _, a := range []domain.TokenAmount{amount0, amount1} {
		if a.IsZero() {
			continue
		}
		coins = append(coins, coin{Denom: a.Token.Denom, Amount: a.Amount})
	}
	if len(coins) == 2 && coins[0].Denom > coins[1].Denom {
		coins[0], coins[1] = coins[1], coins[0]
	}
	return coins
}

func (c *Client) gasFees(events []txEvent) []domain.TokenAmount {
	raw, ok := eventAttr(events, "tx", "fee")
	if !ok {
		return nil
	}
	coins := parseCoins(raw)
	out := make([]domain.TokenAmount, 0, len(coins))
	for _, cn := range coins {
		out = append(out, domain.TokenAmountFromString(cn.Amount, c.resolveToken(cn.Denom)))
	}
	return out
}

// resolveToken looks the denom up in the registry, falling back to a bare
// token for denoms outside the configured set (reward and fee denoms mostly).
func (c *Client) resolveToken(denom string) domain.Token {
	t, err := c.registry.Get(c.chain.ID, denom)
	if err != nil {
		return domain.Token{ChainID: c.chain.ID, Denom: denom, Name: denom}
	}
	return t
}

// eventAttr finds the first attribute value of the given event type and key.
func eventAttr(events []txEvent, typ, key string) (string, bool) {
	for _, ev := range events {
		if ev.Type != typ {
			continue
		}
		for _, attr := range ev.Attributes {
			if attr.Key == key {
				return attr.Value, true
			}
		}
	}
	return "", false
}

// parseCoins parses a comma-separated coin string like "1200uosmo,5ibc/ABC".
// Malformed entries are skipped.
func parseCoins(s string) []coin {
	var out []coin
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		i := 0
		for i < len(part) && part[i] >= '0' && part[i] <= '9' {
			i++
		}
		if i == 0 || i == len(part) {
			continue
		}
		out = append(out, coin{Denom: part[i:], Amount: part[:i]})
	}
	return out
}
