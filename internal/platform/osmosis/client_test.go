package osmosis

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CryptoChem0000/clrebalancer/internal/domain"
	"github.com/CryptoChem0000/clrebalancer/internal/registry"
)

type staticSigner struct {
	addr string
}

func (s staticSigner) Address() string { return s.addr }

func (s staticSigner) Sign(context.Context, []byte) ([]byte, error) {
	return []byte("signature"), nil
}

func testRegistry() *registry.Registry {
	return registry.New([]domain.Token{
		{ChainID: "osmosis-1", Denom: "uosmo", Decimals: 6, Name: "OSMO"},
		{ChainID: "osmosis-1", Denom: "ibc/USDC", Decimals: 6, Name: "USDC", OriginDenom: "uusdc", OriginChainID: "noble-1"},
	})
}

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	chain := domain.ChainInfo{ID: "osmosis-1", Name: "Osmosis", RESTEndpoint: srv.URL, NativeDenom: "uosmo"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(chain, staticSigner{addr: "osmo1wallet"}, testRegistry(), logger)
}

func TestGetAvailableBalances(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cosmos/bank/v1beta1/spendable_balances/osmo1wallet", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"balances":[{"denom":"uosmo","amount":"1500000"},{"denom":"ibc/USDC","amount":"2000000"}]}`)
	})
	c := testClient(t, mux)

	balances, err := c.GetAvailableBalances(context.Background())
	require.NoError(t, err)
	require.Len(t, balances, 2)
	require.Equal(t, "1500000", balances["uosmo"].Amount)
	require.Equal(t, "USDC", balances["ibc/USDC"].Token.Name)
}

func TestGetPoolInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/osmosis/concentratedliquidity/v1beta1/pools/1066", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"pool":{"id":"1066","token0":"uosmo","token1":"ibc/USDC","tick_spacing":"100","current_tick":"9000000"}}`)
	})
	mux.HandleFunc("/osmosis/poolmanager/v2/pools/1066/prices", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "uosmo", r.URL.Query().Get("base_asset_denom"))
		io.WriteString(w, `{"spot_price":"10.000000000000000000"}`)
	})
	c := testClient(t, mux)

	pool, err := c.GetPoolInfo(context.Background(), 1066)
	require.NoError(t, err)
	require.Equal(t, uint64(1066), pool.ID)
	require.Equal(t, int64(100), pool.TickSpacing)
	require.Equal(t, int64(9000000), pool.CurrentTick)
	require.Equal(t, "uosmo", pool.Token0.Denom)
	require.Equal(t, "10.000000000000000000", pool.CurrentPrice.Text('f'))
}

func TestGetPositionInfo_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/osmosis/concentratedliquidity/v1beta1/position_by_id", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"code":5,"message":"position not found"}`)
	})
	c := testClient(t, mux)

	_, err := c.GetPositionInfo(context.Background(), 42)
	require.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestCreatePosition(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cosmos/tx/v1beta1/txs", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"tx_response":{"txhash":"ABC123","code":0,"events":[
			{"type":"create_position","attributes":[
				{"key":"position_id","value":"77"},
				{"key":"amount0","value":"500000000"},
				{"key":"amount1","value":"1000000000"}]},
			{"type":"tx","attributes":[{"key":"fee","value":"2500uosmo"}]}]}}`)
	})
	c := testClient(t, mux)

	osmo, _ := testRegistry().Get("osmosis-1", "uosmo")
	usdc, _ := testRegistry().Get("osmosis-1", "ibc/USDC")
	res, err := c.CreatePosition(context.Background(), domain.CreatePositionParams{
		PoolID:    1066,
		LowerTick: 8500000,
		UpperTick: 9050000,
		Amount0:   domain.TokenAmountFromString("500000000", osmo),
		Amount1:   domain.TokenAmountFromString("1000000000", usdc),
	})
	require.NoError(t, err)
	require.Equal(t, uint64(77), res.PositionID)
	require.Equal(t, "ABC123", res.TxHash)
	require.Equal(t, "500000000", res.Amount0.Amount)
	require.Len(t, res.GasFees, 1)
	require.Equal(t, "2500", res.GasFees[0].Amount)
	require.Equal(t, "uosmo", res.GasFees[0].Token.Denom)
}

func TestBroadcastTx_ABCIFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/cosmos/tx/v1beta1/txs", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"tx_response":{"txhash":"DEF456","code":11,"raw_log":"out of gas"}}`)
	})
	c := testClient(t, mux)

	_, err := c.broadcastTx(context.Background(), msgCreatePosition, map[string]any{})
	require.ErrorContains(t, err, "code 11")
	require.ErrorContains(t, err, "out of gas")
}

func TestParseCoins(t *testing.T) {
	coins := parseCoins("2500uosmo,13ibc/USDC")
	require.Len(t, coins, 2)
	require.Equal(t, "2500", coins[0].Amount)
	require.Equal(t, "uosmo", coins[0].Denom)
	require.Equal(t, "ibc/USDC", coins[1].Denom)

	require.Empty(t, parseCoins(""))
	require.Empty(t, parseCoins("uosmo"))
}

func TestProvided_SortsAndDropsZero(t *testing.T) {
	osmo := domain.Token{ChainID: "osmosis-1", Denom: "uosmo", Decimals: 6}
	usdc := domain.Token{ChainID: "osmosis-1", Denom: "ibc/USDC", Decimals: 6}

	coins := provided(domain.TokenAmountFromString("5", osmo), domain.TokenAmountFromString("7", usdc))
	require.Len(t, coins, 2)
	require.Equal(t, "ibc/USDC", coins[0].Denom)
	require.Equal(t, "uosmo", coins[1].Denom)

	coins = provided(domain.ZeroAmount(osmo), domain.TokenAmountFromString("7", usdc))
	require.Len(t, coins, 1)
	require.Equal(t, "ibc/USDC", coins[0].Denom)
}
