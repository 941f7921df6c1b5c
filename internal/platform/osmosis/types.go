package osmosis

// LCD response shapes. Cosmos REST gateways encode 64-bit integers as JSON
// strings; the client parses them with strconv.

type coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

type balancesResponse struct {
	Balances []coin `json:"balances"`
}

type balanceResponse struct {
	Balance coin `json:"balance"`
}

type poolResponse struct {
	Pool struct {
		ID          string `json:"id"`
		Token0      string `json:"token0"`
		Token1      string `json:"token1"`
		TickSpacing string `json:"tick_spacing"`
		CurrentTick string `json:"current_tick"`
	} `json:"pool"`
}

type spotPriceResponse struct {
	SpotPrice string `json:"spot_price"`
}

type positionPayload struct {
	Position struct {
		PositionID string `json:"position_id"`
		PoolID     string `json:"pool_id"`
		LowerTick  string `json:"lower_tick"`
		UpperTick  string `json:"upper_tick"`
		Liquidity  string `json:"liquidity"`
	} `json:"position"`
}

type positionByIDResponse struct {
	Position positionPayload `json:"position"`
}

type positionsResponse struct {
	Positions []positionPayload `json:"positions"`
}

type txEvent struct {
	Type       string `json:"type"`
	Attributes []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"attributes"`
}

type txResponse struct {
	TxResponse struct {
		TxHash string    `json:"txhash"`
		Code   int       `json:"code"`
		RawLog string    `json:"raw_log"`
		Events []txEvent `json:"events"`
	} `json:"tx_response"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
