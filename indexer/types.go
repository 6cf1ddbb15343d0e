package indexer

import "math/big"

// EventsResponse is the batch returned by GET /events?since=K. All
// amounts are decimal strings, all hashes lowercase hex with or without
// a 0x prefix; normalization happens in the matcher.
type EventsResponse struct {
	LastIndexedBlock uint64         `json:"lastIndexedBlock"`
	Since            uint64         `json:"since"`
	Transfers        []Transfer     `json:"transfers"`
	Reservations     []Reservation  `json:"reservations"`
	Swaps            []Swap         `json:"swaps"`
	PriceChanges     []PriceChange  `json:"priceChanges"`
	PoolEvents       []PoolEvent    `json:"poolEvents,omitempty"`
	StakingEvents    []StakingEvent `json:"stakingEvents,omitempty"`
}

// Transfer is a fungible or NFT token transfer. From and To are MLDSA
// hashes. Standard is "op20" or "op721"; op721 contracts are treated as
// NFT collections from then on.
type Transfer struct {
	TxHash      string `json:"txHash"`
	BlockHeight uint64 `json:"blockHeight"`
	Contract    string `json:"contract"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	Standard    string `json:"standard,omitempty"`
	Symbol      string `json:"symbol,omitempty"`
}

// Reservation is a NativeSwap liquidity reservation. Provider is an
// MLDSA hash; Buyer may be an MLDSA hash or a plain BTC address
// depending on indexer version, so matching tries both.
type Reservation struct {
	TxHash      string `json:"txHash"`
	BlockHeight uint64 `json:"blockHeight"`
	Contract    string `json:"contract"`
	Provider    string `json:"provider"`
	Buyer       string `json:"buyer"`
	Satoshis    string `json:"satoshis"`
	TokenAmount string `json:"tokenAmount"`
	Status      string `json:"status,omitempty"`
}

// Swap is an executed NativeSwap trade. BtcSpent is the net BTC cost to
// the buyer; Providers lists the MLDSA hashes whose liquidity was
// consumed.
type Swap struct {
	TxHash         string   `json:"txHash"`
	BlockHeight    uint64   `json:"blockHeight"`
	Contract       string   `json:"contract"`
	Buyer          string   `json:"buyer"`
	BtcSpent       string   `json:"btcSpent"`
	TokensReceived string   `json:"tokensReceived"`
	Providers      []string `json:"providers,omitempty"`
}

// PriceChange is a contract price movement over the indexing window.
type PriceChange struct {
	Contract    string  `json:"contract"`
	BlockHeight uint64  `json:"blockHeight"`
	OldPrice    string  `json:"oldPrice"`
	NewPrice    string  `json:"newPrice"`
	DeltaPct    float64 `json:"deltaPct"`
}

// PoolEvent is a liquidity add/remove on a pool contract. Type is
// "liquidity_added" or "liquidity_removed". Actor is an MLDSA hash.
type PoolEvent struct {
	TxHash      string `json:"txHash"`
	BlockHeight uint64 `json:"blockHeight"`
	Contract    string `json:"contract"`
	Type        string `json:"type"`
	Actor       string `json:"actor"`
	TokenAmount string `json:"tokenAmount"`
	Satoshis    string `json:"satoshis"`
}

// StakingEvent is a stake, unstake or reward claim. Type is "staked",
// "unstaked" or "rewards_claimed". Actor is an MLDSA hash.
type StakingEvent struct {
	TxHash      string `json:"txHash"`
	BlockHeight uint64 `json:"blockHeight"`
	Contract    string `json:"contract"`
	Type        string `json:"type"`
	Actor       string `json:"actor"`
	Amount      string `json:"amount"`
}

// Balance is one row of GET /balances/{address}.
type Balance struct {
	Contract string `json:"contract"`
	Symbol   string `json:"symbol"`
	Amount   string `json:"amount"`
	Decimals int    `json:"decimals"`
}

// Listings is the NativeSwap provider book for a contract.
type Listings struct {
	Contract          string     `json:"contract"`
	PriorityProviders []Provider `json:"priorityProviders"`
	StandardProviders []Provider `json:"standardProviders"`
	PriorityCount     int        `json:"priorityCount"`
	StandardCount     int        `json:"standardCount"`
}

type Provider struct {
	Provider  string `json:"provider"`
	Liquidity string `json:"liquidity"`
}

// Prices is the current pool state plus recent price history.
type Prices struct {
	Contract     string        `json:"contract"`
	VirtualBTC   string        `json:"virtualBtcReserve"`
	VirtualToken string        `json:"virtualTokenReserve"`
	History      []PriceChange `json:"history,omitempty"`
}

// TransfersPage is one page of GET /transfers/{mldsaHash}.
type TransfersPage struct {
	Transfers []Transfer `json:"transfers"`
	Total     int        `json:"total"`
}

// ParseAmount parses a decimal-string amount. Malformed amounts return
// nil; callers skip the record per the malformed-record policy.
func ParseAmount(s string) *big.Int {
	if s == "" {
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil
	}
	return v
}

// ParseSats parses a decimal-string satoshi amount into an int64.
// Returns 0, false on malformed or out-of-range values.
func ParseSats(s string) (int64, bool) {
	v := ParseAmount(s)
	if v == nil || !v.IsInt64() || v.Sign() < 0 {
		return 0, false
	}
	return v.Int64(), true
}
