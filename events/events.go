// Package events defines the semantic wallet events produced by the
// ingestion pipeline and consumed by the notifier.
package events

import (
	"fmt"
	"math/big"
)

// Kind identifies what happened on chain.
type Kind string

const (
	BTCSent           Kind = "btc_sent"
	BTCReceived       Kind = "btc_received"
	Token             Kind = "token"
	NFTTransfer       Kind = "nft_transfer"
	LiquidityReserved Kind = "liquidity_reserved"
	ProviderConsumed  Kind = "provider_consumed"
	SwapExecuted      Kind = "swap_executed"
	LiquidityAdded    Kind = "liquidity_added"
	LiquidityRemoved  Kind = "liquidity_removed"
	Staked            Kind = "staked"
	Unstaked          Kind = "unstaked"
	RewardsClaimed    Kind = "rewards_claimed"
)

// Direction of an event relative to the tracked wallet.
type Direction string

const (
	DirIn     Direction = "in"
	DirOut    Direction = "out"
	DirSeller Direction = "seller"
	DirBuyer  Direction = "buyer"
	DirNone   Direction = ""
)

// WalletEvent is one classified on-chain action attributed to a tracked
// primary address. Satoshi amounts are int64 (total BTC supply fits);
// token amounts are arbitrary precision because OP20 contracts pick
// their own scales.
type WalletEvent struct {
	Kind        Kind
	Address     string // primary address of the subscription
	TxHash      string
	BlockHeight uint64
	Contract    string
	Direction   Direction

	Satoshis        int64 // BTC moved, btcSpent for swaps, sats side of reservations
	RecipientAmount int64 // value of the counterparty output for btc_sent
	Counterparty    string

	TokenAmount *big.Int
	TokenSymbol string
}

// DedupKey is the cross-source deduplication key: two events from different
// sources describing the same action collapse to one.
func (e *WalletEvent) DedupKey() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", e.Kind, e.TxHash, e.Address, e.Contract, e.Direction)
}

// Tokens returns the token amount, never nil.
func (e *WalletEvent) Tokens() *big.Int {
	if e.TokenAmount == nil {
		return new(big.Int)
	}
	return e.TokenAmount
}

// PriceAlert is produced from indexer price-change records against
// token-watch thresholds. It targets a single chat directly rather than
// fanning out through subscriptions.
type PriceAlert struct {
	ChatID   int64
	Contract string
	Label    string
	DeltaPct float64
	NewPrice string
}
