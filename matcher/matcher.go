// Package matcher projects indexer record batches against the identity
// projection into semantic wallet events. Records identify wallets by
// MLDSA hash; seller/buyer-style records sometimes carry a plain BTC
// address instead, so those are matched against the tracked set too.
package matcher

import (
	"github.com/trypto13/jeet-tracker/events"
	"github.com/trypto13/jeet-tracker/identity"
	"github.com/trypto13/jeet-tracker/indexer"
	"github.com/trypto13/jeet-tracker/store"
)

// Result is everything one batch projection produces. Seen and SeenNFT
// are per-primary contract sets the store persists after the tick.
type Result struct {
	Events  []events.WalletEvent
	Seen    map[string][]string
	SeenNFT map[string][]string
}

func (r *Result) addSeen(primary, contract string, nft bool) {
	if contract == "" {
		return
	}
	r.Seen[primary] = appendUnique(r.Seen[primary], contract)
	if nft {
		r.SeenNFT[primary] = appendUnique(r.SeenNFT[primary], contract)
	}
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// Project matches every record in the batch. Malformed records (bad
// amounts) are skipped, never fatal.
func Project(batch *indexer.EventsResponse, proj *store.Projection, nftSet map[string]struct{}) Result {
	res := Result{
		Seen:    make(map[string][]string),
		SeenNFT: make(map[string][]string),
	}

	for i := range batch.Transfers {
		projectTransfer(&batch.Transfers[i], proj, nftSet, &res)
	}
	for i := range batch.Reservations {
		projectReservation(&batch.Reservations[i], proj, &res)
	}
	for i := range batch.Swaps {
		projectSwap(&batch.Swaps[i], proj, &res)
	}
	for i := range batch.PoolEvents {
		projectPoolEvent(&batch.PoolEvents[i], proj, &res)
	}
	for i := range batch.StakingEvents {
		projectStakingEvent(&batch.StakingEvents[i], proj, &res)
	}

	return res
}

// matchHash returns the primaries whose identity hash equals the given
// actor field. Iterating the map is O(subscriptions), which is the
// documented cost of the hot path.
func matchHash(actor string, proj *store.Projection) []string {
	norm := identity.NormalizeHash(actor)
	if norm == "" {
		return nil
	}
	var out []string
	for primary, hash := range proj.MldsaMap {
		if hash == norm {
			out = append(out, primary)
		}
	}
	return out
}

// matchActor matches by hash first, then by tracked-address membership
// with canonical normalization (seller/buyer fields).
func matchActor(actor string, proj *store.Projection) []string {
	if primaries := matchHash(actor, proj); len(primaries) > 0 {
		return primaries
	}
	if actor != "" && proj.Tracked(actor) {
		return []string{proj.Canonical(actor)}
	}
	return nil
}

func projectTransfer(t *indexer.Transfer, proj *store.Projection, nftSet map[string]struct{}, res *Result) {
	amount := indexer.ParseAmount(t.Value)
	if amount == nil {
		return // malformed, skip
	}
	isNFT := t.Standard == "op721"
	if !isNFT {
		_, isNFT = nftSet[t.Contract]
	}
	kind := events.Token
	if isNFT {
		kind = events.NFTTransfer
	}

	for _, primary := range matchHash(t.From, proj) {
		res.Events = append(res.Events, events.WalletEvent{
			Kind:        kind,
			Address:     primary,
			TxHash:      t.TxHash,
			BlockHeight: t.BlockHeight,
			Contract:    t.Contract,
			Direction:   events.DirOut,
			TokenAmount: amount,
			TokenSymbol: t.Symbol,
		})
		res.addSeen(primary, t.Contract, isNFT)
	}
	for _, primary := range matchHash(t.To, proj) {
		res.Events = append(res.Events, events.WalletEvent{
			Kind:        kind,
			Address:     primary,
			TxHash:      t.TxHash,
			BlockHeight: t.BlockHeight,
			Contract:    t.Contract,
			Direction:   events.DirIn,
			TokenAmount: amount,
			TokenSymbol: t.Symbol,
		})
		res.addSeen(primary, t.Contract, isNFT)
	}
}

func projectReservation(r *indexer.Reservation, proj *store.Projection, res *Result) {
	sats, ok := indexer.ParseSats(r.Satoshis)
	if !ok {
		return
	}
	amount := indexer.ParseAmount(r.TokenAmount)
	if amount == nil {
		return
	}

	providerKind := events.LiquidityReserved
	if r.Status == "consumed" {
		providerKind = events.ProviderConsumed
	}
	for _, primary := range matchHash(r.Provider, proj) {
		res.Events = append(res.Events, events.WalletEvent{
			Kind:        providerKind,
			Address:     primary,
			TxHash:      r.TxHash,
			BlockHeight: r.BlockHeight,
			Contract:    r.Contract,
			Direction:   events.DirSeller,
			Satoshis:    sats,
			TokenAmount: amount,
		})
		res.addSeen(primary, r.Contract, false)
	}
	for _, primary := range matchActor(r.Buyer, proj) {
		res.Events = append(res.Events, events.WalletEvent{
			Kind:        events.LiquidityReserved,
			Address:     primary,
			TxHash:      r.TxHash,
			BlockHeight: r.BlockHeight,
			Contract:    r.Contract,
			Direction:   events.DirBuyer,
			Satoshis:    sats,
			TokenAmount: amount,
		})
		res.addSeen(primary, r.Contract, false)
	}
}

func projectSwap(sw *indexer.Swap, proj *store.Projection, res *Result) {
	sats, ok := indexer.ParseSats(sw.BtcSpent)
	if !ok {
		return
	}
	amount := indexer.ParseAmount(sw.TokensReceived)
	if amount == nil {
		return
	}

	for _, primary := range matchActor(sw.Buyer, proj) {
		res.Events = append(res.Events, events.WalletEvent{
			Kind:        events.SwapExecuted,
			Address:     primary,
			TxHash:      sw.TxHash,
			BlockHeight: sw.BlockHeight,
			Contract:    sw.Contract,
			Direction:   events.DirBuyer,
			Satoshis:    sats,
			TokenAmount: amount,
		})
		res.addSeen(primary, sw.Contract, false)
	}
	for _, provider := range sw.Providers {
		for _, primary := range matchHash(provider, proj) {
			res.Events = append(res.Events, events.WalletEvent{
				Kind:        events.ProviderConsumed,
				Address:     primary,
				TxHash:      sw.TxHash,
				BlockHeight: sw.BlockHeight,
				Contract:    sw.Contract,
				Direction:   events.DirSeller,
				Satoshis:    sats,
				TokenAmount: amount,
			})
			res.addSeen(primary, sw.Contract, false)
		}
	}
}

func projectPoolEvent(pe *indexer.PoolEvent, proj *store.Projection, res *Result) {
	var kind events.Kind
	switch pe.Type {
	case "liquidity_added":
		kind = events.LiquidityAdded
	case "liquidity_removed":
		kind = events.LiquidityRemoved
	default:
		return
	}
	sats, _ := indexer.ParseSats(pe.Satoshis)
	amount := indexer.ParseAmount(pe.TokenAmount)

	for _, primary := range matchHash(pe.Actor, proj) {
		res.Events = append(res.Events, events.WalletEvent{
			Kind:        kind,
			Address:     primary,
			TxHash:      pe.TxHash,
			BlockHeight: pe.BlockHeight,
			Contract:    pe.Contract,
			Satoshis:    sats,
			TokenAmount: amount,
		})
		res.addSeen(primary, pe.Contract, false)
	}
}

func projectStakingEvent(se *indexer.StakingEvent, proj *store.Projection, res *Result) {
	var kind events.Kind
	switch se.Type {
	case "staked":
		kind = events.Staked
	case "unstaked":
		kind = events.Unstaked
	case "rewards_claimed":
		kind = events.RewardsClaimed
	default:
		return
	}
	amount := indexer.ParseAmount(se.Amount)

	for _, primary := range matchHash(se.Actor, proj) {
		res.Events = append(res.Events, events.WalletEvent{
			Kind:        kind,
			Address:     primary,
			TxHash:      se.TxHash,
			BlockHeight: se.BlockHeight,
			Contract:    se.Contract,
			TokenAmount: amount,
		})
		res.addSeen(primary, se.Contract, false)
	}
}

// PriceAlerts evaluates price-change records against token watches.
// A watch with threshold 0 never fires.
func PriceAlerts(changes []indexer.PriceChange, watches []store.TokenWatch) []events.PriceAlert {
	var out []events.PriceAlert
	for i := range changes {
		pc := &changes[i]
		delta := pc.DeltaPct
		if delta < 0 {
			delta = -delta
		}
		for j := range watches {
			w := &watches[j]
			if w.AlertPct <= 0 || w.Contract != pc.Contract || delta < w.AlertPct {
				continue
			}
			out = append(out, events.PriceAlert{
				ChatID:   w.ChatID,
				Contract: pc.Contract,
				Label:    w.Label,
				DeltaPct: pc.DeltaPct,
				NewPrice: pc.NewPrice,
			})
		}
	}
	return out
}
