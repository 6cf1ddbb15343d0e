// Package scanner turns one raw block into BTC wallet events, matching
// transactions against the tracked address set, the alias-to-primary
// canonical map, and the live UTXO map. The map is updated in place as
// transactions are walked, so a spend of an output received earlier in
// the same block is still detected.
package scanner

import (
	"github.com/trypto13/jeet-tracker/chain"
	"github.com/trypto13/jeet-tracker/events"
	"github.com/trypto13/jeet-tracker/store"
)

// InferredSend is a candidate btc_sent for chains whose block inputs
// carry no address data. It requires a tracked change output in the
// same tx and is only promoted by the orchestrator when the UTXO path
// produced no confirmed spend for the same hash.
type InferredSend struct {
	TxHash       string
	BlockHeight  uint64
	Address      string // canonical primary that received change
	TotalSent    int64  // sum of non-tracked outputs
	Counterparty string // first non-tracked address
	ChangeSats   int64  // sum of tracked outputs in the same tx
}

// Result is everything one block scan produces.
type Result struct {
	Events        []events.WalletEvent
	Received      []store.StoredUTXO
	SpentKeys     []store.Outpoint
	InferredSends []InferredSend
}

// ScanBlock runs the three passes over every transaction: confirmed
// spend detection against the UTXO map, receive detection against the
// tracked set, and inferred-send candidates. Received outputs enter
// the live map before the next transaction is scanned, so an
// intra-block chain (tx2 spending tx1's fresh output) produces its
// btc_sent; outputs both received and spent inside the block are
// dropped from Received.
func ScanBlock(blk *chain.Block, proj *store.Projection, utxoMap map[store.Outpoint]store.UTXORef) Result {
	var res Result

	for ti := range blk.Transactions {
		tx := &blk.Transactions[ti]

		// Pass 1: inputs spending tracked UTXOs. Block inputs may
		// carry no address data at all; the stored map is the only
		// source of truth here.
		counterparty, counterValue := firstExternalOutput(tx, proj)
		for _, in := range tx.Inputs {
			key := store.Outpoint{TxID: in.OriginalTransactionID, Vout: in.OutputTransactionIndex}
			ref, ok := utxoMap[key]
			if !ok {
				continue
			}
			res.Events = append(res.Events, events.WalletEvent{
				Kind:            events.BTCSent,
				Address:         ref.Primary,
				TxHash:          tx.Hash,
				BlockHeight:     blk.Height,
				Direction:       events.DirOut,
				Satoshis:        ref.Value,
				Counterparty:    counterparty,
				RecipientAmount: counterValue,
			})
			res.SpentKeys = append(res.SpentKeys, key)
			delete(utxoMap, key)
		}

		// Pass 2: outputs paying tracked addresses. Attribution is
		// always to the canonical primary, never the alias the output
		// actually used.
		var trackedReceived int64
		var changePrimary string
		for _, out := range tx.Outputs {
			addr := out.ScriptPubKey.Address
			if addr == "" || !proj.Tracked(addr) {
				continue
			}
			primary := proj.Canonical(addr)
			if changePrimary == "" {
				changePrimary = primary
			}
			trackedReceived += out.Value.Int64()
			res.Events = append(res.Events, events.WalletEvent{
				Kind:        events.BTCReceived,
				Address:     primary,
				TxHash:      tx.Hash,
				BlockHeight: blk.Height,
				Direction:   events.DirIn,
				Satoshis:    out.Value.Int64(),
			})
			res.Received = append(res.Received, store.StoredUTXO{
				TxID:    tx.Hash,
				Vout:    out.Index,
				Value:   out.Value.Int64(),
				Primary: primary,
			})
			if utxoMap != nil {
				utxoMap[store.Outpoint{TxID: tx.Hash, Vout: out.Index}] = store.UTXORef{
					Primary: primary,
					Value:   out.Value.Int64(),
				}
			}
		}

		// Pass 3: tracked change plus external outputs in the same tx
		// is the classic shape of a send from a wallet we cannot see
		// the inputs of.
		if changePrimary != "" && counterparty != "" {
			totalSent := int64(0)
			for _, out := range tx.Outputs {
				addr := out.ScriptPubKey.Address
				if addr == "" || proj.Tracked(addr) {
					continue
				}
				totalSent += out.Value.Int64()
			}
			if totalSent > 0 {
				res.InferredSends = append(res.InferredSends, InferredSend{
					TxHash:       tx.Hash,
					BlockHeight:  blk.Height,
					Address:      changePrimary,
					TotalSent:    totalSent,
					Counterparty: counterparty,
					ChangeSats:   trackedReceived,
				})
			}
		}
	}

	// Outputs received and spent inside the same block never reach the
	// store; the events for both legs already exist.
	if len(res.SpentKeys) > 0 && len(res.Received) > 0 {
		spent := make(map[store.Outpoint]struct{}, len(res.SpentKeys))
		for _, k := range res.SpentKeys {
			spent[k] = struct{}{}
		}
		kept := res.Received[:0]
		for _, u := range res.Received {
			if _, gone := spent[u.Outpoint()]; gone {
				continue
			}
			kept = append(kept, u)
		}
		res.Received = kept
	}

	return res
}

// firstExternalOutput returns the first output address outside the
// tracked set and its value. That output is the presumed recipient for
// spend events.
func firstExternalOutput(tx *chain.Transaction, proj *store.Projection) (string, int64) {
	for _, out := range tx.Outputs {
		addr := out.ScriptPubKey.Address
		if addr == "" || proj.Tracked(addr) {
			continue
		}
		return addr, out.Value.Int64()
	}
	return "", 0
}
