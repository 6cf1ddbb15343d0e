// Package tracker maintains the per-wallet UTXO set: seeded from the
// node the first time a primary is seen, then kept current by block
// deltas. Confirmed spend detection depends entirely on this set on
// networks whose block inputs carry no address data.
package tracker

import (
	"context"
	"fmt"
	"log"

	"github.com/trypto13/jeet-tracker/chain"
	"github.com/trypto13/jeet-tracker/store"
)

// ChainClient is the subset of the RPC the tracker needs.
type ChainClient interface {
	GetUTXOs(ctx context.Context, addr string, isCSV bool) ([]chain.UTXO, error)
}

// Tracker seeds and updates stored UTXO sets.
type Tracker struct {
	rpc ChainClient
	st  *store.Store
}

func New(rpc ChainClient, st *store.Store) *Tracker {
	return &Tracker{rpc: rpc, st: st}
}

// Seed fetches the current UTXO set for a primary across every linked
// address form and stores the union under the primary's canonical id.
// Outputs created before first-seen are captured here and nowhere else.
// Safe to run again when a linkage arrives after a primary-only seed;
// inserts are upserts keyed by outpoint.
func (t *Tracker) Seed(ctx context.Context, primary string, linkage *store.Linkage) error {
	addrs := []string{primary}
	var csvAddr string
	if linkage != nil {
		for _, a := range linkage.Aliases() {
			if a == primary {
				continue
			}
			if a == linkage.CSV1 {
				csvAddr = a
				continue
			}
			addrs = append(addrs, a)
		}
	}

	seen := make(map[store.Outpoint]struct{})
	var utxos []store.StoredUTXO

	collect := func(list []chain.UTXO) {
		for _, u := range list {
			op := store.Outpoint{TxID: u.TransactionID, Vout: u.OutputIndex}
			if _, dup := seen[op]; dup {
				continue
			}
			seen[op] = struct{}{}
			utxos = append(utxos, store.StoredUTXO{
				TxID:    u.TransactionID,
				Vout:    u.OutputIndex,
				Value:   u.Value.Int64(),
				Primary: primary,
			})
		}
	}

	for _, addr := range addrs {
		list, err := t.rpc.GetUTXOs(ctx, addr, false)
		if err != nil {
			return fmt.Errorf("seed %s: %w", addr, err)
		}
		collect(list)
	}
	if csvAddr != "" {
		// CSV forms live behind a distinct manager path.
		list, err := t.rpc.GetUTXOs(ctx, csvAddr, true)
		if err != nil {
			return fmt.Errorf("seed csv %s: %w", csvAddr, err)
		}
		collect(list)
	}

	if err := t.st.InsertUTXOs(ctx, utxos); err != nil {
		return err
	}
	if err := t.st.MarkSeeded(ctx, primary); err != nil {
		return err
	}
	log.Printf("[tracker] seeded %s with %d utxos across %d forms", primary, len(utxos), len(addrs))
	return nil
}

// ApplyDelta persists one block's spend/receive delta and keeps the
// live map in step. The scanner already applied the delta to the map
// transaction by transaction, so the map operations here are no-ops on
// a map the scanner mutated; they matter for callers holding a fresh
// snapshot.
func (t *Tracker) ApplyDelta(ctx context.Context, spent []store.Outpoint, received []store.StoredUTXO, utxoMap map[store.Outpoint]store.UTXORef) error {
	if err := t.st.DeleteUTXOs(ctx, spent); err != nil {
		return err
	}
	for _, k := range spent {
		delete(utxoMap, k)
	}

	if err := t.st.InsertUTXOs(ctx, received); err != nil {
		return err
	}
	for _, u := range received {
		utxoMap[u.Outpoint()] = store.UTXORef{Primary: u.Primary, Value: u.Value}
	}
	return nil
}
