package pipeline

import (
	"github.com/trypto13/jeet-tracker/events"
)

// suppressionKey is (address, blockHeight): when a contract-level event
// explains the BTC movement in a block, the raw BTC events for that
// wallet in that block are noise.
type suppressionKey struct {
	Address string
	Block   uint64
}

// buildSuppressionSet implements the cross-source priority rule:
// contract semantics wins, BTC plumbing loses. Contributors are swaps
// (btcSpent already is the net cost), reservations and provider
// consumption, pool and staking events (BTC there is gas), and the
// OP20-to-OP20 trade shape (a token in and a token out for the same
// wallet and block).
func buildSuppressionSet(evs []events.WalletEvent) map[suppressionKey]struct{} {
	s := make(map[suppressionKey]struct{})
	tokenDirs := make(map[suppressionKey]uint8) // bit 0 = in, bit 1 = out

	for i := range evs {
		e := &evs[i]
		key := suppressionKey{Address: e.Address, Block: e.BlockHeight}
		switch e.Kind {
		case events.SwapExecuted,
			events.LiquidityReserved, events.ProviderConsumed,
			events.LiquidityAdded, events.LiquidityRemoved,
			events.Staked, events.Unstaked, events.RewardsClaimed:
			s[key] = struct{}{}
		case events.Token, events.NFTTransfer:
			switch e.Direction {
			case events.DirIn:
				tokenDirs[key] |= 1
			case events.DirOut:
				tokenDirs[key] |= 2
			}
		}
	}

	for key, dirs := range tokenDirs {
		if dirs == 3 {
			s[key] = struct{}{}
		}
	}
	return s
}

// filterSuppressed drops btc_sent/btc_received whose (address, block)
// is in the suppression set. Everything else passes through.
func filterSuppressed(evs []events.WalletEvent, s map[suppressionKey]struct{}) []events.WalletEvent {
	out := evs[:0]
	for i := range evs {
		e := evs[i]
		if e.Kind == events.BTCSent || e.Kind == events.BTCReceived {
			if _, drop := s[suppressionKey{Address: e.Address, Block: e.BlockHeight}]; drop {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// dedupEvents collapses duplicates across sources by
// (type, txHash, address, contract, direction), keeping the first.
func dedupEvents(evs []events.WalletEvent) []events.WalletEvent {
	seen := make(map[string]struct{}, len(evs))
	out := evs[:0]
	for i := range evs {
		key := evs[i].DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, evs[i])
	}
	return out
}

// txLRU is the session-scoped set of already-notified tx hashes.
// Restart tolerance is the cursor's job, not this set's.
type txLRU struct {
	cap   int
	seen  map[string]struct{}
	order []string
}

func newTxLRU(cap int) *txLRU {
	return &txLRU{cap: cap, seen: make(map[string]struct{}, cap)}
}

// Contains reports whether the hash was already notified this session.
func (l *txLRU) Contains(tx string) bool {
	_, ok := l.seen[tx]
	return ok
}

// Add records a notified hash, pruning the oldest on overflow.
func (l *txLRU) Add(tx string) {
	if _, ok := l.seen[tx]; ok {
		return
	}
	l.seen[tx] = struct{}{}
	l.order = append(l.order, tx)
	for len(l.order) > l.cap {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.seen, oldest)
	}
}
