package bot

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/trypto13/jeet-tracker/indexer"
)

const priceTTL = 5 * time.Minute

// priceSource is the slice of the indexer API the cache needs.
type priceSource interface {
	Prices(ctx context.Context, contract string) (*indexer.Prices, error)
}

// priceCache holds the last seen pool state per contract. Best effort:
// on a fetch failure the stale entry keeps serving, and a contract the
// indexer knows nothing about simply never prices.
type priceCache struct {
	src priceSource

	mu      sync.Mutex
	entries map[string]*priceEntry
}

type priceEntry struct {
	prices    *indexer.Prices
	fetchedAt time.Time
}

func newPriceCache(src priceSource) *priceCache {
	return &priceCache{src: src, entries: make(map[string]*priceEntry)}
}

// get returns the pool state for a contract, refreshing entries older
// than the TTL. Returns nil when nothing was ever fetched successfully.
func (p *priceCache) get(ctx context.Context, contract string) *indexer.Prices {
	p.mu.Lock()
	e, ok := p.entries[contract]
	fresh := ok && time.Since(e.fetchedAt) < priceTTL
	p.mu.Unlock()
	if fresh {
		return e.prices
	}

	prices, err := p.src.Prices(ctx, contract)
	if err != nil || prices == nil {
		if ok {
			return e.prices // stale beats nothing
		}
		return nil
	}

	p.mu.Lock()
	p.entries[contract] = &priceEntry{prices: prices, fetchedAt: time.Now()}
	p.mu.Unlock()
	return prices
}

// satValue estimates the satoshi value of a token amount from the
// pool's virtual reserves. Returns false when the contract has no
// usable price.
func (p *priceCache) satValue(ctx context.Context, contract string, amount *big.Int) (int64, bool) {
	if amount == nil || amount.Sign() <= 0 {
		return 0, false
	}
	prices := p.get(ctx, contract)
	if prices == nil {
		return 0, false
	}
	btcReserve := indexer.ParseAmount(prices.VirtualBTC)
	tokenReserve := indexer.ParseAmount(prices.VirtualToken)
	if btcReserve == nil || tokenReserve == nil || tokenReserve.Sign() <= 0 {
		return 0, false
	}

	v := new(big.Int).Mul(amount, btcReserve)
	v.Quo(v, tokenReserve)
	if !v.IsInt64() {
		return 0, false
	}
	return v.Int64(), true
}
