package bot

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/trypto13/jeet-tracker/indexer"
)

type fakePriceSource struct {
	prices *indexer.Prices
	err    error
	calls  int
}

func (f *fakePriceSource) Prices(context.Context, string) (*indexer.Prices, error) {
	f.calls++
	return f.prices, f.err
}

func TestPriceCacheCachesWithinTTL(t *testing.T) {
	src := &fakePriceSource{prices: &indexer.Prices{
		Contract: "0xmoto", VirtualBTC: "1000000", VirtualToken: "50000000",
	}}
	pc := newPriceCache(src)
	ctx := context.Background()

	if pc.get(ctx, "0xmoto") == nil {
		t.Fatal("first fetch failed")
	}
	pc.get(ctx, "0xmoto")
	if src.calls != 1 {
		t.Errorf("calls = %d, want 1 (second hit cached)", src.calls)
	}
}

func TestPriceCacheServesStaleOnError(t *testing.T) {
	src := &fakePriceSource{prices: &indexer.Prices{
		Contract: "0xmoto", VirtualBTC: "1000000", VirtualToken: "50000000",
	}}
	pc := newPriceCache(src)
	ctx := context.Background()

	pc.get(ctx, "0xmoto")

	// Expire the entry, then break the source.
	pc.mu.Lock()
	pc.entries["0xmoto"].fetchedAt = pc.entries["0xmoto"].fetchedAt.Add(-2 * priceTTL)
	pc.mu.Unlock()
	src.err = errors.New("indexer down")
	src.prices = nil

	if got := pc.get(ctx, "0xmoto"); got == nil || got.VirtualBTC != "1000000" {
		t.Fatalf("stale entry not served: %+v", got)
	}
	// A contract never fetched stays unpriced.
	if pc.get(ctx, "0xother") != nil {
		t.Error("unknown contract priced")
	}
}

func TestSatValue(t *testing.T) {
	src := &fakePriceSource{prices: &indexer.Prices{
		VirtualBTC: "1000000", VirtualToken: "50000000",
	}}
	pc := newPriceCache(src)
	ctx := context.Background()

	// 5000000 tokens * 1000000 / 50000000 = 100000 sats.
	v, ok := pc.satValue(ctx, "0xmoto", big.NewInt(5000000))
	if !ok || v != 100000 {
		t.Fatalf("satValue = %d, %v; want 100000, true", v, ok)
	}

	if _, ok := pc.satValue(ctx, "0xmoto", nil); ok {
		t.Error("nil amount priced")
	}
	if _, ok := pc.satValue(ctx, "0xmoto", big.NewInt(0)); ok {
		t.Error("zero amount priced")
	}

	src.prices = &indexer.Prices{VirtualBTC: "1000000", VirtualToken: "0"}
	pc2 := newPriceCache(src)
	if _, ok := pc2.satValue(ctx, "0xmoto", big.NewInt(100)); ok {
		t.Error("zero reserve priced")
	}
}
