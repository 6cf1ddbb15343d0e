// Package pipeline drives the per-tick ingestion: advance from the
// persisted cursor, reconcile the indexer batch with the RPC block
// scan, deduplicate and suppress across the two sources, and hand the
// survivors to the notifier. The cursor advances only after all tick
// work succeeds, so a crash replays at most one tick.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trypto13/jeet-tracker/chain"
	"github.com/trypto13/jeet-tracker/events"
	"github.com/trypto13/jeet-tracker/indexer"
	"github.com/trypto13/jeet-tracker/matcher"
	"github.com/trypto13/jeet-tracker/metrics"
	"github.com/trypto13/jeet-tracker/scanner"
	"github.com/trypto13/jeet-tracker/store"
	"github.com/trypto13/jeet-tracker/tracker"
)

const (
	blockBatchSize = 10
	sessionLRUCap  = 1000
)

// ChainClient is the subset of the RPC the orchestrator needs.
type ChainClient interface {
	GetBlock(ctx context.Context, height uint64) (*chain.Block, error)
}

// IndexerClient pulls typed event batches.
type IndexerClient interface {
	Events(ctx context.Context, since uint64) (*indexer.EventsResponse, error)
}

// Resolver fills identity gaps lazily.
type Resolver interface {
	Resolve(ctx context.Context, addr string) (*store.Linkage, error)
}

// Notifier receives the surviving events of a tick.
type Notifier interface {
	Dispatch(ctx context.Context, evs []events.WalletEvent) error
	DispatchPriceAlerts(ctx context.Context, alerts []events.PriceAlert) error
}

// Orchestrator owns the tick loop. Ticks are serialized; a tick never
// overlaps its successor.
type Orchestrator struct {
	st       *store.Store
	rpc      ChainClient
	idx      IndexerClient
	resolver Resolver
	tracker  *tracker.Tracker
	notifier Notifier
	interval time.Duration
	lru      *txLRU
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Store        *store.Store
	Chain        ChainClient
	Indexer      IndexerClient
	Resolver     Resolver
	Tracker      *tracker.Tracker
	Notifier     Notifier
	PollInterval time.Duration
}

func New(cfg Config) *Orchestrator {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Orchestrator{
		st:       cfg.Store,
		rpc:      cfg.Chain,
		idx:      cfg.Indexer,
		resolver: cfg.Resolver,
		tracker:  cfg.Tracker,
		notifier: cfg.Notifier,
		interval: interval,
		lru:      newTxLRU(sessionLRUCap),
	}
}

// Run ticks until the context is cancelled. A failed tick leaves the
// cursor untouched and is retried on the next interval.
func (o *Orchestrator) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := o.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				metrics.TicksTotal.WithLabelValues("failed").Inc()
				log.Printf("[pipeline] tick failed (cursor kept): %v", err)
				continue
			}
			metrics.TicksTotal.WithLabelValues("ok").Inc()
		}
	}
}

// Tick runs one full pass of the tick protocol.
func (o *Orchestrator) Tick(ctx context.Context) error {
	// Step 1: cursor and indexer batch.
	cursor := o.st.Cursor()
	since := cursor + 1
	if since < 1 {
		since = 1
	}
	batch, err := o.idx.Events(ctx, since)
	if err != nil {
		return fmt.Errorf("indexer events since %d: %w", since, err)
	}
	head := batch.LastIndexedBlock
	metrics.ChainHead.Set(float64(head))
	if head <= cursor {
		return nil // no work
	}

	// Step 2: identity gaps and UTXO seeding.
	if err := o.resolveGaps(ctx); err != nil {
		return err
	}
	proj := o.st.Projection()
	metrics.TrackedWallets.Set(float64(len(o.st.TrackedPrimaries())))

	// Step 3: indexer projection.
	mres := matcher.Project(batch, proj, o.st.NFTContracts())

	// Step 4: RPC block scan over (cursor, head], chunked.
	btcEvents, inferred, err := o.scanBlocks(ctx, cursor+1, head, proj)
	if err != nil {
		return err
	}

	// Step 5: promote inferred sends with no confirmed spend.
	confirmed := make(map[string]struct{})
	for i := range btcEvents {
		if btcEvents[i].Kind == events.BTCSent {
			confirmed[btcEvents[i].TxHash] = struct{}{}
		}
	}
	for _, inf := range inferred {
		if _, ok := confirmed[inf.TxHash]; ok {
			continue
		}
		btcEvents = append(btcEvents, events.WalletEvent{
			Kind:            events.BTCSent,
			Address:         inf.Address,
			TxHash:          inf.TxHash,
			BlockHeight:     inf.BlockHeight,
			Direction:       events.DirOut,
			Satoshis:        inf.TotalSent,
			Counterparty:    inf.Counterparty,
			RecipientAmount: inf.TotalSent,
		})
	}

	// Steps 6-7: cross-source dedup, then BTC suppression.
	all := append(mres.Events, btcEvents...)
	all = dedupEvents(all)
	all = filterSuppressed(all, buildSuppressionSet(all))

	// Step 8: session tx-hash dedup.
	surviving := all[:0]
	for i := range all {
		if o.lru.Contains(all[i].TxHash) {
			continue
		}
		surviving = append(surviving, all[i])
	}

	// Step 9: dispatch, strictly ordered by block height.
	sort.SliceStable(surviving, func(i, j int) bool {
		return surviving[i].BlockHeight < surviving[j].BlockHeight
	})
	if err := o.notifier.Dispatch(ctx, surviving); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	for i := range surviving {
		o.lru.Add(surviving[i].TxHash)
		metrics.EventsDispatched.WithLabelValues(string(surviving[i].Kind)).Inc()
	}

	alerts := matcher.PriceAlerts(batch.PriceChanges, o.st.AllTokenWatches())
	if err := o.notifier.DispatchPriceAlerts(ctx, alerts); err != nil {
		return fmt.Errorf("price alerts: %w", err)
	}

	for primary, contracts := range mres.Seen {
		if err := o.st.AddSeenContracts(ctx, primary, contracts, mres.SeenNFT[primary]); err != nil {
			return err
		}
	}

	// Step 10: commit point.
	if err := o.st.SetCursor(ctx, head); err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	metrics.CursorHeight.Set(float64(head))

	if n := len(surviving); n > 0 {
		log.Printf("[pipeline] blocks %d-%d: %d events dispatched", cursor+1, head, n)
	}
	return nil
}

// resolveGaps runs the resolver for primaries with no stored hash and
// seeds UTXO sets for primaries not yet seeded. Resolver failures are
// absorbed (retried next tick) but block seeding for that primary, so
// a transient RPC error never locks in a primary-only seed. Store and
// seeding failures abort the tick.
func (o *Orchestrator) resolveGaps(ctx context.Context) error {
	failed := make(map[string]struct{})
	for _, primary := range o.st.UnresolvedPrimaries() {
		linkage, err := o.resolver.Resolve(ctx, primary)
		if err != nil {
			log.Printf("[pipeline] resolve %s: %v", primary, err)
			failed[primary] = struct{}{}
			continue
		}
		if linkage == nil {
			continue // no on-chain record yet; primary-only seeding suffices
		}
		if err := o.st.SetLinkage(ctx, primary, linkage); err != nil {
			return err
		}
		if len(o.st.SubscriptionsForPrimary(primary)) == 0 {
			continue // every subscription was a cross-format duplicate
		}
		// The record may appear after a primary-only seed; re-seed so
		// outputs sitting on the alias forms are picked up.
		if err := o.tracker.Seed(ctx, primary, linkage); err != nil {
			return fmt.Errorf("seed %s: %w", primary, err)
		}
	}

	for _, primary := range o.st.UnseededPrimaries() {
		if _, skip := failed[primary]; skip {
			continue // seed once the resolver answers
		}
		var linkage *store.Linkage
		for _, sub := range o.st.SubscriptionsForPrimary(primary) {
			if sub.Linkage != nil {
				linkage = sub.Linkage
				break
			}
		}
		if err := o.tracker.Seed(ctx, primary, linkage); err != nil {
			return fmt.Errorf("seed %s: %w", primary, err)
		}
	}
	return nil
}

// scanBlocks fetches and scans every block in [from, to]. Fetches fan
// out in chunks of blockBatchSize; scans run in height order against
// the evolving UTXO map so same-block spends of fresh outputs are
// caught, and each block's delta is applied before the next block is
// scanned.
func (o *Orchestrator) scanBlocks(ctx context.Context, from, to uint64, proj *store.Projection) ([]events.WalletEvent, []scanner.InferredSend, error) {
	utxoMap := o.st.UTXOMap()

	var evs []events.WalletEvent
	var inferred []scanner.InferredSend

	for chunkStart := from; chunkStart <= to; chunkStart += blockBatchSize {
		chunkEnd := chunkStart + blockBatchSize - 1
		if chunkEnd > to {
			chunkEnd = to
		}

		blocks := make([]*chain.Block, chunkEnd-chunkStart+1)
		g, gctx := errgroup.WithContext(ctx)
		for h := chunkStart; h <= chunkEnd; h++ {
			i := int(h - chunkStart)
			height := h
			g.Go(func() error {
				blk, err := o.rpc.GetBlock(gctx, height)
				if err != nil {
					return fmt.Errorf("get block %d: %w", height, err)
				}
				blocks[i] = blk
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}

		for _, blk := range blocks {
			res := scanner.ScanBlock(blk, proj, utxoMap)
			evs = append(evs, res.Events...)
			inferred = append(inferred, res.InferredSends...)
			if err := o.tracker.ApplyDelta(ctx, res.SpentKeys, res.Received, utxoMap); err != nil {
				return nil, nil, err
			}
		}
	}

	return evs, inferred, nil
}
