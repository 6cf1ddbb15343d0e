package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trypto13/jeet-tracker/chain"
	"github.com/trypto13/jeet-tracker/events"
	"github.com/trypto13/jeet-tracker/indexer"
	"github.com/trypto13/jeet-tracker/store"
	"github.com/trypto13/jeet-tracker/tracker"
)

const testHash = "aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899"

type fakeChain struct {
	blocks map[uint64]*chain.Block
}

func (f *fakeChain) GetBlock(_ context.Context, height uint64) (*chain.Block, error) {
	if blk, ok := f.blocks[height]; ok {
		return blk, nil
	}
	return &chain.Block{Height: height}, nil
}

type fakeIndexer struct {
	resp *indexer.EventsResponse
}

func (f *fakeIndexer) Events(context.Context, uint64) (*indexer.EventsResponse, error) {
	return f.resp, nil
}

type fakeResolver struct {
	linkage *store.Linkage
	err     error
}

func (f *fakeResolver) Resolve(context.Context, string) (*store.Linkage, error) {
	return f.linkage, f.err
}

type fakeNotifier struct {
	dispatched [][]events.WalletEvent
	alerts     []events.PriceAlert
	fail       error
}

func (f *fakeNotifier) Dispatch(_ context.Context, evs []events.WalletEvent) error {
	if f.fail != nil {
		return f.fail
	}
	f.dispatched = append(f.dispatched, evs)
	return nil
}

func (f *fakeNotifier) DispatchPriceAlerts(_ context.Context, alerts []events.PriceAlert) error {
	f.alerts = append(f.alerts, alerts...)
	return nil
}

type fakeUTXOSource struct {
	byAddr map[string][]chain.UTXO
}

func (f fakeUTXOSource) GetUTXOs(_ context.Context, addr string, _ bool) ([]chain.UTXO, error) {
	return f.byAddr[addr], nil
}

// newTestOrchestrator wires a memory store with one resolved, seeded
// wallet at cursor 100 holding prevtx:0 (600000 sats).
func newTestOrchestrator(t *testing.T, idx *fakeIndexer, ch *fakeChain, nt *fakeNotifier) (*Orchestrator, *store.Store) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemStore()

	_, err := st.CreateSubscription(ctx, 1001, "bc1ptracked", "main")
	require.NoError(t, err)
	require.NoError(t, st.SetLinkage(ctx, "bc1ptracked", &store.Linkage{MLDSAHash: testHash}))
	require.NoError(t, st.MarkSeeded(ctx, "bc1ptracked"))
	require.NoError(t, st.InsertUTXOs(ctx, []store.StoredUTXO{
		{TxID: "prevtx", Vout: 0, Value: 600000, Primary: "bc1ptracked"},
	}))
	require.NoError(t, st.SetCursor(ctx, 100))

	o := New(Config{
		Store:    st,
		Chain:    ch,
		Indexer:  idx,
		Resolver: &fakeResolver{},
		Tracker:  tracker.New(fakeUTXOSource{}, st),
		Notifier: nt,
	})
	return o, st
}

func TestTickSwapSuppressesBTCLegs(t *testing.T) {
	// The swap record explains the BTC movement at block 101; the
	// confirmed spend and the change receive must not be dispatched.
	idx := &fakeIndexer{resp: &indexer.EventsResponse{
		LastIndexedBlock: 101,
		Swaps: []indexer.Swap{{
			TxHash: "0xswap", BlockHeight: 101, Contract: "0xtoken",
			Buyer: testHash, BtcSpent: "100000", TokensReceived: "5000000",
		}},
	}}
	ch := &fakeChain{blocks: map[uint64]*chain.Block{
		101: {Height: 101, Transactions: []chain.Transaction{{
			Hash:   "0xswap",
			Inputs: []chain.TxInput{{OriginalTransactionID: "prevtx", OutputTransactionIndex: 0}},
			Outputs: []chain.TxOutput{
				{Index: 0, Value: 100000, ScriptPubKey: chain.ScriptPubKey{Address: "bc1qpool"}},
				{Index: 1, Value: 499500, ScriptPubKey: chain.ScriptPubKey{Address: "bc1ptracked"}},
			},
		}}},
	}}
	nt := &fakeNotifier{}
	o, st := newTestOrchestrator(t, idx, ch, nt)

	require.NoError(t, o.Tick(context.Background()))

	require.Len(t, nt.dispatched, 1)
	evs := nt.dispatched[0]
	require.Len(t, evs, 1)
	require.Equal(t, events.SwapExecuted, evs[0].Kind)
	require.Equal(t, "bc1ptracked", evs[0].Address)
	require.Equal(t, int64(100000), evs[0].Satoshis)

	require.Equal(t, uint64(101), st.Cursor())

	// The spent output is gone, the change output is tracked.
	m := st.UTXOMap()
	_, spent := m[store.Outpoint{TxID: "prevtx", Vout: 0}]
	require.False(t, spent)
	change, ok := m[store.Outpoint{TxID: "0xswap", Vout: 1}]
	require.True(t, ok)
	require.Equal(t, int64(499500), change.Value)
}

func TestTickSessionLRUBlocksRedelivery(t *testing.T) {
	idx := &fakeIndexer{resp: &indexer.EventsResponse{
		LastIndexedBlock: 101,
		Swaps: []indexer.Swap{{
			TxHash: "0xswap", BlockHeight: 101, Contract: "0xtoken",
			Buyer: testHash, BtcSpent: "100000", TokensReceived: "5000000",
		}},
	}}
	ch := &fakeChain{blocks: map[uint64]*chain.Block{}}
	nt := &fakeNotifier{}
	o, st := newTestOrchestrator(t, idx, ch, nt)

	require.NoError(t, o.Tick(context.Background()))
	require.Len(t, nt.dispatched, 1)
	require.Len(t, nt.dispatched[0], 1)

	// The indexer window overlaps and re-delivers the same swap.
	idx.resp.LastIndexedBlock = 102
	require.NoError(t, o.Tick(context.Background()))

	require.Len(t, nt.dispatched, 2)
	require.Empty(t, nt.dispatched[1])
	require.Equal(t, uint64(102), st.Cursor())
}

func TestTickPromotesInferredSend(t *testing.T) {
	// No tracked input in the UTXO map, but tracked change plus an
	// external output: the send is inferred with the external total.
	idx := &fakeIndexer{resp: &indexer.EventsResponse{LastIndexedBlock: 101}}
	ch := &fakeChain{blocks: map[uint64]*chain.Block{
		101: {Height: 101, Transactions: []chain.Transaction{{
			Hash: "0xmystery",
			Outputs: []chain.TxOutput{
				{Index: 0, Value: 250000, ScriptPubKey: chain.ScriptPubKey{Address: "bc1qother"}},
				{Index: 1, Value: 80000, ScriptPubKey: chain.ScriptPubKey{Address: "bc1ptracked"}},
			},
		}}},
	}}
	nt := &fakeNotifier{}
	o, _ := newTestOrchestrator(t, idx, ch, nt)

	require.NoError(t, o.Tick(context.Background()))

	require.Len(t, nt.dispatched, 1)
	var sent *events.WalletEvent
	for i := range nt.dispatched[0] {
		if nt.dispatched[0][i].Kind == events.BTCSent {
			sent = &nt.dispatched[0][i]
		}
	}
	require.NotNil(t, sent, "inferred send was not promoted")
	require.Equal(t, int64(250000), sent.Satoshis)
	require.Equal(t, int64(250000), sent.RecipientAmount)
	require.Equal(t, "bc1qother", sent.Counterparty)
}

func TestTickConfirmedSpendSkipsInferred(t *testing.T) {
	// Both paths fire for the same tx; only the confirmed spend counts.
	idx := &fakeIndexer{resp: &indexer.EventsResponse{LastIndexedBlock: 101}}
	ch := &fakeChain{blocks: map[uint64]*chain.Block{
		101: {Height: 101, Transactions: []chain.Transaction{{
			Hash:   "0xspend",
			Inputs: []chain.TxInput{{OriginalTransactionID: "prevtx", OutputTransactionIndex: 0}},
			Outputs: []chain.TxOutput{
				{Index: 0, Value: 300000, ScriptPubKey: chain.ScriptPubKey{Address: "bc1qrecipient"}},
				{Index: 1, Value: 299500, ScriptPubKey: chain.ScriptPubKey{Address: "bc1ptracked"}},
			},
		}}},
	}}
	nt := &fakeNotifier{}
	o, _ := newTestOrchestrator(t, idx, ch, nt)

	require.NoError(t, o.Tick(context.Background()))

	require.Len(t, nt.dispatched, 1)
	var sends []events.WalletEvent
	for _, e := range nt.dispatched[0] {
		if e.Kind == events.BTCSent {
			sends = append(sends, e)
		}
	}
	require.Len(t, sends, 1)
	// Confirmed path: satoshis is the spent input, recipient is the
	// first external output's value.
	require.Equal(t, int64(600000), sends[0].Satoshis)
	require.Equal(t, int64(300000), sends[0].RecipientAmount)
}

func TestTickSameBlockReceiveThenSpend(t *testing.T) {
	// tx "fund" pays the tracked wallet, tx "drain" spends that output
	// inside the same block. Both legs must be dispatched and the
	// outpoint must never survive in the stored UTXO set.
	idx := &fakeIndexer{resp: &indexer.EventsResponse{LastIndexedBlock: 101}}
	ch := &fakeChain{blocks: map[uint64]*chain.Block{
		101: {Height: 101, Transactions: []chain.Transaction{
			{
				Hash: "fund",
				Outputs: []chain.TxOutput{
					{Index: 0, Value: 100000, ScriptPubKey: chain.ScriptPubKey{Address: "bc1ptracked"}},
				},
			},
			{
				Hash:   "drain",
				Inputs: []chain.TxInput{{OriginalTransactionID: "fund", OutputTransactionIndex: 0}},
				Outputs: []chain.TxOutput{
					{Index: 0, Value: 99500, ScriptPubKey: chain.ScriptPubKey{Address: "bc1qelsewhere"}},
				},
			},
		}},
	}}
	nt := &fakeNotifier{}
	o, st := newTestOrchestrator(t, idx, ch, nt)

	require.NoError(t, o.Tick(context.Background()))

	require.Len(t, nt.dispatched, 1)
	var sent *events.WalletEvent
	for i := range nt.dispatched[0] {
		if nt.dispatched[0][i].Kind == events.BTCSent {
			sent = &nt.dispatched[0][i]
		}
	}
	require.NotNil(t, sent, "same-block spend was not dispatched")
	require.Equal(t, "drain", sent.TxHash)
	require.Equal(t, int64(100000), sent.Satoshis)
	require.Equal(t, "bc1qelsewhere", sent.Counterparty)

	m := st.UTXOMap()
	require.NotContains(t, m, store.Outpoint{TxID: "fund", Vout: 0})
	require.Contains(t, m, store.Outpoint{TxID: "prevtx", Vout: 0})
}

func TestTickSeedingWaitsForResolver(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	_, err := st.CreateSubscription(ctx, 1001, "bc1punresolved", "")
	require.NoError(t, err)
	require.NoError(t, st.SetCursor(ctx, 100))

	res := &fakeResolver{err: errors.New("rpc timeout")}
	src := fakeUTXOSource{byAddr: map[string][]chain.UTXO{
		"bc1punresolved": {{TransactionID: "old", OutputIndex: 0, Value: 50000}},
		"bc1qalias":      {{TransactionID: "alias-fund", OutputIndex: 1, Value: 75000}},
	}}
	idx := &fakeIndexer{resp: &indexer.EventsResponse{LastIndexedBlock: 101}}
	o := New(Config{
		Store:    st,
		Chain:    &fakeChain{},
		Indexer:  idx,
		Resolver: res,
		Tracker:  tracker.New(src, st),
		Notifier: &fakeNotifier{},
	})

	// Resolution fails transiently: the wallet must stay unseeded, or a
	// nil-linkage seed would become permanent and the alias forms would
	// never be fetched.
	require.NoError(t, o.Tick(ctx))
	require.Contains(t, st.UnseededPrimaries(), "bc1punresolved")
	require.Empty(t, st.UTXOMap())

	// The resolver recovers; seeding covers every linked form.
	res.err = nil
	res.linkage = &store.Linkage{MLDSAHash: testHash, P2WPKH: "bc1qalias"}
	idx.resp.LastIndexedBlock = 102
	require.NoError(t, o.Tick(ctx))

	require.Empty(t, st.UnseededPrimaries())
	m := st.UTXOMap()
	require.Contains(t, m, store.Outpoint{TxID: "old", Vout: 0})
	require.Contains(t, m, store.Outpoint{TxID: "alias-fund", Vout: 1})
}

func TestTickReseedsWhenLinkageArrivesLate(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemStore()
	_, err := st.CreateSubscription(ctx, 1001, "bc1pnorecord", "")
	require.NoError(t, err)
	require.NoError(t, st.SetCursor(ctx, 100))

	res := &fakeResolver{} // no on-chain record yet
	src := fakeUTXOSource{byAddr: map[string][]chain.UTXO{
		"bc1qlatealias": {{TransactionID: "early", OutputIndex: 0, Value: 42000}},
	}}
	idx := &fakeIndexer{resp: &indexer.EventsResponse{LastIndexedBlock: 101}}
	o := New(Config{
		Store:    st,
		Chain:    &fakeChain{},
		Indexer:  idx,
		Resolver: res,
		Tracker:  tracker.New(src, st),
		Notifier: &fakeNotifier{},
	})

	// No record: primary-only seeding runs and completes.
	require.NoError(t, o.Tick(ctx))
	require.Empty(t, st.UnseededPrimaries())
	require.Empty(t, st.UTXOMap())

	// The owner record lands later; the linkage is stored and the
	// wallet re-seeds so outputs on the alias forms are captured.
	res.linkage = &store.Linkage{MLDSAHash: testHash, P2WPKH: "bc1qlatealias"}
	idx.resp.LastIndexedBlock = 102
	require.NoError(t, o.Tick(ctx))
	require.Contains(t, st.UTXOMap(), store.Outpoint{TxID: "early", Vout: 0})
}

func TestTickDispatchFailureKeepsCursor(t *testing.T) {
	idx := &fakeIndexer{resp: &indexer.EventsResponse{
		LastIndexedBlock: 101,
		Swaps: []indexer.Swap{{
			TxHash: "0xswap", BlockHeight: 101, Contract: "0xtoken",
			Buyer: testHash, BtcSpent: "100000", TokensReceived: "5000000",
		}},
	}}
	ch := &fakeChain{blocks: map[uint64]*chain.Block{}}
	nt := &fakeNotifier{fail: errors.New("telegram down")}
	o, st := newTestOrchestrator(t, idx, ch, nt)

	require.Error(t, o.Tick(context.Background()))
	require.Equal(t, uint64(100), st.Cursor())

	// Recovery: the next tick re-delivers because the LRU never saw it.
	nt.fail = nil
	require.NoError(t, o.Tick(context.Background()))
	require.Len(t, nt.dispatched, 1)
	require.Len(t, nt.dispatched[0], 1)
	require.Equal(t, uint64(101), st.Cursor())
}

func TestTickNoWorkBelowCursor(t *testing.T) {
	idx := &fakeIndexer{resp: &indexer.EventsResponse{LastIndexedBlock: 100}}
	nt := &fakeNotifier{}
	o, st := newTestOrchestrator(t, idx, &fakeChain{}, nt)

	require.NoError(t, o.Tick(context.Background()))
	require.Empty(t, nt.dispatched)
	require.Equal(t, uint64(100), st.Cursor())
}
