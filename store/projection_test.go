package store

import (
	"context"
	"testing"
)

func TestProjectionTracksAliases(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore()

	st.CreateSubscription(ctx, 1, "bc1pprimary", "")
	st.SetLinkage(ctx, "bc1pprimary", &Linkage{
		MLDSAHash: "deadbeef",
		P2TR:      "bc1pprimary", // same form as the primary
		P2WPKH:    "bc1qsegwit",
		P2PKH:     "1Legacy",
		CSV1:      "bc1pcsvform",
	})

	p := st.Projection()

	for _, addr := range []string{"bc1pprimary", "bc1qsegwit", "1Legacy", "bc1pcsvform"} {
		if !p.Tracked(addr) {
			t.Errorf("%s not tracked", addr)
		}
	}
	if p.Tracked("bc1qstranger") {
		t.Errorf("untracked address reported tracked")
	}

	// Aliases normalize to the primary; the primary maps to itself.
	if got := p.Canonical("bc1qsegwit"); got != "bc1pprimary" {
		t.Errorf("Canonical(alias) = %s", got)
	}
	if got := p.Canonical("bc1pprimary"); got != "bc1pprimary" {
		t.Errorf("Canonical(primary) = %s", got)
	}
	if got := p.Canonical("bc1qstranger"); got != "bc1qstranger" {
		t.Errorf("Canonical(unknown) = %s", got)
	}

	// The hash is keyed by the primary only, never by an alias.
	if p.MldsaMap["bc1pprimary"] != "deadbeef" {
		t.Errorf("MldsaMap missing primary")
	}
	if _, ok := p.MldsaMap["bc1qsegwit"]; ok {
		t.Errorf("MldsaMap keyed by alias")
	}
}

func TestProjectionWithoutLinkage(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore()
	st.CreateSubscription(ctx, 1, "bc1pprimary", "")

	p := st.Projection()
	if !p.Tracked("bc1pprimary") {
		t.Fatalf("primary not tracked before resolution")
	}
	if len(p.MldsaMap) != 0 {
		t.Errorf("unexpected hash entry: %v", p.MldsaMap)
	}
}

func TestUTXOMapSnapshot(t *testing.T) {
	ctx := context.Background()
	st := NewMemStore()

	st.InsertUTXOs(ctx, []StoredUTXO{
		{TxID: "tx1", Vout: 0, Value: 1000, Primary: "bc1paddr"},
		{TxID: "tx1", Vout: 1, Value: 2000, Primary: "bc1paddr"},
	})

	m := st.UTXOMap()
	if len(m) != 2 {
		t.Fatalf("map size = %d, want 2", len(m))
	}
	ref := m[Outpoint{TxID: "tx1", Vout: 1}]
	if ref.Value != 2000 || ref.Primary != "bc1paddr" {
		t.Errorf("ref = %+v", ref)
	}

	// The snapshot is detached from the store.
	delete(m, Outpoint{TxID: "tx1", Vout: 0})
	if len(st.UTXOMap()) != 2 {
		t.Errorf("mutating the snapshot affected the store")
	}
}
