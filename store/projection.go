package store

// Projection is the identity view the hot path matches against.
// TrackedSet holds every address that can appear in block data (all
// primaries plus every linked form). MldsaMap is keyed by primary only,
// so indexer events attribute to the subscription address and never to
// an alias. CanonicalMap sends any linked alias back to its primary.
type Projection struct {
	TrackedSet   map[string]struct{}
	MldsaMap     map[string]string
	CanonicalMap map[string]string
}

// Tracked reports membership in the tracked set.
func (p *Projection) Tracked(addr string) bool {
	_, ok := p.TrackedSet[addr]
	return ok
}

// Canonical maps an address to its primary, or returns it unchanged if
// it already is one.
func (p *Projection) Canonical(addr string) string {
	if primary, ok := p.CanonicalMap[addr]; ok {
		return primary
	}
	return addr
}

// Projection builds the identity projection from the current cache.
// Rebuilt at the start of every tick; O(subscriptions).
func (s *Store) Projection() *Projection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p := &Projection{
		TrackedSet:   make(map[string]struct{}),
		MldsaMap:     make(map[string]string),
		CanonicalMap: make(map[string]string),
	}
	for _, sub := range s.subs {
		p.TrackedSet[sub.Address] = struct{}{}
		if sub.Linkage == nil {
			continue
		}
		if sub.Linkage.MLDSAHash != "" {
			p.MldsaMap[sub.Address] = sub.Linkage.MLDSAHash
		}
		for _, alias := range sub.Linkage.Aliases() {
			p.TrackedSet[alias] = struct{}{}
			if alias != sub.Address {
				p.CanonicalMap[alias] = sub.Address
			}
		}
	}
	return p
}

// UTXORef is the per-tick view of one tracked output.
type UTXORef struct {
	Primary string
	Value   int64
}

// UTXOMap returns outpoint -> owner/value for the whole tracked set.
// Rebuilt once per tick; the orchestrator layers block deltas on top.
func (s *Store) UTXOMap() map[Outpoint]UTXORef {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := make(map[Outpoint]UTXORef, len(s.utxos))
	for op, u := range s.utxos {
		m[op] = UTXORef{Primary: u.Primary, Value: u.Value}
	}
	return m
}
