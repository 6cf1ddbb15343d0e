// Package store is the durable state layer: subscriptions, identity
// linkages, the tracked UTXO set, access control and the scan cursor.
// Long-term persistence is a Mongo document store; a full in-memory
// cache is hydrated at start and kept coherent by write-through on
// every mutation. All reads are served from the cache.
package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collSubscriptions = "subscriptions"
	collTokenWatches  = "token_watches"
	collUTXOs         = "utxos"
	collAuthorized    = "authorized_chats"
	collAccessCodes   = "access_codes"
	collPaid          = "paid_subscriptions"
	collSeenContracts = "seen_contracts"
	collState         = "state"

	keyCursor = "cursor"
)

var (
	ErrAlreadyTracked = errors.New("address already tracked by this chat")
	ErrNotFound       = errors.New("not found")
	ErrCodeUnknown    = errors.New("unknown access code")
	ErrCodeUsed       = errors.New("access code already redeemed")
	ErrCodeExpired    = errors.New("access code expired")
	ErrWatchExists    = errors.New("contract already watched by this chat")
)

// persister is the write-through sink. The mongo implementation is used
// in production; tests run against the no-op one.
type persister interface {
	upsert(ctx context.Context, coll string, id any, doc any) error
	remove(ctx context.Context, coll string, id any) error
}

type mongoPersister struct {
	db *mongo.Database
}

func (m *mongoPersister) upsert(ctx context.Context, coll string, id any, doc any) error {
	_, err := m.db.Collection(coll).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: id}}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert %s: %w", coll, err)
	}
	return nil
}

func (m *mongoPersister) remove(ctx context.Context, coll string, id any) error {
	_, err := m.db.Collection(coll).DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("delete %s: %w", coll, err)
	}
	return nil
}

type nopPersister struct{}

func (nopPersister) upsert(context.Context, string, any, any) error { return nil }
func (nopPersister) remove(context.Context, string, any) error      { return nil }

// Store holds the in-memory cache and the write-through sink. Readers
// take the read lock; the orchestrator and command handlers touch
// disjoint keys so contention is negligible.
type Store struct {
	mu sync.RWMutex
	p  persister
	db *mongo.Database // nil for memory-only stores

	subs          map[string]*Subscription // id -> sub
	subByChatAddr map[string]string        // chatId|address -> id
	utxos         map[Outpoint]*StoredUTXO
	authorized    map[int64]*AuthorizedChat
	codes         map[string]*AccessCode
	paid          map[int64]*PaidSubscription
	watches       map[string]*TokenWatch
	watchByCC     map[string]string // chatId|contract -> id
	seen          map[string]*SeenContracts
	state         map[string]string
}

func newStore(p persister, db *mongo.Database) *Store {
	return &Store{
		p:             p,
		db:            db,
		subs:          make(map[string]*Subscription),
		subByChatAddr: make(map[string]string),
		utxos:         make(map[Outpoint]*StoredUTXO),
		authorized:    make(map[int64]*AuthorizedChat),
		codes:         make(map[string]*AccessCode),
		paid:          make(map[int64]*PaidSubscription),
		watches:       make(map[string]*TokenWatch),
		watchByCC:     make(map[string]string),
		seen:          make(map[string]*SeenContracts),
		state:         make(map[string]string),
	}
}

// NewStore creates a Mongo-backed store. Call EnsureIndexes and LoadAll
// before serving.
func NewStore(db *mongo.Database) *Store {
	return newStore(&mongoPersister{db: db}, db)
}

// NewMemStore creates a store with no durable backing. Tests only.
func NewMemStore() *Store {
	return newStore(nopPersister{}, nil)
}

func chatAddrKey(chatID int64, addr string) string {
	return fmt.Sprintf("%d|%s", chatID, addr)
}

// EnsureIndexes creates the contractual unique indexes. Startup fails
// if any cannot be built.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	uniq := options.Index().SetUnique(true)
	sparseUniq := options.Index().SetUnique(true).SetSparse(true)

	type idx struct {
		coll string
		keys bson.D
		opts *options.IndexOptions
	}
	indexes := []idx{
		{collSubscriptions, bson.D{{Key: "chatId", Value: 1}, {Key: "address", Value: 1}}, uniq},
		{collTokenWatches, bson.D{{Key: "chatId", Value: 1}, {Key: "contract", Value: 1}}, uniq},
		{collUTXOs, bson.D{{Key: "txid", Value: 1}, {Key: "vout", Value: 1}}, uniq},
		{collUTXOs, bson.D{{Key: "address", Value: 1}}, nil},
		{collAccessCodes, bson.D{{Key: "fundingTx", Value: 1}}, sparseUniq},
	}
	for _, ix := range indexes {
		model := mongo.IndexModel{Keys: ix.keys, Options: ix.opts}
		if _, err := s.db.Collection(ix.coll).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("index %s: %w", ix.coll, err)
		}
	}
	return nil
}

// LoadAll hydrates the cache from the document store.
func (s *Store) LoadAll(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := loadColl(ctx, s.db, collSubscriptions, func(v *Subscription) {
		s.subs[v.ID] = v
		s.subByChatAddr[chatAddrKey(v.ChatID, v.Address)] = v.ID
	}); err != nil {
		return err
	}
	if err := loadColl(ctx, s.db, collUTXOs, func(v *StoredUTXO) {
		s.utxos[v.Outpoint()] = v
	}); err != nil {
		return err
	}
	if err := loadColl(ctx, s.db, collAuthorized, func(v *AuthorizedChat) {
		s.authorized[v.ChatID] = v
	}); err != nil {
		return err
	}
	if err := loadColl(ctx, s.db, collAccessCodes, func(v *AccessCode) {
		s.codes[v.Code] = v
	}); err != nil {
		return err
	}
	if err := loadColl(ctx, s.db, collPaid, func(v *PaidSubscription) {
		s.paid[v.ChatID] = v
	}); err != nil {
		return err
	}
	if err := loadColl(ctx, s.db, collTokenWatches, func(v *TokenWatch) {
		s.watches[v.ID] = v
		s.watchByCC[chatAddrKey(v.ChatID, v.Contract)] = v.ID
	}); err != nil {
		return err
	}
	if err := loadColl(ctx, s.db, collSeenContracts, func(v *SeenContracts) {
		s.seen[v.Primary] = v
	}); err != nil {
		return err
	}
	if err := loadColl(ctx, s.db, collState, func(v *StateEntry) {
		s.state[v.Key] = v.Value
	}); err != nil {
		return err
	}

	log.Printf("[store] loaded %d subscriptions, %d utxos, %d watches, %d paid chats",
		len(s.subs), len(s.utxos), len(s.watches), len(s.paid))
	return nil
}

func loadColl[T any](ctx context.Context, db *mongo.Database, coll string, add func(*T)) error {
	cur, err := db.Collection(coll).Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("load %s: %w", coll, err)
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		v := new(T)
		if err := cur.Decode(v); err != nil {
			return fmt.Errorf("decode %s: %w", coll, err)
		}
		add(v)
	}
	return cur.Err()
}

// ---- Subscriptions ----

// CreateSubscription adds a watch for a chat. Per-chat limits are the
// caller's business; uniqueness per (chat, address) is enforced here.
func (s *Store) CreateSubscription(ctx context.Context, chatID int64, addr, label string) (*Subscription, error) {
	s.mu.Lock()
	key := chatAddrKey(chatID, addr)
	if _, dup := s.subByChatAddr[key]; dup {
		s.mu.Unlock()
		return nil, ErrAlreadyTracked
	}
	sub := &Subscription{
		ID:        newID(),
		ChatID:    chatID,
		Address:   addr,
		Label:     label,
		CreatedAt: time.Now().UTC(),
	}
	s.subs[sub.ID] = sub
	s.subByChatAddr[key] = sub.ID
	cp := *sub
	s.mu.Unlock()

	if err := s.p.upsert(ctx, collSubscriptions, sub.ID, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// DeleteSubscription removes a chat's watch by id. Orphaned UTXOs for
// the address are removed as well if no other chat tracks it.
func (s *Store) DeleteSubscription(ctx context.Context, chatID int64, id string) error {
	s.mu.Lock()
	sub, ok := s.subs[id]
	if !ok || sub.ChatID != chatID {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.subs, id)
	delete(s.subByChatAddr, chatAddrKey(chatID, sub.Address))

	stillTracked := false
	for _, other := range s.subs {
		if other.Address == sub.Address {
			stillTracked = true
			break
		}
	}
	var orphaned []Outpoint
	if !stillTracked {
		for op, u := range s.utxos {
			if u.Primary == sub.Address {
				orphaned = append(orphaned, op)
			}
		}
		for _, op := range orphaned {
			delete(s.utxos, op)
		}
	}
	s.mu.Unlock()

	if err := s.p.remove(ctx, collSubscriptions, id); err != nil {
		return err
	}
	for _, op := range orphaned {
		if err := s.p.remove(ctx, collUTXOs, op.String()); err != nil {
			return err
		}
	}
	return nil
}

// SubscriptionsForChat returns copies of the chat's watches, oldest
// first.
func (s *Store) SubscriptionsForChat(chatID int64) []Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Subscription
	for _, sub := range s.subs {
		if sub.ChatID == chatID {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// SubscriptionsForPrimary returns copies of every subscription on a
// primary address, across chats.
func (s *Store) SubscriptionsForPrimary(primary string) []Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Subscription
	for _, sub := range s.subs {
		if sub.Address == primary {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CountForChat returns the number of watches a chat holds.
func (s *Store) CountForChat(chatID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sub := range s.subs {
		if sub.ChatID == chatID {
			n++
		}
	}
	return n
}

// ChatsTracking returns the chat ids subscribed to a primary address.
// O(N) over the cache; N is small.
func (s *Store) ChatsTracking(primary string) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int64
	for _, sub := range s.subs {
		if sub.Address == primary {
			out = append(out, sub.ChatID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FindByMLDSA returns the chat's subscription whose linkage carries the
// given hash, if any. Used by track to refuse cross-format duplicates.
func (s *Store) FindByMLDSA(chatID int64, hash string) *Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.ChatID == chatID && sub.Linkage != nil && sub.Linkage.MLDSAHash == hash {
			cp := *sub
			return &cp
		}
	}
	return nil
}

// TrackedPrimaries returns the deduplicated set of primary addresses
// across all subscriptions.
func (s *Store) TrackedPrimaries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(map[string]struct{})
	for _, sub := range s.subs {
		set[sub.Address] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// UnresolvedPrimaries returns primaries with no stored identity hash.
func (s *Store) UnresolvedPrimaries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(map[string]struct{})
	for _, sub := range s.subs {
		if sub.Linkage == nil {
			set[sub.Address] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// SetLinkage attaches a resolved linkage to every subscription on the
// given primary address. One subscription per chat per identity hash:
// if a chat already tracks the same hash under another address form,
// the subscription on this primary is dropped instead of linked. Track
// refuses such duplicates up front, but two formats of one wallet can
// both be pending while resolution lags.
func (s *Store) SetLinkage(ctx context.Context, primary string, l *Linkage) error {
	s.mu.Lock()
	var updated, dropped []Subscription
	for _, sub := range s.subs {
		if sub.Address != primary {
			continue
		}
		if dup := s.otherSubWithHashLocked(sub.ChatID, l.MLDSAHash, primary); l.MLDSAHash != "" && dup != nil {
			delete(s.subs, sub.ID)
			delete(s.subByChatAddr, chatAddrKey(sub.ChatID, sub.Address))
			dropped = append(dropped, *sub)
			log.Printf("[store] chat %d already tracks %s as %s, dropping duplicate %s",
				sub.ChatID, l.MLDSAHash, dup.Address, sub.Address)
			continue
		}
		cp := *l
		sub.Linkage = &cp
		updated = append(updated, *sub)
	}

	var orphaned []Outpoint
	if len(dropped) > 0 {
		stillTracked := false
		for _, other := range s.subs {
			if other.Address == primary {
				stillTracked = true
				break
			}
		}
		if !stillTracked {
			for op, u := range s.utxos {
				if u.Primary == primary {
					orphaned = append(orphaned, op)
				}
			}
			for _, op := range orphaned {
				delete(s.utxos, op)
			}
		}
	}
	s.mu.Unlock()

	for i := range updated {
		if err := s.p.upsert(ctx, collSubscriptions, updated[i].ID, &updated[i]); err != nil {
			return err
		}
	}
	for i := range dropped {
		if err := s.p.remove(ctx, collSubscriptions, dropped[i].ID); err != nil {
			return err
		}
	}
	for _, op := range orphaned {
		if err := s.p.remove(ctx, collUTXOs, op.String()); err != nil {
			return err
		}
	}
	return nil
}

// otherSubWithHashLocked finds a chat's subscription carrying the hash
// on a different primary. Caller holds the lock.
func (s *Store) otherSubWithHashLocked(chatID int64, hash, primary string) *Subscription {
	for _, sub := range s.subs {
		if sub.ChatID == chatID && sub.Address != primary &&
			sub.Linkage != nil && sub.Linkage.MLDSAHash == hash {
			return sub
		}
	}
	return nil
}

// UnseededPrimaries returns primaries whose UTXO set has not been
// seeded from the node yet.
func (s *Store) UnseededPrimaries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(map[string]struct{})
	for _, sub := range s.subs {
		if !sub.UTXOSeeded {
			set[sub.Address] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// MarkSeeded records that the primary's UTXO set was seeded.
func (s *Store) MarkSeeded(ctx context.Context, primary string) error {
	s.mu.Lock()
	var updated []Subscription
	for _, sub := range s.subs {
		if sub.Address == primary && !sub.UTXOSeeded {
			sub.UTXOSeeded = true
			updated = append(updated, *sub)
		}
	}
	s.mu.Unlock()

	for i := range updated {
		if err := s.p.upsert(ctx, collSubscriptions, updated[i].ID, &updated[i]); err != nil {
			return err
		}
	}
	return nil
}

// ---- UTXOs ----

// InsertUTXOs upserts outputs into the tracked set.
func (s *Store) InsertUTXOs(ctx context.Context, utxos []StoredUTXO) error {
	if len(utxos) == 0 {
		return nil
	}
	s.mu.Lock()
	for i := range utxos {
		u := utxos[i]
		u.ID = u.Outpoint().String()
		cp := u
		s.utxos[u.Outpoint()] = &cp
		utxos[i] = u
	}
	s.mu.Unlock()

	for i := range utxos {
		if err := s.p.upsert(ctx, collUTXOs, utxos[i].ID, &utxos[i]); err != nil {
			return err
		}
	}
	return nil
}

// DeleteUTXOs removes spent outputs.
func (s *Store) DeleteUTXOs(ctx context.Context, keys []Outpoint) error {
	if len(keys) == 0 {
		return nil
	}
	s.mu.Lock()
	for _, k := range keys {
		delete(s.utxos, k)
	}
	s.mu.Unlock()

	for _, k := range keys {
		if err := s.p.remove(ctx, collUTXOs, k.String()); err != nil {
			return err
		}
	}
	return nil
}

// UTXOsForPrimary returns copies of the stored outputs for a primary.
func (s *Store) UTXOsForPrimary(primary string) []StoredUTXO {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []StoredUTXO
	for _, u := range s.utxos {
		if u.Primary == primary {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---- Cursor ----

// Cursor returns the greatest block height for which all tick work
// succeeded, or 0 before the first tick.
func (s *Store) Cursor() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, err := strconv.ParseUint(s.state[keyCursor], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// SetCursor advances the cursor. Lower values are ignored; the cursor
// is monotonic non-decreasing.
func (s *Store) SetCursor(ctx context.Context, height uint64) error {
	s.mu.Lock()
	cur, _ := strconv.ParseUint(s.state[keyCursor], 10, 64)
	if height < cur {
		s.mu.Unlock()
		return nil
	}
	val := strconv.FormatUint(height, 10)
	s.state[keyCursor] = val
	s.mu.Unlock()

	return s.p.upsert(ctx, collState, keyCursor, &StateEntry{Key: keyCursor, Value: val})
}

// ---- Access control ----

// IsAuthorized reports whether the chat passed the password gate or
// redeemed a code.
func (s *Store) IsAuthorized(chatID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.authorized[chatID]
	return ok
}

// Authorize records the chat as authorized.
func (s *Store) Authorize(ctx context.Context, chatID int64) error {
	s.mu.Lock()
	if _, ok := s.authorized[chatID]; ok {
		s.mu.Unlock()
		return nil
	}
	ac := &AuthorizedChat{ChatID: chatID, AuthorizedAt: time.Now().UTC()}
	s.authorized[chatID] = ac
	cp := *ac
	s.mu.Unlock()

	return s.p.upsert(ctx, collAuthorized, chatID, &cp)
}

// UpsertAccessCode inserts a code (payment pipeline / admin path).
func (s *Store) UpsertAccessCode(ctx context.Context, code *AccessCode) error {
	s.mu.Lock()
	cp := *code
	s.codes[code.Code] = &cp
	out := cp
	s.mu.Unlock()
	return s.p.upsert(ctx, collAccessCodes, out.Code, &out)
}

// RedeemCode consumes an access code for a chat and extends the chat's
// paid subscription by the code's duration. Redemption is idempotent
// with respect to the caller chat: redeeming a code you already used is
// a no-op success.
func (s *Store) RedeemCode(ctx context.Context, code string, chatID int64, now time.Time) (int, error) {
	s.mu.Lock()
	c, ok := s.codes[code]
	if !ok {
		s.mu.Unlock()
		return 0, ErrCodeUnknown
	}
	if c.Redeemed {
		days := c.DurationDays
		by := c.RedeemedBy
		s.mu.Unlock()
		if by == chatID {
			return days, nil
		}
		return 0, ErrCodeUsed
	}
	if !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt) {
		s.mu.Unlock()
		return 0, ErrCodeExpired
	}

	c.Redeemed = true
	c.RedeemedBy = chatID
	codeCp := *c

	p, ok := s.paid[chatID]
	base := now
	if ok && p.ExpiresAt.After(now) {
		base = p.ExpiresAt
	}
	paidCp := PaidSubscription{
		ChatID:    chatID,
		ExpiresAt: base.AddDate(0, 0, c.DurationDays),
		Code:      code,
	}
	if ok {
		paidCp.PaidBy = p.PaidBy
	}
	s.paid[chatID] = &paidCp
	ac := &AuthorizedChat{ChatID: chatID, AuthorizedAt: now.UTC()}
	if _, had := s.authorized[chatID]; !had {
		s.authorized[chatID] = ac
	}
	s.mu.Unlock()

	if err := s.p.upsert(ctx, collAccessCodes, code, &codeCp); err != nil {
		return 0, err
	}
	if err := s.p.upsert(ctx, collPaid, chatID, &paidCp); err != nil {
		return 0, err
	}
	if err := s.p.upsert(ctx, collAuthorized, chatID, ac); err != nil {
		return 0, err
	}
	return codeCp.DurationDays, nil
}

// HasActiveSubscription reports whether the chat's paid subscription is
// live at the given instant.
func (s *Store) HasActiveSubscription(chatID int64, now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.paid[chatID]
	return ok && p.Active(now)
}

// PaidFor returns a copy of the chat's paid subscription, if any.
func (s *Store) PaidFor(chatID int64) *PaidSubscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.paid[chatID]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// ---- Token watches ----

// CreateTokenWatch adds a contract watch for a chat.
func (s *Store) CreateTokenWatch(ctx context.Context, w TokenWatch) (*TokenWatch, error) {
	s.mu.Lock()
	key := chatAddrKey(w.ChatID, w.Contract)
	if _, dup := s.watchByCC[key]; dup {
		s.mu.Unlock()
		return nil, ErrWatchExists
	}
	w.ID = newID()
	cp := w
	s.watches[w.ID] = &cp
	s.watchByCC[key] = w.ID
	s.mu.Unlock()

	if err := s.p.upsert(ctx, collTokenWatches, w.ID, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// DeleteTokenWatch removes a chat's contract watch by id.
func (s *Store) DeleteTokenWatch(ctx context.Context, chatID int64, id string) error {
	s.mu.Lock()
	w, ok := s.watches[id]
	if !ok || w.ChatID != chatID {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.watches, id)
	delete(s.watchByCC, chatAddrKey(chatID, w.Contract))
	s.mu.Unlock()

	return s.p.remove(ctx, collTokenWatches, id)
}

// TokenWatchesForChat returns copies of a chat's watches.
func (s *Store) TokenWatchesForChat(chatID int64) []TokenWatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []TokenWatch
	for _, w := range s.watches {
		if w.ChatID == chatID {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllTokenWatches returns copies of every watch.
func (s *Store) AllTokenWatches() []TokenWatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TokenWatch, 0, len(s.watches))
	for _, w := range s.watches {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ---- Seen contracts ----

// SeenContractsFor returns the contracts observed for a primary.
func (s *Store) SeenContractsFor(primary string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.seen[primary]
	if !ok {
		return nil
	}
	out := make([]string, len(sc.Contracts))
	copy(out, sc.Contracts)
	return out
}

// AddSeenContracts merges contracts into a primary's seen set.
// Contracts in nft are additionally recorded as NFT collections.
func (s *Store) AddSeenContracts(ctx context.Context, primary string, contracts, nft []string) error {
	if len(contracts) == 0 && len(nft) == 0 {
		return nil
	}
	s.mu.Lock()
	sc, ok := s.seen[primary]
	if !ok {
		sc = &SeenContracts{Primary: primary}
		s.seen[primary] = sc
	}
	changed := false
	for _, c := range contracts {
		if !contains(sc.Contracts, c) {
			sc.Contracts = append(sc.Contracts, c)
			changed = true
		}
	}
	for _, c := range nft {
		if !contains(sc.Contracts, c) {
			sc.Contracts = append(sc.Contracts, c)
			changed = true
		}
		if !contains(sc.NFTContracts, c) {
			sc.NFTContracts = append(sc.NFTContracts, c)
			changed = true
		}
	}
	cp := *sc
	s.mu.Unlock()

	if !changed {
		return nil
	}
	return s.p.upsert(ctx, collSeenContracts, primary, &cp)
}

// NFTContracts returns the union of contracts known to be NFT
// collections: observed op721 transfers plus nft-kind token watches.
func (s *Store) NFTContracts() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(map[string]struct{})
	for _, sc := range s.seen {
		for _, c := range sc.NFTContracts {
			set[c] = struct{}{}
		}
	}
	for _, w := range s.watches {
		if w.Kind == "nft" {
			set[w.Contract] = struct{}{}
		}
	}
	return set
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
