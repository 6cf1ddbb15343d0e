package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Subscription is one chat's watch on one primary address. The linkage
// is attached lazily once the identity resolver succeeds.
type Subscription struct {
	ID         string    `bson:"_id" json:"id"`
	ChatID     int64     `bson:"chatId" json:"chatId"`
	Address    string    `bson:"address" json:"address"` // as originally supplied
	Label      string    `bson:"label" json:"label"`
	CreatedAt  time.Time `bson:"createdAt" json:"createdAt"`
	UTXOSeeded bool      `bson:"utxoSeeded" json:"utxoSeeded"`
	Linkage    *Linkage  `bson:"linkage,omitempty" json:"linkage,omitempty"`
}

// Linkage is the resolved identity bundle: the MLDSA hash plus every
// address form derivable from the on-chain key record. Each form is
// optional because some derivations need the original public key.
type Linkage struct {
	MLDSAHash     string `bson:"mldsaHash" json:"mldsaHash"`
	TweakedPubkey string `bson:"tweakedPubkey,omitempty" json:"tweakedPubkey,omitempty"`
	P2OP          string `bson:"p2op,omitempty" json:"p2op,omitempty"`
	P2TR          string `bson:"p2tr,omitempty" json:"p2tr,omitempty"`
	P2WPKH        string `bson:"p2wpkh,omitempty" json:"p2wpkh,omitempty"`
	P2PKH         string `bson:"p2pkh,omitempty" json:"p2pkh,omitempty"`
	CSV1          string `bson:"csv1,omitempty" json:"csv1,omitempty"`
}

// Aliases returns every non-empty address form in the linkage.
func (l *Linkage) Aliases() []string {
	var out []string
	for _, a := range []string{l.P2OP, l.P2TR, l.P2WPKH, l.P2PKH, l.CSV1} {
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Outpoint identifies one transaction output.
type Outpoint struct {
	TxID string `bson:"txid" json:"txid"`
	Vout uint32 `bson:"vout" json:"vout"`
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID, o.Vout)
}

// StoredUTXO is one unspent output owned by a tracked wallet, keyed by
// outpoint and attributed to the subscription's canonical primary
// address (never an alias).
type StoredUTXO struct {
	ID      string `bson:"_id" json:"-"` // txid:vout
	TxID    string `bson:"txid" json:"txid"`
	Vout    uint32 `bson:"vout" json:"vout"`
	Value   int64  `bson:"value" json:"value"`
	Primary string `bson:"address" json:"address"`
}

// Outpoint returns the UTXO's key.
func (u *StoredUTXO) Outpoint() Outpoint {
	return Outpoint{TxID: u.TxID, Vout: u.Vout}
}

// AuthorizedChat has passed the password gate or redeemed a code.
// Necessary but not sufficient for notifications; a live paid
// subscription is the gating condition.
type AuthorizedChat struct {
	ChatID       int64     `bson:"_id" json:"chatId"`
	AuthorizedAt time.Time `bson:"authorizedAt" json:"authorizedAt"`
}

// PaidSubscription gates notification delivery for a chat.
type PaidSubscription struct {
	ChatID    int64     `bson:"_id" json:"chatId"`
	ExpiresAt time.Time `bson:"expiresAt" json:"expiresAt"`
	Code      string    `bson:"code" json:"code"`
	PaidBy    string    `bson:"paidBy,omitempty" json:"paidBy,omitempty"`
}

// Active reports whether the subscription is live at the given instant.
func (p *PaidSubscription) Active(now time.Time) bool {
	return now.Before(p.ExpiresAt)
}

// AccessCode is a one-shot token of the form JT-[A-Z0-9]{12} created by
// the payment pipeline and consumed by redeem.
type AccessCode struct {
	Code         string    `bson:"_id" json:"code"`
	Redeemed     bool      `bson:"redeemed" json:"redeemed"`
	RedeemedBy   int64     `bson:"redeemedBy,omitempty" json:"redeemedBy,omitempty"`
	ExpiresAt    time.Time `bson:"expiresAt" json:"expiresAt"`
	DurationDays int       `bson:"durationDays" json:"durationDays"`
	FundingTx    string    `bson:"fundingTx,omitempty" json:"fundingTx,omitempty"`
}

// TokenWatch is a chat-level watch on a specific contract.
type TokenWatch struct {
	ID       string  `bson:"_id" json:"id"`
	ChatID   int64   `bson:"chatId" json:"chatId"`
	Contract string  `bson:"contract" json:"contract"`
	Label    string  `bson:"label" json:"label"`
	Kind     string  `bson:"kind" json:"kind"` // "fungible" or "nft"
	AlertPct float64 `bson:"alertPct" json:"alertPct"` // 0 disables price alerts
	MinSats  int64   `bson:"minSats" json:"minSats"`   // 0 disables reservation floor
}

// SeenContracts is the set of contracts ever observed interacting with
// a primary's identity. Bounds balance queries and drives NFT
// formatting.
type SeenContracts struct {
	Primary      string   `bson:"_id" json:"primary"`
	Contracts    []string `bson:"contracts" json:"contracts"`
	NFTContracts []string `bson:"nftContracts,omitempty" json:"nftContracts,omitempty"`
}

// StateEntry is a generic key/value row (scan cursor, flags).
type StateEntry struct {
	Key   string `bson:"_id" json:"key"`
	Value string `bson:"value" json:"value"`
}

// newID returns an 8-char opaque id.
func newID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}
