// Package identity resolves a primary address into its full identity
// bundle: the MLDSA hash and every address form derivable from the
// on-chain key record. The hard problem it solves is that one wallet
// appears on chain under several addresses while indexer events use the
// identity hash; resolving once per subscription keeps the hot path an
// O(1) lookup.
package identity

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/trypto13/jeet-tracker/chain"
	"github.com/trypto13/jeet-tracker/store"
)

// ChainClient is the subset of the RPC the resolver needs.
type ChainClient interface {
	GetPublicKeyInfo(ctx context.Context, addr string) (*chain.OwnerInfo, error)
	GetCSV1Address(ctx context.Context, owner string) (string, error)
}

// Resolver derives address forms for the configured network.
type Resolver struct {
	rpc    ChainClient
	params *chaincfg.Params
}

// NewResolver creates a resolver for the given network name.
func NewResolver(rpc ChainClient, network string) (*Resolver, error) {
	params, err := NetParams(network)
	if err != nil {
		return nil, err
	}
	return &Resolver{rpc: rpc, params: params}, nil
}

// NetParams maps a network name to chain parameters.
func NetParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet", "":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
}

// NormalizeHash lowercases a hex identifier and strips any 0x prefix.
// The indexer is inconsistent about both.
func NormalizeHash(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	return strings.TrimPrefix(s, "0x")
}

// Resolve returns the linkage for an address, or nil if the address has
// no on-chain key record yet. Individual derivations fail silently: a
// record without the original public key simply yields a linkage
// without the p2wpkh/p2pkh forms.
func (r *Resolver) Resolve(ctx context.Context, addr string) (*store.Linkage, error) {
	info, err := r.rpc.GetPublicKeyInfo(ctx, addr)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}
	hash := NormalizeHash(info.MLDSAHash)
	if hash == "" {
		return nil, nil
	}

	l := &store.Linkage{
		MLDSAHash:     hash,
		TweakedPubkey: NormalizeHash(info.TweakedPublicKey),
		P2OP:          info.P2OP,
	}

	if xonly, err := hex.DecodeString(l.TweakedPubkey); err == nil {
		// Accept either a bare 32-byte x-only key or a 33-byte
		// compressed point.
		if len(xonly) == 33 {
			xonly = xonly[1:]
		}
		if len(xonly) == 32 {
			if taproot, err := btcutil.NewAddressTaproot(xonly, r.params); err == nil {
				l.P2TR = taproot.EncodeAddress()
			}
		}
	}

	if pk, err := hex.DecodeString(NormalizeHash(info.PublicKey)); err == nil && len(pk) == 33 {
		if pub, err := btcec.ParsePubKey(pk); err == nil {
			h160 := btcutil.Hash160(pub.SerializeCompressed())
			if wpkh, err := btcutil.NewAddressWitnessPubKeyHash(h160, r.params); err == nil {
				l.P2WPKH = wpkh.EncodeAddress()
			}
			if pkh, err := btcutil.NewAddressPubKeyHash(h160, r.params); err == nil {
				l.P2PKH = pkh.EncodeAddress()
			}
		}
	}

	// The CSV form lives behind its own RPC path; absorb failure.
	if csv, err := r.rpc.GetCSV1Address(ctx, addr); err == nil && csv != "" {
		l.CSV1 = csv
	}

	return l, nil
}

// ValidAddress reports whether s parses as an address for the network,
// or looks like a p2op program (bech32m with the op-prefixed HRP that
// btcutil does not know about).
func (r *Resolver) ValidAddress(s string) bool {
	if _, err := btcutil.DecodeAddress(s, r.params); err == nil {
		return true
	}
	return strings.HasPrefix(s, "opnet1") || strings.HasPrefix(s, "op1")
}
