package chain

import (
	"encoding/json"
	"strconv"
)

// Block is a full block as returned by btc_getBlockByNumber with
// transactions included.
type Block struct {
	Height       uint64        `json:"height"`
	Hash         string        `json:"hash"`
	Time         int64         `json:"time"`
	Transactions []Transaction `json:"transactions"`
}

// Transaction is one transaction inside a block. Events is keyed by
// contract address; some networks omit input addresses entirely, in
// which case spend detection falls back to the stored UTXO map.
type Transaction struct {
	Hash    string                     `json:"hash"`
	From    string                     `json:"from,omitempty"`
	Inputs  []TxInput                  `json:"inputs"`
	Outputs []TxOutput                 `json:"outputs"`
	Events  map[string][]ContractEvent `json:"events,omitempty"`
}

type TxInput struct {
	OriginalTransactionID  string `json:"originalTransactionId"`
	OutputTransactionIndex uint32 `json:"outputTransactionIndex"`
	Address                string `json:"address,omitempty"`
}

type TxOutput struct {
	Index        uint32       `json:"index"`
	Value        Satoshis     `json:"value"`
	ScriptPubKey ScriptPubKey `json:"scriptPubKey"`
}

type ScriptPubKey struct {
	Address string `json:"address,omitempty"`
	Hex     string `json:"hex,omitempty"`
}

type ContractEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// OwnerInfo is the on-chain key-material record for an address. The
// MLDSA hash is the canonical cross-address wallet identity; the public
// keys are optional because not every record carries them.
type OwnerInfo struct {
	MLDSAHash        string `json:"mldsaHash"`
	PublicKey        string `json:"publicKey,omitempty"`
	TweakedPublicKey string `json:"tweakedPublicKey,omitempty"`
	P2OP             string `json:"p2op,omitempty"`
}

// UTXO is one unspent output as reported by the utxo manager.
type UTXO struct {
	TransactionID string   `json:"transactionId"`
	OutputIndex   uint32   `json:"outputIndex"`
	Value         Satoshis `json:"value"`
	Address       string   `json:"scriptPubKeyAddress,omitempty"`
}

// Satoshis unmarshals from either a JSON number or a decimal string;
// the RPC is inconsistent about which it sends.
type Satoshis int64

func (s *Satoshis) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		v, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return err
		}
		*s = Satoshis(v)
		return nil
	}
	var v int64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = Satoshis(v)
	return nil
}

func (s Satoshis) Int64() int64 { return int64(s) }
