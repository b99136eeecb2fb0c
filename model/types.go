// Package model holds the on-chain shapes the indexer reads off the wire
// and the indexed shapes it persists, kept separate from both the
// chain-sync wire format (out of scope per spec.md §1) and the store's
// row encoding.
package model

import (
	"encoding/json"

	"github.com/cardano-chain-indexer/indexer/chainpoint"
)

// OutputRef identifies a transaction output by its transaction id and
// output index.
type OutputRef struct {
	TxID  []byte
	Index uint32
}

// Value is the lovelace-plus-multi-asset balance of an output.
type Value struct {
	Lovelace    uint64
	MultiAssets map[string]map[string]uint64 // policyID(hex) -> assetName(hex) -> quantity
}

// Result is an indexed UTxO output, unique by OutputRef.
//
// PaymentCredential/DelegationCredential are the raw stake-credential
// hashes backing Address, extracted by the capability that decoded the
// block (spec.md §9's "polymorphism over block shape") so that the store
// can index pattern.PaymentCredential/pattern.DelegationCredential
// lookups without itself understanding bech32 or header bytes.
type Result struct {
	OutputRef            OutputRef
	Address              string
	PaymentCredential    []byte
	DelegationCredential []byte
	Value                Value
	DatumHash            []byte
	ScriptHash           []byte
	CreatedAt            chainpoint.Point
	SpentAt              *chainpoint.Point
}

func (r *Result) IsSpent() bool { return r.SpentAt != nil }

// BinaryData is content-addressed datum bytes.
type BinaryData struct {
	Hash  []byte
	Bytes []byte
}

// ScriptTag distinguishes the script languages the indexer stores
// without interpreting.
type ScriptTag byte

const (
	ScriptTagNative ScriptTag = iota
	ScriptTagPlutusV1
	ScriptTagPlutusV2
	ScriptTagPlutusV3
)

// Script is content-addressed script bytes.
type Script struct {
	Hash  []byte
	Bytes []byte
	Tag   ScriptTag
}

// Tx is the subset of a decoded transaction the matcher needs: its
// inputs (spent references), its new outputs, and any inline datums it
// carries. Full CBOR/Plutus decoding is an external collaborator
// (spec.md §1); this type is what that collaborator hands back.
type Tx struct {
	ID       []byte
	Inputs   []OutputRef
	Outputs  []*Result
	Datums   []*BinaryData
	Scripts  []*Script
	Metadata json.RawMessage // label->value auxiliary data, nil if the transaction carries none
}

// Block is a decoded block ready for pattern matching.
type Block struct {
	Point chainpoint.Point
	Txs   []*Tx
}

// InputManagement selects how the Consumer treats inputs once their
// output is spent (spec.md §4.5).
type InputManagement int

const (
	// MarkSpentInputs always marks spent_at, never deletes. Safe under
	// any rollback depth.
	MarkSpentInputs InputManagement = iota
	// RemoveSpentInputs deletes a spent input outright once the spending
	// block is more than StabilityWindow slots behind the tip; until
	// then it is only marked, the same as MarkSpentInputs.
	RemoveSpentInputs
)

// ConnectionStatus mirrors the chain-sync client's link state.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnected
)

func (s ConnectionStatus) String() string {
	if s == StatusConnected {
		return "connected"
	}

	return "disconnected"
}

// Health is the most-recently-published view of indexer progress.
type Health struct {
	ConnectionStatus     ConnectionStatus
	MostRecentCheckpoint *uint64
	MostRecentNodeTip    *uint64
	ConfigurationSummary string
}
