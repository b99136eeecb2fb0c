// Package chainpoint defines the chain position types shared by every
// component of the indexer: the chain-sync client, the mailbox, the
// consumer and the HTTP control plane all agree on a single notion of
// "where on the chain" something happened.
package chainpoint

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// HashSize is the length, in bytes, of a Cardano block header hash.
const HashSize = 32

var ErrInvalidHash = errors.New("invalid hash")

// Hash is a fixed-size block or transaction header hash.
type Hash [HashSize]byte

func HashFromBytes(b []byte) (Hash, error) {
	var h Hash

	if len(b) != HashSize {
		return h, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidHash, HashSize, len(b))
	}

	copy(h[:], b)

	return h, nil
}

func HashFromHex(s string) (Hash, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %w", ErrInvalidHash, err)
	}

	return HashFromBytes(raw)
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Point identifies a block: either Genesis (the zero value) or a
// concrete (slot, header hash) pair.
type Point struct {
	Slot uint64
	Hash Hash
}

// Genesis is the point before any block has been applied.
var Genesis = Point{}

func NewPoint(slot uint64, hash Hash) Point {
	return Point{Slot: slot, Hash: hash}
}

func (p Point) IsGenesis() bool {
	return p.Slot == 0 && p.Hash.IsZero()
}

func (p Point) String() string {
	if p.IsGenesis() {
		return "genesis"
	}

	return fmt.Sprintf("slot=%d hash=%s", p.Slot, p.Hash)
}

// Less orders points by slot, as required when sorting checkpoint lists.
func (p Point) Less(other Point) bool {
	return p.Slot < other.Slot
}

// Tip is the most recent point known to the chain producer.
type Tip struct {
	Point       Point
	BlockNumber uint64
}

// Distance returns tip.Slot - p.Slot, the number of slots p lags the tip.
func Distance(tip Point, p Point) int64 {
	return int64(tip.Slot) - int64(p.Slot)
}
