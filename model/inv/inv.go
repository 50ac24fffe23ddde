package inv

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// HashLength is the length of an object hash in bytes.
const HashLength = 32

// Hash is the 256-bit hash identifying a transaction or block.
type Hash [HashLength]byte

// ZeroHash is the empty hash.
var ZeroHash = Hash{}

// HashFromHex decodes a hex string into a hash.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("could not decode hash: %w", err)
	}
	if len(raw) != HashLength {
		return h, fmt.Errorf("invalid hash length (%d != %d)", len(raw), HashLength)
	}
	copy(h[:], raw)
	return h, nil
}

// MustHashFromHex decodes a hex string into a hash and panics on failure.
func MustHashFromHex(s string) Hash {
	h, err := HashFromHex(s)
	if err != nil {
		panic(err)
	}
	return h
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Less orders hashes by their byte representation.
func (h Hash) Less(other Hash) bool {
	return bytes.Compare(h[:], other[:]) < 0
}

// Kind is the inventory type of an announced object.
type Kind uint32

const (
	MsgTx Kind = iota + 1
	MsgBlock
	// MsgFilteredBlock and MsgCmpctBlock may appear in get-data requests but
	// never in announcements.
	MsgFilteredBlock
	MsgCmpctBlock
	MsgXThinBlock
	MsgGrapheneBlock

	// MsgThinBlock shares its value with compact blocks.
	MsgThinBlock = MsgCmpctBlock

	MsgDoubleSpendProof Kind = 0x94a0
)

// IsKnown returns true if the kind is one of the inventory types ever used.
func (k Kind) IsKnown() bool {
	switch k {
	case MsgTx, MsgBlock, MsgFilteredBlock, MsgCmpctBlock, MsgXThinBlock, MsgGrapheneBlock, MsgDoubleSpendProof:
		return true
	}
	return false
}

// IsBlock returns true for every kind that is satisfied by delivering a block,
// in full or in reconstructable form.
func (k Kind) IsBlock() bool {
	switch k {
	case MsgBlock, MsgFilteredBlock, MsgCmpctBlock, MsgXThinBlock, MsgGrapheneBlock:
		return true
	}
	return false
}

// IsThinType returns true for block kinds that the receiving side has to
// reconstruct from its mempool. Serving them is expensive.
func (k Kind) IsThinType() bool {
	switch k {
	case MsgCmpctBlock, MsgXThinBlock, MsgGrapheneBlock:
		return true
	}
	return false
}

// Command returns the protocol command used to deliver objects of this kind.
func (k Kind) Command() string {
	switch k {
	case MsgTx:
		return "tx"
	case MsgBlock:
		return "block"
	case MsgFilteredBlock:
		return "merkleblock"
	case MsgCmpctBlock:
		return "cmpctblock"
	case MsgXThinBlock:
		return "xthinblock"
	case MsgGrapheneBlock:
		return "graphenblock"
	case MsgDoubleSpendProof:
		return "dsproof-beta"
	}
	return fmt.Sprintf("unknown(%d)", uint32(k))
}

func (k Kind) String() string {
	switch k {
	case MsgTx:
		return "MSG_TX"
	case MsgBlock:
		return "MSG_BLOCK"
	case MsgFilteredBlock:
		return "MSG_FILTERED_BLOCK"
	case MsgCmpctBlock:
		return "MSG_CMPCT_BLOCK"
	case MsgXThinBlock:
		return "MSG_XTHINBLOCK"
	case MsgGrapheneBlock:
		return "MSG_GRAPHENEBLOCK"
	case MsgDoubleSpendProof:
		return "MSG_DOUBLESPENDPROOF"
	}
	return fmt.Sprintf("MSG_UNKNOWN(%d)", uint32(k))
}

// Inv identifies an object by its kind and hash. Invs are comparable and can
// be used as map keys.
type Inv struct {
	Kind Kind
	Hash Hash
}

// New returns the inventory vector for the given kind and hash.
func New(kind Kind, hash Hash) Inv {
	return Inv{Kind: kind, Hash: hash}
}

// Less orders inventory vectors by kind, then by hash.
func (i Inv) Less(other Inv) bool {
	if i.Kind != other.Kind {
		return i.Kind < other.Kind
	}
	return i.Hash.Less(other.Hash)
}

func (i Inv) String() string {
	return fmt.Sprintf("%s %s", i.Kind, i.Hash)
}

// Less is the ordering function for sort.Slice over inventory vectors.
func Less(a, b Inv) bool {
	return a.Less(b)
}
