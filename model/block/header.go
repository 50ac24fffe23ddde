package block

import (
	"github.com/membercoin/membernode/model/inv"
)

// Header is the part of a block header the request scheduler needs to walk
// the chain, plus whether the full block data is held locally.
type Header struct {
	Hash     inv.Hash
	Parent   inv.Hash
	Height   uint64
	HaveData bool
}

// Inv returns the inventory vector for the full block.
func (h *Header) Inv() inv.Inv {
	return inv.New(inv.MsgBlock, h.Hash)
}
