package messages

import (
	"github.com/membercoin/membernode/model/inv"
)

// Inventory is a peer announcing the objects it holds.
type Inventory struct {
	Invs []inv.Inv
}

// HeadersAnnouncement is a peer announcing a new best block by header.
type HeadersAnnouncement struct {
	Hash   inv.Hash
	Parent inv.Hash
	Height uint64
}
