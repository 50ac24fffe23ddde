package unittest

import (
	crand "crypto/rand"
	"fmt"
	"sort"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/membercoin/membernode/model/block"
	"github.com/membercoin/membernode/model/inv"
)

func HashFixture() inv.Hash {
	var h inv.Hash
	_, _ = crand.Read(h[:])
	return h
}

func HashListFixture(n int) []inv.Hash {
	list := make([]inv.Hash, n)
	for i := range list {
		list[i] = HashFixture()
	}
	return list
}

func InvFixture(kind inv.Kind) inv.Inv {
	return inv.New(kind, HashFixture())
}

func TxInvFixture() inv.Inv {
	return InvFixture(inv.MsgTx)
}

func BlockInvFixture() inv.Inv {
	return InvFixture(inv.MsgBlock)
}

func InvListFixture(kind inv.Kind, n int) []inv.Inv {
	list := make([]inv.Inv, n)
	for i := range list {
		list[i] = InvFixture(kind)
	}
	return list
}

// PeerIDFixture returns a random peer ID. The ID is not a valid multihash,
// which the scheduler never requires.
func PeerIDFixture() peer.ID {
	var raw [16]byte
	_, _ = crand.Read(raw[:])
	return peer.ID(fmt.Sprintf("peer-%x", raw))
}

// PeerIDListFixture returns n random peer IDs in ascending order.
func PeerIDListFixture(n int) []peer.ID {
	list := make([]peer.ID, n)
	for i := range list {
		list[i] = PeerIDFixture()
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list
}

// GenesisFixture returns a genesis header, held locally.
func GenesisFixture() *block.Header {
	return &block.Header{
		Hash:     HashFixture(),
		Height:   0,
		HaveData: true,
	}
}

// HeaderWithParentFixture returns a header extending the given parent, whose
// data is not held locally.
func HeaderWithParentFixture(parent *block.Header) *block.Header {
	return &block.Header{
		Hash:   HashFixture(),
		Parent: parent.Hash,
		Height: parent.Height + 1,
	}
}

// HeaderChainFixture returns a chain of n headers extending the given parent.
// The parent itself is not included.
func HeaderChainFixture(parent *block.Header, n int) []*block.Header {
	chain := make([]*block.Header, 0, n)
	for i := 0; i < n; i++ {
		next := HeaderWithParentFixture(parent)
		chain = append(chain, next)
		parent = next
	}
	return chain
}
