package messages

import (
	"github.com/membercoin/membernode/model/inv"
)

// GetData is a request for a set of objects, each identified by its
// inventory vector. The recipient answers with the objects it has and a
// NotFound listing the ones it does not.
type GetData struct {
	Invs []inv.Inv
}

// NotFound is the reply to a get-data request listing the requested objects
// the responding peer does not hold.
type NotFound struct {
	Invs []inv.Inv
}

// BlockResponse delivers a single requested block. Only the fields needed to
// link the block into the header chain are carried.
type BlockResponse struct {
	Kind   inv.Kind
	Hash   inv.Hash
	Parent inv.Hash
	Height uint64
}

// TransactionResponse delivers a single requested transaction or double spend
// proof.
type TransactionResponse struct {
	Kind inv.Kind
	Hash inv.Hash
}
