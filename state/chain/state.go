package chain

import (
	"time"

	"github.com/membercoin/membernode/model/block"
	"github.com/membercoin/membernode/model/inv"
)

// State is the read-only view of the local chain the request scheduler uses
// to decide which blocks to download next. All methods are safe for
// concurrent use.
type State interface {
	// ValidatedHeight returns the height of the highest block whose data is
	// held and connected to the main chain.
	ValidatedHeight() uint64

	// Header returns the header with the given hash.
	// Expected errors during normal operations:
	//   - storage.ErrNotFound if the header is unknown
	Header(hash inv.Hash) (*block.Header, error)

	// Ancestor returns the ancestor at the given height of the block with
	// the given hash. A block is its own ancestor at its own height.
	// Expected errors during normal operations:
	//   - storage.ErrNotFound if the block is unknown or height is above it
	Ancestor(hash inv.Hash, height uint64) (*block.Header, error)

	// HaveBlock returns whether the full block data is held locally.
	HaveBlock(hash inv.Hash) bool

	// TargetSpacing returns the expected time between blocks.
	TargetSpacing() time.Duration
}
