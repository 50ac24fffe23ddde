package storage

import (
	"github.com/membercoin/membernode/model/block"
	"github.com/membercoin/membernode/model/inv"
)

// Headers is storage for block headers, indexed by hash and by height along
// the main chain.
type Headers interface {
	// Store persists a header. It is indexed by hash only.
	// Expected errors during normal operations:
	//   - storage.ErrAlreadyExists if a header with the same hash is stored
	Store(header *block.Header) error

	// ByHash returns the header with the given hash.
	// Expected errors during normal operations:
	//   - storage.ErrNotFound if no header is known with the given hash
	ByHash(hash inv.Hash) (*block.Header, error)

	// ByHeight returns the main chain header at the given height.
	// Expected errors during normal operations:
	//   - storage.ErrNotFound if no header is indexed at the given height
	ByHeight(height uint64) (*block.Header, error)

	// IndexHeight makes the header with the given hash the main chain header
	// at the given height, replacing any previous entry.
	IndexHeight(height uint64, hash inv.Hash) error

	// MarkHaveData records that the full block for the header is held.
	// Expected errors during normal operations:
	//   - storage.ErrNotFound if no header is known with the given hash
	MarkHaveData(hash inv.Hash) error
}
