package operation

import (
	"github.com/dgraph-io/badger/v2"

	"github.com/membercoin/membernode/model/block"
	"github.com/membercoin/membernode/model/inv"
)

func InsertHeader(hash inv.Hash, header *block.Header) func(*badger.Txn) error {
	return insert(makePrefix(codeHeader, hash), header)
}

func UpdateHeader(hash inv.Hash, header *block.Header) func(*badger.Txn) error {
	return update(makePrefix(codeHeader, hash), header)
}

func RetrieveHeader(hash inv.Hash, header *block.Header) func(*badger.Txn) error {
	return retrieve(makePrefix(codeHeader, hash), header)
}

func HeaderExists(hash inv.Hash, exists *bool) func(*badger.Txn) error {
	return check(makePrefix(codeHeader, hash), exists)
}

// IndexHeight points the main chain index at the given height to the hash,
// overwriting any previous entry.
func IndexHeight(height uint64, hash inv.Hash) func(*badger.Txn) error {
	return upsert(makePrefix(codeHeightToHash, height), hash)
}

func LookupHeight(height uint64, hash *inv.Hash) func(*badger.Txn) error {
	return retrieve(makePrefix(codeHeightToHash, height), hash)
}

func InsertValidatedHeight(height uint64) func(*badger.Txn) error {
	return insert(makePrefix(codeValidatedHeight), height)
}

func UpdateValidatedHeight(height uint64) func(*badger.Txn) error {
	return update(makePrefix(codeValidatedHeight), height)
}

func RetrieveValidatedHeight(height *uint64) func(*badger.Txn) error {
	return retrieve(makePrefix(codeValidatedHeight), height)
}
