package badger

import (
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v2"

	"github.com/membercoin/membernode/model/block"
	"github.com/membercoin/membernode/model/inv"
	"github.com/membercoin/membernode/module"
	"github.com/membercoin/membernode/storage"
	"github.com/membercoin/membernode/storage/badger/operation"
)

// DefaultHeaderCacheSize is the number of headers kept in memory.
const DefaultHeaderCacheSize = 4096

// Headers implements header storage around a badger DB.
type Headers struct {
	db      *badger.DB
	metrics module.StorageMetrics
	cache   *Cache[inv.Hash, *block.Header]
}

var _ storage.Headers = (*Headers)(nil)

func NewHeaders(collector module.StorageMetrics, db *badger.DB) *Headers {

	store := func(hash inv.Hash, header *block.Header) error {
		return operation.RetryOnConflict(db.Update, operation.InsertHeader(hash, header))
	}

	retrieve := func(hash inv.Hash) (*block.Header, error) {
		var header block.Header
		err := db.View(operation.RetrieveHeader(hash, &header))
		return &header, err
	}

	h := &Headers{
		db:      db,
		metrics: collector,
		cache:   newCache(DefaultHeaderCacheSize, store, retrieve),
	}

	return h
}

func (h *Headers) Store(header *block.Header) error {
	cp := *header
	err := h.cache.Put(header.Hash, &cp)
	if err != nil {
		return err
	}
	h.metrics.HeaderStored(1)
	return nil
}

func (h *Headers) ByHash(hash inv.Hash) (*block.Header, error) {
	start := time.Now()
	header, _, err := h.cache.Get(hash)
	h.metrics.HeaderLookup(time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	// callers must not mutate cached headers
	cp := *header
	return &cp, nil
}

func (h *Headers) ByHeight(height uint64) (*block.Header, error) {
	var hash inv.Hash
	err := h.db.View(operation.LookupHeight(height, &hash))
	if err != nil {
		return nil, fmt.Errorf("could not look up block at height %d: %w", height, err)
	}
	return h.ByHash(hash)
}

func (h *Headers) IndexHeight(height uint64, hash inv.Hash) error {
	err := operation.RetryOnConflict(h.db.Update, operation.IndexHeight(height, hash))
	if err != nil {
		return fmt.Errorf("could not index height %d: %w", height, err)
	}
	return nil
}

func (h *Headers) MarkHaveData(hash inv.Hash) error {
	err := operation.RetryOnConflict(h.db.Update, func(tx *badger.Txn) error {
		var header block.Header
		err := operation.RetrieveHeader(hash, &header)(tx)
		if err != nil {
			return err
		}
		if header.HaveData {
			return nil
		}
		header.HaveData = true
		return operation.UpdateHeader(hash, &header)(tx)
	})
	h.cache.Remove(hash)
	if err != nil {
		return fmt.Errorf("could not mark block %s as held: %w", hash, err)
	}
	return nil
}
