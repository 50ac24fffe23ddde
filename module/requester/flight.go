package requester

import (
	"container/list"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/membercoin/membernode/model/inv"
)

// MarkBlockAsInFlight records a block request to the peer made outside of
// the scheduling passes. Marking a block twice for the same peer is a
// programming error.
func (c *Core) MarkBlockAsInFlight(peerID peer.ID, hash inv.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	if !c.markFlight(peerID, hash, c.now()) {
		c.invariant("block %s already in flight from %s", hash, peerID)
	}
}

// MarkBlockAsReceived removes the block from the peer's flight list and
// returns whether it was in flight from that peer.
func (c *Core) MarkBlockAsReceived(hash inv.Hash, peerID peer.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eraseFlight(hash, peerID)
}

// MapBlocksInFlightErase removes the block from the peer's flight list.
func (c *Core) MapBlocksInFlightErase(hash inv.Hash, peerID peer.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eraseFlight(hash, peerID)
}

// MapBlocksInFlightEmpty returns whether no block is in flight from any peer.
func (c *Core) MapBlocksInFlightEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inFlightIndex) == 0
}

// MapBlocksInFlightClear empties every flight list.
func (c *Core) MapBlocksInFlightClear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ps := range c.nodes {
		ps.flight.Init()
		ps.downloadingSince = time.Time{}
	}
	c.inFlightIndex = make(map[inv.Hash]map[peer.ID]*list.Element)
	c.inFlight.Store(0)
}

// GetBlocksInFlight returns the blocks in flight from the peer, oldest first.
func (c *Core) GetBlocksInFlight(peerID peer.ID) []inv.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	ps, ok := c.nodes[peerID]
	if !ok {
		return nil
	}
	return ps.flightHashes()
}

// GetNumBlocksInFlight returns how many blocks are in flight from the peer.
func (c *Core) GetNumBlocksInFlight(peerID peer.ID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	ps, ok := c.nodes[peerID]
	if !ok {
		return 0
	}
	return ps.flight.Len()
}

// markFlight appends the block to the peer's flight list. It returns false
// if the block is already in flight from that peer.
func (c *Core) markFlight(peerID peer.ID, hash inv.Hash, now time.Time) bool {
	entries, ok := c.inFlightIndex[hash]
	if !ok {
		entries = make(map[peer.ID]*list.Element)
		c.inFlightIndex[hash] = entries
	}
	if _, ok := entries[peerID]; ok {
		return false
	}
	entries[peerID] = c.peerState(peerID).pushFlight(hash, now)
	c.inFlight.Inc()
	return true
}

// eraseFlight removes the block from the peer's flight list and returns
// whether it was there.
func (c *Core) eraseFlight(hash inv.Hash, peerID peer.ID) bool {
	entries, ok := c.inFlightIndex[hash]
	if !ok {
		return false
	}
	e, ok := entries[peerID]
	if !ok {
		return false
	}
	if ps, ok := c.nodes[peerID]; ok {
		ps.removeFlight(e)
	}
	delete(entries, peerID)
	if len(entries) == 0 {
		delete(c.inFlightIndex, hash)
	}
	c.inFlight.Dec()
	return true
}

// eraseAllFlight removes the block from every peer's flight list.
func (c *Core) eraseAllFlight(hash inv.Hash) {
	for peerID := range c.inFlightIndex[hash] {
		c.eraseFlight(hash, peerID)
	}
}
