package requester

import (
	"errors"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/membercoin/membernode/model/inv"
	"github.com/membercoin/membernode/storage"
)

// ProcessBlockAvailability checks whether the last block the peer announced
// without us knowing it has become known, and if so updates the peer's best
// known block.
func (c *Core) ProcessBlockAvailability(peerID peer.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	ps, ok := c.nodes[peerID]
	if !ok {
		return
	}
	c.processBlockAvailability(ps)
}

func (c *Core) processBlockAvailability(ps *peerState) {
	if ps.lastUnknown.IsZero() {
		return
	}
	header, err := c.state.Header(ps.lastUnknown)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		c.log.Warn().Err(err).Hex("hash", ps.lastUnknown[:]).Msg("could not look up announced block")
		return
	}
	if ps.bestKnown == nil || header.Height >= ps.bestKnown.Height {
		ps.bestKnown = header
	}
	ps.lastUnknown = inv.Hash{}
}

// UpdateBlockAvailability records that the peer has the given block. If the
// block is not known locally yet, it is remembered until it is.
func (c *Core) UpdateBlockAvailability(peerID peer.ID, hash inv.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	ps := c.peerState(peerID)
	c.processBlockAvailability(ps)

	header, err := c.state.Header(hash)
	if errors.Is(err, storage.ErrNotFound) {
		ps.lastUnknown = hash
		return
	}
	if err != nil {
		c.log.Warn().Err(err).Hex("hash", hash[:]).Msg("could not look up announced block")
		return
	}
	if ps.bestKnown == nil || header.Height >= ps.bestKnown.Height {
		ps.bestKnown = header
	}
}

// FindNextBlocksToDownload returns up to count blocks the peer can provide,
// in height order, that we lack and nobody is downloading. Only blocks within
// the download window past the validated height are considered.
func (c *Core) FindNextBlocksToDownload(peerID peer.ID, count int) []inv.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil
	}
	ps, ok := c.nodes[peerID]
	if !ok {
		return nil
	}
	return c.findNextBlocks(ps, count)
}

func (c *Core) findNextBlocks(ps *peerState, count int) []inv.Hash {
	if count <= 0 || ps.bestKnown == nil {
		return nil
	}
	validated := c.state.ValidatedHeight()
	best := ps.bestKnown
	if best.Height <= validated {
		return nil
	}

	// the last common height only moves forward over blocks we hold, so it
	// is stale if it fell behind or no longer lies on the peer's chain
	if ps.lastCommonHeight < validated || ps.lastCommonHeight > best.Height {
		ps.lastCommonHeight = validated
	} else if ps.lastCommonHeight > validated {
		ancestor, err := c.state.Ancestor(best.Hash, ps.lastCommonHeight)
		if err != nil || !c.state.HaveBlock(ancestor.Hash) {
			ps.lastCommonHeight = validated
		}
	}

	end := validated + uint64(c.window.Load())
	if end > best.Height {
		end = best.Height
	}

	var hashes []inv.Hash
	contiguous := true
	for height := ps.lastCommonHeight + 1; height <= end && len(hashes) < count; height++ {
		header, err := c.state.Ancestor(best.Hash, height)
		if err != nil {
			c.log.Warn().Err(err).Uint64("height", height).Hex("best_known", best.Hash[:]).Msg("could not walk peer chain")
			break
		}
		if c.state.HaveBlock(header.Hash) {
			if contiguous {
				ps.lastCommonHeight = height
			}
			continue
		}
		contiguous = false
		if _, ok := c.inFlightIndex[header.Hash]; ok {
			continue
		}
		hashes = append(hashes, header.Hash)
	}
	return hashes
}

// RequestNextBlocksToDownload fills the peer's share of the download window
// and returns the requests to send. Every connected peer becomes a source of
// the chosen blocks, so they can be fetched elsewhere after a timeout.
func (c *Core) RequestNextBlocksToDownload(peerID peer.ID) []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil
	}
	return c.requestNextBlocks(peerID, c.peers.Peers(), c.now())
}

func (c *Core) requestNextBlocks(peerID peer.ID, connected []peer.ID, now time.Time) []Request {
	ps, ok := c.nodes[peerID]
	if !ok || ps.flagged {
		return nil
	}
	room := int(c.window.Load()) - ps.flight.Len()
	if room > MaxBlocksPerPeerPass {
		room = MaxBlocksPerPeerPass
	}
	if room <= 0 {
		return nil
	}
	c.processBlockAvailability(ps)

	var requests []Request
	for _, hash := range c.findNextBlocks(ps, room) {
		o, ok := c.blocks[hash]
		if !ok {
			o = newUnknownObject(inv.New(inv.MsgBlock, hash))
			c.blocks[hash] = o
			c.completed.Remove(hash)
		}
		o.addSource(peerID)
		for _, other := range connected {
			if o.addSource(other) {
				c.peerState(other)
			}
		}
		if o.processing {
			continue
		}
		s := o.source(peerID)
		if s.outstanding {
			continue
		}
		requests = append(requests, c.issue(o, s, now))
	}
	return requests
}
