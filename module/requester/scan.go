package requester

import (
	"sort"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/membercoin/membernode/model/inv"
	"github.com/membercoin/membernode/module/metrics"
	"github.com/membercoin/membernode/module/ratelimit"
)

// SendRequests runs one scheduling pass and returns the requests to send.
//
// Transactions are scanned first, then blocks announced by hash, then the
// block window is filled from every connected peer. Within a table objects
// are visited by descending priority, round-robin from where the previous
// pass stopped. Expired requests of both tables are cleared before any source
// is selected, so a peer's load reflects only its live requests. Objects left
// without sources for a retry interval are dropped. Peers stalling block
// downloads are flagged.
func (c *Core) SendRequests() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return nil
	}

	now := c.now()
	connected := c.peers.Peers()
	pruning := len(connected) > c.config.BeginPruningPeers

	for _, o := range c.txns {
		c.expire(o, c.config.TxRetryInterval, now, pruning)
	}
	for _, o := range c.blocks {
		c.expire(o, c.config.BlockRetryInterval, now, pruning)
	}

	var requests []Request
	requests = c.scan(c.txns, &c.txCursor, c.config.TxRetryInterval, now, requests)
	requests = c.scan(c.blocks, &c.blockCursor, c.config.BlockRetryInterval, now, requests)
	for _, peerID := range connected {
		requests = append(requests, c.requestNextBlocks(peerID, connected, now)...)
	}
	if pruning {
		for _, peerID := range connected {
			c.checkDownloadTimeout(peerID, now)
		}
	}

	c.metrics.ObjectsPending(len(c.txns), len(c.blocks))
	c.metrics.BlocksInFlight(int(c.inFlight.Load()))
	return requests
}

func (c *Core) scan(t table, cursor *inv.Hash, retry time.Duration, now time.Time, requests []Request) []Request {
	keys := t.sortedKeys()
	start := sort.Search(len(keys), func(i int) bool { return cursor.Less(keys[i]) })
	order := make([]inv.Hash, 0, len(keys))
	order = append(order, keys[start:]...)
	order = append(order, keys[:start]...)
	sort.SliceStable(order, func(i, j int) bool {
		return t[order[i]].priority > t[order[j]].priority
	})

	for _, hash := range order {
		o, ok := t[hash]
		if !ok {
			continue
		}
		if o.processing {
			continue
		}
		c.pruneDisconnected(o, now)
		if len(o.sources) == 0 {
			if now.Sub(o.orphanedAt) >= retry {
				c.removeObject(t, o)
				c.metrics.ObjectDropped(o.obj.Kind.String())
				c.log.Debug().
					Str("kind", o.obj.Kind.String()).
					Hex("hash", hash[:]).
					Msg("no sources left, object dropped")
			}
			continue
		}
		if !o.due(now, retry) {
			continue
		}
		s := c.selectSource(o)
		if s == nil {
			continue
		}
		if !c.pace(o, now) {
			continue
		}
		requests = append(requests, c.issue(o, s, now))
		*cursor = hash
	}
	return requests
}

// expire clears requests unanswered for longer than the retry interval. The
// source is marked so the retry goes elsewhere when possible. An expired
// transaction request counts against the peer's response time.
func (c *Core) expire(o *unknownObject, retry time.Duration, now time.Time, pruning bool) {
	for _, s := range o.sources {
		if !s.outstanding || now.Sub(s.requestedAt) < retry {
			continue
		}
		if !s.responded {
			s.unanswered++
		}
		c.releaseSource(o, s)
		if o.obj.Kind.IsBlock() {
			// the flight entry stays until the block arrives or the peer
			// times out as a whole
			continue
		}
		ps, ok := c.nodes[s.peerID]
		if !ok {
			continue
		}
		if !s.responded {
			ps.sampleTxResponse(retry)
		}
		if pruning && ps.avgTxResponse > c.config.SlowPeerResponseTime {
			c.flag(s.peerID, ps, metrics.ReasonSlowResponse)
		}
	}
}

// pruneDisconnected removes sources whose peer is gone.
func (c *Core) pruneDisconnected(o *unknownObject, now time.Time) {
	had := len(o.sources)
	kept := o.sources[:0]
	for _, s := range o.sources {
		if c.peers.IsConnected(s.peerID) {
			kept = append(kept, s)
			continue
		}
		c.releaseSource(o, s)
		if o.obj.Kind.IsBlock() {
			c.eraseFlight(o.obj.Hash, s.peerID)
		}
	}
	for i := len(kept); i < had; i++ {
		o.sources[i] = nil
	}
	o.sources = kept
	if len(o.sources) == 0 && o.orphanedAt.IsZero() {
		o.orphanedAt = now
	}
}

// selectSource returns the best eligible source, or nil.
func (c *Core) selectSource(o *unknownObject) *source {
	window := int(c.window.Load())
	var best *source
	var bestScore int64
	for _, s := range o.sources {
		if s.outstanding {
			continue
		}
		ps, ok := c.nodes[s.peerID]
		if !ok || ps.flagged {
			continue
		}
		if o.obj.Kind.IsBlock() {
			if ps.flight.Len() >= window && !c.inFlightFrom(o.obj.Hash, s.peerID) {
				continue
			}
		} else if ps.outstanding >= window {
			continue
		}

		s.desirability = c.score(Candidate{
			PeerID:          s.peerID,
			RequestCount:    s.requestCount,
			Unanswered:      s.unanswered,
			PeerOutstanding: ps.outstanding,
			AvgResponse:     ps.avgTxResponse,
		})
		if best == nil || s.desirability > bestScore {
			best = s
			bestScore = s.desirability
		}
	}
	return best
}

func (c *Core) inFlightFrom(hash inv.Hash, peerID peer.ID) bool {
	_, ok := c.inFlightIndex[hash][peerID]
	return ok
}

// pace consumes a token from the pacer governing the object's kind. A denied
// object is marked and left for a later pass.
func (c *Core) pace(o *unknownObject, now time.Time) bool {
	var pacer *ratelimit.LeakyBucket
	switch {
	case !o.obj.Kind.IsBlock():
		pacer = c.txPacer
	case o.obj.Kind.IsThinType():
		pacer = c.thinPacer
	default:
		return true
	}
	if pacer.AllowAt(now, 1) {
		return true
	}
	o.rateLimited = true
	c.metrics.RequestRateLimited(o.obj.Kind.String())
	return false
}

func sortHashes(hashes []inv.Hash) {
	sort.Slice(hashes, func(i, j int) bool { return hashes[i].Less(hashes[j]) })
}
