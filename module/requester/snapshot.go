package requester

import (
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/membercoin/membernode/model/inv"
)

// ObjectStatus is a copy of the request state of one tracked object.
type ObjectStatus struct {
	Inv             inv.Inv
	Sources         []peer.ID // in announcement order
	Outstanding     int
	Processing      bool
	RateLimited     bool
	Priority        uint
	LastRequestTime time.Time
}

// PeerStatus is a copy of the request state of one peer.
type PeerStatus struct {
	BlocksInFlight  []inv.Hash // oldest first
	Outstanding     int
	AvgTxResponse   time.Duration
	BlocksDelivered int
	Flagged         bool
}

// Snapshot is a consistent copy of the scheduler state, for diagnostics.
type Snapshot struct {
	Txns   []ObjectStatus // ordered by hash
	Blocks []ObjectStatus // ordered by hash
	Peers  map[peer.ID]PeerStatus
	Window uint32
}

// Snapshot returns a copy of the current scheduler state.
func (c *Core) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		Txns:   statuses(c.txns),
		Blocks: statuses(c.blocks),
		Peers:  make(map[peer.ID]PeerStatus, len(c.nodes)),
		Window: c.window.Load(),
	}
	for peerID, ps := range c.nodes {
		snap.Peers[peerID] = PeerStatus{
			BlocksInFlight:  ps.flightHashes(),
			Outstanding:     ps.outstanding,
			AvgTxResponse:   ps.avgTxResponse,
			BlocksDelivered: ps.blocksDelivered,
			Flagged:         ps.flagged,
		}
	}
	return snap
}

func statuses(t table) []ObjectStatus {
	list := make([]ObjectStatus, 0, len(t))
	for _, hash := range t.sortedKeys() {
		o := t[hash]
		sources := make([]peer.ID, 0, len(o.sources))
		for _, s := range o.sources {
			sources = append(sources, s.peerID)
		}
		list = append(list, ObjectStatus{
			Inv:             o.obj,
			Sources:         sources,
			Outstanding:     o.outstandingReqs,
			Processing:      o.processing,
			RateLimited:     o.rateLimited,
			Priority:        o.priority,
			LastRequestTime: o.lastRequestTime,
		})
	}
	return list
}
