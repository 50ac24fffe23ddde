package requester

import (
	"container/list"
	"time"

	"github.com/membercoin/membernode/model/block"
	"github.com/membercoin/membernode/model/inv"
	"github.com/membercoin/membernode/module/ratelimit"
)

// queuedBlock is an entry of a peer's block flight list.
type queuedBlock struct {
	hash      inv.Hash
	requested time.Time
}

// peerState is what the scheduler knows about one connected peer.
type peerState struct {
	flight           *list.List // of *queuedBlock, in request order
	downloadingSince time.Time  // when the oldest entry of flight started downloading

	thinRequests    *ratelimit.WindowCounter // thin-type requests the peer made to us
	avgTxResponse   time.Duration
	outstanding     int // unresolved requests of any object to this peer
	blocksDelivered int // blocks received from this peer and accepted
	flagged         bool

	bestKnown        *block.Header
	lastUnknown      inv.Hash // announced but not yet known locally
	lastCommonHeight uint64
}

func newPeerState(thin *ratelimit.WindowCounter) *peerState {
	return &peerState{
		flight:       list.New(),
		thinRequests: thin,
	}
}

// sampleTxResponse folds a transaction response time into the moving average.
func (p *peerState) sampleTxResponse(d time.Duration) {
	if p.avgTxResponse == 0 {
		p.avgTxResponse = d
		return
	}
	p.avgTxResponse += (d - p.avgTxResponse) / 5
}

// pushFlight appends a block to the flight list.
func (p *peerState) pushFlight(hash inv.Hash, now time.Time) *list.Element {
	if p.flight.Len() == 0 {
		p.downloadingSince = now
	}
	return p.flight.PushBack(&queuedBlock{hash: hash, requested: now})
}

// removeFlight removes an entry and keeps downloadingSince pointing at the
// oldest remaining request.
func (p *peerState) removeFlight(e *list.Element) {
	wasFront := p.flight.Front() == e
	p.flight.Remove(e)
	if p.flight.Len() == 0 {
		p.downloadingSince = time.Time{}
		return
	}
	if wasFront {
		next := p.flight.Front().Value.(*queuedBlock)
		if next.requested.After(p.downloadingSince) {
			p.downloadingSince = next.requested
		}
	}
}

func (p *peerState) flightHashes() []inv.Hash {
	hashes := make([]inv.Hash, 0, p.flight.Len())
	for e := p.flight.Front(); e != nil; e = e.Next() {
		hashes = append(hashes, e.Value.(*queuedBlock).hash)
	}
	return hashes
}
