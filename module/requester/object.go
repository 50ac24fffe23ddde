package requester

import (
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/membercoin/membernode/model/inv"
)

// source is a peer that announced an object.
type source struct {
	peerID       peer.ID
	requestCount int
	desirability int64
	outstanding  bool // a request to this peer for the object is unresolved
	responded    bool // the response time of the outstanding request was sampled
	unanswered   int  // requests to this source that expired without a response
	requestedAt  time.Time
}

// unknownObject is the request state of an object we were told about and do
// not hold yet.
type unknownObject struct {
	obj              inv.Inv
	processing       bool      // received, validation pending
	rateLimited      bool      // last request attempt was deferred by a pacer
	downloadingSince time.Time // first request issued
	lastRequestTime  time.Time // zero means never requested or reset
	outstandingReqs  int
	priority         uint
	sources          []*source // in announcement order, one entry per peer
	orphanedAt       time.Time // when the last source went away
}

func newUnknownObject(obj inv.Inv) *unknownObject {
	return &unknownObject{obj: obj}
}

// addSource returns true if the peer was not a source yet.
func (o *unknownObject) addSource(peerID peer.ID) bool {
	if o.source(peerID) != nil {
		return false
	}
	o.sources = append(o.sources, &source{peerID: peerID})
	o.orphanedAt = time.Time{}
	return true
}

func (o *unknownObject) source(peerID peer.ID) *source {
	for _, s := range o.sources {
		if s.peerID == peerID {
			return s
		}
	}
	return nil
}

// removeSource deletes the peer from the sources, preserving order, and
// returns the removed entry.
func (o *unknownObject) removeSource(peerID peer.ID) *source {
	for i, s := range o.sources {
		if s.peerID == peerID {
			o.sources = append(o.sources[:i], o.sources[i+1:]...)
			return s
		}
	}
	return nil
}

// due returns whether the object may be requested at the given time.
func (o *unknownObject) due(now time.Time, retry time.Duration) bool {
	if o.processing {
		return false
	}
	return o.lastRequestTime.IsZero() || now.Sub(o.lastRequestTime) >= retry
}

// table maps hashes to their request state for one class of objects.
type table map[inv.Hash]*unknownObject

// sortedKeys returns the table keys in ascending order.
func (t table) sortedKeys() []inv.Hash {
	keys := make([]inv.Hash, 0, len(t))
	for h := range t {
		keys = append(keys, h)
	}
	sortHashes(keys)
	return keys
}
