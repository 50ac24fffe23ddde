package requester

import (
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
)

// Candidate describes a source eligible to receive a request for an object.
type Candidate struct {
	PeerID          peer.ID
	RequestCount    int           // requests already sent to this source for the object
	Unanswered      int           // requests to this source for the object that expired unanswered
	PeerOutstanding int           // unresolved requests of any object to the peer
	AvgResponse     time.Duration // average transaction response time of the peer
}

// ScoreFunc rates a candidate source. The candidate with the highest score is
// asked; on equal scores the source announced first wins.
type ScoreFunc func(Candidate) int64

// DefaultScore avoids sources that let a request for this object expire,
// then prefers peers with fewer outstanding requests, then sources asked
// fewer times for this object, then faster peers.
func DefaultScore(c Candidate) int64 {
	responseMs := c.AvgResponse.Milliseconds()
	if responseMs > 9_999 {
		responseMs = 9_999
	}
	if responseMs < 0 {
		responseMs = 0
	}
	return -(int64(c.Unanswered)*100_000_000 + int64(c.PeerOutstanding)*1_000_000 + int64(c.RequestCount)*10_000 + responseMs)
}
