package requester

import (
	"time"

	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/membercoin/membernode/model/inv"
	"github.com/membercoin/membernode/module/metrics"
)

// CheckForRequestDOS counts a request the peer made to us for an object of
// the given kind. Thin-type objects are expensive to build, so a peer asking
// for more of them than the configured limit per window is flagged for
// disconnection. It returns true if the limit was exceeded, in which case the
// request must not be served.
func (c *Core) CheckForRequestDOS(peerID peer.ID, kind inv.Kind) bool {
	if !kind.IsThinType() {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	ps := c.peerState(peerID)
	if ps.thinRequests.Allow() {
		return false
	}
	c.log.Warn().
		Str("peer_id", peerID.String()).
		Str("kind", kind.String()).
		Int("limit", c.config.MaxThinTypeRequests).
		Dur("window", c.config.ThinTypeRequestWindow).
		Msg("peer exceeded thin-type request limit")
	c.flag(peerID, ps, metrics.ReasonRequestDOS)
	return true
}

// DisconnectOnDownloadTimeout flags the peer if its oldest block request has
// been outstanding for too long. The allowance is a multiple of the target
// block spacing that grows with the number of other peers downloading blocks,
// and with the download window. Nothing is flagged unless more than
// BeginPruningPeers peers are connected. It returns whether the peer was
// flagged.
func (c *Core) DisconnectOnDownloadTimeout(peerID peer.ID, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	if len(c.peers.Peers()) <= c.config.BeginPruningPeers {
		return false
	}
	return c.checkDownloadTimeout(peerID, now)
}

func (c *Core) checkDownloadTimeout(peerID peer.ID, now time.Time) bool {
	ps, ok := c.nodes[peerID]
	if !ok || ps.flagged || ps.flight.Len() == 0 {
		return false
	}

	others := 0
	for id, other := range c.nodes {
		if id != peerID && other.flight.Len() > 0 {
			others++
		}
	}
	timeout := c.downloadTimeout(others)
	stalled := now.Sub(ps.downloadingSince)
	if stalled <= timeout {
		return false
	}

	c.log.Info().
		Str("peer_id", peerID.String()).
		Dur("stalled", stalled).
		Dur("timeout", timeout).
		Int("blocks_in_flight", ps.flight.Len()).
		Msg("block download timed out")
	c.flag(peerID, ps, metrics.ReasonDownloadTimeout)
	return true
}

func (c *Core) downloadTimeout(otherPeersDownloading int) time.Duration {
	factor := c.config.BlockTimeoutBase + c.config.BlockTimeoutPerPeer*float64(otherPeersDownloading)
	scale := float64(c.window.Load()) / float64(DefaultBlockDownloadWindow)
	if scale < 1 {
		scale = 1
	}
	return time.Duration(float64(c.state.TargetSpacing()) * factor * scale)
}

// flag marks the peer as misbehaving, stops selecting it and asks the
// connection layer to drop it. Flagging twice is a no-op.
func (c *Core) flag(peerID peer.ID, ps *peerState, reason string) {
	if ps.flagged {
		return
	}
	ps.flagged = true
	c.metrics.PeerFlagged(reason)
	c.log.Warn().Str("peer_id", peerID.String()).Str("reason", reason).Msg("disconnecting peer")
	c.peers.Disconnect(peerID, reason)
}
