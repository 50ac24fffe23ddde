package network

import (
	"github.com/libp2p/go-libp2p/core/peer"
)

// Channel identifies the protocol an engine speaks with the same engine on
// other nodes.
type Channel string

func (c Channel) String() string {
	return string(c)
}

const (
	// ObjectExchange carries inventory announcements, get-data requests and
	// the objects delivered in reply.
	ObjectExchange = Channel("object-exchange")
)

// Engine processes messages received on a channel.
type Engine interface {
	// Process handles an event from the given origin in a blocking manner.
	Process(channel Channel, originID peer.ID, event interface{}) error
}

// Network represents the network layer of the node. Engines register on a
// channel and receive a Conduit to talk to the same engine on other nodes.
type Network interface {
	Register(channel Channel, engine Engine) (Conduit, error)
}

// Conduit sends messages to the engine registered on the same channel of a
// remote peer.
type Conduit interface {
	// Unicast hands the event to the connection layer for delivery to the
	// target. It never waits for the remote side; delivery is not confirmed.
	// Returns ErrPeerNotConnected if the target is not connected and
	// ErrQueueFull if the target's send queue cannot take more messages.
	Unicast(event interface{}, targetID peer.ID) error
}

// PeerDirectory is the view of the connection pool the request scheduler
// consumes.
//
// Implementations must never block or call back into the caller from
// Disconnect: it is invoked while the scheduler holds its lock.
type PeerDirectory interface {
	// IsConnected returns whether the peer currently has a live connection.
	IsConnected(peerID peer.ID) bool
	// Peers returns all connected peers in ascending order.
	Peers() peer.IDSlice
	// Disconnect flags the peer for disconnection. The peer is dropped
	// asynchronously.
	Disconnect(peerID peer.ID, reason string)
}

// PeerObserver is notified about connection changes.
type PeerObserver interface {
	OnPeerConnected(peerID peer.ID)
	OnPeerDisconnected(peerID peer.ID)
}
