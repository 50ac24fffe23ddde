package network

import (
	"errors"
	"fmt"

	"github.com/libp2p/go-libp2p/core/peer"
)

var (
	// ErrPeerNotConnected is returned when sending to a peer without a live
	// connection.
	ErrPeerNotConnected = errors.New("peer not connected")

	// ErrQueueFull is returned when the send queue to a peer is full. The
	// condition is transient.
	ErrQueueFull = errors.New("send queue full")
)

// UnknownChannelError is returned when an event arrives for a channel no
// engine is registered on.
type UnknownChannelError struct {
	channel Channel
	peerID  peer.ID
}

func (e UnknownChannelError) Error() string {
	return fmt.Sprintf("no engine registered on channel %s (origin %s)", e.channel, e.peerID)
}

// NewUnknownChannelError returns a new UnknownChannelError.
func NewUnknownChannelError(channel Channel, peerID peer.ID) UnknownChannelError {
	return UnknownChannelError{channel: channel, peerID: peerID}
}

// IsUnknownChannelError returns whether an error is UnknownChannelError.
func IsUnknownChannelError(err error) bool {
	var e UnknownChannelError
	return errors.As(err, &e)
}
