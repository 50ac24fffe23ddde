package module

import (
	"time"
)

type EngineMetrics interface {
	// MessageSent reports that the engine transmitted the message over the network.
	MessageSent(engine string, message string)
	// MessageReceived reports that the engine received the message over the network.
	MessageReceived(engine string, message string)
	// MessageHandled reports that the engine has finished processing the message.
	// Both invalid and valid messages should be reported.
	// A message must be reported as either handled or dropped, not both.
	MessageHandled(engine string, messages string)
	// InboundMessageDropped reports that the engine has dropped inbound message without processing it.
	// Inbound messages must be reported as either handled or dropped, not both.
	InboundMessageDropped(engine string, messages string)
	// OutboundMessageDropped reports that the engine has dropped outbound message without processing it.
	// Outbound messages must be reported as either sent or dropped, not both.
	OutboundMessageDropped(engine string, messages string)
}

// RequesterMetrics tracks the object request scheduler. Kinds are reported
// by their protocol command name.
type RequesterMetrics interface {
	// ObjectRequested reports a get-data request issued for one object.
	ObjectRequested(kind string)
	// ObjectReceived reports an object delivered and accepted for processing,
	// with the time since its first request.
	ObjectReceived(kind string, sinceFirstRequest time.Duration)
	// ObjectRejected reports an object dropped after every source was rejected.
	ObjectRejected(kind string)
	// ObjectDropped reports an object dropped because no source remained.
	ObjectDropped(kind string)
	// ObjectsPending reports the number of tracked transactions and blocks.
	ObjectsPending(txns int, blocks int)
	// BlocksInFlight reports the number of blocks requested and not yet received.
	BlocksInFlight(count int)
	// PeerFlagged reports a peer flagged for disconnection, with the reason.
	PeerFlagged(reason string)
	// RequestRateLimited reports a request deferred by a pacer.
	RequestRateLimited(kind string)
}

// StorageMetrics tracks the header index.
type StorageMetrics interface {
	// HeaderStored reports the number of headers written in one operation.
	HeaderStored(count int)
	// HeaderLookup reports the duration of a header read and whether it hit.
	HeaderLookup(duration time.Duration, found bool)
}
