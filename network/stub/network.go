package stub

import (
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/membercoin/membernode/module/component"
	"github.com/membercoin/membernode/module/irrecoverable"
	"github.com/membercoin/membernode/network"
)

const DefaultQueueSize = 1024

type delivery struct {
	channel network.Channel
	origin  peer.ID
	event   interface{}
	at      time.Time
}

type Option func(*Network)

// WithLatency delays every message this node receives.
func WithLatency(latency time.Duration) Option {
	return func(n *Network) {
		n.latency = latency
	}
}

// WithQueueSize bounds the messages waiting for delivery to this node.
// Sends beyond it fail with network.ErrQueueFull.
func WithQueueSize(size int) Option {
	return func(n *Network) {
		n.queueSize = size
	}
}

// Network is the in-memory network layer of one node. Events sent through
// its conduits are queued at the receiving node and handed to the receiving
// engine by a single delivery worker, in order.
type Network struct {
	*component.ComponentManager
	log       zerolog.Logger
	id        peer.ID
	hub       *Hub
	latency   time.Duration
	queueSize int
	inbound   chan delivery

	mu        sync.RWMutex
	engines   map[network.Channel]network.Engine
	peers     mapset.Set[peer.ID]
	observers []network.PeerObserver
}

var _ network.Network = (*Network)(nil)
var _ network.PeerDirectory = (*Network)(nil)

// NewNetwork creates the network of the node with the given ID and plugs it
// into the hub.
func NewNetwork(log zerolog.Logger, hub *Hub, id peer.ID, opts ...Option) (*Network, error) {
	n := &Network{
		log:       log.With().Str("component", "stub_network").Str("node", id.String()).Logger(),
		id:        id,
		hub:       hub,
		queueSize: DefaultQueueSize,
		engines:   make(map[network.Channel]network.Engine),
		peers:     mapset.NewThreadUnsafeSet[peer.ID](),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.queueSize < 1 {
		return nil, errors.Errorf("queue size must be positive, got %d", n.queueSize)
	}
	n.inbound = make(chan delivery, n.queueSize)

	err := hub.Plug(n)
	if err != nil {
		return nil, errors.Wrap(err, "could not plug network")
	}

	n.ComponentManager = component.NewComponentManagerBuilder().
		AddWorker(n.deliveryLoop).
		Build()
	return n, nil
}

func (n *Network) ID() peer.ID {
	return n.id
}

// Register implements network.Network.
func (n *Network) Register(channel network.Channel, engine network.Engine) (network.Conduit, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.engines[channel]; ok {
		return nil, errors.Errorf("channel %s already taken", channel)
	}
	n.engines[channel] = engine
	return &Conduit{channel: channel, net: n}, nil
}

// AddObserver subscribes to connection changes of this node.
func (n *Network) AddObserver(observer network.PeerObserver) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observers = append(n.observers, observer)
}

func (n *Network) IsConnected(peerID peer.ID) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peers.Contains(peerID)
}

func (n *Network) Peers() peer.IDSlice {
	n.mu.RLock()
	ids := peer.IDSlice(n.peers.ToSlice())
	n.mu.RUnlock()
	sort.Sort(ids)
	return ids
}

// Disconnect drops the connection to the peer in the background. Observers
// are notified from another goroutine, never from within this call.
func (n *Network) Disconnect(peerID peer.ID, reason string) {
	n.log.Info().Str("peer_id", peerID.String()).Str("reason", reason).Msg("disconnecting peer")
	go n.hub.Disconnect(n.id, peerID)
}

func (n *Network) addPeer(peerID peer.ID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.peers.Add(peerID)
}

func (n *Network) removePeer(peerID peer.ID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.peers.Contains(peerID) {
		return false
	}
	n.peers.Remove(peerID)
	return true
}

func (n *Network) observersCopy() []network.PeerObserver {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]network.PeerObserver(nil), n.observers...)
}

func (n *Network) notifyConnected(peerID peer.ID) {
	for _, observer := range n.observersCopy() {
		observer.OnPeerConnected(peerID)
	}
}

func (n *Network) notifyDisconnected(peerID peer.ID) {
	for _, observer := range n.observersCopy() {
		observer.OnPeerDisconnected(peerID)
	}
}

// unicast queues the event at the target node.
func (n *Network) unicast(channel network.Channel, event interface{}, targetID peer.ID) error {
	if !n.IsConnected(targetID) {
		return errors.Wrapf(network.ErrPeerNotConnected, "could not send to %s", targetID)
	}
	target, ok := n.hub.GetNetwork(targetID)
	if !ok {
		return errors.Wrapf(network.ErrPeerNotConnected, "node %s left the hub", targetID)
	}
	d := delivery{
		channel: channel,
		origin:  n.id,
		event:   event,
		at:      time.Now().Add(target.latency),
	}
	select {
	case target.inbound <- d:
		return nil
	default:
		return errors.Wrapf(network.ErrQueueFull, "could not send to %s", targetID)
	}
}

func (n *Network) deliveryLoop(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	ready()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-n.inbound:
			if wait := time.Until(d.at); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			n.deliver(d)
		}
	}
}

func (n *Network) deliver(d delivery) {
	// messages from peers dropped while in transit are discarded
	if !n.IsConnected(d.origin) {
		return
	}
	n.mu.RLock()
	engine, ok := n.engines[d.channel]
	n.mu.RUnlock()
	if !ok {
		n.log.Warn().Err(network.NewUnknownChannelError(d.channel, d.origin)).Msg("dropping event")
		return
	}
	err := engine.Process(d.channel, d.origin, d.event)
	if err != nil {
		n.log.Error().Err(errors.Wrapf(err, "engine failed to process %T", d.event)).Str("origin", d.origin.String()).Msg("delivery failed")
	}
}

// Conduit sends events to the engine on the same channel of connected nodes.
type Conduit struct {
	channel network.Channel
	net     *Network
}

var _ network.Conduit = (*Conduit)(nil)

func (c *Conduit) Unicast(event interface{}, targetID peer.ID) error {
	return c.net.unicast(c.channel, event, targetID)
}
