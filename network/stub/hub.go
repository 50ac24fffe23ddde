package stub

import (
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/pkg/errors"
)

// Hub is the in-memory switchboard networks plug into in order to find each
// other. It owns the connection graph.
type Hub struct {
	mu       sync.RWMutex
	networks map[peer.ID]*Network
}

func NewHub() *Hub {
	return &Hub{
		networks: make(map[peer.ID]*Network),
	}
}

// GetNetwork returns the network of the node with the given ID.
func (h *Hub) GetNetwork(id peer.ID) (*Network, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	net, ok := h.networks[id]
	return net, ok
}

// Plug stores the network in the hub so that other networks can reach it.
func (h *Hub) Plug(net *Network) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.networks[net.id]; ok {
		return errors.Errorf("node %s already plugged", net.id)
	}
	h.networks[net.id] = net
	return nil
}

// Connect opens a connection between two plugged nodes and notifies the
// observers on both sides. Connecting connected nodes is a no-op.
func (h *Hub) Connect(a, b peer.ID) error {
	if a == b {
		return errors.Errorf("cannot connect %s to itself", a)
	}
	netA, ok := h.GetNetwork(a)
	if !ok {
		return errors.Errorf("unknown node %s", a)
	}
	netB, ok := h.GetNetwork(b)
	if !ok {
		return errors.Errorf("unknown node %s", b)
	}
	if netA.addPeer(b) {
		netA.notifyConnected(b)
	}
	if netB.addPeer(a) {
		netB.notifyConnected(a)
	}
	return nil
}

// Disconnect closes the connection between two nodes, if any, and notifies
// the observers on both sides.
func (h *Hub) Disconnect(a, b peer.ID) {
	if netA, ok := h.GetNetwork(a); ok && netA.removePeer(b) {
		netA.notifyDisconnected(b)
	}
	if netB, ok := h.GetNetwork(b); ok && netB.removePeer(a) {
		netB.notifyDisconnected(a)
	}
}
