package stub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/membercoin/membernode/module/irrecoverable"
	"github.com/membercoin/membernode/network"
	"github.com/membercoin/membernode/utils/unittest"
)

type received struct {
	origin peer.ID
	event  interface{}
}

// recorder is an engine that forwards everything it receives to a channel.
type recorder struct {
	events chan received
}

func newRecorder() *recorder {
	return &recorder{events: make(chan received, 100)}
}

func (r *recorder) Process(_ network.Channel, originID peer.ID, event interface{}) error {
	r.events <- received{origin: originID, event: event}
	return nil
}

func (r *recorder) next(t *testing.T) received {
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("nothing delivered")
		return received{}
	}
}

type observer struct {
	mu           sync.Mutex
	connected    []peer.ID
	disconnected []peer.ID
}

func (o *observer) OnPeerConnected(peerID peer.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.connected = append(o.connected, peerID)
}

func (o *observer) OnPeerDisconnected(peerID peer.ID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.disconnected = append(o.disconnected, peerID)
}

func (o *observer) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.connected), len(o.disconnected)
}

func newNetworks(t *testing.T, hub *Hub, n int, opts ...Option) []*Network {
	nets := make([]*Network, 0, n)
	for _, id := range unittest.PeerIDListFixture(n) {
		net, err := NewNetwork(unittest.Logger(), hub, id, opts...)
		require.NoError(t, err)
		nets = append(nets, net)
	}
	return nets
}

func startNetworks(t *testing.T, nets ...*Network) {
	ctx, cancel := irrecoverable.NewMockSignalerContextWithCancel(t, context.Background())
	for _, net := range nets {
		net.Start(ctx)
	}
	for _, net := range nets {
		unittest.RequireCloseBefore(t, net.Ready(), time.Second, "network did not start")
	}
	t.Cleanup(func() {
		cancel()
		for _, net := range nets {
			unittest.RequireCloseBefore(t, net.Done(), time.Second, "network did not stop")
		}
	})
}

func TestConnect_NotifiesObservers(t *testing.T) {
	hub := NewHub()
	nets := newNetworks(t, hub, 3)
	obs := &observer{}
	nets[0].AddObserver(obs)

	require.NoError(t, hub.Connect(nets[0].ID(), nets[2].ID()))
	require.NoError(t, hub.Connect(nets[0].ID(), nets[1].ID()))
	require.NoError(t, hub.Connect(nets[1].ID(), nets[0].ID()))

	connected, disconnected := obs.counts()
	assert.Equal(t, 2, connected, "reconnecting is a no-op")
	assert.Zero(t, disconnected)
	assert.Equal(t, peer.IDSlice{nets[1].ID(), nets[2].ID()}, nets[0].Peers())
	assert.True(t, nets[2].IsConnected(nets[0].ID()))
	assert.False(t, nets[1].IsConnected(nets[2].ID()))

	hub.Disconnect(nets[2].ID(), nets[0].ID())
	_, disconnected = obs.counts()
	assert.Equal(t, 1, disconnected)
	assert.Equal(t, peer.IDSlice{nets[1].ID()}, nets[0].Peers())

	assert.Error(t, hub.Connect(nets[0].ID(), nets[0].ID()))
	assert.Error(t, hub.Connect(nets[0].ID(), unittest.PeerIDFixture()))
}

func TestPlug_Duplicate(t *testing.T) {
	hub := NewHub()
	id := unittest.PeerIDFixture()
	_, err := NewNetwork(unittest.Logger(), hub, id)
	require.NoError(t, err)
	_, err = NewNetwork(unittest.Logger(), hub, id)
	assert.Error(t, err)
}

func TestRegister_DuplicateChannel(t *testing.T) {
	nets := newNetworks(t, NewHub(), 1)
	_, err := nets[0].Register(network.ObjectExchange, newRecorder())
	require.NoError(t, err)
	_, err = nets[0].Register(network.ObjectExchange, newRecorder())
	assert.Error(t, err)
}

func TestUnicast_Delivers(t *testing.T) {
	hub := NewHub()
	nets := newNetworks(t, hub, 2)
	rec := newRecorder()
	con, err := nets[0].Register(network.ObjectExchange, newRecorder())
	require.NoError(t, err)
	_, err = nets[1].Register(network.ObjectExchange, rec)
	require.NoError(t, err)
	require.NoError(t, hub.Connect(nets[0].ID(), nets[1].ID()))
	startNetworks(t, nets...)

	require.NoError(t, con.Unicast("first", nets[1].ID()))
	require.NoError(t, con.Unicast("second", nets[1].ID()))

	ev := rec.next(t)
	assert.Equal(t, nets[0].ID(), ev.origin)
	assert.Equal(t, "first", ev.event)
	assert.Equal(t, "second", rec.next(t).event)
}

func TestUnicast_NotConnected(t *testing.T) {
	hub := NewHub()
	nets := newNetworks(t, hub, 2)
	con, err := nets[0].Register(network.ObjectExchange, newRecorder())
	require.NoError(t, err)

	err = con.Unicast("event", nets[1].ID())
	assert.True(t, errors.Is(err, network.ErrPeerNotConnected))
}

func TestUnicast_QueueFull(t *testing.T) {
	hub := NewHub()
	sender := newNetworks(t, hub, 1)[0]
	target, err := NewNetwork(unittest.Logger(), hub, unittest.PeerIDFixture(), WithQueueSize(1))
	require.NoError(t, err)
	con, err := sender.Register(network.ObjectExchange, newRecorder())
	require.NoError(t, err)
	require.NoError(t, hub.Connect(sender.ID(), target.ID()))

	// nothing drains the target's queue
	require.NoError(t, con.Unicast("first", target.ID()))
	err = con.Unicast("second", target.ID())
	assert.True(t, errors.Is(err, network.ErrQueueFull))
}

func TestUnicast_Latency(t *testing.T) {
	hub := NewHub()
	sender := newNetworks(t, hub, 1)[0]
	target, err := NewNetwork(unittest.Logger(), hub, unittest.PeerIDFixture(), WithLatency(50*time.Millisecond))
	require.NoError(t, err)
	rec := newRecorder()
	con, err := sender.Register(network.ObjectExchange, newRecorder())
	require.NoError(t, err)
	_, err = target.Register(network.ObjectExchange, rec)
	require.NoError(t, err)
	require.NoError(t, hub.Connect(sender.ID(), target.ID()))
	startNetworks(t, sender, target)

	start := time.Now()
	require.NoError(t, con.Unicast("event", target.ID()))
	rec.next(t)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

// Disconnect returns before anyone is notified.
func TestDisconnect_Async(t *testing.T) {
	hub := NewHub()
	nets := newNetworks(t, hub, 2)
	obs := &observer{}
	nets[1].AddObserver(obs)
	require.NoError(t, hub.Connect(nets[0].ID(), nets[1].ID()))

	nets[0].Disconnect(nets[1].ID(), "test")
	require.Eventually(t, func() bool {
		_, disconnected := obs.counts()
		return disconnected == 1
	}, time.Second, 5*time.Millisecond)
	assert.False(t, nets[0].IsConnected(nets[1].ID()))
	assert.False(t, nets[1].IsConnected(nets[0].ID()))
}

func TestNewPeerID(t *testing.T) {
	a, err := NewPeerID()
	require.NoError(t, err)
	b, err := NewPeerID()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NoError(t, a.Validate())
}
