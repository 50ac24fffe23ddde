package main

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	requesterengine "github.com/membercoin/membernode/engine/common/requester"
	"github.com/membercoin/membernode/model/block"
	"github.com/membercoin/membernode/model/inv"
	"github.com/membercoin/membernode/model/messages"
	"github.com/membercoin/membernode/module"
	"github.com/membercoin/membernode/module/irrecoverable"
	"github.com/membercoin/membernode/module/metrics"
	"github.com/membercoin/membernode/module/requester"
	"github.com/membercoin/membernode/module/util"
	"github.com/membercoin/membernode/network/stub"
	"github.com/membercoin/membernode/state/chain"
	bstorage "github.com/membercoin/membernode/storage/badger"
	"github.com/membercoin/membernode/utils/unittest"
)

func TestSimulation_Deterministic(t *testing.T) {
	a := newSimulation(7, 10, 3)
	b := newSimulation(7, 10, 3)
	c := newSimulation(8, 10, 3)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a.genesis.Hash, c.genesis.Hash)
	assert.Equal(t, uint64(10), a.tip())
	assert.Equal(t, a.genesis.Hash, a.chain[0].Parent)
}

func runWithState(t *testing.T, sim *simulation, f func(*badger.DB, *bstorage.Headers, *chain.HeaderState)) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		headers := bstorage.NewHeaders(metrics.NewNoopCollector(), db)
		state, err := openState(unittest.Logger(), db, headers, chain.Regtest, sim)
		require.NoError(t, err)
		f(db, headers, state)
	})
}

func TestOpenState_Reopen(t *testing.T) {
	sim := newSimulation(1, 3, 0)
	runWithState(t, sim, func(db *badger.DB, headers *bstorage.Headers, state *chain.HeaderState) {
		require.NoError(t, state.Extend(sim.chain[0]))
		require.NoError(t, state.MarkReceived(sim.chain[0].Hash))

		reopened, err := openState(unittest.Logger(), db, headers, chain.Regtest, sim)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), reopened.ValidatedHeight())

		_, err = openState(unittest.Logger(), db, headers, chain.Regtest, newSimulation(2, 3, 0))
		assert.Error(t, err, "different genesis")
	})
}

func TestNode_Handle(t *testing.T) {
	sim := newSimulation(1, 2, 1)
	runWithState(t, sim, func(_ *badger.DB, _ *bstorage.Headers, state *chain.HeaderState) {
		n := newNode(unittest.Logger(), state, sim)
		origin := unittest.PeerIDFixture()
		first, second := sim.chain[0], sim.chain[1]

		// headers must arrive in order
		err := n.handle(origin, &messages.HeadersAnnouncement{Hash: second.Hash, Parent: second.Parent, Height: second.Height})
		assert.ErrorIs(t, err, requesterengine.ErrNotAccepted)
		for _, header := range sim.chain {
			require.NoError(t, n.handle(origin, &messages.HeadersAnnouncement{Hash: header.Hash, Parent: header.Parent, Height: header.Height}))
		}

		// a block that does not match its header is invalid
		err = n.handle(origin, &messages.BlockResponse{Kind: inv.MsgBlock, Hash: first.Hash, Parent: second.Hash, Height: 1})
		assert.ErrorIs(t, err, requesterengine.ErrInvalidObject)
		// a block without header cannot be accepted yet
		err = n.handle(origin, &messages.BlockResponse{Kind: inv.MsgBlock, Hash: unittest.HashFixture(), Height: 3})
		assert.ErrorIs(t, err, requesterengine.ErrNotAccepted)

		for _, header := range []*block.Header{second, first} {
			require.NoError(t, n.handle(origin, &messages.BlockResponse{Kind: inv.MsgBlock, Hash: header.Hash, Parent: header.Parent, Height: header.Height}))
		}
		assert.Equal(t, uint64(2), state.ValidatedHeight())
		assert.False(t, util.CheckClosed(n.Synced()), "transaction still missing")

		require.NoError(t, n.handle(origin, &messages.TransactionResponse{Kind: inv.MsgTx, Hash: sim.txns[0]}))
		assert.True(t, util.CheckClosed(n.Synced()))
	})
}

// A node fetches a whole chain and all transactions from simulated peers that
// lose some of the requests.
func TestSync_EndToEnd(t *testing.T) {
	sim := newSimulation(3, 300, 50)
	runWithState(t, sim, func(_ *badger.DB, _ *bstorage.Headers, state *chain.HeaderState) {
		log := unittest.Logger()
		hub := stub.NewHub()
		selfID := unittest.PeerIDFixture()
		net, err := stub.NewNetwork(log, hub, selfID)
		require.NoError(t, err)

		cfg := requester.DefaultConfig()
		cfg.TxRetryInterval = 200 * time.Millisecond
		cfg.BlockRetryInterval = 200 * time.Millisecond
		cfg.BlockDownloadWindow = 64
		core, err := requester.New(log, cfg, metrics.NewNoopCollector(), state, net)
		require.NoError(t, err)
		n := newNode(log, state, sim)
		eng, err := requesterengine.New(log, metrics.NewNoopCollector(), net, core, n.handle,
			requesterengine.WithScanInterval(10*time.Millisecond),
		)
		require.NoError(t, err)
		net.AddObserver(eng)

		components := []module.ReadyDoneAware{net, eng}
		ctx, cancel := irrecoverable.NewMockSignalerContextWithCancel(t, context.Background())
		defer cancel()
		net.Start(ctx)
		eng.Start(ctx)

		var peers []*stub.SimPeer
		for i := 0; i < 3; i++ {
			simNet, err := stub.NewNetwork(log, hub, unittest.PeerIDFixture(), stub.WithLatency(time.Duration(i+1)*time.Millisecond))
			require.NoError(t, err)
			peer, err := stub.NewSimPeer(log, metrics.NewNoopCollector(), simNet, sim.chain,
				stub.WithTransactions(sim.txns),
				stub.WithDropRate(0.05),
				stub.WithSeed(int64(i)),
			)
			require.NoError(t, err)
			simNet.Start(ctx)
			components = append(components, simNet)
			peers = append(peers, peer)
		}
		unittest.RequireCloseBefore(t, util.AllReady(components...), time.Second, "components did not start")

		for _, peer := range peers {
			require.NoError(t, hub.Connect(selfID, peer.ID()))
			go func(peer *stub.SimPeer) {
				_ = peer.Announce(ctx, selfID)
			}(peer)
		}

		unittest.RequireCloseBefore(t, n.Synced(), 30*time.Second, "node did not sync")
		assert.Equal(t, sim.tip(), state.ValidatedHeight())

		cancel()
		unittest.RequireCloseBefore(t, util.AllDone(components...), time.Second, "components did not stop")
	})
}
