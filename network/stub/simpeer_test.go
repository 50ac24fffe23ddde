package stub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/membercoin/membernode/model/inv"
	"github.com/membercoin/membernode/model/messages"
	"github.com/membercoin/membernode/module/metrics"
	"github.com/membercoin/membernode/network"
	"github.com/membercoin/membernode/utils/unittest"
)

func TestSimPeer_ServesGetData(t *testing.T) {
	hub := NewHub()
	nets := newNetworks(t, hub, 2)
	node, remote := nets[0], nets[1]
	rec := newRecorder()
	con, err := node.Register(network.ObjectExchange, rec)
	require.NoError(t, err)

	chain := unittest.HeaderChainFixture(unittest.GenesisFixture(), 3)
	tx := unittest.HashFixture()
	_, err = NewSimPeer(unittest.Logger(), metrics.NewNoopCollector(), remote, chain, WithTransactions([]inv.Hash{tx}))
	require.NoError(t, err)
	require.NoError(t, hub.Connect(node.ID(), remote.ID()))
	startNetworks(t, node, remote)

	unknown := unittest.BlockInvFixture()
	request := &messages.GetData{Invs: []inv.Inv{
		chain[0].Inv(),
		unknown,
		inv.New(inv.MsgTx, tx),
		chain[2].Inv(),
	}}
	require.NoError(t, con.Unicast(request, remote.ID()))

	assert.Equal(t, &messages.BlockResponse{Kind: inv.MsgBlock, Hash: chain[0].Hash, Parent: chain[0].Parent, Height: 1}, rec.next(t).event)
	assert.Equal(t, &messages.TransactionResponse{Kind: inv.MsgTx, Hash: tx}, rec.next(t).event)
	assert.Equal(t, &messages.BlockResponse{Kind: inv.MsgBlock, Hash: chain[2].Hash, Parent: chain[2].Parent, Height: 3}, rec.next(t).event)
	ev := rec.next(t)
	assert.Equal(t, remote.ID(), ev.origin)
	assert.Equal(t, &messages.NotFound{Invs: []inv.Inv{unknown}}, ev.event)
}

func TestSimPeer_Announce(t *testing.T) {
	hub := NewHub()
	nets := newNetworks(t, hub, 2)
	node, remote := nets[0], nets[1]
	rec := newRecorder()
	_, err := node.Register(network.ObjectExchange, rec)
	require.NoError(t, err)

	chain := unittest.HeaderChainFixture(unittest.GenesisFixture(), 5)
	txns := unittest.HashListFixture(2)
	sim, err := NewSimPeer(unittest.Logger(), metrics.NewNoopCollector(), remote, chain, WithTransactions(txns))
	require.NoError(t, err)
	require.NoError(t, hub.Connect(node.ID(), remote.ID()))
	startNetworks(t, node, remote)

	require.NoError(t, sim.Announce(context.Background(), node.ID()))
	for _, header := range chain {
		announced, ok := rec.next(t).event.(*messages.HeadersAnnouncement)
		require.True(t, ok)
		assert.Equal(t, header.Hash, announced.Hash)
		assert.Equal(t, header.Height, announced.Height)
	}
	inventory, ok := rec.next(t).event.(*messages.Inventory)
	require.True(t, ok)
	assert.ElementsMatch(t, []inv.Inv{inv.New(inv.MsgTx, txns[0]), inv.New(inv.MsgTx, txns[1])}, inventory.Invs)
}

func TestSimPeer_InvalidDropRate(t *testing.T) {
	nets := newNetworks(t, NewHub(), 1)
	_, err := NewSimPeer(unittest.Logger(), metrics.NewNoopCollector(), nets[0], nil, WithDropRate(1))
	assert.Error(t, err)
}
