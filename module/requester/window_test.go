package requester

import (
	"testing"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/membercoin/membernode/model/block"
	"github.com/membercoin/membernode/model/inv"
	"github.com/membercoin/membernode/module/metrics"
	networkmock "github.com/membercoin/membernode/network/mock"
	"github.com/membercoin/membernode/state/chain"
	bstorage "github.com/membercoin/membernode/storage/badger"
	"github.com/membercoin/membernode/utils/unittest"
)

// runWithChain runs f against a core backed by a real header state holding a
// chain of n headers on top of genesis, none of which has data yet.
func runWithChain(t *testing.T, n int, window uint32, connected peer.IDSlice, f func(*Core, *chain.HeaderState, []*block.Header)) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		genesis := unittest.GenesisFixture()
		headers := bstorage.NewHeaders(metrics.NewNoopCollector(), db)
		state, err := chain.Bootstrap(unittest.Logger(), db, headers, chain.Regtest, genesis)
		require.NoError(t, err)
		chainHeaders := unittest.HeaderChainFixture(genesis, n)
		for _, header := range chainHeaders {
			require.NoError(t, state.Extend(header))
		}

		directory := networkmock.NewPeerDirectory(t)
		directory.On("Peers").Return(connected).Maybe()
		directory.On("IsConnected", mock.Anything).Return(true).Maybe()

		config := DefaultConfig()
		config.BlockDownloadWindow = window
		core, err := New(unittest.Logger(), config, metrics.NewNoopCollector(), state, directory)
		require.NoError(t, err)
		for _, peerID := range connected {
			core.InitializeNodeState(peerID)
		}
		f(core, state, chainHeaders)
	})
}

func hashes(headers []*block.Header) []inv.Hash {
	list := make([]inv.Hash, 0, len(headers))
	for _, header := range headers {
		list = append(list, header.Hash)
	}
	return list
}

func TestFindNextBlocksToDownload(t *testing.T) {
	ids := unittest.PeerIDListFixture(2)
	runWithChain(t, 10, 4, ids, func(core *Core, state *chain.HeaderState, headers []*block.Header) {
		// nothing is known about the peer yet
		assert.Empty(t, core.FindNextBlocksToDownload(ids[0], 10))

		core.UpdateBlockAvailability(ids[0], headers[9].Hash)

		// bounded by count, then by the window
		assert.Equal(t, hashes(headers[:2]), core.FindNextBlocksToDownload(ids[0], 2))
		assert.Equal(t, hashes(headers[:4]), core.FindNextBlocksToDownload(ids[0], 10))

		// blocks in flight from anyone are skipped
		core.MarkBlockAsInFlight(ids[1], headers[1].Hash)
		assert.Equal(t, []inv.Hash{headers[0].Hash, headers[2].Hash, headers[3].Hash}, core.FindNextBlocksToDownload(ids[0], 10))

		// the window moves with the validated height, held blocks are skipped
		require.NoError(t, state.MarkReceived(headers[0].Hash))
		require.NoError(t, state.MarkReceived(headers[2].Hash))
		assert.Equal(t, uint64(1), state.ValidatedHeight())
		assert.Equal(t, []inv.Hash{headers[3].Hash, headers[4].Hash}, core.FindNextBlocksToDownload(ids[0], 10))
	})
}

func TestFindNextBlocksToDownload_PeerBehind(t *testing.T) {
	ids := unittest.PeerIDListFixture(1)
	runWithChain(t, 3, 16, ids, func(core *Core, state *chain.HeaderState, headers []*block.Header) {
		core.UpdateBlockAvailability(ids[0], headers[0].Hash)
		require.NoError(t, state.MarkReceived(headers[0].Hash))
		assert.Empty(t, core.FindNextBlocksToDownload(ids[0], 10))
	})
}

func TestUpdateBlockAvailability_UnknownThenKnown(t *testing.T) {
	ids := unittest.PeerIDListFixture(1)
	runWithChain(t, 2, 16, ids, func(core *Core, state *chain.HeaderState, headers []*block.Header) {
		core.UpdateBlockAvailability(ids[0], headers[0].Hash)

		next := unittest.HeaderWithParentFixture(headers[1])
		core.UpdateBlockAvailability(ids[0], next.Hash)
		assert.Equal(t, hashes(headers[:1]), core.FindNextBlocksToDownload(ids[0], 10))

		// once the header arrives the peer's best known block moves up
		require.NoError(t, state.Extend(next))
		core.ProcessBlockAvailability(ids[0])
		assert.Equal(t, []inv.Hash{headers[0].Hash, headers[1].Hash, next.Hash}, core.FindNextBlocksToDownload(ids[0], 10))

		// a lower announcement does not move it back
		core.UpdateBlockAvailability(ids[0], headers[0].Hash)
		assert.Len(t, core.FindNextBlocksToDownload(ids[0], 10), 3)
	})
}

func TestRequestNextBlocksToDownload(t *testing.T) {
	ids := unittest.PeerIDListFixture(2)
	runWithChain(t, 6, 4, ids, func(core *Core, state *chain.HeaderState, headers []*block.Header) {
		core.UpdateBlockAvailability(ids[0], headers[5].Hash)
		core.UpdateBlockAvailability(ids[1], headers[5].Hash)

		reqs := core.RequestNextBlocksToDownload(ids[0])
		require.Len(t, reqs, 4)
		for i, req := range reqs {
			assert.Equal(t, ids[0], req.PeerID)
			assert.Equal(t, inv.New(inv.MsgBlock, headers[i].Hash), req.Inv)
		}
		assert.Equal(t, 4, core.GetNumBlocksInFlight(ids[0]))

		// every connected peer became a source
		for _, header := range headers[:4] {
			assert.True(t, core.AlreadyAskedForBlock(header.Hash))
		}
		snap := core.Snapshot()
		require.Len(t, snap.Blocks, 4)
		for _, status := range snap.Blocks {
			assert.ElementsMatch(t, []peer.ID(ids), status.Sources)
		}

		// the window is exhausted for everyone until blocks arrive
		assert.Empty(t, core.RequestNextBlocksToDownload(ids[1]))

		require.NoError(t, state.MarkReceived(headers[0].Hash))
		core.Received(inv.New(inv.MsgBlock, headers[0].Hash), ids[0])
		reqs = core.RequestNextBlocksToDownload(ids[1])
		require.Len(t, reqs, 1)
		assert.Equal(t, headers[4].Hash, reqs[0].Inv.Hash)
	})
}

func TestSendRequests_FillsWindow(t *testing.T) {
	ids := unittest.PeerIDListFixture(1)
	runWithChain(t, 300, 1024, ids, func(core *Core, state *chain.HeaderState, headers []*block.Header) {
		core.UpdateBlockAvailability(ids[0], headers[299].Hash)

		reqs := core.SendRequests()
		assert.Len(t, reqs, MaxBlocksPerPeerPass)
		reqs = core.SendRequests()
		assert.Len(t, reqs, MaxBlocksPerPeerPass)
		assert.Equal(t, 2*MaxBlocksPerPeerPass, core.BlocksInFlight())
		assert.LessOrEqual(t, core.GetNumBlocksInFlight(ids[0]), int(core.BlockDownloadWindow()))
	})
}

func TestDownloadTimeoutScalesWithWindow(t *testing.T) {
	ids := unittest.PeerIDListFixture(1)
	runWithChain(t, 1, 1024, ids, func(core *Core, state *chain.HeaderState, headers []*block.Header) {
		assert.Equal(t, 10*time.Minute, core.downloadTimeout(0))
		core.SetBlockDownloadWindow(512)
		assert.Equal(t, 10*time.Minute, core.downloadTimeout(0), "never shorter than the base")
		core.SetBlockDownloadWindow(4096)
		assert.Equal(t, 40*time.Minute, core.downloadTimeout(0))
	})
}
