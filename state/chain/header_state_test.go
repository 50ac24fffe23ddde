package chain_test

import (
	"testing"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/membercoin/membernode/model/block"
	"github.com/membercoin/membernode/module/metrics"
	"github.com/membercoin/membernode/state/chain"
	"github.com/membercoin/membernode/storage"
	bstorage "github.com/membercoin/membernode/storage/badger"
	"github.com/membercoin/membernode/utils/unittest"
)

func bootstrap(t *testing.T, db *badger.DB) (*chain.HeaderState, *block.Header) {
	genesis := unittest.GenesisFixture()
	headers := bstorage.NewHeaders(metrics.NewNoopCollector(), db)
	state, err := chain.Bootstrap(unittest.Logger(), db, headers, chain.Regtest, genesis)
	require.NoError(t, err)
	return state, genesis
}

func TestHeaderState_ExtendAndValidate(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		state, genesis := bootstrap(t, db)
		assert.Equal(t, uint64(0), state.ValidatedHeight())
		assert.True(t, state.HaveBlock(genesis.Hash))
		assert.Equal(t, 10*time.Minute, state.TargetSpacing())

		headers := unittest.HeaderChainFixture(genesis, 5)
		for _, header := range headers {
			require.NoError(t, state.Extend(header))
		}
		assert.Equal(t, headers[4].Hash, state.Best().Hash)
		assert.False(t, state.HaveBlock(headers[0].Hash))

		// out of order delivery only advances once the gap is filled
		require.NoError(t, state.MarkReceived(headers[1].Hash))
		assert.Equal(t, uint64(0), state.ValidatedHeight())
		require.NoError(t, state.MarkReceived(headers[0].Hash))
		assert.Equal(t, uint64(2), state.ValidatedHeight())

		ancestor, err := state.Ancestor(headers[4].Hash, 1)
		require.NoError(t, err)
		assert.Equal(t, headers[0].Hash, ancestor.Hash)

		self, err := state.Ancestor(headers[4].Hash, 5)
		require.NoError(t, err)
		assert.Equal(t, headers[4].Hash, self.Hash)

		_, err = state.Ancestor(headers[2].Hash, 4)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestHeaderState_UnknownParent(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		state, genesis := bootstrap(t, db)

		orphan := unittest.HeaderWithParentFixture(unittest.HeaderWithParentFixture(genesis))
		err := state.Extend(orphan)
		assert.ErrorIs(t, err, chain.ErrUnknownParent)
	})
}

func TestHeaderState_Reorg(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		state, genesis := bootstrap(t, db)

		main := unittest.HeaderChainFixture(genesis, 3)
		for _, header := range main {
			require.NoError(t, state.Extend(header))
			require.NoError(t, state.MarkReceived(header.Hash))
		}
		require.Equal(t, uint64(3), state.ValidatedHeight())

		// a longer fork from height 1 takes over
		fork := unittest.HeaderChainFixture(main[0], 4)
		for _, header := range fork {
			require.NoError(t, state.Extend(header))
		}
		assert.Equal(t, fork[3].Hash, state.Best().Hash)
		assert.Equal(t, uint64(1), state.ValidatedHeight())

		// fork block ancestors resolve through the new main chain
		ancestor, err := state.Ancestor(fork[3].Hash, 2)
		require.NoError(t, err)
		assert.Equal(t, fork[0].Hash, ancestor.Hash)

		// the old branch resolves by walking parents
		old, err := state.Ancestor(main[2].Hash, 2)
		require.NoError(t, err)
		assert.Equal(t, main[1].Hash, old.Hash)
	})
}

func TestHeaderState_Reopen(t *testing.T) {
	unittest.RunWithBadgerDB(t, func(db *badger.DB) {
		state, genesis := bootstrap(t, db)
		headers := unittest.HeaderChainFixture(genesis, 3)
		for _, header := range headers {
			require.NoError(t, state.Extend(header))
		}
		require.NoError(t, state.MarkReceived(headers[0].Hash))

		reopened, err := chain.OpenState(unittest.Logger(), db, bstorage.NewHeaders(metrics.NewNoopCollector(), db), chain.Regtest)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), reopened.ValidatedHeight())
		assert.Equal(t, headers[2].Hash, reopened.Best().Hash)
	})
}

func TestParseID(t *testing.T) {
	id, err := chain.ParseID("main")
	require.NoError(t, err)
	assert.Equal(t, 78*time.Second, id.TargetSpacing())

	_, err = chain.ParseID("nope")
	assert.Error(t, err)
}
