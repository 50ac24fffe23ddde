package main

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	requesterengine "github.com/membercoin/membernode/engine/common/requester"
	"github.com/membercoin/membernode/model/block"
	"github.com/membercoin/membernode/model/messages"
	"github.com/membercoin/membernode/module/util"
	"github.com/membercoin/membernode/state/chain"
	"github.com/membercoin/membernode/storage"
)

// node is the protocol layer of the simulation: it links announced headers
// into the chain state, accepts delivered blocks and transactions, and
// reports when everything the peers hold has arrived.
type node struct {
	log       zerolog.Logger
	state     *chain.HeaderState
	target    uint64
	wantTxns  int64
	txns      *atomic.Int64
	blocks    util.LogProgressFunc
	synced    chan struct{}
	closeOnce sync.Once
}

func newNode(log zerolog.Logger, state *chain.HeaderState, sim *simulation) *node {
	n := &node{
		log:      log.With().Str("component", "node").Logger(),
		state:    state,
		target:   sim.tip(),
		wantTxns: int64(len(sim.txns)),
		txns:     atomic.NewInt64(0),
		synced:   make(chan struct{}),
	}
	remaining := 0
	if validated := state.ValidatedHeight(); validated < n.target {
		remaining = int(n.target - validated)
	}
	n.blocks = util.LogProgress(n.log, "block download", remaining, 30*time.Second)
	n.checkSynced()
	return n
}

func (n *node) handle(originID peer.ID, event interface{}) error {
	switch ev := event.(type) {
	case *messages.HeadersAnnouncement:
		err := n.state.Extend(&block.Header{Hash: ev.Hash, Parent: ev.Parent, Height: ev.Height})
		if errors.Is(err, chain.ErrUnknownParent) {
			return fmt.Errorf("%v: %w", err, requesterengine.ErrNotAccepted)
		}
		return err
	case *messages.BlockResponse:
		return n.onBlock(ev)
	case *messages.TransactionResponse:
		n.txns.Inc()
		n.checkSynced()
		return nil
	case *messages.GetData:
		// nothing is served to peers
		return nil
	default:
		return fmt.Errorf("unexpected event %T from %s", event, originID)
	}
}

func (n *node) onBlock(res *messages.BlockResponse) error {
	header, err := n.state.Header(res.Hash)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("block %s without header: %w", res.Hash, requesterengine.ErrNotAccepted)
	}
	if err != nil {
		return fmt.Errorf("could not look up header: %w", err)
	}
	if header.Parent != res.Parent || header.Height != res.Height {
		return fmt.Errorf("block %s does not match its header: %w", res.Hash, requesterengine.ErrInvalidObject)
	}

	before := n.state.ValidatedHeight()
	err = n.state.MarkReceived(res.Hash)
	if err != nil {
		return fmt.Errorf("could not store block %s: %w", res.Hash, err)
	}
	if after := n.state.ValidatedHeight(); after > before {
		n.blocks(int(after - before))
	}
	n.checkSynced()
	return nil
}

func (n *node) checkSynced() {
	if n.state.ValidatedHeight() < n.target || n.txns.Load() < n.wantTxns {
		return
	}
	n.closeOnce.Do(func() {
		close(n.synced)
	})
}

// Synced closes once the chain tip is validated and every transaction has
// arrived.
func (n *node) Synced() <-chan struct{} {
	return n.synced
}
