package requester

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/membercoin/membernode/engine"
	"github.com/membercoin/membernode/model/inv"
	"github.com/membercoin/membernode/model/messages"
	"github.com/membercoin/membernode/module/irrecoverable"
	"github.com/membercoin/membernode/module/metrics"
	"github.com/membercoin/membernode/module/requester"
	"github.com/membercoin/membernode/network"
	networkmock "github.com/membercoin/membernode/network/mock"
	chainmock "github.com/membercoin/membernode/state/chain/mock"
	"github.com/membercoin/membernode/storage"
	"github.com/membercoin/membernode/utils/unittest"
)

func TestRequesterEngine(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

type sent struct {
	msg    *messages.GetData
	target peer.ID
}

type EngineSuite struct {
	suite.Suite

	mu        sync.Mutex
	connected map[peer.ID]bool
	sendErrs  []error // returned by successive Unicast calls, then nil
	handleErr error
	handled   []interface{}

	sent    chan sent
	peers   *networkmock.PeerDirectory
	con     *networkmock.Conduit
	core    *requester.Core
	e       *Engine
	ids     []peer.ID
	cancel  context.CancelFunc
	started bool
}

func (ss *EngineSuite) SetupTest() {
	ss.connected = make(map[peer.ID]bool)
	ss.sendErrs = nil
	ss.handleErr = nil
	ss.handled = nil
	ss.sent = make(chan sent, 1000)
	ss.started = false

	ss.peers = networkmock.NewPeerDirectory(ss.T())
	ss.peers.On("IsConnected", mock.Anything).Return(
		func(peerID peer.ID) bool {
			ss.mu.Lock()
			defer ss.mu.Unlock()
			return ss.connected[peerID]
		},
	).Maybe()
	ss.peers.On("Peers").Return(
		func() peer.IDSlice {
			ss.mu.Lock()
			defer ss.mu.Unlock()
			var ids peer.IDSlice
			for peerID, ok := range ss.connected {
				if ok {
					ids = append(ids, peerID)
				}
			}
			sort.Sort(ids)
			return ids
		},
	).Maybe()

	state := chainmock.NewState(ss.T())
	state.On("ValidatedHeight").Return(uint64(0)).Maybe()
	state.On("TargetSpacing").Return(10 * time.Minute).Maybe()
	state.On("Header", mock.Anything).Return(nil, storage.ErrNotFound).Maybe()

	core, err := requester.New(unittest.Logger(), requester.DefaultConfig(), metrics.NewNoopCollector(), state, ss.peers)
	ss.Require().NoError(err)
	ss.core = core

	ss.con = networkmock.NewConduit(ss.T())
	ss.con.On("Unicast", mock.Anything, mock.Anything).Return(
		func(event interface{}, target peer.ID) error {
			ss.mu.Lock()
			var err error
			if len(ss.sendErrs) > 0 {
				err, ss.sendErrs = ss.sendErrs[0], ss.sendErrs[1:]
			}
			ss.mu.Unlock()
			if err == nil {
				ss.sent <- sent{msg: event.(*messages.GetData), target: target}
			}
			return err
		},
	).Maybe()

	net := networkmock.NewNetwork(ss.T())
	net.On("Register", network.ObjectExchange, mock.Anything).Return(ss.con, nil).Once()

	ss.e, err = New(unittest.Logger(), metrics.NewNoopCollector(), net, ss.core, ss.handle,
		WithScanInterval(10*time.Millisecond),
		WithSendRetry(time.Millisecond, 3),
	)
	ss.Require().NoError(err)

	ss.ids = unittest.PeerIDListFixture(3)
	for _, peerID := range ss.ids {
		ss.mu.Lock()
		ss.connected[peerID] = true
		ss.mu.Unlock()
		ss.e.OnPeerConnected(peerID)
	}
}

func (ss *EngineSuite) TearDownTest() {
	if !ss.started {
		ss.e.pool.StopWait()
		return
	}
	ss.cancel()
	unittest.RequireCloseBefore(ss.T(), ss.e.Done(), time.Second, "engine did not shut down")
}

func (ss *EngineSuite) start() {
	ctx, cancel := irrecoverable.NewMockSignalerContextWithCancel(ss.T(), context.Background())
	ss.cancel = cancel
	ss.started = true
	ss.e.Start(ctx)
	unittest.RequireCloseBefore(ss.T(), ss.e.Ready(), time.Second, "engine did not start")
}

func (ss *EngineSuite) handle(originID peer.ID, event interface{}) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.handled = append(ss.handled, event)
	return ss.handleErr
}

func (ss *EngineSuite) handledCount() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.handled)
}

func (ss *EngineSuite) nextSent() sent {
	select {
	case s := <-ss.sent:
		return s
	case <-time.After(time.Second):
		ss.FailNow("no get-data sent")
		return sent{}
	}
}

func (ss *EngineSuite) sources(obj inv.Inv) []peer.ID {
	snap := ss.core.Snapshot()
	for _, list := range [][]requester.ObjectStatus{snap.Txns, snap.Blocks} {
		for _, status := range list {
			if status.Inv.Hash == obj.Hash {
				return status.Sources
			}
		}
	}
	return nil
}

// An announced object is requested from the announcing peer.
func (ss *EngineSuite) TestInventory_RequestsObject() {
	ss.start()
	obj := unittest.TxInvFixture()

	err := ss.e.Process(network.ObjectExchange, ss.ids[1], &messages.Inventory{Invs: []inv.Inv{obj}})
	ss.Require().NoError(err)

	s := ss.nextSent()
	ss.Assert().Equal(ss.ids[1], s.target)
	ss.Assert().Equal([]inv.Inv{obj}, s.msg.Invs)
}

// Requests for the same peer in one pass travel in a single message.
func (ss *EngineSuite) TestDispatch_BatchesPerPeer() {
	objs := unittest.InvListFixture(inv.MsgTx, 3)
	ss.e.AskForBatch(objs, ss.ids[0], 0)
	other := unittest.TxInvFixture()
	ss.e.AskFor(other, ss.ids[2], 0)

	reqs := ss.core.SendRequests()
	ss.Require().Len(reqs, 4)
	ss.Require().NoError(ss.e.dispatch(context.Background(), reqs))

	byPeer := make(map[peer.ID][]inv.Inv)
	for i := 0; i < 2; i++ {
		s := ss.nextSent()
		byPeer[s.target] = s.msg.Invs
	}
	ss.Assert().ElementsMatch(objs, byPeer[ss.ids[0]])
	ss.Assert().Equal([]inv.Inv{other}, byPeer[ss.ids[2]])
}

// A full send queue is retried with backoff.
func (ss *EngineSuite) TestDispatch_RetriesFullQueue() {
	obj := unittest.TxInvFixture()
	ss.e.AskFor(obj, ss.ids[0], 0)
	ss.sendErrs = []error{network.ErrQueueFull, network.ErrQueueFull}

	ss.Require().NoError(ss.e.dispatch(context.Background(), ss.core.SendRequests()))
	s := ss.nextSent()
	ss.Assert().Equal([]inv.Inv{obj}, s.msg.Invs)
}

// A request that never reached the network is released so the next pass can
// pick another source without waiting for the retry interval.
func (ss *EngineSuite) TestDispatch_FailureReleasesSource() {
	obj := unittest.TxInvFixture()
	ss.e.AskFor(obj, ss.ids[0], 0)
	ss.e.AskFor(obj, ss.ids[1], 0)
	ss.sendErrs = []error{network.ErrPeerNotConnected}

	err := ss.e.dispatch(context.Background(), ss.core.SendRequests())
	ss.Require().Error(err)
	ss.Assert().True(errors.Is(err, network.ErrPeerNotConnected))

	reqs := ss.core.SendRequests()
	ss.Require().Len(reqs, 1)
	ss.Assert().Equal(ss.ids[1], reqs[0].PeerID)
}

func (ss *EngineSuite) TestBlockResponse_Received() {
	obj := unittest.BlockInvFixture()
	ss.e.AskFor(obj, ss.ids[0], 0)
	ss.core.SendRequests()

	res := &messages.BlockResponse{Kind: inv.MsgBlock, Hash: obj.Hash}
	ss.Require().NoError(ss.e.Process(network.ObjectExchange, ss.ids[0], res))
	ss.Assert().Equal(1, ss.handledCount())
	ss.Assert().False(ss.e.AlreadyAskedForBlock(obj.Hash))
	ss.Assert().Zero(ss.core.BlocksInFlight())

	// a second delivery is not handed to the protocol layer again
	ss.Require().NoError(ss.e.Process(network.ObjectExchange, ss.ids[1], res))
	ss.Assert().Equal(1, ss.handledCount())
}

func (ss *EngineSuite) TestBlockResponse_Invalid() {
	obj := unittest.BlockInvFixture()
	ss.e.AskFor(obj, ss.ids[0], 0)
	ss.e.AskFor(obj, ss.ids[1], 0)
	ss.handleErr = ErrInvalidObject

	res := &messages.BlockResponse{Kind: inv.MsgBlock, Hash: obj.Hash}
	ss.Require().NoError(ss.e.Process(network.ObjectExchange, ss.ids[0], res))
	ss.Assert().Equal([]peer.ID{ss.ids[1]}, ss.sources(obj))
}

func (ss *EngineSuite) TestBlockResponse_NotAccepted() {
	obj := unittest.BlockInvFixture()
	ss.e.AskFor(obj, ss.ids[0], 0)
	ss.e.AskFor(obj, ss.ids[1], 0)
	ss.handleErr = ErrNotAccepted

	res := &messages.BlockResponse{Kind: inv.MsgBlock, Hash: obj.Hash}
	ss.Require().NoError(ss.e.Process(network.ObjectExchange, ss.ids[0], res))
	ss.Assert().Equal([]peer.ID{ss.ids[0], ss.ids[1]}, ss.sources(obj))

	// it can be processed again once its parent shows up
	ss.handleErr = nil
	ss.Require().NoError(ss.e.Process(network.ObjectExchange, ss.ids[1], res))
	ss.Assert().False(ss.e.AlreadyAskedForBlock(obj.Hash))
	ss.Assert().Equal(2, ss.handledCount())
}

func (ss *EngineSuite) TestBlockResponse_WrongKind() {
	res := &messages.BlockResponse{Kind: inv.MsgTx, Hash: unittest.HashFixture()}
	err := ss.e.process(ss.ids[0], res)
	ss.Assert().True(engine.IsInvalidInputError(err))
	ss.Assert().Zero(ss.handledCount())
}

func (ss *EngineSuite) TestBlockResponse_UnexpectedError() {
	obj := unittest.BlockInvFixture()
	ss.e.AskFor(obj, ss.ids[0], 0)
	exception := errors.New("storage failure")
	ss.handleErr = exception

	err := ss.e.Process(network.ObjectExchange, ss.ids[0], &messages.BlockResponse{Kind: inv.MsgBlock, Hash: obj.Hash})
	ss.Assert().ErrorIs(err, exception)
	ss.Assert().True(ss.e.AlreadyAskedForBlock(obj.Hash))
}

func (ss *EngineSuite) TestTransactionResponse() {
	obj := unittest.TxInvFixture()
	ss.e.AskFor(obj, ss.ids[0], 0)
	ss.core.SendRequests()

	res := &messages.TransactionResponse{Kind: inv.MsgTx, Hash: obj.Hash}
	ss.Require().NoError(ss.e.Process(network.ObjectExchange, ss.ids[0], res))
	ss.Assert().False(ss.e.AlreadyAskedFor(obj))
	ss.Assert().Equal(1, ss.handledCount())

	snap := ss.core.Snapshot()
	ss.Assert().Zero(snap.Peers[ss.ids[0]].Outstanding)
}

func (ss *EngineSuite) TestTransactionResponse_Invalid() {
	obj := unittest.TxInvFixture()
	ss.e.AskFor(obj, ss.ids[0], 0)
	ss.handleErr = ErrInvalidObject

	res := &messages.TransactionResponse{Kind: inv.MsgTx, Hash: obj.Hash}
	ss.Require().NoError(ss.e.Process(network.ObjectExchange, ss.ids[0], res))
	ss.Assert().False(ss.e.AlreadyAskedFor(obj), "the only source was rejected")
}

func (ss *EngineSuite) TestNotFound() {
	obj := unittest.TxInvFixture()
	ss.e.AskFor(obj, ss.ids[0], 0)
	ss.e.AskFor(obj, ss.ids[1], 0)

	ss.Require().NoError(ss.e.Process(network.ObjectExchange, ss.ids[0], &messages.NotFound{Invs: []inv.Inv{obj}}))
	ss.Assert().Equal([]peer.ID{ss.ids[1]}, ss.sources(obj))

	ss.Require().NoError(ss.e.Process(network.ObjectExchange, ss.ids[1], &messages.NotFound{Invs: []inv.Inv{obj}}))
	ss.Assert().False(ss.e.AlreadyAskedFor(obj))
}

func (ss *EngineSuite) TestReject() {
	obj := unittest.TxInvFixture()
	ss.e.AskFor(obj, ss.ids[0], 0)

	reject := &messages.Reject{Inv: obj, Code: messages.RejectInsufficientFee, Reason: "fee too low"}
	ss.Require().NoError(ss.e.Process(network.ObjectExchange, ss.ids[0], reject))
	ss.Assert().False(ss.e.AlreadyAskedFor(obj))
}

func (ss *EngineSuite) TestHeadersAnnouncement() {
	announced := &messages.HeadersAnnouncement{Hash: unittest.HashFixture(), Height: 1}
	ss.Require().NoError(ss.e.Process(network.ObjectExchange, ss.ids[0], announced))
	ss.Assert().Equal(1, ss.handledCount())

	ss.handleErr = ErrInvalidObject
	err := ss.e.process(ss.ids[0], announced)
	ss.Assert().True(engine.IsInvalidInputError(err))
}

func (ss *EngineSuite) TestIncompatibleInput() {
	err := ss.e.process(ss.ids[0], "not a message")
	ss.Assert().ErrorIs(err, engine.IncompatibleInputTypeError)
	ss.Assert().NoError(ss.e.Process(network.ObjectExchange, ss.ids[0], "not a message"))
}

// Asking for thin-type blocks faster than the limit gets the peer dropped.
func (ss *EngineSuite) TestGetData_RequestDOS() {
	ss.peers.On("Disconnect", ss.ids[0], metrics.ReasonRequestDOS).Return().Once()

	request := &messages.GetData{Invs: unittest.InvListFixture(inv.MsgXThinBlock, requester.DefaultMaxThinTypeRequests)}
	ss.Require().NoError(ss.e.Process(network.ObjectExchange, ss.ids[0], request))
	ss.Assert().Equal(1, ss.handledCount())

	err := ss.e.process(ss.ids[0], &messages.GetData{Invs: []inv.Inv{unittest.InvFixture(inv.MsgXThinBlock)}})
	ss.Assert().True(engine.IsInvalidInputError(err))
	ss.Assert().Equal(1, ss.handledCount())

	// other kinds are not limited
	ss.Require().NoError(ss.e.process(ss.ids[1], &messages.GetData{Invs: unittest.InvListFixture(inv.MsgTx, 200)}))
}

func (ss *EngineSuite) TestSubmit_QueueFull() {
	ss.e.pendingInventory, _ = newInventoryQueue(1)
	first := unittest.TxInvFixture()
	second := unittest.TxInvFixture()

	ss.e.Submit(ss.ids[0], &messages.Inventory{Invs: []inv.Inv{first}})
	ss.e.Submit(ss.ids[0], &messages.Inventory{Invs: []inv.Inv{second}})
	ss.e.processInventory()

	ss.Assert().True(ss.e.AlreadyAskedFor(first))
	ss.Assert().False(ss.e.AlreadyAskedFor(second))
}

// A disconnect makes the object requestable from its other source right away.
func (ss *EngineSuite) TestPeerDisconnected_ReRequests() {
	obj := unittest.TxInvFixture()
	ss.e.AskFor(obj, ss.ids[0], 0)
	ss.e.AskFor(obj, ss.ids[1], 0)
	ss.start()

	s := ss.nextSent()
	ss.Require().Equal(ss.ids[0], s.target)

	ss.mu.Lock()
	ss.connected[ss.ids[0]] = false
	ss.mu.Unlock()
	ss.e.OnPeerDisconnected(ss.ids[0])

	s = ss.nextSent()
	ss.Assert().Equal(ss.ids[1], s.target)
	ss.Assert().Equal([]inv.Inv{obj}, s.msg.Invs)
}

// RequestBlock sends right away instead of waiting for the retry interval.
func (ss *EngineSuite) TestRequestBlock() {
	obj := unittest.BlockInvFixture()
	ss.e.AskFor(obj, ss.ids[0], 0)
	ss.e.AskFor(obj, ss.ids[1], 0)
	ss.start()

	s := ss.nextSent()
	ss.Require().Equal(ss.ids[0], s.target)

	ss.Require().True(ss.e.RequestBlock(ss.ids[1], obj))
	s = ss.nextSent()
	ss.Assert().Equal(ss.ids[1], s.target)
	ss.Assert().False(ss.e.RequestBlock(ss.ids[1], obj), "already asked")
}
