package requester

import (
	"errors"
	"fmt"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"

	"github.com/membercoin/membernode/engine"
	"github.com/membercoin/membernode/engine/common/fifoqueue"
	"github.com/membercoin/membernode/model/inv"
	"github.com/membercoin/membernode/model/messages"
	"github.com/membercoin/membernode/module"
	"github.com/membercoin/membernode/module/component"
	"github.com/membercoin/membernode/module/irrecoverable"
	"github.com/membercoin/membernode/module/metrics"
	"github.com/membercoin/membernode/module/requester"
	"github.com/membercoin/membernode/network"
)

var (
	// ErrInvalidObject is returned by a HandleFunc for an object that fails
	// validation. The delivering peer is dropped as a source.
	ErrInvalidObject = errors.New("invalid object")

	// ErrNotAccepted is returned by a HandleFunc for an object that is not
	// known to be bad but could not be accepted yet, typically a block whose
	// parent is missing. The object stays requestable from all its sources.
	ErrNotAccepted = errors.New("object not accepted")
)

// HandleFunc passes a delivered object, a header announcement or a peer's
// get-data request to the protocol layer.
type HandleFunc func(originID peer.ID, event interface{}) error

type announcement struct {
	originID peer.ID
	invs     []inv.Inv
}

// Engine drives the request scheduler. It turns inventory announcements into
// scheduler records, runs request passes on a timer and whenever new work
// arrives, sends the resulting get-data messages and feeds delivery outcomes
// back into the scheduler.
type Engine struct {
	*component.ComponentManager
	log     zerolog.Logger
	cfg     Config
	metrics module.EngineMetrics
	core    *requester.Core
	con     network.Conduit
	handle  HandleFunc
	pool    *workerpool.WorkerPool

	pendingInventory *fifoqueue.FifoQueue[announcement]
	pendingRequests  *fifoqueue.FifoQueue[requester.Request]

	inventoryNotifier module.Notifier
	scanNotifier      module.Notifier
}

var _ network.Engine = (*Engine)(nil)
var _ network.PeerObserver = (*Engine)(nil)
var _ component.Component = (*Engine)(nil)

// New creates a requester engine and registers it on the object exchange
// channel.
func New(
	log zerolog.Logger,
	metrics module.EngineMetrics,
	net network.Network,
	core *requester.Core,
	handle HandleFunc,
	opts ...OptionFunc,
) (*Engine, error) {

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ScanInterval <= 0 {
		return nil, fmt.Errorf("scan interval must be positive, got %s", cfg.ScanInterval)
	}
	if cfg.DispatchWorkers < 1 {
		return nil, fmt.Errorf("need at least one dispatch worker, got %d", cfg.DispatchWorkers)
	}
	if cfg.SendRetryInitial <= 0 {
		return nil, fmt.Errorf("send retry backoff must be positive, got %s", cfg.SendRetryInitial)
	}
	if handle == nil {
		return nil, fmt.Errorf("missing handle function")
	}

	pendingInventory, err := newInventoryQueue(cfg.InventoryCapacity)
	if err != nil {
		return nil, fmt.Errorf("could not create inventory queue: %w", err)
	}
	pendingRequests, err := fifoqueue.NewFifoQueue[requester.Request]()
	if err != nil {
		return nil, fmt.Errorf("could not create request queue: %w", err)
	}

	e := &Engine{
		log:               log.With().Str("engine", "requester").Logger(),
		cfg:               cfg,
		metrics:           metrics,
		core:              core,
		handle:            handle,
		pool:              workerpool.New(cfg.DispatchWorkers),
		pendingInventory:  pendingInventory,
		pendingRequests:   pendingRequests,
		inventoryNotifier: module.NewNotifier(),
		scanNotifier:      module.NewNotifier(),
	}

	con, err := net.Register(network.ObjectExchange, e)
	if err != nil {
		return nil, fmt.Errorf("could not register engine: %w", err)
	}
	e.con = con

	e.ComponentManager = component.NewComponentManagerBuilder().
		AddWorker(e.inventoryLoop).
		AddWorker(e.scanLoop).
		Build()

	return e, nil
}

func newInventoryQueue(capacity int) (*fifoqueue.FifoQueue[announcement], error) {
	return fifoqueue.NewFifoQueue(fifoqueue.WithCapacity[announcement](capacity))
}

// Process processes the given event from the node with the given origin ID
// in a blocking manner. It returns the potential processing error when done.
func (e *Engine) Process(channel network.Channel, originID peer.ID, event interface{}) error {
	err := e.process(originID, event)
	if err != nil {
		if engine.IsInvalidInputError(err) || errors.Is(err, engine.IncompatibleInputTypeError) {
			e.log.Warn().Err(err).Str("origin", originID.String()).Str("channel", channel.String()).Msg("dropping invalid event")
			return nil
		}
		return err
	}
	return nil
}

func (e *Engine) process(originID peer.ID, event interface{}) error {
	switch ev := event.(type) {
	case *messages.Inventory:
		e.metrics.MessageReceived(metrics.EngineRequester, metrics.MessageInventory)
		e.Submit(originID, ev)
		return nil
	case *messages.HeadersAnnouncement:
		e.metrics.MessageReceived(metrics.EngineRequester, metrics.MessageHeaders)
		defer e.metrics.MessageHandled(metrics.EngineRequester, metrics.MessageHeaders)
		return e.onHeaders(originID, ev)
	case *messages.GetData:
		e.metrics.MessageReceived(metrics.EngineRequester, metrics.MessageGetData)
		defer e.metrics.MessageHandled(metrics.EngineRequester, metrics.MessageGetData)
		return e.onGetData(originID, ev)
	case *messages.BlockResponse:
		e.metrics.MessageReceived(metrics.EngineRequester, metrics.MessageBlockResponse)
		defer e.metrics.MessageHandled(metrics.EngineRequester, metrics.MessageBlockResponse)
		return e.onBlockResponse(originID, ev)
	case *messages.TransactionResponse:
		e.metrics.MessageReceived(metrics.EngineRequester, metrics.MessageTransactionResponse)
		defer e.metrics.MessageHandled(metrics.EngineRequester, metrics.MessageTransactionResponse)
		return e.onTransactionResponse(originID, ev)
	case *messages.NotFound:
		e.metrics.MessageReceived(metrics.EngineRequester, metrics.MessageNotFound)
		defer e.metrics.MessageHandled(metrics.EngineRequester, metrics.MessageNotFound)
		for _, obj := range ev.Invs {
			e.core.Rejected(obj, originID, messages.RejectNotFound)
		}
		e.scanNotifier.Notify()
		return nil
	case *messages.Reject:
		e.metrics.MessageReceived(metrics.EngineRequester, metrics.MessageReject)
		defer e.metrics.MessageHandled(metrics.EngineRequester, metrics.MessageReject)
		e.core.Rejected(ev.Inv, originID, ev.Code)
		e.scanNotifier.Notify()
		return nil
	default:
		return fmt.Errorf("received input with type %T from %s: %w", event, originID, engine.IncompatibleInputTypeError)
	}
}

// Submit queues an inventory announcement for the scheduler. Announcements
// beyond the queue capacity are dropped.
func (e *Engine) Submit(originID peer.ID, inventory *messages.Inventory) {
	if len(inventory.Invs) == 0 {
		return
	}
	ok := e.pendingInventory.Push(announcement{originID: originID, invs: inventory.Invs})
	if !ok {
		e.metrics.InboundMessageDropped(metrics.EngineRequester, metrics.MessageInventory)
		e.log.Debug().Str("origin", originID.String()).Int("invs", len(inventory.Invs)).Msg("inventory queue full, dropping announcement")
		return
	}
	e.inventoryNotifier.Notify()
}

func (e *Engine) onHeaders(originID peer.ID, announced *messages.HeadersAnnouncement) error {
	err := e.handle(originID, announced)
	if err != nil {
		if errors.Is(err, ErrInvalidObject) || errors.Is(err, ErrNotAccepted) {
			return engine.NewInvalidInputErrorf("could not accept header %s from %s: %v", announced.Hash, originID, err)
		}
		return fmt.Errorf("could not handle header %s: %w", announced.Hash, err)
	}
	e.core.UpdateBlockAvailability(originID, announced.Hash)
	e.scanNotifier.Notify()
	return nil
}

// onGetData guards the protocol layer against peers asking for thin-type
// blocks faster than the configured limit.
func (e *Engine) onGetData(originID peer.ID, request *messages.GetData) error {
	for _, obj := range request.Invs {
		if e.core.CheckForRequestDOS(originID, obj.Kind) {
			return engine.NewInvalidInputErrorf("peer %s exceeded the %s request limit", originID, obj.Kind)
		}
	}
	err := e.handle(originID, request)
	if err != nil {
		return fmt.Errorf("could not serve get-data from %s: %w", originID, err)
	}
	return nil
}

func (e *Engine) onBlockResponse(originID peer.ID, res *messages.BlockResponse) error {
	if !res.Kind.IsBlock() {
		return engine.NewInvalidInputErrorf("block response with kind %s", res.Kind)
	}
	obj := inv.New(res.Kind, res.Hash)
	defer e.scanNotifier.Notify()

	if !e.core.ProcessingBlock(res.Hash, originID) {
		e.core.AlreadyReceived(originID, obj)
		return nil
	}

	err := e.handle(originID, res)
	switch {
	case err == nil:
		e.core.Received(obj, originID)
		return nil
	case errors.Is(err, ErrInvalidObject):
		e.core.Rejected(obj, originID, messages.RejectInvalid)
		return engine.NewInvalidInputErrorf("invalid block %s from %s: %v", res.Hash, originID, err)
	case errors.Is(err, ErrNotAccepted):
		e.core.BlockRejected(obj, originID)
		return nil
	default:
		e.core.BlockRejected(obj, originID)
		return fmt.Errorf("could not handle block %s: %w", res.Hash, err)
	}
}

func (e *Engine) onTransactionResponse(originID peer.ID, res *messages.TransactionResponse) error {
	if res.Kind.IsBlock() || !res.Kind.IsKnown() {
		return engine.NewInvalidInputErrorf("transaction response with kind %s", res.Kind)
	}
	obj := inv.New(res.Kind, res.Hash)
	defer e.scanNotifier.Notify()

	if !e.core.ProcessingTxn(res.Hash, originID) {
		e.core.AlreadyReceived(originID, obj)
		return nil
	}
	e.core.UpdateTxnResponseTime(obj, originID)

	err := e.handle(originID, res)
	switch {
	case err == nil:
		e.core.Received(obj, originID)
		return nil
	case errors.Is(err, ErrInvalidObject):
		e.core.Rejected(obj, originID, messages.RejectInvalid)
		return engine.NewInvalidInputErrorf("invalid transaction %s from %s: %v", res.Hash, originID, err)
	case errors.Is(err, ErrNotAccepted):
		e.core.Rejected(obj, originID, messages.RejectNonstandard)
		return nil
	default:
		e.core.Rejected(obj, originID, messages.RejectInvalid)
		return fmt.Errorf("could not handle transaction %s: %w", res.Hash, err)
	}
}

// inventoryLoop turns queued announcements into scheduler records.
func (e *Engine) inventoryLoop(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	ready()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.inventoryNotifier.Channel():
			e.processInventory()
		}
	}
}

func (e *Engine) processInventory() {
	processed := 0
	for {
		next, ok := e.pendingInventory.Pop()
		if !ok {
			break
		}
		e.core.AskForBatch(next.invs, next.originID, 0)
		for _, obj := range next.invs {
			if obj.Kind.IsBlock() {
				e.core.UpdateBlockAvailability(next.originID, obj.Hash)
			}
		}
		e.metrics.MessageHandled(metrics.EngineRequester, metrics.MessageInventory)
		processed++
	}
	if processed > 0 {
		e.scanNotifier.Notify()
	}
}

// scanLoop runs request passes and owns the dispatch pool.
func (e *Engine) scanLoop(ctx irrecoverable.SignalerContext, ready component.ReadyFunc) {
	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer func() {
		ticker.Stop()
		e.pool.StopWait()
		e.core.Cleanup()
	}()
	ready()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-e.scanNotifier.Channel():
		}
		e.scan(ctx)
	}
}

func (e *Engine) scan(ctx irrecoverable.SignalerContext) {
	reqs := e.core.SendRequests()
	for {
		req, ok := e.pendingRequests.Pop()
		if !ok {
			break
		}
		reqs = append(reqs, req)
	}
	if len(reqs) == 0 {
		return
	}

	err := e.dispatch(ctx, reqs)
	if err != nil {
		e.log.Warn().Err(err).Int("requests", len(reqs)).Msg("could not send all requests")
	}
}
