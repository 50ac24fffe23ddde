package requester

import (
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/membercoin/membernode/model/inv"
	"github.com/membercoin/membernode/model/messages"
	"github.com/membercoin/membernode/module/requester"
)

// The methods below forward to the scheduler and wake the request pass when
// the call may have produced new work.

func (e *Engine) AskFor(obj inv.Inv, from peer.ID, priority uint) {
	e.core.AskFor(obj, from, priority)
	e.scanNotifier.Notify()
}

func (e *Engine) AskForBatch(objs []inv.Inv, from peer.ID, priority uint) {
	e.core.AskForBatch(objs, from, priority)
	e.scanNotifier.Notify()
}

// AskForDuringIBD registers blocks found while syncing headers. Every
// connected peer becomes a source.
func (e *Engine) AskForDuringIBD(objs []inv.Inv, from peer.ID, priority uint) {
	e.core.AskForDuringIBD(objs, from, priority)
	e.scanNotifier.Notify()
}

func (e *Engine) AlreadyAskedFor(obj inv.Inv) bool {
	return e.core.AlreadyAskedFor(obj)
}

func (e *Engine) AlreadyAskedForBlock(hash inv.Hash) bool {
	return e.core.AlreadyAskedForBlock(hash)
}

// Downloading tells the scheduler a large object is streaming in from the
// peer, postponing its retry.
func (e *Engine) Downloading(hash inv.Hash, from peer.ID) {
	e.core.Downloading(hash, from)
}

func (e *Engine) UpdateTxnResponseTime(obj inv.Inv, from peer.ID) {
	e.core.UpdateTxnResponseTime(obj, from)
}

func (e *Engine) ProcessingTxn(hash inv.Hash, from peer.ID) bool {
	return e.core.ProcessingTxn(hash, from)
}

func (e *Engine) ProcessingBlock(hash inv.Hash, from peer.ID) bool {
	return e.core.ProcessingBlock(hash, from)
}

// BlockRejected reports a block that failed to be accepted for a reason
// other than being invalid. Its sources are kept.
func (e *Engine) BlockRejected(obj inv.Inv, from peer.ID) {
	e.core.BlockRejected(obj, from)
	e.scanNotifier.Notify()
}

func (e *Engine) Received(obj inv.Inv, from peer.ID) {
	e.core.Received(obj, from)
	e.scanNotifier.Notify()
}

func (e *Engine) AlreadyReceived(from peer.ID, obj inv.Inv) {
	e.core.AlreadyReceived(from, obj)
	e.scanNotifier.Notify()
}

func (e *Engine) Rejected(obj inv.Inv, from peer.ID, reason messages.RejectCode) {
	e.core.Rejected(obj, from, reason)
	e.scanNotifier.Notify()
}

func (e *Engine) ProcessBlockAvailability(peerID peer.ID) {
	e.core.ProcessBlockAvailability(peerID)
	e.scanNotifier.Notify()
}

func (e *Engine) UpdateBlockAvailability(peerID peer.ID, hash inv.Hash) {
	e.core.UpdateBlockAvailability(peerID, hash)
	e.scanNotifier.Notify()
}

// CheckForRequestDOS counts a request from the peer and returns true if the
// peer exceeded the thin-type request limit and was flagged.
func (e *Engine) CheckForRequestDOS(peerID peer.ID, kind inv.Kind) bool {
	return e.core.CheckForRequestDOS(peerID, kind)
}

func (e *Engine) RequestCorruptedBlock(hash inv.Hash) {
	e.core.RequestCorruptedBlock(hash)
	e.scanNotifier.Notify()
}

func (e *Engine) ResetLastBlockRequestTime(hash inv.Hash) {
	e.core.ResetLastBlockRequestTime(hash)
	e.scanNotifier.Notify()
}

// RequestBlock asks the peer for the block right away, bypassing the retry
// timer. It returns false if the block is not tracked or the peer cannot take
// the request.
func (e *Engine) RequestBlock(from peer.ID, obj inv.Inv) bool {
	req, ok := e.core.RequestBlock(from, obj)
	if !ok {
		return false
	}
	e.pendingRequests.Push(req)
	e.scanNotifier.Notify()
	return true
}

func (e *Engine) SetBlockDownloadWindow(window uint32) {
	e.core.SetBlockDownloadWindow(window)
	e.scanNotifier.Notify()
}

func (e *Engine) Snapshot() requester.Snapshot {
	return e.core.Snapshot()
}

func (e *Engine) OnPeerConnected(peerID peer.ID) {
	e.core.InitializeNodeState(peerID)
	e.scanNotifier.Notify()
}

// OnPeerDisconnected drops the peer's state. Objects it was serving become
// requestable from their other sources immediately.
func (e *Engine) OnPeerDisconnected(peerID peer.ID) {
	e.core.RemoveNodeState(peerID)
	e.scanNotifier.Notify()
}
