package requester

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/membercoin/membernode/model/inv"
	"github.com/membercoin/membernode/model/messages"
	"github.com/membercoin/membernode/module"
	"github.com/membercoin/membernode/module/ratelimit"
	"github.com/membercoin/membernode/network"
	"github.com/membercoin/membernode/state/chain"
)

// Request is a decision to send a get-data for one object to one peer.
type Request struct {
	PeerID peer.ID
	Inv    inv.Inv
}

// Core tracks every object the node was told about and does not hold yet,
// and decides which peer to ask for it, when to ask again and when to give
// up on a peer.
//
// Core never talks to the network itself: scheduling passes return the
// requests to send and the caller delivers them. The only outbound calls
// made while holding the lock go to the PeerDirectory, which must not block.
//
// Core is safe for concurrent use by multiple goroutines.
type Core struct {
	log     zerolog.Logger
	config  Config
	metrics module.RequesterMetrics
	state   chain.State
	peers   network.PeerDirectory
	score   ScoreFunc
	now     ratelimit.GetTimeNow

	mu            sync.Mutex
	txns          table
	blocks        table
	inFlightIndex map[inv.Hash]map[peer.ID]*list.Element
	nodes         map[peer.ID]*peerState
	txCursor      inv.Hash
	blockCursor   inv.Hash
	txPacer       *ratelimit.LeakyBucket
	thinPacer     *ratelimit.LeakyBucket
	completed     *lru.Cache[inv.Hash, struct{}]
	stopped       bool

	window   *atomic.Uint32
	inFlight *atomic.Int64
}

// Option configures a Core.
type Option func(*Core)

// WithScoreFunc replaces the source selection policy.
func WithScoreFunc(score ScoreFunc) Option {
	return func(c *Core) {
		c.score = score
	}
}

// WithTimeNow replaces the clock.
func WithTimeNow(now ratelimit.GetTimeNow) Option {
	return func(c *Core) {
		c.now = now
	}
}

// New returns a core with empty tables. The config is validated first.
func New(log zerolog.Logger, config Config, metrics module.RequesterMetrics, state chain.State, peers network.PeerDirectory, opts ...Option) (*Core, error) {
	err := config.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	completed, err := lru.New[inv.Hash, struct{}](config.RecentlyCompletedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("could not create completed cache: %w", err)
	}

	c := &Core{
		log:           log.With().Str("module", "requester_core").Logger(),
		config:        config,
		metrics:       metrics,
		state:         state,
		peers:         peers,
		score:         DefaultScore,
		now:           time.Now,
		txns:          make(table),
		blocks:        make(table),
		inFlightIndex: make(map[inv.Hash]map[peer.ID]*list.Element),
		nodes:         make(map[peer.ID]*peerState),
		completed:     completed,
		window:        atomic.NewUint32(config.BlockDownloadWindow),
		inFlight:      atomic.NewInt64(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.txPacer = ratelimit.NewLeakyBucket(config.TxPacerCapacity, config.TxPacerWindow, ratelimit.WithTimeNow(c.now))
	c.thinPacer = ratelimit.NewLeakyBucket(config.ThinPacerCapacity, config.ThinPacerWindow, ratelimit.WithTimeNow(c.now))
	return c, nil
}

// AskFor registers that the peer can provide the object. The priority is
// raised if higher than before, never lowered. Request timers are not
// touched, so repeated announcements do not delay or hasten a request.
func (c *Core) AskFor(obj inv.Inv, from peer.ID, priority uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.askFor(obj, from, priority)
}

// AskForBatch registers the peer as a source of each of the objects.
func (c *Core) AskForBatch(objs []inv.Inv, from peer.ID, priority uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	for _, obj := range objs {
		c.askFor(obj, from, priority)
	}
}

// AskForDuringIBD registers blocks during initial sync, when every connected
// peer is assumed to hold them. Each connected peer becomes a source, so a
// block can be re-requested from anyone after a timeout. Blocks already
// tracked are skipped.
func (c *Core) AskForDuringIBD(objs []inv.Inv, from peer.ID, priority uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	connected := c.peers.Peers()
	for _, obj := range objs {
		if c.alreadyAskedForBlock(obj.Hash) {
			continue
		}
		o := c.askFor(obj, from, priority)
		if o == nil {
			continue
		}
		for _, peerID := range connected {
			o.addSource(peerID)
			c.peerState(peerID)
		}
	}
}

func (c *Core) askFor(obj inv.Inv, from peer.ID, priority uint) *unknownObject {
	t, ok := c.tableFor(obj.Kind)
	if !ok {
		c.invariant("announcement of unknown kind %d from %s", uint32(obj.Kind), from)
		return nil
	}
	if c.completed.Contains(obj.Hash) {
		return nil
	}

	o, ok := t[obj.Hash]
	if !ok {
		o = newUnknownObject(obj)
		t[obj.Hash] = o
	}
	if o.addSource(from) && c.log.Debug().Enabled() {
		c.log.Debug().
			Str("kind", obj.Kind.String()).
			Hex("hash", obj.Hash[:]).
			Str("peer_id", from.String()).
			Int("sources", len(o.sources)).
			Msg("added object source")
	}
	if priority > o.priority {
		o.priority = priority
	}
	c.peerState(from)
	return o
}

// AlreadyAskedFor returns whether the object is tracked.
func (c *Core) AlreadyAskedFor(obj inv.Inv) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tableFor(obj.Kind)
	if !ok {
		return false
	}
	_, ok = t[obj.Hash]
	return ok
}

// AlreadyAskedForBlock returns whether the block is tracked or in flight.
func (c *Core) AlreadyAskedForBlock(hash inv.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.alreadyAskedForBlock(hash)
}

func (c *Core) alreadyAskedForBlock(hash inv.Hash) bool {
	if _, ok := c.blocks[hash]; ok {
		return true
	}
	_, ok := c.inFlightIndex[hash]
	return ok
}

// UpdateTxnResponseTime records how long the peer took to answer a
// transaction request.
func (c *Core) UpdateTxnResponseTime(obj inv.Inv, from peer.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	o, ok := c.txns[obj.Hash]
	if !ok {
		return
	}
	c.sampleResponse(o, from)
}

func (c *Core) sampleResponse(o *unknownObject, from peer.ID) {
	s := o.source(from)
	if s == nil || !s.outstanding || s.responded {
		return
	}
	ps, ok := c.nodes[from]
	if !ok {
		return
	}
	s.responded = true
	s.unanswered = 0
	ps.sampleTxResponse(c.now().Sub(s.requestedAt))
}

// Downloading records that the data of a block started arriving from the
// peer. The request timer restarts so that large objects are not
// re-requested while they stream in.
func (c *Core) Downloading(hash inv.Hash, from peer.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	o, ok := c.blocks[hash]
	if !ok {
		o, ok = c.txns[hash]
	}
	if !ok {
		return
	}
	now := c.now()
	o.lastRequestTime = now
	if o.downloadingSince.IsZero() {
		o.downloadingSince = now
	}
}

// ProcessingTxn marks a delivered transaction as under validation. It returns
// false for a duplicate delivery, which the caller should report through
// AlreadyReceived instead of validating it again.
func (c *Core) ProcessingTxn(hash inv.Hash, from peer.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	o, ok := c.txns[hash]
	if ok {
		c.sampleResponse(o, from)
	}
	return c.processing(o, hash)
}

// ProcessingBlock marks a delivered block as under validation. It returns
// false for a duplicate delivery, which the caller should report through
// AlreadyReceived instead of validating it again.
func (c *Core) ProcessingBlock(hash inv.Hash, from peer.ID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	o := c.blocks[hash]
	if o != nil {
		if s := o.source(from); s != nil {
			s.responded = true
			s.unanswered = 0
		}
	}
	return c.processing(o, hash)
}

func (c *Core) processing(o *unknownObject, hash inv.Hash) bool {
	if o == nil {
		// unsolicited objects are validated unless we just finished one
		return !c.completed.Contains(hash)
	}
	if o.processing {
		return false
	}
	o.processing = true
	return true
}

// BlockRejected records that a block failed initial acceptance. The block
// stays tracked with all its sources and becomes requestable right away.
func (c *Core) BlockRejected(obj inv.Inv, from peer.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	o, ok := c.blocks[obj.Hash]
	if !ok {
		return
	}
	o.processing = false
	o.lastRequestTime = time.Time{}
	if s := o.source(from); s != nil {
		c.releaseSource(o, s)
	}
	c.eraseFlight(obj.Hash, from)
}

// Received records that the object was delivered and accepted. The object is
// forgotten, and later deliveries are recognized as duplicates.
func (c *Core) Received(obj inv.Inv, from peer.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	t, ok := c.tableFor(obj.Kind)
	if !ok {
		c.invariant("received object of unknown kind %d from %s", uint32(obj.Kind), from)
		return
	}
	o, ok := t[obj.Hash]
	if !ok {
		c.eraseAllFlight(obj.Hash)
		return
	}

	if obj.Kind.IsBlock() {
		if ps, ok := c.nodes[from]; ok {
			ps.blocksDelivered++
		}
	} else {
		c.sampleResponse(o, from)
	}
	var since time.Duration
	if !o.downloadingSince.IsZero() {
		since = c.now().Sub(o.downloadingSince)
	}
	c.metrics.ObjectReceived(o.obj.Kind.String(), since)
	c.removeObject(t, o)
	c.completed.Add(obj.Hash, struct{}{})

	if c.log.Debug().Enabled() {
		c.log.Debug().
			Str("kind", obj.Kind.String()).
			Hex("hash", obj.Hash[:]).
			Str("peer_id", from.String()).
			Dur("since_first_request", since).
			Msg("object received")
	}
}

// AlreadyReceived records a duplicate delivery. While an earlier copy is
// still being validated only the peer's request is released, so the object
// stays tracked in case that copy fails. Otherwise the object is already held
// and stops being tracked without touching the receive statistics.
func (c *Core) AlreadyReceived(from peer.ID, obj inv.Inv) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	t, ok := c.tableFor(obj.Kind)
	if !ok {
		return
	}
	o, ok := t[obj.Hash]
	if !ok {
		c.eraseAllFlight(obj.Hash)
		return
	}
	if o.processing {
		if s := o.source(from); s != nil {
			s.responded = true
			c.releaseSource(o, s)
		}
		c.eraseFlight(obj.Hash, from)
		return
	}
	c.removeObject(t, o)
	c.completed.Add(obj.Hash, struct{}{})
}

// Rejected records that the peer delivered a bad object, or reported it does
// not have it. The peer stops being a source. The object is requested again
// from another source, or dropped when none remains.
func (c *Core) Rejected(obj inv.Inv, from peer.ID, reason messages.RejectCode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	t, ok := c.tableFor(obj.Kind)
	if !ok {
		return
	}
	o, ok := t[obj.Hash]
	if !ok {
		c.eraseFlight(obj.Hash, from)
		return
	}

	if s := o.removeSource(from); s != nil {
		c.releaseSource(o, s)
	}
	c.eraseFlight(obj.Hash, from)
	o.processing = false
	o.lastRequestTime = time.Time{}

	log := c.log.With().
		Str("kind", obj.Kind.String()).
		Hex("hash", obj.Hash[:]).
		Str("peer_id", from.String()).
		Str("reason", reason.String()).
		Logger()
	if len(o.sources) > 0 {
		log.Debug().Int("sources", len(o.sources)).Msg("object rejected, trying other sources")
		return
	}
	c.removeObject(t, o)
	c.metrics.ObjectRejected(obj.Kind.String())
	log.Debug().Msg("object rejected by every source, dropped")
}

// RequestFailed records that a request decided by a scheduling pass could not
// be sent. The object becomes requestable again right away.
func (c *Core) RequestFailed(obj inv.Inv, to peer.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	t, ok := c.tableFor(obj.Kind)
	if !ok {
		return
	}
	o, ok := t[obj.Hash]
	if !ok {
		return
	}
	if s := o.source(to); s != nil {
		c.releaseSource(o, s)
	}
	c.eraseFlight(obj.Hash, to)
	o.lastRequestTime = time.Time{}
}

// RequestCorruptedBlock fetches a block again from every connected peer,
// ahead of everything else.
func (c *Core) RequestCorruptedBlock(hash inv.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	o, ok := c.blocks[hash]
	if !ok {
		o = newUnknownObject(inv.New(inv.MsgBlock, hash))
		c.blocks[hash] = o
	}
	c.completed.Remove(hash)
	for _, peerID := range c.peers.Peers() {
		o.addSource(peerID)
		c.peerState(peerID)
	}
	o.priority = MaxPriority
	o.processing = false
	o.lastRequestTime = time.Time{}
}

// ResetLastBlockRequestTime makes a block requestable right away.
func (c *Core) ResetLastBlockRequestTime(hash inv.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o, ok := c.blocks[hash]; ok {
		o.lastRequestTime = time.Time{}
	}
}

// RequestBlock decides a request of a single block from the given peer,
// bypassing source selection. It returns false if the peer cannot take the
// request: it is gone, flagged, already asked, at its window, or thin-type
// requests are being paced.
func (c *Core) RequestBlock(from peer.ID, obj inv.Inv) (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return Request{}, false
	}
	if !obj.Kind.IsBlock() {
		c.invariant("direct block request for %s", obj)
		return Request{}, false
	}
	if !c.peers.IsConnected(from) {
		return Request{}, false
	}
	ps := c.peerState(from)
	if ps.flagged || ps.flight.Len() >= int(c.window.Load()) {
		return Request{}, false
	}

	o, ok := c.blocks[obj.Hash]
	if !ok {
		o = newUnknownObject(obj)
		c.blocks[obj.Hash] = o
		c.completed.Remove(obj.Hash)
	}
	o.addSource(from)
	s := o.source(from)
	if s.outstanding {
		return Request{}, false
	}
	now := c.now()
	if !c.pace(o, now) {
		return Request{}, false
	}
	return c.issue(o, s, now), true
}

// InitializeNodeState starts tracking a peer.
func (c *Core) InitializeNodeState(peerID peer.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.peerState(peerID)
}

// RemoveNodeState forgets a disconnected peer. Blocks it had in flight become
// requestable from other sources right away, and it stops being a source of
// any object.
func (c *Core) RemoveNodeState(peerID peer.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}

	if ps, ok := c.nodes[peerID]; ok {
		for _, hash := range ps.flightHashes() {
			if o, ok := c.blocks[hash]; ok {
				o.lastRequestTime = time.Time{}
			}
			c.eraseFlight(hash, peerID)
		}
	}

	now := c.now()
	for _, t := range []table{c.txns, c.blocks} {
		for _, o := range t {
			s := o.removeSource(peerID)
			if s == nil {
				continue
			}
			if s.outstanding {
				o.lastRequestTime = time.Time{}
			}
			c.releaseSource(o, s)
			if len(o.sources) == 0 {
				o.orphanedAt = now
			}
		}
	}
	delete(c.nodes, peerID)
}

// Cleanup aborts all activity and forgets everything. Every later call is a
// no-op.
func (c *Core) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.txns = make(table)
	c.blocks = make(table)
	c.inFlightIndex = make(map[inv.Hash]map[peer.ID]*list.Element)
	c.nodes = make(map[peer.ID]*peerState)
	c.completed.Purge()
	c.inFlight.Store(0)
	c.metrics.ObjectsPending(0, 0)
	c.metrics.BlocksInFlight(0)
}

// BlockDownloadWindow returns the current block download window.
func (c *Core) BlockDownloadWindow() uint32 {
	return c.window.Load()
}

// SetBlockDownloadWindow changes the block download window. The window never
// goes below one block.
func (c *Core) SetBlockDownloadWindow(window uint32) {
	if window == 0 {
		window = 1
	}
	c.window.Store(window)
}

// BlocksInFlight returns the number of block requests in flight over all peers.
func (c *Core) BlocksInFlight() int {
	return int(c.inFlight.Load())
}

func (c *Core) tableFor(kind inv.Kind) (table, bool) {
	if !kind.IsKnown() {
		return nil, false
	}
	if kind.IsBlock() {
		return c.blocks, true
	}
	return c.txns, true
}

// peerState returns the state of the peer, creating it if needed.
func (c *Core) peerState(peerID peer.ID) *peerState {
	ps, ok := c.nodes[peerID]
	if !ok {
		thin := ratelimit.NewWindowCounter(c.config.MaxThinTypeRequests, c.config.ThinTypeRequestWindow, ratelimit.WithTimeNow(c.now))
		ps = newPeerState(thin)
		c.nodes[peerID] = ps
	}
	return ps
}

// issue records a request of the object from the source.
func (c *Core) issue(o *unknownObject, s *source, now time.Time) Request {
	s.outstanding = true
	s.responded = false
	s.requestedAt = now
	s.requestCount++
	o.outstandingReqs++
	o.lastRequestTime = now
	o.rateLimited = false
	if o.downloadingSince.IsZero() {
		o.downloadingSince = now
	}
	c.peerState(s.peerID).outstanding++
	if o.obj.Kind.IsBlock() {
		c.markFlight(s.peerID, o.obj.Hash, now)
	}
	c.metrics.ObjectRequested(o.obj.Kind.String())
	return Request{PeerID: s.peerID, Inv: o.obj}
}

// releaseSource clears an unresolved request to the source.
func (c *Core) releaseSource(o *unknownObject, s *source) {
	if !s.outstanding {
		return
	}
	s.outstanding = false
	o.outstandingReqs--
	if ps, ok := c.nodes[s.peerID]; ok {
		ps.outstanding--
	}
}

// removeObject forgets the object and every request for it.
func (c *Core) removeObject(t table, o *unknownObject) {
	for _, s := range o.sources {
		c.releaseSource(o, s)
	}
	if o.obj.Kind.IsBlock() {
		c.eraseAllFlight(o.obj.Hash)
	}
	delete(t, o.obj.Hash)
}
