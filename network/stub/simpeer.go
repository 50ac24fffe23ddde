package stub

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/membercoin/membernode/engine"
	"github.com/membercoin/membernode/model/block"
	"github.com/membercoin/membernode/model/inv"
	"github.com/membercoin/membernode/model/messages"
	"github.com/membercoin/membernode/module"
	"github.com/membercoin/membernode/module/metrics"
	"github.com/membercoin/membernode/network"
)

type SimPeerOption func(*SimPeer)

// WithDropRate makes the peer silently ignore the given fraction of the
// objects it is asked for.
func WithDropRate(rate float64) SimPeerOption {
	return func(p *SimPeer) {
		p.dropRate = rate
	}
}

// WithTransactions lets the peer serve the given transactions.
func WithTransactions(hashes []inv.Hash) SimPeerOption {
	return func(p *SimPeer) {
		for _, hash := range hashes {
			p.txns[hash] = struct{}{}
		}
	}
}

// WithSeed fixes the random source used for dropping requests.
func WithSeed(seed int64) SimPeerOption {
	return func(p *SimPeer) {
		p.rng = rand.New(rand.NewSource(seed))
	}
}

// SimPeer is a remote node that holds a chain of blocks and a set of
// transactions and serves them on request.
type SimPeer struct {
	log      zerolog.Logger
	metrics  module.EngineMetrics
	net      *Network
	con      network.Conduit
	chain    []*block.Header // genesis excluded, ascending height
	byHash   map[inv.Hash]*block.Header
	txns     map[inv.Hash]struct{}
	dropRate float64

	mu  sync.Mutex // guards rng
	rng *rand.Rand
}

var _ network.Engine = (*SimPeer)(nil)

// NewSimPeer registers a serving engine on the object exchange channel of the
// given network.
func NewSimPeer(log zerolog.Logger, metrics module.EngineMetrics, net *Network, chain []*block.Header, opts ...SimPeerOption) (*SimPeer, error) {
	p := &SimPeer{
		log:     log.With().Str("engine", "sim_peer").Str("node", net.ID().String()).Logger(),
		metrics: metrics,
		net:     net,
		chain:   chain,
		byHash:  make(map[inv.Hash]*block.Header, len(chain)),
		txns:    make(map[inv.Hash]struct{}),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, header := range chain {
		p.byHash[header.Hash] = header
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.dropRate < 0 || p.dropRate >= 1 {
		return nil, fmt.Errorf("drop rate must be in [0, 1), got %f", p.dropRate)
	}

	con, err := net.Register(network.ObjectExchange, p)
	if err != nil {
		return nil, fmt.Errorf("could not register sim peer: %w", err)
	}
	p.con = con
	return p, nil
}

func (p *SimPeer) ID() peer.ID {
	return p.net.ID()
}

// Process implements network.Engine.
func (p *SimPeer) Process(channel network.Channel, originID peer.ID, event interface{}) error {
	switch ev := event.(type) {
	case *messages.GetData:
		p.metrics.MessageReceived(metrics.EngineSimPeer, metrics.MessageGetData)
		defer p.metrics.MessageHandled(metrics.EngineSimPeer, metrics.MessageGetData)
		return p.onGetData(originID, ev)
	case *messages.Inventory, *messages.HeadersAnnouncement, *messages.NotFound, *messages.Reject:
		// the simulated peer never fetches anything
		return nil
	default:
		return fmt.Errorf("received input with type %T from %s: %w", event, originID, engine.IncompatibleInputTypeError)
	}
}

func (p *SimPeer) onGetData(originID peer.ID, request *messages.GetData) error {
	var missing []inv.Inv
	for _, obj := range request.Invs {
		if p.drop() {
			continue
		}
		if obj.Kind.IsBlock() {
			header, ok := p.byHash[obj.Hash]
			if !ok {
				missing = append(missing, obj)
				continue
			}
			res := &messages.BlockResponse{Kind: obj.Kind, Hash: header.Hash, Parent: header.Parent, Height: header.Height}
			p.send(res, originID, metrics.MessageBlockResponse)
			continue
		}
		if _, ok := p.txns[obj.Hash]; !ok {
			missing = append(missing, obj)
			continue
		}
		p.send(&messages.TransactionResponse{Kind: obj.Kind, Hash: obj.Hash}, originID, metrics.MessageTransactionResponse)
	}
	if len(missing) > 0 {
		p.send(&messages.NotFound{Invs: missing}, originID, metrics.MessageNotFound)
	}
	return nil
}

// send is fire and forget; the requester retries whatever gets lost.
func (p *SimPeer) send(event interface{}, targetID peer.ID, message string) {
	err := p.con.Unicast(event, targetID)
	if err != nil {
		p.metrics.OutboundMessageDropped(metrics.EngineSimPeer, message)
		p.log.Debug().Err(err).Str("target", targetID.String()).Msg("response lost")
		return
	}
	p.metrics.MessageSent(metrics.EngineSimPeer, message)
}

func (p *SimPeer) drop() bool {
	if p.dropRate == 0 {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64() < p.dropRate
}

// Announce sends the peer's headers in ascending height, then its
// transactions as one inventory, waiting out full send queues.
func (p *SimPeer) Announce(ctx context.Context, targetID peer.ID) error {
	for _, header := range p.chain {
		announced := &messages.HeadersAnnouncement{Hash: header.Hash, Parent: header.Parent, Height: header.Height}
		err := p.announce(ctx, announced, targetID)
		if err != nil {
			return fmt.Errorf("could not announce header %s: %w", header.Hash, err)
		}
		p.metrics.MessageSent(metrics.EngineSimPeer, metrics.MessageHeaders)
	}

	if len(p.txns) == 0 {
		return nil
	}
	invs := make([]inv.Inv, 0, len(p.txns))
	for hash := range p.txns {
		invs = append(invs, inv.New(inv.MsgTx, hash))
	}
	err := p.announce(ctx, &messages.Inventory{Invs: invs}, targetID)
	if err != nil {
		return fmt.Errorf("could not announce %d transactions: %w", len(invs), err)
	}
	p.metrics.MessageSent(metrics.EngineSimPeer, metrics.MessageInventory)
	return nil
}

func (p *SimPeer) announce(ctx context.Context, event interface{}, targetID peer.ID) error {
	backoff := retry.WithMaxRetries(1000, retry.NewConstant(5*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := p.con.Unicast(event, targetID)
		if errors.Is(err, network.ErrQueueFull) {
			return retry.RetryableError(err)
		}
		return err
	})
}
