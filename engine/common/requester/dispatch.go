package requester

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/sethvargo/go-retry"

	"github.com/membercoin/membernode/model/inv"
	"github.com/membercoin/membernode/model/messages"
	"github.com/membercoin/membernode/module/metrics"
	"github.com/membercoin/membernode/module/requester"
	"github.com/membercoin/membernode/network"
)

// dispatch sends one get-data message per peer, in the order the peers first
// appear in reqs. Objects whose message could not be handed to the network
// are released in the scheduler so the next pass can pick another source.
func (e *Engine) dispatch(ctx context.Context, reqs []requester.Request) error {
	var order []peer.ID
	batches := make(map[peer.ID][]inv.Inv)
	for _, req := range reqs {
		if _, ok := batches[req.PeerID]; !ok {
			order = append(order, req.PeerID)
		}
		batches[req.PeerID] = append(batches[req.PeerID], req.Inv)
	}

	var (
		mu   sync.Mutex
		errs *multierror.Error
		wg   sync.WaitGroup
	)
	for _, peerID := range order {
		peerID, invs := peerID, batches[peerID]
		wg.Add(1)
		e.pool.Submit(func() {
			defer wg.Done()
			err := e.send(ctx, peerID, invs)
			if err == nil {
				return
			}
			for _, obj := range invs {
				e.core.RequestFailed(obj, peerID)
			}
			mu.Lock()
			errs = multierror.Append(errs, err)
			mu.Unlock()
		})
	}
	wg.Wait()

	return errs.ErrorOrNil()
}

// send hands a get-data message to the conduit, backing off while the peer's
// send queue is full.
func (e *Engine) send(ctx context.Context, peerID peer.ID, invs []inv.Inv) error {
	backoff := retry.NewExponential(e.cfg.SendRetryInitial)
	backoff = retry.WithMaxRetries(e.cfg.SendRetryAttempts, backoff)

	msg := &messages.GetData{Invs: invs}
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := e.con.Unicast(msg, peerID)
		if errors.Is(err, network.ErrQueueFull) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		e.metrics.OutboundMessageDropped(metrics.EngineRequester, metrics.MessageGetData)
		return fmt.Errorf("could not send get-data for %d objects to %s: %w", len(invs), peerID, err)
	}

	e.metrics.MessageSent(metrics.EngineRequester, metrics.MessageGetData)
	return nil
}
