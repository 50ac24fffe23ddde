package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	requesterengine "github.com/membercoin/membernode/engine/common/requester"
	"github.com/membercoin/membernode/module"
	"github.com/membercoin/membernode/module/irrecoverable"
	"github.com/membercoin/membernode/module/metrics"
	"github.com/membercoin/membernode/module/requester"
	"github.com/membercoin/membernode/module/util"
	"github.com/membercoin/membernode/network/stub"
	"github.com/membercoin/membernode/state/chain"
	"github.com/membercoin/membernode/storage"
	bstorage "github.com/membercoin/membernode/storage/badger"
	"github.com/membercoin/membernode/storage/badger/operation"
)

// component is what the node starts and stops as a unit.
type component interface {
	module.Startable
	module.ReadyDoneAware
}

func run(_ *cobra.Command, _ []string) (err error) {
	log, err := newLogger(viper.GetString(flagLogLevel))
	if err != nil {
		return err
	}

	cfg, err := requester.LoadConfig(viper.GetViper(), requester.DefaultConfig())
	if err != nil {
		return err
	}
	chainID, err := chain.ParseID(viper.GetString(flagChain))
	if err != nil {
		return err
	}
	simPeers := viper.GetInt(flagSimPeers)
	if simPeers < 1 {
		return fmt.Errorf("need at least one simulated peer, got %d", simPeers)
	}
	sim := newSimulation(viper.GetInt64(flagSimSeed), viper.GetInt(flagSimBlocks), viper.GetInt(flagSimTxns))

	dataDir := viper.GetString(flagDataDir)
	if dataDir == "" {
		dataDir, err = os.MkdirTemp("", "membernode")
		if err != nil {
			return fmt.Errorf("could not create data directory: %w", err)
		}
		defer func() {
			err = multierror.Append(err, os.RemoveAll(dataDir)).ErrorOrNil()
		}()
	}
	db, err := badger.Open(badger.DefaultOptions(dataDir).WithLogger(nil))
	if err != nil {
		return fmt.Errorf("could not open database in %s: %w", dataDir, err)
	}
	defer func() {
		err = multierror.Append(err, db.Close()).ErrorOrNil()
	}()

	registry := prometheus.NewRegistry()
	engineMetrics := metrics.NewEngineCollector(registry)
	headers := bstorage.NewHeaders(metrics.NewStorageCollector(registry), db)
	state, err := openState(log, db, headers, chainID, sim)
	if err != nil {
		return err
	}
	log.Info().
		Str("datadir", dataDir).
		Str("chain", chainID.String()).
		Uint64("validated_height", state.ValidatedHeight()).
		Uint64("target_height", sim.tip()).
		Msg("chain state ready")

	hub := stub.NewHub()
	selfID, err := stub.NewPeerID()
	if err != nil {
		return err
	}
	net, err := stub.NewNetwork(log, hub, selfID)
	if err != nil {
		return fmt.Errorf("could not create network: %w", err)
	}

	core, err := requester.New(log, cfg, metrics.NewRequesterCollector(registry), state, net)
	if err != nil {
		return fmt.Errorf("could not create request scheduler: %w", err)
	}
	n := newNode(log, state, sim)
	eng, err := requesterengine.New(log, engineMetrics, net, core, n.handle,
		requesterengine.WithScanInterval(viper.GetDuration(flagScanInterval)),
	)
	if err != nil {
		return fmt.Errorf("could not create requester engine: %w", err)
	}
	net.AddObserver(eng)

	components := []component{net, eng}
	peers := make([]*stub.SimPeer, 0, simPeers)
	for i := 0; i < simPeers; i++ {
		peer, simNet, err := newSimPeer(log, hub, engineMetrics, sim, i)
		if err != nil {
			return err
		}
		peers = append(peers, peer)
		components = append(components, simNet)
	}
	if port := viper.GetUint(flagMetricsPort); port != 0 {
		components = append(components, metrics.NewServer(log, port, registry))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	signalerCtx, errChan := irrecoverable.WithSignaler(ctx)

	readyAware := make([]module.ReadyDoneAware, 0, len(components))
	for _, c := range components {
		c.Start(signalerCtx)
		readyAware = append(readyAware, c)
	}
	err = util.WaitClosed(ctx, util.AllReady(readyAware...))
	if err != nil {
		return fmt.Errorf("interrupted during startup: %w", err)
	}

	for _, peer := range peers {
		err := hub.Connect(selfID, peer.ID())
		if err != nil {
			return fmt.Errorf("could not connect to %s: %w", peer.ID(), err)
		}
		go func(peer *stub.SimPeer) {
			err := peer.Announce(ctx, selfID)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Str("peer_id", peer.ID().String()).Msg("announcement incomplete")
			}
		}(peer)
	}

	start := time.Now()
	select {
	case <-n.Synced():
		log.Info().
			Dur("elapsed", time.Since(start)).
			Uint64("validated_height", state.ValidatedHeight()).
			Msg("all blocks and transactions received")
	case <-ctx.Done():
		log.Info().Msg("interrupted")
	case err := <-errChan:
		cancel()
		<-util.AllDone(readyAware...)
		return fmt.Errorf("irrecoverable error: %w", err)
	}

	cancel()
	return util.WaitError(errChan, util.AllDone(readyAware...))
}

func newSimPeer(log zerolog.Logger, hub *stub.Hub, metrics module.EngineMetrics, sim *simulation, i int) (*stub.SimPeer, *stub.Network, error) {
	id, err := stub.NewPeerID()
	if err != nil {
		return nil, nil, err
	}
	latency := time.Duration(i+1) * viper.GetDuration(flagSimLatency)
	net, err := stub.NewNetwork(log, hub, id, stub.WithLatency(latency))
	if err != nil {
		return nil, nil, fmt.Errorf("could not create network of simulated peer %d: %w", i, err)
	}
	peer, err := stub.NewSimPeer(log, metrics, net, sim.chain,
		stub.WithTransactions(sim.txns),
		stub.WithDropRate(viper.GetFloat64(flagSimDropRate)),
		stub.WithSeed(viper.GetInt64(flagSimSeed)+int64(i)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create simulated peer %d: %w", i, err)
	}
	return peer, net, nil
}

// openState bootstraps an empty database with the simulation's genesis, or
// opens an existing one after checking it holds the same chain.
func openState(log zerolog.Logger, db *badger.DB, headers *bstorage.Headers, chainID chain.ID, sim *simulation) (*chain.HeaderState, error) {
	var validated uint64
	err := db.View(operation.RetrieveValidatedHeight(&validated))
	if errors.Is(err, storage.ErrNotFound) {
		state, err := chain.Bootstrap(log, db, headers, chainID, sim.genesis)
		if err != nil {
			return nil, fmt.Errorf("could not bootstrap chain state: %w", err)
		}
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not check database: %w", err)
	}

	genesis, err := headers.ByHeight(0)
	if err != nil {
		return nil, fmt.Errorf("could not retrieve genesis: %w", err)
	}
	if genesis.Hash != sim.genesis.Hash {
		return nil, fmt.Errorf("database holds chain %s, simulation starts from %s", genesis.Hash, sim.genesis.Hash)
	}
	state, err := chain.OpenState(log, db, headers, chainID)
	if err != nil {
		return nil, fmt.Errorf("could not open chain state: %w", err)
	}
	return state, nil
}
