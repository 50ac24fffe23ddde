package requester

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// DefaultBlockDownloadWindow is how far past the validated height blocks
	// may be requested, and how many blocks a single peer may have in flight.
	DefaultBlockDownloadWindow uint32 = 1024

	// DefaultMaxThinTypeRequests is how many thin-type block requests a peer
	// may send us per ThinTypeRequestWindow.
	DefaultMaxThinTypeRequests = 100

	// DefaultBeginPruningPeers is the number of connected peers above which
	// slow or stalling peers are disconnected.
	DefaultBeginPruningPeers = 4

	// MaxBlocksPerPeerPass bounds how many new blocks the window planner
	// assigns to one peer in a single pass.
	MaxBlocksPerPeerPass = 128

	// MaxPriority is used for objects that must be fetched before anything
	// else, e.g. a block found corrupted on disk.
	MaxPriority = ^uint(0)
)

// Config holds the tunables of the request scheduler.
type Config struct {
	TxRetryInterval            time.Duration // when to ask another source for a transaction
	BlockRetryInterval         time.Duration // when to ask another source for a block
	BlockDownloadWindow        uint32        // initial download window, adjustable at runtime
	MaxThinTypeRequests        int           // thin-type requests a peer may make per ThinTypeRequestWindow
	ThinTypeRequestWindow      time.Duration // window of the per-peer thin-type request limiter
	BeginPruningPeers          int           // connected peers above which slow peers are disconnected
	TxPacerCapacity            int           // transaction requests issued at most per TxPacerWindow, <= 0 disables
	TxPacerWindow              time.Duration // window of the transaction request pacer
	ThinPacerCapacity          int           // thin-type block requests issued at most per ThinPacerWindow, <= 0 disables
	ThinPacerWindow            time.Duration // window of the thin-type block request pacer
	BlockTimeoutBase           float64       // block download timeout, in target spacings, with no other peer downloading
	BlockTimeoutPerPeer        float64       // additional target spacings per other peer downloading blocks
	SlowPeerResponseTime       time.Duration // average transaction response time above which a peer is pruned
	RecentlyCompletedCacheSize int           // number of received hashes remembered to detect late duplicates
}

func DefaultConfig() Config {
	return Config{
		TxRetryInterval:            5 * time.Second,
		BlockRetryInterval:         5 * time.Second,
		BlockDownloadWindow:        DefaultBlockDownloadWindow,
		MaxThinTypeRequests:        DefaultMaxThinTypeRequests,
		ThinTypeRequestWindow:      10 * time.Minute,
		BeginPruningPeers:          DefaultBeginPruningPeers,
		TxPacerCapacity:            2000,
		TxPacerWindow:              time.Second,
		ThinPacerCapacity:          200,
		ThinPacerWindow:            time.Second,
		BlockTimeoutBase:           1.0,
		BlockTimeoutPerPeer:        0.5,
		SlowPeerResponseTime:       2 * time.Second,
		RecentlyCompletedCacheSize: 20000,
	}
}

// Validate checks the configuration for values the scheduler cannot run with.
func (c Config) Validate() error {
	var err *multierror.Error
	if c.TxRetryInterval <= 0 {
		err = multierror.Append(err, fmt.Errorf("tx retry interval must be positive, got %s", c.TxRetryInterval))
	}
	if c.BlockRetryInterval <= 0 {
		err = multierror.Append(err, fmt.Errorf("block retry interval must be positive, got %s", c.BlockRetryInterval))
	}
	if c.BlockDownloadWindow == 0 {
		err = multierror.Append(err, fmt.Errorf("block download window must be positive"))
	}
	if c.MaxThinTypeRequests <= 0 || c.ThinTypeRequestWindow <= 0 {
		err = multierror.Append(err, fmt.Errorf("thin-type request limit must be positive, got %d per %s", c.MaxThinTypeRequests, c.ThinTypeRequestWindow))
	}
	if c.BlockTimeoutBase <= 0 || c.BlockTimeoutPerPeer < 0 {
		err = multierror.Append(err, fmt.Errorf("invalid block timeout factors base=%f per_peer=%f", c.BlockTimeoutBase, c.BlockTimeoutPerPeer))
	}
	if c.RecentlyCompletedCacheSize <= 0 {
		err = multierror.Append(err, fmt.Errorf("recently completed cache size must be positive, got %d", c.RecentlyCompletedCacheSize))
	}
	return err.ErrorOrNil()
}

const (
	// flag names, also used as viper keys
	txRetryInterval       = "txretryinterval"
	blkRetryInterval      = "blkretryinterval"
	blockDownloadWindow   = "block-download-window"
	maxThinTypeRequests   = "max-thintype-requests"
	thinTypeRequestWindow = "thintype-request-window"
	beginPruningPeers     = "begin-pruning-peers"
	slowPeerResponseTime  = "slow-peer-response-time"
	txPacerCapacity       = "tx-pacer-capacity"
)

func AllFlagNames() []string {
	return []string{
		txRetryInterval, blkRetryInterval, blockDownloadWindow, maxThinTypeRequests,
		thinTypeRequestWindow, beginPruningPeers, slowPeerResponseTime, txPacerCapacity,
	}
}

// InitializeFlags registers the scheduler flags on the provided flag set,
// using the given config for default values. Retry intervals are given in
// microseconds.
func InitializeFlags(flags *pflag.FlagSet, config Config) {
	flags.Int64(txRetryInterval, config.TxRetryInterval.Microseconds(), "how long to wait for a transaction before asking another peer, in microseconds")
	flags.Int64(blkRetryInterval, config.BlockRetryInterval.Microseconds(), "how long to wait for a block before asking another peer, in microseconds")
	flags.Uint32(blockDownloadWindow, config.BlockDownloadWindow, "how many blocks past the validated height may be requested")
	flags.Int(maxThinTypeRequests, config.MaxThinTypeRequests, "thin-type block requests a peer may make per request window before it is disconnected")
	flags.Duration(thinTypeRequestWindow, config.ThinTypeRequestWindow, "window of the thin-type block request limit")
	flags.Int(beginPruningPeers, config.BeginPruningPeers, "connected peers above which slow peers are disconnected")
	flags.Duration(slowPeerResponseTime, config.SlowPeerResponseTime, "average transaction response time above which a peer is considered slow")
	flags.Int(txPacerCapacity, config.TxPacerCapacity, "transaction requests issued per second at most, 0 disables pacing")
}

// LoadConfig reads the scheduler flags from the viper store on top of the
// given defaults and validates the result.
func LoadConfig(v *viper.Viper, defaults Config) (Config, error) {
	cfg := defaults
	if v.IsSet(txRetryInterval) {
		cfg.TxRetryInterval = time.Duration(v.GetInt64(txRetryInterval)) * time.Microsecond
	}
	if v.IsSet(blkRetryInterval) {
		cfg.BlockRetryInterval = time.Duration(v.GetInt64(blkRetryInterval)) * time.Microsecond
	}
	if v.IsSet(blockDownloadWindow) {
		cfg.BlockDownloadWindow = v.GetUint32(blockDownloadWindow)
	}
	if v.IsSet(maxThinTypeRequests) {
		cfg.MaxThinTypeRequests = v.GetInt(maxThinTypeRequests)
	}
	if v.IsSet(thinTypeRequestWindow) {
		cfg.ThinTypeRequestWindow = v.GetDuration(thinTypeRequestWindow)
	}
	if v.IsSet(beginPruningPeers) {
		cfg.BeginPruningPeers = v.GetInt(beginPruningPeers)
	}
	if v.IsSet(slowPeerResponseTime) {
		cfg.SlowPeerResponseTime = v.GetDuration(slowPeerResponseTime)
	}
	if v.IsSet(txPacerCapacity) {
		cfg.TxPacerCapacity = v.GetInt(txPacerCapacity)
	}

	err := cfg.Validate()
	if err != nil {
		return Config{}, fmt.Errorf("invalid request scheduler configuration: %w", err)
	}
	return cfg, nil
}
