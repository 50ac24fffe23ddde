package metrics

import (
	"time"

	"github.com/membercoin/membernode/module"
)

type NoopCollector struct{}

var (
	_ module.EngineMetrics    = (*NoopCollector)(nil)
	_ module.RequesterMetrics = (*NoopCollector)(nil)
	_ module.StorageMetrics   = (*NoopCollector)(nil)
)

func NewNoopCollector() *NoopCollector {
	nc := &NoopCollector{}
	return nc
}

func (nc *NoopCollector) MessageSent(engine string, message string)                   {}
func (nc *NoopCollector) MessageReceived(engine string, message string)               {}
func (nc *NoopCollector) MessageHandled(engine string, message string)                {}
func (nc *NoopCollector) InboundMessageDropped(engine string, message string)         {}
func (nc *NoopCollector) OutboundMessageDropped(engine string, message string)        {}
func (nc *NoopCollector) ObjectRequested(kind string)                                 {}
func (nc *NoopCollector) ObjectReceived(kind string, sinceFirstRequest time.Duration) {}
func (nc *NoopCollector) ObjectRejected(kind string)                                  {}
func (nc *NoopCollector) ObjectDropped(kind string)                                   {}
func (nc *NoopCollector) ObjectsPending(txns int, blocks int)                         {}
func (nc *NoopCollector) BlocksInFlight(count int)                                    {}
func (nc *NoopCollector) PeerFlagged(reason string)                                   {}
func (nc *NoopCollector) RequestRateLimited(kind string)                              {}
func (nc *NoopCollector) HeaderStored(count int)                                      {}
func (nc *NoopCollector) HeaderLookup(duration time.Duration, found bool)             {}
