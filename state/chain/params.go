package chain

import (
	"fmt"
	"time"
)

// ID identifies the network a node runs on.
type ID string

const (
	Mainnet  ID = "main"
	NoLimit  ID = "nol"
	Testnet  ID = "test"
	Regtest  ID = "regtest"
	Testnet4 ID = "test4"
	Scalenet ID = "scale"
)

func (id ID) String() string {
	return string(id)
}

// TargetSpacing returns the expected time between blocks on the network.
func (id ID) TargetSpacing() time.Duration {
	switch id {
	case Mainnet:
		return 78 * time.Second
	case NoLimit:
		return 60 * time.Second
	default:
		return 10 * time.Minute
	}
}

// ParseID validates a network name.
func ParseID(s string) (ID, error) {
	switch id := ID(s); id {
	case Mainnet, NoLimit, Testnet, Regtest, Testnet4, Scalenet:
		return id, nil
	}
	return "", fmt.Errorf("unknown chain %q", s)
}
