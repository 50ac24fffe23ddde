package main

import (
	"math/rand"

	"github.com/membercoin/membernode/model/block"
	"github.com/membercoin/membernode/model/inv"
)

// simulation is the content the simulated peers serve. The same seed always
// yields the same chain, so a data directory can be reused across runs.
type simulation struct {
	genesis *block.Header
	chain   []*block.Header // genesis excluded
	txns    []inv.Hash
}

func newSimulation(seed int64, blocks int, txns int) *simulation {
	rng := rand.New(rand.NewSource(seed))
	hash := func() inv.Hash {
		var h inv.Hash
		_, _ = rng.Read(h[:])
		return h
	}

	sim := &simulation{
		genesis: &block.Header{Hash: hash(), HaveData: true},
		chain:   make([]*block.Header, 0, blocks),
		txns:    make([]inv.Hash, 0, txns),
	}
	parent := sim.genesis
	for i := 0; i < blocks; i++ {
		next := &block.Header{Hash: hash(), Parent: parent.Hash, Height: parent.Height + 1}
		sim.chain = append(sim.chain, next)
		parent = next
	}
	for i := 0; i < txns; i++ {
		sim.txns = append(sim.txns, hash())
	}
	return sim
}

func (s *simulation) tip() uint64 {
	if len(s.chain) == 0 {
		return 0
	}
	return s.chain[len(s.chain)-1].Height
}
