// feedstate.go provides the in-memory FeedStateStore.
//
// State is partitioned by network and each partition has its own lock, so
// orchestrating different networks concurrently never contends. Pairs are
// declared once at startup and are never removed. Data is lost on process
// restart; it is rebuilt from on-chain reads.
package memory

import (
	"sync"
	"time"

	"github.com/archon-research/oracle-pusher/internal/domain/entity"
	"github.com/archon-research/oracle-pusher/internal/ports/outbound"
)

// Compile-time check that FeedStateStore implements outbound.FeedStateStore
var _ outbound.FeedStateStore = (*FeedStateStore)(nil)

type networkPartition struct {
	mu     sync.RWMutex
	states map[entity.FeedID]entity.FeedState
}

// FeedStateStore is an in-memory implementation of the FeedStateStore port.
type FeedStateStore struct {
	// partitions is only written during construction.
	partitions map[string]*networkPartition
}

// NewFeedStateStore declares a sentinel state for every (feed, network) pair
// named by the feed specs.
func NewFeedStateStore(feeds []entity.FeedSpec) *FeedStateStore {
	s := &FeedStateStore{partitions: make(map[string]*networkPartition)}
	for _, feed := range feeds {
		for _, network := range feed.Networks {
			s.declare(feed.ID, network)
		}
	}
	return s
}

// declare creates the sentinel entry for a pair. Existing entries are kept.
func (s *FeedStateStore) declare(feedID entity.FeedID, network string) {
	p, ok := s.partitions[network]
	if !ok {
		p = &networkPartition{states: make(map[entity.FeedID]entity.FeedState)}
		s.partitions[network] = p
	}
	if _, ok := p.states[feedID]; !ok {
		p.states[feedID] = entity.FeedState{}
	}
}

// Get returns the state of a declared pair.
func (s *FeedStateStore) Get(feedID entity.FeedID, network string) (entity.FeedState, error) {
	p, ok := s.partitions[network]
	if !ok {
		return entity.FeedState{}, undeclared(feedID, network)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	state, ok := p.states[feedID]
	if !ok {
		return entity.FeedState{}, undeclared(feedID, network)
	}
	return state, nil
}

// Set overwrites the state of a declared pair.
func (s *FeedStateStore) Set(feedID entity.FeedID, network string, price float64, confirmedAt time.Time) error {
	p, ok := s.partitions[network]
	if !ok {
		return undeclared(feedID, network)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.states[feedID]; !ok {
		return undeclared(feedID, network)
	}
	p.states[feedID] = entity.FeedState{LastPrice: price, LastConfirmedAt: confirmedAt}
	return nil
}

// Snapshot returns a copy of all states on a network.
func (s *FeedStateStore) Snapshot(network string) map[entity.FeedID]entity.FeedState {
	p, ok := s.partitions[network]
	if !ok {
		return map[entity.FeedID]entity.FeedState{}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[entity.FeedID]entity.FeedState, len(p.states))
	for id, st := range p.states {
		out[id] = st
	}
	return out
}

// PairCount returns the number of declared (feed, network) pairs.
func (s *FeedStateStore) PairCount() int {
	n := 0
	for _, p := range s.partitions {
		p.mu.RLock()
		n += len(p.states)
		p.mu.RUnlock()
	}
	return n
}

func undeclared(feedID entity.FeedID, network string) error {
	return entity.NewConfigurationError("feed_state", "pair (%s, %s) was never declared", feedID, network)
}
