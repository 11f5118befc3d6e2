package health

import (
	"sync"

	"github.com/erpc/walletrpc/common"
)

// Tracker records consecutive failures per endpoint url. Counts only grow;
// a success never forgives an earlier failure, so an endpoint that misbehaved
// stays deprioritized for the rest of the process lifetime.
//
// One Tracker is meant to be shared by every network in the process, since the
// same url may back more than one network.
type Tracker struct {
	mu       sync.RWMutex
	failures map[string]int
}

func NewTracker() *Tracker {
	return &Tracker{
		failures: make(map[string]int),
	}
}

// SelectBest returns the candidate with the lowest priority score, the earliest
// one on ties. The score is failures + penalty(index), where penalty(0) = 0 and
// penalty(i) = 2^i, so each rank drop needs exponentially more failures.
func (t *Tracker) SelectBest(candidates []common.Endpoint) (common.Endpoint, error) {
	if len(candidates) == 0 {
		return common.Endpoint{}, common.NewErrEmptyCandidateList()
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	best := 0
	bestScore := t.score(candidates[0], 0)
	for i := 1; i < len(candidates); i++ {
		if s := t.score(candidates[i], i); s < bestScore {
			best, bestScore = i, s
		}
	}

	return candidates[best], nil
}

// Score exposes the priority score of the candidate at index i.
func (t *Tracker) Score(endpoint common.Endpoint, index int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.score(endpoint, index)
}

func (t *Tracker) score(endpoint common.Endpoint, index int) int {
	return t.failures[endpoint.Url] + penalty(index)
}

func penalty(index int) int {
	if index <= 0 {
		return 0
	}
	if index >= 62 {
		return int(^uint(0) >> 2)
	}
	return 1 << index
}

// RecordFailure increments the failure count of endpoint, creating it at 1.
func (t *Tracker) RecordFailure(endpoint common.Endpoint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[endpoint.Url]++
}

func (t *Tracker) FailureCount(endpoint common.Endpoint) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.failures[endpoint.Url]
}

// ResetAll clears every record. Production code never calls this mid-session.
func (t *Tracker) ResetAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = make(map[string]int)
}
