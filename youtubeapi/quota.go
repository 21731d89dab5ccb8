package youtubeapi

import (
	"maps"
	"sync"

	"github.com/onnwee/chanstats/telemetry"
)

// API methods with their quota cost in units.
const (
	MethodSearchList   = "search.list"
	MethodVideosList   = "videos.list"
	MethodChannelsList = "channels.list"
)

var methodCost = map[string]int{
	MethodSearchList:   100,
	MethodVideosList:   1,
	MethodChannelsList: 1,
}

// Cost is the quota price of one call to method (1 when unknown).
func Cost(method string) int {
	if c, ok := methodCost[method]; ok {
		return c
	}
	return 1
}

// Quota tracks units spent by one process. It is safe for concurrent use.
// A positive Limit turns it into a budget: Spend refuses calls that would
// exceed it.
type Quota struct {
	Limit int

	mu    sync.Mutex
	used  int
	calls map[string]int
}

// NewQuota returns a Quota with the given budget (0 = unlimited).
func NewQuota(limit int) *Quota { return &Quota{Limit: limit, calls: map[string]int{}} }

// Spend records one call to method, or returns ErrQuotaExhausted without
// recording it when the budget would be exceeded.
func (q *Quota) Spend(method string) error {
	cost := Cost(method)
	q.mu.Lock()
	if q.Limit > 0 && q.used+cost > q.Limit {
		q.mu.Unlock()
		return ErrQuotaExhausted
	}
	q.used += cost
	if q.calls == nil {
		q.calls = map[string]int{}
	}
	q.calls[method]++
	q.mu.Unlock()
	telemetry.AddQuota(method, cost)
	return nil
}

// Used returns the units spent so far.
func (q *Quota) Used() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used
}

// Calls returns a copy of the per-method call counts.
func (q *Quota) Calls() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return maps.Clone(q.calls)
}
