package supervisor

import (
	"sort"
	"sync"
	"sync/atomic"
)

type QueueState string

const (
	StateConnecting QueueState = "connecting"
	StateConsuming  QueueState = "consuming"
	StateStopped    QueueState = "stopped"
)

type QueueStats struct {
	Queue     string     `json:"queue"`
	State     QueueState `json:"state"`
	Received  uint64     `json:"received"`
	Acked     uint64     `json:"acked"`
	AckFailed uint64     `json:"ack_failed"`
	Succeeded uint64     `json:"succeeded"`
	Failed    uint64     `json:"failed"`
}

type PoolStats struct {
	Capacity int `json:"capacity"`
	Running  int `json:"running"`
	Free     int `json:"free"`
	Waiting  int `json:"waiting"`
}

type Snapshot struct {
	Generation uint64       `json:"generation"`
	Queues     []QueueStats `json:"queues"`
	Pool       PoolStats    `json:"pool"`
}

type queueCounters struct {
	state     atomic.Value
	received  atomic.Uint64
	acked     atomic.Uint64
	ackFailed atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
}

// Registry holds per-queue counters. Counters survive group restarts; only
// the generation number moves.
type Registry struct {
	mu         sync.RWMutex
	queues     map[string]*queueCounters
	generation atomic.Uint64
}

func NewRegistry(queues ...string) *Registry {
	r := &Registry{queues: make(map[string]*queueCounters, len(queues))}
	for _, q := range queues {
		r.counters(q)
	}
	return r
}

func (r *Registry) counters(queue string) *queueCounters {
	r.mu.RLock()
	c, ok := r.queues[queue]
	r.mu.RUnlock()
	if ok {
		return c
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.queues[queue]; ok {
		return c
	}
	c = &queueCounters{}
	c.state.Store(StateStopped)
	r.queues[queue] = c
	return c
}

func (r *Registry) SetState(queue string, s QueueState) { r.counters(queue).state.Store(s) }

func (r *Registry) NextGeneration() uint64 { return r.generation.Add(1) }

func (r *Registry) Generation() uint64 { return r.generation.Load() }

// Ready reports whether every known queue is consuming.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.queues) == 0 {
		return false
	}
	for _, c := range r.queues {
		if c.state.Load().(QueueState) != StateConsuming {
			return false
		}
	}
	return true
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	out := make([]QueueStats, 0, len(r.queues))
	for name, c := range r.queues {
		out = append(out, QueueStats{
			Queue:     name,
			State:     c.state.Load().(QueueState),
			Received:  c.received.Load(),
			Acked:     c.acked.Load(),
			AckFailed: c.ackFailed.Load(),
			Succeeded: c.succeeded.Load(),
			Failed:    c.failed.Load(),
		})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Queue < out[j].Queue })
	return Snapshot{Generation: r.Generation(), Queues: out}
}
