package events

import (
	"sync"
	"time"
)

// Event is a chaincode event emitted by a committed transaction.
type Event struct {
	TxID      string    `json:"txId"`
	BlockNum  uint64    `json:"blockNumber"`
	Contract  string    `json:"contract"`
	Name      string    `json:"name"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub buffers committed events and fans them out to subscribers
type Hub struct {
	mu      sync.Mutex
	events  []Event // FIFO order for eviction
	max     int     // Max events retained
	subs    map[int]chan Event
	nextSub int
	dropped uint64
}

// NewHub creates a hub keeping at most max events
func NewHub(max int) *Hub {
	if max <= 0 {
		max = 1
	}
	return &Hub{
		events: make([]Event, 0, max),
		max:    max,
		subs:   make(map[int]chan Event),
	}
}

// Publish appends events in order, evicting the oldest when full.
func (h *Hub) Publish(evts ...Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range evts {
		if len(h.events) >= h.max {
			// Evict oldest
			h.events = h.events[1:]
		}
		h.events = append(h.events, e)
		for _, ch := range h.subs {
			select {
			case ch <- e:
			default:
				h.dropped++
			}
		}
	}
}

// Recent returns up to max of the newest events, oldest first. max <= 0 returns all.
func (h *Hub) Recent(max int) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	start := 0
	if max > 0 && len(h.events) > max {
		start = len(h.events) - max
	}
	out := make([]Event, len(h.events)-start)
	copy(out, h.events[start:])
	return out
}

// Since returns buffered events from blocks strictly after blockNum.
func (h *Hub) Since(blockNum uint64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for _, e := range h.events {
		if e.BlockNum > blockNum {
			out = append(out, e)
		}
	}
	return out
}

// Subscribe registers a listener. Events that do not fit in the buffer
// are dropped for that subscriber; cancel closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextSub
	h.nextSub++
	ch := make(chan Event, buffer)
	h.subs[id] = ch
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// Dropped reports how many deliveries were skipped for slow subscribers.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
