// Package store holds the Result Store shared between a capture producer
// and its pollers.
package store

import (
	"sync"
	"time"

	"netsentry/internal/metrics"
	"netsentry/internal/models"
)

// ResultStore is an ordered buffer of results. One goroutine appends while
// any number of readers drain or snapshot it.
//
// With a capacity of zero the store grows without bound. Otherwise the
// oldest result is evicted to make room, which never changes what Drain,
// Since or Poll return for the results still present.
type ResultStore struct {
	mu       sync.Mutex
	items    []models.Result
	capacity int
	nextSeq  uint64
	total    uint64
	evicted  uint64
	now      func() time.Time
}

// New creates a store. capacity <= 0 means unbounded.
func New(capacity int) *ResultStore {
	if capacity < 0 {
		capacity = 0
	}
	return &ResultStore{capacity: capacity, now: time.Now}
}

// Append stamps r with the next sequence number and the receive time and
// stores it. The stamped result is returned.
func (s *ResultStore) Append(r models.Result) models.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq++
	r.Seq = s.nextSeq
	r.Received = s.now()
	s.total++

	if s.capacity > 0 && len(s.items) >= s.capacity {
		drop := len(s.items) - s.capacity + 1
		clear(s.items[:drop])
		s.items = s.items[drop:]
		s.evicted += uint64(drop)
		metrics.StoreEvictions.Add(float64(drop))
	}
	s.items = append(s.items, r)
	return r
}

// Drain removes and returns up to n of the oldest results. n <= 0 drains
// everything.
func (s *ResultStore) Drain(n int) []models.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.items) {
		n = len(s.items)
	}
	out := make([]models.Result, n)
	copy(out, s.items[:n])
	clear(s.items[:n])
	s.items = s.items[n:]
	return out
}

// Since returns up to n results received strictly after t, oldest first,
// without removing them. n <= 0 means no limit.
func (s *ResultStore) Since(t time.Time, n int) []models.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.since(t, n)
}

// must be called with mu held
func (s *ResultStore) since(t time.Time, n int) []models.Result {
	var out []models.Result
	for _, r := range s.items {
		if !r.Received.After(t) {
			continue
		}
		out = append(out, r)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

// Poll is the consumer entry point. A non-nil since selects results
// received after it, otherwise the oldest limit results are chosen. With
// clearItems the chosen results are removed from the store.
func (s *ResultStore) Poll(limit int, since *time.Time, clearItems bool) []models.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Result
	if since != nil {
		out = s.since(*since, limit)
	} else {
		n := limit
		if n <= 0 || n > len(s.items) {
			n = len(s.items)
		}
		out = make([]models.Result, n)
		copy(out, s.items[:n])
	}

	if clearItems && len(out) > 0 {
		s.remove(out)
	}
	return out
}

// remove deletes the given results by sequence number. Both slices are in
// sequence order.
func (s *ResultStore) remove(rs []models.Result) {
	keep := s.items[:0]
	i := 0
	for _, r := range s.items {
		if i < len(rs) && rs[i].Seq == r.Seq {
			i++
			continue
		}
		keep = append(keep, r)
	}
	clear(s.items[len(keep):])
	s.items = keep
}

// Page returns a copy of up to limit results starting at offset, without
// removal. limit <= 0 means through the end.
func (s *ResultStore) Page(offset, limit int) []models.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= len(s.items) {
		return nil
	}
	end := len(s.items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]models.Result, end-offset)
	copy(out, s.items[offset:end])
	return out
}

// Len returns the number of results currently held.
func (s *ResultStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// TotalSeen returns the number of results ever appended.
func (s *ResultStore) TotalSeen() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Evicted returns how many results were dropped for capacity.
func (s *ResultStore) Evicted() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evicted
}
