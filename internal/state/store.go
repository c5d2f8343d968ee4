package state

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"floodwatch/pkg/models"
)

const shardCount = 64

// historyLen bounds the per-source ring of recent per-minute counts.
const historyLen = 5

// defaultMaxIdle is how long a silent source keeps its record before the
// sweeper reclaims it.
const defaultMaxIdle = time.Hour

// Store keeps per-source rolling counters. State is partitioned into shards
// keyed by a hash of the source address, so updates for different addresses
// do not serialize against each other while updates for one address are
// linearized by its shard lock.
//
// Records are not deleted when their window elapses: the counter and port
// set reset in place and first_seen survives, so age-based detection stays
// distinct from burst detection. Fully idle records are reclaimed by Sweep.
type Store struct {
	shards  [shardCount]shard
	maxIdle time.Duration

	resets   atomic.Int64
	evicts   atomic.Int64
	lastUnix atomic.Int64
}

type shard struct {
	mu      sync.Mutex
	records map[string]*record
}

type record struct {
	epoch     int64
	count     int
	ports     map[int]struct{}
	firstSeen time.Time
	lastSeen  time.Time

	history [historyLen]int
	histPos int
}

// NewStore creates an empty store. maxIdle <= 0 selects the default.
func NewStore(maxIdle time.Duration) *Store {
	s := &Store{maxIdle: maxIdle}
	if s.maxIdle <= 0 {
		s.maxIdle = defaultMaxIdle
	}
	for i := range s.shards {
		s.shards[i].records = make(map[string]*record)
	}
	return s
}

func shardFor(addr string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(addr))
	return h.Sum32() % shardCount
}

func windowEpoch(now time.Time) int64 {
	return now.Unix() / 60
}

// RecordEvent increments the current-window counter for addr, adds destPort
// to the window's port set, and returns the post-increment snapshot. A
// record whose window has elapsed is reset in place before the increment;
// its first_seen is preserved.
func (s *Store) RecordEvent(addr string, destPort int, now time.Time) models.SourceSnapshot {
	sh := &s.shards[shardFor(addr)]
	epoch := windowEpoch(now)

	// Track the newest observed event time; the sweeper runs on this clock
	// so replayed historical traffic ages consistently.
	for {
		prev := s.lastUnix.Load()
		if now.Unix() <= prev || s.lastUnix.CompareAndSwap(prev, now.Unix()) {
			break
		}
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[addr]
	fresh := !ok
	if fresh {
		rec = &record{
			epoch:     epoch,
			ports:     make(map[int]struct{}),
			firstSeen: now,
		}
		sh.records[addr] = rec
	} else if rec.epoch != epoch {
		rec.rollWindow(epoch)
		s.resets.Add(1)
	}

	rec.count++
	rec.lastSeen = now
	if destPort > 0 {
		rec.ports[destPort] = struct{}{}
	}

	age := now.Sub(rec.firstSeen)
	if age < 0 {
		age = 0
	}
	return models.SourceSnapshot{
		Addr:      addr,
		Count:     rec.count,
		PortCount: len(rec.ports),
		Age:       age,
		NewSource: fresh,
	}
}

// rollWindow closes the current window: the count moves into the history
// ring and the live counter and port set reset.
func (r *record) rollWindow(epoch int64) {
	r.history[r.histPos] = r.count
	r.histPos = (r.histPos + 1) % historyLen
	r.count = 0
	r.ports = make(map[int]struct{})
	r.epoch = epoch
}

// Sweep resets records whose window has elapsed and reclaims records idle
// beyond the store's max idle age. Invoked on a fixed interval by the
// pipeline; a record reset racing a concurrent RecordEvent is benign, the
// next event simply sees a fresh window.
func (s *Store) Sweep(now time.Time) {
	epoch := windowEpoch(now)
	cutoff := now.Add(-s.maxIdle)

	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for addr, rec := range sh.records {
			if rec.lastSeen.Before(cutoff) {
				delete(sh.records, addr)
				s.evicts.Add(1)
				continue
			}
			if rec.epoch < epoch && rec.count > 0 {
				rec.rollWindow(epoch)
				s.resets.Add(1)
			}
		}
		sh.mu.Unlock()
	}
}

// History returns the recorded per-minute counts for addr, most recent
// closed window first. Used by the baseline feed and tests.
func (s *Store) History(addr string) []int {
	sh := &s.shards[shardFor(addr)]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[addr]
	if !ok {
		return nil
	}
	out := make([]int, 0, historyLen)
	for i := 1; i <= historyLen; i++ {
		v := rec.history[(rec.histPos-i+historyLen)%historyLen]
		out = append(out, v)
	}
	return out
}

// Len reports the number of tracked sources.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.records)
		sh.mu.Unlock()
	}
	return n
}

// LastEvent returns the newest event time observed by RecordEvent, or the
// zero time before any event arrived.
func (s *Store) LastEvent() time.Time {
	u := s.lastUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0).UTC()
}

// Resets reports how many window resets have occurred.
func (s *Store) Resets() int64 { return s.resets.Load() }

// Evicts reports how many idle records have been reclaimed.
func (s *Store) Evicts() int64 { return s.evicts.Load() }
