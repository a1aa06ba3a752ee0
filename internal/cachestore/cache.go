// Package cachestore implements the shared LRU response cache.
//
// Storage is a singly-linked list, insertion at the head, lookup and
// eviction by a linear scan: N stays small for a single-host proxy and
// the dominant cost is network I/O, not map hashing. Each entry carries
// a 64-bit fnv1a fingerprint of its key so Find can reject most
// non-matches in O(1) before paying for the byte-exact comparison that
// remains the only source of truth for a hit.
package cachestore

import (
	"bytes"
	"sync"

	"github.com/mailgun/timetools"
	"github.com/segmentio/fasthash/fnv1a"
)

const (
	DefaultMaxTotalBytes = 200 * 1 << 20 // 200 MiB
	DefaultMaxEntryBytes = 10 * 1 << 20  // 10 MiB

	// fixedOverhead is the constant per-entry accounting charge added
	// on top of len(key)+len(body).
	fixedOverhead = 64
)

// InsertResult is the outcome of Insert.
type InsertResult int

const (
	Stored InsertResult = iota
	TooLarge
)

func (r InsertResult) String() string {
	if r == Stored {
		return "Stored"
	}
	return "TooLarge"
}

type entry struct {
	key         []byte
	body        []byte
	fingerprint uint64
	lastAccess  int64 // UnixNano, per clock
	sizeCharge  int
	next        *entry
}

func sizeCharge(key, body []byte) int {
	return len(key) + len(body) + fixedOverhead
}

// Option configures a Store.
type Option func(*Store)

// MaxTotalBytes overrides DefaultMaxTotalBytes.
func MaxTotalBytes(n int) Option {
	return func(s *Store) { s.maxTotal = n }
}

// MaxEntryBytes overrides DefaultMaxEntryBytes.
func MaxEntryBytes(n int) Option {
	return func(s *Store) { s.maxEntry = n }
}

// Clock overrides the time source used for access ordering. Tests use a
// timetools.FreezedTime to make eviction order deterministic.
func Clock(c timetools.TimeProvider) Option {
	return func(s *Store) { s.clock = c }
}

// Store is the process-wide cache. The zero value is not usable; use New.
type Store struct {
	mu       sync.Mutex
	head     *entry
	total    int
	maxTotal int
	maxEntry int
	clock    timetools.TimeProvider
}

// New creates an empty Store with the given options applied.
func New(opts ...Option) *Store {
	s := &Store{
		maxTotal: DefaultMaxTotalBytes,
		maxEntry: DefaultMaxEntryBytes,
		clock:    &timetools.RealTime{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Find scans the collection under exclusive access. On a match it bumps
// the entry's access time to now and returns a copy of the body safe for
// the caller to stream after the lock is released.
func (s *Store) Find(key []byte) ([]byte, bool) {
	fp := fnv1a.HashString64(string(key))

	s.mu.Lock()
	defer s.mu.Unlock()

	for e := s.head; e != nil; e = e.next {
		if e.fingerprint != fp {
			continue
		}
		if !bytes.Equal(e.key, key) {
			continue
		}
		e.lastAccess = s.clock.UtcNow().UnixNano()
		body := make([]byte, len(e.body))
		copy(body, e.body)
		return body, true
	}
	return nil, false
}

// Insert stores key/body at the head, evicting least-recently-accessed
// entries until the total fits the budget. Oversized entries are rejected
// outright and the cache is left unchanged.
func (s *Store) Insert(key, body []byte) InsertResult {
	charge := sizeCharge(key, body)
	if charge > s.maxEntry {
		return TooLarge
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for s.total+charge > s.maxTotal && s.head != nil {
		s.evictOne()
	}

	k := make([]byte, len(key))
	copy(k, key)
	b := make([]byte, len(body))
	copy(b, body)

	e := &entry{
		key:         k,
		body:        b,
		fingerprint: fnv1a.HashString64(string(key)),
		lastAccess:  s.clock.UtcNow().UnixNano(),
		sizeCharge:  charge,
		next:        s.head,
	}
	s.head = e
	s.total += charge
	return Stored
}

// evictOne removes the entry with the globally minimum access time. The
// caller must hold s.mu. No-op if the store is empty. Ties are broken by
// earliest traversal order.
func (s *Store) evictOne() {
	if s.head == nil {
		return
	}

	var prevOfMin, min, prev *entry
	min = s.head
	for cur := s.head; cur != nil; cur = cur.next {
		if cur.lastAccess < min.lastAccess {
			min = cur
			prevOfMin = prev
		}
		prev = cur
	}

	if prevOfMin == nil {
		s.head = min.next
	} else {
		prevOfMin.next = min.next
	}
	s.total -= min.sizeCharge
}

// Len reports the current entry count, for tests and diagnostics.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for e := s.head; e != nil; e = e.next {
		n++
	}
	return n
}

// TotalBytes reports the currently charged bytes, for tests and
// diagnostics.
func (s *Store) TotalBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}
