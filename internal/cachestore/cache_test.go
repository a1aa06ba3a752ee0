package cachestore

import (
	"testing"
	"time"

	"github.com/mailgun/timetools"
	"github.com/segmentio/fasthash/fnv1a"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindMiss(t *testing.T) {
	s := New()
	_, ok := s.Find([]byte("GET / HTTP/1.1\r\n\r\n"))
	assert.False(t, ok)
}

func TestInsertThenFind(t *testing.T) {
	s := New()
	key := []byte("GET http://x/ HTTP/1.1\r\nHost: x\r\n\r\n")
	body := []byte("HTTP/1.1 200 OK\r\nContent-Length: 5\r\n\r\nhello")

	require.Equal(t, Stored, s.Insert(key, body))

	got, ok := s.Find(key)
	require.True(t, ok)
	assert.Equal(t, body, got)
}

// Cache hit idempotence: repeated Find calls return the same bytes.
func TestFindIdempotent(t *testing.T) {
	s := New()
	key := []byte("GET http://x/ HTTP/1.1\r\n\r\n")
	body := []byte("hello")
	s.Insert(key, body)

	first, _ := s.Find(key)
	second, _ := s.Find(key)
	assert.Equal(t, first, second)
}

func TestFindDoesNotMutateStoredBody(t *testing.T) {
	s := New()
	key := []byte("GET http://x/ HTTP/1.1\r\n\r\n")
	body := []byte("hello")
	s.Insert(key, body)

	got, _ := s.Find(key)
	got[0] = 'H'

	again, _ := s.Find(key)
	assert.Equal(t, []byte("hello"), again)
}

func TestOversizeRejection(t *testing.T) {
	s := New(MaxEntryBytes(10))
	key := []byte("k")
	body := make([]byte, 100)

	require.Equal(t, TooLarge, s.Insert(key, body))
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.TotalBytes())
}

func TestDifferentKeysDoNotCollide(t *testing.T) {
	s := New()
	s.Insert([]byte("GET http://a/ HTTP/1.1\r\nHost: a\r\n\r\n"), []byte("a-body"))
	s.Insert([]byte("GET http://a/ HTTP/1.1\r\nHost: b\r\n\r\n"), []byte("b-body"))

	got, ok := s.Find([]byte("GET http://a/ HTTP/1.1\r\nHost: a\r\n\r\n"))
	require.True(t, ok)
	assert.Equal(t, []byte("a-body"), got)
}

// LRU touch law: find(a) then find(b) then an eviction must not evict a.
func TestLRUTouchProtectsRecentlyAccessed(t *testing.T) {
	clock := &timetools.FreezedTime{CurrentTime: time.Unix(0, 0)}
	// Each entry charges 5+50+fixedOverhead bytes: two fit within maxTotal
	// but three do not, so inserting the third evicts exactly one.
	s := New(MaxTotalBytes(2*(50+fixedOverhead)+10), Clock(clock))

	a := []byte("a-key")
	b := []byte("b-key")
	c := []byte("c-key")
	body := make([]byte, 50)

	s.Insert(a, body)
	clock.CurrentTime = clock.CurrentTime.Add(time.Second)
	s.Insert(b, body)

	clock.CurrentTime = clock.CurrentTime.Add(time.Second)
	_, ok := s.Find(a) // touch a; b is now the least-recently-accessed
	require.True(t, ok)

	clock.CurrentTime = clock.CurrentTime.Add(time.Second)
	require.Equal(t, Stored, s.Insert(c, body))

	_, aStillPresent := s.Find(a)
	_, bStillPresent := s.Find(b)
	assert.True(t, aStillPresent, "a was touched most recently and must survive eviction")
	assert.False(t, bStillPresent, "b was the least-recently-accessed entry and should have been evicted")
}

func TestEvictionSufficiency(t *testing.T) {
	clock := &timetools.FreezedTime{CurrentTime: time.Unix(0, 0)}
	entrySize := 50 + fixedOverhead
	s := New(MaxTotalBytes(3*entrySize), Clock(clock))

	for i := 0; i < 10; i++ {
		clock.CurrentTime = clock.CurrentTime.Add(time.Second)
		key := []byte{byte(i)}
		require.Equal(t, Stored, s.Insert(key, make([]byte, 50)))
		assert.LessOrEqual(t, s.TotalBytes(), 3*entrySize)
	}
}

func TestFingerprintIsNotSubstituteForExactMatch(t *testing.T) {
	s := New()
	key := []byte("same-fingerprint-guard")
	s.Insert(key, []byte("body"))

	other := []byte("totally-different-key")
	// Force a fingerprint collision so only the byte comparison can reject it.
	s.head.fingerprint = fnv1a.HashString64(string(other))

	_, ok := s.Find(other)
	assert.False(t, ok)
}
