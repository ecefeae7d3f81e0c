package cache

import (
	"sync"

	"github.com/IvanBrykalov/shardkv/internal/util"
)

// baseTableHint sizes the initial per-shard table before the load
// factor hint is applied.
const baseTableHint = 64

// shard is an independent partition of the cache: a key→entry table,
// an intrusive insertion-ordered list (head = oldest), an expiration
// min-heap, and a version-stamp counter, all guarded by one lock.
type shard struct {
	// ---- guarded by mu ----
	mu   sync.RWMutex
	m    map[string]*entry
	head *entry // oldest insertion
	tail *entry // newest insertion
	exp  expheap
	seq  uint64 // version-stamp source (when Options.UseCAS)

	idx int
	opt *Options

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	// Written under mu, summed lock-free by the aggregate accessors, so
	// cache-wide Count/Size/Total are eventually consistent snapshots.
	_     util.CacheLinePad
	ops   util.PaddedAtomicUint64 // lifetime operations
	live  util.PaddedAtomicInt64  // resident entries
	bytes util.PaddedAtomicInt64  // approximate footprint
}

func newShard(idx int, opt *Options) *shard {
	// A lower load-factor hint over-allocates the initial table to
	// push the first rehash further out.
	hint := baseTableHint * 100 / opt.LoadFactor
	return &shard{
		m:   make(map[string]*entry, hint),
		idx: idx,
		opt: opt,
	}
}

// storeDefaults backs nil option pointers so the hot path can always
// dereference.
var (
	storeDefaults  StoreOptions
	deleteDefaults DeleteOptions
)

// store implements the insert/replace contract for one key.
func (s *shard) store(now int64, key, value []byte, o *StoreOptions) Result {
	if o == nil {
		o = &storeDefaults
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops.Add(1)

	e, ok := s.m[string(key)]
	if ok && s.expired(e, now) {
		// The slot is being reclaimed by this store, so the sweep will
		// never see the dead entry; report its expiration here.
		s.evictLocked(e, ReasonExpired, now)
		ok = false
	}

	if !ok {
		// A CAS guard (and XX) is only valid against an existing entry.
		if o.CASOp || o.XX {
			return NotFound
		}
		e = &entry{
			key:     string(key),
			value:   append([]byte(nil), value...),
			expires: deadline(now, o),
			flags:   o.Flags,
			hpos:    -1,
		}
		if s.opt.UseCAS {
			e.cas = s.stamp()
		}
		s.m[e.key] = e
		s.pushBack(e)
		s.exp.track(e)
		s.live.Add(1)
		s.bytes.Add(e.footprint())
		if o.LowMem {
			s.evictOldestLocked(e, now)
		}
		s.sizeSample()
		return Inserted
	}

	if o.NX {
		return Found
	}
	if o.CASOp && e.cas != o.CAS {
		return CASMismatch
	}
	if o.Entry != nil && !o.Entry(e.snapshot(s.idx, now)) {
		return Canceled
	}

	old := e.footprint()
	e.value = append(e.value[:0], value...)
	e.flags = o.Flags
	if !o.KeepTTL {
		e.expires = deadline(now, o)
		s.exp.retime(e)
	}
	if s.opt.UseCAS {
		e.cas = s.stamp()
	}
	s.bytes.Add(e.footprint() - old)
	if o.LowMem {
		s.evictOldestLocked(e, now)
	}
	s.sizeSample()
	return Replaced
}

// load looks up one key and, if fn is given, delivers a snapshot and
// applies the returned update intent under the same lock acquisition.
func (s *shard) load(now int64, key []byte, fn LoadFunc) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops.Add(1)

	e, ok := s.m[string(key)]
	if !ok || s.expired(e, now) {
		// Lazy expiration: a dead entry stays resident until the next
		// sweep but is already invisible to readers.
		s.opt.Metrics.Miss()
		return NotFound
	}
	s.opt.Metrics.Hit()
	if fn == nil {
		return Found
	}

	switch u := fn(e.snapshot(s.idx, now)); u.Op {
	case UpdateReplace:
		old := e.footprint()
		e.value = append(e.value[:0], u.Value...)
		e.flags = u.Flags
		e.expires = u.Expires
		s.exp.retime(e)
		if s.opt.UseCAS {
			e.cas = s.stamp()
		}
		s.bytes.Add(e.footprint() - old)
		s.sizeSample()
	case UpdateDelete:
		// Caller-requested removal: explicit delete semantics, no
		// eviction notification.
		s.removeLocked(e)
		s.sizeSample()
	}
	return Found
}

// get is the read-only fast path: shared lock, value copied out.
func (s *shard) get(now int64, key []byte) ([]byte, bool) {
	s.mu.RLock()
	e, ok := s.m[string(key)]
	var v []byte
	if ok && !s.expired(e, now) {
		v = append([]byte(nil), e.value...)
	} else {
		ok = false
	}
	s.mu.RUnlock()

	s.ops.Add(1)
	if ok {
		s.opt.Metrics.Hit()
		return v, true
	}
	s.opt.Metrics.Miss()
	return nil, false
}

// del removes one key, honoring the optional CAS guard and peek veto.
func (s *shard) del(now int64, key []byte, o *DeleteOptions) Result {
	if o == nil {
		o = &deleteDefaults
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops.Add(1)

	e, ok := s.m[string(key)]
	if !ok || s.expired(e, now) {
		return NotFound
	}
	if o.CASOp && e.cas != o.CAS {
		return CASMismatch
	}
	if o.Entry != nil && !o.Entry(e.snapshot(s.idx, now)) {
		return Canceled
	}
	s.removeLocked(e)
	s.sizeSample()
	return Deleted
}

// sweep removes every entry whose deadline has passed, notifying
// OnEvict with ReasonExpired. Returns removed and remaining counts.
func (s *shard) sweep(now int64) (swept, kept int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		e := s.exp.peek()
		if e == nil || !s.expired(e, now) {
			break
		}
		s.evictLocked(e, ReasonExpired, now)
		swept++
	}
	kept = len(s.m)
	if swept > 0 {
		s.sizeSample()
	}
	return swept, kept
}

// pollExpired samples up to budget TTL'd entries from the expiration
// index and reports how many of them are already dead. Used by
// SweepPoll to estimate sweep urgency without mutating anything.
func (s *shard) pollExpired(now int64, budget int) (expired, sampled int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := 0; i < len(s.exp) && sampled < budget; i++ {
		sampled++
		if s.expired(s.exp[i], now) {
			expired++
		}
	}
	return expired, sampled
}

// clear empties the shard, notifying OnEvict with ReasonCleared for
// every resident entry in insertion order.
func (s *shard) clear(now int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for e := s.head; e != nil; e = e.next {
		s.opt.Metrics.Evict(ReasonCleared)
		if cb := s.opt.OnEvict; cb != nil {
			cb(e.snapshot(s.idx, now), ReasonCleared)
		}
	}
	hint := baseTableHint * 100 / s.opt.LoadFactor
	s.m = make(map[string]*entry, hint)
	s.head, s.tail = nil, nil
	s.exp = nil
	s.live.Store(0)
	s.bytes.Store(0)
	s.sizeSample()
}

// iterate visits live entries in insertion order. Returns Canceled if
// the callback requested a stop, Finished otherwise.
func (s *shard) iterate(now int64, fn IterFunc) Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	for e := s.head; e != nil; {
		next := e.next
		if !s.expired(e, now) {
			act := fn(e.snapshot(s.idx, now))
			if act&IterDelete != 0 {
				s.removeLocked(e)
			}
			if act&IterStop != 0 {
				return Canceled
			}
		}
		e = next
	}
	return Finished
}

// -------------------- internals (mu held) --------------------

func (s *shard) expired(e *entry, now int64) bool {
	return e.expires != 0 && now > e.expires
}

// stamp returns the next version stamp. Stamps are per-shard and
// monotonic; a key never changes shards, so its stamps never repeat.
func (s *shard) stamp() uint64 {
	s.seq++
	return s.seq
}

// deadline resolves the store options into an absolute UnixNano
// expiration (0 = never).
func deadline(now int64, o *StoreOptions) int64 {
	if o.Expires != 0 {
		return o.Expires
	}
	if o.TTL > 0 {
		return now + int64(o.TTL)
	}
	return 0
}

// pushBack appends e at the newest end of the insertion list in O(1).
func (s *shard) pushBack(e *entry) {
	e.prev = s.tail
	e.next = nil
	if s.tail != nil {
		s.tail.next = e
	}
	s.tail = e
	if s.head == nil {
		s.head = e
	}
}

// unlink detaches e from the insertion list in O(1).
func (s *shard) unlink(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if s.head == e {
		s.head = e.next
	}
	if s.tail == e {
		s.tail = e.prev
	}
	e.prev, e.next = nil, nil
}

// removeLocked drops e from the table, list, and expiration index and
// updates the counters. No notification is emitted here.
func (s *shard) removeLocked(e *entry) {
	delete(s.m, e.key)
	s.unlink(e)
	s.exp.untrack(e)
	s.live.Add(-1)
	s.bytes.Add(-e.footprint())
}

// evictLocked removes e and emits the eviction notification.
// The snapshot is taken before removal so the callback sees the entry
// as it was.
func (s *shard) evictLocked(e *entry, reason Reason, now int64) {
	snap := e.snapshot(s.idx, now)
	s.removeLocked(e)
	s.opt.Metrics.Evict(reason)
	if cb := s.opt.OnEvict; cb != nil {
		cb(snap, reason)
	}
}

// evictOldestLocked relieves memory pressure by evicting the oldest
// resident entry, skipping the one the triggering store just wrote.
func (s *shard) evictOldestLocked(skip *entry, now int64) {
	victim := s.head
	if victim == skip {
		victim = victim.next
	}
	if victim != nil {
		s.evictLocked(victim, ReasonLowMem, now)
	}
}

// sizeSample publishes this shard's entry/byte counts to Metrics.
func (s *shard) sizeSample() {
	s.opt.Metrics.Size(len(s.m), s.bytes.Load())
}
