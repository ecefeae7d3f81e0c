package cache

import (
	"iter"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/shardkv/internal/util"
)

// defaultPollSize bounds SweepPoll sampling when the caller passes 0.
const defaultPollSize = 20

// Cache is a sharded in-memory byte KV store with CAS versioning, TTL
// expiration, eviction notification, batched writes, and iteration.
// All methods are safe for concurrent use by multiple goroutines.
//
// The engine spawns no goroutines: every operation is a synchronous
// call that may block briefly on one shard's lock. Expiration is lazy
// on read; physically removing dead entries is the caller's job via
// Sweep.
type Cache struct {
	shards []*shard
	opt    Options
	closed atomic.Bool
}

// New constructs a Cache with the provided Options.
// Defaults:
//   - Shards <= 0     -> auto (2×GOMAXPROCS), rounded up to a power of two
//   - LoadFactor == 0 -> 75 (clamped to [25..95] otherwise)
//   - nil Metrics     -> NoopMetrics
//
// The shard count is fixed for the lifetime of the cache; no rehashing
// or resharding happens at runtime.
func New(opt Options) *Cache {
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	switch {
	case opt.LoadFactor == 0:
		opt.LoadFactor = defaultLoadFactor
	case opt.LoadFactor < minLoadFactor:
		opt.LoadFactor = minLoadFactor
	case opt.LoadFactor > maxLoadFactor:
		opt.LoadFactor = maxLoadFactor
	}
	sh := opt.Shards
	if sh <= 0 {
		sh = util.ReasonableShardCount()
	} else {
		sh = int(util.NextPow2(uint64(sh)))
	}
	opt.Shards = sh

	c := &Cache{opt: opt, shards: make([]*shard, sh)}
	for i := range c.shards {
		c.shards[i] = newShard(i, &c.opt)
	}
	return c
}

// Now returns the current time in UnixNano, the unit used for TTL
// deadlines and Entry.Expires.
func Now() int64 { return time.Now().UnixNano() }

// Store inserts or replaces the entry for key. opts may be nil for an
// unconditional store with no TTL.
//
// Results: Inserted, Replaced, Found (NX refused), NotFound (CAS/XX
// against an absent key), CASMismatch (stale guard), Canceled (peek
// veto or closed cache).
func (c *Cache) Store(key, value []byte, opts *StoreOptions) Result {
	if c.closed.Load() {
		return Canceled
	}
	return c.shardFor(key).store(c.now(), key, value, opts)
}

// Load looks up key and, when found, delivers a snapshot to fn. The
// snapshot's Key/Value are only valid inside the callback. fn may
// return an update intent (replace or delete) which is applied before
// Load returns, under the same shard lock as the lookup. fn may be nil
// to probe for bare existence.
//
// Results: Found, NotFound.
func (c *Cache) Load(key []byte, fn LoadFunc) Result {
	if c.closed.Load() {
		return NotFound
	}
	return c.shardFor(key).load(c.now(), key, fn)
}

// Get is a convenience wrapper around Load for plain reads: it returns
// a copy of the value under the shard's shared lock.
func (c *Cache) Get(key []byte) ([]byte, bool) {
	if c.closed.Load() {
		return nil, false
	}
	return c.shardFor(key).get(c.now(), key)
}

// Delete removes the entry for key if present. opts may be nil.
//
// Results: Deleted, NotFound, CASMismatch, Canceled (peek veto or
// closed cache). Explicit deletes do not fire OnEvict.
func (c *Cache) Delete(key []byte, opts *DeleteOptions) Result {
	if c.closed.Load() {
		return Canceled
	}
	return c.shardFor(key).del(c.now(), key, opts)
}

// Iter visits every live entry, shard by shard in index order and in
// insertion order within a shard. Each shard is locked only while its
// own entries are visited; entries stored concurrently into
// not-yet-visited shards may or may not be seen.
//
// Returns Finished, or Canceled if fn returned IterStop.
func (c *Cache) Iter(fn IterFunc) Result {
	if c.closed.Load() {
		return Canceled
	}
	now := c.now()
	for _, s := range c.shards {
		if s.iterate(now, fn) == Canceled {
			return Canceled
		}
	}
	return Finished
}

// IterShard is Iter restricted to the shard at index i.
func (c *Cache) IterShard(i int, fn IterFunc) Result {
	if c.closed.Load() {
		return Canceled
	}
	return c.shards[i].iterate(c.now(), fn)
}

// Entries adapts Iter to a lazy range-over-func sequence:
//
//	for e := range c.Entries() { ... }
//
// The same snapshot lifetime rules apply: copy Key/Value before the
// loop body yields.
func (c *Cache) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		c.Iter(func(e Entry) IterAction {
			if !yield(e) {
				return IterStop
			}
			return IterContinue
		})
	}
}

// Sweep removes every expired entry across all shards, firing OnEvict
// with ReasonExpired. Each shard is swept independently under its own
// lock. Returns the number of entries removed and the number still
// live. Sweeping is cooperative: the engine never schedules it.
func (c *Cache) Sweep() (swept, kept int) {
	if c.closed.Load() {
		return 0, 0
	}
	now := c.now()
	for _, s := range c.shards {
		sw, kp := s.sweep(now)
		swept += sw
		kept += kp
	}
	c.opt.Metrics.Sweep(swept, kept)
	return swept, kept
}

// SweepShard sweeps only the shard at index i.
func (c *Cache) SweepShard(i int) (swept, kept int) {
	if c.closed.Load() {
		return 0, 0
	}
	swept, kept = c.shards[i].sweep(c.now())
	c.opt.Metrics.Sweep(swept, kept)
	return swept, kept
}

// SweepPoll samples up to pollsize TTL'd entries (pollsize <= 0 means
// 20) and returns the fraction already expired, an estimate of how
// much a full Sweep would reclaim. Returns 0 when nothing carries a
// TTL.
func (c *Cache) SweepPoll(pollsize int) float64 {
	if c.closed.Load() {
		return 0
	}
	if pollsize <= 0 {
		pollsize = defaultPollSize
	}
	now := c.now()
	var expired, sampled int
	for _, s := range c.shards {
		if sampled >= pollsize {
			break
		}
		ex, sa := s.pollExpired(now, pollsize-sampled)
		expired += ex
		sampled += sa
	}
	if sampled == 0 {
		return 0
	}
	return float64(expired) / float64(sampled)
}

// Clear empties the cache shard by shard, firing OnEvict with
// ReasonCleared for every resident entry. The cut-over is per shard,
// not global: concurrent readers keep seeing entries of shards not
// yet cleared.
func (c *Cache) Clear() {
	if c.closed.Load() {
		return
	}
	now := c.now()
	for _, s := range c.shards {
		s.clear(now)
	}
}

// ClearShard clears only the shard at index i.
func (c *Cache) ClearShard(i int) {
	if c.closed.Load() {
		return
	}
	c.shards[i].clear(c.now())
}

// Close clears all shards (OnEvict fires with ReasonCleared) and marks
// the cache closed. Later mutations report Canceled and reads report
// absence. Close is idempotent.
func (c *Cache) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	now := c.now()
	for _, s := range c.shards {
		s.clear(now)
	}
	return nil
}

// Count returns the number of resident entries across all shards.
// Counters are summed without cross-shard locking, so the result is an
// eventually consistent snapshot, not a linearizable total.
func (c *Cache) Count() int {
	var n int64
	for _, s := range c.shards {
		n += s.live.Load()
	}
	return int(n)
}

// CountShard returns the number of resident entries in shard i.
func (c *Cache) CountShard(i int) int {
	return int(c.shards[i].live.Load())
}

// Size returns the approximate aggregate byte footprint of keys,
// values, and fixed per-entry overhead. Same snapshot semantics as
// Count.
func (c *Cache) Size() int64 {
	var n int64
	for _, s := range c.shards {
		n += s.bytes.Load()
	}
	return n
}

// Total returns the monotonic lifetime operation count (stores, loads,
// and deletes), summed across shards.
func (c *Cache) Total() uint64 {
	var n uint64
	for _, s := range c.shards {
		n += s.ops.Load()
	}
	return n
}

// NShards returns the fixed shard count.
func (c *Cache) NShards() int { return len(c.shards) }

// ---- helpers ----

// shardFor routes a key to its owning shard. The mapping is a pure
// function of the key bytes, the seed, and the fixed shard count.
func (c *Cache) shardFor(key []byte) *shard {
	h := util.Sum64Seed(key, c.opt.Seed)
	return c.shards[util.ShardIndex(h, len(c.shards))]
}

func (c *Cache) now() int64 {
	if c.opt.Clock != nil {
		return c.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}
