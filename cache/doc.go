// Package cache provides an embeddable, sharded in-memory byte KV
// store with optimistic concurrency (CAS version stamps), per-entry
// TTL, eviction notification, atomic-per-key batched writes, and full
// iteration.
//
// Design
//
//   - Concurrency: the cache is split into a fixed number of shards,
//     each protected by an RWMutex. A key always routes to the same
//     shard (seeded xxHash over the key bytes, masked when the shard
//     count is a power of two), so single-key operations never touch
//     more than one lock. Operations on keys in different shards never
//     block each other.
//
//   - Storage: each shard keeps a map[string]*entry for lookups, an
//     intrusive insertion-ordered list (iteration order, low-memory
//     victim choice), and a min-heap expiration index so sweeps avoid
//     full-table scans. All single-key operations are O(1) expected;
//     sweep is O(expired · log n).
//
//   - CAS: with Options.UseCAS every creation or mutation assigns a
//     fresh monotonic stamp from the owning shard. Guarded stores and
//     deletes compare the caller's stamp against the entry's current
//     one and report CASMismatch on staleness without mutating.
//
//   - TTL: deadlines are absolute UnixNano values (0 = never).
//     Expiration is lazy: a dead entry is invisible to reads but stays
//     resident until Sweep removes it (OnEvict fires with
//     ReasonExpired). The engine never spawns goroutines; callers
//     decide when to sweep, optionally guided by SweepPoll.
//
//   - Batches: Begin returns a staging handle; End applies the staged
//     log in order with per-shard locking. Atomicity is per key, not a
//     cross-shard snapshot — a deliberate trade against serializing
//     every shard during commit.
//
//   - Callbacks: Load, Iter, OnEvict, and the peek hooks run
//     synchronously under the owning shard's lock and receive Entry
//     snapshots whose Key/Value are only valid inside the callback.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/Sweep/Size
//     signals; NoopMetrics is the default. A Prometheus adapter lives
//     in metrics/prom.
//
// Basic usage
//
//	c := cache.New(cache.Options{UseCAS: true})
//	defer c.Close()
//
//	c.Store([]byte("a"), []byte("1"), nil)
//	if v, ok := c.Get([]byte("a")); ok {
//	    _ = v // copy of the stored value
//	}
//	c.Delete([]byte("a"), nil)
//
// With TTL and sweeping
//
//	c.Store([]byte("tmp"), []byte("v"), &cache.StoreOptions{TTL: time.Second})
//	// ... later ...
//	if c.SweepPoll(0) > 0.25 {
//	    swept, kept := c.Sweep()
//	    _ = swept
//	    _ = kept
//	}
//
// With a CAS guard
//
//	var stamp uint64
//	c.Load(key, func(e cache.Entry) cache.Update {
//	    stamp = e.CAS
//	    return cache.Update{}
//	})
//	res := c.Store(key, newVal, &cache.StoreOptions{CASOp: true, CAS: stamp})
//	if res == cache.CASMismatch {
//	    // somebody else won; reload and retry
//	}
//
// Sizing
//
// Options.Shards defaults to a CPU-derived power of two. Deployments
// that want host-aware sizing can feed tuning.Recommend().Shards
// through Options.Shards; the engine consumes the value once at
// construction and never calls back into the planner.
package cache
