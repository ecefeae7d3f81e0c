package cache

import "time"

const (
	// defaultLoadFactor is the per-shard table fill hint, percent.
	defaultLoadFactor = 75
	minLoadFactor     = 25
	maxLoadFactor     = 95
)

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
//
// Size reports per-shard samples (the shard that just mutated), not a
// cache-wide aggregate; exporters that need totals should scrape
// Count/Size instead.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason Reason)
	Sweep(swept, kept int)
	Size(entries int, bytes int64)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures a Cache. Zero values are safe; defaults are
// applied in New():
//   - Shards <= 0     => auto (2×GOMAXPROCS rounded up to a power of two)
//   - LoadFactor == 0 => 75
//   - nil Metrics     => NoopMetrics
//
// All fields are consumed at construction and immutable afterward.
type Options struct {
	// Shards is the fixed shard count. Values are rounded up to the
	// next power of two. Callers sizing for a specific host can feed
	// the tuning package's recommendation through this field.
	Shards int

	// UseCAS enables version-stamp tracking and CAS-guarded operations.
	// When false, Entry.CAS is always zero and CASOp stores fail their
	// guard check against the zero stamp.
	UseCAS bool

	// LoadFactor is a percent hint for the per-shard table resize
	// threshold, clamped to [25..95]. It only influences initial table
	// sizing; Go maps manage growth internally.
	LoadFactor int

	// Seed perturbs the shard hash. Useful when cache keys are
	// attacker-influenced and the key→shard mapping should not be
	// predictable. Zero uses the plain hash.
	Seed uint64

	// OnEvict is called synchronously, under the shard lock, for every
	// entry removed by expiration sweep, low-memory eviction, or
	// Clear/Close. Keep callbacks lightweight.
	OnEvict EvictFunc

	// Metrics receives Hit/Miss/Evict/Sweep/Size signals.
	Metrics Metrics

	// Clock allows overriding the time source (tests). Nil => time.Now().
	Clock Clock
}

// StoreOptions refine a single Store call. The zero value (or a nil
// pointer) stores an entry with no TTL, no flags, and no guards.
type StoreOptions struct {
	// TTL is the relative time-to-live. Expiration is computed as
	// now+TTL at store time; zero or negative means no expiration.
	TTL time.Duration

	// Expires is an absolute UnixNano deadline. Overrides TTL when set.
	Expires int64

	// Flags are opaque caller bits stored with the entry.
	Flags uint32

	// CAS is the expected version stamp for a guarded store. Only
	// consulted when CASOp is true.
	CAS uint64

	// CASOp makes the store conditional: it succeeds only against an
	// existing entry whose current stamp equals CAS. A guarded store
	// against an absent key reports NotFound; a stale stamp reports
	// CASMismatch and mutates nothing.
	CASOp bool

	// KeepTTL preserves the existing entry's expiration on replace
	// instead of recomputing it from TTL/Expires.
	KeepTTL bool

	// NX only inserts: if the key already exists the store reports
	// Found and mutates nothing.
	NX bool

	// XX only replaces: if the key is absent the store reports
	// NotFound and inserts nothing.
	XX bool

	// LowMem signals memory pressure: after the mutation the shard
	// evicts its oldest resident entry (other than the one just
	// written) with ReasonLowMem.
	LowMem bool

	// Entry, when set, observes the existing entry about to be
	// replaced. Returning false keeps the old entry (result Canceled).
	Entry PeekFunc
}

// DeleteOptions refine a single Delete call. The zero value (or a nil
// pointer) deletes unconditionally.
type DeleteOptions struct {
	// CAS is the expected version stamp for a guarded delete. Only
	// consulted when CASOp is true.
	CAS uint64

	// CASOp makes the delete conditional on the entry's current stamp
	// equaling CAS; a stale stamp reports CASMismatch and keeps the
	// entry.
	CASOp bool

	// Entry, when set, observes the entry about to be removed.
	// Returning false keeps it (result Canceled).
	Entry PeekFunc
}
