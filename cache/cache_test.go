package cache

import (
	"bytes"
	"testing"
	"time"
)

type fakeClock struct{ t int64 }

func (f *fakeClock) NowUnixNano() int64  { return f.t }
func (f *fakeClock) add(d time.Duration) { f.t += int64(d) }

// Store/load round trip: a value stored with no TTL comes back
// unchanged, with the right result codes along the way.
func TestCache_StoreLoadRoundTrip(t *testing.T) {
	t.Parallel()

	c := New(Options{Shards: 4})
	t.Cleanup(func() { _ = c.Close() })

	if res := c.Store([]byte("a"), []byte("x"), nil); res != Inserted {
		t.Fatalf("first store: want Inserted, got %v", res)
	}
	if res := c.Store([]byte("a"), []byte("y"), nil); res != Replaced {
		t.Fatalf("second store: want Replaced, got %v", res)
	}

	v, ok := c.Get([]byte("a"))
	if !ok || !bytes.Equal(v, []byte("y")) {
		t.Fatalf("Get a: want %q ok=true, got %q ok=%v", "y", v, ok)
	}

	if res := c.Load([]byte("nope"), nil); res != NotFound {
		t.Fatalf("Load missing key: want NotFound, got %v", res)
	}
	if res := c.Delete([]byte("a"), nil); res != Deleted {
		t.Fatalf("Delete a: want Deleted, got %v", res)
	}
	if res := c.Delete([]byte("a"), nil); res != NotFound {
		t.Fatalf("Delete a again: want NotFound, got %v", res)
	}
}

// Flags ride along with the entry and come back unchanged on read.
func TestCache_FlagsPassThrough(t *testing.T) {
	t.Parallel()

	c := New(Options{Shards: 1})
	t.Cleanup(func() { _ = c.Close() })

	c.Store([]byte("k"), []byte("v"), &StoreOptions{Flags: 0xdeadbeef})

	var got uint32
	res := c.Load([]byte("k"), func(e Entry) Update {
		got = e.Flags
		return Update{}
	})
	if res != Found || got != 0xdeadbeef {
		t.Fatalf("want Found with flags 0xdeadbeef, got %v flags %#x", res, got)
	}
}

// The concrete scenario from the exposed contract: single shard, CAS
// enabled, guarded replace succeeds once and a stale stamp loses.
func TestCache_CASScenario(t *testing.T) {
	t.Parallel()

	c := New(Options{Shards: 1, UseCAS: true})
	t.Cleanup(func() { _ = c.Close() })

	if res := c.Store([]byte("a"), []byte("x"), nil); res != Inserted {
		t.Fatalf("store a=x: want Inserted, got %v", res)
	}

	var stamp uint64
	res := c.Load([]byte("a"), func(e Entry) Update {
		if !bytes.Equal(e.Value, []byte("x")) {
			t.Errorf("load a: want %q, got %q", "x", e.Value)
		}
		stamp = e.CAS
		return Update{}
	})
	if res != Found || stamp == 0 {
		t.Fatalf("load a: want Found with nonzero cas, got %v cas=%d", res, stamp)
	}

	if res := c.Store([]byte("a"), []byte("y"), &StoreOptions{CASOp: true, CAS: stamp}); res != Replaced {
		t.Fatalf("guarded store with fresh cas: want Replaced, got %v", res)
	}
	// The stamp must have moved on: the same guard is now stale.
	if res := c.Store([]byte("a"), []byte("z"), &StoreOptions{CASOp: true, CAS: stamp}); res != CASMismatch {
		t.Fatalf("guarded store with stale cas: want CASMismatch, got %v", res)
	}
	if v, _ := c.Get([]byte("a")); !bytes.Equal(v, []byte("y")) {
		t.Fatalf("value after stale cas: want %q, got %q", "y", v)
	}
}

// A CAS guard is only valid against an existing entry.
func TestCache_CASAgainstAbsentKey(t *testing.T) {
	t.Parallel()

	c := New(Options{Shards: 1, UseCAS: true})
	t.Cleanup(func() { _ = c.Close() })

	if res := c.Store([]byte("ghost"), []byte("v"), &StoreOptions{CASOp: true, CAS: 1}); res != NotFound {
		t.Fatalf("guarded store on absent key: want NotFound, got %v", res)
	}
	if c.Count() != 0 {
		t.Fatalf("nothing should have been inserted, count=%d", c.Count())
	}
}

// NX only inserts, XX only replaces.
func TestCache_NXXX(t *testing.T) {
	t.Parallel()

	c := New(Options{Shards: 1})
	t.Cleanup(func() { _ = c.Close() })

	if res := c.Store([]byte("k"), []byte("v1"), &StoreOptions{XX: true}); res != NotFound {
		t.Fatalf("XX on absent key: want NotFound, got %v", res)
	}
	c.Store([]byte("k"), []byte("v1"), nil)

	if res := c.Store([]byte("k"), []byte("v2"), &StoreOptions{NX: true}); res != Found {
		t.Fatalf("NX on existing key: want Found, got %v", res)
	}
	if v, _ := c.Get([]byte("k")); !bytes.Equal(v, []byte("v1")) {
		t.Fatalf("NX must not overwrite: want %q, got %q", "v1", v)
	}
	if res := c.Store([]byte("k"), []byte("v2"), &StoreOptions{XX: true}); res != Replaced {
		t.Fatalf("XX on existing key: want Replaced, got %v", res)
	}
}

// Lazy expiration: a dead entry is invisible to reads before any sweep
// runs; the sweep then removes it and fires the eviction callback once.
func TestCache_TTLExpiration(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: 1}
	var evicted []Entry
	var reasons []Reason
	c := New(Options{
		Shards: 1,
		Clock:  clk,
		OnEvict: func(e Entry, r Reason) {
			evicted = append(evicted, Entry{Key: append([]byte(nil), e.Key...)})
			reasons = append(reasons, r)
		},
	})
	t.Cleanup(func() { _ = c.Close() })

	c.Store([]byte("tmp"), []byte("v"), &StoreOptions{TTL: 100 * time.Millisecond})
	c.Store([]byte("keep"), []byte("v"), nil)

	if _, ok := c.Get([]byte("tmp")); !ok {
		t.Fatal("fresh entry must be readable")
	}
	clk.add(200 * time.Millisecond)

	if _, ok := c.Get([]byte("tmp")); ok {
		t.Fatal("expired entry must be invisible before sweep")
	}
	if c.Count() != 2 {
		t.Fatalf("expired entry is still resident until sweep, count=%d", c.Count())
	}

	swept, kept := c.Sweep()
	if swept != 1 || kept != 1 {
		t.Fatalf("sweep: want (1,1), got (%d,%d)", swept, kept)
	}
	if c.Count() != 1 {
		t.Fatalf("count after sweep: want 1, got %d", c.Count())
	}
	if len(evicted) != 1 || string(evicted[0].Key) != "tmp" || reasons[0] != ReasonExpired {
		t.Fatalf("eviction callback: want one expired 'tmp', got %d evictions %v", len(evicted), reasons)
	}

	// Idempotent: nothing left to sweep.
	if swept, _ := c.Sweep(); swept != 0 {
		t.Fatalf("second sweep must remove nothing, got %d", swept)
	}
}

// Storing over an expired-but-unswept slot reports the expiration
// through OnEvict and then inserts fresh.
func TestCache_StoreOverExpired(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: 1}
	var expirations int
	c := New(Options{
		Shards: 1,
		Clock:  clk,
		OnEvict: func(e Entry, r Reason) {
			if r == ReasonExpired {
				expirations++
			}
		},
	})
	t.Cleanup(func() { _ = c.Close() })

	c.Store([]byte("k"), []byte("old"), &StoreOptions{TTL: time.Millisecond})
	clk.add(time.Second)

	if res := c.Store([]byte("k"), []byte("new"), nil); res != Inserted {
		t.Fatalf("store over expired slot: want Inserted, got %v", res)
	}
	if expirations != 1 {
		t.Fatalf("the reclaimed entry must report ReasonExpired once, got %d", expirations)
	}
	// The sweep must not double-report it.
	c.Sweep()
	if expirations != 1 {
		t.Fatalf("sweep double-reported the reclaimed entry, got %d", expirations)
	}
}

// KeepTTL preserves the previous deadline across a replace.
func TestCache_KeepTTL(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: 1}
	c := New(Options{Shards: 1, Clock: clk})
	t.Cleanup(func() { _ = c.Close() })

	c.Store([]byte("k"), []byte("v1"), &StoreOptions{TTL: 100 * time.Millisecond})
	c.Store([]byte("k"), []byte("v2"), &StoreOptions{KeepTTL: true})

	clk.add(200 * time.Millisecond)
	if _, ok := c.Get([]byte("k")); ok {
		t.Fatal("KeepTTL must keep the original deadline (entry should be expired)")
	}

	c.Store([]byte("p"), []byte("v1"), &StoreOptions{TTL: 100 * time.Millisecond})
	c.Store([]byte("p"), []byte("v2"), nil) // plain replace clears the TTL
	clk.add(time.Hour)
	if _, ok := c.Get([]byte("p")); !ok {
		t.Fatal("plain replace must clear the deadline")
	}
}

// Update-on-load: the callback's intent is applied before Load returns,
// under the same shard lock as the lookup.
func TestCache_UpdateOnLoad(t *testing.T) {
	t.Parallel()

	c := New(Options{Shards: 1, UseCAS: true})
	t.Cleanup(func() { _ = c.Close() })

	c.Store([]byte("k"), []byte("v1"), nil)

	res := c.Load([]byte("k"), func(e Entry) Update {
		return Update{Op: UpdateReplace, Value: []byte("v2"), Flags: 7}
	})
	if res != Found {
		t.Fatalf("load with replace intent: want Found, got %v", res)
	}
	var flags uint32
	c.Load([]byte("k"), func(e Entry) Update {
		flags = e.Flags
		if !bytes.Equal(e.Value, []byte("v2")) {
			t.Errorf("replace intent not applied: got %q", e.Value)
		}
		return Update{}
	})
	if flags != 7 {
		t.Fatalf("replace intent flags: want 7, got %d", flags)
	}

	res = c.Load([]byte("k"), func(e Entry) Update {
		return Update{Op: UpdateDelete}
	})
	if res != Found {
		t.Fatalf("load with delete intent: want Found, got %v", res)
	}
	if _, ok := c.Get([]byte("k")); ok {
		t.Fatal("delete intent must remove the entry")
	}
}

// Guarded deletes mirror guarded stores; the peek hooks can veto.
func TestCache_GuardedDeleteAndVeto(t *testing.T) {
	t.Parallel()

	c := New(Options{Shards: 1, UseCAS: true})
	t.Cleanup(func() { _ = c.Close() })

	c.Store([]byte("k"), []byte("v"), nil)
	var stamp uint64
	c.Load([]byte("k"), func(e Entry) Update { stamp = e.CAS; return Update{} })

	if res := c.Delete([]byte("k"), &DeleteOptions{CASOp: true, CAS: stamp + 1}); res != CASMismatch {
		t.Fatalf("stale guarded delete: want CASMismatch, got %v", res)
	}
	if res := c.Delete([]byte("k"), &DeleteOptions{Entry: func(Entry) bool { return false }}); res != Canceled {
		t.Fatalf("vetoed delete: want Canceled, got %v", res)
	}
	if res := c.Store([]byte("k"), []byte("v2"), &StoreOptions{Entry: func(Entry) bool { return false }}); res != Canceled {
		t.Fatalf("vetoed store: want Canceled, got %v", res)
	}
	if v, _ := c.Get([]byte("k")); !bytes.Equal(v, []byte("v")) {
		t.Fatalf("vetoed mutations must keep the old value, got %q", v)
	}

	if res := c.Delete([]byte("k"), &DeleteOptions{CASOp: true, CAS: stamp}); res != Deleted {
		t.Fatalf("fresh guarded delete: want Deleted, got %v", res)
	}
}

// Clear fires the callback exactly once per resident entry with
// ReasonCleared and leaves every shard empty.
func TestCache_ClearExhaustive(t *testing.T) {
	t.Parallel()

	cleared := map[string]int{}
	c := New(Options{
		Shards: 8,
		OnEvict: func(e Entry, r Reason) {
			if r != ReasonCleared {
				t.Errorf("clear eviction reason: want ReasonCleared, got %v", r)
			}
			cleared[string(e.Key)]++
		},
	})
	t.Cleanup(func() { _ = c.Close() })

	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	for _, k := range keys {
		c.Store([]byte(k), []byte("v"), nil)
	}

	c.Clear()

	if c.Count() != 0 {
		t.Fatalf("count after clear: want 0, got %d", c.Count())
	}
	for i := 0; i < c.NShards(); i++ {
		if n := c.CountShard(i); n != 0 {
			t.Fatalf("shard %d not empty after clear: %d", i, n)
		}
	}
	if len(cleared) != len(keys) {
		t.Fatalf("cleared key set: want %d, got %d", len(keys), len(cleared))
	}
	for k, n := range cleared {
		if n != 1 {
			t.Fatalf("key %q cleared %d times, want exactly once", k, n)
		}
	}
}

// Low-memory stores evict the oldest resident entry of the shard.
func TestCache_LowMemEviction(t *testing.T) {
	t.Parallel()

	var lowmem []string
	c := New(Options{
		Shards: 1,
		OnEvict: func(e Entry, r Reason) {
			if r == ReasonLowMem {
				lowmem = append(lowmem, string(e.Key))
			}
		},
	})
	t.Cleanup(func() { _ = c.Close() })

	c.Store([]byte("old"), []byte("v"), nil)
	c.Store([]byte("mid"), []byte("v"), nil)
	c.Store([]byte("new"), []byte("v"), &StoreOptions{LowMem: true})

	if len(lowmem) != 1 || lowmem[0] != "old" {
		t.Fatalf("lowmem eviction: want [old], got %v", lowmem)
	}
	if _, ok := c.Get([]byte("new")); !ok {
		t.Fatal("the triggering store's own entry must survive")
	}
}

// Count/Size/Total bookkeeping across mutations.
func TestCache_Accounting(t *testing.T) {
	t.Parallel()

	c := New(Options{Shards: 2})
	t.Cleanup(func() { _ = c.Close() })

	if c.Count() != 0 || c.Size() != 0 || c.Total() != 0 {
		t.Fatal("fresh cache must report zero count/size/total")
	}

	c.Store([]byte("a"), []byte("xx"), nil)
	c.Store([]byte("b"), []byte("yy"), nil)
	if c.Count() != 2 {
		t.Fatalf("count: want 2, got %d", c.Count())
	}
	want := int64(2 * (1 + 2 + entryOverhead))
	if c.Size() != want {
		t.Fatalf("size: want %d, got %d", want, c.Size())
	}

	c.Get([]byte("a"))
	c.Delete([]byte("b"), nil)
	if c.Total() != 4 { // 2 stores + 1 get + 1 delete
		t.Fatalf("total: want 4, got %d", c.Total())
	}
	if c.Size() != want/2 {
		t.Fatalf("size after delete: want %d, got %d", want/2, c.Size())
	}

	// Total is a lifetime counter: clear does not rewind it.
	c.Clear()
	if c.Total() != 4 {
		t.Fatalf("total after clear: want 4, got %d", c.Total())
	}
}

// Closed caches reject mutations and report absence on reads.
func TestCache_Closed(t *testing.T) {
	t.Parallel()

	var cleared int
	c := New(Options{Shards: 1, OnEvict: func(e Entry, r Reason) {
		if r == ReasonCleared {
			cleared++
		}
	}})
	c.Store([]byte("a"), []byte("v"), nil)

	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("close must clear with notifications, got %d", cleared)
	}
	if err := c.Close(); err != nil { // idempotent
		t.Fatalf("second close: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("second close must not re-fire callbacks, got %d", cleared)
	}

	if res := c.Store([]byte("a"), []byte("v"), nil); res != Canceled {
		t.Fatalf("store on closed cache: want Canceled, got %v", res)
	}
	if res := c.Delete([]byte("a"), nil); res != Canceled {
		t.Fatalf("delete on closed cache: want Canceled, got %v", res)
	}
	if _, ok := c.Get([]byte("a")); ok {
		t.Fatal("get on closed cache must miss")
	}
	if res := c.Load([]byte("a"), nil); res != NotFound {
		t.Fatalf("load on closed cache: want NotFound, got %v", res)
	}
}

// SweepPoll estimates the expired fraction without mutating anything.
func TestCache_SweepPoll(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: 1}
	c := New(Options{Shards: 1, Clock: clk})
	t.Cleanup(func() { _ = c.Close() })

	if f := c.SweepPoll(0); f != 0 {
		t.Fatalf("empty cache poll: want 0, got %v", f)
	}

	c.Store([]byte("a"), []byte("v"), &StoreOptions{TTL: time.Millisecond})
	c.Store([]byte("b"), []byte("v"), &StoreOptions{TTL: time.Hour})
	c.Store([]byte("c"), []byte("v"), nil) // no TTL, not sampled

	clk.add(time.Second)
	if f := c.SweepPoll(10); f != 0.5 {
		t.Fatalf("poll: want 0.5, got %v", f)
	}
	if c.Count() != 3 {
		t.Fatalf("poll must not remove anything, count=%d", c.Count())
	}
}
