package cache

// entryOverhead approximates the fixed per-entry bookkeeping cost
// (struct, map bucket share, heap slot) charged to the byte-size
// accounting in addition to key and value lengths.
const entryOverhead = 96

// entry is an intrusive doubly linked list element owned by a shard.
// The list runs in insertion order (head = oldest, tail = newest) and
// drives both iteration order and low-memory victim selection.
//
// Entries are owned exclusively by their shard and must only be
// touched while holding the shard lock; callbacks receive snapshots.
type entry struct {
	key   string // same bytes as the shard map key
	value []byte

	// Intrusive list links in insertion order.
	prev *entry
	next *entry

	// Absolute expiration deadline in UnixNano. Zero means "no TTL".
	expires int64

	// hpos is the entry's slot in the shard's expiration heap,
	// or -1 when the entry has no TTL and is not indexed.
	hpos int

	// Opaque caller-supplied bits, returned unchanged on read.
	flags uint32

	// Version stamp assigned on every creation or mutation while
	// Options.UseCAS is enabled; zero otherwise.
	cas uint64
}

// footprint is the approximate byte cost charged against the shard's
// size counter.
func (e *entry) footprint() int64 {
	return int64(len(e.key)) + int64(len(e.value)) + entryOverhead
}

// snapshot builds the callback view of the entry. Key and Value alias
// shard-owned memory; the snapshot is only valid under the shard lock.
func (e *entry) snapshot(shard int, now int64) Entry {
	return Entry{
		Shard:   shard,
		Time:    now,
		Key:     []byte(e.key),
		Value:   e.value,
		Expires: e.expires,
		Flags:   e.flags,
		CAS:     e.cas,
	}
}
