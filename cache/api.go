package cache

// Result reports the outcome of a single cache operation. Negative
// outcomes (NotFound, CASMismatch, Canceled) are ordinary results that
// callers branch on, never errors.
type Result int

const (
	// Inserted — Store created a new entry.
	Inserted Result = iota + 1
	// Replaced — Store overwrote an existing entry.
	Replaced
	// Found — Load located a live entry.
	Found
	// NotFound — the key is absent (or expired but not yet swept).
	NotFound
	// Deleted — Delete removed an existing entry.
	Deleted
	// CASMismatch — a CAS-guarded operation saw a stale stamp; nothing
	// was mutated. Reload and retry.
	CASMismatch
	// Finished — iteration visited every live entry.
	Finished
	// Canceled — the operation was stopped early: an iteration callback
	// returned IterStop, a Store/Delete peek callback vetoed the
	// mutation, or the cache is closed.
	Canceled
)

// String returns a stable name for the result code.
func (r Result) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Replaced:
		return "replaced"
	case Found:
		return "found"
	case NotFound:
		return "notfound"
	case Deleted:
		return "deleted"
	case CASMismatch:
		return "casmismatch"
	case Finished:
		return "finished"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Reason explains why an entry was evicted (reported to Options.OnEvict).
// Explicit Delete calls do not produce eviction notifications.
type Reason int

const (
	// ReasonExpired — the entry's TTL elapsed and a sweep removed it.
	ReasonExpired Reason = iota + 1
	// ReasonLowMem — the entry was evicted to relieve memory pressure
	// (StoreOptions.LowMem).
	ReasonLowMem
	// ReasonCleared — Clear or Close removed the entry.
	ReasonCleared
)

// String returns a stable name for the eviction reason.
func (r Reason) String() string {
	switch r {
	case ReasonExpired:
		return "expired"
	case ReasonLowMem:
		return "lowmem"
	case ReasonCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// IterAction is the control signal returned by an iteration callback.
// IterStop and IterDelete are bit flags and may be combined: returning
// IterDelete|IterStop deletes the current entry, then terminates.
type IterAction int

const (
	// IterContinue visits the next live entry.
	IterContinue IterAction = 0
	// IterStop terminates the iteration after the current callback.
	IterStop IterAction = 1
	// IterDelete removes the current entry (no eviction notification,
	// same as an explicit Delete) and continues.
	IterDelete IterAction = 2
)

// Entry is a read-only snapshot of a cached entry as seen by a callback
// (load, iteration, eviction, peek).
//
// Key and Value alias shard-owned memory and are valid only for the
// duration of the callback; copy them if they must be retained.
type Entry struct {
	Shard   int    // index of the owning shard
	Time    int64  // operation timestamp, UnixNano
	Key     []byte
	Value   []byte
	Expires int64  // absolute UnixNano deadline; 0 = never expires
	Flags   uint32 // opaque caller-supplied bits, passed through unchanged
	CAS     uint64 // version stamp; 0 unless Options.UseCAS
}

// UpdateOp selects the mutation a load callback wants applied to the
// entry it just observed.
type UpdateOp int

const (
	// UpdateNone leaves the entry unchanged.
	UpdateNone UpdateOp = iota
	// UpdateReplace overwrites value, flags and expiration in place.
	UpdateReplace
	// UpdateDelete removes the entry.
	UpdateDelete
)

// Update is the intent returned by a LoadFunc. It is evaluated by the
// shard under the same lock as the lookup, so the read-modify-write
// cannot race with a concurrent writer.
type Update struct {
	Op      UpdateOp
	Value   []byte // new value for UpdateReplace (copied by the shard)
	Flags   uint32
	Expires int64 // absolute UnixNano deadline; 0 = never expires
}

// LoadFunc observes a live entry during Load and returns an optional
// update intent. Runs under the shard lock; keep it lightweight.
type LoadFunc func(e Entry) Update

// IterFunc observes one live entry during Iter and returns the control
// signal for the iteration. Runs under the shard lock.
type IterFunc func(e Entry) IterAction

// EvictFunc is notified synchronously, under the shard lock, for every
// entry removed other than by explicit Delete. It is informational
// only and cannot veto the removal.
type EvictFunc func(e Entry, reason Reason)

// PeekFunc observes the existing entry a Store is about to replace or a
// Delete is about to remove. Returning false keeps the old entry and
// the operation reports Canceled. Runs under the shard lock.
type PeekFunc func(e Entry) bool
