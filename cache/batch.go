package cache

// batchOp is one staged mutation. Key and value are private copies so
// callers may reuse their buffers after staging.
type batchOp struct {
	del  bool
	key  []byte
	val  []byte
	sopt StoreOptions
	dopt DeleteOptions
}

// Batch stages store/delete operations against its parent cache.
// Staged mutations are invisible to concurrent readers of the parent
// until End commits them, in staged order, using the same per-shard
// locking as direct operations. The batch therefore guarantees
// atomicity per key — each staged mutation applies all-or-nothing —
// but not a cross-shard snapshot: a concurrent reader may observe some
// committed keys before others.
//
// A Batch is intended for a single goroutine. Dropping a Batch without
// calling End discards every staged operation; nothing becomes
// visible.
type Batch struct {
	c    *Cache
	ops  []batchOp
	done bool
}

// Begin returns a batch handle bound to the same shard set as c.
func (c *Cache) Begin() *Batch {
	return &Batch{c: c}
}

// Store stages an insert/replace. key, value, and opts are captured by
// copy at staging time; guard checks (CAS, NX/XX, peek veto) are
// evaluated at commit, against the state the shard has then.
func (b *Batch) Store(key, value []byte, opts *StoreOptions) {
	if b.done {
		return
	}
	op := batchOp{
		key: append([]byte(nil), key...),
		val: append([]byte(nil), value...),
	}
	if opts != nil {
		op.sopt = *opts
	}
	b.ops = append(b.ops, op)
}

// Delete stages a removal. Same capture and commit-time-evaluation
// rules as Store.
func (b *Batch) Delete(key []byte, opts *DeleteOptions) {
	if b.done {
		return
	}
	op := batchOp{
		del: true,
		key: append([]byte(nil), key...),
	}
	if opts != nil {
		op.dopt = *opts
	}
	b.ops = append(b.ops, op)
}

// Len returns the number of staged operations.
func (b *Batch) Len() int { return len(b.ops) }

// End commits every staged operation in staging order and consumes the
// batch: the handle is inert afterward, and further Store/Delete/End
// calls are no-ops. Per-operation results are not reported; callers
// that need them should issue direct operations instead.
func (b *Batch) End() {
	if b.done {
		return
	}
	b.done = true
	for i := range b.ops {
		op := &b.ops[i]
		if op.del {
			b.c.Delete(op.key, &op.dopt)
		} else {
			b.c.Store(op.key, op.val, &op.sopt)
		}
	}
	b.ops = nil
	b.c = nil
}

// Discard drops all staged operations and consumes the batch without
// applying anything.
func (b *Batch) Discard() {
	b.done = true
	b.ops = nil
	b.c = nil
}
