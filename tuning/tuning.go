// Package tuning recommends sizing parameters (network backlog, event
// queue size, connection limit, cache shard count) from detected
// system resources. Everything here is a pure advisory function: a
// caller consumes the recommendation once, typically feeding the shard
// count into cache.Options.Shards, and the planner has no further
// interaction with the cache.
package tuning

// Bounds for each recommended parameter. Recommendations are clamped
// into these ranges and the Valid* predicates reject values outside
// them.
const (
	MinBacklog   = 256
	MaxBacklog   = 16384
	MinQueueSize = 64
	MaxQueueSize = 4096
	MinMaxConns  = 128
	MaxMaxConns  = 131072
	MinShards    = 32
	MaxShards    = 131072
)

// Memory thresholds and per-unit cost estimates used by the scaling
// math.
const (
	highMemoryThreshold   = 4 << 30 // 4 GiB
	mediumMemoryThreshold = 2 << 30 // 2 GiB

	memoryPerConnection = 12288 // ~12 KiB per connection
	memoryPerShard      = 2048  // ~2 KiB per shard
)

// Resources describes the host the recommendations are computed for.
// Obtain one from Detect, or fill it in manually for testing and
// cross-host planning.
type Resources struct {
	CPUCores           int
	TotalMemory        uint64 // bytes
	AvailableMemory    uint64 // bytes
	MaxFileDescriptors int

	HasManyCores  bool // more than 4 cores
	HasHighMemory bool // more than 4 GiB total
}

// Config bundles the four recommended parameters.
type Config struct {
	Backlog   int
	QueueSize int
	MaxConns  int
	Shards    int
}

// Recommend detects the host's resources and returns a Config.
func Recommend() Config {
	return RecommendFor(Detect())
}

// RecommendFor computes all four recommendations for the given
// resources. The shard recommendation assumes one serving thread per
// core.
func RecommendFor(r Resources) Config {
	return Config{
		Backlog:   Backlog(r),
		QueueSize: QueueSize(r),
		MaxConns:  MaxConns(r),
		Shards:    Shards(r, r.CPUCores),
	}
}

// Backlog recommends a listen backlog: 256 per core, boosted on
// high-memory and many-core hosts, trimmed on low-memory ones.
func Backlog(r Resources) int {
	optimal := 256 * r.CPUCores
	if r.HasHighMemory {
		optimal = optimal * 3 / 2
	} else if r.TotalMemory < mediumMemoryThreshold {
		optimal = optimal * 3 / 4
	}
	if r.HasManyCores {
		optimal = optimal * 5 / 4
	}
	return clamp(optimal, MinBacklog, MaxBacklog)
}

// QueueSize recommends an event-queue depth: 64 events per core as a
// baseline, doubled on high-memory hosts and halved on low-memory
// ones, with extra headroom at 8 and 16 cores.
func QueueSize(r Resources) int {
	optimal := r.CPUCores * 64
	if r.HasHighMemory {
		optimal = r.CPUCores * 128
	} else if r.TotalMemory < mediumMemoryThreshold {
		optimal = r.CPUCores * 32
	}
	if r.CPUCores >= 8 {
		optimal = optimal * 6 / 5
	}
	if r.CPUCores >= 16 {
		optimal = optimal * 13 / 10
	}
	return clamp(optimal, MinQueueSize, MaxQueueSize)
}

// MaxConns recommends a connection limit from whichever of memory
// (~12 KiB per connection) and file descriptors (256 reserved for the
// process) is more restrictive, scaled by host capability.
func MaxConns(r Resources) int {
	memLimit := int(r.AvailableMemory / memoryPerConnection)
	fdLimit := r.MaxFileDescriptors - 256
	limit := memLimit
	if fdLimit < limit {
		limit = fdLimit
	}

	var optimal int
	switch {
	case r.HasHighMemory && r.HasManyCores:
		optimal = limit * 85 / 100
	case r.HasHighMemory || r.HasManyCores:
		optimal = limit * 75 / 100
	default:
		optimal = limit * 65 / 100
	}
	if r.CPUCores >= 8 {
		optimal = optimal * 11 / 10
	}
	if r.CPUCores >= 16 {
		optimal = optimal * 23 / 20
	}
	if optimal < 2048 {
		optimal = 2048
	}
	return clamp(optimal, MinMaxConns, MaxMaxConns)
}

// Shards recommends a cache shard count for nthreads serving threads:
// 128 shards per thread, scaled by memory and core count, capped so
// shard bookkeeping (~2 KiB each) stays within a quarter of available
// memory, then snapped to a power of two (the smaller power wins when
// it covers at least 75% of the raw value).
func Shards(r Resources, nthreads int) int {
	if nthreads < 1 {
		nthreads = 1
	}
	optimal := nthreads * 128
	if r.HasHighMemory {
		optimal *= 2
	} else if r.TotalMemory < mediumMemoryThreshold {
		optimal /= 2
	}
	if r.CPUCores >= 16 {
		optimal = optimal * 3 / 2
	} else if r.CPUCores >= 8 {
		optimal = optimal * 5 / 4
	}

	if budget := r.AvailableMemory / 4; uint64(optimal)*memoryPerShard > budget {
		optimal = int(budget / memoryPerShard)
	}

	pow2 := 1
	for pow2 < optimal {
		pow2 *= 2
	}
	if pow2/2*4 >= optimal*3 { // pow2/2 >= 0.75*optimal
		optimal = pow2 / 2
	} else {
		optimal = pow2
	}
	return clamp(optimal, MinShards, MaxShards)
}

// ValidBacklog reports whether backlog is within the documented bounds.
func ValidBacklog(backlog int) bool {
	return backlog >= MinBacklog && backlog <= MaxBacklog
}

// ValidQueueSize reports whether queuesize is within the documented
// bounds.
func ValidQueueSize(queuesize int) bool {
	return queuesize >= MinQueueSize && queuesize <= MaxQueueSize
}

// ValidMaxConns reports whether maxconns is within bounds and the
// host's memory can carry that many connections without spending more
// than half of it.
func ValidMaxConns(maxconns int, availableMemory uint64) bool {
	if maxconns < MinMaxConns || maxconns > MaxMaxConns {
		return false
	}
	required := uint64(maxconns) * memoryPerConnection
	return required < availableMemory/2
}

// ValidShards reports whether nshards is within bounds and keeps a
// sane shard-to-thread ratio (between 4 and 8192 shards per thread).
func ValidShards(nshards, nthreads int) bool {
	if nshards < MinShards || nshards > MaxShards {
		return false
	}
	if nthreads < 1 {
		return false
	}
	ratio := nshards / nthreads
	return ratio >= 4 && ratio <= 8192
}

// ValidConfig reports whether every parameter of cfg passes its
// predicate against the given resources.
func ValidConfig(cfg Config, r Resources) bool {
	return ValidBacklog(cfg.Backlog) &&
		ValidQueueSize(cfg.QueueSize) &&
		ValidMaxConns(cfg.MaxConns, r.AvailableMemory) &&
		ValidShards(cfg.Shards, r.CPUCores)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
