package tuning

import (
	"runtime"

	"github.com/prometheus/procfs"
)

// Conservative fallbacks when the host cannot be probed (no /proc, no
// rlimit syscall): a 2 GiB single-socket box with a stock fd limit.
const (
	fallbackMemory = 2 << 30
	fallbackMaxFDs = 1024
	manyCoresAbove = 4
)

// Detect probes the current host: core count from the runtime, memory
// from /proc/meminfo, and the file-descriptor ceiling from
// RLIMIT_NOFILE. Probes that fail fall back to conservative defaults,
// so Detect always returns a usable value.
func Detect() Resources {
	r := Resources{
		CPUCores:           runtime.NumCPU(),
		TotalMemory:        fallbackMemory,
		AvailableMemory:    fallbackMemory,
		MaxFileDescriptors: fallbackMaxFDs,
	}
	if r.CPUCores < 1 {
		r.CPUCores = 1
	}

	if fs, err := procfs.NewDefaultFS(); err == nil {
		if mi, err := fs.Meminfo(); err == nil {
			if mi.MemTotal != nil {
				r.TotalMemory = *mi.MemTotal * 1024
				r.AvailableMemory = r.TotalMemory
			}
			if mi.MemAvailable != nil {
				r.AvailableMemory = *mi.MemAvailable * 1024
			}
		}
	}

	if maxFDs, ok := maxFileDescriptors(); ok {
		r.MaxFileDescriptors = maxFDs
	}

	r.HasManyCores = r.CPUCores > manyCoresAbove
	r.HasHighMemory = r.TotalMemory > highMemoryThreshold
	return r
}
