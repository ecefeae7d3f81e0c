//go:build unix

package tuning

import "golang.org/x/sys/unix"

// maxFileDescriptors reads the hard RLIMIT_NOFILE ceiling. Unlimited
// or absurd values are capped so the arithmetic downstream stays in
// int range.
func maxFileDescriptors() (int, bool) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return 0, false
	}
	m := uint64(rl.Max)
	if m > 1<<22 {
		m = 1 << 22
	}
	return int(m), true
}
