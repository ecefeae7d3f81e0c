// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import "github.com/cespare/xxhash/v2"

// Sum64Seed hashes raw key bytes with 64-bit xxHash and folds in an
// optional seed. A zero seed returns the plain digest, so the default
// configuration stays byte-compatible with unseeded xxHash.
//
// The seed is mixed through a 64-bit avalanche finalizer rather than a
// plain XOR so that related seeds still produce unrelated shard
// assignments.
func Sum64Seed(b []byte, seed uint64) uint64 {
	h := xxhash.Sum64(b)
	if seed == 0 {
		return h
	}
	h ^= seed
	// fmix64 finalizer (MurmurHash3).
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}
