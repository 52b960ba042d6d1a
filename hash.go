package growbloom

import "github.com/zeebo/xxh3"

// hashData computes the 128-bit xxh3 hash of the given data and returns the
// two halves used as the base of double hashing.
func hashData(data []byte) (h1, h2 uint64) {
	h := xxh3.Hash128(data)
	return hashSplit(h)
}

// hashString is hashData for strings.
// This avoids the allocation of converting string to []byte.
func hashString(s string) (h1, h2 uint64) {
	h := xxh3.HashString128(s)
	return hashSplit(h)
}

// hashSplit splits a 128-bit hash into the two base hashes.
func hashSplit(h xxh3.Uint128) (h1, h2 uint64) {
	h1 = h.Lo
	// An even step would only ever reach half of the positions when the
	// bit count is even.
	h2 = h.Hi | 1
	return
}

// nthPosition derives the i-th bit position using double hashing
// (Kirsch-Mitzenmacher): h1 + i*h2 mod bits.
func nthPosition(h1, h2 uint64, i uint32, bits uint64) uint64 {
	return (h1 + uint64(i)*h2) % bits
}
