package growbloom

import (
	"github.com/bits-and-blooms/bitset"
)

// Generation is one fixed-capacity bloom filter in the chain of a scalable
// [Filter]. Besides the bit array it tracks how many bits its inserts have
// turned on (the fill level), which the owning filter uses to decide when
// to grow.
//
// Once created, the capacity, hash count, bits per element and bit count
// of a generation never change.
type Generation struct {
	capacity       uint64         // Number of elements this generation was sized for
	hashes         uint32         // Number of hash functions (k)
	bitsPerElement float64        // Persisted so that bits can be recomputed exactly
	bits           uint64         // capacity * bitsPerElement
	fill           uint64         // Bits flipped from 0 to 1 by inserts
	words          []uint64       // Packed bit array, LSB first within each byte
	set            *bitset.BitSet // View over words
	older          *Generation    // Previous (smaller) generation
}

// NewGeneration creates an empty generation sized for capacity elements at
// the given false positive rate. Capacities below [MinCapacity] are rounded up.
func NewGeneration(capacity uint64, errorRate float64) *Generation {
	capacity = max(capacity, MinCapacity)
	bits, k, bpe := OptimalParams(capacity, errorRate)
	return newGeneration(capacity, k, bpe, make([]uint64, wordsFor(bits)), 0)
}

// newGeneration assembles a generation around an existing word slice.
// Used by NewGeneration and the decoder.
func newGeneration(capacity uint64, k uint32, bpe float64, words []uint64, fill uint64) *Generation {
	return &Generation{
		capacity:       capacity,
		hashes:         k,
		bitsPerElement: bpe,
		bits:           bitsFor(capacity, bpe),
		fill:           fill,
		words:          words,
		set:            bitset.From(words),
	}
}

// wordsFor is the number of uint64 words backing the given bit count.
func wordsFor(bits uint64) uint64 {
	return (bits + 63) / 64
}

// Insert sets the k bits for data and returns how many of them were
// previously unset. The count is added to the generation's fill level.
func (g *Generation) Insert(data []byte) uint32 {
	h1, h2 := hashData(data)
	return g.insertWithHash(h1, h2)
}

// InsertString is Insert for strings without allocating.
func (g *Generation) InsertString(s string) uint32 {
	h1, h2 := hashString(s)
	return g.insertWithHash(h1, h2)
}

func (g *Generation) insertWithHash(h1, h2 uint64) uint32 {
	var newBits uint32
	for i := uint32(0); i < g.hashes; i++ {
		pos := uint(nthPosition(h1, h2, i, g.bits))
		if !g.set.Test(pos) {
			g.set.Set(pos)
			newBits++
		}
	}
	g.fill += uint64(newBits)
	return newBits
}

// Test reports whether all k bits for data are set.
func (g *Generation) Test(data []byte) bool {
	h1, h2 := hashData(data)
	return g.testWithHash(h1, h2)
}

// TestString is Test for strings without allocating.
func (g *Generation) TestString(s string) bool {
	h1, h2 := hashString(s)
	return g.testWithHash(h1, h2)
}

func (g *Generation) testWithHash(h1, h2 uint64) bool {
	for i := uint32(0); i < g.hashes; i++ {
		if !g.set.Test(uint(nthPosition(h1, h2, i, g.bits))) {
			return false
		}
	}
	return true
}

// full reports whether more than half of the bit budget has been consumed.
func (g *Generation) full() bool {
	return g.fill*2 > g.bits
}

// Capacity returns the number of elements the generation was sized for.
func (g *Generation) Capacity() uint64 {
	return g.capacity
}

// K returns the number of hash functions.
func (g *Generation) K() uint32 {
	return g.hashes
}

// BitsPerElement returns the bits per element the generation was sized with.
func (g *Generation) BitsPerElement() float64 {
	return g.bitsPerElement
}

// Bits returns the size of the bit array in bits.
func (g *Generation) Bits() uint64 {
	return g.bits
}

// Bytes returns the size of the bit array in bytes, ceil(bits/8).
func (g *Generation) Bytes() uint64 {
	return bytesFor(g.bits)
}

// FillBits returns the number of bits turned on by inserts.
func (g *Generation) FillBits() uint64 {
	return g.fill
}

// Older returns the previous generation, or nil for the oldest one.
func (g *Generation) Older() *Generation {
	return g.older
}

// EstimatedFillRatio is the proportion of bits that are set, counted
// from the bit array rather than from the fill level.
func (g *Generation) EstimatedFillRatio() float64 {
	return float64(g.set.Count()) / float64(g.bits)
}

// EstimatedFalsePositiveRate estimates the probability that an element
// never inserted tests positive: (fill/bits)^k.
func (g *Generation) EstimatedFalsePositiveRate() float64 {
	ratio := float64(g.fill) / float64(g.bits)
	p := 1.0
	for range g.hashes {
		p *= ratio
	}
	return p
}

// appendBitArray appends the ceil(bits/8) bytes of the bit array to dst.
// Bit i lives in byte i/8 at position i%8.
func (g *Generation) appendBitArray(dst []byte) []byte {
	n := g.Bytes()
	for i := uint64(0); i < n; i++ {
		dst = append(dst, byte(g.words[i/8]>>((i%8)*8)))
	}
	return dst
}

// wordsFromBytes packs a raw bit array into little-endian words.
func wordsFromBytes(raw []byte, bits uint64) []uint64 {
	words := make([]uint64, wordsFor(bits))
	for i, b := range raw {
		words[i/8] |= uint64(b) << ((i % 8) * 8)
	}
	return words
}
