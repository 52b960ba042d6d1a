package growbloom

import "math"

const (
	// MinCapacity is the smallest number of elements a generation is sized
	// for. Smaller requests are rounded up.
	MinCapacity = 1000

	// DefaultErrorRate is the false positive rate used when a caller does
	// not supply one.
	DefaultErrorRate = 0.01

	minErrorRate = 0.0001
	maxErrorRate = 0.99

	// ln2 is the natural logarithm of 2.
	ln2 = 0.6931471805599453
	// ln2Squared is ln(2)^2.
	ln2Squared = 0.4804530139182014
)

// OptimalParams calculates the sizing of a single generation.
// Returns the total number of bits, the number of hash functions (k), and
// bits per element.
//
// bitsPerElement is returned separately because it is persisted and the bit
// count is recomputed from it on load as capacity * bitsPerElement.
func OptimalParams(capacity uint64, errorRate float64) (bits uint64, k uint32, bitsPerElement float64) {
	if capacity == 0 {
		capacity = 1
	}
	errorRate = normalizeErrorRate(errorRate)

	// Optimal bits per element: -ln(errorRate) / ln(2)^2
	bitsPerElement = -math.Log(errorRate) / ln2Squared

	bits = bitsFor(capacity, bitsPerElement)

	// Optimal k: (m/n) * ln(2)
	k = uint32(math.Ceil(ln2 * bitsPerElement))
	k = max(k, 1)

	return bits, k, bitsPerElement
}

// bitsFor derives the bit count of a generation. Decoding uses the same
// function, so a loaded generation is sized exactly like the saved one.
func bitsFor(capacity uint64, bitsPerElement float64) uint64 {
	return uint64(float64(capacity) * bitsPerElement)
}

// bytesFor is ceil(bits / 8).
func bytesFor(bits uint64) uint64 {
	return (bits + 7) / 8
}

// EstimateFalsePositiveRate estimates the false positive rate of a single
// bloom filter of the given size after itemsAdded inserts.
// Formula: (1 - e^(-kn/m))^k
func EstimateFalsePositiveRate(bits uint64, k uint32, itemsAdded uint64) float64 {
	m := float64(bits)
	n := float64(itemsAdded)
	kf := float64(k)

	if m == 0 || n == 0 {
		return 0
	}

	return math.Pow(1-math.Exp(-kf*n/m), kf)
}

// normalizeErrorRate maps a requested rate into the range generations can
// be sized for: NaN selects [DefaultErrorRate], rates at or below 0 become
// 0.0001 (0.01%) and rates at or above 1 become 0.99.
func normalizeErrorRate(p float64) float64 {
	switch {
	case math.IsNaN(p):
		return DefaultErrorRate
	case p <= 0:
		return minErrorRate
	case p >= 1:
		return maxErrorRate
	default:
		return p
	}
}

// validErrorRate reports whether p can be used as a target false positive rate.
func validErrorRate(p float64) bool {
	return p > 0 && p < 1 && !math.IsNaN(p)
}
