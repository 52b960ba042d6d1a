package growbloom

import "unsafe"

// Filter is a scalable bloom filter: a chain of [Generation] values, newest
// first, queried as a union. When the newest generation has consumed more
// than half of its bits, the next insert starts a new generation with twice
// its capacity at the same false positive rate.
//
// Filter is NOT thread-safe. Callers must serialize access to a filter.
type Filter struct {
	newest       *Generation // Head of the chain, never nil
	generations  int         // Length of the chain
	totalEntries uint64      // Elements inserted that did not already test positive
	errorRate    float64     // Target false positive rate shared by every generation
	fixed        bool        // No further inserts allowed (enforced by callers)
}

// New creates a scalable filter whose first generation is sized for
// capacityHint elements (at least [MinCapacity]) at the given false
// positive rate. A rate outside (0, 1) is clamped and NaN selects
// [DefaultErrorRate]; [Filter.ErrorRate] reports the rate actually used.
func New(capacityHint uint64, errorRate float64) *Filter {
	errorRate = normalizeErrorRate(errorRate)
	return &Filter{
		newest:      NewGeneration(capacityHint, errorRate),
		generations: 1,
		errorRate:   errorRate,
	}
}

// NewFixed creates a filter like [New] that is marked fixed.
func NewFixed(capacityHint uint64, errorRate float64) *Filter {
	f := New(capacityHint, errorRate)
	f.fixed = true
	return f
}

// Add inserts data and reports whether it was inserted. Data that already
// tests positive, including false positives, is not inserted again and
// does not count towards TotalEntries.
//
// Add does not look at the fixed flag.
func (f *Filter) Add(data []byte) bool {
	h1, h2 := hashData(data)
	return f.addWithHash(h1, h2)
}

// AddString is Add for strings without allocating.
func (f *Filter) AddString(s string) bool {
	h1, h2 := hashString(s)
	return f.addWithHash(h1, h2)
}

func (f *Filter) addWithHash(h1, h2 uint64) bool {
	if f.testWithHash(h1, h2) {
		return false
	}

	if f.newest.full() {
		f.grow()
	}
	f.newest.insertWithHash(h1, h2)
	f.totalEntries++
	return true
}

// grow prepends a generation with twice the capacity of the current head.
func (f *Filter) grow() {
	g := NewGeneration(f.newest.capacity*2, f.errorRate)
	g.older = f.newest
	f.newest = g
	f.generations++
}

// Test checks if data might be in any generation.
// Returns true if the data might be present (with false positive probability),
// or false if the data is definitely not present.
func (f *Filter) Test(data []byte) bool {
	h1, h2 := hashData(data)
	return f.testWithHash(h1, h2)
}

// TestString checks if a string might be in the filter without allocating.
func (f *Filter) TestString(s string) bool {
	h1, h2 := hashString(s)
	return f.testWithHash(h1, h2)
}

// testWithHash walks the chain newest first; recently added elements are
// most likely in the newest generation.
func (f *Filter) testWithHash(h1, h2 uint64) bool {
	for g := f.newest; g != nil; g = g.older {
		if g.testWithHash(h1, h2) {
			return true
		}
	}
	return false
}

// Newest returns the head of the generation chain.
func (f *Filter) Newest() *Generation {
	return f.newest
}

// Generations returns the chain newest first.
func (f *Filter) Generations() []*Generation {
	gens := make([]*Generation, 0, f.generations)
	for g := f.newest; g != nil; g = g.older {
		gens = append(gens, g)
	}
	return gens
}

// Len returns the number of generations.
func (f *Filter) Len() int {
	return f.generations
}

// TotalEntries returns the number of elements inserted.
func (f *Filter) TotalEntries() uint64 {
	return f.totalEntries
}

// ErrorRate returns the target false positive rate.
func (f *Filter) ErrorRate() float64 {
	return f.errorRate
}

// Fixed reports whether the filter is marked fixed.
func (f *Filter) Fixed() bool {
	return f.fixed
}

// Capacity returns the sum of the capacities of all generations.
func (f *Filter) Capacity() uint64 {
	var total uint64
	for g := f.newest; g != nil; g = g.older {
		total += g.capacity
	}
	return total
}

// MemUsage returns the approximate number of bytes held by the filter.
func (f *Filter) MemUsage() uint64 {
	total := uint64(unsafe.Sizeof(*f))
	for g := f.newest; g != nil; g = g.older {
		total += uint64(unsafe.Sizeof(*g))
		total += uint64(len(g.words)) * 8
	}
	return total
}

// EstimatedFalsePositiveRate estimates the probability that an element
// never inserted tests positive in at least one generation.
func (f *Filter) EstimatedFalsePositiveRate() float64 {
	miss := 1.0
	for g := f.newest; g != nil; g = g.older {
		miss *= 1 - g.EstimatedFalsePositiveRate()
	}
	return 1 - miss
}
