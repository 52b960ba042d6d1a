// Package growbloom provides a scalable bloom filter for Go.
//
// A bloom filter is a space-efficient probabilistic data structure that tests
// whether an element is a member of a set. False positive matches are possible,
// but false negatives are not – if the filter says an element is not present,
// it definitely is not. If it says an element might be present, it could be a
// false positive.
//
// A plain bloom filter must be sized up front and cannot be resized without
// losing its contents. [Filter] removes that restriction by keeping a chain
// of fixed-size filters called generations.
//
// # Architecture
//
// Each [Generation] is a classic bloom filter of m bits and k hash functions
// sized for a capacity n at false positive rate p:
//
//	bits_per_element = -ln(p) / ln(2)²
//	m = n * bits_per_element
//	k = ceil(ln(2) * bits_per_element)
//
// Bit positions come from a single 128-bit xxh3 hash using double hashing
// (h1 + i*h2 mod m), see "Less Hashing, Same Performance".
//
// A generation counts the bits its inserts turned from 0 to 1. Once more than
// half of its bits are used, the next insert creates a new generation with
// twice the capacity and the same p. Lookups test every generation, newest
// first, and succeed if any of them does.
//
// Capacities below [MinCapacity] are rounded up.
//
// # Insert semantics
//
// [Filter.Add] first tests the element. Elements that already test positive,
// including false positives, are not inserted and do not count towards
// [Filter.TotalEntries]. Adding the same element twice therefore increases
// the count by one.
//
// # Fixed filters
//
// A filter created with [NewFixed] is marked read-only. The filter itself does
// not refuse inserts; callers check [Filter.Fixed] before calling Add.
//
// # Persistence
//
// [Encode] and [Decode] convert a filter to and from a compact record stream;
// [Filter.MarshalBinary] and [UnmarshalBinary] prefix the record with its
// encoding version. Decoding fails with [ErrMalformedRecord] on any
// unsupported version, truncated or inconsistent input.
//
// # Thread Safety
//
// [Filter] is NOT thread-safe. Use external synchronization.
//
// # References
//
//   - Scalable Bloom Filters: http://gsd.di.uminho.pt/members/cbm/ps/dbloom.pdf
//   - Less Hashing, Same Performance: https://www.eecs.harvard.edu/~michaelm/postscripts/rsa2008.pdf
package growbloom
