package growbloom

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// EncodingVersion is the only record version understood by [Decode].
// It is stored outside the record itself; [Filter.MarshalBinary] writes it
// as a single leading byte.
const EncodingVersion = 0

// maxBits bounds a decoded generation so that corrupt input cannot request
// an absurd allocation.
const maxBits = uint64(1) << 43 // 1 TiB of bit array, more than enough

// maxHashes bounds the hash count of a decoded generation. Sizing never
// produces more than 14 (at the smallest error rate, 0.0001).
const maxHashes = 64

// Encode writes the record of f to w:
//
//	totalEntries   uvarint
//	errorRate      float64 (little-endian IEEE-754)
//	fixed          uvarint (0 or 1)
//	generations, newest first:
//	  capacity       uvarint (never 0)
//	  hashCount      uvarint
//	  bitsPerElement float64
//	  bitArray       uvarint length + ceil(bits/8) raw bytes
//	  fillBits       uvarint
//	terminator     uvarint 0
//
// The bit count of a generation is not stored; it is recomputed as
// capacity * bitsPerElement.
func Encode(w io.Writer, f *Filter) (int64, error) {
	e := &encoder{w: w}
	e.saveUnsigned(f.totalEntries)
	e.saveDouble(f.errorRate)
	e.saveUnsigned(boolToUint(f.fixed))
	for g := f.newest; g != nil; g = g.older {
		e.saveUnsigned(g.capacity)
		e.saveUnsigned(uint64(g.hashes))
		e.saveDouble(g.bitsPerElement)
		e.saveBuffer(g.appendBitArray(nil))
		e.saveUnsigned(g.fill)
	}
	e.saveUnsigned(0)
	return e.n, e.err
}

// Decode reads a record written by [Encode] with the given encoding
// version. Any failure, including an unsupported version, matches
// [ErrMalformedRecord] and returns no filter.
//
// If r does not implement io.ByteReader it is buffered, and Decode may
// read past the end of the record.
func Decode(r io.Reader, version uint) (*Filter, error) {
	if version != EncodingVersion {
		return nil, fmt.Errorf("%w: %w: got version %d, expected %d", ErrMalformedRecord, ErrUnsupportedVersion, version, EncodingVersion)
	}

	br, ok := r.(byteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	d := &decoder{r: br}

	f := &Filter{}
	f.totalEntries = d.loadUnsigned("total entries")
	f.errorRate = d.loadDouble("error rate")
	fixed := d.loadUnsigned("fixed")
	if d.err != nil {
		return nil, d.err
	}
	if !validErrorRate(f.errorRate) {
		return nil, fmt.Errorf("%w: error rate %v out of range", ErrMalformedRecord, f.errorRate)
	}
	if fixed > 1 {
		return nil, fmt.Errorf("%w: fixed flag %d is not 0 or 1", ErrMalformedRecord, fixed)
	}
	f.fixed = fixed == 1

	// Generations are stored newest first; appending keeps that order.
	var tail *Generation
	for {
		g, err := d.loadGeneration()
		if err != nil {
			return nil, err
		}
		if g == nil {
			break
		}
		if tail == nil {
			f.newest = g
		} else {
			tail.older = g
		}
		tail = g
		f.generations++
	}

	if f.newest == nil {
		return nil, fmt.Errorf("%w: record has no generations", ErrMalformedRecord)
	}
	return f, nil
}

// MarshalBinary serializes the filter as the encoding version byte
// followed by its record.
func (f *Filter) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(f.encodedSizeHint())
	buf.WriteByte(EncodingVersion)
	if _, err := Encode(&buf, f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary deserializes a filter produced by [Filter.MarshalBinary].
// Trailing bytes after the record are rejected.
func UnmarshalBinary(data []byte) (*Filter, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrMalformedRecord)
	}
	r := bytes.NewReader(data[1:])
	f, err := Decode(r, uint(data[0]))
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedRecord, r.Len())
	}
	return f, nil
}

// encodedSizeHint is an upper bound on the record size: the bit arrays
// plus a generous allowance for the varint fields.
func (f *Filter) encodedSizeHint() int {
	n := 1 + 3*binary.MaxVarintLen64
	for g := f.newest; g != nil; g = g.older {
		n += int(g.Bytes()) + 5*binary.MaxVarintLen64
	}
	return n
}

func boolToUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// encoder writes the primitive fields of a record, remembering the first
// error so callers can check once at the end.
type encoder struct {
	w       io.Writer
	n       int64
	err     error
	scratch [binary.MaxVarintLen64]byte
}

func (e *encoder) write(p []byte) {
	if e.err != nil {
		return
	}
	n, err := e.w.Write(p)
	e.n += int64(n)
	e.err = err
}

func (e *encoder) saveUnsigned(v uint64) {
	n := binary.PutUvarint(e.scratch[:], v)
	e.write(e.scratch[:n])
}

func (e *encoder) saveDouble(v float64) {
	binary.LittleEndian.PutUint64(e.scratch[:8], math.Float64bits(v))
	e.write(e.scratch[:8])
}

func (e *encoder) saveBuffer(p []byte) {
	e.saveUnsigned(uint64(len(p)))
	e.write(p)
}

type byteReader interface {
	io.Reader
	io.ByteReader
}

// decoder is the reading counterpart of encoder. Every error it records
// wraps ErrMalformedRecord.
type decoder struct {
	r   byteReader
	err error
}

func (d *decoder) fail(field string, err error) {
	if d.err != nil {
		return
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	d.err = fmt.Errorf("%w: reading %s: %w", ErrMalformedRecord, field, err)
}

func (d *decoder) loadUnsigned(field string) uint64 {
	if d.err != nil {
		return 0
	}
	v, err := binary.ReadUvarint(d.r)
	if err != nil {
		d.fail(field, err)
		return 0
	}
	return v
}

func (d *decoder) loadDouble(field string) float64 {
	if d.err != nil {
		return 0
	}
	var b [8]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		d.fail(field, err)
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b[:]))
}

// loadBuffer reads a length-prefixed buffer whose length must equal want.
// The buffer grows with the data actually read, so a lying length prefix
// cannot force a large allocation.
func (d *decoder) loadBuffer(field string, want uint64) []byte {
	n := d.loadUnsigned(field + " length")
	if d.err != nil {
		return nil
	}
	if n != want {
		d.err = fmt.Errorf("%w: %s length mismatch (got %d bytes, expected %d)", ErrMalformedRecord, field, n, want)
		return nil
	}
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, d.r, int64(n)); err != nil {
		d.fail(field, err)
		return nil
	}
	return buf.Bytes()
}

// loadGeneration reads one generation. It returns nil, nil at the terminator.
func (d *decoder) loadGeneration() (*Generation, error) {
	capacity := d.loadUnsigned("capacity")
	if d.err != nil {
		return nil, d.err
	}
	if capacity == 0 {
		return nil, nil
	}

	hashes := d.loadUnsigned("hash count")
	bpe := d.loadDouble("bits per element")
	if d.err != nil {
		return nil, d.err
	}
	if hashes == 0 || hashes > maxHashes {
		return nil, fmt.Errorf("%w: invalid hash count %d", ErrMalformedRecord, hashes)
	}
	if math.IsNaN(bpe) || math.IsInf(bpe, 0) || bpe <= 0 {
		return nil, fmt.Errorf("%w: invalid bits per element %v", ErrMalformedRecord, bpe)
	}
	if float64(capacity)*bpe > float64(maxBits) {
		return nil, fmt.Errorf("%w: generation too large (capacity %d, %v bits per element)", ErrMalformedRecord, capacity, bpe)
	}
	bits := bitsFor(capacity, bpe)
	if bits == 0 {
		return nil, fmt.Errorf("%w: generation has no bits", ErrMalformedRecord)
	}

	raw := d.loadBuffer("bit array", bytesFor(bits))
	fill := d.loadUnsigned("fill bits")
	if d.err != nil {
		return nil, d.err
	}
	if fill > bits {
		return nil, fmt.Errorf("%w: fill bits %d exceed %d bits", ErrMalformedRecord, fill, bits)
	}

	return newGeneration(capacity, uint32(hashes), bpe, wordsFromBytes(raw, bits), fill), nil
}
