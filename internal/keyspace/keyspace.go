// Package keyspace holds named slots for the command adapter. A slot is
// either empty, holds a scalable filter, or holds a value of some other
// type. Slots are snapshotted to and restored from a buntdb file, see
// [Store].
package keyspace

import (
	"sort"

	"github.com/jcalabro/growbloom"
)

// Status is the outcome of resolving a slot.
type Status int

const (
	// OK means the slot holds a filter.
	OK Status = iota
	// Missing means the slot was opened for reading and does not exist.
	Missing
	// Empty means the slot was opened for writing and does not exist yet.
	Empty
	// WrongType means the slot holds something other than a filter.
	WrongType
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case Missing:
		return "missing"
	case Empty:
		return "empty"
	case WrongType:
		return "wrong type"
	default:
		return "unknown"
	}
}

// Err maps a status to the error reported when the caller needed a
// different one. OK maps to growbloom.ErrAlreadyExists because it is only
// an error for callers that wanted an empty slot.
func (s Status) Err() error {
	switch s {
	case OK:
		return growbloom.ErrAlreadyExists
	case Missing:
		return growbloom.ErrNotFound
	case WrongType:
		return growbloom.ErrWrongType
	default:
		return nil
	}
}

// Mode is how a slot is opened.
type Mode int

const (
	// Read opens an existing slot; an absent slot resolves to Missing.
	Read Mode = iota
	// Write opens a slot for modification; an absent slot resolves to Empty.
	Write
)

// Keyspace maps slot names to values. It is not safe for concurrent use;
// the host runs one command at a time against it.
type Keyspace struct {
	slots map[string]any
}

// New returns an empty keyspace.
func New() *Keyspace {
	return &Keyspace{slots: make(map[string]any)}
}

// Resolve looks up name. The filter is only non-nil when the status is OK.
func (ks *Keyspace) Resolve(name string, mode Mode) (*growbloom.Filter, Status) {
	v, ok := ks.slots[name]
	if !ok {
		if mode == Read {
			return nil, Missing
		}
		return nil, Empty
	}
	f, ok := v.(*growbloom.Filter)
	if !ok {
		return nil, WrongType
	}
	return f, OK
}

// SetFilter stores f in name, replacing whatever was there.
func (ks *Keyspace) SetFilter(name string, f *growbloom.Filter) {
	ks.slots[name] = f
}

// SetString stores a plain string value in name.
func (ks *Keyspace) SetString(name, value string) {
	ks.slots[name] = value
}

// Delete removes name and reports whether it existed.
func (ks *Keyspace) Delete(name string) bool {
	_, ok := ks.slots[name]
	delete(ks.slots, name)
	return ok
}

// Keys returns the slot names in sorted order.
func (ks *Keyspace) Keys() []string {
	keys := make([]string, 0, len(ks.slots))
	for k := range ks.slots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of slots.
func (ks *Keyspace) Len() int {
	return len(ks.slots)
}

// MemUsage sums the memory held by the filters in the keyspace.
func (ks *Keyspace) MemUsage() uint64 {
	var total uint64
	for _, v := range ks.slots {
		if f, ok := v.(*growbloom.Filter); ok {
			total += f.MemUsage()
		}
	}
	return total
}
