package growbloom

// The functions below are the operation surface used by command adapters.
// Adapters resolve a named slot first and pass what they found; these
// functions never look at slots themselves.

// CreateFilter creates a filter for a slot. It fails with [ErrAlreadyExists]
// unless the slot is empty. An errorRate of 0 selects [DefaultErrorRate].
func CreateFilter(slotEmpty bool, errorRate float64, fixed bool, capacityHint uint64) (*Filter, error) {
	if !slotEmpty {
		return nil, ErrAlreadyExists
	}
	if errorRate == 0 {
		errorRate = DefaultErrorRate
	}
	if !validErrorRate(errorRate) {
		return nil, ErrInvalidErrorRate
	}
	f := New(capacityHint, errorRate)
	f.fixed = fixed
	return f, nil
}

// AddElements adds every element to f and reports per element whether it
// was inserted. A nil f is created first, sized for len(elements) at
// errorRateIfCreating (or [DefaultErrorRate] when that is 0).
//
// The fixed flag is not checked here.
func AddElements(f *Filter, elements [][]byte, errorRateIfCreating float64) (*Filter, []bool, error) {
	if f == nil {
		var err error
		f, err = CreateFilter(true, errorRateIfCreating, false, uint64(len(elements)))
		if err != nil {
			return nil, nil, err
		}
	}
	inserted := make([]bool, len(elements))
	for i, e := range elements {
		inserted[i] = f.Add(e)
	}
	return f, inserted, nil
}

// TestElement reports whether element might be in f. A nil f means the
// slot did not resolve to a filter and fails with [ErrNotFound].
func TestElement(f *Filter, element []byte) (bool, error) {
	if f == nil {
		return false, ErrNotFound
	}
	return f.Test(element), nil
}

// GenerationInfo describes one generation.
type GenerationInfo struct {
	Bytes      uint64 `json:"bytes"`
	Bits       uint64 `json:"bits"`
	FilledBits uint64 `json:"num_filled"`
	HashCount  uint32 `json:"hashes"`
	Capacity   uint64 `json:"capacity"`
}

// Info describes a filter and its generations, newest first.
type Info struct {
	TotalEntries uint64           `json:"size"`
	Fixed        bool             `json:"fixed"`
	ErrorRate    float64          `json:"ratio"`
	Generations  []GenerationInfo `json:"filters"`
}

// Describe returns the statistics of f.
func Describe(f *Filter) (Info, error) {
	if f == nil {
		return Info{}, ErrNotFound
	}
	info := Info{
		TotalEntries: f.totalEntries,
		Fixed:        f.fixed,
		ErrorRate:    f.errorRate,
		Generations:  make([]GenerationInfo, 0, f.generations),
	}
	for g := f.newest; g != nil; g = g.older {
		info.Generations = append(info.Generations, GenerationInfo{
			Bytes:      g.Bytes(),
			Bits:       g.bits,
			FilledBits: g.fill,
			HashCount:  g.hashes,
			Capacity:   g.capacity,
		})
	}
	return info, nil
}
