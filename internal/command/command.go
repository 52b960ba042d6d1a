// Package command adapts BF.* commands to the growbloom operations. It
// resolves slots in a keyspace, enforces the rules that belong to the
// caller rather than the filter (fixed filters, BF.SETNX), and encodes
// replies as MessagePack.
package command

import (
	"strconv"
	"strings"

	"github.com/tinylib/msgp/msgp"

	"github.com/jcalabro/growbloom"
	"github.com/jcalabro/growbloom/internal/keyspace"
)

// Command names.
const (
	Create = "BF.CREATE"
	Set    = "BF.SET"
	SetNX  = "BF.SETNX"
	Test   = "BF.TEST"
	Debug  = "BF.DEBUG"
)

type command struct {
	run   func(h *Handler, name string, args []string) ([]byte, error)
	write bool
}

var commands = map[string]command{
	Create: {run: (*Handler).create, write: true},
	Set:    {run: (*Handler).add, write: true},
	SetNX:  {run: (*Handler).add, write: true},
	Test:   {run: (*Handler).test},
	Debug:  {run: (*Handler).debug},
}

// IsWrite reports whether the named command may modify the keyspace.
func IsWrite(name string) bool {
	return commands[strings.ToUpper(name)].write
}

// Options configures a Handler.
type Options struct {
	// DefaultErrorRate is used when BF.SET creates a filter.
	DefaultErrorRate float64
	// Metrics may be nil.
	Metrics *Metrics
}

// Handler executes commands against one keyspace. Like the keyspace, it
// must not be used by more than one goroutine at a time.
type Handler struct {
	ks               *keyspace.Keyspace
	defaultErrorRate float64
	metrics          *Metrics
}

// New returns a handler for ks.
func New(ks *keyspace.Keyspace, opts Options) *Handler {
	rate := opts.DefaultErrorRate
	if rate == 0 {
		rate = growbloom.DefaultErrorRate
	}
	return &Handler{ks: ks, defaultErrorRate: rate, metrics: opts.Metrics}
}

// Do runs one command. args[0] is the command name, matched without
// regard to case. The reply is MessagePack; errors are *Error.
func (h *Handler) Do(args ...string) ([]byte, error) {
	if len(args) == 0 {
		return nil, replyError("ERR empty command", nil)
	}
	name := strings.ToUpper(args[0])
	cmd, ok := commands[name]
	if !ok {
		return nil, unknownCommand(args[0])
	}
	reply, err := cmd.run(h, name, args)
	h.metrics.command(name, err)
	return reply, err
}

// BF.CREATE key errorRate [items...]
//
// Creates a fixed filter in an empty slot and adds the items.
func (h *Handler) create(name string, args []string) ([]byte, error) {
	if len(args) < 3 {
		return nil, wrongArity(name)
	}
	rate, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return nil, errErrorRate
	}

	_, status := h.ks.Resolve(args[1], keyspace.Write)
	if status != keyspace.Empty {
		return nil, statusError(status)
	}
	items := elements(args[3:])
	f, err := growbloom.CreateFilter(true, rate, true, uint64(len(items)))
	if err != nil {
		return nil, errErrorRate
	}
	_, inserted, err := growbloom.AddElements(f, items, rate)
	if err != nil {
		return nil, errErrorRate
	}
	h.ks.SetFilter(args[1], f)
	h.metrics.added(inserted, 0, true)
	return msgp.AppendNil(nil), nil
}

// BF.SET key items...
// BF.SETNX key items...
//
// Adds items, creating a filter with the default error rate if the slot is
// empty. BF.SETNX fails if the filter already exists. The reply has one
// integer per item, 1 if it was inserted.
func (h *Handler) add(name string, args []string) ([]byte, error) {
	if len(args) < 3 {
		return nil, wrongArity(name)
	}

	f, status := h.ks.Resolve(args[1], keyspace.Write)
	switch status {
	case keyspace.OK:
		if f.Fixed() {
			return nil, errFixed
		}
		if name == SetNX {
			return nil, errExists
		}
	case keyspace.Empty:
	default:
		return nil, statusError(status)
	}

	created := status == keyspace.Empty
	before := 0
	if !created {
		before = f.Len()
	}
	f, inserted, err := growbloom.AddElements(f, elements(args[2:]), h.defaultErrorRate)
	if err != nil {
		return nil, errErrorRate
	}
	growths := 0
	if created {
		h.ks.SetFilter(args[1], f)
	} else {
		growths = f.Len() - before
	}
	h.metrics.added(inserted, growths, created)

	reply := msgp.AppendArrayHeader(nil, uint32(len(inserted)))
	for _, ok := range inserted {
		reply = msgp.AppendInt64(reply, boolToInt(ok))
	}
	return reply, nil
}

// BF.TEST key item
func (h *Handler) test(name string, args []string) ([]byte, error) {
	if len(args) != 3 {
		return nil, wrongArity(name)
	}
	f, status := h.ks.Resolve(args[1], keyspace.Read)
	if status != keyspace.OK {
		return nil, statusError(status)
	}
	exists, err := growbloom.TestElement(f, []byte(args[2]))
	if err != nil {
		return nil, statusError(keyspace.Missing)
	}
	return msgp.AppendInt64(nil, boolToInt(exists)), nil
}

// BF.DEBUG key
//
// Replies a flat array: "size", entries, "fixed", 0|1, "ratio", rate,
// "filters", followed by one array per generation, newest first.
func (h *Handler) debug(name string, args []string) ([]byte, error) {
	if len(args) != 2 {
		return nil, wrongArity(name)
	}
	f, status := h.ks.Resolve(args[1], keyspace.Read)
	if status != keyspace.OK {
		return nil, statusError(status)
	}
	info, err := growbloom.Describe(f)
	if err != nil {
		return nil, statusError(keyspace.Missing)
	}

	b := msgp.AppendArrayHeader(nil, uint32(7+len(info.Generations)))
	b = msgp.AppendString(b, "size")
	b = msgp.AppendInt64(b, int64(info.TotalEntries))
	b = msgp.AppendString(b, "fixed")
	b = msgp.AppendInt64(b, boolToInt(info.Fixed))
	b = msgp.AppendString(b, "ratio")
	b = msgp.AppendFloat64(b, info.ErrorRate)
	b = msgp.AppendString(b, "filters")
	for _, g := range info.Generations {
		b = msgp.AppendArrayHeader(b, 10)
		b = msgp.AppendString(b, "bytes")
		b = msgp.AppendInt64(b, int64(g.Bytes))
		b = msgp.AppendString(b, "bits")
		b = msgp.AppendInt64(b, int64(g.Bits))
		b = msgp.AppendString(b, "num_filled")
		b = msgp.AppendInt64(b, int64(g.FilledBits))
		b = msgp.AppendString(b, "hashes")
		b = msgp.AppendInt64(b, int64(g.HashCount))
		b = msgp.AppendString(b, "capacity")
		b = msgp.AppendInt64(b, int64(g.Capacity))
	}
	return b, nil
}

func elements(args []string) [][]byte {
	items := make([][]byte, len(args))
	for i, a := range args {
		items[i] = []byte(a)
	}
	return items
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
