package command

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/tinylib/msgp/msgp"

	"github.com/jcalabro/growbloom"
	"github.com/jcalabro/growbloom/internal/keyspace"
)

func newHandler(t *testing.T) (*Handler, *keyspace.Keyspace, *Metrics) {
	t.Helper()
	ks := keyspace.New()
	m := NewMetrics(prometheus.NewRegistry())
	return New(ks, Options{DefaultErrorRate: 0.01, Metrics: m}), ks, m
}

func requireNil(t *testing.T, reply []byte) {
	t.Helper()
	rest, err := msgp.ReadNilBytes(reply)
	require.NoError(t, err)
	require.Empty(t, rest)
}

func requireInt(t *testing.T, reply []byte, want int64) {
	t.Helper()
	got, rest, err := msgp.ReadInt64Bytes(reply)
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Equal(t, want, got)
}

func readInts(t *testing.T, reply []byte) []int64 {
	t.Helper()
	n, rest, err := msgp.ReadArrayHeaderBytes(reply)
	require.NoError(t, err)
	out := make([]int64, n)
	for i := range out {
		out[i], rest, err = msgp.ReadInt64Bytes(rest)
		require.NoError(t, err)
	}
	require.Empty(t, rest)
	return out
}

func requireReplyError(t *testing.T, err error, msg string) {
	t.Helper()
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, msg, cerr.Msg)
}

func TestSetCreatesFilter(t *testing.T) {
	h, ks, m := newHandler(t)

	reply, err := h.Do("BF.SET", "k", "a", "b", "a")
	require.NoError(t, err)
	require.Equal(t, []int64{1, 1, 0}, readInts(t, reply))

	f, status := ks.Resolve("k", keyspace.Read)
	require.Equal(t, keyspace.OK, status)
	require.False(t, f.Fixed())
	require.Equal(t, 0.01, f.ErrorRate())
	require.Equal(t, uint64(2), f.TotalEntries())

	require.Equal(t, 1.0, testutil.ToFloat64(m.Created))
	require.Equal(t, 2.0, testutil.ToFloat64(m.Inserted))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Duplicates))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Commands.WithLabelValues(Set, "ok")))
}

func TestSetUsesDefaultErrorRate(t *testing.T) {
	ks := keyspace.New()
	h := New(ks, Options{DefaultErrorRate: 0.2})

	_, err := h.Do("bf.set", "k", "a")
	require.NoError(t, err)
	f, _ := ks.Resolve("k", keyspace.Read)
	require.Equal(t, 0.2, f.ErrorRate())

	// Without a configured rate the package default applies.
	h = New(ks, Options{})
	_, err = h.Do("BF.SET", "other", "a")
	require.NoError(t, err)
	f, _ = ks.Resolve("other", keyspace.Read)
	require.Equal(t, growbloom.DefaultErrorRate, f.ErrorRate())
}

func TestSetExisting(t *testing.T) {
	h, ks, _ := newHandler(t)

	_, err := h.Do("BF.SET", "k", "a")
	require.NoError(t, err)
	f, _ := ks.Resolve("k", keyspace.Read)

	reply, err := h.Do("BF.SET", "k", "a", "c")
	require.NoError(t, err)
	require.Equal(t, []int64{0, 1}, readInts(t, reply))

	same, _ := ks.Resolve("k", keyspace.Read)
	require.Same(t, f, same)
	require.Equal(t, uint64(2), same.TotalEntries())
}

func TestSetNX(t *testing.T) {
	h, _, _ := newHandler(t)

	_, err := h.Do("BF.SETNX", "k", "a")
	require.NoError(t, err)

	_, err = h.Do("BF.SETNX", "k", "b")
	requireReplyError(t, err, "ERR filter already exists")
	require.ErrorIs(t, err, growbloom.ErrAlreadyExists)
}

func TestSetFixed(t *testing.T) {
	h, _, m := newHandler(t)

	_, err := h.Do("BF.CREATE", "k", "0.01", "a")
	require.NoError(t, err)

	_, err = h.Do("BF.SET", "k", "b")
	requireReplyError(t, err, "ERR cannot add: filter is fixed")
	require.ErrorIs(t, err, growbloom.ErrFixed)

	// Fixed wins over the SETNX check.
	_, err = h.Do("BF.SETNX", "k", "b")
	requireReplyError(t, err, "ERR cannot add: filter is fixed")

	reply, err := h.Do("BF.TEST", "k", "b")
	require.NoError(t, err)
	requireInt(t, reply, 0)
	require.Equal(t, 2.0, testutil.ToFloat64(m.Commands.WithLabelValues(Set, "error"))+testutil.ToFloat64(m.Commands.WithLabelValues(SetNX, "error")))
}

func TestSetWrongType(t *testing.T) {
	h, ks, _ := newHandler(t)
	ks.SetString("s", "plain")

	_, err := h.Do("BF.SET", "s", "a")
	requireReplyError(t, err, "ERR mismatched type")
	require.ErrorIs(t, err, growbloom.ErrWrongType)

	// The foreign value is left alone.
	_, status := ks.Resolve("s", keyspace.Write)
	require.Equal(t, keyspace.WrongType, status)
}

func TestCreate(t *testing.T) {
	h, ks, m := newHandler(t)

	reply, err := h.Do("BF.CREATE", "k", "0.001", "x", "y")
	require.NoError(t, err)
	requireNil(t, reply)

	f, status := ks.Resolve("k", keyspace.Read)
	require.Equal(t, keyspace.OK, status)
	require.True(t, f.Fixed())
	require.Equal(t, 0.001, f.ErrorRate())
	require.Equal(t, uint64(2), f.TotalEntries())
	require.Equal(t, uint64(growbloom.MinCapacity), f.Newest().Capacity())
	require.Equal(t, 1.0, testutil.ToFloat64(m.Created))

	_, err = h.Do("BF.CREATE", "k", "0.01")
	requireReplyError(t, err, "ERR item exists")
	require.ErrorIs(t, err, growbloom.ErrAlreadyExists)
}

func TestCreateDefaultRate(t *testing.T) {
	h, ks, _ := newHandler(t)

	_, err := h.Do("BF.CREATE", "k", "0")
	require.NoError(t, err)
	f, _ := ks.Resolve("k", keyspace.Read)
	require.Equal(t, growbloom.DefaultErrorRate, f.ErrorRate())
	require.Zero(t, f.TotalEntries())
}

func TestCreateErrors(t *testing.T) {
	h, ks, _ := newHandler(t)
	ks.SetString("s", "plain")

	_, err := h.Do("BF.CREATE", "k", "abc")
	requireReplyError(t, err, "ERR error rate required")

	_, err = h.Do("BF.CREATE", "k", "1.5")
	requireReplyError(t, err, "ERR error rate required")
	require.ErrorIs(t, err, growbloom.ErrInvalidErrorRate)

	_, err = h.Do("BF.CREATE", "s", "0.01")
	requireReplyError(t, err, "ERR mismatched type")

	_, err = h.Do("BF.CREATE", "k")
	requireReplyError(t, err, "ERR wrong number of arguments for 'bf.create' command")

	require.Equal(t, []string{"s"}, ks.Keys())
}

func TestTest(t *testing.T) {
	h, ks, _ := newHandler(t)
	ks.SetString("s", "plain")

	_, err := h.Do("BF.SET", "k", "present")
	require.NoError(t, err)

	reply, err := h.Do("BF.TEST", "k", "present")
	require.NoError(t, err)
	requireInt(t, reply, 1)

	reply, err = h.Do("BF.TEST", "k", "absent")
	require.NoError(t, err)
	requireInt(t, reply, 0)

	_, err = h.Do("BF.TEST", "missing", "x")
	requireReplyError(t, err, "ERR not found")
	require.ErrorIs(t, err, growbloom.ErrNotFound)

	_, err = h.Do("BF.TEST", "s", "x")
	requireReplyError(t, err, "ERR mismatched type")

	_, err = h.Do("BF.TEST", "k")
	requireReplyError(t, err, "ERR wrong number of arguments for 'bf.test' command")

	_, err = h.Do("BF.TEST", "k", "a", "b")
	require.Error(t, err)
}

func TestDebug(t *testing.T) {
	h, ks, _ := newHandler(t)

	_, err := h.Do("BF.SET", "k", "seed")
	require.NoError(t, err)
	args := []string{"BF.SET", "k"}
	for i := range 5000 {
		args = append(args, fmt.Sprintf("item-%d", i))
	}
	_, err = h.Do(args...)
	require.NoError(t, err)
	f, _ := ks.Resolve("k", keyspace.Read)
	require.Greater(t, f.Len(), 1)

	reply, err := h.Do("BF.DEBUG", "k")
	require.NoError(t, err)

	n, rest, err := msgp.ReadArrayHeaderBytes(reply)
	require.NoError(t, err)
	require.Equal(t, uint32(7+f.Len()), n)

	readKey := func(want string) {
		var s string
		s, rest, err = msgp.ReadStringBytes(rest)
		require.NoError(t, err)
		require.Equal(t, want, s)
	}
	readInt := func() int64 {
		var v int64
		v, rest, err = msgp.ReadInt64Bytes(rest)
		require.NoError(t, err)
		return v
	}

	readKey("size")
	require.Equal(t, int64(f.TotalEntries()), readInt())
	readKey("fixed")
	require.Equal(t, int64(0), readInt())
	readKey("ratio")
	var ratio float64
	ratio, rest, err = msgp.ReadFloat64Bytes(rest)
	require.NoError(t, err)
	require.Equal(t, 0.01, ratio)
	readKey("filters")

	for _, g := range f.Generations() {
		var sz uint32
		sz, rest, err = msgp.ReadArrayHeaderBytes(rest)
		require.NoError(t, err)
		require.Equal(t, uint32(10), sz)
		readKey("bytes")
		require.Equal(t, int64(g.Bytes()), readInt())
		readKey("bits")
		require.Equal(t, int64(g.Bits()), readInt())
		readKey("num_filled")
		require.Equal(t, int64(g.FillBits()), readInt())
		readKey("hashes")
		require.Equal(t, int64(g.K()), readInt())
		readKey("capacity")
		require.Equal(t, int64(g.Capacity()), readInt())
	}
	require.Empty(t, rest)

	var js bytes.Buffer
	_, err = msgp.UnmarshalAsJSON(&js, reply)
	require.NoError(t, err)
	require.Contains(t, js.String(), `"num_filled"`)

	_, err = h.Do("BF.DEBUG", "missing")
	requireReplyError(t, err, "ERR not found")

	_, err = h.Do("BF.DEBUG")
	requireReplyError(t, err, "ERR wrong number of arguments for 'bf.debug' command")
}

func TestGrowthMetric(t *testing.T) {
	h, ks, m := newHandler(t)

	_, err := h.Do("BF.SET", "k", "seed")
	require.NoError(t, err)
	for i := range 10 {
		args := []string{"BF.SET", "k"}
		for j := range 1000 {
			args = append(args, fmt.Sprintf("batch-%d-%d", i, j))
		}
		_, err := h.Do(args...)
		require.NoError(t, err)
	}

	f, _ := ks.Resolve("k", keyspace.Read)
	require.Equal(t, float64(f.Len()-1), testutil.ToFloat64(m.Growths))
	require.Equal(t, float64(f.TotalEntries()), testutil.ToFloat64(m.Inserted))
}

func TestGrowthMetricIgnoresNewFilters(t *testing.T) {
	h, ks, m := newHandler(t)

	items := func(prefix string) []string {
		out := make([]string, 5000)
		for i := range out {
			out[i] = fmt.Sprintf("%s-%d", prefix, i)
		}
		return out
	}

	_, err := h.Do(append([]string{"BF.CREATE", "fixed", "0.01"}, items("create")...)...)
	require.NoError(t, err)
	_, err = h.Do(append([]string{"BF.SET", "grown"}, items("set")...)...)
	require.NoError(t, err)

	// Both filters are sized for the batch and end just past half full.
	for _, name := range []string{"fixed", "grown"} {
		f, _ := ks.Resolve(name, keyspace.Read)
		require.Equal(t, 2, f.Len(), name)
	}
	require.Zero(t, testutil.ToFloat64(m.Growths))
	require.Equal(t, 2.0, testutil.ToFloat64(m.Created))
}

func TestUnknownCommand(t *testing.T) {
	h, _, _ := newHandler(t)

	_, err := h.Do("BF.NOPE", "k")
	requireReplyError(t, err, "ERR unknown command 'BF.NOPE'")

	_, err = h.Do()
	require.Error(t, err)
}

func TestIsWrite(t *testing.T) {
	require.True(t, IsWrite("bf.set"))
	require.True(t, IsWrite(Create))
	require.True(t, IsWrite(SetNX))
	require.False(t, IsWrite(Test))
	require.False(t, IsWrite(Debug))
	require.False(t, IsWrite("BF.NOPE"))
}

func TestNilMetrics(t *testing.T) {
	h := New(keyspace.New(), Options{})
	_, err := h.Do("BF.SET", "k", "a")
	require.NoError(t, err)
	_, err = h.Do("BF.TEST", "k", "a")
	require.NoError(t, err)
}
