package keyspace

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/glog"
	"github.com/tidwall/buntdb"

	"github.com/jcalabro/growbloom"
)

// Each slot is stored under slotPrefix+name as
//
//	type name (9 bytes) | encoding version (1 byte) | payload | xxhash64 (8 bytes, little-endian)
//
// where the checksum covers everything before it.
const (
	slotPrefix = "slot:"

	// FilterTypeName tags slots holding a scalable filter.
	FilterTypeName = "MBbloom--"
	// StringTypeName tags slots holding a plain string.
	StringTypeName = "string---"

	typeNameLen  = 9
	checksumLen  = 8
	slotOverhead = typeNameLen + 1 + checksumLen
)

// ErrCorruptSlot is returned when a stored slot fails its checksum or
// cannot be decoded. It always comes together with
// growbloom.ErrMalformedRecord.
var ErrCorruptSlot = errors.New("keyspace: corrupt slot")

// Store persists keyspace snapshots in a buntdb database.
type Store struct {
	db   *buntdb.DB
	path string
}

// Open opens or creates the database at path. ":memory:" opens a
// database that is never written to disk.
func Open(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("keyspace: open %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save replaces the stored snapshot with the contents of ks.
func (s *Store) Save(ks *Keyspace) error {
	values := make(map[string]string, ks.Len())
	for _, name := range ks.Keys() {
		v, err := encodeSlot(ks.slots[name])
		if err != nil {
			return fmt.Errorf("keyspace: encode %q: %w", name, err)
		}
		values[slotPrefix+name] = v
	}

	err := s.db.Update(func(tx *buntdb.Tx) error {
		var stale []string
		err := tx.AscendKeys(slotPrefix+"*", func(key, _ string) bool {
			if _, ok := values[key]; !ok {
				stale = append(stale, key)
			}
			return true
		})
		if err != nil {
			return err
		}
		for _, key := range stale {
			if _, err := tx.Delete(key); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		for key, v := range values {
			if _, _, err := tx.Set(key, v, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("keyspace: save to %s: %w", s.path, err)
	}

	glog.V(1).Infof("keyspace: saved %d slots to %s", len(values), s.path)
	return nil
}

// Load restores a keyspace from the stored snapshot. A corrupt slot fails
// the whole load; no partial keyspace is returned.
func (s *Store) Load() (*Keyspace, error) {
	ks := New()
	var loadErr error
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(slotPrefix+"*", func(key, value string) bool {
			name := strings.TrimPrefix(key, slotPrefix)
			v, err := decodeSlot(value)
			if err != nil {
				loadErr = fmt.Errorf("keyspace: slot %q: %w", name, err)
				return false
			}
			ks.slots[name] = v
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("keyspace: load from %s: %w", s.path, err)
	}
	if loadErr != nil {
		return nil, loadErr
	}

	glog.V(1).Infof("keyspace: loaded %d slots from %s", ks.Len(), s.path)
	return ks, nil
}

func encodeSlot(v any) (string, error) {
	var buf bytes.Buffer
	switch v := v.(type) {
	case *growbloom.Filter:
		buf.WriteString(FilterTypeName)
		buf.WriteByte(growbloom.EncodingVersion)
		if _, err := growbloom.Encode(&buf, v); err != nil {
			return "", err
		}
	case string:
		buf.WriteString(StringTypeName)
		buf.WriteByte(0)
		buf.WriteString(v)
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
	return string(appendChecksum(buf.Bytes())), nil
}

func appendChecksum(body []byte) []byte {
	return binary.LittleEndian.AppendUint64(body, xxhash.Sum64(body))
}

func decodeSlot(value string) (any, error) {
	if len(value) < slotOverhead {
		return nil, fmt.Errorf("%w: %w: %d bytes is too short", ErrCorruptSlot, growbloom.ErrMalformedRecord, len(value))
	}
	body, sum := value[:len(value)-checksumLen], value[len(value)-checksumLen:]
	if xxhash.Sum64String(body) != binary.LittleEndian.Uint64([]byte(sum)) {
		return nil, fmt.Errorf("%w: %w: checksum mismatch", ErrCorruptSlot, growbloom.ErrMalformedRecord)
	}

	typeName, version, payload := body[:typeNameLen], body[typeNameLen], body[typeNameLen+1:]
	switch typeName {
	case FilterTypeName:
		r := strings.NewReader(payload)
		f, err := growbloom.Decode(r, uint(version))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptSlot, err)
		}
		if r.Len() != 0 {
			return nil, fmt.Errorf("%w: %w: %d trailing bytes", ErrCorruptSlot, growbloom.ErrMalformedRecord, r.Len())
		}
		return f, nil
	case StringTypeName:
		return payload, nil
	default:
		return nil, fmt.Errorf("%w: %w: unknown type %q", ErrCorruptSlot, growbloom.ErrMalformedRecord, typeName)
	}
}
