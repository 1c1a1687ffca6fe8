package padstore

import (
	"encoding/binary"
	"time"
)

// Bucket names for bbolt storage.
var (
	bucketPads    = []byte("pads")    // namespace|id -> padEntry JSON
	bucketContent = []byte("content") // namespace|id|format -> content frame
	bucketPadList = []byte("padlist") // namespace -> JSON array of ids in listing order
	bucketState   = []byte("state")   // namespace|name -> value
)

const stateLastRefresh = "last_refresh"

// encodeTimestamp converts a time.Time to a fixed-width big-endian byte slice.
// Uses an offset so that pre-1970 values keep their ordering.
func encodeTimestamp(t time.Time) []byte {
	buf := make([]byte, 8)
	ns := t.UnixNano()
	binary.BigEndian.PutUint64(buf, uint64(ns-(-1<<63))) //nolint:gosec // intentional signed->unsigned shift
	return buf
}

// decodeTimestamp converts a big-endian byte slice back to time.Time.
func decodeTimestamp(b []byte) time.Time {
	if len(b) < 8 {
		return time.Time{}
	}
	u := binary.BigEndian.Uint64(b[:8])
	ns := int64(u) + (-1 << 63) //nolint:gosec // intentional unsigned->signed shift
	return time.Unix(0, ns).UTC()
}

// joinKey joins key parts with a null separator.
// Format: [part0][0x00][part1]...
func joinKey(parts ...string) []byte {
	n := len(parts) - 1
	for _, p := range parts {
		n += len(p)
	}
	result := make([]byte, 0, n)
	for i, p := range parts {
		if i > 0 {
			result = append(result, 0)
		}
		result = append(result, p...)
	}
	return result
}

func makePadKey(namespace, id string) []byte {
	return joinKey(namespace, id)
}

func makeContentKey(namespace, id, format string) []byte {
	return joinKey(namespace, id, format)
}

func makeStateKey(namespace, name string) []byte {
	return joinKey(namespace, name)
}

// namespacePrefix returns the prefix shared by every pad and content key of a namespace.
func namespacePrefix(namespace string) []byte {
	return append([]byte(namespace), 0)
}
