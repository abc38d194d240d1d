package pebblestore

// Keyspace: a single flat, globally-ordered event collection.
//
//	evt/e/{offset_16B} -> body
//	evt/meta           -> last-issued offset (16B)
var (
	entryPrefix = []byte("evt/e/")
	metaKey     = []byte("evt/meta")
)

func entryKey(offset []byte) []byte {
	k := make([]byte, 0, len(entryPrefix)+16)
	k = append(k, entryPrefix...)
	k = append(k, offset...)
	return k
}

// entryRangeBounds returns [low, high) covering every entry key.
func entryRangeBounds() (low, high []byte) {
	low = append([]byte(nil), entryPrefix...)
	high = append([]byte(nil), entryPrefix...)
	high[len(high)-1]++ // bump last byte of "e/" prefix's trailing '/' to exclude nothing else
	return low, high
}
