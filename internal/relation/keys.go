package relation

import "encoding/binary"

// Key prefixes for the badger-backed triple store. Each triple is assigned a
// sequential uint32 ordinal at write time; the primary record lives under
// prefixTriple, and every queryable field gets its own secondary index
// keyed by normalized value with the ordinal appended, mirroring the
// label/outgoing/incoming index layout used elsewhere in the corpus for
// graph-shaped badger stores.
const (
	prefixTriple         = byte(0x01)
	prefixSourceValue    = byte(0x02)
	prefixSourceType     = byte(0x03)
	prefixSourceSubtype  = byte(0x04)
	prefixTargetValue    = byte(0x05)
	prefixTargetType     = byte(0x06)
	prefixTargetSubtype  = byte(0x07)
	prefixRelationLabel  = byte(0x08)
	prefixRelationType   = byte(0x09)
)

func ordinalBytes(ordinal uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, ordinal)
	return b
}

func parseOrdinalBytes(b []byte) uint32 { return binary.BigEndian.Uint32(b) }

func tripleKey(ordinal uint32) []byte {
	return append([]byte{prefixTriple}, ordinalBytes(ordinal)...)
}

func indexKey(prefix byte, normalizedValue string, ordinal uint32) []byte {
	key := make([]byte, 0, 1+len(normalizedValue)+1+4)
	key = append(key, prefix)
	key = append(key, []byte(normalizedValue)...)
	key = append(key, 0x00)
	key = append(key, ordinalBytes(ordinal)...)
	return key
}

func indexPrefix(prefix byte, normalizedValue string) []byte {
	key := make([]byte, 0, 1+len(normalizedValue)+1)
	key = append(key, prefix)
	key = append(key, []byte(normalizedValue)...)
	key = append(key, 0x00)
	return key
}

// fieldPrefix returns the secondary-index byte for a given role/field
// combination, e.g. (roleSource, fieldValue) -> prefixSourceValue.
func fieldPrefix(r role, f field) byte {
	switch r {
	case roleSource:
		switch f {
		case fieldValue:
			return prefixSourceValue
		case fieldType:
			return prefixSourceType
		default:
			return prefixSourceSubtype
		}
	default:
		switch f {
		case fieldValue:
			return prefixTargetValue
		case fieldType:
			return prefixTargetType
		default:
			return prefixTargetSubtype
		}
	}
}
