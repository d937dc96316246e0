package vector

import (
	"bytes"
	"fmt"
	"strings"
)

// Key identifies a vector node and doubles as a deletion-prefix target.
// Shape: resource/field_type/field_id/start-end, e.g. "r1/a/title/0-128".
type Key []byte

// NewKey builds a Key from its components.
func NewKey(resource, fieldType, fieldID string, start, end int) Key {
	return Key(fmt.Sprintf("%s/%s/%s/%d-%d", resource, fieldType, fieldID, start, end))
}

// ResourcePrefix returns the deletion-prefix that covers every node
// belonging to a resource.
func ResourcePrefix(resource string) []byte {
	return []byte(resource + "/")
}

// FieldPrefix returns the deletion-prefix that covers every node belonging
// to one field of a resource.
func FieldPrefix(resource, fieldType, fieldID string) []byte {
	return []byte(strings.Join([]string{resource, fieldType, fieldID}, "/") + "/")
}

// HasPrefix reports whether p is a prefix of k.
func (k Key) HasPrefix(p []byte) bool { return bytes.HasPrefix(k, p) }

// Compare orders keys lexicographically, matching the node-store's
// on-disk sort order.
func (k Key) Compare(other Key) int { return bytes.Compare(k, other) }

func (k Key) String() string { return string(k) }

// MarshalText and UnmarshalText render a Key as its plain
// resource/field_type/field_id/start-end text instead of the base64 a bare
// []byte would otherwise get from encoding/json, so segment dumps and CLI
// ingestion files stay human-readable.
func (k Key) MarshalText() ([]byte, error) { return []byte(k), nil }

func (k *Key) UnmarshalText(text []byte) error {
	*k = append(Key(nil), text...)
	return nil
}
