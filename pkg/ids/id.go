package ids

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// ID represents a unique identifier
type ID [16]byte

// Empty is the zero ID
var Empty = ID{}

// New creates a random ID
func New() ID {
	var id ID
	rand.Read(id[:])
	return id
}

// GenerateTestID creates a random ID for testing
func GenerateTestID() ID {
	return New()
}

// String returns the hex representation of the ID
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the byte representation of the ID
func (id ID) Bytes() []byte {
	return id[:]
}

// IsEmpty reports whether the ID is the zero value
func (id ID) IsEmpty() bool {
	return id == Empty
}

// Compare returns -1, 0 or 1 depending on the byte ordering of the two IDs
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

// FromString creates an ID from a hex string
func FromString(s string) (ID, error) {
	var id ID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("invalid ID length: expected %d, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}
