package matchid

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Length is the exact number of characters in an external match identifier.
const Length = 32

// ErrInvalid reports that a raw identifier cannot name a live match.
var ErrInvalid = errors.New("invalid match id")

// ID is a validated match identifier. The same value serves as the live
// record's storage key and as the fanout topic for its recompute signals.
type ID string

// Parse validates an externally supplied identifier. It reads no state and
// takes no lock, so gateways can call it on every connection attempt before
// touching the store.
func Parse(raw string) (ID, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) != Length {
		return "", ErrInvalid
	}
	//1.- Accept only lowercase hex so the id doubles as a safe topic name.
	for _, r := range trimmed {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", ErrInvalid
		}
	}
	return ID(trimmed), nil
}

// New mints a fresh identifier for a not-yet-started match.
func New() ID {
	id := uuid.New()
	return ID(hex.EncodeToString(id[:]))
}

// String returns the external representation of the identifier.
func (id ID) String() string { return string(id) }

// Topic names the broadcast topic carrying recompute signals for this match.
func (id ID) Topic() string { return "match." + string(id) }
