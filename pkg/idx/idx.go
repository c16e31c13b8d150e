package idx

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ID is a ULID in its canonical 26 character form.
type ID string

const Zero ID = ""

// ULIDSizeBytes is the binary length of a ULID.
const ULIDSizeBytes = 16

var ErrInvalid = errors.New("idx: invalid ulid")

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a lexicographically sortable ID for the current UTC time.
func New() ID {
	return NewAt(time.Now().UTC())
}

// NewAt returns an ID stamped with t. Safe for concurrent use.
func NewAt(t time.Time) ID {
	mu.Lock()
	defer mu.Unlock()

	return ID(ulid.MustNew(ulid.Timestamp(t), entropy).String())
}

// Parse validates s as a strict ULID.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalid
	}
	if _, err := ulid.ParseStrict(s); err != nil {
		return Zero, ErrInvalid
	}
	return ID(s), nil
}

func (id ID) IsZero() bool   { return id == Zero }
func (id ID) String() string { return string(id) }

// Bytes returns the 16-byte form, or nil for zero and malformed IDs.
func (id ID) Bytes() []byte {
	u, err := ulid.ParseStrict(id.String())
	if err != nil {
		return nil
	}
	b := make([]byte, ULIDSizeBytes)
	_ = u.MarshalBinaryTo(b)
	return b
}

// Time extracts the embedded timestamp, or the zero time for invalid IDs.
func (id ID) Time() time.Time {
	u, err := ulid.ParseStrict(id.String())
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time())
}

// NewOpaque returns a fresh ULID as unpadded base64url of its 16 bytes.
// Used for identifiers that travel inside links.
func NewOpaque() string {
	return base64.RawURLEncoding.EncodeToString(New().Bytes())
}

// ParseOpaque reverses NewOpaque.
func ParseOpaque(s string) (ID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil || len(raw) != ULIDSizeBytes {
		return Zero, ErrInvalid
	}

	var u ulid.ULID
	if err := u.UnmarshalBinary(raw); err != nil {
		return Zero, ErrInvalid
	}
	return ID(u.String()), nil
}
