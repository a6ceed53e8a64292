package ids

import (
	"errors"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ErrMalformed is returned by Parse for values that are not ULIDs.
var ErrMalformed = errors.New("ids: malformed identifier")

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Parse normalises a record identifier taken from user input (route params,
// query filters) and rejects anything that is not a ULID.
func Parse(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	id, err := ulid.ParseStrict(raw)
	if err != nil {
		return "", ErrMalformed
	}
	return id.String(), nil
}

// NewCorrelationID returns an opaque identifier used to thread a request
// through logs and audit records.
func NewCorrelationID() string {
	return uuid.NewString()
}
