// Package ids generates collision-resistant, time-sortable identifiers.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// ULID returns a bare ULID string.
func ULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// New returns "<prefix>_<ULID>", or a bare ULID when prefix is empty.
func New(prefix string) string {
	if prefix == "" {
		return ULID()
	}
	return prefix + "_" + ULID()
}
