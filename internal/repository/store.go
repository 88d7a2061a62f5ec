// Package repository persists intake sessions keyed by messaging user id.
//
// Every store uses the same optimistic-concurrency contract: Save succeeds
// only if the stored version still equals the session's Version (0 meaning
// "nothing stored"), and returns the session with Version incremented.
// Expired records load as fresh sessions that keep the stored version so the
// next Save overwrites them.
package repository

import (
	"errors"
	"time"
)

// ErrConflict reports a write against a stale session version.
var ErrConflict = errors.New("repository: session version conflict")

const defaultSessionTTL = 24 * time.Hour

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultSessionTTL
	}
	return ttl
}
