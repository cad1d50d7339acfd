// Package walid generates the opaque, lexicographically sortable wallpaper
// ids used as the Wallpaper record's primary key.
package walid

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid"
)

// Prefix is prepended to every generated id.
const Prefix = "wlpr_"

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a new id of the form "wlpr_<ulid>". IDs generated in
// succession from the same process sort lexicographically in generation
// order (ulid.Monotonic guarantees strictly increasing entropy within the
// same millisecond).
func New() string {
	mu.Lock()
	defer mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return Prefix + strings.ToLower(id.String())
}

// Valid reports whether s looks like a value produced by New.
func Valid(s string) bool {
	if !strings.HasPrefix(s, Prefix) {
		return false
	}
	_, err := ulid.ParseStrict(strings.ToUpper(strings.TrimPrefix(s, Prefix)))
	return err == nil
}

// MustNewForTest is a convenience for tests that want a readable, fixed
// suffix while still exercising the Prefix contract.
func MustNewForTest(suffix string) string {
	return fmt.Sprintf("%s%s", Prefix, suffix)
}
