package ledger

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"sync"
	"time"
)

// Membership IDs are 5-digit numeric display identifiers, distinct from
// the opaque record id. Generation is a birthday-problem retry loop:
// draw a random candidate, check it against existing customers, retry on
// collision. The caller persists the chosen id atomically with the new
// customer record.
const (
	MembershipIDWidth  = 5
	membershipIDMin    = 10000
	membershipIDSpan   = 90000
	membershipAttempts = 10
)

var numericRe = regexp.MustCompile(`^[0-9]+$`)

// IsNumeric reports whether s is a non-empty all-digit string.
func IsNumeric(s string) bool { return numericRe.MatchString(s) }

// PadMembershipID left-pads an all-numeric query to the fixed id width
// so "123" can exact-match "00123"-style ids.
func PadMembershipID(s string) string {
	return fmt.Sprintf("%0*s", MembershipIDWidth, s)
}

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

func randomMembershipID() string {
	rngMu.Lock()
	n := membershipIDMin + rng.Intn(membershipIDSpan)
	rngMu.Unlock()
	return fmt.Sprintf("%d", n)
}

// GenerateMembershipID draws random candidates until taken reports an
// unused one, giving up with ErrExhausted after a bounded number of
// attempts. It performs no writes itself.
func GenerateMembershipID(ctx context.Context, taken func(context.Context, string) (bool, error)) (string, error) {
	for i := 0; i < membershipAttempts; i++ {
		candidate := randomMembershipID()
		inUse, err := taken(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !inUse {
			return candidate, nil
		}
	}
	return "", ErrExhausted
}
