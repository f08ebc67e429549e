package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateMembershipID_Unique(t *testing.T) {
	ctx := context.Background()
	seen := map[string]bool{}
	taken := func(_ context.Context, id string) (bool, error) {
		return seen[id], nil
	}

	for i := 0; i < 200; i++ {
		id, err := GenerateMembershipID(ctx, taken)
		assert.NoError(t, err)
		assert.Len(t, id, MembershipIDWidth)
		assert.True(t, IsNumeric(id))
		assert.False(t, seen[id], "generated id %s twice", id)
		seen[id] = true
	}
}

func TestGenerateMembershipID_Exhausted(t *testing.T) {
	// Every candidate is reported taken, so the bounded retry loop must
	// give up rather than spin.
	taken := func(_ context.Context, _ string) (bool, error) { return true, nil }
	_, err := GenerateMembershipID(context.Background(), taken)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestIsNumeric(t *testing.T) {
	assert.True(t, IsNumeric("12345"))
	assert.True(t, IsNumeric("007"))
	assert.False(t, IsNumeric(""))
	assert.False(t, IsNumeric("12a45"))
	assert.False(t, IsNumeric("12.45"))
}

func TestPadMembershipID(t *testing.T) {
	assert.Equal(t, "00123", PadMembershipID("123"))
	assert.Equal(t, "12345", PadMembershipID("12345"))
}
