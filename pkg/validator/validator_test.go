package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPhone(t *testing.T) {
	for _, s := range []string{"+639171234567", "09171234567", "02-8911-0964"} {
		assert.True(t, IsPhone(s), s)
	}
	for _, s := range []string{"", "call me", "+63", "12345678901234567890123"} {
		assert.False(t, IsPhone(s), s)
	}
}

func TestHasEmailDomain(t *testing.T) {
	assert.True(t, HasEmailDomain("juan@tip.edu.ph", "tip.edu.ph"))
	assert.True(t, HasEmailDomain("juan@TIP.EDU.PH", "tip.edu.ph"))
	assert.False(t, HasEmailDomain("juan@gmail.com", "tip.edu.ph"))
	assert.False(t, HasEmailDomain("no-at-sign", "tip.edu.ph"))
	// The last @ wins on quoted-local-part oddities.
	assert.True(t, HasEmailDomain(`"a@b"@tip.edu.ph`, "tip.edu.ph"))
}

func TestStudentIDRule(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	type form struct {
		StudentID string `validate:"student_id"`
	}
	assert.NoError(t, v.Struct(form{StudentID: "2021-01234"}))
	assert.Error(t, v.Struct(form{StudentID: "21-1"}))
	assert.Error(t, v.Struct(form{StudentID: "ABCD-1234"}))
}
