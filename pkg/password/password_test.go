package password_test

import (
	"strings"
	"testing"

	"github.com/plaenen/shopcore/pkg/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCompare(t *testing.T) {
	hashed, err := password.Hash("correct-Horse-battery-staple-42", password.WithCost(password.MinCost))
	require.NoError(t, err)
	assert.NotEqual(t, "correct-Horse-battery-staple-42", hashed)

	assert.NoError(t, password.Compare(hashed, "correct-Horse-battery-staple-42"))
	assert.ErrorIs(t, password.Compare(hashed, "wrong"), password.ErrMismatch)
	assert.ErrorIs(t, password.Compare("", "x"), password.ErrEmpty)
}

func TestHashRejectsInput(t *testing.T) {
	_, err := password.Hash("")
	assert.ErrorIs(t, err, password.ErrEmpty)

	_, err = password.Hash(strings.Repeat("a", password.MaxPasswordLength+1))
	assert.ErrorIs(t, err, password.ErrTooLong)
}

func TestValidateStrength(t *testing.T) {
	assert.Error(t, password.ValidateStrength("password"))
	assert.NoError(t, password.ValidateStrength("correct-Horse-battery-staple-42"))
}
