package pin

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCompare(t *testing.T) {
	hash, err := Hash("4321")
	require.NoError(t, err)
	assert.NotEqual(t, "4321", hash)

	require.NoError(t, Compare(hash, "4321"))
	assert.ErrorIs(t, Compare(hash, "1234"), ErrMismatch)
}

func TestHashEmpty(t *testing.T) {
	_, err := Hash("  ")
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestCompareLegacySHA256(t *testing.T) {
	sum := sha256.Sum256([]byte("1111"))
	legacy := strings.ToUpper(hex.EncodeToString(sum[:]))

	require.NoError(t, Compare(legacy, "1111"))
	assert.ErrorIs(t, Compare(legacy, "2222"), ErrMismatch)
}

func TestCompareMalformedHash(t *testing.T) {
	err := Compare("not-a-hash", "1111")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMismatch)
}
