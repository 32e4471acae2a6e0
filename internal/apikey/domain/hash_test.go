package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSecret(t *testing.T) {
	plain, hash, err := NewSecret("key_ABC1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(plain, SecretPrefix+"abc1_"), plain)
	assert.Len(t, strings.TrimPrefix(plain, SecretPrefix+"abc1_"), 2*secretBytes)
	assert.Equal(t, HashSecret(plain), hash)
	assert.Equal(t, hash, HashSecret("  "+plain+"\n"))

	other, _, err := NewSecret("key_ABC1")
	require.NoError(t, err)
	assert.NotEqual(t, plain, other)
}
