package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNewPasswordScheme(t *testing.T) {
	s, err := NewPasswordScheme("plain")
	require.NoError(t, err)
	assert.IsType(t, PlainScheme{}, s)

	s, err = NewPasswordScheme("")
	require.NoError(t, err)
	assert.IsType(t, BcryptScheme{}, s)

	_, err = NewPasswordScheme("rot13")
	assert.Error(t, err)
}

func TestPlainScheme(t *testing.T) {
	s := PlainScheme{}
	stored, err := s.Hash("secret1")
	require.NoError(t, err)
	assert.Equal(t, "secret1", stored)
	assert.True(t, s.Compare(stored, "secret1"))
	assert.False(t, s.Compare(stored, "wrong"))
}

func TestBcryptScheme(t *testing.T) {
	s := BcryptScheme{Cost: bcrypt.MinCost}
	stored, err := s.Hash("secret1")
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", stored)
	assert.True(t, s.Compare(stored, "secret1"))
	assert.False(t, s.Compare(stored, "wrong"))
	assert.False(t, s.Compare("secret1", "secret1"), "plaintext rows never match under bcrypt")
}
