package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestSealerRoundTrip(t *testing.T) {
	s, err := NewSealer(testKey())
	require.NoError(t, err)
	require.True(t, s.Enabled())

	plaintext := []byte(`[{"role":"user","content":"hi"}]`)
	sealed, err := s.Seal(plaintext, []byte("user-1"))
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)

	opened, err := s.Open(sealed, []byte("user-1"))
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestSealerRejectsWrongAssociatedData(t *testing.T) {
	s, err := NewSealer(testKey())
	require.NoError(t, err)

	sealed, err := s.Seal([]byte("secret"), []byte("user-1"))
	require.NoError(t, err)

	_, err = s.Open(sealed, []byte("user-2"))
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestSealerNonceIsRandom(t *testing.T) {
	s, err := NewSealer(testKey())
	require.NoError(t, err)

	a, err := s.Seal([]byte("same"), nil)
	require.NoError(t, err)
	b, err := s.Seal([]byte("same"), nil)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestNilSealerPassesThrough(t *testing.T) {
	s, err := NewSealer(nil)
	require.NoError(t, err)
	assert.False(t, s.Enabled())

	out, err := s.Seal([]byte("plain"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("plain"), out)

	out, err = s.Open([]byte("plain"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("plain"), out)
}

func TestInvalidKeyAndCiphertext(t *testing.T) {
	_, err := NewSealer([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidKeySize)

	aead, err := NewAESGCM(testKey())
	require.NoError(t, err)
	_, err = Decrypt(aead, []byte{1, 2}, nil)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}
