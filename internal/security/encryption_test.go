package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testVault(t *testing.T) *Vault {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	v, err := NewVault(key)
	require.NoError(t, err)
	return v
}

func TestNewVault_RejectsBadKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		_, err := NewVault(make([]byte, n))
		require.Error(t, err, "key length %d", n)
	}
}

func TestVault_RoundTrip(t *testing.T) {
	v := testVault(t)

	cases := []string{
		"ya29.a0AfH6SMBx",
		"",
		"short",
		strings.Repeat("x", 4096),
		"ключ доступа 🔐",
	}
	for _, plain := range cases {
		env, err := v.Encrypt(plain)
		require.NoError(t, err)

		got, err := v.Decrypt(env)
		require.NoError(t, err)
		require.Equal(t, plain, got)
	}
}

func TestVault_EnvelopeShape(t *testing.T) {
	v := testVault(t)

	env, err := v.Encrypt("secret")
	require.NoError(t, err)

	parts := strings.Split(env, ":")
	require.Len(t, parts, 3)
	require.Len(t, parts[0], ivSize*2)  // hex iv
	require.Len(t, parts[1], tagSize*2) // hex tag
	require.Len(t, parts[2], len("secret")*2)
}

func TestVault_FreshIVPerEncrypt(t *testing.T) {
	v := testVault(t)

	a, err := v.Encrypt("same input")
	require.NoError(t, err)
	b, err := v.Encrypt("same input")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestVault_Decrypt_MalformedEnvelope(t *testing.T) {
	v := testVault(t)

	for _, env := range []string{
		"",
		"nocolons",
		"one:two",
		"a:b:c:d",
		":deadbeef:cafe",                      // empty iv
		strings.Repeat("00", 16) + "::cafe",   // empty tag
		"zz" + strings.Repeat("00", 15) + ":" + strings.Repeat("00", 16) + ":", // bad hex iv
		strings.Repeat("00", 8) + ":" + strings.Repeat("00", 16) + ":",         // short iv
		strings.Repeat("00", 16) + ":" + strings.Repeat("00", 8) + ":",         // short tag
	} {
		_, err := v.Decrypt(env)
		require.ErrorIs(t, err, ErrInvalidFormat, "envelope %q", env)
	}
}

func TestVault_Decrypt_Tampered(t *testing.T) {
	v := testVault(t)

	env, err := v.Encrypt("refresh-token-value")
	require.NoError(t, err)

	parts := strings.Split(env, ":")

	// flip one ciphertext nibble
	ct := []byte(parts[2])
	if ct[0] == '0' {
		ct[0] = '1'
	} else {
		ct[0] = '0'
	}
	_, err = v.Decrypt(parts[0] + ":" + parts[1] + ":" + string(ct))
	require.ErrorIs(t, err, ErrIntegrity)

	// swap the tag for a wrong but well-formed one
	_, err = v.Decrypt(parts[0] + ":" + strings.Repeat("00", tagSize) + ":" + parts[2])
	require.ErrorIs(t, err, ErrIntegrity)
}

func TestVault_Decrypt_WrongKey(t *testing.T) {
	v := testVault(t)
	other, err := NewVault(make([]byte, 32))
	require.NoError(t, err)

	env, err := v.Encrypt("secret")
	require.NoError(t, err)

	_, err = other.Decrypt(env)
	require.ErrorIs(t, err, ErrIntegrity)
}
