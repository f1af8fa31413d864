package cryptutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestManagerWrapUnwrapDEK(t *testing.T) {
	m, err := NewManager("correct horse battery staple")
	require.NoError(t, err)

	dek, err := GenerateDEK()
	require.NoError(t, err)

	wrapped, err := m.WrapDEK(dek)
	require.NoError(t, err)
	require.NotEqual(t, dek, wrapped)

	unwrapped, err := m.UnwrapDEK(wrapped)
	require.NoError(t, err)
	require.Equal(t, dek, unwrapped)
}

func TestNewManagerRejectsEmptySecret(t *testing.T) {
	_, err := NewManager("")
	require.Error(t, err)
}

func TestEncryptDecryptContentRoundtrip(t *testing.T) {
	dek, err := GenerateDEK()
	require.NoError(t, err)

	enc, err := EncryptContent(dek, "the rain in spain")
	require.NoError(t, err)
	require.NotEmpty(t, enc.CiphertextB64)
	require.NotEmpty(t, enc.NonceB64)

	plain, err := DecryptContent(dek, enc)
	require.NoError(t, err)
	require.Equal(t, "the rain in spain", plain)
}

func TestDecryptContentWrongKeyFails(t *testing.T) {
	dek1, err := GenerateDEK()
	require.NoError(t, err)
	dek2, err := GenerateDEK()
	require.NoError(t, err)

	enc, err := EncryptContent(dek1, "secret")
	require.NoError(t, err)

	_, err = DecryptContent(dek2, enc)
	require.Error(t, err)
}

func TestMasterKeyDerivationDeterministic(t *testing.T) {
	m1, err := NewManager("same-secret")
	require.NoError(t, err)
	m2, err := NewManager("same-secret")
	require.NoError(t, err)
	require.Equal(t, m1.masterKey, m2.masterKey)
}
