package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testKey = "0707070707070707070707070707070707070707070707070707070707070707"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		passphrase, salt, hexKey = "", "", ""
	})

	out := &bytes.Buffer{}
	app.SetOut(out)
	app.SetErr(out)
	app.SetArgs(args)
	err := app.Execute()
	return strings.TrimSpace(out.String()), err
}

func TestKeygen(t *testing.T) {
	key, err := run(t, "keygen")
	require.NoError(t, err)
	require.Len(t, key, 64)

	derived, err := run(t, "keygen", "-p", "hodlhodl", "-s", "00")
	require.NoError(t, err)
	again, err := run(t, "keygen", "-p", "hodlhodl", "-s", "00")
	require.NoError(t, err)
	require.Equal(t, derived, again)
	require.Contains(t, derived, "salt: 00")

	_, err = run(t, "keygen", "-p", "hodlhodl", "-s", "zz")
	require.Error(t, err)
}

func TestEncryptDecrypt(t *testing.T) {
	ciphertext, err := run(t, "encrypt", "--key", testKey, "cookie")
	require.NoError(t, err)
	require.NotContains(t, ciphertext, "cookie")

	plaintext, err := run(t, "decrypt", "--key", testKey, ciphertext)
	require.NoError(t, err)
	require.Equal(t, "cookie", plaintext)

	t.Setenv(vaultKeyEnv, testKey)
	plaintext, err = run(t, "decrypt", ciphertext)
	require.NoError(t, err)
	require.Equal(t, "cookie", plaintext)
}

func TestMissingKey(t *testing.T) {
	t.Setenv(vaultKeyEnv, "")
	_, err := run(t, "encrypt", "cookie")
	require.Error(t, err)
}
