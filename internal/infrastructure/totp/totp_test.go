package totp_test

import (
	"encoding/base32"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	totpgen "github.com/tdex-network/tdex-broker/internal/infrastructure/totp"
)

// RFC 6238 appendix B, SHA1 seed truncated to 6 digits.
var rfcSecret = base32.StdEncoding.EncodeToString(
	[]byte("12345678901234567890"),
)

func TestComputeCode(t *testing.T) {
	tests := []struct {
		unix int64
		code string
	}{
		{59, "287082"},
		{1111111109, "081804"},
		{1111111111, "050471"},
		{1234567890, "005924"},
		{2000000000, "279037"},
	}

	for _, tt := range tests {
		gen := totpgen.NewCodeGeneratorAt(func() time.Time {
			return time.Unix(tt.unix, 0)
		})
		code, err := gen.ComputeCode(rfcSecret)
		require.NoError(t, err)
		require.Equal(t, tt.code, code)
	}
}

func TestComputeCodeValidates(t *testing.T) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "broker",
		AccountName: "alice",
	})
	require.NoError(t, err)

	code, err := totpgen.NewCodeGenerator().ComputeCode(key.Secret())
	require.NoError(t, err)
	require.True(t, totp.Validate(code, key.Secret()))
}

func TestComputeCodeInvalidSecret(t *testing.T) {
	gen := totpgen.NewCodeGenerator()

	_, err := gen.ComputeCode("")
	require.Error(t, err)

	_, err = gen.ComputeCode("not base32!")
	require.Error(t, err)
}
