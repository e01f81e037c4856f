package totp

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/tdex-network/tdex-broker/internal/core/ports"
)

type codeGenerator struct {
	now func() time.Time
}

// NewCodeGenerator returns a generator of RFC 6238 codes: 6 digits, 30
// seconds period, SHA1, as issued by authenticator apps.
func NewCodeGenerator() ports.CodeGenerator {
	return codeGenerator{time.Now}
}

// NewCodeGeneratorAt returns a generator computing codes at the time
// returned by now.
func NewCodeGeneratorAt(now func() time.Time) ports.CodeGenerator {
	return codeGenerator{now}
}

func (g codeGenerator) ComputeCode(secret string) (string, error) {
	secret = strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	if secret == "" {
		return "", fmt.Errorf("missing secret")
	}

	code, err := totp.GenerateCodeCustom(secret, g.now(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("invalid secret: %w", err)
	}
	return code, nil
}
