package authn

import (
	"github.com/pquerna/otp/totp"
)

// GenerateTOTPSecret enrolls a new TOTP secret for accountName. Enrollment
// UX (QR codes, confirmation flow) is out of scope per spec.md's
// Non-goals; this is the minimal call an admin-driven enrollment path uses.
func GenerateTOTPSecret(issuer, accountName string) (secret string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{Issuer: issuer, AccountName: accountName})
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}

// ValidateTOTP checks a 6-digit code against secret at the current time
// step, also accepting the adjacent step on either side (the library's
// default skew of one).
func ValidateTOTP(secret, code string) bool {
	return totp.Validate(code, secret)
}
