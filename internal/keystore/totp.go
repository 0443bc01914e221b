package keystore

import (
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// ErrInvalidCode is returned for a wrong or expired one-time code.
var ErrInvalidCode = errors.New("invalid one-time code")

// TOTPAuthenticator verifies time-based one-time codes. It stands in for a
// biometric prompt on devices without one.
type TOTPAuthenticator struct {
	secret string
	opts   totp.ValidateOpts
	now    func() time.Time
}

// NewTOTPAuthenticator creates an authenticator for secret.
func NewTOTPAuthenticator(secret string, period, skew uint) (*TOTPAuthenticator, error) {
	if secret == "" {
		return nil, fmt.Errorf("totp: secret cannot be empty")
	}
	if period == 0 {
		period = 30
	}

	a := &TOTPAuthenticator{
		secret: secret,
		opts: totp.ValidateOpts{
			Period:    period,
			Skew:      skew,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		},
		now: time.Now,
	}

	// Try to generate a code to validate the secret
	if _, err := a.GenerateCode(a.now()); err != nil {
		return nil, fmt.Errorf("totp: invalid secret format: %w", err)
	}

	return a, nil
}

// SetClock replaces time.Now. Used by tests.
func (a *TOTPAuthenticator) SetClock(now func() time.Time) {
	a.now = now
}

// Verify checks code against the current time window.
func (a *TOTPAuthenticator) Verify(code string) error {
	if code == "" {
		return ErrInvalidCode
	}

	ok, err := totp.ValidateCustom(code, a.secret, a.now().UTC(), a.opts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCode, err)
	}
	if !ok {
		return ErrInvalidCode
	}
	return nil
}

// GenerateCode generates the code for t.
func (a *TOTPAuthenticator) GenerateCode(t time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(a.secret, t.UTC(), a.opts)
	if err != nil {
		return "", fmt.Errorf("totp: failed to generate code: %w", err)
	}
	return code, nil
}

// EnrollTOTP creates a new secret for issuer and account. The returned key
// carries the otpauth:// URL for authenticator apps.
func EnrollTOTP(issuer, account string, period uint) (*otp.Key, error) {
	if period == 0 {
		period = 30
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("totp: enroll: %w", err)
	}
	return key, nil
}
