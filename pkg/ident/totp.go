package ident

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"net/url"
	"time"
)

// RFC 6238 parameters fixed by the admin MFA contract: SHA-1, 6 digits, 30 s
// period, verification accepts the current step and one step either side.
const (
	totpDigits     = 6
	totpPeriod     = 30 * time.Second
	totpSkewSteps  = 1
	totpSecretSize = 20
)

// TOTPIssuer is embedded in provisioning URIs.
const TOTPIssuer = "Girok Admin"

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewTOTPSecret returns a fresh 20-byte secret, Base32-encoded without
// padding, suitable for authenticator apps.
func NewTOTPSecret() (string, error) {
	raw := make([]byte, totpSecretSize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("totp secret entropy: %w", err)
	}
	return b32.EncodeToString(raw), nil
}

// GenerateTOTP computes the 6-digit code for the step containing at.
func GenerateTOTP(secret string, at time.Time) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	step := uint64(at.Unix()) / uint64(totpPeriod.Seconds())
	return hotp(key, step), nil
}

// VerifyTOTP checks code against the step containing at and one step on each
// side. Comparison is constant time.
func VerifyTOTP(secret, code string, at time.Time) (bool, error) {
	if len(code) != totpDigits {
		return false, nil
	}
	key, err := decodeSecret(secret)
	if err != nil {
		return false, err
	}
	step := int64(at.Unix()) / int64(totpPeriod.Seconds())
	for offset := int64(-totpSkewSteps); offset <= totpSkewSteps; offset++ {
		candidate := hotp(key, uint64(step+offset))
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(code)) == 1 {
			return true, nil
		}
	}
	return false, nil
}

// TOTPProvisioningURI builds the otpauth:// URI encoded into the setup QR.
func TOTPProvisioningURI(secret, email string) string {
	label := url.PathEscape(TOTPIssuer + ":" + email)
	q := url.Values{}
	q.Set("secret", secret)
	q.Set("algorithm", "SHA1")
	q.Set("digits", fmt.Sprintf("%d", totpDigits))
	q.Set("period", fmt.Sprintf("%d", int(totpPeriod.Seconds())))
	q.Set("issuer", TOTPIssuer)
	return "otpauth://totp/" + label + "?" + q.Encode()
}

func decodeSecret(secret string) ([]byte, error) {
	key, err := b32.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("decode totp secret: %w", err)
	}
	return key, nil
}

func hotp(key []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// Dynamic truncation per RFC 4226 §5.3.
	offset := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%06d", value%1000000)
}
