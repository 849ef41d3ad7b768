package credential

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

// Credential is a signed token valid until IssuedForEpoch (Unix seconds).
type Credential struct {
	Token          string
	IssuedForEpoch uint64
}

// ExpiresAt returns the expiry as a time.Time.
func (c Credential) ExpiresAt() time.Time {
	return time.Unix(int64(c.IssuedForEpoch), 0) //nolint:gosec // epoch seconds fit in int64
}

// Remaining returns the lifetime left at now. It is negative once expired.
func (c Credential) Remaining(now time.Time) time.Duration {
	return c.ExpiresAt().Sub(now)
}

// IsZero reports whether no credential has been issued.
func (c Credential) IsZero() bool {
	return c.Token == "" && c.IssuedForEpoch == 0
}

// TokenBuilder supplies the protocol-specific parts of a SAS token.
type TokenBuilder interface {
	SASSignature(expiry uint64) (string, error)
	SASPassword(expiry uint64, signature string) (string, error)
}

// Signer computes a keyed hash over payload.
type Signer interface {
	Sign(key, payload []byte) ([]byte, error)
}

// HMACSigner signs with HMAC-SHA256.
type HMACSigner struct{}

// Sign implements Signer.
func (HMACSigner) Sign(key, payload []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)
	return mac.Sum(nil), nil
}

// Issuer produces Credentials from a pre-shared key.
type Issuer struct {
	builder    TokenBuilder
	signer     Signer
	encodedKey string
	now        func() time.Time
}

// NewIssuer creates an Issuer. The key is decoded on every Issue call so
// that a malformed key surfaces as ErrInvalidKey at issuance.
func NewIssuer(builder TokenBuilder, signer Signer, encodedKey string) *Issuer {
	if signer == nil {
		signer = HMACSigner{}
	}
	return &Issuer{
		builder:    builder,
		signer:     signer,
		encodedKey: encodedKey,
		now:        time.Now,
	}
}

// SetClock replaces the time source. Intended for tests.
func (i *Issuer) SetClock(now func() time.Time) {
	i.now = now
}

// Issue computes a credential that expires ttlSeconds from now.
//
// Steps:
//  1. expiry = now (Unix seconds) + ttlSeconds
//  2. obtain the signature payload bound to expiry
//  3. base64-decode the shared access key
//  4. sign the payload and base64-encode the result
//  5. assemble the password from expiry and signature
//
// Returns:
//   - Credential: The new credential
//   - error: ErrInvalidTTL, ErrInvalidKey or ErrSigningFailed; none are retryable
func (i *Issuer) Issue(ttlSeconds uint64) (Credential, error) {
	if ttlSeconds == 0 {
		return Credential{}, ErrInvalidTTL
	}

	expiry := uint64(i.now().Unix()) + ttlSeconds //nolint:gosec // wall clock is after 1970

	payload, err := i.builder.SASSignature(expiry)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: signature payload: %w", ErrSigningFailed, err)
	}

	key, err := base64.StdEncoding.DecodeString(i.encodedKey)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	sum, err := i.signer.Sign(key, []byte(payload))
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %w", ErrSigningFailed, err)
	}

	token, err := i.builder.SASPassword(expiry, base64.StdEncoding.EncodeToString(sum))
	if err != nil {
		return Credential{}, fmt.Errorf("%w: password: %w", ErrSigningFailed, err)
	}

	return Credential{Token: token, IssuedForEpoch: expiry}, nil
}
