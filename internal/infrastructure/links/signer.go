package links

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrBadSignature marks links whose signature does not match.
	ErrBadSignature = errors.New("signature mismatch")
	// ErrLinkExpired marks links outside their validity window.
	ErrLinkExpired = errors.New("link expired")
)

// Signer produces and verifies the HMAC parameters carried by one-click
// links. The scheme matches the edge worker: hex-encoded SHA-256 HMAC over
// "{data}.{ts}", with ts in Unix milliseconds.
type Signer struct {
	secret []byte
}

// NewSigner builds a signer; an empty secret disables signing.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Enabled reports whether a signing secret is configured.
func (s *Signer) Enabled() bool {
	return len(s.secret) > 0
}

// Sign returns the hex HMAC for the data/timestamp pair.
func (s *Signer) Sign(data, ts string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(data + "." + ts))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature and freshness of a presented link. maxAge <= 0
// disables the freshness check.
func (s *Signer) Verify(data, ts, sig string, maxAge time.Duration, now time.Time) error {
	if !s.Enabled() {
		return errors.New("signing secret is not configured")
	}

	millis, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", ts, err)
	}
	issued := time.UnixMilli(millis)
	if issued.After(now.Add(5 * time.Minute)) {
		return fmt.Errorf("timestamp in the future: %w", ErrLinkExpired)
	}
	if maxAge > 0 && now.Sub(issued) > maxAge {
		return ErrLinkExpired
	}

	expected := s.Sign(data, ts)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrBadSignature
	}
	return nil
}
