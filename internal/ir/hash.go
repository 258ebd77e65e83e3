package ir

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/dchest/siphash"
)

// Domain prefixes for fingerprints. The version suffix allows a future
// change of algorithm without colliding with stored keys.
const (
	DomainQuery      = "strata/query/v1"
	DomainExpression = "strata/expression/v1"
)

// Fixed SipHash keys. Fingerprints key caches, not security decisions.
const (
	sipK0 = 0x7374726174615f6b
	sipK1 = 0x65795f7631000000
)

// Fingerprint returns a 128-bit hex fingerprint of the canonical JSON form
// of v, separated by domain.
//
// Format: SipHash128(domain + 0x00 + canonical(v))
func Fingerprint(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	data := make([]byte, 0, len(domain)+1+len(canonical))
	data = append(data, domain...)
	data = append(data, 0x00)
	data = append(data, canonical...)

	lo, hi := siphash.Hash128(sipK0, sipK1, data)
	var out [16]byte
	binary.BigEndian.PutUint64(out[:8], hi)
	binary.BigEndian.PutUint64(out[8:], lo)
	return hex.EncodeToString(out[:]), nil
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFingerprint(domain string, v any) string {
	fp, err := Fingerprint(domain, v)
	if err != nil {
		panic(err)
	}
	return fp
}
