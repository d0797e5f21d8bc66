// Package idgen mints the UUIDv7 identifiers used by the asset store and
// the resource store. Both stores share this single implementation so that
// function ids and resource ids are minted identically, per the preferred
// "server-minted UUIDv7 everywhere" direction.
package idgen

import (
	"crypto/rand"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Pattern matches a well-formed UUIDv7 string: 48 bits epoch-ms, version
// nibble 7, RFC 4122 variant bits 10, and random fill elsewhere.
var Pattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// NewV7 mints a new UUIDv7 string.
//
// Layout: the high 48 bits hold the current Unix epoch in milliseconds; the
// next 4 bits are the version nibble 0111; the next 12 bits are random; the
// high 2 bits of the following octet are the RFC 4122 variant 10; the
// remaining 62 bits are random.
func NewV7() string {
	return FromTime(time.Now())
}

// FromTime mints a UUIDv7 string whose embedded timestamp is t, truncated
// to millisecond resolution. Exposed for deterministic tests.
func FromTime(t time.Time) string {
	var b [16]byte

	ms := uint64(t.UnixMilli())
	b[0] = byte(ms >> 40)
	b[1] = byte(ms >> 32)
	b[2] = byte(ms >> 24)
	b[3] = byte(ms >> 16)
	b[4] = byte(ms >> 8)
	b[5] = byte(ms)

	var rnd [10]byte
	if _, err := rand.Read(rnd[:]); err != nil {
		// crypto/rand failing means the platform has no entropy source;
		// panic rather than mint a non-random id silently.
		panic("idgen: crypto/rand unavailable: " + err.Error())
	}

	// byte 6: version nibble 0111 in the high 4 bits, 4 random bits low.
	b[6] = 0x70 | (rnd[0] & 0x0f)
	// byte 7: 8 more random bits, completing the 12-bit random field.
	b[7] = rnd[1]
	// byte 8: RFC 4122 variant 10 in the top 2 bits, 6 random bits low.
	b[8] = 0x80 | (rnd[2] & 0x3f)
	// bytes 9-15: 56 more random bits, completing the 62-bit random field.
	copy(b[9:16], rnd[3:10])

	return uuid.UUID(b).String()
}

// Valid reports whether s matches the UUIDv7 regex required by the testable
// property.
func Valid(s string) bool {
	return Pattern.MatchString(s)
}
