package handler

import (
	"time"
	"unicode/utf16"
)

// uidEpoch is the reference point for synthesized uid numbers. Changing it
// renumbers every account of an existing deployment.
var uidEpoch = time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC)

const fingerprintSeed int32 = 0x3fff

// fingerprint folds a display name into a short, lossy value: each UTF-16 code
// unit is squared and xored into the accumulator with 32 bit wraparound.
func fingerprint(name string) int32 {
	acc := fingerprintSeed
	for _, c := range utf16.Encode([]rune(name)) {
		v := int32(c)
		acc ^= v * v
	}
	return acc
}

// secondsSinceEpoch floors towards negative infinity at millisecond precision.
func secondsSinceEpoch(created time.Time) int64 {
	ms := created.UnixMilli() - uidEpoch.UnixMilli()
	secs := ms / 1000
	if ms%1000 != 0 && ms < 0 {
		secs--
	}
	return secs
}

// UIDNumber derives a repeatable numeric user id from the creation time and the
// display name of an account. Distinct accounts may collide.
func UIDNumber(created time.Time, displayName string) int32 {
	return int32(secondsSinceEpoch(created)) ^ fingerprint(displayName)
}
