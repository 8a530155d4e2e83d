// Package rtc derives conferencing identities and issues signed channel tokens.
package rtc

import (
	"math/rand"
	"strconv"
)

// Role distinguishes host and participant identities within a channel.
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

const (
	// uidModulus keeps derived values just under the platform's signed 32-bit
	// ceiling, leaving room for the role offsets.
	uidModulus = 2_147_480_000
	// maxUID is the largest identity the platform accepts.
	maxUID = 2_147_483_647

	hostOffset        = 1_000
	participantOffset = 2_000
)

// DeriveUID maps a stable user identifier to a bounded numeric conferencing
// identity. The mapping is deterministic per (identifier, role); host and
// participant identities derived from the same identifier never collide.
// The hash fallback is non-cryptographic and collisions across different
// identifiers are possible — acceptable for a transient per-session id.
func DeriveUID(identifier string, role Role) int32 {
	if identifier == "" {
		return randomUID(role)
	}

	var base uint64
	hexRun := trailingHexRun(identifier)
	if len(hexRun) >= 8 {
		v, err := strconv.ParseUint(hexRun[len(hexRun)-8:], 16, 64)
		if err != nil {
			return randomUID(role)
		}
		base = v
	} else {
		base = djb2(identifier)
	}

	uid := int64(base%uidModulus) + roleOffset(role)
	if uid > maxUID {
		uid = maxUID
	}
	return int32(uid)
}

// trailingHexRun returns the run of hexadecimal characters at the end of s.
func trailingHexRun(s string) string {
	i := len(s)
	for i > 0 && isHex(s[i-1]) {
		i--
	}
	return s[i:]
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// djb2 is the multiply-by-33-and-add rolling hash.
func djb2(s string) uint64 {
	var h uint64 = 5381
	for i := 0; i < len(s); i++ {
		h = h*33 + uint64(s[i])
	}
	return h
}

func roleOffset(role Role) int64 {
	if role == RoleHost {
		return hostOffset
	}
	return participantOffset
}

// randomUID returns a uniformly random in-range identity. Joining must never
// fail on derivation, so this is the last-resort path.
func randomUID(role Role) int32 {
	uid := int64(rand.Intn(uidModulus)) + roleOffset(role)
	if uid > maxUID {
		uid = maxUID
	}
	return int32(uid)
}
