// Package chat is the realtime room layer: 1:1 direct chats and per-course
// forums over websocket connections, with persistence before broadcast.
package chat

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// DirectRoomID derives the room id shared by a participant pair. The two ids
// are sorted lexicographically before hashing so both sides compute the same
// room no matter who initiates. Truncating the digest to 16 hex characters
// keeps the id short; collisions across concurrently open rooms are not a
// realistic concern at that width.
func DirectRoomID(a, b uuid.UUID) string {
	first, second := a.String(), b.String()
	if second < first {
		first, second = second, first
	}
	sum := sha256.Sum256([]byte(first + ":" + second))
	return hex.EncodeToString(sum[:])[:16]
}

// ForumRoomID derives the room id of a course's forum.
func ForumRoomID(courseID uuid.UUID) string {
	return "forum_" + courseID.String()
}
