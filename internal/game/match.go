package game

import (
	"time"

	"github.com/google/uuid"
)

// MatchParticipant is one player's line in a finished match.
type MatchParticipant struct {
	AccountID  int64 // 0 for guests
	Name       string
	Winner     bool
	Eliminated bool
}

// MatchResult is reported once per decided match.
type MatchResult struct {
	ID        uuid.UUID
	Map       string
	Winner    string
	StartedAt time.Time
	EndedAt   time.Time
	Players   []MatchParticipant
}

// MatchRecorder persists finished matches. Implementations must not block.
type MatchRecorder interface {
	RecordMatch(MatchResult)
}
