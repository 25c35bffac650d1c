package domain

import "time"

// GameRecord is an archived session line as exported on finish or on request.
type GameRecord struct {
	ID          int64
	GameUUID    string
	SessionUUID string
	HumanSide   Color
	Result      string
	Termination string
	MovesUCI    []string
	MovesSAN    []string
	PGN         string
	Suggestions int
	Fallbacks   int
	StartedAt   time.Time
	EndedAt     time.Time
	Duration    time.Duration
}
