package coachdto

import "time"

type Move struct {
	Ply       int    `json:"ply"`
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
	Side      string `json:"side"`
	SAN       string `json:"san"`
	UCI       string `json:"uci"`
}

type Suggestion struct {
	Move      Move   `json:"move"`
	Source    string `json:"source"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id"`
	LatencyMS int64  `json:"latency_ms"`
}

type Terminal struct {
	Over   bool   `json:"over"`
	Reason string `json:"reason,omitempty"`
	Result string `json:"result"`
}

type Session struct {
	ID                 string      `json:"id"`
	Phase              string      `json:"phase"`
	HumanSide          string      `json:"human_side,omitempty"`
	SideToMove         string      `json:"side_to_move"`
	Turn               string      `json:"turn,omitempty"`
	Cursor             int         `json:"cursor"`
	Moves              []Move      `json:"moves"`
	FEN                string      `json:"fen"`
	Movetext           string      `json:"movetext"`
	Discardable        int         `json:"discardable"`
	OpeningCode        string      `json:"opening_code,omitempty"`
	OpeningName        string      `json:"opening_name,omitempty"`
	SuggestionsEnabled bool        `json:"suggestions_enabled"`
	SuggestionPending  bool        `json:"suggestion_pending"`
	Suggestion         *Suggestion `json:"suggestion,omitempty"`
	Terminal           Terminal    `json:"terminal"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

type ArchivedGame struct {
	ID          int64     `json:"id"`
	GameID      string    `json:"game_id"`
	SessionID   string    `json:"session_id"`
	HumanSide   string    `json:"human_side"`
	Result      string    `json:"result"`
	Termination string    `json:"termination,omitempty"`
	MovesUCI    []string  `json:"moves_uci"`
	MovesSAN    []string  `json:"moves_san"`
	PGN         string    `json:"pgn"`
	Suggestions int       `json:"suggestions"`
	Fallbacks   int       `json:"fallbacks"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
}
