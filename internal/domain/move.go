package domain

import (
	"fmt"
	"strings"
)

type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) Valid() bool { return c == White || c == Black }

// ParseColor accepts "white"/"black" and the one-letter forms.
func ParseColor(raw string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "white", "w":
		return White, nil
	case "black", "b":
		return Black, nil
	default:
		return "", fmt.Errorf("invalid color %q", raw)
	}
}

// Square is a coordinate label such as "e4".
type Square string

func ParseSquare(raw string) (Square, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return "", fmt.Errorf("invalid square %q", raw)
	}
	return Square(s), nil
}

// SquareAt builds a square from zero-based file and rank indices.
func SquareAt(file, rank int) (Square, bool) {
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return "", false
	}
	return Square([]byte{byte('a' + file), byte('1' + rank)}), true
}

func (s Square) Valid() bool {
	_, err := ParseSquare(string(s))
	return err == nil && string(s) == strings.ToLower(string(s))
}

// File returns the zero-based file index (a=0).
func (s Square) File() int { return int(s[0] - 'a') }

// Rank returns the zero-based rank index (1=0).
func (s Square) Rank() int { return int(s[1] - '1') }

type PieceKind string

const (
	NoPiece PieceKind = ""
	Queen   PieceKind = "q"
	Rook    PieceKind = "r"
	Bishop  PieceKind = "b"
	Knight  PieceKind = "n"
)

// DefaultPromotion is used whenever a pawn reaches the last rank without an explicit choice.
const DefaultPromotion = Queen

func ParsePieceKind(raw string) (PieceKind, error) {
	switch k := PieceKind(strings.ToLower(strings.TrimSpace(raw))); k {
	case NoPiece, Queen, Rook, Bishop, Knight:
		return k, nil
	default:
		return NoPiece, fmt.Errorf("invalid promotion piece %q", raw)
	}
}

// Move is produced only by the rules adapter after validation.
type Move struct {
	From      Square    `json:"from"`
	To        Square    `json:"to"`
	Promotion PieceKind `json:"promotion,omitempty"`
	Side      Color     `json:"side"`
	Notation  string    `json:"notation"`
}

// UCI returns the coordinate encoding, e.g. e2e4 or e7e8q.
func (m Move) UCI() string {
	return string(m.From) + string(m.To) + string(m.Promotion)
}

func (m Move) String() string {
	if m.Notation != "" {
		return m.Notation
	}
	return m.UCI()
}

type TerminalState struct {
	Checkmate            bool `json:"checkmate"`
	Stalemate            bool `json:"stalemate"`
	Repetition           bool `json:"repetition"`
	InsufficientMaterial bool `json:"insufficient_material"`
	FiftyMove            bool `json:"fifty_move"`
}

func (t TerminalState) Over() bool {
	return t.Checkmate || t.Stalemate || t.Repetition || t.InsufficientMaterial || t.FiftyMove
}

func (t TerminalState) Reason() string {
	switch {
	case t.Checkmate:
		return "checkmate"
	case t.Stalemate:
		return "stalemate"
	case t.Repetition:
		return "repetition"
	case t.InsufficientMaterial:
		return "insufficient_material"
	case t.FiftyMove:
		return "fifty_move"
	default:
		return ""
	}
}
