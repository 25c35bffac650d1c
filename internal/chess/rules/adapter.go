package rules

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/cheese-coach/internal/domain"
)

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrInvalidFEN  = errors.New("invalid fen")
)

// Position is an immutable snapshot. The adapter only ever derives new positions from it.
type Position struct {
	game *nchess.Game
}

func (p Position) Valid() bool { return p.game != nil }

// Adapter exposes the rules capabilities the core consumes.
type Adapter struct{}

func New() *Adapter { return &Adapter{} }

func (a *Adapter) Initial() Position {
	return Position{game: nchess.NewGame()}
}

func (a *Adapter) FromFEN(fen string) (Position, error) {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return a.Initial(), nil
	}
	if len(strings.Fields(fen)) != 6 {
		return Position{}, fmt.Errorf("%w: %q", ErrInvalidFEN, fen)
	}
	option, err := nchess.FEN(fen)
	if err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrInvalidFEN, err)
	}
	return Position{game: nchess.NewGame(option)}, nil
}

// LegalMoves lists the moves available to the side to move, restricted to from when it is set.
func (a *Adapter) LegalMoves(pos Position, from domain.Square) []domain.Move {
	if !pos.Valid() {
		return nil
	}
	cur := pos.game.Position()
	side := colorOf(cur.Turn())
	valid := pos.game.ValidMoves()
	out := make([]domain.Move, 0, len(valid))
	for i := range valid {
		text := strings.ToLower(valid[i].String())
		f, t, promo, ok := splitUCI(text)
		if !ok {
			continue
		}
		if from != "" && f != from {
			continue
		}
		mv := domain.Move{From: f, To: t, Promotion: promo, Side: side}
		if decoded, err := (nchess.UCINotation{}).Decode(cur, text); err == nil {
			mv.Notation = nchess.AlgebraicNotation{}.Encode(cur, decoded)
		}
		out = append(out, mv)
	}
	return out
}

// Lookup finds the legal move matching a coordinate string such as e7e8q.
func (a *Adapter) Lookup(pos Position, uci string) (domain.Move, error) {
	f, t, promo, ok := splitUCI(strings.ToLower(strings.TrimSpace(uci)))
	if !ok {
		return domain.Move{}, fmt.Errorf("%w: %q", ErrIllegalMove, uci)
	}
	for _, mv := range a.LegalMoves(pos, f) {
		if mv.To == t && mv.Promotion == promo {
			return mv, nil
		}
	}
	return domain.Move{}, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
}

// Resolve turns a (from, to) intent into a full move. A pawn reaching the last rank
// promotes to promo, or to the queen when promo is empty.
func (a *Adapter) Resolve(pos Position, from, to domain.Square, promo domain.PieceKind) (domain.Move, error) {
	var promoted bool
	for _, mv := range a.LegalMoves(pos, from) {
		if mv.To != to {
			continue
		}
		if mv.Promotion == domain.NoPiece {
			return mv, nil
		}
		promoted = true
	}
	if promoted {
		if promo == domain.NoPiece {
			promo = domain.DefaultPromotion
		}
		return a.Lookup(pos, string(from)+string(to)+string(promo))
	}
	return domain.Move{}, fmt.Errorf("%w: %s%s", ErrIllegalMove, from, to)
}

// Apply returns the position after mv. The input position is left untouched.
func (a *Adapter) Apply(pos Position, mv domain.Move) (Position, error) {
	if !pos.Valid() {
		return Position{}, fmt.Errorf("%w: no position", ErrIllegalMove)
	}
	if _, err := a.Lookup(pos, mv.UCI()); err != nil {
		return Position{}, err
	}
	next := pos.game.Clone()
	decoded, err := (nchess.UCINotation{}).Decode(next.Position(), mv.UCI())
	if err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	if err := next.Move(decoded, nil); err != nil {
		return Position{}, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	return Position{game: next}, nil
}

// Play is Lookup followed by Apply.
func (a *Adapter) Play(pos Position, uci string) (domain.Move, Position, error) {
	mv, err := a.Lookup(pos, uci)
	if err != nil {
		return domain.Move{}, Position{}, err
	}
	next, err := a.Apply(pos, mv)
	if err != nil {
		return domain.Move{}, Position{}, err
	}
	return mv, next, nil
}

func (a *Adapter) Turn(pos Position) domain.Color {
	if !pos.Valid() {
		return domain.White
	}
	return colorOf(pos.game.Position().Turn())
}

func (a *Adapter) Terminal(pos Position) domain.TerminalState {
	var ts domain.TerminalState
	if !pos.Valid() {
		return ts
	}
	g := pos.game
	switch g.Method() {
	case nchess.Checkmate:
		ts.Checkmate = true
	case nchess.Stalemate:
		ts.Stalemate = true
	case nchess.InsufficientMaterial:
		ts.InsufficientMaterial = true
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		ts.Repetition = true
	case nchess.FiftyMoveRule, nchess.SeventyFiveMoveRule:
		ts.FiftyMove = true
	}
	if !ts.Over() && len(g.ValidMoves()) == 0 {
		ts.Checkmate = true
	}
	if !ts.Repetition && repetitions(g) >= 3 {
		ts.Repetition = true
	}
	if !ts.FiftyMove && halfMoveClock(g.FEN()) >= 100 {
		ts.FiftyMove = true
	}
	return ts
}

// CompactState is the six-field FEN handed to the analysis process.
func (a *Adapter) CompactState(pos Position) string {
	if !pos.Valid() {
		return ""
	}
	return strings.Join(strings.Fields(pos.game.FEN()), " ")
}

// OwnPiece reports whether sq holds a piece of the side to move.
func (a *Adapter) OwnPiece(pos Position, sq domain.Square) bool {
	if !pos.Valid() || !sq.Valid() {
		return false
	}
	cur := pos.game.Position()
	piece := cur.Board().Piece(nchess.NewSquare(nchess.File(sq.File()), nchess.Rank(sq.Rank())))
	if piece == nchess.NoPiece {
		return false
	}
	return piece.Color() == cur.Turn()
}

func colorOf(c nchess.Color) domain.Color {
	if c == nchess.Black {
		return domain.Black
	}
	return domain.White
}

func splitUCI(text string) (domain.Square, domain.Square, domain.PieceKind, bool) {
	if len(text) != 4 && len(text) != 5 {
		return "", "", domain.NoPiece, false
	}
	from, err := domain.ParseSquare(text[0:2])
	if err != nil {
		return "", "", domain.NoPiece, false
	}
	to, err := domain.ParseSquare(text[2:4])
	if err != nil {
		return "", "", domain.NoPiece, false
	}
	promo := domain.NoPiece
	if len(text) == 5 {
		promo, err = domain.ParsePieceKind(text[4:])
		if err != nil || promo == domain.NoPiece {
			return "", "", domain.NoPiece, false
		}
	}
	return from, to, promo, true
}

func repetitions(g *nchess.Game) int {
	current := positionKey(g.FEN())
	count := 0
	for _, p := range g.Positions() {
		if p != nil && positionKey(p.String()) == current {
			count++
		}
	}
	return count
}

// positionKey drops the move counters from a FEN.
func positionKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}

func halfMoveClock(fen string) int {
	fields := strings.Fields(fen)
	if len(fields) < 5 {
		return 0
	}
	n, err := strconv.Atoi(fields[4])
	if err != nil {
		return 0
	}
	return n
}
