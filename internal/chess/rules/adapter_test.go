package rules

import (
	"errors"
	"strings"
	"testing"

	"github.com/park285/cheese-coach/internal/domain"
)

func play(t *testing.T, a *Adapter, pos Position, moves ...string) (Position, []domain.Move) {
	t.Helper()
	var played []domain.Move
	for _, uci := range moves {
		mv, next, err := a.Play(pos, uci)
		if err != nil {
			t.Fatalf("Play(%s): %v", uci, err)
		}
		played = append(played, mv)
		pos = next
	}
	return pos, played
}

func TestInitialLegalMoves(t *testing.T) {
	a := New()
	pos := a.Initial()
	if got := len(a.LegalMoves(pos, "")); got != 20 {
		t.Fatalf("legal moves at start = %d, want 20", got)
	}
	fromE2 := a.LegalMoves(pos, "e2")
	if len(fromE2) != 2 {
		t.Fatalf("moves from e2 = %d, want 2", len(fromE2))
	}
	for _, mv := range fromE2 {
		if mv.Side != domain.White || mv.From != "e2" || mv.Notation == "" {
			t.Fatalf("unexpected move %+v", mv)
		}
	}
	if a.Turn(pos) != domain.White {
		t.Fatalf("white moves first")
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	a := New()
	pos := a.Initial()
	before := a.CompactState(pos)
	mv, err := a.Resolve(pos, "e2", "e4", domain.NoPiece)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	next, err := a.Apply(pos, mv)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if a.CompactState(pos) != before {
		t.Fatalf("input position mutated: %s", a.CompactState(pos))
	}
	if a.CompactState(next) == before {
		t.Fatalf("next position unchanged")
	}
	if a.Turn(next) != domain.Black {
		t.Fatalf("turn after e4 = %s", a.Turn(next))
	}
	if mv.Notation != "e4" {
		t.Fatalf("notation = %q", mv.Notation)
	}
}

func TestApplyIllegal(t *testing.T) {
	a := New()
	pos := a.Initial()
	_, err := a.Apply(pos, domain.Move{From: "e2", To: "e5", Side: domain.White})
	if !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	if _, err := a.Resolve(pos, "e7", "e5", domain.NoPiece); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("black move on white turn should be illegal, got %v", err)
	}
}

func TestCompactStateHasSixFields(t *testing.T) {
	a := New()
	pos, _ := play(t, a, a.Initial(), "e2e4", "c7c5")
	fields := strings.Fields(a.CompactState(pos))
	if len(fields) != 6 {
		t.Fatalf("compact state %q has %d fields", a.CompactState(pos), len(fields))
	}
	if fields[1] != "w" {
		t.Fatalf("side field = %q", fields[1])
	}
}

func TestPromotionDefaultsToQueen(t *testing.T) {
	a := New()
	pos, err := a.FromFEN("8/P6k/8/8/8/8/8/K7 w - - 0 1")
	if err != nil {
		t.Fatalf("FromFEN: %v", err)
	}
	mv, err := a.Resolve(pos, "a7", "a8", domain.NoPiece)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if mv.Promotion != domain.Queen || mv.UCI() != "a7a8q" {
		t.Fatalf("promotion = %+v", mv)
	}
	knight, err := a.Resolve(pos, "a7", "a8", domain.Knight)
	if err != nil || knight.UCI() != "a7a8n" {
		t.Fatalf("explicit knight promotion = %+v, %v", knight, err)
	}
}

func TestTerminalCheckmate(t *testing.T) {
	a := New()
	pos, _ := play(t, a, a.Initial(), "f2f3", "e7e5", "g2g4", "d8h4")
	ts := a.Terminal(pos)
	if !ts.Checkmate || !ts.Over() {
		t.Fatalf("expected checkmate, got %+v", ts)
	}
	if n := len(a.LegalMoves(pos, "")); n != 0 {
		t.Fatalf("legal moves after mate = %d", n)
	}
	if got := ResultToken(ts, a.Turn(pos)); got != "0-1" {
		t.Fatalf("result = %q", got)
	}
}

func TestTerminalStalemate(t *testing.T) {
	a := New()
	pos, err := a.FromFEN("7k/5Q2/6K1/8/8/8/8/8 b - - 0 1")
	if err != nil {
		t.Fatalf("FromFEN: %v", err)
	}
	ts := a.Terminal(pos)
	if !ts.Stalemate || ts.Checkmate {
		t.Fatalf("expected stalemate, got %+v", ts)
	}
}

func TestTerminalRepetition(t *testing.T) {
	a := New()
	pos, _ := play(t, a, a.Initial(),
		"g1f3", "g8f6", "f3g1", "f6g8",
		"g1f3", "g8f6", "f3g1", "f6g8",
	)
	if ts := a.Terminal(pos); !ts.Repetition {
		t.Fatalf("expected repetition, got %+v", ts)
	}
}

func TestOwnPiece(t *testing.T) {
	a := New()
	pos := a.Initial()
	if !a.OwnPiece(pos, "e2") {
		t.Fatalf("e2 holds a white pawn")
	}
	if a.OwnPiece(pos, "e7") || a.OwnPiece(pos, "e4") {
		t.Fatalf("black pawn and empty square are not own pieces")
	}
}

func TestMovetext(t *testing.T) {
	a := New()
	_, moves := play(t, a, a.Initial(), "e2e4", "e7e5", "g1f3")
	if got := a.Movetext(a.Initial(), moves); got != "1. e4 e5 2. Nf3" {
		t.Fatalf("movetext = %q", got)
	}
}

func TestMovetextFromBlack(t *testing.T) {
	a := New()
	start, err := a.FromFEN("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1")
	if err != nil {
		t.Fatalf("FromFEN: %v", err)
	}
	_, moves := play(t, a, start, "e7e5", "g1f3")
	if got := a.Movetext(start, moves); got != "1... e5 2. Nf3" {
		t.Fatalf("movetext = %q", got)
	}
	pgn := a.PGN(start, moves, PGNHeader{White: "me"})
	if !strings.Contains(pgn, "[SetUp \"1\"]") || !strings.HasSuffix(pgn, "1... e5 2. Nf3 *") {
		t.Fatalf("pgn = %q", pgn)
	}
}

func TestOpening(t *testing.T) {
	a := New()
	pos, _ := play(t, a, a.Initial(), "e2e4", "c7c5")
	code, title := a.Opening(pos)
	if code == "" || title == "" {
		t.Fatalf("expected an ECO match for 1. e4 c5, got %q %q", code, title)
	}
}
