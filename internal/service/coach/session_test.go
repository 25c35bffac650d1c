package coach

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-coach/internal/chess/rules"
	"github.com/park285/cheese-coach/internal/domain"
	"github.com/park285/cheese-coach/internal/suggest"
)

// fakeSuggester answers with the first legal move. A non-nil gate holds every
// answer until it is closed.
type fakeSuggester struct {
	rules  *rules.Adapter
	source suggest.Source

	mu    sync.Mutex
	calls int
	gate  chan struct{}
}

func newFakeSuggester(r *rules.Adapter, src suggest.Source) *fakeSuggester {
	return &fakeSuggester{rules: r, source: src}
}

func (f *fakeSuggester) Suggest(ctx context.Context, pos rules.Position) suggest.Result {
	f.mu.Lock()
	f.calls++
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return suggest.Result{Source: suggest.SourceNone, Reason: suggest.ReasonCanceled}
		}
	}
	moves := f.rules.LegalMoves(pos, "")
	if len(moves) == 0 {
		return suggest.Result{Source: suggest.SourceNone, Reason: suggest.ReasonNoMoves}
	}
	mv := moves[0]
	return suggest.Result{Move: &mv, Source: f.source, RequestID: "req"}
}

func (f *fakeSuggester) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestSession(t *testing.T, opts SessionOptions) *Session {
	t.Helper()
	s := NewSession(rules.New(), opts)
	t.Cleanup(s.Close)
	return s
}

func mustPlay(t *testing.T, s *Session, moves ...string) {
	t.Helper()
	for _, raw := range moves {
		raw = strings.TrimSpace(raw)
		from, _ := domain.ParseSquare(raw[:2])
		to, _ := domain.ParseSquare(raw[2:4])
		if _, err := s.Play(context.Background(), from, to, domain.NoPiece); err != nil {
			t.Fatalf("play %s: %v", raw, err)
		}
	}
}

func TestSuggestionOnlyOnHumanTurn(t *testing.T) {
	r := rules.New()
	sug := newFakeSuggester(r, suggest.SourceEngine)
	s := newTestSession(t, SessionOptions{Suggester: sug, SuggestionsEnabled: true})

	if err := s.SelectSide(context.Background(), domain.Black); err != nil {
		t.Fatalf("select side: %v", err)
	}
	s.Wait()
	if sug.Calls() != 0 {
		t.Fatalf("expected no suggestion on opponent turn, got %d calls", sug.Calls())
	}

	mustPlay(t, s, "e2e4")
	s.Wait()
	if sug.Calls() != 1 {
		t.Fatalf("expected exactly one suggestion request, got %d", sug.Calls())
	}
	got, pending := s.Suggestion()
	if got == nil || pending {
		t.Fatalf("expected resolved suggestion, got %+v pending=%v", got, pending)
	}
	if got.Move.Side != domain.Black {
		t.Fatalf("suggestion must be for the human side, got %s", got.Move.Side)
	}
}

func TestStaleSuggestionDropped(t *testing.T) {
	r := rules.New()
	sug := newFakeSuggester(r, suggest.SourceEngine)
	sug.gate = make(chan struct{})
	s := newTestSession(t, SessionOptions{Suggester: sug, SuggestionsEnabled: true})

	if err := s.SelectSide(context.Background(), domain.White); err != nil {
		t.Fatalf("select side: %v", err)
	}
	if _, pending := s.Suggestion(); !pending {
		t.Fatalf("expected pending suggestion after entering human turn")
	}
	mustPlay(t, s, "e2e4")
	close(sug.gate)
	s.Wait()

	if got, pending := s.Suggestion(); got != nil || pending {
		t.Fatalf("stale suggestion must not be shown, got %+v pending=%v", got, pending)
	}
}

func TestSuggestionsToggle(t *testing.T) {
	r := rules.New()
	sug := newFakeSuggester(r, suggest.SourceFallback)
	s := newTestSession(t, SessionOptions{Suggester: sug})

	if err := s.SelectSide(context.Background(), domain.White); err != nil {
		t.Fatalf("select side: %v", err)
	}
	s.Wait()
	if sug.Calls() != 0 {
		t.Fatalf("disabled suggestions must not query")
	}

	s.SetSuggestionsEnabled(true)
	s.Wait()
	got, _ := s.Suggestion()
	if got == nil || got.Source != suggest.SourceFallback {
		t.Fatalf("expected fallback suggestion, got %+v", got)
	}

	s.SetSuggestionsEnabled(false)
	if got, _ := s.Suggestion(); got != nil {
		t.Fatalf("disabling must clear the suggestion")
	}
}

func TestSideSelectionErrors(t *testing.T) {
	s := newTestSession(t, SessionOptions{})
	from, _ := domain.ParseSquare("e2")
	to, _ := domain.ParseSquare("e4")

	if err := s.AttemptMove(from, to); !errors.Is(err, ErrSideNotSelected) {
		t.Fatalf("expected ErrSideNotSelected, got %v", err)
	}
	if err := s.SelectSide(context.Background(), domain.Color("red")); !errors.Is(err, ErrInvalidSide) {
		t.Fatalf("expected ErrInvalidSide, got %v", err)
	}
	if err := s.SelectSide(context.Background(), domain.White); err != nil {
		t.Fatalf("select side: %v", err)
	}
	if err := s.SelectSide(context.Background(), domain.Black); !errors.Is(err, ErrSideAlreadySelected) {
		t.Fatalf("expected ErrSideAlreadySelected, got %v", err)
	}
	if s.Turn() != TurnHuman {
		t.Fatalf("white human should start on human turn")
	}
}

func TestIllegalMoveLeavesStateUnchanged(t *testing.T) {
	s := newTestSession(t, SessionOptions{})
	if err := s.SelectSide(context.Background(), domain.White); err != nil {
		t.Fatalf("select side: %v", err)
	}
	from, _ := domain.ParseSquare("e2")
	to, _ := domain.ParseSquare("e5")
	if err := s.AttemptMove(from, to); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	if s.Cursor() != -1 || len(s.Moves()) != 0 {
		t.Fatalf("illegal move must not change the timeline")
	}
}

func TestNavigationAndTruncation(t *testing.T) {
	s := newTestSession(t, SessionOptions{})
	if err := s.SelectSide(context.Background(), domain.White); err != nil {
		t.Fatalf("select side: %v", err)
	}
	mustPlay(t, s, "e2e4", "e7e5", "g1f3")

	if err := s.JumpTo(0); err != nil {
		t.Fatalf("jump: %v", err)
	}
	if s.Turn() != TurnOther {
		t.Fatalf("after jumping to the first move black is to move")
	}
	if err := s.JumpTo(9); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if s.Cursor() != 0 {
		t.Fatalf("failed jump must keep cursor, got %d", s.Cursor())
	}
	if err := s.StepForward(); err != nil || s.Cursor() != 1 {
		t.Fatalf("step forward: %v cursor=%d", err, s.Cursor())
	}
	if err := s.StepBack(); err != nil || s.Cursor() != 0 {
		t.Fatalf("step back: %v cursor=%d", err, s.Cursor())
	}

	from, _ := domain.ParseSquare("d7")
	to, _ := domain.ParseSquare("d5")
	out, err := s.Play(context.Background(), from, to, domain.NoPiece)
	if err != nil {
		t.Fatalf("branch move: %v", err)
	}
	if out.Discarded != 2 {
		t.Fatalf("expected 2 discarded moves, got %d", out.Discarded)
	}
	if got := s.Movetext(); got != "1. e4 d5" {
		t.Fatalf("unexpected movetext %q", got)
	}
}

func TestOpponentReplies(t *testing.T) {
	r := rules.New()
	opp := newFakeSuggester(r, suggest.SourceEngine)
	sug := newFakeSuggester(r, suggest.SourceEngine)
	s := newTestSession(t, SessionOptions{Suggester: sug, Opponent: opp, SuggestionsEnabled: true})

	if err := s.SelectSide(context.Background(), domain.Black); err != nil {
		t.Fatalf("select side: %v", err)
	}
	if len(s.Moves()) != 1 || opp.Calls() != 1 {
		t.Fatalf("opponent should open as white, moves=%d calls=%d", len(s.Moves()), opp.Calls())
	}
	if s.Turn() != TurnHuman {
		t.Fatalf("human should be to move after the reply")
	}

	legal := r.LegalMoves(s.Current(), "")
	out, err := s.Play(context.Background(), legal[0].From, legal[0].To, domain.NoPiece)
	if err != nil {
		t.Fatalf("play: %v", err)
	}
	if out.Reply == nil || out.Reply.Side != domain.White {
		t.Fatalf("expected white reply, got %+v", out.Reply)
	}
	s.Wait()
	if len(s.Moves()) != 3 {
		t.Fatalf("expected 3 plies, got %d", len(s.Moves()))
	}
}

func TestGameOverRejectsMoves(t *testing.T) {
	s := newTestSession(t, SessionOptions{})
	if err := s.SelectSide(context.Background(), domain.White); err != nil {
		t.Fatalf("select side: %v", err)
	}
	mustPlay(t, s, "f2f3", "e7e5", "g2g4", "d8h4")
	if !s.Terminal().Checkmate {
		t.Fatalf("expected checkmate")
	}
	from, _ := domain.ParseSquare("a2")
	to, _ := domain.ParseSquare("a3")
	if err := s.AttemptMove(from, to); !errors.Is(err, ErrGameOver) {
		t.Fatalf("expected ErrGameOver, got %v", err)
	}
	if !strings.Contains(s.PGN(), "0-1") {
		t.Fatalf("pgn should carry the result:\n%s", s.PGN())
	}
}

func TestResetReturnsToSideSelection(t *testing.T) {
	r := rules.New()
	sug := newFakeSuggester(r, suggest.SourceEngine)
	s := newTestSession(t, SessionOptions{Suggester: sug, SuggestionsEnabled: true})
	if err := s.SelectSide(context.Background(), domain.White); err != nil {
		t.Fatalf("select side: %v", err)
	}
	mustPlay(t, s, "e2e4", "e7e5")
	s.Wait()

	s.Reset()
	if s.Phase() != PhaseAwaitingSide || len(s.Moves()) != 0 || s.HumanSide() != "" {
		t.Fatalf("reset must clear the game, phase=%s moves=%d", s.Phase(), len(s.Moves()))
	}
	if got, pending := s.Suggestion(); got != nil || pending {
		t.Fatalf("reset must clear the suggestion")
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	r := rules.New()
	sug := newFakeSuggester(r, suggest.SourceEngine)
	s := newTestSession(t, SessionOptions{Suggester: sug, SuggestionsEnabled: true})
	updates, cancel := s.Subscribe()
	defer cancel()

	if err := s.SelectSide(context.Background(), domain.White); err != nil {
		t.Fatalf("select side: %v", err)
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-updates:
			if u.Suggestion != nil {
				if u.SessionID != s.ID() {
					t.Fatalf("unexpected session id %q", u.SessionID)
				}
				return
			}
		case <-deadline:
			t.Fatalf("no suggestion update received")
		}
	}
}

func TestSnapshot(t *testing.T) {
	s := newTestSession(t, SessionOptions{})
	if err := s.SelectSide(context.Background(), domain.White); err != nil {
		t.Fatalf("select side: %v", err)
	}
	mustPlay(t, s, "e2e4")
	snap := s.Snapshot()
	if snap.Phase != string(PhasePlaying) || snap.Cursor != 0 || len(snap.Moves) != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Moves[0].SAN != "e4" || snap.SideToMove != "black" {
		t.Fatalf("unexpected move rendering %+v", snap.Moves[0])
	}
	if len(strings.Fields(snap.FEN)) != 6 {
		t.Fatalf("compact state must have six fields: %q", snap.FEN)
	}
}
