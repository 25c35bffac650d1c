package timeline

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/park285/cheese-coach/internal/chess/rules"
	"github.com/park285/cheese-coach/internal/domain"
)

func mustMove(t *testing.T, a *rules.Adapter, pos rules.Position, uci string) domain.Move {
	t.Helper()
	mv, err := a.Lookup(pos, uci)
	if err != nil {
		t.Fatalf("Lookup(%s): %v", uci, err)
	}
	return mv
}

func appendUCI(t *testing.T, a *rules.Adapter, tl *Timeline, moves ...string) {
	t.Helper()
	for _, uci := range moves {
		if _, err := tl.Append(mustMove(t, a, tl.Current(), uci)); err != nil {
			t.Fatalf("Append(%s): %v", uci, err)
		}
	}
}

func TestReplayMatchesCurrent(t *testing.T) {
	a := rules.New()
	r := rand.New(rand.NewSource(11))
	for game := 0; game < 5; game++ {
		tl := New(a, a.Initial())
		for ply := 0; ply < 40; ply++ {
			legal := a.LegalMoves(tl.Current(), "")
			if len(legal) == 0 {
				break
			}
			if _, err := tl.Append(legal[r.Intn(len(legal))]); err != nil {
				t.Fatalf("Append: %v", err)
			}
			replayed, err := tl.PositionAt(tl.Cursor())
			if err != nil {
				t.Fatalf("PositionAt: %v", err)
			}
			if a.CompactState(replayed) != a.CompactState(tl.Current()) {
				t.Fatalf("replay diverged at ply %d: %s vs %s", ply, a.CompactState(replayed), a.CompactState(tl.Current()))
			}
		}
		for i := -1; i < tl.Len(); i++ {
			if err := tl.JumpTo(i); err != nil {
				t.Fatalf("JumpTo(%d): %v", i, err)
			}
			want, _ := tl.PositionAt(i)
			if a.CompactState(want) != a.CompactState(tl.Current()) {
				t.Fatalf("cursor %d position mismatch", i)
			}
		}
	}
}

func TestJumpThenAppendTruncates(t *testing.T) {
	a := rules.New()
	tl := New(a, a.Initial())
	appendUCI(t, a, tl, "e2e4", "e7e5", "g1f3")
	moves := tl.Moves()
	if tl.Cursor() != 2 {
		t.Fatalf("cursor = %d", tl.Cursor())
	}

	if err := tl.JumpTo(0); err != nil {
		t.Fatalf("JumpTo(0): %v", err)
	}
	if tl.Len() != 3 {
		t.Fatalf("JumpTo must not mutate moves")
	}
	if tl.Discardable() != 2 {
		t.Fatalf("Discardable = %d", tl.Discardable())
	}

	m3 := mustMove(t, a, tl.Current(), "c7c5")
	discarded, err := tl.Append(m3)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if discarded != 2 {
		t.Fatalf("discarded = %d", discarded)
	}
	got := tl.Moves()
	if len(got) != 2 || got[0] != moves[0] || got[1] != m3 || tl.Cursor() != 1 {
		t.Fatalf("moves = %v cursor = %d", got, tl.Cursor())
	}
}

func TestStepBackAtInitialFails(t *testing.T) {
	a := rules.New()
	tl := New(a, a.Initial())
	if err := tl.StepBack(); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if tl.Cursor() != -1 || tl.Len() != 0 {
		t.Fatalf("state mutated: cursor=%d len=%d", tl.Cursor(), tl.Len())
	}

	appendUCI(t, a, tl, "d2d4")
	if err := tl.StepBack(); err != nil {
		t.Fatalf("StepBack: %v", err)
	}
	if tl.Cursor() != -1 || a.CompactState(tl.Current()) != a.CompactState(a.Initial()) {
		t.Fatalf("expected initial position after StepBack")
	}
	if err := tl.StepBack(); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("second StepBack = %v", err)
	}
	if err := tl.StepForward(); err != nil || tl.Cursor() != 0 {
		t.Fatalf("StepForward: %v cursor=%d", err, tl.Cursor())
	}
	if err := tl.StepForward(); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("StepForward past head = %v", err)
	}
}

func TestJumpOutOfRangeLeavesState(t *testing.T) {
	a := rules.New()
	tl := New(a, a.Initial())
	appendUCI(t, a, tl, "e2e4", "e7e5")
	before := a.CompactState(tl.Current())
	for _, idx := range []int{-2, 2, 100} {
		if err := tl.JumpTo(idx); !errors.Is(err, ErrOutOfRange) {
			t.Fatalf("JumpTo(%d) = %v", idx, err)
		}
	}
	if tl.Cursor() != 1 || a.CompactState(tl.Current()) != before {
		t.Fatalf("state changed after rejected jump")
	}
}

func TestPositionAtIsSideEffectFree(t *testing.T) {
	a := rules.New()
	tl := New(a, a.Initial())
	appendUCI(t, a, tl, "e2e4", "e7e5", "g1f3", "b8c6")
	before := tl.Moves()
	for i := -1; i < tl.Len(); i++ {
		p1, err := tl.PositionAt(i)
		if err != nil {
			t.Fatalf("PositionAt(%d): %v", i, err)
		}
		p2, _ := tl.PositionAt(i)
		if a.CompactState(p1) != a.CompactState(p2) {
			t.Fatalf("replay not deterministic at %d", i)
		}
	}
	after := tl.Moves()
	if len(before) != len(after) || tl.Cursor() != 3 {
		t.Fatalf("replay mutated the timeline")
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("move %d changed", i)
		}
	}
}

func TestAppendIllegalLeavesState(t *testing.T) {
	a := rules.New()
	tl := New(a, a.Initial())
	appendUCI(t, a, tl, "e2e4")
	if _, err := tl.Append(domain.Move{From: "e4", To: "e6", Side: domain.White}); !errors.Is(err, rules.ErrIllegalMove) {
		t.Fatalf("expected illegal move, got %v", err)
	}
	if tl.Len() != 1 || tl.Cursor() != 0 {
		t.Fatalf("state changed on failed append")
	}
}

func TestResetAndRestore(t *testing.T) {
	a := rules.New()
	tl := New(a, a.Initial())
	appendUCI(t, a, tl, "e2e4", "e7e5", "g1f3")
	moves := tl.Moves()

	restored, err := Restore(a, a.Initial(), moves, 1)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.Cursor() != 1 || restored.Len() != 3 {
		t.Fatalf("restored cursor=%d len=%d", restored.Cursor(), restored.Len())
	}
	if _, err := Restore(a, a.Initial(), moves, 5); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("bad cursor restore = %v", err)
	}

	tl.Reset()
	if tl.Len() != 0 || tl.Cursor() != -1 || a.CompactState(tl.Current()) != a.CompactState(a.Initial()) {
		t.Fatalf("reset left state behind")
	}
}
