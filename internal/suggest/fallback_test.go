package suggest

import (
	"math/rand"
	"testing"

	"github.com/park285/cheese-coach/internal/chess/rules"
	"github.com/park285/cheese-coach/internal/domain"
)

func TestChooseEmpty(t *testing.T) {
	if _, ok := Choose(nil, rand.New(rand.NewSource(1))); ok {
		t.Fatalf("empty set must yield no move")
	}
}

func TestChooseDeterministic(t *testing.T) {
	a := rules.New()
	moves := a.LegalMoves(a.Initial(), "")
	m1, ok1 := Choose(moves, rand.New(rand.NewSource(99)))
	m2, ok2 := Choose(moves, rand.New(rand.NewSource(99)))
	if !ok1 || !ok2 || m1 != m2 {
		t.Fatalf("same source must pick the same move: %v %v", m1, m2)
	}
}

func TestChooseCoversAllMoves(t *testing.T) {
	moves := []domain.Move{
		{From: "e2", To: "e4"},
		{From: "d2", To: "d4"},
		{From: "g1", To: "f3"},
	}
	r := rand.New(rand.NewSource(3))
	seen := map[string]int{}
	for i := 0; i < 300; i++ {
		mv, ok := Choose(moves, r)
		if !ok {
			t.Fatalf("expected a move")
		}
		seen[mv.UCI()]++
	}
	for _, mv := range moves {
		if seen[mv.UCI()] < 50 {
			t.Fatalf("distribution looks skewed: %v", seen)
		}
	}
}
