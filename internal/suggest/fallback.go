package suggest

import "github.com/park285/cheese-coach/internal/domain"

// Rand is the slice of math/rand the chooser needs.
type Rand interface {
	Intn(n int) int
}

// Choose picks one of moves uniformly. It reports false for an empty set.
func Choose(moves []domain.Move, r Rand) (domain.Move, bool) {
	if len(moves) == 0 || r == nil {
		return domain.Move{}, false
	}
	return moves[r.Intn(len(moves))], true
}
