package timeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/park285/cheese-coach/internal/chess/rules"
	"github.com/park285/cheese-coach/internal/domain"
)

var ErrOutOfRange = errors.New("timeline index out of range")

// Rules is the replay capability the timeline depends on.
type Rules interface {
	Apply(pos rules.Position, mv domain.Move) (rules.Position, error)
}

// Timeline is the canonical move list plus a cursor. Cursor -1 is the initial position.
// The current position is always the replay of moves[0..cursor].
type Timeline struct {
	mu      sync.RWMutex
	rules   Rules
	initial rules.Position
	moves   []domain.Move
	cursor  int
	current rules.Position
}

func New(r Rules, initial rules.Position) *Timeline {
	return &Timeline{
		rules:   r,
		initial: initial,
		cursor:  -1,
		current: initial,
	}
}

// Restore rebuilds a timeline from a stored line, validating every move by replay.
func Restore(r Rules, initial rules.Position, moves []domain.Move, cursor int) (*Timeline, error) {
	t := New(r, initial)
	for i, mv := range moves {
		if _, err := t.Append(mv); err != nil {
			return nil, fmt.Errorf("restore move %d (%s): %w", i, mv.UCI(), err)
		}
	}
	if err := t.JumpTo(cursor); err != nil {
		return nil, err
	}
	return t, nil
}

// Append drops the moves after the cursor, records mv and advances the cursor.
// It returns how many moves were discarded. On failure nothing changes.
func (t *Timeline) Append(mv domain.Move) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	next, err := t.rules.Apply(t.current, mv)
	if err != nil {
		return 0, err
	}
	keep := t.cursor + 1
	discarded := len(t.moves) - keep
	moves := make([]domain.Move, keep, keep+1)
	copy(moves, t.moves[:keep])
	t.moves = append(moves, mv)
	t.cursor = len(t.moves) - 1
	t.current = next
	return discarded, nil
}

// JumpTo moves the cursor and recomputes the current position by replay.
func (t *Timeline) JumpTo(index int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.jumpLocked(index)
}

func (t *Timeline) jumpLocked(index int) error {
	if index < -1 || index >= len(t.moves) {
		return fmt.Errorf("%w: %d not in [-1, %d]", ErrOutOfRange, index, len(t.moves)-1)
	}
	pos, err := t.replay(index)
	if err != nil {
		return err
	}
	t.cursor = index
	t.current = pos
	return nil
}

// StepBack is JumpTo(cursor-1); it fails at the initial position.
func (t *Timeline) StepBack() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.jumpLocked(t.cursor - 1)
}

// StepForward re-enters the next kept move, if any.
func (t *Timeline) StepForward() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.jumpLocked(t.cursor + 1)
}

func (t *Timeline) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.moves = nil
	t.cursor = -1
	t.current = t.initial
}

// PositionAt replays moves[0..index] without touching the timeline.
func (t *Timeline) PositionAt(index int) (rules.Position, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if index < -1 || index >= len(t.moves) {
		return rules.Position{}, fmt.Errorf("%w: %d", ErrOutOfRange, index)
	}
	return t.replay(index)
}

func (t *Timeline) replay(index int) (rules.Position, error) {
	pos := t.initial
	for i := 0; i <= index; i++ {
		next, err := t.rules.Apply(pos, t.moves[i])
		if err != nil {
			return rules.Position{}, fmt.Errorf("replay move %d (%s): %w", i, t.moves[i].UCI(), err)
		}
		pos = next
	}
	return pos, nil
}

func (t *Timeline) Cursor() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cursor
}

func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.moves)
}

// Moves returns a copy of the full line, including moves past the cursor.
func (t *Timeline) Moves() []domain.Move {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]domain.Move(nil), t.moves...)
}

// Played returns moves[0..cursor].
func (t *Timeline) Played() []domain.Move {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]domain.Move(nil), t.moves[:t.cursor+1]...)
}

func (t *Timeline) Current() rules.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

func (t *Timeline) Initial() rules.Position { return t.initial }

// Discardable reports how many moves the next Append would drop.
func (t *Timeline) Discardable() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.moves) - (t.cursor + 1)
}

// AtHead reports whether the cursor is on the last recorded move.
func (t *Timeline) AtHead() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cursor == len(t.moves)-1
}
