package openingbook

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	chesslib "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/park285/cheese-coach/internal/chess/rules"
	"github.com/park285/cheese-coach/internal/suggest"
)

type Entry struct {
	Move   string
	Weight uint16
}

// Book is a loaded polyglot opening book.
type Book struct {
	book *chesslib.PolyglotBook
}

func Open(path string) (*Book, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("polyglot book path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open polyglot book %q: %w", path, err)
	}
	defer file.Close()
	return Load(file)
}

func Load(r io.Reader) (*Book, error) {
	book, err := chesslib.LoadFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("load polyglot book: %w", err)
	}
	return &Book{book: book}, nil
}

// Probe returns the book moves for a FEN, heaviest first.
func (b *Book) Probe(fen string) ([]Entry, error) {
	if b == nil || b.book == nil {
		return nil, nil
	}
	hashStr, err := chesslib.NewZobristHasher().HashPosition(fen)
	if err != nil {
		return nil, fmt.Errorf("compute polyglot hash: %w", err)
	}
	found := b.book.FindMoves(chesslib.ZobristHashToUint64(hashStr))
	out := make([]Entry, 0, len(found))
	for _, e := range found {
		move := chesslib.DecodeMove(e.Move).ToMove()
		out = append(out, Entry{Move: move.String(), Weight: e.Weight})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight == out[j].Weight {
			return out[i].Move < out[j].Move
		}
		return out[i].Weight > out[j].Weight
	})
	return out, nil
}

// Pick chooses an entry with probability proportional to its weight.
func Pick(entries []Entry, r suggest.Rand) (Entry, bool) {
	if len(entries) == 0 {
		return Entry{}, false
	}
	if r == nil {
		return entries[0], true
	}
	total := 0
	for _, e := range entries {
		total += int(e.Weight)
	}
	if total <= 0 {
		return entries[0], true
	}
	roll := r.Intn(total)
	cumulative := 0
	for _, e := range entries {
		cumulative += int(e.Weight)
		if roll < cumulative {
			return e, true
		}
	}
	return entries[len(entries)-1], true
}

// Suggester is what the opponent falls back to once the book runs out.
type Suggester interface {
	Suggest(ctx context.Context, pos rules.Position) suggest.Result
}

// Opponent plays book moves while the position is covered and defers to Next afterwards.
type Opponent struct {
	book   *Book
	rules  *rules.Adapter
	next   Suggester
	logger *zap.Logger

	mu   sync.Mutex
	rand suggest.Rand
}

func NewOpponent(book *Book, r *rules.Adapter, next Suggester, rnd suggest.Rand, logger *zap.Logger) *Opponent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Opponent{book: book, rules: r, next: next, rand: rnd, logger: logger}
}

func (o *Opponent) Suggest(ctx context.Context, pos rules.Position) suggest.Result {
	entries, err := o.book.Probe(o.rules.CompactState(pos))
	if err != nil {
		o.logger.Warn("book probe failed", zap.Error(err))
	}
	o.mu.Lock()
	picked, ok := Pick(entries, o.rand)
	o.mu.Unlock()
	if ok {
		mv, err := o.rules.Lookup(pos, picked.Move)
		if err == nil {
			return suggest.Result{Move: &mv, Source: suggest.SourceBook}
		}
		o.logger.Warn("book move rejected", zap.String("move", picked.Move), zap.Error(err))
	}
	if o.next == nil {
		return suggest.Result{Source: suggest.SourceNone}
	}
	return o.next.Suggest(ctx, pos)
}
