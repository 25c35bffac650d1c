package intent

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/cheese-coach/internal/domain"
)

// Mover applies a move intent. Any error is treated as a rejected attempt.
type Mover interface {
	AttemptMove(from, to domain.Square) error
}

// Board answers ownership questions about the active position.
type Board interface {
	OwnPiece(sq domain.Square) bool
}

// Geometry maps pointer coordinates onto the 8x8 grid.
type Geometry struct {
	OriginX float64 `json:"origin_x"`
	OriginY float64 `json:"origin_y"`
	Size    float64 `json:"size"`
	// Flipped puts black at the bottom.
	Flipped bool `json:"flipped"`
}

// SquareAt returns the square under (x, y), or false when the point is off the board.
func (g Geometry) SquareAt(x, y float64) (domain.Square, bool) {
	if g.Size <= 0 {
		return "", false
	}
	cell := g.Size / 8
	col := int(math.Floor((x - g.OriginX) / cell))
	row := int(math.Floor((y - g.OriginY) / cell))
	if col < 0 || col > 7 || row < 0 || row > 7 {
		return "", false
	}
	if g.Flipped {
		return domain.SquareAt(7-col, row)
	}
	return domain.SquareAt(col, 7-row)
}

// Center is the inverse of SquareAt, returning the middle of sq.
func (g Geometry) Center(sq domain.Square) (float64, float64) {
	cell := g.Size / 8
	col, row := sq.File(), 7-sq.Rank()
	if g.Flipped {
		col, row = 7-sq.File(), sq.Rank()
	}
	return g.OriginX + (float64(col)+0.5)*cell, g.OriginY + (float64(row)+0.5)*cell
}

// Event describes what one interaction did.
type Event struct {
	Armed     domain.Square `json:"armed,omitempty"`
	Attempted bool          `json:"attempted"`
	Accepted  bool          `json:"accepted"`
	From      domain.Square `json:"from,omitempty"`
	To        domain.Square `json:"to,omitempty"`
	Err       error         `json:"-"`
}

// Pipeline turns tap-tap and press-drag-release gestures into AttemptMove calls.
type Pipeline struct {
	mu       sync.Mutex
	mover    Mover
	board    Board
	geom     Geometry
	armed    domain.Square
	dragging bool
	logger   *zap.Logger
}

func NewPipeline(m Mover, b Board, g Geometry, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{mover: m, board: b, geom: g, logger: logger}
}

func (p *Pipeline) SetGeometry(g Geometry) {
	p.mu.Lock()
	p.geom = g
	p.mu.Unlock()
}

func (p *Pipeline) Geometry() Geometry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.geom
}

func (p *Pipeline) Armed() (domain.Square, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.armed, p.armed != ""
}

// Cancel drops any armed piece and drag in progress.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	p.armed = ""
	p.dragging = false
	p.mu.Unlock()
}

// Tap handles one select interaction on sq.
func (p *Pipeline) Tap(sq domain.Square) Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tapLocked(sq)
}

func (p *Pipeline) tapLocked(sq domain.Square) Event {
	p.dragging = false
	if p.armed == "" {
		if p.board.OwnPiece(sq) {
			p.armed = sq
		}
		return Event{Armed: p.armed}
	}
	if sq == p.armed {
		p.armed = ""
		return Event{}
	}
	from := p.armed
	ev := p.attempt(from, sq)
	if !ev.Accepted && p.board.OwnPiece(sq) {
		p.armed = sq
	} else {
		p.armed = ""
	}
	ev.Armed = p.armed
	return ev
}

// Press starts a drag when it lands on an own piece. With a piece already armed,
// a press elsewhere acts as the second tap.
func (p *Pipeline) Press(x, y float64) Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	sq, ok := p.geom.SquareAt(x, y)
	if !ok {
		p.armed = ""
		p.dragging = false
		return Event{}
	}
	if p.board.OwnPiece(sq) && sq != p.armed {
		p.armed = sq
		p.dragging = true
		return Event{Armed: sq}
	}
	if p.armed != "" && sq != p.armed {
		return p.tapLocked(sq)
	}
	if sq == p.armed {
		p.dragging = true
	}
	return Event{Armed: p.armed}
}

// Release ends a drag. Dropping on the origin keeps the piece armed for a follow-up tap;
// dropping off the board cancels.
func (p *Pipeline) Release(x, y float64) Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dragging || p.armed == "" {
		p.dragging = false
		return Event{Armed: p.armed}
	}
	p.dragging = false
	sq, ok := p.geom.SquareAt(x, y)
	if !ok {
		p.armed = ""
		return Event{}
	}
	if sq == p.armed {
		return Event{Armed: p.armed}
	}
	from := p.armed
	p.armed = ""
	return p.attempt(from, sq)
}

// attempt is the single path both modalities use.
func (p *Pipeline) attempt(from, to domain.Square) Event {
	err := p.mover.AttemptMove(from, to)
	if err != nil {
		p.logger.Debug("move attempt rejected",
			zap.String("from", string(from)),
			zap.String("to", string(to)),
			zap.Error(err),
		)
	}
	return Event{Attempted: true, Accepted: err == nil, From: from, To: to, Err: err}
}
