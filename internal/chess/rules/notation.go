package rules

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/corentings/chess/v2/opening"

	"github.com/park285/cheese-coach/internal/domain"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

// Movetext renders moves in numbered SAN, e.g. "1. e4 e5 2. Nf3".
func (a *Adapter) Movetext(initial Position, moves []domain.Move) string {
	number := fullMoveNumber(a.CompactState(initial))
	blackFirst := a.Turn(initial) == domain.Black

	var b strings.Builder
	for i, mv := range moves {
		san := strings.TrimSpace(mv.Notation)
		if san == "" {
			san = mv.UCI()
		}
		if i > 0 {
			b.WriteString(" ")
		}
		switch {
		case i == 0 && blackFirst:
			fmt.Fprintf(&b, "%d... %s", number, san)
			number++
		case mv.Side == domain.White:
			fmt.Fprintf(&b, "%d. %s", number, san)
		default:
			b.WriteString(san)
			number++
		}
	}
	return b.String()
}

type PGNHeader struct {
	Event  string
	Site   string
	Date   time.Time
	White  string
	Black  string
	Result string
	Reason string
}

// PGN wraps Movetext with the seven-tag roster plus SetUp/FEN for non-standard starts.
func (a *Adapter) PGN(initial Position, moves []domain.Move, h PGNHeader) string {
	result := strings.TrimSpace(h.Result)
	if result == "" {
		result = "*"
	}
	date := h.Date
	if date.IsZero() {
		date = time.Now()
	}
	event := h.Event
	if strings.TrimSpace(event) == "" {
		event = "Coach"
	}
	site := h.Site
	if strings.TrimSpace(site) == "" {
		site = "?"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[Event \"%s\"]\n", sanitizePGN(event))
	fmt.Fprintf(&b, "[Site \"%s\"]\n", sanitizePGN(site))
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	b.WriteString("[Round \"-\"]\n")
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizePGN(orUnknown(h.White)))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizePGN(orUnknown(h.Black)))
	fmt.Fprintf(&b, "[Result \"%s\"]\n", result)
	if fen := a.CompactState(initial); fen != "" && fen != startFEN {
		b.WriteString("[SetUp \"1\"]\n")
		fmt.Fprintf(&b, "[FEN \"%s\"]\n", fen)
	}
	if strings.TrimSpace(h.Reason) != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(h.Reason))
	}
	b.WriteString("\n")
	if text := a.Movetext(initial, moves); text != "" {
		b.WriteString(text)
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

// Opening names the ECO line reached by pos, if any.
func (a *Adapter) Opening(pos Position) (code, title string) {
	if !pos.Valid() {
		return "", ""
	}
	ecoOnce.Do(func() { ecoBook = opening.NewBookECO() })
	if ecoBook == nil {
		return "", ""
	}
	if eco := ecoBook.Find(pos.game.Moves()); eco != nil {
		return eco.Code(), eco.Title()
	}
	return "", ""
}

// ResultToken maps a terminal state to a PGN result from the perspective of the side to move.
func ResultToken(ts domain.TerminalState, toMove domain.Color) string {
	switch {
	case ts.Checkmate && toMove == domain.White:
		return "0-1"
	case ts.Checkmate:
		return "1-0"
	case ts.Over():
		return "1/2-1/2"
	default:
		return "*"
	}
}

func fullMoveNumber(fen string) int {
	fields := strings.Fields(fen)
	if len(fields) != 6 {
		return 1
	}
	n, err := strconv.Atoi(fields[5])
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "?"
	}
	return s
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
