package coach

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/cheese-coach/internal/chess/rules"
	"github.com/park285/cheese-coach/internal/domain"
	"github.com/park285/cheese-coach/internal/suggest"
	"github.com/park285/cheese-coach/internal/timeline"
)

var (
	ErrSessionNotFound     = errors.New("coach session not found")
	ErrSideNotSelected     = errors.New("side not selected")
	ErrSideAlreadySelected = errors.New("side already selected")
	ErrGameOver            = errors.New("game is over")
	ErrInvalidSide         = errors.New("invalid side")
	ErrIllegalMove         = rules.ErrIllegalMove
	ErrOutOfRange          = timeline.ErrOutOfRange
)

type Phase string

const (
	PhaseAwaitingSide Phase = "awaiting_side_selection"
	PhasePlaying      Phase = "playing"
)

// TurnRelation is whose turn it is relative to the human side.
type TurnRelation string

const (
	TurnNone  TurnRelation = ""
	TurnHuman TurnRelation = "human_turn"
	TurnOther TurnRelation = "opponent_or_self_turn"
)

// Suggester answers with a move for the side to move. *suggest.Bridge implements it.
type Suggester interface {
	Suggest(ctx context.Context, pos rules.Position) suggest.Result
}

type Suggestion struct {
	Move      domain.Move
	Source    suggest.Source
	Reason    string
	RequestID string
	Latency   time.Duration
	Cursor    int
}

// Update is published whenever the displayed suggestion changes.
type Update struct {
	SessionID  string
	Cursor     int
	Suggestion *Suggestion
	Pending    bool
}

// MoveOutcome reports what a single accepted move did to the session.
type MoveOutcome struct {
	Move      domain.Move
	Discarded int
	Reply     *domain.Move
	Terminal  domain.TerminalState
}

type SessionOptions struct {
	Suggester Suggester
	// Opponent answers the human's moves. Nil means both sides are moved by hand.
	Opponent           Suggester
	SuggestionsEnabled bool
	Logger             *zap.Logger
}

// Session wires the timeline, the move intents and the suggestion bridge for one game.
type Session struct {
	mu     sync.Mutex
	id     string
	gameID string
	rules  *rules.Adapter
	opts   SessionOptions
	logger *zap.Logger

	phase    Phase
	human    domain.Color
	timeline *timeline.Timeline
	enabled  bool

	// expected is the latest-expected marker; results carrying an older ticket are dropped.
	expected   uint64
	pending    bool
	suggestion *Suggestion

	suggestions int
	fallbacks   int
	archived    bool

	subs      map[int]chan Update
	nextSubID int

	ctx       context.Context
	cancel    context.CancelFunc
	inflight  sync.WaitGroup
	createdAt time.Time
	updatedAt time.Time
}

func NewSession(r *rules.Adapter, opts SessionOptions) *Session {
	return newSession(uuid.NewString(), r, opts)
}

func newSession(id string, r *rules.Adapter, opts SessionOptions) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	return &Session{
		id:        id,
		gameID:    uuid.NewString(),
		rules:     r,
		opts:      opts,
		logger:    logger.With(zap.String("session_id", id)),
		phase:     PhaseAwaitingSide,
		timeline:  timeline.New(r, r.Initial()),
		enabled:   opts.SuggestionsEnabled,
		subs:      make(map[int]chan Update),
		ctx:       ctx,
		cancel:    cancel,
		createdAt: now,
		updatedAt: now,
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) HumanSide() domain.Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.human
}

// Turn reports whose turn the active position is relative to the human side.
func (s *Session) Turn() TurnRelation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turnLocked()
}

func (s *Session) turnLocked() TurnRelation {
	if s.phase != PhasePlaying {
		return TurnNone
	}
	if s.rules.Turn(s.timeline.Current()) == s.human {
		return TurnHuman
	}
	return TurnOther
}

// SelectSide leaves AwaitingSideSelection and starts the game.
func (s *Session) SelectSide(ctx context.Context, side domain.Color) error {
	if !side.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}
	s.mu.Lock()
	if s.phase != PhaseAwaitingSide {
		s.mu.Unlock()
		return ErrSideAlreadySelected
	}
	s.human = side
	s.phase = PhasePlaying
	s.timeline = timeline.New(s.rules, s.rules.Initial())
	s.touchLocked()
	s.logger.Info("side selected", zap.String("human", string(side)))
	ticket := s.refreshLocked()
	needsReply := s.opts.Opponent != nil && s.turnLocked() == TurnOther
	s.mu.Unlock()

	if needsReply {
		_, err := s.reply(ctx, ticket)
		return err
	}
	return nil
}

// AttemptMove is the single entry point for move intents. Illegal moves leave the
// session untouched and report ErrIllegalMove.
func (s *Session) AttemptMove(from, to domain.Square) error {
	_, err := s.Play(s.ctx, from, to, domain.NoPiece)
	return err
}

// Play applies a human move at the cursor, truncating any future line, and lets the
// opponent answer when one is configured.
func (s *Session) Play(ctx context.Context, from, to domain.Square, promo domain.PieceKind) (MoveOutcome, error) {
	s.mu.Lock()
	if s.phase != PhasePlaying {
		s.mu.Unlock()
		return MoveOutcome{}, ErrSideNotSelected
	}
	pos := s.timeline.Current()
	if s.rules.Terminal(pos).Over() {
		s.mu.Unlock()
		return MoveOutcome{}, ErrGameOver
	}
	mover := s.rules.Turn(pos)
	mv, err := s.rules.Resolve(pos, from, to, promo)
	if err != nil {
		s.mu.Unlock()
		return MoveOutcome{}, err
	}
	discarded, err := s.timeline.Append(mv)
	if err != nil {
		s.mu.Unlock()
		return MoveOutcome{}, err
	}
	if discarded > 0 {
		s.logger.Info("branch truncated", zap.Int("discarded", discarded), zap.String("move", mv.UCI()))
	}
	s.touchLocked()
	out := MoveOutcome{Move: mv, Discarded: discarded, Terminal: s.rules.Terminal(s.timeline.Current())}
	ticket := s.refreshLocked()
	needsReply := s.opts.Opponent != nil && mover == s.human && !out.Terminal.Over() && s.turnLocked() == TurnOther
	s.mu.Unlock()

	if needsReply {
		reply, err := s.reply(ctx, ticket)
		if err != nil {
			return out, err
		}
		if reply != nil {
			out.Reply = reply
			out.Terminal = s.Terminal()
		}
	}
	return out, nil
}

// reply asks the opponent for a move and records it if nothing changed meanwhile.
func (s *Session) reply(ctx context.Context, ticket uint64) (*domain.Move, error) {
	s.mu.Lock()
	pos := s.timeline.Current()
	s.mu.Unlock()

	res := s.opts.Opponent.Suggest(ctx, pos)
	if res.Move == nil {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket != s.expected {
		s.logger.Debug("dropping stale opponent reply", zap.String("move", res.Move.UCI()))
		return nil, nil
	}
	if _, err := s.timeline.Append(*res.Move); err != nil {
		return nil, err
	}
	s.touchLocked()
	s.refreshLocked()
	mv := *res.Move
	return &mv, nil
}

func (s *Session) JumpTo(index int) error {
	return s.navigate(func(t *timeline.Timeline) error { return t.JumpTo(index) })
}

func (s *Session) StepBack() error {
	return s.navigate(func(t *timeline.Timeline) error { return t.StepBack() })
}

func (s *Session) StepForward() error {
	return s.navigate(func(t *timeline.Timeline) error { return t.StepForward() })
}

func (s *Session) navigate(op func(*timeline.Timeline) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhasePlaying {
		return ErrSideNotSelected
	}
	if err := op(s.timeline); err != nil {
		return err
	}
	s.touchLocked()
	s.refreshLocked()
	return nil
}

// Reset returns to AwaitingSideSelection, dropping the timeline and any in-flight suggestion.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseAwaitingSide
	s.human = ""
	s.timeline = timeline.New(s.rules, s.rules.Initial())
	s.gameID = uuid.NewString()
	s.archived = false
	s.suggestions, s.fallbacks = 0, 0
	s.touchLocked()
	s.refreshLocked()
	s.logger.Info("session reset")
}

func (s *Session) SetSuggestionsEnabled(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled == on {
		return
	}
	s.enabled = on
	s.refreshLocked()
}

func (s *Session) SuggestionsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Suggestion returns the displayed suggestion and whether a lookup is still pending.
func (s *Session) Suggestion() (*Suggestion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.suggestion == nil {
		return nil, s.pending
	}
	cp := *s.suggestion
	return &cp, s.pending
}

// refreshLocked clears the displayed suggestion and, on the human's turn, starts exactly
// one lookup for the active position. It returns the new marker.
func (s *Session) refreshLocked() uint64 {
	s.expected++
	ticket := s.expected
	s.suggestion = nil
	s.pending = false

	if s.phase == PhasePlaying && s.enabled && s.opts.Suggester != nil && s.turnLocked() == TurnHuman {
		pos := s.timeline.Current()
		if !s.rules.Terminal(pos).Over() {
			s.pending = true
			cursor := s.timeline.Cursor()
			s.inflight.Add(1)
			go func() {
				defer s.inflight.Done()
				res := s.opts.Suggester.Suggest(s.ctx, pos)
				s.applySuggestion(ticket, cursor, res)
			}()
		}
	}
	s.publishLocked()
	return ticket
}

func (s *Session) applySuggestion(ticket uint64, cursor int, res suggest.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticket != s.expected {
		s.logger.Debug("dropping stale suggestion", zap.String("request_id", res.RequestID))
		return
	}
	s.pending = false
	if res.Move != nil {
		s.suggestion = &Suggestion{
			Move:      *res.Move,
			Source:    res.Source,
			Reason:    res.Reason,
			RequestID: res.RequestID,
			Latency:   res.Latency,
			Cursor:    cursor,
		}
		s.suggestions++
		if res.Source == suggest.SourceFallback {
			s.fallbacks++
		}
	}
	s.publishLocked()
}

// Subscribe returns a channel of suggestion updates and a cancel func.
func (s *Session) Subscribe() (<-chan Update, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	ch := make(chan Update, 8)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Session) publishLocked() {
	if len(s.subs) == 0 {
		return
	}
	u := Update{SessionID: s.id, Cursor: s.timeline.Cursor(), Pending: s.pending}
	if s.suggestion != nil {
		cp := *s.suggestion
		u.Suggestion = &cp
	}
	for _, ch := range s.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Wait blocks until in-flight suggestion lookups have settled.
func (s *Session) Wait() { s.inflight.Wait() }

// Close cancels pending lookups and releases subscribers.
func (s *Session) Close() {
	s.cancel()
	s.inflight.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expected++
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Cursor()
}

// AtHead reports whether the cursor is on the last recorded move.
func (s *Session) AtHead() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.AtHead()
}

func (s *Session) Moves() []domain.Move {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Moves()
}

func (s *Session) Current() rules.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.Current()
}

func (s *Session) Terminal() domain.TerminalState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rules.Terminal(s.timeline.Current())
}

// OwnPiece lets the intent pipeline ask about the active position.
func (s *Session) OwnPiece(sq domain.Square) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhasePlaying {
		return false
	}
	return s.rules.OwnPiece(s.timeline.Current(), sq)
}

// Movetext exports the line up to the cursor.
func (s *Session) Movetext() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rules.Movetext(s.timeline.Initial(), s.timeline.Played())
}

func (s *Session) PGN() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pgnLocked()
}

func (s *Session) pgnLocked() string {
	cur := s.timeline.Current()
	ts := s.rules.Terminal(cur)
	h := rules.PGNHeader{
		Event:  "Coach",
		Date:   s.createdAt,
		Result: rules.ResultToken(ts, s.rules.Turn(cur)),
		Reason: ts.Reason(),
	}
	switch s.human {
	case domain.White:
		h.White, h.Black = "Human", "Opponent"
	case domain.Black:
		h.White, h.Black = "Opponent", "Human"
	}
	return s.rules.PGN(s.timeline.Initial(), s.timeline.Played(), h)
}

func (s *Session) touchLocked() { s.updatedAt = time.Now() }
