package coach

import (
	"fmt"
	"time"

	"github.com/park285/cheese-coach/internal/chess/rules"
	"github.com/park285/cheese-coach/internal/domain"
	"github.com/park285/cheese-coach/internal/timeline"
	"github.com/park285/cheese-coach/pkg/coachdto"
)

// State is the persisted form of a session. Positions are never stored; they are
// rebuilt by replaying MovesUCI from the initial position.
type State struct {
	ID                 string       `json:"id"`
	GameID             string       `json:"game_id,omitempty"`
	Phase              Phase        `json:"phase"`
	Human              domain.Color `json:"human,omitempty"`
	MovesUCI           []string     `json:"moves_uci"`
	Cursor             int          `json:"cursor"`
	SuggestionsEnabled bool         `json:"suggestions_enabled"`
	Suggestions        int          `json:"suggestions"`
	Fallbacks          int          `json:"fallbacks"`
	Archived           bool         `json:"archived,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	moves := s.timeline.Moves()
	uci := make([]string, len(moves))
	for i, mv := range moves {
		uci[i] = mv.UCI()
	}
	return State{
		ID:                 s.id,
		GameID:             s.gameID,
		Phase:              s.phase,
		Human:              s.human,
		MovesUCI:           uci,
		Cursor:             s.timeline.Cursor(),
		SuggestionsEnabled: s.enabled,
		Suggestions:        s.suggestions,
		Fallbacks:          s.fallbacks,
		Archived:           s.archived,
		CreatedAt:          s.createdAt,
		UpdatedAt:          s.updatedAt,
	}
}

// restoreSession replays a stored state into a live session.
func restoreSession(r *rules.Adapter, st State, opts SessionOptions) (*Session, error) {
	pos := r.Initial()
	moves := make([]domain.Move, 0, len(st.MovesUCI))
	for _, raw := range st.MovesUCI {
		mv, next, err := r.Play(pos, raw)
		if err != nil {
			return nil, fmt.Errorf("replay move %s: %w", raw, err)
		}
		moves = append(moves, mv)
		pos = next
	}
	tl, err := timeline.Restore(r, r.Initial(), moves, st.Cursor)
	if err != nil {
		return nil, err
	}

	opts.SuggestionsEnabled = st.SuggestionsEnabled
	s := newSession(st.ID, r, opts)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = st.Phase
	if s.phase == "" {
		s.phase = PhaseAwaitingSide
	}
	s.human = st.Human
	s.timeline = tl
	s.suggestions = st.Suggestions
	s.fallbacks = st.Fallbacks
	s.archived = st.Archived
	if st.GameID != "" {
		s.gameID = st.GameID
	}
	if !st.CreatedAt.IsZero() {
		s.createdAt = st.CreatedAt
	}
	s.updatedAt = st.UpdatedAt
	s.refreshLocked()
	return s, nil
}

// Snapshot renders the session for API consumers.
func (s *Session) Snapshot() coachdto.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.timeline.Current()
	ts := s.rules.Terminal(cur)
	moves := s.timeline.Moves()
	out := coachdto.Session{
		ID:                 s.id,
		Phase:              string(s.phase),
		HumanSide:          string(s.human),
		SideToMove:         string(s.rules.Turn(cur)),
		Turn:               string(s.turnLocked()),
		Cursor:             s.timeline.Cursor(),
		Moves:              make([]coachdto.Move, len(moves)),
		FEN:                s.rules.CompactState(cur),
		Movetext:           s.rules.Movetext(s.timeline.Initial(), s.timeline.Played()),
		Discardable:        s.timeline.Discardable(),
		SuggestionsEnabled: s.enabled,
		SuggestionPending:  s.pending,
		Terminal: coachdto.Terminal{
			Over:   ts.Over(),
			Reason: ts.Reason(),
			Result: rules.ResultToken(ts, s.rules.Turn(cur)),
		},
		UpdatedAt: s.updatedAt,
	}
	for i, mv := range moves {
		out.Moves[i] = moveDTO(i, mv)
	}
	out.OpeningCode, out.OpeningName = s.rules.Opening(cur)
	if s.suggestion != nil {
		out.Suggestion = &coachdto.Suggestion{
			Move:      moveDTO(s.suggestion.Cursor+1, s.suggestion.Move),
			Source:    string(s.suggestion.Source),
			Reason:    s.suggestion.Reason,
			RequestID: s.suggestion.RequestID,
			LatencyMS: s.suggestion.Latency.Milliseconds(),
		}
	}
	return out
}

func moveDTO(ply int, mv domain.Move) coachdto.Move {
	return coachdto.Move{
		Ply:       ply,
		From:      string(mv.From),
		To:        string(mv.To),
		Promotion: string(mv.Promotion),
		Side:      string(mv.Side),
		SAN:       mv.Notation,
		UCI:       mv.UCI(),
	}
}

// record builds the archive row for the line up to the cursor.
func (s *Session) record() *domain.GameRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.timeline.Current()
	ts := s.rules.Terminal(cur)
	played := s.timeline.Played()
	rec := &domain.GameRecord{
		GameUUID:    s.gameID,
		SessionUUID: s.id,
		HumanSide:   s.human,
		Result:      rules.ResultToken(ts, s.rules.Turn(cur)),
		Termination: ts.Reason(),
		MovesUCI:    make([]string, len(played)),
		MovesSAN:    make([]string, len(played)),
		PGN:         s.pgnLocked(),
		Suggestions: s.suggestions,
		Fallbacks:   s.fallbacks,
		StartedAt:   s.createdAt,
		EndedAt:     time.Now(),
	}
	for i, mv := range played {
		rec.MovesUCI[i] = mv.UCI()
		rec.MovesSAN[i] = mv.Notation
	}
	rec.Duration = rec.EndedAt.Sub(rec.StartedAt)
	return rec
}

// markArchived flags the game only if it is still the one that was recorded.
func (s *Session) markArchived(gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gameID == gameID {
		s.archived = true
	}
}

func (s *Session) Archived() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.archived
}
