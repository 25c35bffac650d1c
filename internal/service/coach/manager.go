package coach

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/cheese-coach/internal/chess/rules"
	"github.com/park285/cheese-coach/internal/domain"
)

type ManagerOptions struct {
	Suggester          Suggester
	Opponent           Suggester
	SuggestionsEnabled bool
	Store              Store
	Repository         Repository
	Logger             *zap.Logger
}

// Manager keeps live sessions by id, persists them after each mutation and
// archives lines that reached a terminal position.
type Manager struct {
	rules  *rules.Adapter
	opts   ManagerOptions
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(r *rules.Adapter, opts ManagerOptions) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Repository == nil {
		opts.Repository = NewMemoryRepository()
	}
	return &Manager{
		rules:    r,
		opts:     opts,
		logger:   opts.Logger,
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) sessionOptions() SessionOptions {
	return SessionOptions{
		Suggester:          m.opts.Suggester,
		Opponent:           m.opts.Opponent,
		SuggestionsEnabled: m.opts.SuggestionsEnabled,
		Logger:             m.logger,
	}
}

func (m *Manager) Create(ctx context.Context) (*Session, error) {
	s := NewSession(m.rules, m.sessionOptions())
	if err := m.opts.Store.Save(ctx, s.State()); err != nil {
		s.Close()
		return nil, fmt.Errorf("save session: %w", err)
	}
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	m.logger.Info("session created", zap.String("session_id", s.ID()))
	return s, nil
}

// Get returns a live session, resuming it from the store by replay when needed.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if ok {
		return s, nil
	}

	st, err := m.opts.Store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if st == nil {
		return nil, ErrSessionNotFound
	}
	restored, err := restoreSession(m.rules, *st, m.sessionOptions())
	if err != nil {
		return nil, fmt.Errorf("restore session %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[id]; ok {
		restored.Close()
		return existing, nil
	}
	m.sessions[id] = restored
	m.logger.Info("session resumed", zap.String("session_id", id), zap.Int("moves", len(st.MovesUCI)))
	return restored, nil
}

// Do runs fn against a session and persists the result. The session is saved even
// when fn fails so that partial progress (a move accepted before the reply failed) survives.
func (m *Manager) Do(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	opErr := fn(s)
	if err := m.opts.Store.Save(ctx, s.State()); err != nil {
		m.logger.Warn("session save failed", zap.String("session_id", id), zap.Error(err))
	}
	if opErr == nil {
		m.archiveIfFinished(ctx, s)
	}
	return s, opErr
}

func (m *Manager) archiveIfFinished(ctx context.Context, s *Session) {
	if s.Archived() || !s.AtHead() || !s.Terminal().Over() {
		return
	}
	if _, err := m.Archive(ctx, s); err != nil && !errors.Is(err, ErrDuplicateGame) {
		m.logger.Warn("archive failed", zap.String("session_id", s.ID()), zap.Error(err))
	}
}

// Archive writes the line up to the cursor to the repository. The session is marked
// archived only once the repository holds the game.
func (m *Manager) Archive(ctx context.Context, s *Session) (int64, error) {
	rec := s.record()
	id, err := m.opts.Repository.InsertGame(ctx, rec)
	if err != nil && !errors.Is(err, ErrDuplicateGame) {
		return 0, err
	}
	s.markArchived(rec.GameUUID)
	if serr := m.opts.Store.Save(ctx, s.State()); serr != nil {
		m.logger.Warn("session save failed", zap.String("session_id", s.ID()), zap.Error(serr))
	}
	if err != nil {
		return 0, err
	}
	m.logger.Info("game archived",
		zap.String("session_id", s.ID()),
		zap.String("game_uuid", rec.GameUUID),
		zap.Int64("game_id", id),
		zap.String("result", rec.Result),
		zap.String("termination", rec.Termination),
	)
	return id, nil
}

func (m *Manager) ArchivedGame(ctx context.Context, id string) (*domain.GameRecord, error) {
	return m.opts.Repository.GetGameBySession(ctx, id)
}

func (m *Manager) RecentGames(ctx context.Context, limit int) ([]*domain.GameRecord, error) {
	return m.opts.Repository.RecentGames(ctx, limit)
}

// Delete drops a session from memory and from the store.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
	return m.opts.Store.Delete(ctx, id)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops every live session. Persisted state is left in the store.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
