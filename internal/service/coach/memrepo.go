package coach

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/park285/cheese-coach/internal/domain"
)

// memrepo is the in-memory archive used when no database is configured.
type memrepo struct {
	mu        sync.RWMutex
	nextID    int64
	byID      map[int64]*domain.GameRecord
	byGame    map[string]*domain.GameRecord
	bySession map[string]*domain.GameRecord // latest game per session
}

func NewMemoryRepository() Repository {
	return &memrepo{
		byID:      make(map[int64]*domain.GameRecord),
		byGame:    make(map[string]*domain.GameRecord),
		bySession: make(map[string]*domain.GameRecord),
	}
}

func (m *memrepo) InsertGame(_ context.Context, game *domain.GameRecord) (int64, error) {
	if game == nil || game.GameUUID == "" {
		return 0, fmt.Errorf("game record without game uuid")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byGame[game.GameUUID]; exists {
		return 0, ErrDuplicateGame
	}
	m.nextID++
	cp := *game
	cp.ID = m.nextID
	m.byID[cp.ID] = &cp
	m.byGame[cp.GameUUID] = &cp
	m.bySession[cp.SessionUUID] = &cp
	return cp.ID, nil
}

func (m *memrepo) GetGameBySession(_ context.Context, sessionUUID string) (*domain.GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	game, ok := m.bySession[sessionUUID]
	if !ok {
		return nil, ErrGameNotFound
	}
	cp := *game
	return &cp, nil
}

func (m *memrepo) RecentGames(_ context.Context, limit int) ([]*domain.GameRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	items := make([]*domain.GameRecord, 0, len(m.byID))
	for _, g := range m.byID {
		cp := *g
		items = append(items, &cp)
	}
	m.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
