package coach

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/cheese-coach/internal/domain"
)

var (
	ErrDuplicateGame = errors.New("game already archived")
	ErrGameNotFound  = errors.New("archived game not found")
)

// Repository archives finished or exported lines. Games are unique by GameUUID;
// a session that was reset holds several, and lookups by session return the latest.
type Repository interface {
	InsertGame(ctx context.Context, game *domain.GameRecord) (int64, error)
	GetGameBySession(ctx context.Context, sessionUUID string) (*domain.GameRecord, error)
	RecentGames(ctx context.Context, limit int) ([]*domain.GameRecord, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS coach_games (
	id           BIGSERIAL PRIMARY KEY,
	game_uuid    TEXT NOT NULL UNIQUE,
	session_uuid TEXT NOT NULL,
	human_side   TEXT NOT NULL,
	result       TEXT NOT NULL,
	termination  TEXT NOT NULL DEFAULT '',
	moves_uci    JSONB NOT NULL,
	moves_san    JSONB NOT NULL,
	pgn          TEXT NOT NULL,
	suggestions  INTEGER NOT NULL DEFAULT 0,
	fallbacks    INTEGER NOT NULL DEFAULT 0,
	started_at   TIMESTAMPTZ NOT NULL,
	ended_at     TIMESTAMPTZ NOT NULL,
	duration_ms  BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS coach_games_session_idx ON coach_games (session_uuid, ended_at DESC)`

const selectColumns = `
	id,
	game_uuid,
	session_uuid,
	human_side,
	result,
	termination,
	moves_uci,
	moves_san,
	pgn,
	suggestions,
	fallbacks,
	started_at,
	ended_at,
	duration_ms`

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(pingCtx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *PostgresRepository) InsertGame(ctx context.Context, game *domain.GameRecord) (int64, error) {
	if game == nil || game.GameUUID == "" {
		return 0, fmt.Errorf("game record without game uuid")
	}
	movesUCI, err := json.Marshal(game.MovesUCI)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(game.MovesSAN)
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}

	const query = `
		INSERT INTO coach_games (
			game_uuid,
			session_uuid,
			human_side,
			result,
			termination,
			moves_uci,
			moves_san,
			pgn,
			suggestions,
			fallbacks,
			started_at,
			ended_at,
			duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (game_uuid) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(
		ctx,
		query,
		game.GameUUID,
		game.SessionUUID,
		string(game.HumanSide),
		game.Result,
		game.Termination,
		string(movesUCI),
		string(movesSAN),
		game.PGN,
		game.Suggestions,
		game.Fallbacks,
		game.StartedAt,
		game.EndedAt,
		game.Duration.Milliseconds(),
	).Scan(&id)
	if err == sql.ErrNoRows || (err == nil && !id.Valid) {
		return 0, ErrDuplicateGame
	}
	if err != nil {
		return 0, fmt.Errorf("insert coach game: %w", err)
	}
	return id.Int64, nil
}

func (r *PostgresRepository) GetGameBySession(ctx context.Context, sessionUUID string) (*domain.GameRecord, error) {
	query := `SELECT` + selectColumns + ` FROM coach_games WHERE session_uuid = $1 ORDER BY ended_at DESC, id DESC LIMIT 1`
	game, err := scanGame(r.db.QueryRowContext(ctx, query, sessionUUID))
	if err == sql.ErrNoRows {
		return nil, ErrGameNotFound
	}
	return game, err
}

func (r *PostgresRepository) RecentGames(ctx context.Context, limit int) ([]*domain.GameRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT` + selectColumns + ` FROM coach_games ORDER BY ended_at DESC LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("select coach games: %w", err)
	}
	defer rows.Close()

	games := make([]*domain.GameRecord, 0, limit)
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, game)
	}
	return games, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*domain.GameRecord, error) {
	var (
		game         domain.GameRecord
		side         string
		movesUCIJSON []byte
		movesSANJSON []byte
		durationMS   sql.NullInt64
	)
	if err := row.Scan(
		&game.ID,
		&game.GameUUID,
		&game.SessionUUID,
		&side,
		&game.Result,
		&game.Termination,
		&movesUCIJSON,
		&movesSANJSON,
		&game.PGN,
		&game.Suggestions,
		&game.Fallbacks,
		&game.StartedAt,
		&game.EndedAt,
		&durationMS,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan coach game: %w", err)
	}
	game.HumanSide = domain.Color(side)
	if durationMS.Valid {
		game.Duration = time.Duration(durationMS.Int64) * time.Millisecond
	}
	if err := json.Unmarshal(movesUCIJSON, &game.MovesUCI); err != nil {
		return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
	}
	if err := json.Unmarshal(movesSANJSON, &game.MovesSAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	return &game, nil
}
