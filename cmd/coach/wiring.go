package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-coach/internal/chess/openingbook"
	"github.com/park285/cheese-coach/internal/chess/rules"
	"github.com/park285/cheese-coach/internal/chess/uci"
	"github.com/park285/cheese-coach/internal/config"
	"github.com/park285/cheese-coach/internal/msgcat"
	"github.com/park285/cheese-coach/internal/obslog"
	"github.com/park285/cheese-coach/internal/service/coach"
	"github.com/park285/cheese-coach/internal/suggest"
)

// app holds everything a command needs; close releases it in reverse order.
type app struct {
	logger  *zap.Logger
	cat     *msgcat.Catalog
	manager *coach.Manager
	bridge  *suggest.Bridge

	closers []func() error
}

func (a *app) close() {
	if a.manager != nil {
		a.manager.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
}

func engineDialer(c *config.AppConfig) uci.Dialer {
	switch {
	case c.EnginePath != "":
		return uci.ProcessDialer(c.EnginePath, c.EngineArgs...)
	case c.EngineWSURL != "":
		return uci.WebSocketDialer(c.EngineWSURL)
	default:
		return nil
	}
}

func bridgeConfig(c *config.AppConfig) suggest.Config {
	return suggest.Config{
		Deadline:         c.SuggestDeadline,
		HandshakeTimeout: c.HandshakeTimeout,
		Limits:           uci.Limits{Depth: c.EngineDepth, MoveTimeMillis: c.EngineMoveTimeMS, Nodes: c.EngineNodes},
		Options:          uci.Options{Threads: c.EngineThreads, HashMB: c.EngineHashMB, SkillLevel: c.EngineSkill},
	}
}

func newBridge(ctx context.Context, c *config.AppConfig, r *rules.Adapter, dial uci.Dialer, name string) *suggest.Bridge {
	b := suggest.NewBridge(dial, r, bridgeConfig(c), suggest.WithLogger(obslog.Named(name)))
	b.Initialize(ctx)
	return b
}

func buildApp(ctx context.Context, c *config.AppConfig) (*app, error) {
	a := &app{logger: obslog.L()}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	cat, err := msgcat.New(c.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("messages: %w", err)
	}
	a.cat = cat

	r := rules.New()
	a.bridge = newBridge(ctx, c, r, engineDialer(c), "suggest")
	a.closers = append(a.closers, a.bridge.Close)

	opponent, err := buildOpponent(ctx, a, c, r)
	if err != nil {
		return nil, err
	}

	opts := coach.ManagerOptions{
		Suggester:          a.bridge,
		Opponent:           opponent,
		SuggestionsEnabled: c.SuggestionsOn,
		Logger:             obslog.Named("coach"),
	}
	if c.RedisURL != "" {
		store, err := coach.DialRedisStore(ctx, c.RedisURL, c.SessionTTL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		opts.Store = store
	}
	if c.DatabaseURL != "" {
		repo, err := coach.NewPostgresRepository(ctx, c.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, repo.Close)
		opts.Repository = repo
	}
	a.manager = coach.NewManager(r, opts)

	a.logger.Info("coach ready",
		zap.Bool("engine", c.HasEngine()),
		zap.String("engine_level", c.EngineLevel),
		zap.String("opponent", string(c.OpponentMode)),
		zap.Bool("book", c.OpeningBookPath != ""),
		zap.Bool("redis", c.RedisURL != ""),
		zap.Bool("postgres", c.DatabaseURL != ""),
	)
	ok = true
	return a, nil
}

// buildOpponent returns nil in manual mode. The engine opponent gets its own process
// so that replies never queue behind suggestions.
func buildOpponent(ctx context.Context, a *app, c *config.AppConfig, r *rules.Adapter) (coach.Suggester, error) {
	var next coach.Suggester
	switch c.OpponentMode {
	case config.OpponentManual:
		return nil, nil
	case config.OpponentEngine:
		b := newBridge(ctx, c, r, engineDialer(c), "opponent")
		a.closers = append(a.closers, b.Close)
		next = b
	case config.OpponentRandom:
		b := newBridge(ctx, c, r, nil, "opponent")
		a.closers = append(a.closers, b.Close)
		next = b
	}
	if c.OpeningBookPath == "" {
		return next, nil
	}
	book, err := openingbook.Open(c.OpeningBookPath)
	if err != nil {
		return nil, err
	}
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	return openingbook.NewOpponent(book, r, next, rnd, obslog.Named("book")), nil
}
