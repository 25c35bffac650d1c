package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/park285/cheese-coach/internal/chess/uci"
)

type OpponentMode string

const (
	OpponentManual OpponentMode = "manual"
	OpponentEngine OpponentMode = "engine"
	OpponentRandom OpponentMode = "random"
)

type AppConfig struct {
	EnginePath  string
	EngineWSURL string
	EngineArgs  []string
	EngineLevel string

	EngineDepth      int
	EngineMoveTimeMS int
	EngineNodes      int
	EngineThreads    int
	EngineHashMB     int
	EngineSkill      *int
	SuggestDeadline  time.Duration
	HandshakeTimeout time.Duration
	SuggestionsOn    bool
	OpponentMode     OpponentMode
	OpeningBookPath  string

	HTTPAddr    string
	RedisURL    string
	SessionTTL  time.Duration
	DatabaseURL string
	MessagesDir string
}

// HasEngine reports whether an analysis process is configured.
func (c *AppConfig) HasEngine() bool {
	return c.EnginePath != "" || c.EngineWSURL != ""
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		EngineDepth:      12,
		EngineMoveTimeMS: 1000,
		EngineThreads:    1,
		EngineHashMB:     16,
		SuggestDeadline:  5 * time.Second,
		HandshakeTimeout: 4 * time.Second,
		SuggestionsOn:    true,
		OpponentMode:     OpponentManual,
		HTTPAddr:         ":8088",
		SessionTTL:       time.Hour,
	}

	cfg.EnginePath = strings.TrimSpace(os.Getenv("ENGINE_PATH"))
	cfg.EngineWSURL = strings.TrimSpace(os.Getenv("ENGINE_WS_URL"))
	cfg.EngineArgs = strings.Fields(os.Getenv("ENGINE_ARGS"))

	// A level sets every engine knob; the individual keys below still override it.
	if v := strings.TrimSpace(os.Getenv("ENGINE_LEVEL")); v != "" {
		p, err := uci.LookupPreset(v)
		if err != nil {
			return nil, err
		}
		cfg.EngineLevel = p.Name
		cfg.EngineDepth = p.Depth
		cfg.EngineMoveTimeMS = p.MoveTimeMillis
		cfg.EngineNodes = p.Nodes
		cfg.EngineThreads = p.Threads
		cfg.EngineHashMB = p.HashMB
		cfg.EngineSkill = p.Options().SkillLevel
	}
	setInt(&cfg.EngineDepth, "ENGINE_DEPTH")
	setInt(&cfg.EngineMoveTimeMS, "ENGINE_MOVETIME_MS")
	setInt(&cfg.EngineNodes, "ENGINE_NODES")
	setInt(&cfg.EngineThreads, "ENGINE_THREADS")
	setInt(&cfg.EngineHashMB, "ENGINE_HASH_MB")
	if v := strings.TrimSpace(os.Getenv("ENGINE_SKILL")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 20 {
			return nil, fmt.Errorf("ENGINE_SKILL must be 0-20, got %q", v)
		}
		cfg.EngineSkill = &n
	}
	setMillis(&cfg.SuggestDeadline, "SUGGEST_DEADLINE_MS")
	setMillis(&cfg.HandshakeTimeout, "ENGINE_HANDSHAKE_TIMEOUT_MS")

	if v := strings.TrimSpace(os.Getenv("SUGGESTIONS_ENABLED")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SuggestionsOn = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("OPPONENT_MODE")); v != "" {
		cfg.OpponentMode = OpponentMode(strings.ToLower(v))
	}
	cfg.OpeningBookPath = strings.TrimSpace(os.Getenv("OPENING_BOOK_PATH"))

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))
	if v := strings.TrimSpace(os.Getenv("SESSION_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionTTL = time.Duration(n) * time.Second
		}
	}

	switch cfg.OpponentMode {
	case OpponentManual, OpponentEngine, OpponentRandom:
	default:
		return nil, fmt.Errorf("OPPONENT_MODE must be manual, engine or random, got %q", cfg.OpponentMode)
	}
	if cfg.EnginePath != "" && cfg.EngineWSURL != "" {
		return nil, fmt.Errorf("set only one of ENGINE_PATH and ENGINE_WS_URL")
	}
	return cfg, nil
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

func setMillis(dst *time.Duration, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = time.Duration(n) * time.Millisecond
		}
	}
}
