package suggest

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/cheese-coach/internal/chess/rules"
	"github.com/park285/cheese-coach/internal/chess/uci"
	"github.com/park285/cheese-coach/internal/domain"
)

const (
	defaultDeadline         = 5 * time.Second
	defaultHandshakeTimeout = 4 * time.Second
	defaultDepth            = 12
	defaultMoveTime         = 1000
	maxPending              = 32
)

var (
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrSuggestionTimeout = errors.New("suggestion timed out")
	ErrMalformedResponse = errors.New("malformed engine response")
	ErrBridgeClosed      = errors.New("bridge closed")
)

type State int32

const (
	Uninitialized State = iota
	Initializing
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type Source string

const (
	SourceEngine   Source = "engine"
	SourceFallback Source = "fallback"
	SourceNone     Source = "none"
	SourceBook     Source = "book"
)

// Fallback reasons reported in Result.Reason.
const (
	ReasonTimeout     = "timeout"
	ReasonUnavailable = "unavailable"
	ReasonMalformed   = "malformed"
	ReasonIllegal     = "illegal"
	ReasonBusy        = "busy"
	ReasonCanceled    = "canceled"
	ReasonNoMoves     = "no_moves"
)

// Rules is what the bridge needs from the rules adapter.
type Rules interface {
	LegalMoves(pos rules.Position, from domain.Square) []domain.Move
	Lookup(pos rules.Position, uci string) (domain.Move, error)
	CompactState(pos rules.Position) string
}

type Config struct {
	Deadline         time.Duration
	HandshakeTimeout time.Duration
	Limits           uci.Limits
	Options          uci.Options
}

func (c Config) withDefaults() Config {
	if c.Deadline <= 0 {
		c.Deadline = defaultDeadline
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.Limits.Depth <= 0 && c.Limits.MoveTimeMillis <= 0 && c.Limits.Nodes <= 0 {
		c.Limits = uci.Limits{Depth: defaultDepth, MoveTimeMillis: defaultMoveTime}
	}
	return c
}

// Request correlates one outstanding query.
type Request struct {
	ID           string
	Seq          uint64
	CompactState string
	IssuedAt     time.Time
}

type Result struct {
	Move      *domain.Move
	Source    Source
	Reason    string
	RequestID string
	Seq       uint64
	Latency   time.Duration
}

type Option func(*Bridge)

func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

func WithRandSource(src rand.Source) Option {
	return func(b *Bridge) {
		if src != nil {
			b.rand = rand.New(src)
		}
	}
}

// Bridge owns one analysis process handle for its whole lifetime.
type Bridge struct {
	dial   uci.Dialer
	rules  Rules
	cfg    Config
	logger *zap.Logger

	state      atomic.Int32
	initOnce   sync.Once
	closeOnce  sync.Once
	failOnce   sync.Once
	ready      chan struct{}
	uciOK      chan struct{}
	readyOK    chan struct{}
	cause      error
	engineName string

	mu        sync.Mutex
	transport uci.Transport
	waiters   []chan string
	closed    bool
	seq       atomic.Uint64

	sendMu sync.Mutex

	randMu sync.Mutex
	rand   *rand.Rand
}

// NewBridge builds an uninitialized bridge. A nil dialer yields a bridge that
// always answers from the fallback chooser.
func NewBridge(dial uci.Dialer, r Rules, cfg Config, opts ...Option) *Bridge {
	b := &Bridge{
		dial:    dial,
		rules:   r,
		cfg:     cfg.withDefaults(),
		logger:  zap.NewNop(),
		ready:   make(chan struct{}),
		uciOK:   make(chan struct{}, 1),
		readyOK: make(chan struct{}, 1),
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bridge) State() State { return State(b.state.Load()) }

// Cause returns why the handle failed, or nil.
func (b *Bridge) Cause() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cause
}

func (b *Bridge) EngineName() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.engineName
}

// Ready is closed once the handshake has settled, successfully or not.
func (b *Bridge) Ready() <-chan struct{} { return b.ready }

func (b *Bridge) random() *rand.Rand {
	b.randMu.Lock()
	seed := b.rand.Int63()
	b.randMu.Unlock()
	return rand.New(rand.NewSource(seed))
}

// Initialize starts the handshake once. Later calls return immediately.
func (b *Bridge) Initialize(ctx context.Context) {
	b.initOnce.Do(func() {
		if !b.state.CompareAndSwap(int32(Uninitialized), int32(Initializing)) {
			return
		}
		if b.dial == nil {
			b.fail(fmt.Errorf("%w: no engine configured", ErrEngineUnavailable))
			return
		}
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.cfg.HandshakeTimeout)
		go func() {
			defer cancel()
			b.handshake(hctx)
		}()
	})
}

func (b *Bridge) handshake(ctx context.Context) {
	tr, err := b.dial(ctx)
	if err != nil {
		b.fail(fmt.Errorf("%w: %v", ErrEngineUnavailable, err))
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		_ = tr.Close()
		b.fail(ErrBridgeClosed)
		return
	}
	b.transport = tr
	b.mu.Unlock()

	done := make(chan struct{})
	go b.dispatch(tr, done)

	if err := tr.Send(uci.CmdUCI); err != nil {
		b.fail(fmt.Errorf("%w: send uci: %v", ErrEngineUnavailable, err))
		return
	}
	if err := b.await(ctx, b.uciOK, done); err != nil {
		b.fail(fmt.Errorf("%w: wait uciok: %v", ErrEngineUnavailable, err))
		return
	}
	for _, cmd := range uci.OptionCommands(b.cfg.Options) {
		if err := tr.Send(cmd); err != nil {
			b.fail(fmt.Errorf("%w: apply options: %v", ErrEngineUnavailable, err))
			return
		}
	}
	if err := tr.Send(uci.CmdIsReady); err != nil {
		b.fail(fmt.Errorf("%w: send isready: %v", ErrEngineUnavailable, err))
		return
	}
	if err := b.await(ctx, b.readyOK, done); err != nil {
		b.fail(fmt.Errorf("%w: wait readyok: %v", ErrEngineUnavailable, err))
		return
	}

	if b.state.CompareAndSwap(int32(Initializing), int32(Ready)) {
		close(b.ready)
		b.logger.Info("engine ready", zap.String("engine", b.EngineName()))
	}
}

func (b *Bridge) await(ctx context.Context, token <-chan struct{}, done <-chan struct{}) error {
	select {
	case <-token:
		return nil
	case <-done:
		return errors.New("channel closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dispatch is the single reader of the process channel.
func (b *Bridge) dispatch(tr uci.Transport, done chan struct{}) {
	defer close(done)
	for line := range tr.Lines() {
		switch {
		case uci.IsUCIOK(line):
			signal(b.uciOK)
		case uci.IsReadyOK(line):
			signal(b.readyOK)
		default:
			if name, ok := uci.ParseID(line); ok {
				b.mu.Lock()
				b.engineName = name
				b.mu.Unlock()
				continue
			}
			if _, ok := uci.ParseBestMove(line); ok {
				b.deliver(line)
			}
		}
	}
	b.fail(fmt.Errorf("%w: channel closed", ErrEngineUnavailable))
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// deliver hands a bestmove line to the oldest waiter. Answers without a waiter are dropped.
func (b *Bridge) deliver(line string) {
	b.mu.Lock()
	if len(b.waiters) == 0 {
		b.mu.Unlock()
		b.logger.Debug("dropping unsolicited bestmove", zap.String("line", line))
		return
	}
	w := b.waiters[0]
	b.waiters = b.waiters[1:]
	b.mu.Unlock()
	w <- line
}

// fail moves the handle to Failed. The first cause wins.
func (b *Bridge) fail(cause error) {
	b.failOnce.Do(func() {
		prev := State(b.state.Swap(int32(Failed)))

		b.mu.Lock()
		b.cause = cause
		tr := b.transport
		waiters := b.waiters
		b.waiters = nil
		b.mu.Unlock()

		for _, w := range waiters {
			close(w)
		}
		if prev != Ready {
			close(b.ready)
		}
		if tr != nil {
			_ = tr.Close()
		}
		label := "unavailable"
		if errors.Is(cause, ErrBridgeClosed) {
			label = "closed"
		} else {
			b.logger.Warn("engine handle failed; suggestions fall back", zap.Error(cause))
		}
		bridgeFailures.WithLabelValues(label).Inc()
	})
}

// LatestSeq returns the sequence number of the most recently issued request.
func (b *Bridge) LatestSeq() uint64 { return b.seq.Load() }

// Suggest resolves to a move for the side to move within the configured deadline.
// It never fails: the fallback chooser answers whenever the process cannot.
// Move is nil only when pos has no legal moves.
func (b *Bridge) Suggest(ctx context.Context, pos rules.Position) Result {
	start := time.Now()
	req := Request{
		ID:           uuid.NewString(),
		Seq:          b.seq.Add(1),
		CompactState: b.rules.CompactState(pos),
		IssuedAt:     start,
	}
	legal := b.rules.LegalMoves(pos, "")
	if len(legal) == 0 {
		return b.finish(req, Result{Source: SourceNone, Reason: ReasonNoMoves})
	}

	b.Initialize(ctx)
	timer := time.NewTimer(b.cfg.Deadline)
	defer timer.Stop()

	select {
	case <-b.ready:
	case <-timer.C:
		return b.fallback(req, legal, ReasonTimeout)
	case <-ctx.Done():
		return b.fallback(req, legal, ReasonCanceled)
	}
	if b.State() != Ready {
		return b.fallback(req, legal, ReasonUnavailable)
	}

	waiter, reason := b.submit(req)
	if waiter == nil {
		return b.fallback(req, legal, reason)
	}

	select {
	case line, ok := <-waiter:
		if !ok {
			return b.fallback(req, legal, ReasonUnavailable)
		}
		bm, _ := uci.ParseBestMove(line)
		if bm.None || !uci.ValidCoordinateMove(bm.Move) {
			b.logger.Warn("malformed engine answer", zap.String("request_id", req.ID), zap.String("line", line))
			return b.fallback(req, legal, ReasonMalformed)
		}
		mv, err := b.rules.Lookup(pos, bm.Move)
		if err != nil {
			b.logger.Warn("engine answered an illegal move", zap.String("request_id", req.ID), zap.String("move", bm.Move))
			return b.fallback(req, legal, ReasonIllegal)
		}
		return b.finish(req, Result{Move: &mv, Source: SourceEngine})
	case <-timer.C:
		return b.fallback(req, legal, ReasonTimeout)
	case <-ctx.Done():
		return b.fallback(req, legal, ReasonCanceled)
	}
}

// submit registers a waiter and sends the round-trip commands. The waiter is queued
// before "go" is written so the answer always finds it.
func (b *Bridge) submit(req Request) (chan string, string) {
	goCmd, err := uci.GoCommand(b.cfg.Limits)
	if err != nil {
		return nil, ReasonUnavailable
	}

	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	b.mu.Lock()
	if b.closed || b.transport == nil || b.State() != Ready {
		b.mu.Unlock()
		return nil, ReasonUnavailable
	}
	if len(b.waiters) >= maxPending {
		b.mu.Unlock()
		return nil, ReasonBusy
	}
	tr := b.transport
	w := make(chan string, 1)
	b.waiters = append(b.waiters, w)
	b.mu.Unlock()

	if err := tr.Send(uci.PositionCommand(req.CompactState)); err != nil {
		b.fail(fmt.Errorf("%w: send position: %v", ErrEngineUnavailable, err))
		return nil, ReasonUnavailable
	}
	if err := tr.Send(goCmd); err != nil {
		b.fail(fmt.Errorf("%w: send go: %v", ErrEngineUnavailable, err))
		return nil, ReasonUnavailable
	}
	return w, ""
}

func (b *Bridge) fallback(req Request, legal []domain.Move, reason string) Result {
	mv, ok := Choose(legal, b.random())
	if !ok {
		return b.finish(req, Result{Source: SourceNone, Reason: ReasonNoMoves})
	}
	return b.finish(req, Result{Move: &mv, Source: SourceFallback, Reason: reason})
}

func (b *Bridge) finish(req Request, res Result) Result {
	res.RequestID = req.ID
	res.Seq = req.Seq
	res.Latency = time.Since(req.IssuedAt)
	observe(res)
	if ce := b.logger.Check(zap.DebugLevel, "suggestion resolved"); ce != nil {
		fields := []zap.Field{
			zap.String("request_id", req.ID),
			zap.Uint64("seq", req.Seq),
			zap.String("source", string(res.Source)),
			zap.String("reason", res.Reason),
			zap.Duration("latency", res.Latency),
			zap.Bool("superseded", b.seq.Load() != req.Seq),
		}
		if res.Move != nil {
			fields = append(fields, zap.String("move", res.Move.UCI()))
		}
		ce.Write(fields...)
	}
	return res
}

// Stop asks the process to end the current search. Best effort.
func (b *Bridge) Stop() {
	b.mu.Lock()
	tr := b.transport
	closed := b.closed
	b.mu.Unlock()
	if tr == nil || closed {
		return
	}
	_ = tr.Send(uci.CmdStop)
}

// Close sends quit and releases the handle. Safe to call repeatedly.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		tr := b.transport
		b.mu.Unlock()
		if tr != nil {
			_ = tr.Send(uci.CmdQuit)
		}
		b.fail(ErrBridgeClosed)
	})
	return nil
}
