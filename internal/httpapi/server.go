package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/park285/cheese-coach/internal/domain"
	"github.com/park285/cheese-coach/internal/intent"
	"github.com/park285/cheese-coach/internal/msgcat"
	"github.com/park285/cheese-coach/internal/service/coach"
	"github.com/park285/cheese-coach/pkg/coachdto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coach_http_requests_total",
		Help: "HTTP requests by route and status",
	}, []string{"route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coach_http_request_seconds",
		Help:    "HTTP request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

var errBadRequest = errors.New("bad request")

// Server exposes a coach.Manager over JSON.
type Server struct {
	mgr     *coach.Manager
	cat     *msgcat.Catalog
	logger  *zap.Logger
	metrics fasthttp.RequestHandler
	srv     *fasthttp.Server

	mu     sync.Mutex
	pipes  map[string]*intent.Pipeline
	owners map[string]*coach.Session
}

func New(mgr *coach.Manager, cat *msgcat.Catalog, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cat == nil {
		cat = msgcat.Must()
	}
	s := &Server{
		mgr:     mgr,
		cat:     cat,
		logger:  logger,
		metrics: fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()),
		pipes:   make(map[string]*intent.Pipeline),
		owners:  make(map[string]*coach.Session),
	}
	s.srv = &fasthttp.Server{
		Handler:      s.Handler(),
		Name:         "cheese-coach",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("http listening", zap.String("addr", addr))
	return s.srv.ListenAndServe(addr)
}

func (s *Server) Serve(ln net.Listener) error { return s.srv.Serve(ln) }

func (s *Server) Shutdown(ctx context.Context) error { return s.srv.ShutdownWithContext(ctx) }

// Handler returns the routing handler with request logging and metrics.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		route := s.route(ctx)
		status := ctx.Response.StatusCode()
		httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		httpLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
		s.logger.Debug("http request",
			zap.String("method", string(ctx.Method())),
			zap.String("path", string(ctx.Path())),
			zap.Int("status", status),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func (s *Server) route(ctx *fasthttp.RequestCtx) string {
	method := string(ctx.Method())
	parts := strings.Split(strings.Trim(string(ctx.Path()), "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] == "metrics" && method == fasthttp.MethodGet:
		s.metrics(ctx)
		return "metrics"
	case len(parts) == 1 && parts[0] == "healthz":
		writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
		return "healthz"
	case len(parts) == 1 && parts[0] == "games" && method == fasthttp.MethodGet:
		s.handleRecentGames(ctx)
		return "games"
	case len(parts) == 1 && parts[0] == "sessions" && method == fasthttp.MethodPost:
		s.handleCreate(ctx)
		return "create"
	case len(parts) == 2 && parts[0] == "sessions":
		switch method {
		case fasthttp.MethodGet:
			s.handleGet(ctx, parts[1])
			return "get"
		case fasthttp.MethodDelete:
			s.handleDelete(ctx, parts[1])
			return "delete"
		}
	case len(parts) == 3 && parts[0] == "sessions":
		id, action := parts[1], parts[2]
		if method == fasthttp.MethodGet {
			switch action {
			case "pgn":
				s.handleExport(ctx, id)
				return action
			case "archive":
				s.handleArchived(ctx, id)
				return action
			}
			break
		}
		if method != fasthttp.MethodPost {
			break
		}
		switch action {
		case "side":
			s.handleSide(ctx, id)
		case "moves":
			s.handleMove(ctx, id)
		case "jump":
			s.handleJump(ctx, id)
		case "back":
			s.handleNav(ctx, id, (*coach.Session).StepBack)
		case "forward":
			s.handleNav(ctx, id, (*coach.Session).StepForward)
		case "reset":
			s.handleReset(ctx, id)
		case "suggestions":
			s.handleToggle(ctx, id)
		case "tap":
			s.handleTap(ctx, id)
		case "press", "release":
			s.handlePointer(ctx, id, action)
		case "cancel":
			s.handleCancel(ctx, id)
		case "archive":
			s.handleArchive(ctx, id)
		default:
			writeJSON(ctx, fasthttp.StatusNotFound, coachdto.DomainError{Code: "not_found", Message: "no such route"})
			return "unknown"
		}
		return action
	}
	writeJSON(ctx, fasthttp.StatusNotFound, coachdto.DomainError{Code: "not_found", Message: "no such route"})
	return "unknown"
}

func (s *Server) handleCreate(ctx *fasthttp.RequestCtx) {
	sess, err := s.mgr.Create(ctx)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusCreated, sess.Snapshot())
}

func (s *Server) handleGet(ctx *fasthttp.RequestCtx, id string) {
	sess, err := s.mgr.Get(ctx, id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, sess.Snapshot())
}

func (s *Server) handleDelete(ctx *fasthttp.RequestCtx, id string) {
	s.mu.Lock()
	delete(s.pipes, id)
	delete(s.owners, id)
	s.mu.Unlock()
	if err := s.mgr.Delete(ctx, id); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func (s *Server) handleSide(ctx *fasthttp.RequestCtx, id string) {
	var req coachdto.SelectSideRequest
	if !decode(ctx, &req) {
		return
	}
	side, err := domain.ParseColor(req.Color)
	if err != nil {
		writeError(ctx, fmt.Errorf("%w: %v", coach.ErrInvalidSide, err))
		return
	}
	sess, err := s.mgr.Do(ctx, id, func(sess *coach.Session) error { return sess.SelectSide(ctx, side) })
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, sess.Snapshot())
}

func (s *Server) handleMove(ctx *fasthttp.RequestCtx, id string) {
	var req coachdto.MoveRequest
	if !decode(ctx, &req) {
		return
	}
	from, errFrom := domain.ParseSquare(req.From)
	to, errTo := domain.ParseSquare(req.To)
	promo, errPromo := domain.ParsePieceKind(req.Promotion)
	if err := errors.Join(errFrom, errTo, errPromo); err != nil {
		writeError(ctx, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	var out coach.MoveOutcome
	sess, err := s.mgr.Do(ctx, id, func(sess *coach.Session) error {
		var playErr error
		out, playErr = sess.Play(ctx, from, to, promo)
		return playErr
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	snap := sess.Snapshot()
	resp := coachdto.MoveResponse{
		Session:   snap,
		Discarded: out.Discarded,
	}
	ply := findPly(snap.Moves, out.Move)
	if ply >= 0 {
		resp.Move = snap.Moves[ply]
	}
	if out.Reply != nil {
		if i := findPly(snap.Moves, *out.Reply); i >= 0 {
			m := snap.Moves[i]
			resp.Reply = &m
		}
	}
	if out.Discarded > 0 {
		resp.Notice = s.cat.Text("timeline.branch_discarded",
			map[string]any{"Cursor": ply, "Discarded": out.Discarded},
			fmt.Sprintf("%d later move(s) discarded", out.Discarded))
	}
	writeJSON(ctx, fasthttp.StatusOK, resp)
}

func (s *Server) handleJump(ctx *fasthttp.RequestCtx, id string) {
	var req coachdto.JumpRequest
	if !decode(ctx, &req) {
		return
	}
	s.handleNav(ctx, id, func(sess *coach.Session) error { return sess.JumpTo(req.Index) })
}

func (s *Server) handleNav(ctx *fasthttp.RequestCtx, id string, op func(*coach.Session) error) {
	sess, err := s.mgr.Do(ctx, id, op)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, sess.Snapshot())
}

func (s *Server) handleReset(ctx *fasthttp.RequestCtx, id string) {
	s.handleNav(ctx, id, func(sess *coach.Session) error {
		s.pipeline(sess).Cancel()
		sess.Reset()
		return nil
	})
}

func (s *Server) handleToggle(ctx *fasthttp.RequestCtx, id string) {
	var req coachdto.ToggleRequest
	if !decode(ctx, &req) {
		return
	}
	s.handleNav(ctx, id, func(sess *coach.Session) error {
		sess.SetSuggestionsEnabled(req.Enabled)
		return nil
	})
}

func (s *Server) handleExport(ctx *fasthttp.RequestCtx, id string) {
	sess, err := s.mgr.Get(ctx, id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, coachdto.ExportResponse{Movetext: sess.Movetext(), PGN: sess.PGN()})
}

func (s *Server) handleArchive(ctx *fasthttp.RequestCtx, id string) {
	sess, err := s.mgr.Get(ctx, id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if _, err := s.mgr.Archive(ctx, sess); err != nil {
		writeError(ctx, err)
		return
	}
	s.handleArchived(ctx, id)
}

func (s *Server) handleArchived(ctx *fasthttp.RequestCtx, id string) {
	rec, err := s.mgr.ArchivedGame(ctx, id)
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, gameDTO(rec))
}

func (s *Server) handleRecentGames(ctx *fasthttp.RequestCtx) {
	limit := ctx.QueryArgs().GetUintOrZero("limit")
	games, err := s.mgr.RecentGames(ctx, limit)
	if err != nil {
		writeError(ctx, err)
		return
	}
	out := make([]coachdto.ArchivedGame, 0, len(games))
	for _, g := range games {
		out = append(out, gameDTO(g))
	}
	writeJSON(ctx, fasthttp.StatusOK, out)
}

func gameDTO(g *domain.GameRecord) coachdto.ArchivedGame {
	return coachdto.ArchivedGame{
		ID:          g.ID,
		GameID:      g.GameUUID,
		SessionID:   g.SessionUUID,
		HumanSide:   string(g.HumanSide),
		Result:      g.Result,
		Termination: g.Termination,
		MovesUCI:    g.MovesUCI,
		MovesSAN:    g.MovesSAN,
		PGN:         g.PGN,
		Suggestions: g.Suggestions,
		Fallbacks:   g.Fallbacks,
		StartedAt:   g.StartedAt,
		EndedAt:     g.EndedAt,
	}
}

func findPly(moves []coachdto.Move, mv domain.Move) int {
	for i := len(moves) - 1; i >= 0; i-- {
		if moves[i].UCI == mv.UCI() && moves[i].Side == string(mv.Side) {
			return i
		}
	}
	return -1
}

func decode(ctx *fasthttp.RequestCtx, v any) bool {
	body := ctx.PostBody()
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(ctx, fmt.Errorf("%w: %v", errBadRequest, err))
		return false
	}
	return true
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		ctx.Error("encode response", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(raw)
}

func writeError(ctx *fasthttp.RequestCtx, err error) {
	status, code := classify(err)
	writeJSON(ctx, status, coachdto.DomainError{Code: code, Message: err.Error()})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, coach.ErrSessionNotFound), errors.Is(err, coach.ErrGameNotFound):
		return fasthttp.StatusNotFound, "not_found"
	case errors.Is(err, coach.ErrIllegalMove):
		return fasthttp.StatusUnprocessableEntity, "illegal_move"
	case errors.Is(err, coach.ErrOutOfRange):
		return fasthttp.StatusConflict, "out_of_range"
	case errors.Is(err, coach.ErrGameOver):
		return fasthttp.StatusConflict, "game_over"
	case errors.Is(err, coach.ErrSideNotSelected):
		return fasthttp.StatusConflict, "side_not_selected"
	case errors.Is(err, coach.ErrSideAlreadySelected):
		return fasthttp.StatusConflict, "side_already_selected"
	case errors.Is(err, coach.ErrDuplicateGame):
		return fasthttp.StatusConflict, "already_archived"
	case errors.Is(err, coach.ErrInvalidSide), errors.Is(err, errBadRequest):
		return fasthttp.StatusBadRequest, "bad_request"
	default:
		return fasthttp.StatusInternalServerError, "internal"
	}
}
