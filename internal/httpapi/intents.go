package httpapi

import (
	"fmt"

	"github.com/valyala/fasthttp"

	"github.com/park285/cheese-coach/internal/domain"
	"github.com/park285/cheese-coach/internal/intent"
	"github.com/park285/cheese-coach/internal/service/coach"
	"github.com/park285/cheese-coach/pkg/coachdto"
)

// pipeline returns the gesture state for a session, creating it on first use.
// A live session replaced after a restart gets a fresh pipeline.
func (s *Server) pipeline(sess *coach.Session) *intent.Pipeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pipes[sess.ID()]; ok && s.owners[sess.ID()] == sess {
		return p
	}
	p := intent.NewPipeline(sess, sess, intent.Geometry{Size: 8}, s.logger)
	s.pipes[sess.ID()] = p
	s.owners[sess.ID()] = sess
	return p
}

func (s *Server) handleTap(ctx *fasthttp.RequestCtx, id string) {
	var req coachdto.TapRequest
	if !decode(ctx, &req) {
		return
	}
	sq, err := domain.ParseSquare(req.Square)
	if err != nil {
		writeError(ctx, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	s.runIntent(ctx, id, func(p *intent.Pipeline) intent.Event { return p.Tap(sq) })
}

func (s *Server) handlePointer(ctx *fasthttp.RequestCtx, id, action string) {
	var req coachdto.PointerRequest
	if !decode(ctx, &req) {
		return
	}
	s.runIntent(ctx, id, func(p *intent.Pipeline) intent.Event {
		if req.Size > 0 {
			p.SetGeometry(intent.Geometry{
				OriginX: req.OriginX,
				OriginY: req.OriginY,
				Size:    req.Size,
				Flipped: req.Flipped,
			})
		}
		if action == "press" {
			return p.Press(req.X, req.Y)
		}
		return p.Release(req.X, req.Y)
	})
}

func (s *Server) handleCancel(ctx *fasthttp.RequestCtx, id string) {
	s.runIntent(ctx, id, func(p *intent.Pipeline) intent.Event {
		p.Cancel()
		return intent.Event{}
	})
}

// runIntent feeds one gesture through the session's pipeline. Rejected attempts are
// not errors: the response reports Attempted without Accepted.
func (s *Server) runIntent(ctx *fasthttp.RequestCtx, id string, fn func(*intent.Pipeline) intent.Event) {
	var ev intent.Event
	sess, err := s.mgr.Do(ctx, id, func(sess *coach.Session) error {
		ev = fn(s.pipeline(sess))
		return nil
	})
	if err != nil {
		writeError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, coachdto.IntentResponse{
		Armed:     string(ev.Armed),
		Attempted: ev.Attempted,
		Accepted:  ev.Accepted,
		Session:   sess.Snapshot(),
	})
}
