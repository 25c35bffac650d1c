package httpapi

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/cheese-coach/internal/chess/rules"
	"github.com/park285/cheese-coach/internal/msgcat"
	"github.com/park285/cheese-coach/internal/service/coach"
	"github.com/park285/cheese-coach/pkg/coachdto"
)

func newTestAPI(t *testing.T) *Client {
	t.Helper()
	mgr := coach.NewManager(rules.New(), coach.ManagerOptions{})
	srv := New(mgr, msgcat.Must(), nil)

	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		_ = ln.Close()
		mgr.Close()
	})
	return NewClient("http://coach.test", WithDial(InmemoryDial(ln.Dial)), WithRetry(1))
}

func newPlayingSession(t *testing.T, c *Client, color string) string {
	t.Helper()
	ctx := context.Background()
	sess, err := c.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sess.Phase != string(coach.PhaseAwaitingSide) {
		t.Fatalf("new session should await side selection, got %s", sess.Phase)
	}
	if _, err := c.SelectSide(ctx, sess.ID, color); err != nil {
		t.Fatalf("select side: %v", err)
	}
	return sess.ID
}

func expectStatus(t *testing.T, err error, status int, code string) {
	t.Helper()
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != status || apiErr.Code != code {
		t.Fatalf("expected %d/%s, got %d/%s", status, code, apiErr.Status, apiErr.Code)
	}
}

func TestMoveFlow(t *testing.T) {
	c := newTestAPI(t)
	ctx := context.Background()
	id := newPlayingSession(t, c, "white")

	resp, err := c.Move(ctx, id, coachdto.MoveRequest{From: "e2", To: "e4"})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if resp.Move.SAN != "e4" || resp.Session.Cursor != 0 || resp.Reply != nil {
		t.Fatalf("unexpected move response %+v", resp)
	}

	_, err = c.Move(ctx, id, coachdto.MoveRequest{From: "e7", To: "e4"})
	expectStatus(t, err, fasthttp.StatusUnprocessableEntity, "illegal_move")

	sess, err := c.Session(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(sess.Moves) != 1 || sess.SideToMove != "black" {
		t.Fatalf("illegal move must not change the game: %+v", sess)
	}
}

func TestBranchNotice(t *testing.T) {
	c := newTestAPI(t)
	ctx := context.Background()
	id := newPlayingSession(t, c, "white")
	for _, mv := range [][2]string{{"e2", "e4"}, {"e7", "e5"}, {"g1", "f3"}} {
		if _, err := c.Move(ctx, id, coachdto.MoveRequest{From: mv[0], To: mv[1]}); err != nil {
			t.Fatalf("move %v: %v", mv, err)
		}
	}
	sess, err := c.Jump(ctx, id, 0)
	if err != nil {
		t.Fatalf("jump: %v", err)
	}
	if sess.Discardable != 2 {
		t.Fatalf("expected 2 discardable moves, got %d", sess.Discardable)
	}
	resp, err := c.Move(ctx, id, coachdto.MoveRequest{From: "c7", To: "c5"})
	if err != nil {
		t.Fatalf("branch: %v", err)
	}
	if resp.Discarded != 2 || !strings.Contains(resp.Notice, "discarded 2") {
		t.Fatalf("expected truncation notice, got %+v", resp)
	}
}

func TestNavigationErrors(t *testing.T) {
	c := newTestAPI(t)
	ctx := context.Background()
	id := newPlayingSession(t, c, "white")

	_, err := c.Jump(ctx, id, 5)
	expectStatus(t, err, fasthttp.StatusConflict, "out_of_range")
	_, err = c.Back(ctx, id)
	expectStatus(t, err, fasthttp.StatusConflict, "out_of_range")
	_, err = c.Session(ctx, "missing")
	expectStatus(t, err, fasthttp.StatusNotFound, "not_found")
	_, err = c.SelectSide(ctx, id, "black")
	expectStatus(t, err, fasthttp.StatusConflict, "side_already_selected")

	fresh, err := c.CreateSession(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = c.SelectSide(ctx, fresh.ID, "purple")
	expectStatus(t, err, fasthttp.StatusBadRequest, "bad_request")
	_, err = c.Move(ctx, fresh.ID, coachdto.MoveRequest{From: "z9", To: "e4"})
	expectStatus(t, err, fasthttp.StatusBadRequest, "bad_request")
}

func TestTapIntents(t *testing.T) {
	c := newTestAPI(t)
	ctx := context.Background()
	id := newPlayingSession(t, c, "white")

	ev, err := c.Tap(ctx, id, "e7")
	if err != nil {
		t.Fatalf("tap: %v", err)
	}
	if ev.Armed != "" {
		t.Fatalf("opponent piece must not arm, got %q", ev.Armed)
	}
	if ev, err = c.Tap(ctx, id, "e2"); err != nil || ev.Armed != "e2" {
		t.Fatalf("expected e2 armed, got %+v %v", ev, err)
	}
	ev, err = c.Tap(ctx, id, "e5")
	if err != nil {
		t.Fatalf("tap: %v", err)
	}
	if !ev.Attempted || ev.Accepted || len(ev.Session.Moves) != 0 {
		t.Fatalf("illegal target should be attempted and swallowed: %+v", ev)
	}
	if _, err = c.Tap(ctx, id, "e2"); err != nil {
		t.Fatalf("tap: %v", err)
	}
	ev, err = c.Tap(ctx, id, "e4")
	if err != nil {
		t.Fatalf("tap: %v", err)
	}
	if !ev.Accepted || len(ev.Session.Moves) != 1 {
		t.Fatalf("expected accepted move, got %+v", ev)
	}
}

func TestDragIntents(t *testing.T) {
	c := newTestAPI(t)
	ctx := context.Background()
	id := newPlayingSession(t, c, "white")

	press := coachdto.PointerRequest{X: 450, Y: 650, Size: 800}
	ev, err := c.Press(ctx, id, press)
	if err != nil || ev.Armed != "e2" {
		t.Fatalf("expected e2 armed by press, got %+v %v", ev, err)
	}
	ev, err = c.Release(ctx, id, coachdto.PointerRequest{X: 450, Y: 450})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if !ev.Accepted || ev.Session.Moves[0].UCI != "e2e4" {
		t.Fatalf("expected e2e4 from drag, got %+v", ev)
	}
}

func TestExportAndArchive(t *testing.T) {
	c := newTestAPI(t)
	ctx := context.Background()
	id := newPlayingSession(t, c, "white")
	for _, mv := range [][2]string{{"f2", "f3"}, {"e7", "e5"}, {"g2", "g4"}, {"d8", "h4"}} {
		if _, err := c.Move(ctx, id, coachdto.MoveRequest{From: mv[0], To: mv[1]}); err != nil {
			t.Fatalf("move %v: %v", mv, err)
		}
	}
	exp, err := c.Export(ctx, id)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasPrefix(exp.Movetext, "1. f3 e5 2. g4 Qh4") {
		t.Fatalf("unexpected movetext %q", exp.Movetext)
	}
	games, err := c.RecentGames(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(games) != 1 || games[0].Result != "0-1" {
		t.Fatalf("finished game should be archived automatically: %+v", games)
	}
	_, err = c.Archive(ctx, id)
	expectStatus(t, err, fasthttp.StatusConflict, "already_archived")
}

func TestSuggestionsToggle(t *testing.T) {
	c := newTestAPI(t)
	ctx := context.Background()
	id := newPlayingSession(t, c, "white")
	sess, err := c.SetSuggestions(ctx, id, false)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if sess.SuggestionsEnabled || sess.Suggestion != nil {
		t.Fatalf("suggestions should be off: %+v", sess)
	}
}
