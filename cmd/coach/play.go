package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/cheese-coach/internal/httpapi"
	"github.com/park285/cheese-coach/internal/msgcat"
	"github.com/park285/cheese-coach/internal/obslog"
	"github.com/park285/cheese-coach/pkg/coachdto"
)

const playHelp = `commands:
  e2e4 | e2 e4 | e7e8n   play a move (promotion defaults to queen)
  back | fwd | jump N    move through the game
  side white|black       choose your side
  hint on|off            toggle suggestions
  show | pgn | reset     show the position, export, start over
  quit`

func runPlay(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	client, cat, cleanup, err := connect(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	c := &console{
		client: client,
		cat:    cat,
		out:    cmd.OutOrStdout(),
		wait:   cfg.SuggestDeadline + 500*time.Millisecond,
	}
	return c.run(ctx, cmd.InOrStdin(), playSide)
}

// connect returns a client for --server, or for an in-process coach behind an
// in-memory listener.
func connect(ctx context.Context) (*httpapi.Client, *msgcat.Catalog, func(), error) {
	if serverURL != "" {
		cat, err := msgcat.New(cfg.MessagesDir)
		if err != nil {
			return nil, nil, nil, err
		}
		return httpapi.NewClient(serverURL), cat, func() {}, nil
	}

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	srv := httpapi.New(a.manager, a.cat, obslog.Named("http"))
	ln := fasthttputil.NewInmemoryListener()
	go func() { _ = srv.Serve(ln) }()

	cleanup := func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
		_ = ln.Close()
		a.close()
	}
	client := httpapi.NewClient("http://coach.local", httpapi.WithDial(httpapi.InmemoryDial(ln.Dial)))
	return client, a.cat, cleanup, nil
}

type console struct {
	client *httpapi.Client
	cat    *msgcat.Catalog
	out    io.Writer
	wait   time.Duration // how long a pending suggestion is polled for

	id string
}

func (c *console) say(key string, data any, fallback string) {
	fmt.Fprintln(c.out, c.cat.Text(key, data, fallback))
}

func (c *console) run(ctx context.Context, in io.Reader, side string) error {
	sess, err := c.client.CreateSession(ctx)
	if err != nil {
		return err
	}
	c.id = sess.ID
	c.say("session.created", map[string]any{"ID": sess.ID}, "Session "+sess.ID+" created.")
	if side != "" {
		if _, err := c.exec(ctx, "side "+side); err != nil {
			return err
		}
	}

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(c.out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(c.out)
			return sc.Err()
		}
		quit, err := c.exec(ctx, sc.Text())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.report(err)
		}
		if quit {
			return nil
		}
	}
}

// exec runs one console line. Domain rejections come back as errors for report.
func (c *console) exec(ctx context.Context, line string) (bool, error) {
	f := strings.Fields(strings.ToLower(line))
	if len(f) == 0 {
		return false, nil
	}
	switch f[0] {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		fmt.Fprintln(c.out, playHelp)
		return false, nil
	case "side":
		if len(f) != 2 {
			return false, errors.New("usage: side white|black")
		}
		sess, err := c.client.SelectSide(ctx, c.id, f[1])
		if err != nil {
			return false, err
		}
		c.say("session.side_selected", map[string]any{"Side": sess.HumanSide}, "You play "+sess.HumanSide+".")
		return false, c.show(ctx, sess)
	case "back", "b":
		return false, c.navigate(ctx, c.client.Back)
	case "fwd", "forward", "f":
		return false, c.navigate(ctx, c.client.Forward)
	case "jump", "j":
		if len(f) != 2 {
			return false, errors.New("usage: jump N")
		}
		n, err := strconv.Atoi(f[1])
		if err != nil {
			return false, fmt.Errorf("jump: %w", err)
		}
		// N counts played moves; the API cursor is the index of the last one.
		err = c.navigate(ctx, func(ctx context.Context, id string) (*coachdto.Session, error) {
			return c.client.Jump(ctx, id, n-1)
		})
		var apiErr *httpapi.APIError
		if errors.As(err, &apiErr) && apiErr.Code == "out_of_range" {
			c.say("timeline.out_of_range", map[string]any{"Index": n}, apiErr.Message)
			return false, nil
		}
		return false, err
	case "hint":
		if len(f) != 2 || (f[1] != "on" && f[1] != "off") {
			return false, errors.New("usage: hint on|off")
		}
		sess, err := c.client.SetSuggestions(ctx, c.id, f[1] == "on")
		if err != nil {
			return false, err
		}
		return false, c.show(ctx, sess)
	case "reset":
		sess, err := c.client.Reset(ctx, c.id)
		if err != nil {
			return false, err
		}
		c.say("session.reset", nil, "Board reset.")
		return false, c.show(ctx, sess)
	case "show":
		sess, err := c.client.Session(ctx, c.id)
		if err != nil {
			return false, err
		}
		return false, c.show(ctx, sess)
	case "pgn":
		exp, err := c.client.Export(ctx, c.id)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(c.out, exp.PGN)
		return false, nil
	}

	req, ok := parseMove(f)
	if !ok {
		return false, fmt.Errorf("unknown command %q (try help)", line)
	}
	resp, err := c.client.Move(ctx, c.id, req)
	if err != nil {
		var apiErr *httpapi.APIError
		if errors.As(err, &apiErr) && apiErr.Code == "illegal_move" {
			c.say("move.illegal", map[string]any{"From": req.From, "To": req.To}, "illegal move")
			return false, nil
		}
		return false, err
	}
	if resp.Notice != "" {
		fmt.Fprintln(c.out, resp.Notice)
	}
	if resp.Reply != nil {
		c.say("move.reply", map[string]any{"SAN": resp.Reply.SAN}, "Opponent plays "+resp.Reply.SAN+".")
	}
	return false, c.show(ctx, &resp.Session)
}

func (c *console) navigate(ctx context.Context, op func(context.Context, string) (*coachdto.Session, error)) error {
	sess, err := op(ctx, c.id)
	if err != nil {
		return err
	}
	return c.show(ctx, sess)
}

// parseMove accepts "e2e4", "e7e8q", "e2 e4" and "e7 e8 q".
func parseMove(f []string) (coachdto.MoveRequest, bool) {
	switch {
	case len(f) == 1 && (len(f[0]) == 4 || len(f[0]) == 5):
		return coachdto.MoveRequest{From: f[0][:2], To: f[0][2:4], Promotion: f[0][4:]}, true
	case len(f) == 2 && len(f[0]) == 2 && len(f[1]) == 2:
		return coachdto.MoveRequest{From: f[0], To: f[1]}, true
	case len(f) == 3 && len(f[0]) == 2 && len(f[1]) == 2:
		return coachdto.MoveRequest{From: f[0], To: f[1], Promotion: f[2]}, true
	default:
		return coachdto.MoveRequest{}, false
	}
}

func (c *console) show(ctx context.Context, sess *coachdto.Session) error {
	sess = c.settle(ctx, sess)
	if sess.Movetext != "" {
		fmt.Fprintln(c.out, sess.Movetext)
	}
	played := sess.Cursor + 1
	c.say("timeline.position", map[string]any{"Cursor": played, "Len": len(sess.Moves)},
		fmt.Sprintf("Move %d of %d.", played, len(sess.Moves)))
	if sess.Terminal.Over {
		c.say("game.result", map[string]any{"Result": sess.Terminal.Result, "Reason": sess.Terminal.Reason},
			"Game over: "+sess.Terminal.Result)
		return nil
	}
	switch {
	case !sess.SuggestionsEnabled:
		c.say("suggestion.disabled", nil, "Suggestions are off.")
	case sess.SuggestionPending:
		c.say("suggestion.pending", nil, "Thinking...")
	case sess.Suggestion != nil:
		s := sess.Suggestion
		c.say("suggestion."+s.Source, map[string]any{"SAN": s.Move.SAN, "Reason": s.Reason}, "Suggested: "+s.Move.SAN)
	}
	return nil
}

// settle polls while a suggestion for the shown position is still being computed.
func (c *console) settle(ctx context.Context, sess *coachdto.Session) *coachdto.Session {
	deadline := time.Now().Add(c.wait)
	for sess.SuggestionPending && time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return sess
		case <-time.After(50 * time.Millisecond):
		}
		next, err := c.client.Session(ctx, sess.ID)
		if err != nil {
			return sess
		}
		sess = next
	}
	return sess
}

func (c *console) report(err error) {
	var apiErr *httpapi.APIError
	if !errors.As(err, &apiErr) {
		fmt.Fprintln(c.out, err)
		return
	}
	switch apiErr.Code {
	case "game_over":
		c.say("move.game_over", map[string]any{"Reason": apiErr.Message}, apiErr.Message)
	default:
		fmt.Fprintln(c.out, apiErr.Message)
	}
}
