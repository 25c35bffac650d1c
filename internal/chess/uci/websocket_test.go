package uci

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// echoEngine answers uci/isready the way a UCI process would, batching lines per frame.
func echoEngine(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var reply string
			switch strings.TrimSpace(string(data)) {
			case CmdUCI:
				reply = "id name Remote\nuciok"
			case CmdIsReady:
				reply = TokenReadyOK
			default:
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, []byte(reply)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWebSocketTransport(t *testing.T) {
	srv := echoEngine(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tr, err := WebSocketDialer(url)(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()

	if err := tr.Send(CmdUCI); err != nil {
		t.Fatalf("send uci: %v", err)
	}
	want := []string{"id name Remote", TokenUCIOK}
	for _, w := range want {
		select {
		case got := <-tr.Lines():
			if got != w {
				t.Fatalf("line = %q, want %q", got, w)
			}
		case <-ctx.Done():
			t.Fatalf("timed out waiting for %q", w)
		}
	}

	_ = tr.Close()
	if err := tr.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := tr.Send(CmdIsReady); err != ErrClosed {
		t.Fatalf("send after close = %v", err)
	}
}
