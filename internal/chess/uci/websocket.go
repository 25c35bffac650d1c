package uci

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

const wsWriteTimeout = 5 * time.Second

// wsTransport speaks UCI to a remote process: one text frame per command,
// incoming frames may carry several lines.
type wsTransport struct {
	conn  *websocket.Conn
	lines chan string

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func DialWebSocket(ctx context.Context, wsURL string) (Transport, error) {
	if strings.TrimSpace(wsURL) == "" {
		return nil, fmt.Errorf("engine websocket url required")
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		return nil, fmt.Errorf("dial engine websocket: %w", err)
	}

	t := &wsTransport{
		conn:  conn,
		lines: make(chan string, 64),
	}
	t.rootCtx, t.rootCancel = context.WithCancel(context.Background())
	go t.listen()
	return t, nil
}

func WebSocketDialer(wsURL string) Dialer {
	return func(ctx context.Context) (Transport, error) {
		return DialWebSocket(ctx, wsURL)
	}
}

func (t *wsTransport) listen() {
	defer close(t.lines)
	for {
		_, data, err := t.conn.Read(t.rootCtx)
		if err != nil {
			return
		}
		for _, line := range strings.Split(string(data), "\n") {
			s := strings.TrimSpace(line)
			if s == "" {
				continue
			}
			select {
			case t.lines <- s:
			case <-t.rootCtx.Done():
				return
			}
		}
	}
}

func (t *wsTransport) Lines() <-chan string { return t.lines }

func (t *wsTransport) Send(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(t.rootCtx, wsWriteTimeout)
	defer cancel()
	return t.conn.Write(ctx, websocket.MessageText, []byte(strings.TrimSpace(line)))
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	err := t.conn.Close(websocket.StatusNormalClosure, "bye")
	t.rootCancel()
	return err
}
