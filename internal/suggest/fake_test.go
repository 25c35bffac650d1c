package suggest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/park285/cheese-coach/internal/chess/uci"
)

// fakeEngine is an in-memory UCI peer. reply decides what, if anything, to emit per command.
type fakeEngine struct {
	lines chan string
	reply func(cmd string) []string

	mu     sync.Mutex
	sent   []string
	closed bool
	notify chan string
}

func newFakeEngine(reply func(cmd string) []string) *fakeEngine {
	return &fakeEngine{
		lines:  make(chan string, 64),
		reply:  reply,
		notify: make(chan string, 1024),
	}
}

// handshakeReplies answers uci/isready and nothing else.
func handshakeReplies(cmd string) []string {
	switch cmd {
	case uci.CmdUCI:
		return []string{"id name Fake 1.0", "id author tests", "option name Hash type spin", uci.TokenUCIOK}
	case uci.CmdIsReady:
		return []string{uci.TokenReadyOK}
	}
	return nil
}

// answering replies to every go with move.
func answering(move string) func(string) []string {
	return func(cmd string) []string {
		if strings.HasPrefix(cmd, "go ") {
			return []string{"info depth 1 score cp 20 pv " + move, "bestmove " + move}
		}
		return handshakeReplies(cmd)
	}
}

func (f *fakeEngine) Send(line string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return uci.ErrClosed
	}
	f.sent = append(f.sent, line)
	var out []string
	if f.reply != nil {
		out = f.reply(line)
	}
	for _, l := range out {
		f.lines <- l
	}
	f.mu.Unlock()
	select {
	case f.notify <- line:
	default:
	}
	return nil
}

func (f *fakeEngine) Lines() <-chan string { return f.lines }

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.lines)
	}
	return nil
}

// emit pushes an unsolicited line as if the process printed it.
func (f *fakeEngine) emit(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.lines <- line
	}
}

func (f *fakeEngine) crash() { _ = f.Close() }

func (f *fakeEngine) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeEngine) count(prefix string) int {
	n := 0
	for _, c := range f.commands() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// waitFor blocks until a command with prefix has been sent.
func (f *fakeEngine) waitFor(t *testing.T, prefix string) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case line := <-f.notify:
			if strings.HasPrefix(line, prefix) {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %q; sent=%v", prefix, f.commands())
		}
	}
}

type countingDialer struct {
	calls  atomic.Int32
	engine *fakeEngine
	err    error
}

func (d *countingDialer) dial(context.Context) (uci.Transport, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return d.engine, nil
}

func failingDialer() *countingDialer {
	return &countingDialer{err: errors.New("exec: \"stockfish\": executable file not found in $PATH")}
}
