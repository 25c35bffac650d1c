package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

var ErrClosed = errors.New("uci transport closed")

// Transport is a persistent line-oriented channel to an analysis process.
// Lines is closed once the channel ends, whatever the reason.
type Transport interface {
	Send(line string) error
	Lines() <-chan string
	Close() error
}

// Dialer opens a transport. It is called at most once per bridge handle.
type Dialer func(ctx context.Context) (Transport, error)

type processTransport struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// StartProcess launches a UCI binary and pumps its stdout into Lines.
func StartProcess(binaryPath string, args ...string) (Transport, error) {
	if strings.TrimSpace(binaryPath) == "" {
		return nil, fmt.Errorf("engine path required")
	}
	cmd := exec.Command(binaryPath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	t := &processTransport{
		cmd:   cmd,
		stdin: stdin,
		lines: make(chan string, 64),
		done:  make(chan struct{}),
	}
	go t.pump(bufio.NewReader(stdoutPipe))
	return t, nil
}

// ProcessDialer returns a Dialer for StartProcess.
func ProcessDialer(binaryPath string, args ...string) Dialer {
	return func(context.Context) (Transport, error) {
		return StartProcess(binaryPath, args...)
	}
}

func (t *processTransport) pump(r *bufio.Reader) {
	defer close(t.lines)
	for {
		line, err := r.ReadString('\n')
		if s := strings.TrimSpace(line); s != "" {
			select {
			case t.lines <- s:
			case <-t.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (t *processTransport) Lines() <-chan string { return t.lines }

func (t *processTransport) Send(line string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	_, err := io.WriteString(t.stdin, strings.TrimRight(line, "\n")+"\n")
	return err
}

func (t *processTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()

	if t.stdin != nil {
		t.stdin.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	if t.cmd != nil {
		_ = t.cmd.Wait()
	}
	return nil
}
