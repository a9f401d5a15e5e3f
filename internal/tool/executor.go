package tool

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

type commandExecutor struct {
	grace time.Duration
}

func (e commandExecutor) Run(ctx context.Context, binary string, args []string, dir string, onOutput func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = dir
	// Interrupt first; the tool is killed once WaitDelay elapses.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = e.grace

	out := &lineWriter{emit: onOutput}
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	out.flush()
	if err != nil {
		return fmt.Errorf("run command: %w", err)
	}
	return nil
}

// lineWriter splits combined process output into lines. Stdout and stderr
// share one instance, so writes are serialized.
type lineWriter struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	emit func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	for {
		idx := bytes.IndexByte(w.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := string(bytes.TrimRight(w.buf.Next(idx+1), "\r\n"))
		if w.emit != nil {
			w.emit(line)
		}
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 && w.emit != nil {
		w.emit(w.buf.String())
	}
	w.buf.Reset()
}
