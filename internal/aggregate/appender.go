package aggregate

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// appender performs whole-record appends to one file.
type appender struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

func newAppender(path string) *appender {
	return &appender{path: path, lock: flock.New(path + ".lock")}
}

// append writes record, prefixed by header when the file is empty.
func (a *appender) append(header, record []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", a.path, err)
	}
	if err := a.lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", a.path, err)
	}
	defer func() {
		_ = a.lock.Unlock()
	}()

	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", a.path, err)
	}
	payload := record
	if len(header) > 0 {
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("stat %s: %w", a.path, err)
		}
		if info.Size() == 0 {
			payload = append(append([]byte(nil), header...), record...)
		}
	}
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		return fmt.Errorf("append %s: %w", a.path, err)
	}
	return f.Close()
}
