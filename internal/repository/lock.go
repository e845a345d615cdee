package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var ErrLocked = errors.New("another run holds the lock")

// Lock is a lock file created with O_EXCL. It keeps two runs for the same
// category from writing the same CSV. Staleness is judged by the file's
// mtime, which KeepAlive refreshes while the run is alive.
type Lock struct {
	path string

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

type lockInfo struct {
	PID   int    `json:"pid"`
	Time  int64  `json:"time"`
	RunID string `json:"run_id"`
}

// AcquireLock takes the lock at path. A lock file older than ttl is treated
// as left over from a crashed run and replaced; ttl <= 0 never expires.
func AcquireLock(path string, ttl time.Duration, runID string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: create lock dir: %w", ErrPersistence, err)
	}

	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			encErr := json.NewEncoder(f).Encode(lockInfo{PID: os.Getpid(), Time: time.Now().Unix(), RunID: runID})
			closeErr := f.Close()
			if err := errors.Join(encErr, closeErr); err != nil {
				os.Remove(path)
				return nil, fmt.Errorf("%w: write lock: %w", ErrPersistence, err)
			}
			return &Lock{path: path, stop: make(chan struct{})}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: create lock: %w", ErrPersistence, err)
		}

		fi, err := os.Stat(path)
		if err != nil {
			// released between our open and stat
			continue
		}
		age := time.Since(fi.ModTime())
		if ttl > 0 && age >= ttl {
			log.WithFields(log.Fields{"file": path, "age": age.Round(time.Second)}).Warn("removing stale lock")
			os.Remove(path)
			continue
		}
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return nil, fmt.Errorf("%w: %s", ErrLocked, path)
}

// Refresh bumps the lock file's mtime.
func (l *Lock) Refresh() error {
	now := time.Now()
	return os.Chtimes(l.path, now, now)
}

// KeepAlive refreshes the lock every interval until Release. Call it once.
func (l *Lock) KeepAlive(interval time.Duration) {
	if interval <= 0 || l.done != nil {
		return
	}
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-l.stop:
				return
			case <-ticker.C:
				if err := l.Refresh(); err != nil {
					log.WithFields(log.Fields{"file": l.path, "error": err}).Warn("could not refresh lock")
				}
			}
		}
	}()
}

func (l *Lock) Release() error {
	l.stopOnce.Do(func() { close(l.stop) })
	if l.done != nil {
		<-l.done
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
