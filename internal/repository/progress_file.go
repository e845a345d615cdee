package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// FileProgress keeps progress as a JSON array of endpoints.
type FileProgress struct {
	path string
	done map[string]struct{}
}

func NewFileProgress(path string) *FileProgress {
	return &FileProgress{path: path, done: map[string]struct{}{}}
}

func (p *FileProgress) Load(_ context.Context) error {
	p.done = map[string]struct{}{}

	b, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read progress %s: %w", p.path, err)
	}

	var urls []string
	if err := json.Unmarshal(b, &urls); err != nil {
		log.WithFields(log.Fields{"file": p.path, "error": err}).
			Warn("progress file unreadable, starting from scratch")
		return nil
	}
	for _, u := range urls {
		p.done[u] = struct{}{}
	}
	return nil
}

func (p *FileProgress) Contains(url string) bool {
	_, ok := p.done[url]
	return ok
}

func (p *FileProgress) MarkDone(url string) {
	p.done[url] = struct{}{}
}

func (p *FileProgress) Forget(url string) {
	delete(p.done, url)
}

func (p *FileProgress) Done() []string {
	return sortedKeys(p.done)
}

func (p *FileProgress) Len() int {
	return len(p.done)
}

func (p *FileProgress) Persist(_ context.Context) error {
	b, err := json.MarshalIndent(p.Done(), "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode progress: %w", ErrPersistence, err)
	}
	if err := writeFileAtomic(p.path, b); err != nil {
		return fmt.Errorf("%w: write progress %s: %w", ErrPersistence, p.path, err)
	}
	return nil
}

func (p *FileProgress) Reset(_ context.Context) error {
	p.done = map[string]struct{}{}
	if err := os.Remove(p.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove progress %s: %w", ErrPersistence, p.path, err)
	}
	return nil
}

// writeFileAtomic replaces path with data through a synced temp file in the
// same directory, so readers see either the old or the new content.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
