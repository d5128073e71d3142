package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"board-sync/domain"
)

// FileStore keeps each board document as a JSON file under a root
// directory, mirroring the document path. Changes made by any process are
// picked up through file system notifications.
type FileStore struct {
	root   string
	logger *log.Logger
	mu     sync.Mutex
}

// NewFileStore returns a store rooted at dir, creating it if needed.
func NewFileStore(dir string, logger *log.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create board dir: %w", err)
	}
	return &FileStore{root: dir, logger: logger}, nil
}

func (s *FileStore) file(path Path) string {
	return filepath.Join(s.root, filepath.FromSlash(path.String())+".json")
}

// Write replaces the document atomically by renaming a temp file over it.
func (s *FileStore) Write(ctx context.Context, path Path, board domain.Board) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := board.Encode()
	if err != nil {
		return err
	}
	target := s.file(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".board-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Subscribe watches the document's directory and emits a snapshot whenever
// the file's content changes.
func (s *FileStore) Subscribe(ctx context.Context, path Path) (*Subscription, error) {
	target := s.file(path)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return NewSubscription(ctx, func(ctx context.Context, emit EmitFunc) {
		defer w.Close()
		var (
			last    []byte
			existed bool
			first   = true
		)
		// refresh emits the current file unless it is unchanged since the
		// last snapshot.
		refresh := func() bool {
			data, err := os.ReadFile(target)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				if !first && !existed {
					return true
				}
				first, existed, last = false, false, nil
				return emit(Event{Snapshot: Snapshot{Exists: false}})
			case err != nil:
				return emit(Event{Err: err})
			}
			if !first && existed && bytes.Equal(data, last) {
				return true
			}
			board, err := domain.Decode(data)
			if err != nil {
				return emit(Event{Err: fmt.Errorf("decode %s: %w", target, err)})
			}
			first, existed, last = false, true, data
			return emit(Event{Snapshot: Snapshot{Board: board, Exists: true}})
		}

		if !refresh() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				s.logger.WithField("op", ev.Op.String()).Debug("board file changed")
				if !refresh() {
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				if !emit(Event{Err: err}) {
					return
				}
			}
		}
	}), nil
}
