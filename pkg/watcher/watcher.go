package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ritzau/navisys/pkg/logging"
)

// ChangeType is what happened to the watched file
type ChangeType int

const (
	ChangeTypeWrite ChangeType = iota
	ChangeTypeCreate
	ChangeTypeRemove
)

func (c ChangeType) String() string {
	switch c {
	case ChangeTypeWrite:
		return "write"
	case ChangeTypeCreate:
		return "create"
	case ChangeTypeRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// ChangeEvent is one observed change to the watched file
type ChangeEvent struct {
	Type      ChangeType
	Path      string
	Timestamp time.Time
}

// batchDelay coalesces the burst of events editors emit for one save
const batchDelay = 100 * time.Millisecond

// FileWatcher watches a single real-time change file. The file's directory
// is watched rather than the file, so atomic saves (write temp + rename)
// are seen as well.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	events  chan ChangeEvent
	stop    sync.Once
}

// NewFileWatcher creates a watcher for the change file at path
func NewFileWatcher(path string) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher: watcher,
		path:    abs,
		events:  make(chan ChangeEvent, 100),
	}, nil
}

// Start begins watching. Events stop and the channel closes when ctx is done.
func (fw *FileWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(fw.path)
	if err := fw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	logging.Info("watching change file", "path", fw.path)
	go fw.processEvents(ctx)
	return nil
}

// processEvents filters directory events down to the change file and
// forwards the last change of every burst
func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer close(fw.events)

	var pending *ChangeEvent
	flushTimer := time.NewTimer(batchDelay)
	flushTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			fw.Stop()
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != fw.path {
				continue
			}

			change, relevant := classify(event.Op)
			if !relevant {
				continue
			}
			logging.Trace("change file event", "path", event.Name, "op", event.Op.String())

			pending = &ChangeEvent{Type: change, Path: fw.path, Timestamp: time.Now()}
			flushTimer.Reset(batchDelay)

		case <-flushTimer.C:
			if pending != nil {
				select {
				case fw.events <- *pending:
				case <-ctx.Done():
				}
				pending = nil
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

func classify(op fsnotify.Op) (ChangeType, bool) {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return ChangeTypeRemove, true
	case op.Has(fsnotify.Create):
		return ChangeTypeCreate, true
	case op.Has(fsnotify.Write):
		return ChangeTypeWrite, true
	default:
		return 0, false
	}
}

// Events returns the channel of change events
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}

// Stop releases the underlying watcher. Safe to call more than once.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stop.Do(func() {
		err = fw.watcher.Close()
	})
	return err
}
