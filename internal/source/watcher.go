package source

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/email-analyzer/internal/model"
)

// DefaultDebounce is how long a file must stay quiet before it is read.
const DefaultDebounce = 500 * time.Millisecond

// Handler receives the messages of a new or changed file.
type Handler func(ctx context.Context, path string, msgs []model.Message)

// Watcher delivers message files dropped into a directory.
type Watcher struct {
	dir      string
	debounce time.Duration
	handle   Handler
}

// NewWatcher creates a Watcher for dir. A non-positive debounce uses
// DefaultDebounce.
func NewWatcher(dir string, debounce time.Duration, handle Handler) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{dir: dir, debounce: debounce, handle: handle}
}

// Run watches until ctx is cancelled. Handlers run on the Run goroutine,
// one file at a time.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "source: create watcher")
	}
	defer fw.Close() //nolint:errcheck

	if err := fw.Add(w.dir); err != nil {
		return eris.Wrapf(err, "source: watch %s", w.dir)
	}

	log := zap.L().With(zap.String("component", "source.watcher"), zap.String("dir", w.dir))
	log.Info("watching inbox", zap.Duration("debounce", w.debounce))

	ready := make(chan string, 16)
	pending := make(map[string]*time.Timer)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("watcher stopped")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !Supported(event.Name) {
				continue
			}
			path := event.Name
			if t, ok := pending[path]; ok {
				t.Stop()
			}
			pending[path] = time.AfterFunc(w.debounce, func() {
				select {
				case ready <- path:
				case <-ctx.Done():
				}
			})

		case path := <-ready:
			delete(pending, path)
			msgs, err := LoadFile(path)
			if err != nil {
				log.Warn("source: skipping unreadable file", zap.String("path", path), zap.Error(err))
				continue
			}
			log.Debug("source: file ready", zap.String("path", path), zap.Int("messages", len(msgs)))
			w.handle(ctx, path, msgs)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("source: watcher error", zap.Error(err))
		}
	}
}
