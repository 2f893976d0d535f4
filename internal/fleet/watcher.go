package fleet

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/BaSui01/agentfleet/config"
)

const defaultWatchDebounce = 500 * time.Millisecond

// Invalidator drops derived state when sources change. *Service implements it.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// =============================================================================
// 👀 来源文件监听
// =============================================================================

// Watcher invalidates the hierarchy when the configuration document, the
// legacy file or anything under the workspace root changes. Bursts of events
// inside the debounce window trigger a single invalidation.
type Watcher struct {
	fsw      *fsnotify.Watcher
	target   Invalidator
	debounce time.Duration
	logger   *zap.Logger

	files     map[string]bool
	workspace string

	invalidations atomic.Int64

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewWatcher registers watches for the configured sources. Files are watched
// through their parent directory so editor renames are seen.
func NewWatcher(cfg config.SourcesConfig, target Invalidator, logger *zap.Logger) (*Watcher, error) {
	if target == nil {
		return nil, errors.New("watcher target cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		target:   target,
		debounce: cfg.WatchDebounce,
		logger:   logger.With(zap.String("component", "source_watcher")),
		files:    make(map[string]bool),
		done:     make(chan struct{}),
	}
	if w.debounce <= 0 {
		w.debounce = defaultWatchDebounce
	}

	for _, path := range []string{cfg.ConfigPath, cfg.LegacyPath} {
		if path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			_ = fsw.Close()
			return nil, err
		}
		w.files[abs] = true
		if err := w.add(filepath.Dir(abs)); err != nil {
			w.logger.Warn("cannot watch source directory", zap.String("path", abs), zap.Error(err))
		}
	}

	if cfg.WorkspaceRoot != "" {
		root, err := filepath.Abs(cfg.WorkspaceRoot)
		if err != nil {
			_ = fsw.Close()
			return nil, err
		}
		w.workspace = root
		w.addTree(root)
	}

	return w, nil
}

// Paths lists the watched directories.
func (w *Watcher) Paths() []string {
	return w.fsw.WatchList()
}

// Invalidations reports how many invalidations have been issued.
func (w *Watcher) Invalidations() int64 {
	return w.invalidations.Load()
}

// Start runs the event loop until ctx is done or Stop is called.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.wg.Add(1)
		go w.run(ctx)
		w.logger.Info("watching hierarchy sources",
			zap.Strings("paths", w.Paths()),
			zap.Duration("debounce", w.debounce),
		)
	})
}

// Stop ends the event loop and releases the watches.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		err = w.fsw.Close()
	})
	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("source changed", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
			if ev.Has(fsnotify.Create) && w.underWorkspace(ev.Name) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					w.addTree(ev.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		case <-fire:
			fire = nil
			w.invalidate(ctx)
		}
	}
}

func (w *Watcher) invalidate(ctx context.Context) {
	ictx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	w.invalidations.Add(1)
	if err := w.target.Invalidate(ictx); err != nil {
		w.logger.Warn("invalidation failed", zap.Error(err))
		return
	}
	w.logger.Info("hierarchy invalidated after source change")
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	return w.files[ev.Name] || w.underWorkspace(ev.Name)
}

func (w *Watcher) underWorkspace(path string) bool {
	if w.workspace == "" {
		return false
	}
	return path == w.workspace || strings.HasPrefix(path, w.workspace+string(filepath.Separator))
}

func (w *Watcher) add(dir string) error {
	for _, existing := range w.fsw.WatchList() {
		if existing == dir {
			return nil
		}
	}
	return w.fsw.Add(dir)
}

// addTree watches root and every non-hidden directory below it.
func (w *Watcher) addTree(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				w.logger.Warn("cannot watch workspace", zap.String("path", root), zap.Error(err))
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		if err := w.add(path); err != nil {
			w.logger.Warn("cannot watch directory", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
}
