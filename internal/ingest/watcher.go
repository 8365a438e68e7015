package ingest

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Reasons passed to the change callback.
const (
	ReasonStartup    = "startup"
	ReasonFileChange = "file-change"
	ReasonPoll       = "poll"
)

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	Path         string
	Debounce     time.Duration
	PollInterval time.Duration
	// DisableNotify turns off native filesystem events and relies on polling alone.
	DisableNotify bool
	Logger        *zap.Logger
}

// Watcher observes one file and calls back once per logical save.
//
// Spreadsheet tools save by writing a temporary copy and renaming it over the
// original, which breaks inode-based watches. The watcher therefore listens on the
// parent directory and also polls size and modification time. Both sources feed one
// debounce timer so a burst of events yields a single callback.
type Watcher struct {
	path     string
	debounce time.Duration
	poll     time.Duration
	notify   bool
	logger   *zap.Logger
	onChange func(reason string)
}

// NewWatcher constructs a Watcher. onChange runs on the watcher goroutine and must not block.
func NewWatcher(cfg WatcherConfig, onChange func(reason string)) *Watcher {
	if cfg.Debounce <= 0 {
		cfg.Debounce = time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	path := cfg.Path
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: cfg.Debounce,
		poll:     cfg.PollInterval,
		notify:   !cfg.DisableNotify,
		logger:   cfg.Logger.Named("watcher").With(zap.String("path", path)),
		onChange: onChange,
	}
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

type fileSnapshot struct {
	exists  bool
	size    int64
	modTime time.Time
}

func (s fileSnapshot) differs(other fileSnapshot) bool {
	return s.exists != other.exists || s.size != other.size || !s.modTime.Equal(other.modTime)
}

func (w *Watcher) snapshot() fileSnapshot {
	info, err := os.Stat(w.path)
	if err != nil {
		return fileSnapshot{}
	}
	return fileSnapshot{exists: true, size: info.Size(), modTime: info.ModTime()}
}

// Run blocks until ctx is cancelled. It fires once at startup when the file exists.
func (w *Watcher) Run(ctx context.Context) error {
	seen := w.snapshot()
	if seen.exists {
		w.onChange(ReasonStartup)
	} else {
		w.logger.Info("watched file does not exist yet")
	}

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if w.notify {
		fsw, err := w.startNotify()
		if err != nil {
			w.logger.Warn("native file events unavailable, polling only", zap.Error(err))
		} else {
			defer fsw.Close()
			events, errs = fsw.Events, fsw.Errors
		}
	}

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	timer := time.NewTimer(w.debounce)
	stopTimer(timer)
	defer timer.Stop()
	var (
		fire   <-chan time.Time
		reason string
	)
	schedule := func(r string) {
		stopTimer(timer)
		timer.Reset(w.debounce)
		fire = timer.C
		reason = r
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if w.relevant(ev) {
				w.logger.Debug("file event", zap.String("op", ev.Op.String()))
				schedule(ReasonFileChange)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("file watch error", zap.Error(err))
		case <-ticker.C:
			current := w.snapshot()
			if current.differs(seen) {
				seen = current
				schedule(ReasonPoll)
			}
		case <-fire:
			fire = nil
			seen = w.snapshot()
			if !seen.exists {
				w.logger.Debug("watched file missing after change, waiting for next event")
				continue
			}
			w.onChange(reason)
		}
	}
}

func (w *Watcher) startNotify() (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return nil, err
	}
	return fsw, nil
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
