package policy

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/shepherd/internal/logging"
)

// DefaultDebounce absorbs the burst of events editors emit for one save.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a rules file into a Store whenever it changes. The store
// ends up holding base merged with the file's rules. A reload that fails to
// parse is logged and the previous rules stay in effect.
type Watcher struct {
	path     string
	store    *Store
	base     []Rule
	logger   *logging.Logger
	debounce time.Duration
	onReload func(error)

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	stop    sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithReloadCallback is called after every reload attempt with its error, if any.
func WithReloadCallback(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// NewWatcher watches path. The parent directory is watched rather than the
// file so atomic rename-on-save is seen.
func NewWatcher(path string, store *Store, base []Rule, logger *logging.Logger, opts ...WatcherOption) (*Watcher, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fw.Close()
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     abs,
		store:    store,
		base:     base,
		logger:   logger.With("rules_file", abs),
		debounce: DefaultDebounce,
		watcher:  fw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching in a background goroutine.
func (w *Watcher) Start() {
	go w.watchLoop()
}

// Stop ends watching and waits for the loop to exit. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stop.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
	<-w.doneCh
}

// Reload reads the file and replaces the store's rules.
func (w *Watcher) Reload() error {
	extra, err := LoadRulesFile(w.path)
	if err == nil {
		err = w.store.Replace(Merge(w.base, extra))
	}

	if err != nil {
		w.logger.Error("policy rules reload failed, keeping previous rules", "error", err.Error())
	} else {
		w.logger.Info("policy rules reloaded", "rules", w.store.Len(), "version", w.store.Version())
	}
	if w.onReload != nil {
		w.onReload(err)
	}
	return err
}

func (w *Watcher) watchLoop() {
	defer close(w.doneCh)

	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C
	pending := false

	for {
		select {
		case <-w.stopCh:
			debounceTimer.Stop()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = true
			debounceTimer.Reset(w.debounce)

		case <-debounceTimer.C:
			if pending {
				pending = false
				_ = w.Reload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("rules file watcher error", "error", err.Error())
		}
	}
}
