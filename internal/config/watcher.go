package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/edgegate/edgegate/internal/observability"
)

// ReloadFunc receives each configuration that loads and validates
// successfully after a file change.
type ReloadFunc func(*GatewayConfig)

// Watcher reloads a gateway configuration file when it changes on disk.
// Broken edits are reported through the error callback and the previous
// configuration stays active.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload ReloadFunc
	onError  func(error)
	log      observability.Logger

	fsw *fsnotify.Watcher

	mu      sync.RWMutex
	current *GatewayConfig
	started bool

	quit chan struct{}
	done chan struct{}
}

// WatcherOption configures optional watcher behavior.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets how long the watcher waits after the last file
// event before reloading. Editors and configmap updates often produce
// several events per save.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithLogger sets the watcher logger.
func WithLogger(logger observability.Logger) WatcherOption {
	return func(w *Watcher) {
		w.log = logger
	}
}

// WithErrorCallback registers a callback for load and watch errors.
func WithErrorCallback(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// NewWatcher builds a watcher for the configuration file at path.
// Watching does not begin until Start is called.
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:     abs,
		debounce: 100 * time.Millisecond,
		onReload: onReload,
		log:      observability.NopLogger(),
		fsw:      fsw,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start performs the initial load and begins watching for changes.
// It fails when the initial configuration does not load or validate.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.mu.Unlock()

	if _, err := w.load(); err != nil {
		return err
	}

	// The parent directory is watched rather than the file itself:
	// atomic saves replace the file via rename, which would orphan a
	// watch on the old inode.
	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.log.Info("started watching configuration file",
		observability.String("path", w.path),
	)

	go w.run(ctx)
	return nil
}

// Stop ends watching. Calling Stop on a stopped watcher is a no-op.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = false
	w.mu.Unlock()

	close(w.quit)
	<-w.done
	return w.fsw.Close()
}

// GetLastConfig returns the most recent configuration that loaded and
// validated successfully.
func (w *Watcher) GetLastConfig() *GatewayConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// ForceReload loads the file immediately, bypassing the debounce.
func (w *Watcher) ForceReload() error {
	cfg, err := w.load()
	if err != nil {
		return err
	}
	if w.onReload != nil {
		w.onReload(cfg)
	}
	return nil
}

// load reads and validates the file, storing the result on success.
func (w *Watcher) load() (*GatewayConfig, error) {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()
	return cfg, nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	pending := time.NewTimer(w.debounce)
	if !pending.Stop() {
		<-pending.C
	}
	armed := false

	for {
		select {
		case <-ctx.Done():
			w.log.Info("config watcher stopped due to context cancellation")
			return

		case <-w.quit:
			w.log.Info("config watcher stopped")
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.log.Debug("config file changed",
				observability.String("path", ev.Name),
				observability.String("op", ev.Op.String()),
			)
			if armed && !pending.Stop() {
				<-pending.C
			}
			pending.Reset(w.debounce)
			armed = true

		case <-pending.C:
			armed = false
			w.applyChange()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("config watcher error", observability.Error(err))
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

// applyChange reloads after the debounce window closes.
func (w *Watcher) applyChange() {
	w.log.Info("reloading configuration",
		observability.String("path", w.path),
	)

	cfg, err := w.load()
	if err != nil {
		w.log.Error("configuration reload failed", observability.Error(err))
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.log.Info("configuration reloaded successfully")
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
