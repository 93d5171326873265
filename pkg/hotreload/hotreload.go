// Package hotreload watches a directory (the processor plugin directory or
// the trigger script directory, per ProcessorConfig.HotReload) for file
// changes and debounces them into a single callback, so a directory full of
// rapid saves (an editor's write-then-rename) produces one reload instead
// of a flood of them.
package hotreload

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Dirs       []string
	Extensions []string
	Debounce   time.Duration
}

// Watcher calls OnChange(path) once per debounce window per changed file.
type Watcher struct {
	cfg    Config
	log    *logrus.Logger
	fsw    *fsnotify.Watcher
	done   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	timers map[string]*time.Timer

	OnChange func(path string)
}

func New(cfg Config, log *logrus.Logger) (*Watcher, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, dir := range cfg.Dirs {
		if err := fsw.Add(dir); err != nil {
			log.WithError(err).WithField("dir", dir).Warn("hotreload: failed to watch directory")
		}
	}
	return &Watcher{
		cfg:    cfg,
		log:    log,
		fsw:    fsw,
		done:   make(chan struct{}),
		timers: make(map[string]*time.Timer),
	}, nil
}

func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.run()
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.relevant(event) {
				w.debounce(event.Name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("hotreload: watcher error")
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	if len(w.cfg.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(event.Name)
	for _, want := range w.cfg.Extensions {
		if ext == want {
			return true
		}
	}
	return false
}

func (w *Watcher) debounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.cfg.Debounce, func() {
		if w.OnChange != nil {
			w.OnChange(path)
		}
	})
}

func (w *Watcher) Stop() {
	close(w.done)
	w.fsw.Close()
	w.wg.Wait()
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, t := range w.timers {
		t.Stop()
	}
}
