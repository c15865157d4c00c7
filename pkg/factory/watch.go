package factory

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// DefaultWatchDebounce is how long the plugin dirs must stay quiet before a
// rescan runs.
const DefaultWatchDebounce = 500 * time.Millisecond

// Watcher rescans a Factory when plugin descriptions are added or removed.
type Watcher struct {
	f        *Factory
	debounce time.Duration
	onChange func()

	fsw      *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Watch starts watching every existing data directory of f. onChange, if
// non-nil, runs after each rescan.
func (f *Factory) Watch(debounce time.Duration, onChange func()) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create plugin dir watcher")
	}
	watched := 0
	for _, dir := range f.conf.Dirs {
		if err := fsw.Add(dir.Data); err != nil {
			f.log.WithError(err).Debugf("Not watching %s.", dir.Data)
			continue
		}
		watched++
	}
	if watched == 0 {
		f.log.Info("No plugin dir to watch.")
	}

	w := &Watcher{
		f:        f,
		debounce: debounce,
		onChange: onChange,
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Close stops the watcher. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
	})
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.f.log.WithError(err).Warn("Plugin dir watcher error.")

		case <-fire:
			fire = nil
			w.f.log.Debug("Plugin dirs changed, rescanning.")
			w.f.Rescan()
			w.f.Modules()
			if w.onChange != nil {
				w.onChange()
			}
		}
	}
}
