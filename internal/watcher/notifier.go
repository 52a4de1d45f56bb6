package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"groupsync/internal/fs"
	"groupsync/internal/gs"
	"groupsync/internal/pathid"
)

// DefaultDebounce is how long the notifier waits for a burst of events to
// settle before waking the session.
const DefaultDebounce = 500 * time.Millisecond

// Notifier watches a mapped directory tree and signals Wake after changes
// settle. It only hints that a scan is worthwhile; the scan decides what
// changed.
type Notifier struct {
	root     string
	filter   pathid.Filter
	ignore   *fs.IgnoreMatcher
	debounce time.Duration
	logger   gs.Logger

	watcher *fsnotify.Watcher
	wake    chan struct{}
}

// NewNotifier watches every directory under root that the filter and ignore
// patterns allow.
func NewNotifier(root string, filter pathid.Filter, ignore *fs.IgnoreMatcher, debounce time.Duration, logger gs.Logger) (*Notifier, error) {
	if logger == nil {
		logger = gs.NewNopLogger()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	n := &Notifier{
		root:     root,
		filter:   filter,
		ignore:   ignore,
		debounce: debounce,
		logger:   logger,
		watcher:  w,
		wake:     make(chan struct{}, 1),
	}
	if err := n.addTree(root); err != nil {
		w.Close()
		return nil, err
	}
	return n, nil
}

// Wake receives a value after a settled burst of changes.
func (n *Notifier) Wake() <-chan struct{} {
	return n.wake
}

// Run processes filesystem events until ctx is done, then closes the
// underlying watcher.
func (n *Notifier) Run(ctx context.Context) error {
	defer n.watcher.Close()

	timer := time.NewTimer(n.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-n.watcher.Events:
			if !ok {
				return nil
			}
			if !n.relevant(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
					if err := n.addTree(event.Name); err != nil {
						n.logger.Warn("watching new directory failed", "path", event.Name, "error", err)
					}
				}
			}
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(n.debounce)
			pending = true

		case <-timer.C:
			pending = false
			select {
			case n.wake <- struct{}{}:
			default:
			}

		case err, ok := <-n.watcher.Errors:
			if !ok {
				return nil
			}
			n.logger.Warn("filesystem watcher error", "root", n.root, "error", err)
		}
	}
}

func (n *Notifier) canonical(p string) (string, bool) {
	rel, err := filepath.Rel(n.root, p)
	if err != nil || rel == "." {
		return "", false
	}
	c, err := pathid.Clean(filepath.ToSlash(rel))
	if err != nil {
		return "", false
	}
	return c, true
}

func (n *Notifier) relevant(p string) bool {
	c, ok := n.canonical(p)
	if !ok {
		return false
	}
	return n.filter.Allows(c) && !n.ignore.Match(c)
}

// addTree watches dir and its allowed subdirectories.
func (n *Notifier) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			// Vanished while walking.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != n.root && !n.relevant(p) {
			return filepath.SkipDir
		}
		if err := n.watcher.Add(p); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		return nil
	})
}
