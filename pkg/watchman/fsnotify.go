package watchman

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ghostwatch/poltergeist/pkg/logger"
	"github.com/ghostwatch/poltergeist/pkg/utils"
)

// fsnotifyWatcher is the fallback backend used when no watchman socket is
// reachable: a recursive fsnotify tree walk plus the same settling-delay
// debounce the watchman backend applies.
type fsnotifyWatcher struct {
	watcher   *fsnotify.Watcher
	logger    logger.Logger
	exclusion *utils.ExclusionMatcher
	patterns  *utils.PatternMatcher
	callbacks map[string]func(FileEvent)
	settling  time.Duration

	pending map[string]time.Time
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func newFSNotifyWatcher(log logger.Logger) (*fsnotifyWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())

	excl, _ := utils.NewExclusionMatcher(utils.GetDefaultExclusions())

	return &fsnotifyWatcher{
		watcher:   watcher,
		logger:    log,
		exclusion: excl,
		callbacks: make(map[string]func(FileEvent)),
		pending:   make(map[string]time.Time),
		settling:  100 * time.Millisecond,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func (f *fsnotifyWatcher) Close() error {
	f.cancel()
	return f.watcher.Close()
}

func (f *fsnotifyWatcher) SetPatterns(patterns []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(patterns) == 0 {
		f.patterns = nil
		return
	}
	if pm, err := utils.NewPatternMatcher(patterns); err == nil {
		f.patterns = pm
	}
}

func (f *fsnotifyWatcher) SetExclusions(exclusions []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if excl, err := utils.NewExclusionMatcher(exclusions); err == nil {
		f.exclusion = excl
	}
}

func (f *fsnotifyWatcher) SetSettlingDelay(delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settling = delay
}

// WatchProject walks projectPath recursively and registers every
// non-excluded directory with the kernel watch, then starts the event
// processing loop.
func (f *fsnotifyWatcher) WatchProject(projectPath string, callback func(FileEvent)) error {
	err := filepath.Walk(projectPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if f.isExcluded(path) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			if err := f.watcher.Add(path); err != nil {
				f.logger.Warn(fmt.Sprintf("failed to watch directory %s: %v", path, err))
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk project directory: %w", err)
	}

	f.mu.Lock()
	f.callbacks[projectPath] = callback
	f.mu.Unlock()

	go f.processEvents()
	return nil
}

func (f *fsnotifyWatcher) processEvents() {
	for {
		select {
		case <-f.ctx.Done():
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if f.isExcluded(event.Name) || !f.matchesPattern(event.Name) {
				continue
			}
			if event.Op&fsnotify.Create == fsnotify.Create {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !f.isExcluded(event.Name) {
					if err := f.watcher.Add(event.Name); err != nil {
						f.logger.Debug(fmt.Sprintf("failed to watch new directory %s: %v", event.Name, err))
					}
				}
			}
			f.handleEventWithSettling(event)
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Error(fmt.Sprintf("watcher error: %v", err))
		}
	}
}

// handleEventWithSettling re-arms a per-path timer on every event, so a
// burst of writes to the same file dispatches only once.
func (f *fsnotifyWatcher) handleEventWithSettling(event fsnotify.Event) {
	f.mu.Lock()
	f.pending[event.Name] = time.Now()
	settling := f.settling
	f.mu.Unlock()

	time.AfterFunc(settling, func() {
		f.mu.Lock()
		last, exists := f.pending[event.Name]
		if !exists || time.Since(last) < settling {
			f.mu.Unlock()
			return
		}
		delete(f.pending, event.Name)
		f.mu.Unlock()
		f.dispatchEvent(f.convertEvent(event))
	})
}

func (f *fsnotifyWatcher) convertEvent(event fsnotify.Event) FileEvent {
	fe := FileEvent{Path: event.Name}
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		fe.Type = FileCreated
	case event.Op&fsnotify.Write == fsnotify.Write:
		fe.Type = FileModified
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		fe.Type = FileDeleted
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		fe.Type = FileRenamed
	default:
		fe.Type = FileModified
	}

	if info, err := os.Stat(event.Name); err == nil {
		fe.IsDir = info.IsDir()
		fe.Size = info.Size()
		fe.ModTime = info.ModTime()
	} else if fe.Type != FileDeleted {
		fe.Type = FileDeleted
	}
	return fe
}

func (f *fsnotifyWatcher) dispatchEvent(event FileEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var bestRoot string
	var bestCallback func(FileEvent)
	for root, callback := range f.callbacks {
		if strings.HasPrefix(event.Path, root) && len(root) > len(bestRoot) {
			bestRoot, bestCallback = root, callback
		}
	}
	if bestCallback != nil {
		bestCallback(event)
	}
}

func (f *fsnotifyWatcher) isExcluded(path string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.exclusion == nil {
		return false
	}
	return f.exclusion.IsExcluded(path)
}

func (f *fsnotifyWatcher) matchesPattern(path string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.patterns == nil {
		return true
	}
	return f.patterns.Match(path)
}

func (f *fsnotifyWatcher) List() []string {
	return f.watcher.WatchList()
}
