package ledger

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/curtbushko/zoom-recording-downloader/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// Watcher notices when the ledger file is changed by anything other than Persist
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	mutex    sync.Mutex
	expected [sha256.Size]byte
	previous [sha256.Size]byte
	modified bool
	stop     chan struct{}
	done     chan struct{}
}

// NewWatcher starts watching path, treating content as its current expected state.
// The parent directory is watched so rename-based saves by editors are seen.
func NewWatcher(path string, content []byte) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:     abs,
		watcher:  fsw,
		expected: sha256.Sum256(content),
		previous: sha256.Sum256(content),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.watchFileChanges()
	return w, nil
}

func (w *Watcher) watchFileChanges() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if w.verify() {
					logging.Warn("Ledger %s was modified by another program; it will not be overwritten", w.path)
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("Ledger watcher error: %v", err)
		case <-w.stop:
			return
		}
	}
}

// verify compares the file on disk with the expected content and reports
// whether this call newly flagged it as modified
func (w *Watcher) verify() bool {
	data, err := os.ReadFile(w.path)

	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.modified {
		return false
	}
	// events for our own earlier write can arrive after the next Expect
	if sum := sha256.Sum256(data); err != nil || (sum != w.expected && sum != w.previous) {
		w.modified = true
		return true
	}
	return false
}

// Check returns ErrModifiedExternally once any foreign change has been seen
func (w *Watcher) Check() error {
	w.verify()
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if w.modified {
		return fmt.Errorf("%w: %s", ErrModifiedExternally, w.path)
	}
	return nil
}

// Expect records content that is about to be written by this process
func (w *Watcher) Expect(content []byte) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	w.previous = w.expected
	w.expected = sha256.Sum256(content)
}

// Close stops the watcher
func (w *Watcher) Close() error {
	close(w.stop)
	err := w.watcher.Close()
	<-w.done
	return err
}
