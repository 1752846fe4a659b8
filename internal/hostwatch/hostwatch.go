// Package hostwatch notices when the browser process exits so every context's
// session timer can be paused.
package hostwatch

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Watcher polls the process table for browser processes
type Watcher struct {
	mu sync.Mutex

	names        []string
	pollInterval time.Duration
	count        func(names []string) int
	onGone       func()
	onBack       func()

	present  bool
	stopChan chan struct{}
	running  bool
}

// New creates a watcher for processes whose name contains any of names.
// onGone fires when the last browser process exits, onBack when one reappears.
func New(names []string, pollInterval time.Duration, onGone, onBack func()) *Watcher {
	lower := make([]string, len(names))
	for i, n := range names {
		lower[i] = strings.ToLower(n)
	}
	return &Watcher{
		names:        lower,
		pollInterval: pollInterval,
		count:        countProcesses,
		onGone:       onGone,
		onBack:       onBack,
		present:      true,
		stopChan:     make(chan struct{}),
	}
}

// Start begins watching
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.mu.Unlock()

	go w.watchLoop()
	log.Printf("[hostwatch] Started (poll=%v, names=%v)", w.pollInterval, w.names)
}

// Stop stops watching
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		close(w.stopChan)
		w.running = false
	}
}

// Present reports whether a browser was seen on the last poll
func (w *Watcher) Present() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.present
}

func (w *Watcher) watchLoop() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll checks once and fires a callback on a presence change.
// Callbacks run outside the lock.
func (w *Watcher) poll() {
	n := w.count(w.names)

	w.mu.Lock()
	was := w.present
	w.present = n > 0
	now := w.present
	w.mu.Unlock()

	switch {
	case was && !now:
		log.Printf("[hostwatch] Browser exited")
		if w.onGone != nil {
			w.onGone()
		}
	case !was && now:
		log.Printf("[hostwatch] Browser running again (%d processes)", n)
		if w.onBack != nil {
			w.onBack()
		}
	}
}

func countProcesses(names []string) int {
	procs, err := process.Processes()
	if err != nil {
		return 0
	}

	count := 0
	for _, proc := range procs {
		name, err := proc.Name()
		if err != nil {
			continue
		}
		if matches(strings.ToLower(name), names) {
			count++
		}
	}
	return count
}

func matches(name string, names []string) bool {
	for _, n := range names {
		if strings.Contains(name, n) {
			return true
		}
	}
	return false
}
