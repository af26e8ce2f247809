// Package schedule runs repeating tasks. Ticker is the wall-clock
// implementation; Manual lets callers fire ticks by hand.
package schedule

import (
	"sync"
	"time"
)

// Task is a handle to a repeating task.
type Task interface {
	// Stop cancels the task. No further ticks start after Stop returns.
	Stop()
}

// Scheduler starts repeating tasks.
type Scheduler interface {
	Every(interval time.Duration, fn func()) Task
}

// Ticker schedules tasks on a time.Ticker. The zero value is ready to use.
type Ticker struct{}

func (Ticker) Every(interval time.Duration, fn func()) Task {
	t := &tickerTask{
		ticker: time.NewTicker(interval),
		done:   make(chan struct{}),
	}
	go t.run(fn)
	return t
}

type tickerTask struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *tickerTask) run(fn func()) {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			// Stop may race with a pending tick.
			select {
			case <-t.done:
				return
			default:
			}
			fn()
		}
	}
}

func (t *tickerTask) Stop() {
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
	})
}

// Manual is a Scheduler whose ticks are fired explicitly with Fire.
type Manual struct {
	mu    sync.Mutex
	tasks []*manualTask
}

func NewManual() *Manual { return &Manual{} }

func (m *Manual) Every(interval time.Duration, fn func()) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTask{interval: interval, fn: fn}
	m.tasks = append(m.tasks, t)
	return t
}

// Fire runs one tick of every active task, synchronously.
func (m *Manual) Fire() {
	m.mu.Lock()
	active := make([]*manualTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		if !t.isStopped() {
			active = append(active, t)
		}
	}
	m.tasks = active
	m.mu.Unlock()

	for _, t := range active {
		if !t.isStopped() {
			t.fn()
		}
	}
}

// Active reports how many tasks are still scheduled.
func (m *Manual) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if !t.isStopped() {
			n++
		}
	}
	return n
}

// Interval returns the interval of the most recently scheduled active task.
func (m *Manual) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.tasks) - 1; i >= 0; i-- {
		if !m.tasks[i].isStopped() {
			return m.tasks[i].interval
		}
	}
	return 0
}

type manualTask struct {
	interval time.Duration
	fn       func()
	mu       sync.Mutex
	stopped  bool
}

func (t *manualTask) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *manualTask) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}
