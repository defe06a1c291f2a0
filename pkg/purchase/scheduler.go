package purchase

import (
	"sort"
	"sync"
	"time"
)

// CancelFunc stops a scheduled task. Calling it more than once is safe.
type CancelFunc func()

// Scheduler runs delayed and periodic tasks.
type Scheduler interface {
	AfterFunc(delay time.Duration, task func()) CancelFunc
	Every(interval time.Duration, task func()) CancelFunc
}

type realScheduler struct{}

// NewRealScheduler returns a Scheduler backed by wall-clock timers.
func NewRealScheduler() Scheduler {
	return realScheduler{}
}

func (realScheduler) AfterFunc(delay time.Duration, task func()) CancelFunc {
	timer := time.AfterFunc(delay, task)
	return func() { timer.Stop() }
}

func (realScheduler) Every(interval time.Duration, task func()) CancelFunc {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once
	go func() {
		for {
			select {
			case <-ticker.C:
				task()
			case <-done:
				return
			}
		}
	}()
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

// ManualScheduler advances virtual time on demand. Tasks run synchronously on
// the goroutine calling Advance.
type ManualScheduler struct {
	mutex    sync.Mutex
	now      time.Time
	sequence int
	tasks    map[int]*manualTask
}

type manualTask struct {
	id       int
	due      time.Time
	interval time.Duration
	task     func()
}

// NewManualScheduler returns a scheduler whose clock starts at start.
func NewManualScheduler(start time.Time) *ManualScheduler {
	return &ManualScheduler{now: start, tasks: map[int]*manualTask{}}
}

// Now returns the virtual time.
func (scheduler *ManualScheduler) Now() time.Time {
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()
	return scheduler.now
}

func (scheduler *ManualScheduler) AfterFunc(delay time.Duration, task func()) CancelFunc {
	return scheduler.add(delay, 0, task)
}

func (scheduler *ManualScheduler) Every(interval time.Duration, task func()) CancelFunc {
	return scheduler.add(interval, interval, task)
}

// Pending returns the number of scheduled tasks.
func (scheduler *ManualScheduler) Pending() int {
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()
	return len(scheduler.tasks)
}

// Advance moves virtual time forward, running every task that falls due in
// deadline order.
func (scheduler *ManualScheduler) Advance(duration time.Duration) {
	scheduler.mutex.Lock()
	target := scheduler.now.Add(duration)
	scheduler.mutex.Unlock()
	for {
		next := scheduler.popDue(target)
		if next == nil {
			break
		}
		next()
	}
	scheduler.mutex.Lock()
	scheduler.now = target
	scheduler.mutex.Unlock()
}

func (scheduler *ManualScheduler) add(delay time.Duration, interval time.Duration, task func()) CancelFunc {
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()
	scheduler.sequence++
	id := scheduler.sequence
	scheduler.tasks[id] = &manualTask{id: id, due: scheduler.now.Add(delay), interval: interval, task: task}
	return func() {
		scheduler.mutex.Lock()
		defer scheduler.mutex.Unlock()
		delete(scheduler.tasks, id)
	}
}

func (scheduler *ManualScheduler) popDue(target time.Time) func() {
	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()
	due := make([]*manualTask, 0, len(scheduler.tasks))
	for _, task := range scheduler.tasks {
		if !task.due.After(target) {
			due = append(due, task)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(left, right int) bool {
		if due[left].due.Equal(due[right].due) {
			return due[left].id < due[right].id
		}
		return due[left].due.Before(due[right].due)
	})
	next := due[0]
	scheduler.now = next.due
	if next.interval > 0 {
		next.due = next.due.Add(next.interval)
	} else {
		delete(scheduler.tasks, next.id)
	}
	return next.task
}
