package session

import (
	"fmt"
	"sync"
	"time"
)

// TickInterval is how often the session timer refreshes its display value.
const TickInterval = time.Second

// Timer tracks the elapsed recording time and reports it on a fixed tick.
// It never touches transcript state.
type Timer struct {
	interval time.Duration
	mu       sync.Mutex
	started  time.Time
	stopped  time.Time
	ticker   *time.Ticker
	quit     chan struct{}
	isActive bool
}

// NewTimer creates a stopped timer. A non-positive interval uses
// TickInterval.
func NewTimer(interval time.Duration) *Timer {
	if interval <= 0 {
		interval = TickInterval
	}
	return &Timer{interval: interval}
}

// Start begins counting from now and calls onTick with the elapsed time on
// every tick until Stop.
func (t *Timer) Start(onTick func(elapsed time.Duration)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isActive {
		return
	}

	t.started = time.Now()
	t.stopped = time.Time{}
	t.ticker = time.NewTicker(t.interval)
	t.quit = make(chan struct{})
	t.isActive = true

	go func(ticker *time.Ticker, quit chan struct{}) {
		for {
			select {
			case <-ticker.C:
				if onTick != nil {
					onTick(t.Elapsed())
				}
			case <-quit:
				return
			}
		}
	}(t.ticker, t.quit)
}

// Stop freezes the elapsed time.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.isActive {
		return
	}
	t.ticker.Stop()
	close(t.quit)
	t.stopped = time.Now()
	t.isActive = false
}

// IsActive returns whether the timer is running.
func (t *Timer) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isActive
}

// Elapsed returns the time since Start, frozen once stopped.
func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.started.IsZero():
		return 0
	case t.stopped.IsZero():
		return time.Since(t.started)
	default:
		return t.stopped.Sub(t.started)
	}
}

// FormatElapsed renders d as MM:SS. Minutes keep counting past 59.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
