package bus

import (
	"runtime"
	"strings"
	"time"
)

// WaitStrategy decides what a waiting goroutine does between polls.
type WaitStrategy interface {
	// Idle is called with the number of unsuccessful polls so far.
	Idle(attempt int)
}

// BusySpinWait polls continuously. Lowest latency, burns a core per waiter.
type BusySpinWait struct{}

func (BusySpinWait) Idle(int) {}

// YieldingWait spins briefly and then yields the processor.
type YieldingWait struct{}

func (YieldingWait) Idle(attempt int) {
	if attempt > 100 {
		runtime.Gosched()
	}
}

// SleepingWait spins, yields, and finally parks for Park between polls.
type SleepingWait struct {
	Park time.Duration
}

func (w SleepingWait) Idle(attempt int) {
	switch {
	case attempt <= 100:
	case attempt <= 200:
		runtime.Gosched()
	default:
		park := w.Park
		if park <= 0 {
			park = 50 * time.Microsecond
		}
		time.Sleep(park)
	}
}

// ParseWaitStrategy maps a config name to a strategy.
func ParseWaitStrategy(name string) (WaitStrategy, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "yielding", "yield":
		return YieldingWait{}, true
	case "busy", "busyspin", "busy-spin":
		return BusySpinWait{}, true
	case "sleeping", "sleep":
		return SleepingWait{}, true
	default:
		return nil, false
	}
}
