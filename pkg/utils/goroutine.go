// Package utils holds small test helpers shared across packages.
package utils

import (
	"runtime"
	"testing"
	"time"
)

// GoroutineLeakDetector fails a test when goroutines outlive the code under
// test. Start before the work, Check after it.
type GoroutineLeakDetector struct {
	t              *testing.T
	initialCount   int
	allowedGrowth  int
	checkInterval  time.Duration
	stabilizeDelay time.Duration
}

// NewGoroutineLeakDetector creates a detector with no allowed growth.
func NewGoroutineLeakDetector(t *testing.T) *GoroutineLeakDetector {
	return &GoroutineLeakDetector{
		t:              t,
		checkInterval:  100 * time.Millisecond,
		stabilizeDelay: 200 * time.Millisecond,
	}
}

// SetAllowedGrowth permits n extra goroutines at Check time.
func (d *GoroutineLeakDetector) SetAllowedGrowth(n int) *GoroutineLeakDetector {
	d.allowedGrowth = n
	return d
}

// Start records the baseline goroutine count.
func (d *GoroutineLeakDetector) Start() {
	time.Sleep(d.stabilizeDelay)
	d.initialCount = runtime.NumGoroutine()
}

// Check compares the current goroutine count against the baseline. It
// samples several times and takes the minimum, since goroutines may still
// be unwinding.
func (d *GoroutineLeakDetector) Check() {
	time.Sleep(d.stabilizeDelay)

	final := runtime.NumGoroutine()
	for i := 0; i < 2; i++ {
		time.Sleep(d.checkInterval)
		if n := runtime.NumGoroutine(); n < final {
			final = n
		}
	}

	leaked := final - d.initialCount
	if leaked > d.allowedGrowth {
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		d.t.Errorf("goroutine leak: started with %d, ended with %d (allowed growth %d)",
			d.initialCount, final, d.allowedGrowth)
		d.t.Logf("goroutine stacks:\n%s", buf[:n])
	}
}
