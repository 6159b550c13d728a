package utils

import (
	"testing"
)

func TestGoroutineLeakDetector(t *testing.T) {
	t.Run("NoLeak", func(t *testing.T) {
		detector := NewGoroutineLeakDetector(t)
		detector.Start()

		ch := make(chan struct{})
		go func() {
			ch <- struct{}{}
		}()
		<-ch

		detector.Check()
	})

	t.Run("DetectsLeak", func(t *testing.T) {
		mockT := &testing.T{}
		detector := NewGoroutineLeakDetector(mockT)
		detector.Start()

		block := make(chan struct{})
		defer close(block)
		go func() {
			<-block
		}()

		detector.Check()
		if !mockT.Failed() {
			t.Error("expected the detector to report a leak")
		}
	})
}
