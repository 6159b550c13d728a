package session

import (
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	engineerrors "github.com/peerwire/peerwire-go/pkg/errors"
	"github.com/peerwire/peerwire-go/pkg/logging"
	"github.com/peerwire/peerwire-go/pkg/protocol"
)

func TestCorrelatorResolve(t *testing.T) {
	c := newCorrelator(logging.Nop())

	id, done := c.Register("jobs/run", time.Minute)
	if c.Len() != 1 {
		t.Fatalf("expected 1 pending, got %d", c.Len())
	}

	payload := json.RawMessage(`{"ok":true}`)
	if err := c.Resolve(id, Outcome{Result: payload}); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	out := <-done
	if out.Err != nil {
		t.Fatalf("unexpected error: %v", out.Err)
	}
	if string(out.Result) != `{"ok":true}` {
		t.Fatalf("unexpected result: %s", out.Result)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty table, got %d", c.Len())
	}
}

func TestCorrelatorIDsAreMonotonic(t *testing.T) {
	c := newCorrelator(logging.Nop())

	var prev int64
	for i := 0; i < 100; i++ {
		id, _ := c.Register("m", 0)
		var n int64
		if err := json.Unmarshal([]byte(id.String()), &n); err != nil {
			t.Fatalf("id %q is not an integer", id.String())
		}
		if n <= prev {
			t.Fatalf("id %d not greater than previous %d", n, prev)
		}
		prev = n
	}
}

func TestCorrelatorResolveUnknownID(t *testing.T) {
	c := newCorrelator(logging.Nop())

	err := c.Resolve(protocol.Int64ID(99), Outcome{})
	if err == nil {
		t.Fatal("expected correlation error")
	}
	if !engineerrors.IsCode(err, engineerrors.CodeUnknownRequestID) {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(err.Error(), "already resolved") {
		t.Fatalf("never-issued id must not read as already resolved: %v", err)
	}
}

func TestCorrelatorResolveIsExactlyOnce(t *testing.T) {
	c := newCorrelator(logging.Nop())

	id, done := c.Register("m", time.Minute)

	// Response, cancel, and a second response race; exactly one wins.
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			var err error
			if n == 1 {
				_, err = c.Cancel(id, "test")
			} else {
				err = c.Resolve(id, Outcome{Result: json.RawMessage(`1`)})
			}
			if err == nil {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one completion, got %d", wins.Load())
	}

	<-done
	select {
	case _, ok := <-done:
		if ok {
			t.Fatal("completion slot delivered twice")
		}
	default:
	}
}

func TestCorrelatorExpire(t *testing.T) {
	c := newCorrelator(logging.Nop())

	_, fast := c.Register("fast", 10*time.Millisecond)
	_, slow := c.Register("slow", time.Hour)

	n := c.Expire(time.Now().Add(time.Second))
	if n != 1 {
		t.Fatalf("expected 1 expiry, got %d", n)
	}

	out := <-fast
	if !engineerrors.IsCategory(out.Err, engineerrors.CategoryTimeout) {
		t.Fatalf("expected timeout error, got %v", out.Err)
	}

	select {
	case out := <-slow:
		t.Fatalf("slow request completed early: %+v", out)
	default:
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 pending, got %d", c.Len())
	}
}

func TestCorrelatorLateResponseAfterExpiry(t *testing.T) {
	c := newCorrelator(logging.Nop())

	id, done := c.Register("m", time.Millisecond)
	c.Expire(time.Now().Add(time.Second))
	<-done

	err := c.Resolve(id, Outcome{Result: json.RawMessage(`1`)})
	if !engineerrors.IsCode(err, engineerrors.CodeUnknownRequestID) {
		t.Fatalf("expected correlation error, got %v", err)
	}
	// An id this correlator issued reads as a duplicate, not a fabrication.
	if !strings.Contains(err.Error(), "already resolved") {
		t.Fatalf("expected already-resolved error, got %v", err)
	}
}

func TestCorrelatorCancelAll(t *testing.T) {
	c := newCorrelator(logging.Nop())

	const n = 7
	chans := make([]<-chan Outcome, n)
	for i := range chans {
		_, chans[i] = c.Register("m", time.Hour)
	}

	reason := engineerrors.SessionClosedError()
	if got := c.CancelAll(reason); got != n {
		t.Fatalf("expected %d cancellations, got %d", n, got)
	}

	for i, ch := range chans {
		out := <-ch
		if !engineerrors.IsCode(out.Err, engineerrors.CodeSessionClosed) {
			t.Fatalf("pending %d: unexpected error %v", i, out.Err)
		}
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty table, got %d", c.Len())
	}
}

func TestCorrelatorOutOfOrderResolution(t *testing.T) {
	c := newCorrelator(logging.Nop())

	id1, done1 := c.Register("first", time.Minute)
	id2, done2 := c.Register("second", time.Minute)

	if err := c.Resolve(id2, Outcome{Result: json.RawMessage(`2`)}); err != nil {
		t.Fatalf("resolve id2: %v", err)
	}
	if err := c.Resolve(id1, Outcome{Result: json.RawMessage(`1`)}); err != nil {
		t.Fatalf("resolve id1: %v", err)
	}

	if out := <-done1; string(out.Result) != `1` {
		t.Fatalf("first got %s", out.Result)
	}
	if out := <-done2; string(out.Result) != `2` {
		t.Fatalf("second got %s", out.Result)
	}
}
