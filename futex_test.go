// futex_test.go - the futex wait/wake pool's ping-pong contract.

package blink16

import (
	"testing"
	"time"
)

// waitForWaiter polls until addr has at least one registered waiter, or
// fails the test after a generous budget; avoids a fixed sleep racing
// against the goroutine scheduler.
func waitForWaiter(t *testing.T, p *futexPool, addr uint32) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if e := p.find(addr); e != nil {
			e.mu.Lock()
			n := e.waiters
			e.mu.Unlock()
			if n > 0 {
				return
			}
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no waiter registered on futex %#x within the deadline", addr)
}

// TestFutexWaitWake is the two-thread ping-pong scenario: one goroutine
// WAITs on a word that is still 0 (so it blocks), then the main goroutine
// sets the word to 1 and WAKEs one waiter. WAIT must return 0 (a real
// wake, not EAGAIN or ETIMEDOUT) and WAKE must report one waiter woken.
func TestFutexWaitWake(t *testing.T) {
	p := newFutexPool()
	const addr = 0x1000

	result := make(chan int64, 1)
	go func() {
		result <- p.wait(addr, 0, 0, 0, false)
	}()
	waitForWaiter(t, p, addr)

	woken := p.wake(addr, 1)
	if woken != 1 {
		t.Fatalf("expected wake to report 1 waiter woken, got %d", woken)
	}

	select {
	case got := <-result:
		if got != 0 {
			t.Fatalf("expected wait to return 0 on a real wake, got %d", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("wait never returned after wake")
	}
}

// TestFutexWaitValueMismatch checks WAIT's fast path: if the caller's
// snapshot of the guest word already differs from the expected value, it
// returns -EAGAIN immediately without registering a waiter.
func TestFutexWaitValueMismatch(t *testing.T) {
	p := newFutexPool()
	got := p.wait(0x2000, 5, 9, 0, false)
	if got != -int64(eagain) {
		t.Fatalf("expected -EAGAIN (%d), got %d", -int64(eagain), got)
	}
	if e := p.find(0x2000); e != nil {
		t.Fatalf("a value-mismatch wait must not register a waiter")
	}
}

// TestFutexWaitTimeout checks a WAIT with no matching WAKE returns
// -ETIMEDOUT once its deadline elapses.
func TestFutexWaitTimeout(t *testing.T) {
	p := newFutexPool()
	got := p.wait(0x3000, 0, 0, 10*time.Millisecond, true)
	if got != -int64(etimedout) {
		t.Fatalf("expected -ETIMEDOUT (%d), got %d", -int64(etimedout), got)
	}
}

// TestFutexWakeNoWaiters checks WAKE against an address nobody is
// waiting on returns 0 rather than panicking or blocking.
func TestFutexWakeNoWaiters(t *testing.T) {
	p := newFutexPool()
	if got := p.wake(0x4000, 1); got != 0 {
		t.Fatalf("expected 0 waiters woken, got %d", got)
	}
}
