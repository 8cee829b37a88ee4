package timer

import (
	"testing"
	"time"
)

func TestFakeFiresInOrder(t *testing.T) {
	t.Parallel()
	c := NewFake(time.Unix(0, 0))
	var got []string
	c.AfterFunc(2*time.Second, func() { got = append(got, "b") })
	c.AfterFunc(time.Second, func() { got = append(got, "a") })
	h := c.AfterFunc(3*time.Second, func() { got = append(got, "c") })

	c.Advance(1500 * time.Millisecond)
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("after 1.5s fired %v, want [a]", got)
	}
	if !h.Stop() {
		t.Fatal("Stop on armed timer returned false")
	}
	c.Advance(5 * time.Second)
	if len(got) != 2 || got[1] != "b" {
		t.Fatalf("fired %v, want [a b]", got)
	}
	if h.Stop() {
		t.Fatal("second Stop returned true")
	}
	if c.Pending() != 0 {
		t.Fatalf("Pending = %d, want 0", c.Pending())
	}
}

func TestFakeChainedCallbacks(t *testing.T) {
	t.Parallel()
	c := NewFake(time.Unix(0, 0))
	fired := 0
	c.AfterFunc(time.Second, func() {
		fired++
		c.AfterFunc(0, func() { fired++ })
	})
	c.Advance(time.Second)
	if fired != 2 {
		t.Fatalf("fired = %d, want 2", fired)
	}
}

func TestAtUsesClockNow(t *testing.T) {
	t.Parallel()
	start := time.Unix(100, 0)
	c := NewFake(start)
	fired := false
	At(c, start.Add(time.Minute), func() { fired = true })
	c.Advance(59 * time.Second)
	if fired {
		t.Fatal("fired early")
	}
	c.Advance(time.Second)
	if !fired {
		t.Fatal("did not fire at deadline")
	}
}
