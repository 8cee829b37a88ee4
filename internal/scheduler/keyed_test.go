package scheduler

import (
	"sync"
	"testing"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	t.Parallel()
	var km keyedMutex
	counts := map[string]*int{"a": new(int), "b": new(int)}
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		key := "a"
		if i%2 == 1 {
			key = "b"
		}
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			unlock := km.Lock(key)
			defer unlock()
			*counts[key]++
		}(key)
	}
	wg.Wait()
	if *counts["a"] != 100 || *counts["b"] != 100 {
		t.Fatalf("counts a=%d b=%d", *counts["a"], *counts["b"])
	}
	if n := km.size(); n != 0 {
		t.Fatalf("locks left behind: %d", n)
	}
}

func TestKeyedMutexExcludes(t *testing.T) {
	t.Parallel()
	var km keyedMutex
	unlock := km.Lock("k")

	acquired := make(chan struct{})
	go func() {
		u := km.Lock("k")
		close(acquired)
		u()
	}()

	// A different key is independent.
	other := km.Lock("other")
	other()

	select {
	case <-acquired:
		t.Fatalf("second holder acquired a held key")
	default:
	}
	unlock()
	unlock() // idempotent
	<-acquired
}
