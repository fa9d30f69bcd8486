package useragent

import (
	"sync"
	"testing"
)

func TestPool_NextRoundRobin(t *testing.T) {
	p := NewPool([]string{"A", "B", "C"})

	for i, want := range []string{"A", "B", "C", "A"} {
		if got := p.Next(); got != want {
			t.Errorf("call %d: expected %s, got %s", i, want, got)
		}
	}
}

func TestPool_FallsBackToDesktop(t *testing.T) {
	p := NewPool([]string{"", "   "})
	if p.Len() != len(Desktop) {
		t.Fatalf("expected %d agents, got %d", len(Desktop), p.Len())
	}
	if got := p.Next(); got != Desktop[0] {
		t.Errorf("expected %s, got %s", Desktop[0], got)
	}
}

func TestPool_Random(t *testing.T) {
	p := NewPool([]string{"A", "B"})

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		got := p.Random()
		if got != "A" && got != "B" {
			t.Fatalf("unexpected agent: %s", got)
		}
		seen[got] = true
	}
	if len(seen) != 2 {
		t.Errorf("expected both agents to be picked, saw %v", seen)
	}
}

func TestPool_ConcurrentNext(t *testing.T) {
	p := NewPool([]string{"X", "Y", "Z"})

	const routines, iterations = 50, 300
	var mu sync.Mutex
	counts := map[string]int{}

	var wg sync.WaitGroup
	for i := 0; i < routines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := map[string]int{}
			for j := 0; j < iterations; j++ {
				local[p.Next()]++
			}
			mu.Lock()
			for k, v := range local {
				counts[k] += v
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	want := routines * iterations / 3
	for k, c := range counts {
		if c != want {
			t.Errorf("expected %d hits for %s, got %d", want, k, c)
		}
	}
}

func TestPool_EmptyStruct(t *testing.T) {
	p := &Pool{}
	if got := p.Next(); got != "" {
		t.Errorf("expected empty agent, got %q", got)
	}
	if got := p.Random(); got != "" {
		t.Errorf("expected empty agent, got %q", got)
	}
}
