package fuzzing

import (
	"sort"
	"sync"
	"testing"
)

func TestSharedRNGSequenceIsReproducible(t *testing.T) {
	a, b := NewSharedRNG(42), NewSharedRNG(42)
	for i := range 16 {
		if x, y := a.Draw(), b.Draw(); x != y {
			t.Fatalf("draw %d differs: %d vs %d", i, x, y)
		}
	}
	if NewSharedRNG(42).Draw() == NewSharedRNG(43).Draw() {
		t.Fatal("different seeds produced the same first draw")
	}
}

func TestSharedRNGConcurrentDrawsMatchSequentialSet(t *testing.T) {
	const n = 64
	want := make([]uint64, n)
	seq := NewSharedRNG(7)
	for i := range want {
		want[i] = seq.Draw()
	}

	shared := NewSharedRNG(7)
	got := make([]uint64, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = shared.Draw()
		}()
	}
	wg.Wait()

	if shared.Draws() != n {
		t.Fatalf("Draws = %d, want %d", shared.Draws(), n)
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("concurrent draws are not a permutation of the sequence at %d", i)
		}
	}
}

func TestDeriveSeed(t *testing.T) {
	seen := make(map[uint64]int)
	for i := range 1000 {
		s := DeriveSeed(42, i)
		if s != DeriveSeed(42, i) {
			t.Fatalf("DeriveSeed(42, %d) is not stable", i)
		}
		if j, dup := seen[s]; dup {
			t.Fatalf("DeriveSeed collision between %d and %d", i, j)
		}
		seen[s] = i
	}
	if DeriveSeed(1, 0) == DeriveSeed(2, 0) {
		t.Fatal("base seed is ignored")
	}
}

func TestStopSignalClosesOnce(t *testing.T) {
	s := NewStopSignal()
	if s.Stopped() {
		t.Fatal("new signal is stopped")
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	closers := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Stop() {
				mu.Lock()
				closers++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if closers != 1 {
		t.Fatalf("Stop closed the signal %d times, want 1", closers)
	}
	if !s.Stopped() {
		t.Fatal("signal reopened")
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("Done channel not closed")
	}

	var nilSignal *StopSignal
	if nilSignal.Stopped() {
		t.Fatal("nil signal reports stopped")
	}
}
