package colors

import "testing"

func TestAllocatePrefersUnused(t *testing.T) {
	t.Parallel()
	a := NewAllocator()

	first := a.Allocate()
	second := a.Allocate()
	if first == second {
		t.Fatalf("consecutive allocations returned the same color %q", first)
	}

	a.Release(first)
	third := a.Allocate()
	if third != first {
		t.Fatalf("released color not reused: got %q, want %q", third, first)
	}
}

func TestAllocateWrapsWhenExhausted(t *testing.T) {
	t.Parallel()
	a := NewAllocator()
	n := len(Palette())
	for i := 0; i < n; i++ {
		a.Allocate()
	}

	c := a.Allocate()
	found := false
	for _, p := range Palette() {
		if p == c {
			found = true
		}
	}
	if !found {
		t.Fatalf("wrapped allocation returned non-palette color %q", c)
	}
}

func TestReserveBlocksColor(t *testing.T) {
	t.Parallel()
	a := NewAllocator()
	a.Reserve(Palette()[0])
	if got := a.Allocate(); got == Palette()[0] {
		t.Fatalf("reserved color handed out: %q", got)
	}
}

func TestAtWraps(t *testing.T) {
	t.Parallel()
	p := Palette()
	if At(0) != p[0] || At(len(p)) != p[0] || At(len(p)+3) != p[3] {
		t.Fatal("At does not wrap around the palette")
	}
}
