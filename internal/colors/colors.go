// Package colors hands out display colors for schedules.
package colors

import "sync"

// palette is the fixed set of schedule colors, in allocation order.
var palette = []string{
	"#FF6B6B", // red
	"#4ECDC4", // teal
	"#45B7D1", // blue
	"#96CEB4", // green
	"#FFEEAD", // yellow
	"#D4A5A5", // pink
	"#9B59B6", // purple
	"#3498DB", // blue
	"#E67E22", // orange
	"#2ECC71", // green
}

// Palette returns a copy of the full palette.
func Palette() []string {
	out := make([]string, len(palette))
	copy(out, palette)
	return out
}

// At returns the palette color for an index, wrapping around.
func At(index int) string {
	if index < 0 {
		index = -index
	}
	return palette[index%len(palette)]
}

// Allocator hands out the first palette color not currently in use, so
// concurrently visible schedules stay distinguishable. When every color is
// taken it wraps around by allocation count.
type Allocator struct {
	mu   sync.Mutex
	used map[string]int
	seq  int
}

func NewAllocator() *Allocator {
	return &Allocator{used: make(map[string]int)}
}

// Allocate reserves and returns a color.
func (a *Allocator) Allocate() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, c := range palette {
		if a.used[c] == 0 {
			a.used[c]++
			a.seq++
			return c
		}
	}
	c := At(a.seq)
	a.used[c]++
	a.seq++
	return c
}

// Reserve marks an externally chosen color as in use (e.g. loaded from the
// store). Unknown colors are counted too so Release stays symmetric.
func (a *Allocator) Reserve(color string) {
	if color == "" {
		return
	}
	a.mu.Lock()
	a.used[color]++
	a.mu.Unlock()
}

// Release returns a color to the pool.
func (a *Allocator) Release(color string) {
	if color == "" {
		return
	}
	a.mu.Lock()
	if n := a.used[color]; n > 1 {
		a.used[color] = n - 1
	} else {
		delete(a.used, color)
	}
	a.mu.Unlock()
}
