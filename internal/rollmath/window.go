package rollmath

// Window is a fixed-capacity trailing buffer of the most recent values.
// Uses a preallocated circular buffer; Push is O(1).
type Window struct {
	buf   []float64
	idx   int // next write position
	count int // values held, capped at len(buf)
}

// NewWindow creates a window holding the last size values.
func NewWindow(size int) *Window {
	if size < 1 {
		size = 1
	}
	return &Window{buf: make([]float64, size)}
}

// Push appends v, evicting the oldest value once the window is full.
func (w *Window) Push(v float64) {
	w.buf[w.idx] = v
	w.idx = (w.idx + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

// Len returns the number of values held.
func (w *Window) Len() int { return w.count }

// Cap returns the window size.
func (w *Window) Cap() int { return len(w.buf) }

// Full reports whether the window holds Cap values.
func (w *Window) Full() bool { return w.count == len(w.buf) }

// Values returns the held values oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, w.count)
	start := (w.idx - w.count + len(w.buf)) % len(w.buf)
	for i := 0; i < w.count; i++ {
		out[i] = w.buf[(start+i)%len(w.buf)]
	}
	return out
}

// With returns the values the window would hold after pushing v, oldest
// first, without mutating the window.
func (w *Window) With(v float64) []float64 {
	vals := w.Values()
	if w.Full() {
		vals = vals[1:]
	}
	return append(vals, v)
}

// Last returns the most recent value.
func (w *Window) Last() (float64, bool) {
	if w.count == 0 {
		return 0, false
	}
	return w.buf[(w.idx-1+len(w.buf))%len(w.buf)], true
}

// Reset empties the window.
func (w *Window) Reset() {
	w.idx = 0
	w.count = 0
	for i := range w.buf {
		w.buf[i] = 0
	}
}
