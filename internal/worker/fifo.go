package worker

// fifo is the bounded FIFO underlying the concurrent queue. It is a
// plain circular buffer over a slice with modulo head/tail offsets,
// limited to the push-tail/pop-head/peek-head shape a task queue needs
// (no arbitrary insert, no search). It carries no locking of its own —
// the concurrentQueue wrapper owns that.
type fifo struct {
	buf      []Task
	head     int
	size     int
	capacity int // Unlimited disables the push-tail overflow check
}

// newFIFO builds a fifo with the given bound. capacity == Unlimited
// disables the overflow check entirely; the backing slice still grows
// as needed.
func newFIFO(capacity int) *fifo {
	initial := capacity
	if initial == Unlimited || initial > 64 {
		initial = 64
	}
	if initial < 1 {
		initial = 1
	}
	return &fifo{
		buf:      make([]Task, initial),
		capacity: capacity,
	}
}

func (f *fifo) length() int {
	return f.size
}

func (f *fifo) cap() int {
	return f.capacity
}

func (f *fifo) isEmpty() bool {
	return f.size == 0
}

// isFull reports whether the FIFO is at its configured bound. It is
// meaningless for an Unlimited fifo; callers must check that separately.
func (f *fifo) isFull() bool {
	return f.capacity != Unlimited && f.size >= f.capacity
}

// pushTail appends an item, growing the backing array if the FIFO has no
// fixed bound (Unlimited) or failing EOVERFLOW if it is at capacity.
func (f *fifo) pushTail(t Task) error {
	if f.isFull() {
		return EOVERFLOW
	}
	if f.size == len(f.buf) {
		f.grow()
	}
	tail := (f.head + f.size) % len(f.buf)
	f.buf[tail] = t
	f.size++
	return nil
}

func (f *fifo) grow() {
	next := make([]Task, len(f.buf)*2)
	for i := 0; i < f.size; i++ {
		next[i] = f.buf[(f.head+i)%len(f.buf)]
	}
	f.buf = next
	f.head = 0
}

// popHead removes and returns the oldest item. ok is false on an empty
// FIFO.
func (f *fifo) popHead() (Task, bool) {
	if f.size == 0 {
		return Task{}, false
	}
	t := f.buf[f.head]
	f.buf[f.head] = Task{} // drop the reference so it can be GC'd
	f.head = (f.head + 1) % len(f.buf)
	f.size--
	return t, true
}

func (f *fifo) peekHead() (Task, bool) {
	if f.size == 0 {
		return Task{}, false
	}
	return f.buf[f.head], true
}

// clear empties the FIFO, invoking dispose (if non-nil) on each
// discarded element in FIFO order.
func (f *fifo) clear(dispose func(Task)) {
	for f.size > 0 {
		t, _ := f.popHead()
		if dispose != nil {
			dispose(t)
		}
	}
}
