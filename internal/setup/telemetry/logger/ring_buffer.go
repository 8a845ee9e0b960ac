package logger

// lineRing is a fixed-capacity circular buffer of log lines.
type lineRing struct {
	lines     []string
	capacity  int
	head      int // Next write position
	size      int // Current number of items in buffer
	totalSeen int // Total number of lines that have passed through
}

func newLineRing(capacity int) *lineRing {
	return &lineRing{
		lines:    make([]string, capacity),
		capacity: capacity,
	}
}

func (r *lineRing) add(line string) {
	r.lines[r.head] = line

	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}

	r.totalSeen++
}

// ordered returns all buffered lines in chronological order.
func (r *lineRing) ordered() []string {
	if r.size == 0 {
		return nil
	}

	result := make([]string, r.size)
	start := (r.head - r.size + r.capacity) % r.capacity

	for i := range r.size {
		idx := (start + i) % r.capacity
		result[i] = r.lines[idx]
	}

	return result
}
