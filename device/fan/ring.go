package fan

// Ring keeps the last Cap() RPM samples. The write index wraps modulo the
// capacity and the valid count saturates at the capacity.
type Ring struct {
	slots []RPM
	next  int
	n     int
}

func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{slots: make([]RPM, capacity)}
}

func (r *Ring) Push(v RPM) {
	r.slots[r.next] = v
	r.next = (r.next + 1) % len(r.slots)
	if r.n < len(r.slots) {
		r.n++
	}
}

func (r *Ring) Len() int {
	return r.n
}

func (r *Ring) Cap() int {
	return len(r.slots)
}

// Next is the slot the following Push overwrites.
func (r *Ring) Next() int {
	return r.next
}

// Filled reports whether every slot holds a sample.
func (r *Ring) Filled() bool {
	return r.n == len(r.slots)
}

// Values copies the valid samples out, oldest first.
func (r *Ring) Values() []RPM {
	out := make([]RPM, r.n)
	start := 0
	if r.Filled() {
		start = r.next
	}
	for i := 0; i < r.n; i++ {
		out[i] = r.slots[(start+i)%len(r.slots)]
	}
	return out
}
