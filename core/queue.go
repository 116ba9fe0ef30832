package core

// DefaultQueueCapacity is the instruction queue size used by the firmware
const DefaultQueueCapacity = 1024

// InstructionQueue is a fixed-capacity ring deque of instructions.
// Pushes onto a full queue fail and leave the queue untouched.
type InstructionQueue struct {
	buf  []Instruction
	head int // Index of the front element
	size int // Number of queued elements
}

// NewInstructionQueue creates a queue holding at most capacity instructions
func NewInstructionQueue(capacity int) *InstructionQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &InstructionQueue{buf: make([]Instruction, capacity)}
}

// Len returns the number of queued instructions
func (q *InstructionQueue) Len() int {
	return q.size
}

// Cap returns the fixed capacity
func (q *InstructionQueue) Cap() int {
	return len(q.buf)
}

// IsEmpty returns true if nothing is queued
func (q *InstructionQueue) IsEmpty() bool {
	return q.size == 0
}

// PushBack appends an instruction, returning false if the queue is full
func (q *InstructionQueue) PushBack(in Instruction) bool {
	if q.size == len(q.buf) {
		return false
	}
	q.buf[(q.head+q.size)%len(q.buf)] = in
	q.size++
	return true
}

// PushFront prepends an instruction, returning false if the queue is full
func (q *InstructionQueue) PushFront(in Instruction) bool {
	if q.size == len(q.buf) {
		return false
	}
	q.head = (q.head + len(q.buf) - 1) % len(q.buf)
	q.buf[q.head] = in
	q.size++
	return true
}

// PopFront removes and returns the front instruction
func (q *InstructionQueue) PopFront() (Instruction, bool) {
	if q.size == 0 {
		return Instruction{}, false
	}
	in := q.buf[q.head]
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return in, true
}

// PopBack removes and returns the tail instruction
func (q *InstructionQueue) PopBack() (Instruction, bool) {
	if q.size == 0 {
		return Instruction{}, false
	}
	q.size--
	return q.buf[(q.head+q.size)%len(q.buf)], true
}

// Back returns the tail instruction without removing it
func (q *InstructionQueue) Back() (Instruction, bool) {
	if q.size == 0 {
		return Instruction{}, false
	}
	return q.buf[(q.head+q.size-1)%len(q.buf)], true
}

// Front returns the front instruction without removing it
func (q *InstructionQueue) Front() (Instruction, bool) {
	if q.size == 0 {
		return Instruction{}, false
	}
	return q.buf[q.head], true
}

// Clear empties the queue
func (q *InstructionQueue) Clear() {
	q.head = 0
	q.size = 0
}
