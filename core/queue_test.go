package core

import "testing"

func TestInstructionQueueFIFO(t *testing.T) {
	q := NewInstructionQueue(4)

	if !q.IsEmpty() {
		t.Error("New queue should be empty")
	}
	if q.Cap() != 4 {
		t.Errorf("Expected capacity 4, got %d", q.Cap())
	}

	for i := uint32(1); i <= 4; i++ {
		if !q.PushBack(Instruction{Quantity: i}) {
			t.Fatalf("Push %d should succeed", i)
		}
	}
	if q.PushBack(Instruction{Quantity: 5}) {
		t.Error("Push onto a full queue should fail")
	}
	if q.PushFront(Instruction{Quantity: 0}) {
		t.Error("PushFront onto a full queue should fail")
	}
	if q.Len() != 4 {
		t.Errorf("Failed pushes must not change the queue, len %d", q.Len())
	}

	if in, _ := q.PopFront(); in.Quantity != 1 {
		t.Errorf("Expected front 1, got %d", in.Quantity)
	}
	if in, _ := q.PopBack(); in.Quantity != 4 {
		t.Errorf("Expected back 4, got %d", in.Quantity)
	}

	// Wrap around the ring
	q.PushBack(Instruction{Quantity: 5})
	q.PushFront(Instruction{Quantity: 1})

	want := []uint32{1, 2, 3, 5}
	for i, w := range want {
		in, ok := q.PopFront()
		if !ok || in.Quantity != w {
			t.Errorf("Pop %d: expected %d, got %d (ok=%v)", i, w, in.Quantity, ok)
		}
	}
	if _, ok := q.PopFront(); ok {
		t.Error("Pop from an empty queue should fail")
	}
}

func TestInstructionQueuePeekAndClear(t *testing.T) {
	q := NewInstructionQueue(0)
	if q.Cap() != DefaultQueueCapacity {
		t.Errorf("Expected default capacity %d, got %d", DefaultQueueCapacity, q.Cap())
	}

	if _, ok := q.Back(); ok {
		t.Error("Back of an empty queue should fail")
	}
	if _, ok := q.Front(); ok {
		t.Error("Front of an empty queue should fail")
	}

	q.PushBack(Instruction{Quality: Extend, Quantity: 7})
	q.PushBack(Instruction{Quality: Retract, Quantity: 9})

	if front, _ := q.Front(); front.Quality != Extend {
		t.Errorf("Expected extend at front, got %v", front.Quality)
	}
	if back, _ := q.Back(); back.Quality != Retract {
		t.Errorf("Expected retract at back, got %v", back.Quality)
	}
	if q.Len() != 2 {
		t.Errorf("Peeking must not remove, len %d", q.Len())
	}

	q.Clear()
	if !q.IsEmpty() {
		t.Error("Clear should empty the queue")
	}
}
