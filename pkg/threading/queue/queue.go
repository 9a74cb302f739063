package queue

// Queue is a FIFO container of values.
// The zero value is an empty queue.
type Queue[T any] struct {
	head, tail *node[T]
	size       int
}

type node[T any] struct {
	value T
	next  *node[T]
}

// Enqueue appends v at the back of the queue.
func (q *Queue[T]) Enqueue(v T) {
	n := &node[T]{value: v}
	if q.tail != nil {
		q.tail.next = n
	}
	q.tail = n
	if q.head == nil {
		q.head = n
	}
	q.size++
}

// Dequeue removes and returns the front value.
// The boolean is false when the queue is empty.
func (q *Queue[T]) Dequeue() (T, bool) {
	var zero T
	n := q.head
	if n == nil {
		return zero, false
	}
	q.head = n.next
	if q.tail == n {
		q.tail = nil
	}
	q.size--
	v := n.value
	n.value = zero
	n.next = nil
	return v, true
}

// Len returns the number of queued values.
func (q *Queue[T]) Len() int {
	return q.size
}

// Empty reports whether the queue holds no values.
func (q *Queue[T]) Empty() bool {
	return q.head == nil
}

// Remove deletes the first value for which match returns true.
// It reports whether a value was removed.
func (q *Queue[T]) Remove(match func(T) bool) bool {
	var prev *node[T]
	for n := q.head; n != nil; prev, n = n, n.next {
		if !match(n.value) {
			continue
		}
		if prev == nil {
			q.head = n.next
		} else {
			prev.next = n.next
		}
		if q.tail == n {
			q.tail = prev
		}
		q.size--
		return true
	}
	return false
}

// Items returns the queued values front to back.
func (q *Queue[T]) Items() []T {
	items := make([]T, 0, q.size)
	for n := q.head; n != nil; n = n.next {
		items = append(items, n.value)
	}
	return items
}
