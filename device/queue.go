package device

import "go.uber.org/multierr"

// CaptureQueue holds in-flight captures in acquisition order. It never evicts on its own; the
// caller decides when to drop the oldest entry, trading latency for buffer depth.
//
// The queue owns what it holds: a Capture pushed onto it must not be closed by anyone else, and
// must not be used after it has been popped.
type CaptureQueue struct {
	captures []*Capture
}

// NewCaptureQueue returns an empty queue.
func NewCaptureQueue() *CaptureQueue {
	return &CaptureQueue{}
}

// Push appends c at the back.
func (q *CaptureQueue) Push(c *Capture) {
	q.captures = append(q.captures, c)
}

// Front returns the oldest capture without removing it, or nil if the queue is empty.
func (q *CaptureQueue) Front() *Capture {
	if len(q.captures) == 0 {
		return nil
	}
	return q.captures[0]
}

// Len returns the number of captures whose handles are still held.
func (q *CaptureQueue) Len() int {
	return len(q.captures)
}

// PopFront releases the oldest capture and removes it. An empty queue is not an error. The
// capture is removed even when a release fails; the error is returned for reporting.
func (q *CaptureQueue) PopFront() error {
	if len(q.captures) == 0 {
		return nil
	}
	front := q.captures[0]
	err := front.Close()
	q.captures[0] = nil
	q.captures = q.captures[1:]
	return err
}

// Close releases every capture, oldest first.
func (q *CaptureQueue) Close() error {
	var err error
	for len(q.captures) > 0 {
		err = multierr.Append(err, q.PopFront())
	}
	q.captures = nil
	return err
}
