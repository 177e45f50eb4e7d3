package codec

import "errors"

var (
	ErrQueueOpen   = errors.New("codec: message already begun")
	ErrQueueClosed = errors.New("codec: message not begun")
)

// Queue brackets the writes of one outgoing message.
//
// In immediate mode every write goes straight to the destination sink and End
// is a no-op. In queued mode writes are recorded and replayed into the
// destination, in call order, only when End is called; Discard drops them, so
// a failed encode leaves the destination untouched.
type Queue struct {
	dst    Sink
	queued bool
	open   bool
	ops    []func(Sink)
}

// NewQueue returns a queue writing into dst.
func NewQueue(dst Sink, queued bool) *Queue {
	return &Queue{dst: dst, queued: queued}
}

// Queued reports whether writes are deferred until End.
func (q *Queue) Queued() bool {
	return q.queued
}

// Len returns the number of recorded writes.
func (q *Queue) Len() int {
	return len(q.ops)
}

// Begin opens a message.
func (q *Queue) Begin() error {
	if q.open {
		return ErrQueueOpen
	}
	q.open = true
	q.ops = q.ops[:0]
	return nil
}

// End closes the message, replaying recorded writes in queued mode.
func (q *Queue) End() error {
	if !q.open {
		return ErrQueueClosed
	}
	q.open = false
	if !q.queued {
		return nil
	}
	for _, op := range q.ops {
		op(q.dst)
	}
	q.ops = q.ops[:0]
	return nil
}

// Discard closes the message without replaying anything.
func (q *Queue) Discard() {
	q.open = false
	q.ops = q.ops[:0]
}

func (q *Queue) write(op func(Sink)) {
	if q.queued {
		q.ops = append(q.ops, op)
		return
	}
	op(q.dst)
}

func (q *Queue) WriteTag(t Tag)         { q.write(func(s Sink) { s.WriteTag(t) }) }
func (q *Queue) WriteBool(b bool)       { q.write(func(s Sink) { s.WriteBool(b) }) }
func (q *Queue) WriteInt8(v int8)       { q.write(func(s Sink) { s.WriteInt8(v) }) }
func (q *Queue) WriteInt16(v int16)     { q.write(func(s Sink) { s.WriteInt16(v) }) }
func (q *Queue) WriteInt32(v int32)     { q.write(func(s Sink) { s.WriteInt32(v) }) }
func (q *Queue) WriteFloat64(v float64) { q.write(func(s Sink) { s.WriteFloat64(v) }) }
func (q *Queue) WriteString(str string) { q.write(func(s Sink) { s.WriteString(str) }) }
func (q *Queue) WriteVector(v Vector)   { q.write(func(s Sink) { s.WriteVector(v) }) }
func (q *Queue) WriteAngle(a Angle)     { q.write(func(s Sink) { s.WriteAngle(a) }) }
func (q *Queue) WriteEntity(e Entity)   { q.write(func(s Sink) { s.WriteEntity(e) }) }
