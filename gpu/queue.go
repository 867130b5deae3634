// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package gpu

import (
	"context"
	"slices"
	"sync"

	"github.com/gogpu/gputypes"
)

// Fence signals the completion of a submission.
type Fence struct {
	done chan struct{}
	err  error
}

func newFence() *Fence { return &Fence{done: make(chan struct{})} }

func (f *Fence) signal(err error) {
	f.err = err
	close(f.done)
}

// Done returns a channel that is closed when the
// submission completes.
func (f *Fence) Done() <-chan struct{} { return f.done }

// Err returns the execution error of a completed
// submission. It must only be called after Done is closed.
func (f *Fence) Err() error { return f.err }

// Wait blocks until the submission completes or ctx is
// done.
// It returns the execution error, if any.
func (f *Fence) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return stateErr("Fence.Wait", ctx.Err())
	}
}

// Queue executes submissions in order.
// Submissions to different queues are not ordered relative
// to each other.
// Its methods are safe for concurrent use.
type Queue struct {
	dev   *Device
	label string
	// Guards jobs and closed.
	mu     sync.RWMutex
	jobs   chan func()
	closed bool
	// Serializes Submit so that submissions enter jobs
	// in the order their validation completed.
	submit sync.Mutex
	wg     sync.WaitGroup
}

func newQueue(d *Device, label string, depth int) *Queue {
	q := &Queue{
		dev:   d,
		label: label,
		jobs:  make(chan func(), depth),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *Queue) run() {
	defer q.wg.Done()
	for job := range q.jobs {
		job()
	}
}

// enqueue sends job to the worker.
// It blocks while the queue is full.
func (q *Queue) enqueue(op string, job func()) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return stateErr(op, ErrDestroyed)
	}
	q.jobs <- job
	return nil
}

// stop closes the queue and waits for the worker to drain
// it. It returns false if the queue was closed already.
func (q *Queue) stop() bool {
	q.mu.Lock()
	closed := q.closed
	if !closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
	return !closed
}

// CreateQueue creates a new queue.
func (d *Device) CreateQueue(label string) (*Queue, error) {
	const op = "Device.CreateQueue"
	if err := d.check(op); err != nil {
		return nil, err
	}
	q := newQueue(d, label, d.cfg.QueueDepth)
	d.created()
	return q, nil
}

// Label returns the debug label.
func (q *Queue) Label() string { return q.label }

// Submit submits a batch of command buffers for execution
// and returns at once.
// Command buffers execute in list order, after every prior
// submission to q. If sc is not nil, the command buffers
// render to its acquired texture, which must be presented
// with sc.Present.
// Submit fails if a command buffer was already submitted or
// references a mapped buffer; no command buffer is consumed
// in that case.
func (q *Queue) Submit(cbs []*CommandBuffer, sc *Swapchain) (*Fence, error) {
	const op = "Queue.Submit"
	d := q.dev
	if err := d.check(op); err != nil {
		return nil, err
	}
	q.submit.Lock()
	defer q.submit.Unlock()

	if sc != nil {
		if err := sc.submittable(op, q); err != nil {
			return nil, err
		}
	}
	taken := 0
	rollback := func() {
		for _, cb := range cbs[:taken] {
			cb.state.Store(int32(cbReady))
		}
	}
	for _, cb := range cbs {
		if cb == nil {
			rollback()
			return nil, configErr(op, ErrNilResource)
		}
		if cb.dev != d {
			rollback()
			return nil, stateErr(op, ErrWrongDevice)
		}
		if !cb.state.CompareAndSwap(int32(cbReady), int32(cbSubmitted)) {
			rollback()
			if cbState(cb.state.Load()) == cbDestroyed {
				return nil, stateErr(op, ErrDestroyed)
			}
			return nil, stateErr(op, ErrConsumed)
		}
		taken++
	}

	f := newFence()
	writes := make(map[*Buffer]bool)
	for _, cb := range cbs {
		for buf, write := range cb.bufs {
			writes[buf] = writes[buf] || write
		}
	}
	marked := make([]bufferUse, 0, len(writes))
	unmark := func() {
		for _, u := range marked {
			u.unuse(f)
		}
	}
	for buf, write := range writes {
		u, err := buf.use(f, write)
		if err != nil {
			unmark()
			rollback()
			f.signal(err)
			return nil, stateErr(op, err)
		}
		marked = append(marked, u)
	}

	batch := slices.Clone(cbs)
	err := q.enqueue(op, func() {
		err := d.be.Execute(batch)
		for _, cb := range batch {
			cb.releaseRefs()
		}
		if err != nil {
			err = d.fail(op, err)
		}
		f.signal(err)
	})
	if err != nil {
		unmark()
		rollback()
		f.signal(err)
		return nil, err
	}
	if sc != nil {
		sc.setQueue(q)
	}
	slogger().Debug("gpu: submitted", "queue", q.label, "buffers", len(batch))
	return f, nil
}

// WriteBuffer writes data to buf at offset, after every
// prior submission to q.
// offset and len(data) must be multiples of 4.
func (q *Queue) WriteBuffer(buf *Buffer, offset uint64, data []byte) (*Fence, error) {
	const op = "Queue.WriteBuffer"
	d := q.dev
	if err := d.check(op); err != nil {
		return nil, err
	}
	if buf == nil {
		return nil, configErr(op, ErrNilResource)
	}
	if err := d.owned(buf); err != nil {
		return nil, stateErr(op, err)
	}
	n := uint64(len(data))
	switch {
	case buf.usage&gputypes.BufferUsageCopyDst == 0:
		return nil, stateErr(op, wrapf(ErrMissingUsage, "copy-dst"))
	case offset%4 != 0 || n%4 != 0:
		return nil, configErr(op, wrapf(ErrAlignment, "write [%d, +%d)", offset, n))
	case offset > buf.size || n > buf.size-offset:
		return nil, configErr(op, wrapf(ErrOutOfBounds, "write [%d, +%d) of %d", offset, n, buf.size))
	}
	if err := buf.retain(); err != nil {
		return nil, stateErr(op, err)
	}
	q.submit.Lock()
	defer q.submit.Unlock()
	f := newFence()
	u, err := buf.use(f, true)
	if err != nil {
		buf.release()
		f.signal(err)
		return nil, stateErr(op, err)
	}
	data = slices.Clone(data)
	err = q.enqueue(op, func() {
		err := d.be.WriteBuffer(buf.h, offset, data)
		buf.release()
		if err != nil {
			err = d.fail(op, err)
		}
		f.signal(err)
	})
	if err != nil {
		u.unuse(f)
		buf.release()
		f.signal(err)
		return nil, err
	}
	return f, nil
}

// OnSubmittedWorkDone returns a fence that signals when
// every prior submission to q completes.
func (q *Queue) OnSubmittedWorkDone() (*Fence, error) {
	const op = "Queue.OnSubmittedWorkDone"
	if err := q.dev.check(op); err != nil {
		return nil, err
	}
	f := newFence()
	if err := q.enqueue(op, func() { f.signal(nil) }); err != nil {
		return nil, err
	}
	return f, nil
}

// WaitIdle blocks until every prior submission to q
// completes or ctx is done.
func (q *Queue) WaitIdle(ctx context.Context) error {
	f, err := q.OnSubmittedWorkDone()
	if err != nil {
		return err
	}
	return f.Wait(ctx)
}

// Destroy destroys the queue.
// Pending submissions complete first.
// The default queue cannot be destroyed.
func (q *Queue) Destroy() error {
	const op = "Queue.Destroy"
	if q == q.dev.queue {
		return stateErr(op, wrapf(ErrInUse, "default queue"))
	}
	if !q.stop() {
		return stateErr(op, ErrDestroyed)
	}
	q.dev.forget()
	return nil
}
