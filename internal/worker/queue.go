package worker

import (
	"sync"
	"sync/atomic"
	"time"
)

// LockToken is the capability returned by concurrentQueue.Lock and by a
// successful wait: it stands in for the OS thread identity a pthread
// implementation would compare against pthread_self(). Every
// concurrentQueue operation accepts an optional *LockToken: nil means
// "acquire the mutex for the duration of this call, and drain deferred
// signals on return"; a token matching the queue's current manual lock
// means "the caller already holds the mutex from an earlier
// Lock/WaitFor* call — operate in place, the caller will drain signals
// via Unlock".
type LockToken struct{ id uint64 }

// concurrentQueue is a bounded fifo guarded by one mutex, four condition
// variables (is-empty/is-full/not-empty/not-full) with deferred
// signaling, a manual-lock slot, a destruction flag, and cancellation
// bookkeeping.
type concurrentQueue struct {
	mu sync.Mutex
	f  *fifo

	condIsEmpty  *sync.Cond
	condIsFull   *sync.Cond
	condNotEmpty *sync.Cond
	condNotFull  *sync.Cond
	condLockFree *sync.Cond

	sigIsEmpty  bool
	sigIsFull   bool
	sigNotEmpty bool
	sigNotFull  bool

	manualToken atomic.Pointer[LockToken]
	tokenSeq    uint64

	destroying bool

	// cancellation: an epoch counter closes the race where
	// waitingForCond could be observed as 0 just before another waiter
	// increments it. A waiter records the epoch in effect when it starts
	// waiting; it is cancelled only if that epoch predates the most
	// recent CancelWait call, so a waiter that joins after a
	// cancellation is never spuriously swept up by it.
	cancelEpoch          uint64
	cancelWaitEpoch      uint64 // 0 == no cancellation currently pending
	pendingCancelWaiters int

	waitingForLock atomic.Int64
	waitingForCond atomic.Int64
}

func newConcurrentQueue(capacity int) *concurrentQueue {
	q := &concurrentQueue{f: newFIFO(capacity)}
	q.condIsEmpty = sync.NewCond(&q.mu)
	q.condIsFull = sync.NewCond(&q.mu)
	q.condNotEmpty = sync.NewCond(&q.mu)
	q.condNotFull = sync.NewCond(&q.mu)
	q.condLockFree = sync.NewCond(&q.mu)
	return q
}

// acquire implements lock_queue. tok == nil acquires the
// mutex for the caller (selfLocked == true); a non-nil tok matching the
// current manual lock means the caller already holds it (selfLocked ==
// false); a non-nil tok that does not match is a usage error (EINVAL).
func (q *concurrentQueue) acquire(tok *LockToken) (selfLocked bool, err error) {
	if tok != nil {
		if q.manualToken.Load() != tok {
			return false, EINVAL
		}
		return false, nil
	}

	q.waitingForLock.Add(1)
	q.mu.Lock()
	q.waitingForLock.Add(-1)

	if q.destroying {
		if q.waitingForLock.Load() == 0 {
			q.condLockFree.Signal()
		}
		q.mu.Unlock()
		return false, EINTR
	}
	return true, nil
}

// release implements unlock_queue. Only a self-acquired lock is ever
// released here; a manually-held lock is released by Unlock.
func (q *concurrentQueue) release(selfLocked bool) {
	if !selfLocked {
		return
	}
	q.drainSignalsLocked()
	q.mu.Unlock()
}

// drainSignalsLocked broadcasts any accumulated deferred signals, in a
// fixed order: empty, full, not-empty, not-full. Must be called with mu
// held.
func (q *concurrentQueue) drainSignalsLocked() {
	if q.sigIsEmpty {
		q.condIsEmpty.Broadcast()
		q.sigIsEmpty = false
	}
	if q.sigIsFull {
		q.condIsFull.Broadcast()
		q.sigIsFull = false
	}
	if q.sigNotEmpty {
		q.condNotEmpty.Broadcast()
		q.sigNotEmpty = false
	}
	if q.sigNotFull {
		q.condNotFull.Broadcast()
		q.sigNotFull = false
	}
}

// asImmediate translates the EINTR a destroying queue reports on
// acquisition into the EINVAL that every *non-waiting* public entry
// point returns once destruction has begun. Waiting
// operations propagate EINTR unchanged — see waitForCore.
func asImmediate(err error) error {
	if err == EINTR {
		return EINVAL
	}
	return err
}

// Lock acquires the CQ's mutex on the caller's behalf: every subsequent
// call the caller makes with the returned token operates without
// re-acquiring the mutex, and none of them broadcast — signals queue up
// until Unlock drains them.
func (q *concurrentQueue) Lock() (*LockToken, error) {
	if _, err := q.acquire(nil); err != nil {
		return nil, asImmediate(err)
	}
	q.tokenSeq++
	tok := &LockToken{id: q.tokenSeq}
	q.manualToken.Store(tok)
	return tok, nil
}

// Unlock releases a manual lock acquired by Lock or granted by a
// successful WaitFor*. EPERM if tok does not match the current holder;
// the mutex is left untouched in that case.
func (q *concurrentQueue) Unlock(tok *LockToken) error {
	if tok == nil || q.manualToken.Load() != tok {
		return EPERM
	}
	q.manualToken.Store(nil)
	q.drainSignalsLocked()
	q.mu.Unlock()
	return nil
}

// PushTail enqueues a task.
func (q *concurrentQueue) PushTail(tok *LockToken, t Task) error {
	selfLocked, err := q.acquire(tok)
	if err != nil {
		return asImmediate(err)
	}
	defer q.release(selfLocked)

	if err := q.f.pushTail(t); err != nil {
		return err
	}
	q.sigNotEmpty = true
	if q.f.isFull() {
		q.sigIsFull = true
	}
	return nil
}

// PopHead dequeues the oldest task. ok is false on an empty queue.
func (q *concurrentQueue) PopHead(tok *LockToken) (t Task, ok bool, err error) {
	selfLocked, err := q.acquire(tok)
	if err != nil {
		return Task{}, false, asImmediate(err)
	}
	defer q.release(selfLocked)

	t, ok = q.f.popHead()
	if !ok {
		return Task{}, false, nil
	}
	q.sigNotFull = true
	if q.f.isEmpty() {
		q.sigIsEmpty = true
	}
	return t, true, nil
}

// PeekHead returns the oldest task without removing it.
func (q *concurrentQueue) PeekHead(tok *LockToken) (t Task, ok bool, err error) {
	selfLocked, err := q.acquire(tok)
	if err != nil {
		return Task{}, false, asImmediate(err)
	}
	defer q.release(selfLocked)
	t, ok = q.f.peekHead()
	return t, ok, nil
}

// Length returns the current queue length.
func (q *concurrentQueue) Length(tok *LockToken) (int, error) {
	selfLocked, err := q.acquire(tok)
	if err != nil {
		return 0, asImmediate(err)
	}
	defer q.release(selfLocked)
	return q.f.length(), nil
}

// Capacity returns the configured bound (Unlimited disables it).
func (q *concurrentQueue) Capacity() int {
	return q.f.cap()
}

// Clear empties the queue, invoking dispose on each discarded task.
func (q *concurrentQueue) Clear(tok *LockToken, dispose func(Task)) error {
	selfLocked, err := q.acquire(tok)
	if err != nil {
		return asImmediate(err)
	}
	defer q.release(selfLocked)
	q.f.clear(dispose)
	q.sigNotFull = true
	q.sigIsEmpty = true
	return nil
}

// waitForCore implements wait_for_* / timed_wait_for_*.
// deadline == nil blocks indefinitely (respecting cancellation and
// destruction); a non-nil deadline fails ETIMEDOUT once it passes.
// On success the manual lock is left held for the caller, who must pair
// this with Unlock.
func (q *concurrentQueue) waitForCore(predicate func() bool, cond *sync.Cond, deadline *time.Time) (*LockToken, error) {
	if _, err := q.acquire(nil); err != nil {
		return nil, err // EINTR propagates unchanged for waits
	}

	var timer *time.Timer
	if deadline != nil {
		d := time.Until(*deadline)
		if d < 0 {
			d = 0
		}
		// sync.Cond has no timed wait; a one-shot timer that grabs the
		// mutex and re-broadcasts forces the loop below to re-check the
		// deadline even with no queue activity.
		timer = time.AfterFunc(d, func() {
			q.mu.Lock()
			cond.Broadcast()
			q.mu.Unlock()
		})
		defer timer.Stop()
	}

	myEpoch := q.cancelEpoch
	q.waitingForCond.Add(1)

	for {
		if q.destroying {
			q.waitingForCond.Add(-1)
			q.mu.Unlock()
			return nil, EINTR
		}
		if predicate() {
			break
		}
		if q.cancelWaitEpoch != 0 && myEpoch < q.cancelWaitEpoch {
			q.waitingForCond.Add(-1)
			q.pendingCancelWaiters--
			if q.pendingCancelWaiters <= 0 {
				q.cancelWaitEpoch = 0
				q.pendingCancelWaiters = 0
			}
			q.mu.Unlock()
			return nil, EAGAIN
		}
		if deadline != nil && !time.Now().Before(*deadline) {
			q.waitingForCond.Add(-1)
			q.mu.Unlock()
			return nil, ETIMEDOUT
		}
		cond.Wait()
	}

	q.waitingForCond.Add(-1)
	q.tokenSeq++
	tok := &LockToken{id: q.tokenSeq}
	q.manualToken.Store(tok)
	return tok, nil
}

func (q *concurrentQueue) isEmptyPredicate() bool  { return q.f.isEmpty() }
func (q *concurrentQueue) notEmptyPredicate() bool { return !q.f.isEmpty() }
func (q *concurrentQueue) isFullPredicate() bool   { return q.f.isFull() }
func (q *concurrentQueue) notFullPredicate() bool  { return !q.f.isFull() }

// WaitForIsEmpty blocks until the queue is empty.
func (q *concurrentQueue) WaitForIsEmpty() (*LockToken, error) {
	return q.waitForCore(q.isEmptyPredicate, q.condIsEmpty, nil)
}

// WaitForNotEmpty blocks until the queue holds at least one task.
func (q *concurrentQueue) WaitForNotEmpty() (*LockToken, error) {
	return q.waitForCore(q.notEmptyPredicate, q.condNotEmpty, nil)
}

// WaitForIsFull blocks until the queue is at capacity. ENOTSUP on an
// Unlimited queue.
func (q *concurrentQueue) WaitForIsFull() (*LockToken, error) {
	if q.f.cap() == Unlimited {
		return nil, ENOTSUP
	}
	return q.waitForCore(q.isFullPredicate, q.condIsFull, nil)
}

// WaitForNotFull blocks until the queue has room for at least one task.
func (q *concurrentQueue) WaitForNotFull() (*LockToken, error) {
	return q.waitForCore(q.notFullPredicate, q.condNotFull, nil)
}

func deadlineFromTimeout(timeout time.Duration) (*time.Time, error) {
	switch {
	case timeout < 0:
		return nil, EINVAL
	case timeout == 0:
		return nil, nil // degrades to an untimed wait
	default:
		d := time.Now().Add(timeout)
		return &d, nil
	}
}

// TimedWaitForIsEmpty is WaitForIsEmpty bounded by timeout. timeout == 0
// degrades to an untimed wait; timeout < 0 is EINVAL.
func (q *concurrentQueue) TimedWaitForIsEmpty(timeout time.Duration) (*LockToken, error) {
	deadline, err := deadlineFromTimeout(timeout)
	if err != nil {
		return nil, err
	}
	return q.waitForCore(q.isEmptyPredicate, q.condIsEmpty, deadline)
}

// TimedWaitForNotEmpty is WaitForNotEmpty bounded by timeout.
func (q *concurrentQueue) TimedWaitForNotEmpty(timeout time.Duration) (*LockToken, error) {
	deadline, err := deadlineFromTimeout(timeout)
	if err != nil {
		return nil, err
	}
	return q.waitForCore(q.notEmptyPredicate, q.condNotEmpty, deadline)
}

// TimedWaitForIsFull is WaitForIsFull bounded by timeout.
func (q *concurrentQueue) TimedWaitForIsFull(timeout time.Duration) (*LockToken, error) {
	if q.f.cap() == Unlimited {
		return nil, ENOTSUP
	}
	deadline, err := deadlineFromTimeout(timeout)
	if err != nil {
		return nil, err
	}
	return q.waitForCore(q.isFullPredicate, q.condIsFull, deadline)
}

// TimedWaitForNotFull is WaitForNotFull bounded by timeout.
func (q *concurrentQueue) TimedWaitForNotFull(timeout time.Duration) (*LockToken, error) {
	deadline, err := deadlineFromTimeout(timeout)
	if err != nil {
		return nil, err
	}
	return q.waitForCore(q.notFullPredicate, q.condNotFull, deadline)
}

// CancelWait wakes every thread currently blocked in a wait_for_* call
// with EAGAIN. A no-op returning nil when nobody is waiting.
func (q *concurrentQueue) CancelWait() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.destroying {
		return EINVAL
	}
	if q.waitingForCond.Load() == 0 {
		return nil
	}

	q.cancelEpoch++
	q.cancelWaitEpoch = q.cancelEpoch
	q.pendingCancelWaiters = int(q.waitingForCond.Load())

	q.condIsEmpty.Broadcast()
	q.condIsFull.Broadcast()
	q.condNotEmpty.Broadcast()
	q.condNotFull.Broadcast()
	return nil
}

// Destroy marks the queue destroying, wakes every waiter with EINTR, and
// blocks until every in-flight lock acquisition has observed that and
// backed off, then discards the backing fifo.
func (q *concurrentQueue) Destroy() error {
	q.mu.Lock()
	if q.destroying {
		q.mu.Unlock()
		return EINVAL
	}
	q.destroying = true

	q.condIsEmpty.Broadcast()
	q.condIsFull.Broadcast()
	q.condNotEmpty.Broadcast()
	q.condNotFull.Broadcast()

	for q.waitingForLock.Load() > 0 {
		q.condLockFree.Wait()
	}

	q.f.clear(nil)
	q.mu.Unlock()
	return nil
}

// Destroying reports whether Destroy has begun.
func (q *concurrentQueue) Destroying() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.destroying
}
