package worker

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"wpool/internal/logging"
)

// DestroyFlag selects how Destroy tears a pool down.
type DestroyFlag int

const (
	// Graceful waits for queued and in-flight tasks to finish before any
	// worker goroutine exits.
	Graceful DestroyFlag = iota
	// Forceful stops every worker as soon as it reaches a poll point,
	// abandoning anything still queued.
	Forceful
)

func (d DestroyFlag) String() string {
	if d == Forceful {
		return "FORCEFUL"
	}
	return "GRACEFUL"
}

// PoolMetrics is a snapshot of pool-wide counters.
type PoolMetrics struct {
	TotalTasks     int64
	CompletedTasks int64
	FailedTasks    int64
	PeakRunning    int64
	TotalExecTime  time.Duration
}

// Pool is the worker pool engine: a fixed set of worker goroutines
// pulling from a bounded concurrent queue, plus the lock/dedicated-task
// and error-latch machinery the state machine requires.
type Pool struct {
	attr    Attributes
	cq      *concurrentQueue
	workers []*worker
	wg      sync.WaitGroup
	logger  *logging.Logger

	startOnce sync.Once

	runningCount atomic.Int64

	mu        sync.Mutex
	metrics   PoolMetrics
	destroyed bool
	statusBuf []Info
}

// Create builds a pool from attr. Attributes is copied; mutating the
// caller's value afterward has no effect on the pool.
func Create(attr Attributes) (*Pool, error) {
	if err := attr.Validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		attr: attr,
		cq:   newConcurrentQueue(attr.QueueSize),
		logger: logging.NewLogger(os.Stdout, logging.LogConfig{
			Level:  logging.INFO,
			Format: logging.Text,
		}),
	}
	p.workers = make([]*worker, attr.ThreadCount)
	for i := range p.workers {
		p.workers[i] = newWorker(p, i)
	}

	if attr.CreatePolicy == Strict {
		p.startOnce.Do(func() {
			for _, w := range p.workers {
				w.start()
			}
		})
	}

	p.logger.PoolStart(attr.ThreadCount, attr.QueueSize, attr.CreatePolicy.String())
	return p, nil
}

// ensureStarted spawns every worker goroutine on first use, under a
// Lazy create policy. A Strict policy already started them in Create,
// so this is then a no-op.
func (p *Pool) ensureStarted() {
	p.startOnce.Do(func() {
		for _, w := range p.workers {
			w.start()
		}
	})
}

func (p *Pool) workerAt(index int) (*worker, error) {
	if index < 0 || index >= len(p.workers) {
		return nil, ENOENT
	}
	return p.workers[index], nil
}

func (p *Pool) noteSubmitted() {
	p.mu.Lock()
	p.metrics.TotalTasks++
	p.mu.Unlock()
}

// beginExecution marks a task as running for metrics purposes, updating
// PeakRunning if a new high-water mark was just set.
func (p *Pool) beginExecution() {
	running := p.runningCount.Add(1)
	p.mu.Lock()
	if running > p.metrics.PeakRunning {
		p.metrics.PeakRunning = running
	}
	p.mu.Unlock()
}

func (p *Pool) endExecution(rc int, elapsed time.Duration) {
	p.runningCount.Add(-1)
	p.mu.Lock()
	if rc != 0 {
		p.metrics.FailedTasks++
	} else {
		p.metrics.CompletedTasks++
	}
	p.metrics.TotalExecTime += elapsed
	p.mu.Unlock()
}

// Metrics returns a snapshot of the pool's counters.
func (p *Pool) Metrics() PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

// AddWork submits a task to the shared queue. With BlockOnAdd disabled
// (the default) a full queue fails EOVERFLOW immediately; with it
// enabled, AddWork blocks until room is available, bounded by the
// pool's default_wait once TimedWait is enabled.
func (p *Pool) AddWork(routine Routine, argument interface{}) error {
	p.ensureStarted()
	task := Task{Routine: routine, Argument: argument, Type: TaskWorker}

	if p.attr.BlockOnAdd == Disabled {
		if err := p.cq.PushTail(nil, task); err != nil {
			return err
		}
		p.noteSubmitted()
		return nil
	}

	var tok *LockToken
	var err error
	if p.attr.TimedWait == Enabled {
		tok, err = p.cq.TimedWaitForNotFull(p.defaultWait())
	} else {
		tok, err = p.cq.WaitForNotFull()
	}
	if err != nil {
		return err
	}
	defer p.cq.Unlock(tok)
	if err := p.cq.PushTail(tok, task); err != nil {
		return err
	}
	p.noteSubmitted()
	return nil
}

// defaultWait converts the attribute's float-seconds Timeout into a
// Duration for the untimed APIs' TimedWait flag.
func (p *Pool) defaultWait() time.Duration {
	return time.Duration(p.attr.Timeout * float64(time.Second))
}

// TimedAddWork is AddWork bounded by an explicit deadline, independent
// of BlockOnAdd and TimedWait: it always blocks up to timeout.
func (p *Pool) TimedAddWork(routine Routine, argument interface{}, timeout time.Duration) error {
	p.ensureStarted()

	tok, err := p.cq.TimedWaitForNotFull(timeout)
	if err != nil {
		return err
	}
	defer p.cq.Unlock(tok)
	task := Task{Routine: routine, Argument: argument, Type: TaskWorker}
	if err := p.cq.PushTail(tok, task); err != nil {
		return err
	}
	p.noteSubmitted()
	return nil
}

// LockThread takes worker index out of the shared-task rotation so
// AddDedicated can hand it tasks directly. EAGAIN if the worker is not
// IDLE.
func (p *Pool) LockThread(index int) error {
	w, err := p.workerAt(index)
	if err != nil {
		return err
	}
	p.ensureStarted()
	if err := w.tryLock(); err != nil {
		return err
	}
	// Wake any worker currently blocked in WaitForNotEmpty so the one
	// that just went LOCKED re-checks its own status instead of
	// consuming the next shared-queue task.
	_ = p.cq.CancelWait()
	return nil
}

// UnlockThread returns a locked worker to the shared rotation.
func (p *Pool) UnlockThread(index int) error {
	w, err := p.workerAt(index)
	if err != nil {
		return err
	}
	return w.unlock()
}

// AddDedicated installs a task directly into a locked worker's single
// dedicated slot. EINVAL if the worker is not LOCKED; EAGAIN if the slot
// is already occupied.
func (p *Pool) AddDedicated(index int, routine Routine, argument interface{}) error {
	w, err := p.workerAt(index)
	if err != nil {
		return err
	}
	if err := w.addDedicated(Task{Routine: routine, Argument: argument}); err != nil {
		return err
	}
	p.noteSubmitted()
	return nil
}

// ThreadStatus snapshots a single worker.
func (p *Pool) ThreadStatus(index int) (Info, error) {
	w, err := p.workerAt(index)
	if err != nil {
		return Info{}, err
	}
	return w.snapshot(), nil
}

// ThreadStatusAll snapshots every worker into a pool-owned buffer,
// reused (not reallocated) across calls.
func (p *Pool) ThreadStatusAll() []Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cap(p.statusBuf) < len(p.workers) {
		p.statusBuf = make([]Info, len(p.workers))
	}
	p.statusBuf = p.statusBuf[:len(p.workers)]
	for i, w := range p.workers {
		p.statusBuf[i] = w.snapshot()
	}
	return p.statusBuf
}

// RestartThread un-blocks a BLOCKED worker or respawns a STOPPED one.
// EALREADY for any other status.
func (p *Pool) RestartThread(index int) error {
	w, err := p.workerAt(index)
	if err != nil {
		return err
	}
	return w.restart()
}

// Refresh respawns the goroutine of every STOPPED worker, leaving
// BLOCKED ones untouched (those need an explicit RestartThread to
// acknowledge the latched error).
func (p *Pool) Refresh() error {
	for _, w := range p.workers {
		w.mu.Lock()
		stopped := w.status == Stopped
		w.mu.Unlock()
		if stopped {
			w.start()
		}
	}
	return nil
}

// Wait blocks until the shared queue is empty and no worker is RUNNING.
// The concurrent queue has no single condvar for "empty and idle", so
// this polls the queue's IsEmpty wait and the live run count with a
// short backoff between checks.
func (p *Pool) Wait() error {
	for {
		tok, err := p.cq.WaitForIsEmpty()
		if err != nil {
			return err
		}
		p.cq.Unlock(tok)
		if p.runningCount.Load() == 0 {
			return nil
		}
		time.Sleep(time.Millisecond)
	}
}

// TimedWait is Wait bounded by timeout, regardless of the TimedWait
// attribute: the timed variant always honors the caller's deadline.
func (p *Pool) TimedWait(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ETIMEDOUT
		}
		tok, err := p.cq.TimedWaitForIsEmpty(remaining)
		if err != nil {
			return err
		}
		p.cq.Unlock(tok)
		if p.runningCount.Load() == 0 {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ETIMEDOUT
		}
		time.Sleep(time.Millisecond)
	}
}

// CancelWait wakes every caller currently blocked in AddWork, Wait, or
// any other queue wait, with EAGAIN.
func (p *Pool) CancelWait() error {
	return p.cq.CancelWait()
}

// signalHookForTest lets tests observe Signal/SignalAll calls without
// the pool claiming a capability Go cannot provide.
var signalHookForTest func(index, sig int)

// Signal fails ENOENT for an out-of-range index and ENOTSUP otherwise:
// Go exposes no addressable per-goroutine OS thread handle to deliver a
// signal to, unlike a pthread_kill target.
func (p *Pool) Signal(index int, sig int) error {
	if _, err := p.workerAt(index); err != nil {
		return err
	}
	if signalHookForTest != nil {
		signalHookForTest(index, sig)
	}
	return ENOTSUP
}

// SignalAll always fails ENOTSUP, for the same reason as Signal.
func (p *Pool) SignalAll(sig int) error {
	if signalHookForTest != nil {
		signalHookForTest(-1, sig)
	}
	return ENOTSUP
}

// Destroy tears the pool down. Graceful drains queued and in-flight work
// first; Forceful stops every worker at its next poll point and
// abandons anything still queued. Idempotent: a second call is EINVAL.
func (p *Pool) Destroy(flag DestroyFlag) error {
	if flag != Graceful && flag != Forceful {
		return EINVAL
	}

	p.mu.Lock()
	if p.destroyed {
		p.mu.Unlock()
		return EINVAL
	}
	p.destroyed = true
	p.mu.Unlock()

	pending, _ := p.cq.Length(nil)
	p.logger.PoolDestroying(flag == Graceful, pending)

	if flag == Graceful {
		_ = p.Wait()
	}

	for _, w := range p.workers {
		w.requestStop()
	}
	_ = p.cq.Destroy()

	for _, w := range p.workers {
		w.join()
	}
	p.wg.Wait()

	p.logger.PoolDestroyed()
	return nil
}
