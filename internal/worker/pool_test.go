package worker

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/undefinedlabs/go-mpatch"
)

// safeUnpatch unpatches on cleanup, ignoring nothing.
func safeUnpatch(t *testing.T, patch *mpatch.Patch) {
	t.Helper()
	t.Cleanup(func() {
		require.NoError(t, patch.Unpatch())
	})
}

func TestCreateRejectsInvalidAttributes(t *testing.T) {
	attr := DefaultAttributes()
	attr.ThreadCount = 0
	_, err := Create(attr)
	assert.Equal(t, EINVAL, err)
}

func TestAddWorkOverflowsWithoutBlockOnAdd(t *testing.T) {
	p := newTestPool(t, func(a *Attributes) {
		a.ThreadCount = 1
		a.QueueSize = 1
		a.BlockOnErr = Disabled
	})

	started := make(chan struct{})
	block := make(chan struct{})
	require.NoError(t, p.AddWork(func(argument interface{}) int {
		close(started)
		<-block
		return 0
	}, nil))
	<-started

	// Worker is now busy with the blocking task, off the queue; one more
	// task fills the now-empty queue, a third overflows it.
	require.NoError(t, p.AddWork(func(argument interface{}) int { return 0 }, nil))
	err := p.AddWork(func(argument interface{}) int { return 0 }, nil)
	close(block)
	assert.Equal(t, EOVERFLOW, err)
}

func TestAddWorkBlocksOnFullQueueWhenEnabled(t *testing.T) {
	p := newTestPool(t, func(a *Attributes) {
		a.ThreadCount = 1
		a.QueueSize = 1
		a.BlockOnAdd = Enabled
	})

	started := make(chan struct{})
	block := make(chan struct{})
	require.NoError(t, p.AddWork(func(argument interface{}) int {
		close(started)
		<-block
		return 0
	}, nil))
	<-started
	require.NoError(t, p.AddWork(func(argument interface{}) int { return 0 }, nil))

	submitted := make(chan error, 1)
	go func() {
		submitted <- p.AddWork(func(argument interface{}) int { return 0 }, nil)
	}()

	select {
	case <-submitted:
		t.Fatal("AddWork returned before the queue had room")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	select {
	case err := <-submitted:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("AddWork never unblocked")
	}
}

// TestTimedAddWorkIgnoresTimedWaitFlag covers S3: TimedWait defaults to
// Disabled, yet TimedAddWork must still honor its explicit timeout
// rather than reject with ENOTSUP.
func TestTimedAddWorkIgnoresTimedWaitFlag(t *testing.T) {
	p := newTestPool(t, func(a *Attributes) {
		a.ThreadCount = 1
		a.QueueSize = 1
		a.TimedWait = Disabled
	})

	started := make(chan struct{})
	block := make(chan struct{})
	require.NoError(t, p.AddWork(func(argument interface{}) int {
		close(started)
		<-block
		return 0
	}, nil))
	<-started
	defer close(block)
	require.NoError(t, p.AddWork(func(argument interface{}) int { return 0 }, nil))

	err := p.TimedAddWork(func(argument interface{}) int { return 0 }, nil, 20*time.Millisecond)
	assert.Equal(t, ETIMEDOUT, err)
}

// TestTimedWaitIgnoresTimedWaitFlag mirrors the above for TimedWait:
// the timed variant always uses the given deadline.
func TestTimedWaitIgnoresTimedWaitFlag(t *testing.T) {
	p := newTestPool(t, func(a *Attributes) {
		a.ThreadCount = 1
		a.TimedWait = Disabled
	})
	block := make(chan struct{})
	require.NoError(t, p.AddWork(func(argument interface{}) int {
		<-block
		return 0
	}, nil))
	defer close(block)

	assert.Equal(t, ETIMEDOUT, p.TimedWait(20*time.Millisecond))
}

// TestAddWorkBlockOnAddBoundByDefaultWaitWhenTimedWaitEnabled covers the
// "blocking pool APIs use a default timeout" clause of the TimedWait
// attribute: a BlockOnAdd caller stuck behind a permanently-busy worker
// must time out instead of blocking forever once TimedWait is enabled.
func TestAddWorkBlockOnAddBoundByDefaultWaitWhenTimedWaitEnabled(t *testing.T) {
	p := newTestPool(t, func(a *Attributes) {
		a.ThreadCount = 1
		a.QueueSize = 1
		a.BlockOnAdd = Enabled
		a.TimedWait = Enabled
		a.Timeout = 1 // second; sub-second default_wait values aren't valid
	})

	started := make(chan struct{})
	block := make(chan struct{})
	require.NoError(t, p.AddWork(func(argument interface{}) int {
		close(started)
		<-block
		return 0
	}, nil))
	<-started
	defer close(block)
	require.NoError(t, p.AddWork(func(argument interface{}) int { return 0 }, nil))

	err := p.AddWork(func(argument interface{}) int { return 0 }, nil)
	assert.Equal(t, ETIMEDOUT, err)
}

func TestDestroyInvalidFlagIsEINVAL(t *testing.T) {
	p := newTestPool(t, nil)
	assert.Equal(t, EINVAL, p.Destroy(DestroyFlag(99)))
}

// TestWaitObservesRunningTaskBeforeQueueGoesEmpty is a regression test
// for the gap between a task leaving the queue and runningCount
// reflecting it: if Wait could ever observe an empty queue with
// runningCount still 0 while the last task is about to start, this
// would flake by seeing CompletedTasks < TotalTasks immediately after
// Wait returns. Runs many short rounds to press on the narrow window.
func TestWaitObservesRunningTaskBeforeQueueGoesEmpty(t *testing.T) {
	p := newTestPool(t, func(a *Attributes) { a.ThreadCount = 1; a.QueueSize = 1 })

	for i := 0; i < 200; i++ {
		var ran atomic.Bool
		require.NoError(t, p.AddWork(func(argument interface{}) int {
			ran.Store(true)
			return 0
		}, nil))
		require.NoError(t, p.Wait())
		assert.True(t, ran.Load(), "round %d: Wait returned before the task ran", i)
	}
}

func TestTimedWaitTimesOutUnderSustainedLoad(t *testing.T) {
	p := newTestPool(t, func(a *Attributes) {
		a.ThreadCount = 1
		a.TimedWait = Enabled
	})
	block := make(chan struct{})
	require.NoError(t, p.AddWork(func(argument interface{}) int {
		<-block
		return 0
	}, nil))
	defer close(block)

	err := p.TimedWait(20 * time.Millisecond)
	assert.Equal(t, ETIMEDOUT, err)
}

// TestTimedWaitDeadlineExpiryIsClockDriven patches time.Now so the
// deadline established by TimedWait is already behind the clock on its
// very first re-check, proving the ETIMEDOUT path is driven by wall-clock
// comparison rather than a fixed number of poll iterations, without
// actually waiting out a real timeout.
func TestTimedWaitDeadlineExpiryIsClockDriven(t *testing.T) {
	p := newTestPool(t, func(a *Attributes) {
		a.ThreadCount = 1
		a.TimedWait = Enabled
	})
	block := make(chan struct{})
	require.NoError(t, p.AddWork(func(argument interface{}) int {
		<-block
		return 0
	}, nil))
	defer close(block)

	var calls atomic.Int64
	base := time.Now()
	patch, err := mpatch.PatchMethod(time.Now, func() time.Time {
		if calls.Add(1) == 1 {
			return base
		}
		return base.Add(time.Hour)
	})
	require.NoError(t, err)
	safeUnpatch(t, patch)

	err = p.TimedWait(20 * time.Millisecond)
	assert.Equal(t, ETIMEDOUT, err)
	assert.GreaterOrEqual(t, calls.Load(), int64(2))
}

func TestSignalAlwaysENOTSUP(t *testing.T) {
	p := newTestPool(t, nil)

	var gotIndex, gotSig atomic.Int64
	var calls atomic.Int64
	old := signalHookForTest
	signalHookForTest = func(index, sig int) {
		gotIndex.Store(int64(index))
		gotSig.Store(int64(sig))
		calls.Add(1)
	}
	defer func() { signalHookForTest = old }()

	assert.Equal(t, ENOTSUP, p.Signal(0, 9))
	assert.Equal(t, int64(0), gotIndex.Load())
	assert.Equal(t, int64(9), gotSig.Load())

	assert.Equal(t, ENOTSUP, p.SignalAll(15))
	assert.Equal(t, int64(2), calls.Load())
}

func TestSignalUnknownWorkerIsENOENT(t *testing.T) {
	p := newTestPool(t, nil)
	assert.Equal(t, ENOENT, p.Signal(99, 9))
}

func TestDestroyIsIdempotent(t *testing.T) {
	p := newTestPool(t, nil)
	require.NoError(t, p.Destroy(Graceful))
	assert.Equal(t, EINVAL, p.Destroy(Graceful))
}

func TestDestroyForcefulWithQueuedWorkCountsSubmissions(t *testing.T) {
	p := newTestPool(t, func(a *Attributes) {
		a.ThreadCount = 1
		a.QueueSize = 4
	})

	block := make(chan struct{})
	require.NoError(t, p.AddWork(func(argument interface{}) int {
		<-block
		return 0
	}, nil))
	require.NoError(t, p.AddWork(func(argument interface{}) int { return 0 }, nil))
	close(block)

	require.NoError(t, p.Destroy(Forceful))
	m := p.Metrics()
	assert.Equal(t, int64(2), m.TotalTasks)
}

func TestMetricsTracksPeakRunning(t *testing.T) {
	p := newTestPool(t, func(a *Attributes) { a.ThreadCount = 4 })

	var wg sync.WaitGroup
	release := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		require.NoError(t, p.AddWork(func(argument interface{}) int {
			wg.Done()
			<-release
			return 0
		}, nil))
	}
	wg.Wait()
	close(release)
	require.NoError(t, p.Wait())

	m := p.Metrics()
	assert.Equal(t, int64(4), m.PeakRunning)
	assert.Equal(t, int64(4), m.CompletedTasks)
}

func TestCancelWaitUnblocksPoolWait(t *testing.T) {
	p := newTestPool(t, func(a *Attributes) {
		a.ThreadCount = 1
		a.QueueSize = 2
	})

	started := make(chan struct{})
	block := make(chan struct{})
	require.NoError(t, p.AddWork(func(argument interface{}) int {
		close(started)
		<-block
		return 0
	}, nil))
	<-started
	defer close(block)

	// A second queued task keeps the queue non-empty while the worker is
	// stuck on the first, so Pool.Wait genuinely parks in WaitForIsEmpty.
	require.NoError(t, p.AddWork(func(argument interface{}) int { return 0 }, nil))

	result := make(chan error, 1)
	go func() { result <- p.Wait() }()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.CancelWait())

	select {
	case err := <-result:
		assert.Equal(t, EAGAIN, err)
	case <-time.After(time.Second):
		t.Fatal("Wait never returned after CancelWait")
	}
}
