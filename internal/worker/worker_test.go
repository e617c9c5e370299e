package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, mutate func(a *Attributes)) *Pool {
	t.Helper()
	attr := DefaultAttributes()
	attr.ThreadCount = 2
	attr.QueueSize = 8
	if mutate != nil {
		mutate(&attr)
	}
	p, err := Create(attr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Destroy(Forceful) })
	return p
}

func waitForStatus(t *testing.T, p *Pool, index int, want Status) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		info, err := p.ThreadStatus(index)
		require.NoError(t, err)
		if info.Status == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("worker %d never reached status %s", index, want)
}

func TestWorkerRunsTaskAndReturnsIdle(t *testing.T) {
	p := newTestPool(t, nil)

	done := make(chan struct{})
	require.NoError(t, p.AddWork(func(argument interface{}) int {
		close(done)
		return 0
	}, nil))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
	require.NoError(t, p.Wait())

	m := p.Metrics()
	assert.Equal(t, int64(1), m.TotalTasks)
	assert.Equal(t, int64(1), m.CompletedTasks)
	assert.Equal(t, int64(0), m.FailedTasks)
}

func TestWorkerBlocksOnError(t *testing.T) {
	p := newTestPool(t, func(a *Attributes) {
		a.ThreadCount = 1
		a.BlockOnErr = Enabled
	})

	require.NoError(t, p.AddWork(func(argument interface{}) int { return 1 }, nil))
	waitForStatus(t, p, 0, Blocked)

	m := p.Metrics()
	assert.Equal(t, int64(1), m.FailedTasks)

	require.NoError(t, p.RestartThread(0))
	waitForStatus(t, p, 0, Idle)
}

func TestWorkerRestartAlreadyRunningIsEALREADY(t *testing.T) {
	p := newTestPool(t, func(a *Attributes) { a.ThreadCount = 1; a.CreatePolicy = Strict })
	waitForStatus(t, p, 0, Idle)
	assert.Equal(t, EALREADY, p.RestartThread(0))
}

func TestLockThreadAndDedicatedTask(t *testing.T) {
	p := newTestPool(t, func(a *Attributes) { a.ThreadCount = 2; a.CreatePolicy = Strict })

	waitForStatus(t, p, 0, Idle)
	require.NoError(t, p.LockThread(0))
	info, err := p.ThreadStatus(0)
	require.NoError(t, err)
	assert.Equal(t, Locked, info.Status)

	// A second lock attempt on the same worker is EAGAIN: not IDLE.
	assert.Equal(t, EAGAIN, p.LockThread(0))

	done := make(chan int, 1)
	require.NoError(t, p.AddDedicated(0, func(argument interface{}) int {
		done <- argument.(int)
		return 0
	}, 42))

	select {
	case v := <-done:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("dedicated task never ran")
	}

	waitForStatus(t, p, 0, Locked)
	require.NoError(t, p.UnlockThread(0))
	waitForStatus(t, p, 0, Idle)
}

func TestDedicatedTaskIgnoresBlockOnError(t *testing.T) {
	p := newTestPool(t, func(a *Attributes) {
		a.ThreadCount = 2
		a.CreatePolicy = Strict
		a.BlockOnErr = Enabled
	})

	waitForStatus(t, p, 0, Idle)
	require.NoError(t, p.LockThread(0))

	done := make(chan struct{})
	require.NoError(t, p.AddDedicated(0, func(argument interface{}) int {
		close(done)
		return 1
	}, nil))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dedicated task never ran")
	}

	waitForStatus(t, p, 0, Locked)
	info, err := p.ThreadStatus(0)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Error)
}

func TestAddDedicatedRejectsUnlockedWorker(t *testing.T) {
	p := newTestPool(t, nil)
	err := p.AddDedicated(0, func(argument interface{}) int { return 0 }, nil)
	assert.Equal(t, EINVAL, err)
}

func TestThreadStatusAllCoversEveryWorker(t *testing.T) {
	p := newTestPool(t, func(a *Attributes) { a.ThreadCount = 3 })
	snapshots := p.ThreadStatusAll()
	assert.Len(t, snapshots, 3)
	for i, info := range snapshots {
		assert.Equal(t, i, info.Index)
	}
}

func TestWorkerIndexOutOfRangeIsENOENT(t *testing.T) {
	p := newTestPool(t, nil)
	_, err := p.ThreadStatus(99)
	assert.Equal(t, ENOENT, err)
}
