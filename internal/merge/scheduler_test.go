package merge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMerger struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (m *recordingMerger) Merge(ctx context.Context, shardID string, params Params) error {
	m.mu.Lock()
	m.calls = append(m.calls, shardID)
	m.mu.Unlock()
	return m.err
}

func (m *recordingMerger) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type staticLister struct{ ids []string }

func (l staticLister) ShardIDs() ([]string, error) { return l.ids, nil }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestTriggerRunsAMerge(t *testing.T) {
	merger := &recordingMerger{}
	sched := New(merger, staticLister{}, Params{}, time.Hour)
	sched.Start()
	defer sched.Stop()

	sched.Trigger("shard-1")
	waitFor(t, time.Second, func() bool { return merger.callCount() == 1 })
}

func TestRequestSyncReturnsMergeError(t *testing.T) {
	boom := assert.AnError
	merger := &recordingMerger{err: boom}
	sched := New(merger, staticLister{}, Params{}, time.Hour)
	sched.Start()
	defer sched.Stop()

	err := sched.RequestSync(context.Background(), "shard-1")
	assert.ErrorIs(t, err, boom)
}

func TestIdleTimeoutSweepsEveryShard(t *testing.T) {
	merger := &recordingMerger{}
	sched := New(merger, staticLister{ids: []string{"a", "b", "c"}}, Params{}, 10*time.Millisecond)
	sched.Start()
	defer sched.Stop()

	waitFor(t, time.Second, func() bool { return merger.callCount() >= 3 })
}

func TestDedupKeepsHigherPriority(t *testing.T) {
	sched := New(&recordingMerger{}, staticLister{}, Params{}, time.Hour)
	sched.enqueue("shard-1", Low, nil)
	sched.enqueue("shard-1", WhenFree, nil)

	sched.mu.Lock()
	p := sched.queue["shard-1"].priority
	sched.mu.Unlock()
	assert.Equal(t, Low, p)
}

func TestStopIsIdempotent(t *testing.T) {
	sched := New(&recordingMerger{}, staticLister{}, Params{}, time.Hour)
	sched.Start()
	sched.Stop()
	assert.NotPanics(t, func() { sched.Stop() })
}
