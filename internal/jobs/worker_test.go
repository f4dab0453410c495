package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homedrive-go/internal/apperr"
	"homedrive-go/internal/config"
	"homedrive-go/internal/indexer"
	"homedrive-go/internal/model"
	"homedrive-go/internal/repository"
	"homedrive-go/internal/testutil"
	"homedrive-go/pkg/tasks"
)

// recordingSink 记录发布过的事件。
type recordingSink struct {
	events []tasks.JobEvent
}

func (s *recordingSink) Publish(_ context.Context, ev tasks.JobEvent) { s.events = append(s.events, ev) }
func (s *recordingSink) Close() error                                  { return nil }

func newPool(t *testing.T) (*repository.Store, *Queue, *Pool, *recordingSink) {
	t.Helper()
	store := testutil.NewTestStore(t)
	sink := &recordingSink{}
	q := NewQueue(store, sink)
	p := NewPool(store, config.JobsConfig{Workers: 1, PollIntervalMS: 10}, nil, sink)
	return store, q, p, sink
}

func mustJob(t *testing.T, store *repository.Store, id uint) *model.Job {
	t.Helper()
	job, err := store.Jobs().Get(id)
	require.NoError(t, err)
	return job
}

func TestRunOnceCompletesJob(t *testing.T) {
	store, q, p, sink := newPool(t)
	ctx := context.Background()

	var seen []int
	p.Register(model.JobZip, RunnerFunc(func(ctx context.Context, job *model.Job, progress *Progress) error {
		require.NoError(t, progress.Report(50))
		seen = append(seen, mustJob(t, store, job.ID).Progress)
		return nil
	}))
	job, err := q.Enqueue(ctx, model.JobZip, nil, "zip", tasks.ZipTask{Name: "a.zip"})
	require.NoError(t, err)
	assert.Equal(t, model.JobInQueue, job.Status)

	ran, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []int{50}, seen)

	got := mustJob(t, store, job.ID)
	assert.Equal(t, model.JobCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.Empty(t, got.Error)

	ran, err = p.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, ran)

	statuses := make([]string, 0, len(sink.events))
	for _, ev := range sink.events {
		statuses = append(statuses, ev.Status)
	}
	assert.Equal(t, []string{"InQueue", "Running", "Completed"}, statuses)
}

func TestRunOnceTakesOldestFirst(t *testing.T) {
	_, q, p, _ := newPool(t)
	ctx := context.Background()

	var order []string
	p.Register(model.JobZip, RunnerFunc(func(ctx context.Context, job *model.Job, progress *Progress) error {
		order = append(order, job.Description)
		return nil
	}))
	for _, d := range []string{"first", "second", "third"} {
		_, err := q.Enqueue(ctx, model.JobZip, nil, d, struct{}{})
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		ran, err := p.RunOnce(ctx)
		require.NoError(t, err)
		require.True(t, ran)
	}
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestRunnerErrorMarksFailed(t *testing.T) {
	store, q, p, _ := newPool(t)
	ctx := context.Background()

	p.Register(model.JobZip, RunnerFunc(func(ctx context.Context, job *model.Job, progress *Progress) error {
		require.NoError(t, progress.Report(20))
		return errors.New("disk full")
	}))
	job, err := q.Enqueue(ctx, model.JobZip, nil, "zip", struct{}{})
	require.NoError(t, err)

	_, err = p.RunOnce(ctx)
	require.NoError(t, err)
	got := mustJob(t, store, job.ID)
	assert.Equal(t, model.JobFailed, got.Status)
	assert.Equal(t, 20, got.Progress)
	assert.Equal(t, "disk full", got.Error)
}

func TestRunnerPanicMarksFailed(t *testing.T) {
	store, q, p, _ := newPool(t)
	ctx := context.Background()

	p.Register(model.JobZip, RunnerFunc(func(ctx context.Context, job *model.Job, progress *Progress) error {
		panic("bad state")
	}))
	job, err := q.Enqueue(ctx, model.JobZip, nil, "zip", struct{}{})
	require.NoError(t, err)

	_, err = p.RunOnce(ctx)
	require.NoError(t, err)
	got := mustJob(t, store, job.ID)
	assert.Equal(t, model.JobFailed, got.Status)
	assert.Contains(t, got.Error, "bad state")
}

func TestMissingRunnerMarksFailed(t *testing.T) {
	store, q, p, _ := newPool(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, model.JobIndex, nil, "index", struct{}{})
	require.NoError(t, err)
	_, err = p.RunOnce(ctx)
	require.NoError(t, err)
	got := mustJob(t, store, job.ID)
	assert.Equal(t, model.JobFailed, got.Status)
	assert.Contains(t, got.Error, "no runner")
}

func TestStopWhileRunning(t *testing.T) {
	store, q, p, _ := newPool(t)
	ctx := context.Background()

	p.Register(model.JobZip, RunnerFunc(func(ctx context.Context, job *model.Job, progress *Progress) error {
		require.NoError(t, progress.Report(30))
		_, err := q.Stop(ctx, job.ID)
		require.NoError(t, err)
		return progress.Check()
	}))
	job, err := q.Enqueue(ctx, model.JobZip, nil, "zip", struct{}{})
	require.NoError(t, err)

	_, err = p.RunOnce(ctx)
	require.NoError(t, err)
	got := mustJob(t, store, job.ID)
	assert.Equal(t, model.JobCompleted, got.Status)
	assert.Equal(t, 30, got.Progress)
	assert.True(t, got.ToStop)
	assert.Empty(t, got.Error)
}

func TestStopBeforeClaimSkipsRunner(t *testing.T) {
	store, q, p, _ := newPool(t)
	ctx := context.Background()

	called := false
	p.Register(model.JobZip, RunnerFunc(func(ctx context.Context, job *model.Job, progress *Progress) error {
		called = true
		return nil
	}))
	job, err := q.Enqueue(ctx, model.JobZip, nil, "zip", struct{}{})
	require.NoError(t, err)
	_, err = q.Stop(ctx, job.ID)
	require.NoError(t, err)

	ran, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, called)
	got := mustJob(t, store, job.ID)
	assert.Equal(t, model.JobCompleted, got.Status)
	assert.Equal(t, 0, got.Progress)
}

func TestStopFinishedJobRejected(t *testing.T) {
	_, q, p, _ := newPool(t)
	ctx := context.Background()

	p.Register(model.JobZip, RunnerFunc(func(context.Context, *model.Job, *Progress) error { return nil }))
	job, err := q.Enqueue(ctx, model.JobZip, nil, "zip", struct{}{})
	require.NoError(t, err)
	_, err = p.RunOnce(ctx)
	require.NoError(t, err)

	_, err = q.Stop(ctx, job.ID)
	assert.Equal(t, apperr.InvalidOperation, apperr.KindOf(err))

	_, err = q.Stop(ctx, job.ID+100)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestShutdownRequeuesJob(t *testing.T) {
	store, q, p, _ := newPool(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Register(model.JobZip, RunnerFunc(func(ctx context.Context, job *model.Job, progress *Progress) error {
		cancel()
		return progress.Check()
	}))
	job, err := q.Enqueue(ctx, model.JobZip, nil, "zip", struct{}{})
	require.NoError(t, err)

	_, err = p.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	got := mustJob(t, store, job.ID)
	assert.Equal(t, model.JobInQueue, got.Status)
}

func TestRecoverRequeuesRunning(t *testing.T) {
	store, _, p, _ := newPool(t)
	job := &model.Job{Kind: model.JobIndex, Status: model.JobRunning, Progress: 40}
	require.NoError(t, store.Jobs().Create(job))

	require.NoError(t, p.Recover(context.Background()))
	got := mustJob(t, store, job.ID)
	assert.Equal(t, model.JobInQueue, got.Status)
	assert.Equal(t, 0, got.Progress)
}

func TestStartStopsWithContext(t *testing.T) {
	store, q, p, _ := newPool(t)
	done := make(chan struct{}, 1)
	p.Register(model.JobZip, RunnerFunc(func(context.Context, *model.Job, *Progress) error {
		done <- struct{}{}
		return nil
	}))
	job, err := q.Enqueue(context.Background(), model.JobZip, nil, "zip", struct{}{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Start(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not picked up")
	}
	require.Eventually(t, func() bool {
		return mustJob(t, store, job.ID).Status == model.JobCompleted
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop")
	}
}

func TestIndexRunner(t *testing.T) {
	store, q, p, _ := newPool(t)
	ctx := context.Background()
	dir := testutil.TempVolumeDir(t)
	testutil.WriteTree(t, dir, map[string]string{"a/b.txt": "b", "c/": ""})
	vol := &model.Volume{Name: "v", Path: dir}
	require.NoError(t, store.Volumes().Create(vol))

	p.Register(model.JobIndex, IndexRunner{Indexer: indexer.New(store, nil)})
	ok, err := EnqueueIndex(ctx, store, q, vol)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = p.RunOnce(ctx)
	require.NoError(t, err)
	jobs, err := q.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.JobCompleted, jobs[0].Status)
	assert.Equal(t, 100, jobs[0].Progress)
	assert.Equal(t, []string{"/", "/a", "/a/b.txt", "/c"}, testutil.Paths(t, store, vol.ID))
}

func TestLocalLease(t *testing.T) {
	l := NewLease(nil)
	ctx := context.Background()

	release, ok, err := l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, _ = l.Acquire(ctx, "other", time.Minute)
	assert.True(t, ok)

	release()
	_, ok, _ = l.Acquire(ctx, "k", time.Minute)
	assert.True(t, ok)
}

func TestLocalLeaseExpires(t *testing.T) {
	l := NewLease(nil)
	ctx := context.Background()
	_, ok, _ := l.Acquire(ctx, "k", time.Nanosecond)
	require.True(t, ok)
	time.Sleep(time.Millisecond)
	_, ok, _ = l.Acquire(ctx, "k", time.Minute)
	assert.True(t, ok)
}
