package service

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homedrive-go/internal/apperr"
	"homedrive-go/internal/config"
	"homedrive-go/internal/jobs"
	"homedrive-go/internal/model"
	"homedrive-go/internal/testutil"
	"homedrive-go/pkg/tasks"
)

func TestZipName(t *testing.T) {
	cases := map[string]string{
		"out":        "out.zip",
		"  out.zip ": "out.zip",
		"a.tar":      "a.tar.zip",
	}
	for in, want := range cases {
		got, err := ZipName(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, bad := range []string{"", "   ", "a/b", "../x"} {
		_, err := ZipName(bad)
		assert.Equal(t, apperr.InvalidFileName, apperr.KindOf(err), "name %q", bad)
	}
}

func newZipPool(fx *fixture, tempDir string) *jobs.Pool {
	pool := jobs.NewPool(fx.store, config.JobsConfig{Workers: 1, PollIntervalMS: 10}, nil, nil)
	pool.Register(model.JobZip, ZipRunner{Store: fx.store, TempDir: tempDir})
	return pool
}

func zipNames(t *testing.T, path string) []string {
	t.Helper()
	r, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func TestZipJob(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"P/f1.txt":     "one",
		"P/f2/a.txt":   "two",
		"P/other.txt":  "skip",
		"P/f2/b/c.txt": "three",
	})
	p := fx.file(t, "/P")
	zips := NewZipService(fx.store, fx.gate, fx.queue)

	job, err := zips.EnqueueZip(fx.ctx, fx.alice,
		[]string{fx.file(t, "/P/f1.txt").ID, fx.file(t, "/P/f2").ID}, p.ID, "out")
	require.NoError(t, err)
	assert.Equal(t, model.JobZip, job.Kind)
	assert.Equal(t, model.JobInQueue, job.Status)
	var task tasks.ZipTask
	require.NoError(t, jobs.DecodePayload(job, &task))
	assert.Equal(t, "out.zip", task.Name)
	assert.Equal(t, p.ID, task.Parent)

	tempDir := t.TempDir()
	ran, err := newZipPool(fx, tempDir).RunOnce(fx.ctx)
	require.NoError(t, err)
	require.True(t, ran)

	done, err := fx.store.Jobs().Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	assert.Empty(t, done.Error)

	out := fx.file(t, "/P/out.zip")
	assert.Equal(t, model.KindFile, out.Kind)
	assert.Equal(t, "application/zip", out.MediaTypeOrEmpty())
	require.NotNil(t, out.ParentID)
	assert.Equal(t, p.ID, *out.ParentID)
	info, err := os.Stat(filepath.Join(fx.dir, "P", "out.zip"))
	require.NoError(t, err)
	assert.Equal(t, info.Size(), out.Size)

	assert.Equal(t, []string{"f1.txt", "f2/", "f2/a.txt", "f2/b/", "f2/b/c.txt"},
		zipNames(t, filepath.Join(fx.dir, "P", "out.zip")))

	left, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestZipJobReplacesExistingArchive(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"a.txt":   "a",
		"out.zip": "stale",
	})
	stale := fx.file(t, "/out.zip")
	zips := NewZipService(fx.store, fx.gate, fx.queue)

	_, err := zips.EnqueueZip(fx.ctx, fx.alice, []string{fx.file(t, "/a.txt").ID}, fx.file(t, "/").ID, "out.zip")
	require.NoError(t, err)
	_, err = newZipPool(fx, t.TempDir()).RunOnce(fx.ctx)
	require.NoError(t, err)

	out := fx.file(t, "/out.zip")
	assert.NotEqual(t, stale.ID, out.ID)
	assert.Equal(t, []string{"a.txt"}, zipNames(t, filepath.Join(fx.dir, "out.zip")))
	assert.Equal(t, []string{"/", "/a.txt", "/out.zip"}, fx.paths(t))
}

func TestZipJobFailsWhenSourceVanished(t *testing.T) {
	fx := newFixture(t, map[string]string{"a.txt": "a", "b.txt": "b"})
	zips := NewZipService(fx.store, fx.gate, fx.queue)
	job, err := zips.EnqueueZip(fx.ctx, fx.alice,
		[]string{fx.file(t, "/a.txt").ID, fx.file(t, "/b.txt").ID}, fx.file(t, "/").ID, "out")
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(fx.dir, "b.txt")))

	tempDir := t.TempDir()
	_, err = newZipPool(fx, tempDir).RunOnce(fx.ctx)
	require.NoError(t, err)

	done, err := fx.store.Jobs().Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, done.Status)
	assert.NotEmpty(t, done.Error)
	fx.missing(t, "/out.zip")
	left, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestZipStoppedBeforeStart(t *testing.T) {
	fx := newFixture(t, map[string]string{"a.txt": "a"})
	zips := NewZipService(fx.store, fx.gate, fx.queue)
	job, err := zips.EnqueueZip(fx.ctx, fx.alice, []string{fx.file(t, "/a.txt").ID}, fx.file(t, "/").ID, "out")
	require.NoError(t, err)
	_, err = fx.queue.Stop(fx.ctx, job.ID)
	require.NoError(t, err)

	_, err = newZipPool(fx, t.TempDir()).RunOnce(fx.ctx)
	require.NoError(t, err)
	done, err := fx.store.Jobs().Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, done.Status)
	fx.missing(t, "/out.zip")
}

func TestZipStoppedWhileRunning(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"a.txt": "a",
		"b.txt": "b",
		"c.txt": "c",
	})
	zips := NewZipService(fx.store, fx.gate, fx.queue)
	job, err := zips.EnqueueZip(fx.ctx, fx.alice,
		[]string{fx.file(t, "/a.txt").ID, fx.file(t, "/b.txt").ID, fx.file(t, "/c.txt").ID},
		fx.file(t, "/").ID, "out")
	require.NoError(t, err)

	tempDir := t.TempDir()
	written := 0
	runner := ZipRunner{Store: fx.store, TempDir: tempDir, afterEntry: func(zipEntry) {
		written++
		if written == 1 {
			_, err := fx.queue.Stop(fx.ctx, job.ID)
			require.NoError(t, err)
		}
	}}
	pool := jobs.NewPool(fx.store, config.JobsConfig{Workers: 1, PollIntervalMS: 10}, nil, nil)
	pool.Register(model.JobZip, runner)

	ran, err := pool.RunOnce(fx.ctx)
	require.NoError(t, err)
	require.True(t, ran)

	assert.Equal(t, 1, written)
	done, err := fx.store.Jobs().Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, done.Status)
	assert.Equal(t, 33, done.Progress)
	assert.Empty(t, done.Error)

	fx.missing(t, "/out.zip")
	assert.False(t, testutil.Exists(fx.dir, "out.zip"))
	left, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestEnqueueZipValidation(t *testing.T) {
	fx := newFixture(t, map[string]string{
		"a.txt":   "a",
		"d/b.txt": "b",
	})
	zips := NewZipService(fx.store, fx.gate, fx.queue)
	root := fx.file(t, "/")
	a := fx.file(t, "/a.txt")
	b := fx.file(t, "/d/b.txt")

	_, err := zips.EnqueueZip(fx.ctx, fx.alice, []string{a.ID, b.ID}, root.ID, "out")
	assert.Equal(t, apperr.InvalidOperation, apperr.KindOf(err), "different parents")

	_, err = zips.EnqueueZip(fx.ctx, fx.alice, nil, root.ID, "out")
	assert.Equal(t, apperr.InvalidOperation, apperr.KindOf(err), "no files")

	_, err = zips.EnqueueZip(fx.ctx, fx.alice, []string{a.ID, "missing"}, root.ID, "out")
	assert.ErrorIs(t, err, apperr.ErrFileNotFound)

	_, err = zips.EnqueueZip(fx.ctx, fx.alice, []string{b.ID}, a.ID, "out")
	assert.Equal(t, apperr.InvalidOperation, apperr.KindOf(err), "parent is a file")

	_, err = zips.EnqueueZip(fx.ctx, fx.alice, []string{root.ID}, root.ID, "out")
	assert.Equal(t, apperr.InvalidOperation, apperr.KindOf(err), "root")

	_, err = zips.EnqueueZip(fx.ctx, fx.alice, []string{a.ID}, root.ID, "  ")
	assert.Equal(t, apperr.InvalidFileName, apperr.KindOf(err))

	queued, err := fx.queue.List(fx.ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, queued)
}
