package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homedrive-go/internal/apperr"
	"homedrive-go/internal/model"
	"homedrive-go/internal/testutil"
	"homedrive-go/pkg/tasks"
)

func TestJobVisibility(t *testing.T) {
	fx := newFixture(t, map[string]string{})
	other := &model.Volume{Name: "other", Path: testutil.TempVolumeDir(t)}
	require.NoError(t, fx.store.Volumes().Create(other))
	svc := NewJobService(fx.store, fx.gate, fx.queue)

	mine, err := fx.queue.Enqueue(fx.ctx, model.JobIndex, &fx.vol.ID, "Index v", tasks.IndexTask{VolumeID: fx.vol.ID})
	require.NoError(t, err)
	hidden, err := fx.queue.Enqueue(fx.ctx, model.JobIndex, &other.ID, "Index other", tasks.IndexTask{VolumeID: other.ID})
	require.NoError(t, err)

	list, err := svc.List(fx.ctx, fx.alice, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	list, err = svc.List(fx.ctx, fx.admin, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = svc.Get(fx.ctx, fx.alice, hidden.ID)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
	got, err := svc.Get(fx.ctx, fx.alice, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, "Index v", got.Description)
	_, err = svc.Get(fx.ctx, fx.alice, 9999)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestStopJobPermissions(t *testing.T) {
	fx := newFixture(t, map[string]string{})
	svc := NewJobService(fx.store, fx.gate, fx.queue)
	job, err := fx.queue.Enqueue(fx.ctx, model.JobIndex, &fx.vol.ID, "Index v", tasks.IndexTask{VolumeID: fx.vol.ID})
	require.NoError(t, err)

	reader := testutil.CreateUser(t, fx.store, "reader", false)
	testutil.Grant(t, fx.store, fx.vol.ID, reader.ID, model.PermRead)
	_, err = svc.Stop(fx.ctx, reader, job.ID)
	assert.ErrorIs(t, err, apperr.ErrNoPermission)

	stopped, err := svc.Stop(fx.ctx, fx.alice, job.ID)
	require.NoError(t, err)
	assert.True(t, stopped.ToStop)

	require.NoError(t, fx.store.Jobs().Finish(job.ID, model.JobCompleted, 100, ""))
	_, err = svc.Stop(fx.ctx, fx.admin, job.ID)
	assert.Equal(t, apperr.InvalidOperation, apperr.KindOf(err))
}
