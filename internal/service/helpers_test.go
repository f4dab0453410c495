package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"homedrive-go/internal/indexer"
	"homedrive-go/internal/jobs"
	"homedrive-go/internal/model"
	"homedrive-go/internal/repository"
	"homedrive-go/internal/testutil"
)

type fixture struct {
	ctx   context.Context
	store *repository.Store
	gate  *Gate
	queue *jobs.Queue
	files FileService
	dir   string
	vol   *model.Volume
	admin *model.User
	alice *model.User
}

// newFixture 在临时目录中创建 tree，挂载为卷 "v" 并完成首次索引。
// admin 是超级用户，alice 默认拥有 ReadWrite。
func newFixture(t *testing.T, tree map[string]string) *fixture {
	t.Helper()
	ctx := context.Background()
	store := testutil.NewTestStore(t)
	dir := testutil.TempVolumeDir(t)
	testutil.WriteTree(t, dir, tree)
	vol := &model.Volume{Name: "v", Path: dir}
	require.NoError(t, store.Volumes().Create(vol))
	_, err := indexer.New(store, nil).IndexVolume(ctx, vol.ID, nil)
	require.NoError(t, err)

	fx := &fixture{
		ctx:   ctx,
		store: store,
		gate:  NewGate(),
		queue: jobs.NewQueue(store, nil),
		dir:   dir,
		vol:   vol,
		admin: testutil.CreateUser(t, store, "admin", true),
		alice: testutil.CreateUser(t, store, "alice", false),
	}
	fx.files = NewFileService(store, fx.gate, nil)
	testutil.Grant(t, store, vol.ID, fx.alice.ID, model.PermReadWrite)
	return fx
}

// file 按 path_from_vol 取出记录。
func (fx *fixture) file(t *testing.T, path string) *model.File {
	t.Helper()
	f, err := fx.store.Files().GetByPath(fx.vol.ID, path)
	require.NoError(t, err, path)
	return f
}

func (fx *fixture) missing(t *testing.T, path string) {
	t.Helper()
	_, err := fx.store.Files().GetByPath(fx.vol.ID, path)
	require.True(t, repository.IsNotFound(err), "%s should not be cataloged", path)
}

func (fx *fixture) paths(t *testing.T) []string {
	t.Helper()
	return testutil.Paths(t, fx.store, fx.vol.ID)
}
