package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homedrive-go/internal/apperr"
	"homedrive-go/internal/model"
	"homedrive-go/internal/testutil"
)

func TestCreateVolume(t *testing.T) {
	fx := newFixture(t, map[string]string{})
	vols := NewVolumeService(fx.store, fx.gate, fx.queue)
	dir := testutil.TempVolumeDir(t)

	_, _, err := vols.Create(fx.ctx, fx.alice, "music", dir)
	assert.ErrorIs(t, err, apperr.ErrNoPermission)

	vol, job, err := vols.Create(fx.ctx, fx.admin, " music ", dir+"/")
	require.NoError(t, err)
	assert.Equal(t, "music", vol.Name)
	assert.Equal(t, dir, vol.Path)
	assert.Equal(t, model.JobIndex, job.Kind)
	require.NotNil(t, job.VolumeID)
	assert.Equal(t, vol.ID, *job.VolumeID)

	root, err := fx.store.Files().Root(vol.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RootPath, root.PathFromVol)
	testutil.AssertCatalogInvariants(t, fx.store, vol.ID)
}

func TestCreateVolumeRejections(t *testing.T) {
	fx := newFixture(t, map[string]string{"sub/": ""})
	vols := NewVolumeService(fx.store, fx.gate, fx.queue)
	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	cases := []struct {
		name, volName, path string
		kind                apperr.Kind
	}{
		{"empty name", "  ", testutil.TempVolumeDir(t), apperr.InvalidVolumeName},
		{"duplicate name", "v", testutil.TempVolumeDir(t), apperr.InvalidVolumeName},
		{"missing path", "x", filepath.Join(t.TempDir(), "nope"), apperr.InvalidVolumePath},
		{"not a directory", "x", file, apperr.InvalidVolumePath},
		{"inside existing", "x", filepath.Join(fx.dir, "sub"), apperr.InvalidVolumePath},
		{"contains existing", "x", filepath.Dir(fx.dir), apperr.InvalidVolumePath},
		{"same path", "x", fx.dir, apperr.InvalidVolumePath},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := vols.Create(fx.ctx, fx.admin, tc.volName, tc.path)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}
}

func TestListVolumes(t *testing.T) {
	fx := newFixture(t, map[string]string{})
	hidden := &model.Volume{Name: "hidden", Path: testutil.TempVolumeDir(t)}
	require.NoError(t, fx.store.Volumes().Create(hidden))
	vols := NewVolumeService(fx.store, fx.gate, fx.queue)

	got, err := vols.List(fx.ctx, fx.alice)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "v", got[0].Name)
	assert.Equal(t, model.PermReadWrite, got[0].Permission)
	assert.Equal(t, fx.file(t, "/").ID, got[0].RootID)

	got, err = vols.List(fx.ctx, fx.admin)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, v := range got {
		assert.Equal(t, model.PermAdmin, v.Permission)
	}
}

func TestGrantAndRename(t *testing.T) {
	fx := newFixture(t, map[string]string{})
	vols := NewVolumeService(fx.store, fx.gate, fx.queue)
	bob := testutil.CreateUser(t, fx.store, "bob", false)

	err := vols.Grant(fx.ctx, fx.alice, fx.vol.ID, bob.ID, model.PermRead)
	assert.ErrorIs(t, err, apperr.ErrNoPermission)
	_, err = vols.Rename(fx.ctx, fx.alice, fx.vol.ID, "renamed")
	assert.ErrorIs(t, err, apperr.ErrNoPermission)

	require.NoError(t, vols.Grant(fx.ctx, fx.admin, fx.vol.ID, fx.alice.ID, model.PermAdmin))
	require.NoError(t, vols.Grant(fx.ctx, fx.alice, fx.vol.ID, bob.ID, model.PermRead))
	perm, err := fx.store.VolumeUsers().Permission(fx.vol.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PermRead, perm)

	require.NoError(t, vols.Grant(fx.ctx, fx.alice, fx.vol.ID, bob.ID, model.PermNone))
	perm, err = fx.store.VolumeUsers().Permission(fx.vol.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PermNone, perm)

	assert.Equal(t, apperr.InvalidOperation, apperr.KindOf(vols.Grant(fx.ctx, fx.alice, fx.vol.ID, bob.ID, 15)))
	assert.Equal(t, apperr.NotFound, apperr.KindOf(vols.Grant(fx.ctx, fx.alice, fx.vol.ID, 9999, model.PermRead)))

	vol, err := vols.Rename(fx.ctx, fx.alice, fx.vol.ID, " renamed ")
	require.NoError(t, err)
	assert.Equal(t, "renamed", vol.Name)
	_, err = vols.Rename(fx.ctx, fx.alice, fx.vol.ID, "")
	assert.Equal(t, apperr.InvalidVolumeName, apperr.KindOf(err))
}

func TestRequestIndexAndDelete(t *testing.T) {
	fx := newFixture(t, map[string]string{"a.txt": "a"})
	vols := NewVolumeService(fx.store, fx.gate, fx.queue)

	_, err := vols.RequestIndex(fx.ctx, fx.alice, fx.vol.ID)
	assert.ErrorIs(t, err, apperr.ErrNoPermission)

	job, err := vols.RequestIndex(fx.ctx, fx.admin, fx.vol.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobIndex, job.Kind)
	_, err = vols.RequestIndex(fx.ctx, fx.admin, fx.vol.ID)
	assert.Equal(t, apperr.InvalidOperation, apperr.KindOf(err))

	remote := &model.Volume{Name: "pi", Path: "/remote/pi", Kind: model.RemoteRpiDrive}
	require.NoError(t, fx.store.Volumes().Create(remote))
	_, err = vols.RequestIndex(fx.ctx, fx.admin, remote.ID)
	assert.ErrorIs(t, err, apperr.ErrNotImplemented)

	assert.ErrorIs(t, vols.Delete(fx.ctx, fx.alice, fx.vol.ID), apperr.ErrNoPermission)
	require.NoError(t, vols.Delete(fx.ctx, fx.admin, fx.vol.ID))
	assert.Empty(t, fx.paths(t))
	assert.True(t, testutil.Exists(fx.dir, "a.txt"))
	assert.ErrorIs(t, vols.Delete(fx.ctx, fx.admin, fx.vol.ID), apperr.ErrVolumeNotFound)
}
