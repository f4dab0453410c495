package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homedrive-go/internal/apperr"
	"homedrive-go/internal/model"
	"homedrive-go/internal/repository"
	"homedrive-go/internal/testutil"
)

func newVolumeWithRoot(t *testing.T, store *repository.Store, name string) (*model.Volume, *model.File) {
	t.Helper()
	vol := &model.Volume{Name: name, Path: "/srv/" + name}
	require.NoError(t, store.Volumes().Create(vol))
	root := &model.File{Kind: model.KindFolder, VolumeID: vol.ID, PathFromVol: model.RootPath, LastModified: time.Now()}
	require.NoError(t, store.Files().Create(root))
	return vol, root
}

func addChild(t *testing.T, store *repository.Store, parent *model.File, name string, kind model.FileKind) *model.File {
	t.Helper()
	f := &model.File{
		Name:         name,
		Kind:         kind,
		ParentID:     &parent.ID,
		VolumeID:     parent.VolumeID,
		PathFromVol:  joinVol(parent.PathFromVol, name),
		LastModified: time.Now(),
	}
	require.NoError(t, store.Files().Create(f))
	return f
}

func joinVol(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func TestVolumeUniqueness(t *testing.T) {
	store := testutil.NewTestStore(t)
	require.NoError(t, store.Volumes().Create(&model.Volume{Name: "music", Path: "/srv/music"}))

	err := store.Volumes().Create(&model.Volume{Name: "music", Path: "/srv/other"})
	assert.Equal(t, apperr.Integrity, apperr.KindOf(err))
	err = store.Volumes().Create(&model.Volume{Name: "other", Path: "/srv/music"})
	assert.Equal(t, apperr.Integrity, apperr.KindOf(err))
}

func TestFilePathUniqueness(t *testing.T) {
	store := testutil.NewTestStore(t)
	_, root := newVolumeWithRoot(t, store, "v")
	addChild(t, store, root, "a", model.KindFolder)

	dup := &model.File{Name: "a", Kind: model.KindFile, ParentID: &root.ID, VolumeID: root.VolumeID, PathFromVol: "/a", LastModified: time.Now()}
	err := store.Files().Create(dup)
	assert.Equal(t, apperr.Integrity, apperr.KindOf(err))
}

func TestDescendantsAndCascade(t *testing.T) {
	store := testutil.NewTestStore(t)
	vol, root := newVolumeWithRoot(t, store, "v")
	a := addChild(t, store, root, "a", model.KindFolder)
	b := addChild(t, store, a, "b", model.KindFolder)
	addChild(t, store, b, "c.txt", model.KindFile)
	addChild(t, store, a, "d.txt", model.KindFile)
	addChild(t, store, root, "ab", model.KindFolder)
	addChild(t, store, root, "a_b", model.KindFile)

	desc, err := store.Files().Descendants(vol.ID, "/a")
	require.NoError(t, err)
	var paths []string
	for _, f := range desc {
		paths = append(paths, f.PathFromVol)
	}
	assert.Equal(t, []string{"/a/b", "/a/b/c.txt", "/a/d.txt"}, paths)

	all, err := store.Files().Descendants(vol.ID, "/")
	require.NoError(t, err)
	assert.Len(t, all, 6)

	require.NoError(t, store.Files().Delete(a.ID))
	assert.Equal(t, []string{"/", "/a_b", "/ab"}, testutil.Paths(t, store, vol.ID))
}

func TestDeleteVolumeCascadesFiles(t *testing.T) {
	store := testutil.NewTestStore(t)
	vol, root := newVolumeWithRoot(t, store, "v")
	addChild(t, store, root, "x", model.KindFile)

	require.NoError(t, store.Volumes().Delete(vol.ID))
	n, err := store.Files().CountByVolume(vol.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBulkUpdateInBatches(t *testing.T) {
	db := testutil.NewTestDB(t)
	store := repository.NewStore(db, 2)
	vol, root := newVolumeWithRoot(t, store, "v")
	var files []*model.File
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		files = append(files, addChild(t, store, root, n, model.KindFile))
	}
	for i, f := range files {
		f.Size = int64(i + 10)
		f.Name = "ignored"
	}
	require.NoError(t, store.Files().BulkUpdate(files, "size"))

	for i, f := range files {
		got, err := store.Files().Get(f.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(i+10), got.Size)
		assert.NotEqual(t, "ignored", got.Name)
	}
	testutil.AssertCatalogInvariants(t, store, vol.ID)
}

func TestChildNamesAndSearch(t *testing.T) {
	store := testutil.NewTestStore(t)
	vol, root := newVolumeWithRoot(t, store, "v")
	other, otherRoot := newVolumeWithRoot(t, store, "w")
	addChild(t, store, root, "Holiday Photos", model.KindFolder)
	addChild(t, store, root, "holiday_2020.jpg", model.KindFile)
	addChild(t, store, root, "notes.txt", model.KindFile)
	addChild(t, store, otherRoot, "holiday.mp4", model.KindFile)

	names, err := store.Files().ChildNames(root.ID)
	require.NoError(t, err)
	assert.Len(t, names, 3)
	_, ok := names["notes.txt"]
	assert.True(t, ok)

	found, err := store.Files().SearchByName([]string{"HOLIDAY"}, []string{vol.ID}, 10)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = store.Files().SearchByName([]string{"holiday", "2020"}, []string{vol.ID, other.ID}, 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "holiday_2020.jpg", found[0].Name)

	// "_" 按字面匹配，不是通配符
	found, err = store.Files().SearchByName([]string{"y_"}, []string{vol.ID}, 10)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	found, err = store.Files().SearchByName([]string{"holiday"}, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestTransactionRollback(t *testing.T) {
	store := testutil.NewTestStore(t)
	boom := errors.New("boom")
	err := store.Transaction(context.Background(), func(tx *repository.Store) error {
		require.NoError(t, tx.Volumes().Create(&model.Volume{Name: "v", Path: "/v"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	vols, err := store.Volumes().FindAll()
	require.NoError(t, err)
	assert.Empty(t, vols)
}

func TestVolumeUserPermissions(t *testing.T) {
	store := testutil.NewTestStore(t)
	vol, _ := newVolumeWithRoot(t, store, "v")
	u := testutil.CreateUser(t, store, "alice", false)

	perm, err := store.VolumeUsers().Permission(vol.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PermNone, perm)

	require.NoError(t, store.VolumeUsers().Upsert(vol.ID, u.ID, model.PermRead))
	require.NoError(t, store.VolumeUsers().Upsert(vol.ID, u.ID, model.PermReadWrite))
	perm, err = store.VolumeUsers().Permission(vol.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PermReadWrite, perm)

	ids, err := store.VolumeUsers().VolumeIDsWithMin(u.ID, model.PermRead)
	require.NoError(t, err)
	assert.Equal(t, []string{vol.ID}, ids)

	require.NoError(t, store.Users().Delete(u.ID))
	grants, err := store.VolumeUsers().ListByVolume(vol.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestJobClaimOnlyOnce(t *testing.T) {
	store := testutil.NewTestStore(t)
	j1 := &model.Job{Kind: model.JobZip, Description: "first"}
	j2 := &model.Job{Kind: model.JobZip, Description: "second"}
	require.NoError(t, store.Jobs().Create(j1))
	require.NoError(t, store.Jobs().Create(j2))

	oldest, err := store.Jobs().OldestQueued()
	require.NoError(t, err)
	assert.Equal(t, j1.ID, oldest.ID)

	ok, err := store.Jobs().Claim(j1.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Jobs().Claim(j1.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	oldest, err = store.Jobs().OldestQueued()
	require.NoError(t, err)
	assert.Equal(t, j2.ID, oldest.ID)

	n, err := store.Jobs().RequeueRunning()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, err := store.Jobs().Get(j1.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobInQueue, got.Status)
}

func TestPlaylistResequence(t *testing.T) {
	store := testutil.NewTestStore(t)
	_, root := newVolumeWithRoot(t, store, "v")
	u := testutil.CreateUser(t, store, "bob", false)
	a := addChild(t, store, root, "a.mp3", model.KindFile)
	b := addChild(t, store, root, "b.mp3", model.KindFile)
	c := addChild(t, store, root, "c.mp3", model.KindFile)

	p := &model.Playlist{UserID: u.ID, Name: "mix"}
	require.NoError(t, store.Playlists().Create(p))
	for _, f := range []*model.File{a, b, c} {
		_, err := store.Playlists().Append(p.ID, f.ID)
		require.NoError(t, err)
	}

	n, err := store.Playlists().RemoveFile(p.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, store.Playlists().Resequence(p.ID))

	entries, err := store.Playlists().Entries(p.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].Sequence)
	assert.Equal(t, b.ID, entries[0].FileID)
	assert.Equal(t, 1, entries[1].Sequence)
	require.NotNil(t, entries[1].File)
	assert.Equal(t, "c.mp3", entries[1].File.Name)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, "100!% done!_now!!", repository.EscapeLike("100% done_now!"))
}
