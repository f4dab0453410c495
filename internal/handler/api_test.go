package handler

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homedrive-go/internal/model"
	"homedrive-go/internal/service"
	"homedrive-go/internal/testutil"
	"homedrive-go/pkg/tasks"
)

func TestLoginLogout(t *testing.T) {
	e := newEnv(t, map[string]string{})

	w := e.do(t, http.MethodPost, "/api/v1/users/login", nil, strings.NewReader(`{"username":"alice","password":"wrong"}`), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid credentials.", errorBody(t, w))

	w = e.do(t, http.MethodPost, "/api/v1/users/login", nil, strings.NewReader(`{"username":"alice"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var tokens struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
	}
	w = e.do(t, http.MethodPost, "/api/v1/users/login", nil, strings.NewReader(`{"username":"alice","password":"alice"}`), nil)
	data(t, w, &tokens)
	require.NotEmpty(t, tokens.Token)

	w = e.do(t, http.MethodGet, "/api/v1/users/me", nil, nil, map[string]string{"Authorization": "Bearer " + tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	auth := map[string]string{"Authorization": "Bearer " + tokens.Token}
	var me model.User
	data(t, e.do(t, http.MethodGet, "/api/v1/users/me", nil, nil, auth), &me)
	assert.Equal(t, "alice", me.Username)

	w = e.do(t, http.MethodPost, "/api/v1/users/logout", nil, nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodGet, "/api/v1/users/me", nil, nil, auth)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(t, http.MethodPost, "/api/v1/auth/refreshToken", nil, strings.NewReader(`{"refreshToken":"`+tokens.RefreshToken+`"}`), nil)
	data(t, w, &tokens)
	assert.NotEmpty(t, tokens.Token)
}

func TestAccessHiding(t *testing.T) {
	e := newEnv(t, map[string]string{"secret.txt": "s"})
	path := "/api/v1/files/" + e.fileID(t, "/secret.txt")

	w := e.do(t, http.MethodGet, path, e.bob, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "File not found.", errorBody(t, w))

	testutil.Grant(t, e.store, e.vol.ID, e.bob.ID, model.PermRead)
	var f model.File
	data(t, e.do(t, http.MethodGet, path, e.bob, nil, nil), &f)
	assert.Equal(t, "secret.txt", f.Name)

	// Read 不足以修改
	w = e.do(t, http.MethodPatch, path, e.bob, strings.NewReader(`{"name":"x.txt"}`), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "No permission.", errorBody(t, w))
}

func TestFileSystemErrorsHideHostPaths(t *testing.T) {
	e := newEnv(t, map[string]string{"gone.txt": "g"})
	path := "/api/v1/files/" + e.fileID(t, "/gone.txt")
	require.NoError(t, os.Remove(filepath.Join(e.dir, "gone.txt")))

	w := e.do(t, http.MethodPatch, path, e.alice, strings.NewReader(`{"name":"back.txt"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "File system operation failed.", errorBody(t, w))
	assert.NotContains(t, w.Body.String(), e.dir)
}

func TestFolderOperations(t *testing.T) {
	e := newEnv(t, map[string]string{"a.txt": "a", "dest/": ""})
	root := e.fileID(t, "/")

	var folder model.File
	w := e.do(t, http.MethodPost, "/api/v1/files/"+root+"/folders", e.alice, strings.NewReader(`{"name":"new"}`), nil)
	data(t, w, &folder)
	assert.Equal(t, "/new", folder.PathFromVol)

	w = e.do(t, http.MethodPost, "/api/v1/files/"+root+"/folders", e.alice, strings.NewReader(`{"name":"a/b"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var children []model.File
	data(t, e.do(t, http.MethodGet, "/api/v1/files/"+root+"/children", e.alice, nil, nil), &children)
	assert.Len(t, children, 3)

	body := `{"fileIds":["` + e.fileID(t, "/a.txt") + `"],"destId":"` + e.fileID(t, "/dest") + `"}`
	w = e.do(t, http.MethodPost, "/api/v1/files/move", e.alice, strings.NewReader(body), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, testutil.Exists(e.dir, "dest/a.txt"))

	w = e.do(t, http.MethodPost, "/api/v1/files/move", e.alice, strings.NewReader(`{"fileIds":["x"],"destId":"y","strategy":"Merge"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var results []model.File
	data(t, e.do(t, http.MethodGet, "/api/v1/files/search?q=A.TXT", e.alice, nil, nil), &results)
	require.Len(t, results, 1)
	assert.Equal(t, "/dest/a.txt", results[0].PathFromVol)

	w = e.do(t, http.MethodDelete, "/api/v1/files/"+e.fileID(t, "/dest"), e.alice, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, testutil.Exists(e.dir, "dest"))
}

func TestUpload(t *testing.T) {
	e := newEnv(t, map[string]string{"music/": ""})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range []struct{ path, content string }{
		{"album/01.mp3", "one"},
		{"album/02.mp3", "two"},
	} {
		fw, err := mw.CreateFormFile("files", f.path)
		require.NoError(t, err)
		_, err = fw.Write([]byte(f.content))
		require.NoError(t, err)
		require.NoError(t, mw.WriteField("paths", f.path))
	}
	require.NoError(t, mw.Close())

	path := "/api/v1/files/" + e.fileID(t, "/music") + "/upload"
	headers := map[string]string{"Content-Type": mw.FormDataContentType()}
	var created []model.File
	data(t, e.do(t, http.MethodPost, path, e.alice, bytes.NewReader(buf.Bytes()), headers), &created)
	require.Len(t, created, 2)
	assert.Equal(t, "one", testutil.ReadFile(t, e.dir, "music/album/01.mp3"))
	assert.Equal(t, "two", testutil.ReadFile(t, e.dir, "music/album/02.mp3"))

	w := e.do(t, http.MethodPost, path, e.bob, bytes.NewReader(buf.Bytes()), headers)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVolumeRoutes(t *testing.T) {
	e := newEnv(t, map[string]string{})
	dir := testutil.TempVolumeDir(t)
	body := `{"name":"photos","path":"` + dir + `"}`

	w := e.do(t, http.MethodPost, "/api/v1/volumes", e.alice, strings.NewReader(body), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	var created struct {
		Volume model.Volume      `json:"volume"`
		Job    model.JobProgress `json:"job"`
	}
	data(t, e.do(t, http.MethodPost, "/api/v1/volumes", e.admin, strings.NewReader(body), nil), &created)
	assert.Equal(t, "photos", created.Volume.Name)
	assert.Equal(t, "InQueue", created.Job.Status)

	w = e.do(t, http.MethodPost, "/api/v1/volumes", e.admin, strings.NewReader(body), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	grant := `{"userId":` + strconv.Itoa(int(e.alice.ID)) + `,"permission":10}`
	w = e.do(t, http.MethodPut, "/api/v1/volumes/"+created.Volume.ID+"/users", e.admin, strings.NewReader(grant), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var views []service.VolumeView
	data(t, e.do(t, http.MethodGet, "/api/v1/volumes", e.alice, nil, nil), &views)
	require.Len(t, views, 2)
	perms := map[string]model.Permission{}
	for _, v := range views {
		perms[v.Name] = v.Permission
	}
	assert.Equal(t, map[string]model.Permission{"photos": model.PermRead, "v": model.PermReadWrite}, perms)

	// alice 在 photos 上只有 Read，不能重新索引
	w = e.do(t, http.MethodPost, "/api/v1/volumes/"+created.Volume.ID+"/index", e.alice, nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestJobRoutes(t *testing.T) {
	e := newEnv(t, map[string]string{})
	job, err := e.queue.Enqueue(context.Background(), model.JobIndex, &e.vol.ID, "Index v", tasks.IndexTask{VolumeID: e.vol.ID})
	require.NoError(t, err)
	path := "/api/v1/jobs/" + strconv.Itoa(int(job.ID))

	var list []model.JobProgress
	data(t, e.do(t, http.MethodGet, "/api/v1/jobs", e.alice, nil, nil), &list)
	require.Len(t, list, 1)
	data(t, e.do(t, http.MethodGet, "/api/v1/jobs", e.bob, nil, nil), &list)
	assert.Empty(t, list)

	w := e.do(t, http.MethodGet, path, e.bob, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Job not found.", errorBody(t, w))
	w = e.do(t, http.MethodGet, "/api/v1/jobs/abc", e.alice, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var view model.JobProgress
	data(t, e.do(t, http.MethodPost, path+"/stop", e.alice, nil, nil), &view)
	assert.True(t, view.ToStop)
}

func TestJobProgressWebsocket(t *testing.T) {
	e := newEnv(t, map[string]string{})
	job, err := e.queue.Enqueue(context.Background(), model.JobIndex, &e.vol.ID, "Index v", tasks.IndexTask{VolumeID: e.vol.ID})
	require.NoError(t, err)
	require.NoError(t, e.store.Jobs().Finish(job.ID, model.JobCompleted, 100, ""))

	srv := httptest.NewServer(e.router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/api/v1/jobs/" + strconv.Itoa(int(job.ID)) + "/ws?token=" + e.token(t, e.alice)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var view model.JobProgress
	require.NoError(t, conn.ReadJSON(&view))
	assert.Equal(t, job.ID, view.ID)
	assert.Equal(t, "Completed", view.Status)
	assert.Equal(t, 100, view.Progress)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "%v", err)

	// 没有 token 时拒绝升级
	_, resp, err := websocket.DefaultDialer.Dial(strings.Split(url, "?")[0], nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPlaylistRoutes(t *testing.T) {
	e := newEnv(t, map[string]string{"1.mp3": "1"})

	var p model.Playlist
	data(t, e.do(t, http.MethodPost, "/api/v1/playlists", e.alice, strings.NewReader(`{"name":"mix"}`), nil), &p)
	path := "/api/v1/playlists/" + strconv.Itoa(int(p.ID))

	w := e.do(t, http.MethodPost, path+"/files", e.alice, strings.NewReader(`{"fileId":"`+e.fileID(t, "/1.mp3")+`"}`), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var d service.PlaylistDetail
	data(t, e.do(t, http.MethodGet, path, e.alice, nil, nil), &d)
	require.Len(t, d.Entries, 1)
	assert.Equal(t, "1.mp3", d.Entries[0].File.Name)

	w = e.do(t, http.MethodGet, path, e.bob, nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Playlist not found.", errorBody(t, w))

	w = e.do(t, http.MethodDelete, path+"/files/"+e.fileID(t, "/1.mp3"), e.alice, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = e.do(t, http.MethodDelete, path, e.alice, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
}
