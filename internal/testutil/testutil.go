// Package testutil 提供单元测试共用的数据库与主机目录构造工具。
package testutil

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"homedrive-go/internal/config"
	"homedrive-go/internal/model"
	"homedrive-go/internal/repository"
	"homedrive-go/pkg/database"
	"homedrive-go/pkg/hash"
)

// NewTestDB 打开一个迁移好的内存 SQLite 数据库。
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// NewTestStore 返回基于内存数据库的 Store。
func NewTestStore(t *testing.T) *repository.Store {
	t.Helper()
	return repository.NewStore(NewTestDB(t), repository.DefaultBatchSize)
}

// CreateUser 创建一个用户，密码与用户名相同。
func CreateUser(t *testing.T, store *repository.Store, username string, superuser bool) *model.User {
	t.Helper()
	hashed, err := hash.HashPassword(username)
	require.NoError(t, err)
	role := model.RoleUser
	if superuser {
		role = model.RoleAdmin
	}
	u := &model.User{Username: username, Password: hashed, Role: role}
	require.NoError(t, store.Users().Create(u))
	return u
}

// Grant 给用户在卷上授予权限。
func Grant(t *testing.T, store *repository.Store, volumeID string, userID uint, perm model.Permission) {
	t.Helper()
	require.NoError(t, store.VolumeUsers().Upsert(volumeID, userID, perm))
}

// WriteTree 在 root 下创建文件树。以 "/" 结尾的键是目录，其它键是内容为对应值的文件。
func WriteTree(t *testing.T, root string, entries map[string]string) {
	t.Helper()
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p := filepath.Join(root, filepath.FromSlash(k))
		if strings.HasSuffix(k, "/") {
			require.NoError(t, os.MkdirAll(p, 0o755))
			continue
		}
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(entries[k]), 0o644))
	}
}

// ReadFile 读取 root 下的文件内容。
func ReadFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

// Exists 判断 root 下的路径是否存在。
func Exists(root, rel string) bool {
	_, err := os.Lstat(filepath.Join(root, filepath.FromSlash(rel)))
	return err == nil
}

// TempVolumeDir 返回一个规范化（解析过符号链接）的临时目录，用作卷路径。
func TempVolumeDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

// Paths 返回卷内所有记录的 path_from_vol，已排序。
func Paths(t *testing.T, store *repository.Store, volumeID string) []string {
	t.Helper()
	var paths []string
	require.NoError(t, store.DB().Model(&model.File{}).
		Where("volume_id = ?", volumeID).
		Order("path_from_vol asc").
		Pluck("path_from_vol", &paths).Error)
	return paths
}

// AssertCatalogInvariants 校验目录的结构不变式：每个卷恰好一个根，
// 非根记录的路径等于父路径拼接名字。
func AssertCatalogInvariants(t *testing.T, store *repository.Store, volumeID string) {
	t.Helper()
	var files []model.File
	require.NoError(t, store.DB().Where("volume_id = ?", volumeID).Find(&files).Error)
	byID := make(map[string]model.File, len(files))
	roots := 0
	for _, f := range files {
		byID[f.ID] = f
		if f.ParentID == nil {
			roots++
			require.Equal(t, model.RootPath, f.PathFromVol)
		}
	}
	require.Equal(t, 1, roots, "volume must have exactly one root")
	for _, f := range files {
		if f.ParentID == nil {
			continue
		}
		parent, ok := byID[*f.ParentID]
		require.True(t, ok, "parent of %s must be in the same volume", f.PathFromVol)
		want := parent.PathFromVol + "/" + f.Name
		if parent.PathFromVol == model.RootPath {
			want = "/" + f.Name
		}
		require.Equal(t, want, f.PathFromVol)
	}
}

// FixedClock 返回一个总是返回 t 的时钟函数。
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
