package service

import (
	"context"
	"errors"
	"os"
	"strings"

	"homedrive-go/internal/apperr"
	"homedrive-go/internal/indexer"
	"homedrive-go/internal/model"
	"homedrive-go/internal/probe"
	"homedrive-go/internal/repository"
	"homedrive-go/pkg/fsutil"
	"homedrive-go/pkg/log"
)

// MoveStrategy 决定移动时遇到同名文件的处理方式。
type MoveStrategy string

const (
	// MoveRename 为移动的文件生成不冲突的新名字。
	MoveRename MoveStrategy = "Rename"
	// MoveOverwrite 在两者都是文件时替换目标。
	MoveOverwrite MoveStrategy = "Overwrite"
)

// FileService 接口定义了目录浏览和文件变更操作。
// 每个变更操作在一个事务中完成，主机上的改动发生在所有校验之后、提交之前。
type FileService interface {
	Get(ctx context.Context, user *model.User, fileID string) (*model.File, error)
	Children(ctx context.Context, user *model.User, folderID string) ([]model.File, error)
	CreateFolder(ctx context.Context, user *model.User, parentID, name string, existsOK bool) (*model.File, error)
	Rename(ctx context.Context, user *model.User, fileID, newName string) (*model.File, error)
	Delete(ctx context.Context, user *model.User, fileID string) error
	Move(ctx context.Context, user *model.User, fileIDs []string, destID string, strategy MoveStrategy) error
	CreateFiles(ctx context.Context, user *model.User, destID string, uploads []Upload) ([]model.File, error)
	Open(ctx context.Context, user *model.User, fileID string) (*model.File, *os.File, error)
	Thumbnail(ctx context.Context, user *model.User, fileID string) ([]byte, string, error)
	Search(ctx context.Context, user *model.User, query string, limit int) ([]model.File, error)
}

type fileService struct {
	store  *repository.Store
	gate   *Gate
	prober probe.Prober
}

// NewFileService 创建一个新的 FileService 实例。
func NewFileService(store *repository.Store, gate *Gate, prober probe.Prober) FileService {
	if prober == nil {
		prober = probe.Nop{}
	}
	return &fileService{store: store, gate: gate, prober: prober}
}

func (s *fileService) Get(ctx context.Context, user *model.User, fileID string) (*model.File, error) {
	f, _, err := s.gate.GetFile(s.store.WithContext(ctx), user, fileID, false)
	return f, err
}

// Children 列出目录的直接子项，目录在前。
func (s *fileService) Children(ctx context.Context, user *model.User, folderID string) ([]model.File, error) {
	store := s.store.WithContext(ctx)
	f, _, err := s.gate.GetFile(store, user, folderID, false)
	if err != nil {
		return nil, err
	}
	if !f.IsFolder() {
		return nil, apperr.InvalidOp("Not a folder.")
	}
	return store.Files().Children(f.ID)
}

func (s *fileService) CreateFolder(ctx context.Context, user *model.User, parentID, name string, existsOK bool) (*model.File, error) {
	var out *model.File
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		parent, vol, err := s.gate.GetFile(tx, user, parentID, true)
		if err != nil {
			return err
		}
		out, err = s.createFolderTx(ctx, tx, vol, parent, name, existsOK)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// createFolderTx 在 parent 下创建目录。名字已被占用时，existsOK 且占用者是目录则直接返回它。
func (s *fileService) createFolderTx(ctx context.Context, tx *repository.Store, vol *model.Volume, parent *model.File, name string, existsOK bool) (*model.File, error) {
	if !parent.IsFolder() {
		return nil, apperr.InvalidOp("Parent is not a folder.")
	}
	name = fsutil.CleanName(name)
	full, err := fsutil.JoinChild(fsutil.FullPath(vol.Path, parent.PathFromVol), name)
	if err != nil {
		return nil, err
	}

	existing, err := tx.Files().ChildByName(parent.ID, name)
	switch {
	case err == nil:
		if existsOK && existing.IsFolder() {
			return existing, nil
		}
		return nil, apperr.InvalidName("A file with this name already exists.")
	case !repository.IsNotFound(err):
		return nil, err
	}

	if err := os.MkdirAll(full, 0o755); err != nil {
		return nil, apperr.FS(err)
	}
	info, err := os.Stat(full)
	if err != nil {
		return nil, apperr.FS(err)
	}
	f := indexer.NewEntry(ctx, s.prober, parent, vol.ID, name, full, info)
	if err := tx.Files().Create(f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *fileService) Rename(ctx context.Context, user *model.User, fileID, newName string) (*model.File, error) {
	var out *model.File
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		f, vol, err := s.gate.GetFile(tx, user, fileID, true)
		if err != nil {
			return err
		}
		if f.IsRoot() {
			return apperr.InvalidOp("Cannot rename the root folder.")
		}
		parent, err := tx.Files().Get(*f.ParentID)
		if err != nil {
			return err
		}
		name := fsutil.CleanName(newName)
		if _, err := fsutil.JoinChild(fsutil.FullPath(vol.Path, parent.PathFromVol), name); err != nil {
			return err
		}
		out = f
		if name == f.Name {
			return nil
		}
		if _, err := tx.Files().ChildByName(parent.ID, name); err == nil {
			return apperr.InvalidName("A file with this name already exists.")
		} else if !repository.IsNotFound(err) {
			return err
		}
		return s.relocate(tx, vol, f, parent, name)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *fileService) Delete(ctx context.Context, user *model.User, fileID string) error {
	return s.store.Transaction(ctx, func(tx *repository.Store) error {
		f, vol, err := s.gate.GetFile(tx, user, fileID, true)
		if err != nil {
			return err
		}
		if f.IsRoot() {
			return apperr.InvalidOp("Cannot delete the root folder.")
		}
		if err := tx.Files().Delete(f.ID); err != nil {
			return err
		}
		return removeHost(fsutil.FullPath(vol.Path, f.PathFromVol), f.IsFolder())
	})
}

// removeHost 删除主机上的文件或目录树，已经不存在视为成功。
func removeHost(full string, folder bool) error {
	var err error
	if folder {
		err = os.RemoveAll(full)
	} else {
		err = os.Remove(full)
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperr.FS(err)
	}
	return nil
}

// relocate 把 f 移动到 dest 下并命名为 name：先移动主机对象，再改写 f 与全部子孙的路径。
func (s *fileService) relocate(tx *repository.Store, vol *model.Volume, f *model.File, dest *model.File, name string) error {
	src := fsutil.FullPath(vol.Path, f.PathFromVol)
	dst, err := fsutil.JoinChild(fsutil.FullPath(vol.Path, dest.PathFromVol), name)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(dst); err == nil {
		return apperr.InvalidOp("Target already exists on disk.")
	}

	var descendants []model.File
	if f.IsFolder() {
		if descendants, err = tx.Files().Descendants(f.VolumeID, f.PathFromVol); err != nil {
			return err
		}
	}
	if err := fsutil.Move(src, dst); err != nil {
		return apperr.FS(err)
	}

	oldPath := f.PathFromVol
	f.Name = name
	f.ParentID = &dest.ID
	f.VolumeID = dest.VolumeID
	f.PathFromVol = fsutil.JoinVolPath(dest.PathFromVol, name)
	if err := tx.Files().Update(f, "name", "parent_id", "volume_id", "path_from_vol"); err != nil {
		return err
	}
	if len(descendants) == 0 {
		return nil
	}
	rows := make([]*model.File, 0, len(descendants))
	for i := range descendants {
		d := &descendants[i]
		d.PathFromVol, _ = fsutil.RewritePrefix(d.PathFromVol, oldPath, f.PathFromVol)
		d.VolumeID = dest.VolumeID
		rows = append(rows, d)
	}
	return tx.Files().BulkUpdate(rows, "path_from_vol", "volume_id")
}

// Open 打开一个文件用于下载，调用方负责关闭。
func (s *fileService) Open(ctx context.Context, user *model.User, fileID string) (*model.File, *os.File, error) {
	f, vol, err := s.gate.GetFile(s.store.WithContext(ctx), user, fileID, false)
	if err != nil {
		return nil, nil, err
	}
	h, err := openHost(vol, f)
	if err != nil {
		return nil, nil, err
	}
	return f, h, nil
}

func openHost(vol *model.Volume, f *model.File) (*os.File, error) {
	if f.IsFolder() {
		return nil, apperr.InvalidOp("Cannot download a folder.")
	}
	h, err := os.Open(fsutil.FullPath(vol.Path, f.PathFromVol))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Warnw("[FileService] 目录中的文件在磁盘上不存在", "file", f.ID, "path", f.PathFromVol)
			return nil, apperr.ErrFileNotFound
		}
		return nil, apperr.FS(err)
	}
	return h, nil
}

// Thumbnail 返回音频文件内嵌的封面。
func (s *fileService) Thumbnail(ctx context.Context, user *model.User, fileID string) ([]byte, string, error) {
	f, vol, err := s.gate.GetFile(s.store.WithContext(ctx), user, fileID, false)
	if err != nil {
		return nil, "", err
	}
	if f.IsFolder() {
		return nil, "", apperr.InvalidOp("Folders have no thumbnail.")
	}
	data, mt, err := probe.Thumbnail(fsutil.FullPath(vol.Path, f.PathFromVol))
	if err != nil {
		if errors.Is(err, probe.ErrNoThumbnail) {
			return nil, "", apperr.New(apperr.NotFound, "No thumbnail.")
		}
		log.Warnw("[FileService] 读取封面失败", "file", f.ID, "error", err)
		return nil, "", apperr.New(apperr.NotFound, "No thumbnail.")
	}
	return data, mt, nil
}

// Search 按名字搜索用户可读卷中的文件，查询串按空白切分，每个词都必须出现在名字里。
func (s *fileService) Search(ctx context.Context, user *model.User, query string, limit int) ([]model.File, error) {
	tokens := strings.Fields(fsutil.CleanName(query))
	if len(tokens) == 0 {
		return []model.File{}, nil
	}
	store := s.store.WithContext(ctx)
	volumeIDs, err := s.gate.ReadableVolumeIDs(store, user)
	if err != nil {
		return nil, err
	}
	return store.Files().SearchByName(tokens, volumeIDs, limit)
}
