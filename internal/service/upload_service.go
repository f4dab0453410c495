// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"io"
	"os"

	"homedrive-go/internal/apperr"
	"homedrive-go/internal/indexer"
	"homedrive-go/internal/model"
	"homedrive-go/internal/repository"
	"homedrive-go/pkg/fsutil"
	"homedrive-go/pkg/log"
)

// Upload 是一个待写入的上传文件。RelPath 可以带中间目录（如 "photos/2024/a.jpg"），
// 内容来自 Reader，或者来自一个可以直接移动过去的临时文件 TempPath。
type Upload struct {
	RelPath  string
	Reader   io.Reader
	TempPath string
}

// uploadMode 是上传文件在磁盘上的权限。
const uploadMode = 0o755

// CreateFiles 把上传的文件写入 destID 目录，缺失的中间目录会被创建，同名文件按新名字算法改名。
func (s *fileService) CreateFiles(ctx context.Context, user *model.User, destID string, uploads []Upload) ([]model.File, error) {
	var (
		created []model.File
		written []string
		// madeDirs 按创建顺序记录本次新建的主机目录
		madeDirs []string
	)
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		dest, vol, err := s.gate.GetFile(tx, user, destID, true)
		if err != nil {
			return err
		}
		if !dest.IsFolder() {
			return apperr.InvalidOp("Destination is not a folder.")
		}

		for _, up := range uploads {
			dirs, name := fsutil.SplitRelPath(up.RelPath)
			name = fsutil.CleanName(name)
			if err := fsutil.ValidateName(name); err != nil {
				return err
			}
			parent := dest
			for _, d := range dirs {
				dirFull, err := fsutil.JoinChild(fsutil.FullPath(vol.Path, parent.PathFromVol), fsutil.CleanName(d))
				if err != nil {
					return err
				}
				_, statErr := os.Lstat(dirFull)
				if parent, err = s.createFolderTx(ctx, tx, vol, parent, d, true); err != nil {
					return err
				}
				if errors.Is(statErr, os.ErrNotExist) {
					madeDirs = append(madeDirs, dirFull)
				}
			}

			used, err := tx.Files().ChildNames(parent.ID)
			if err != nil {
				return err
			}
			if name, err = fsutil.NewName(name, used); err != nil {
				return err
			}
			full, err := fsutil.JoinChild(fsutil.FullPath(vol.Path, parent.PathFromVol), name)
			if err != nil {
				return err
			}
			if err := writeUpload(full, up); err != nil {
				return apperr.FS(err)
			}
			written = append(written, full)
			if err := os.Chmod(full, uploadMode); err != nil {
				return apperr.FS(err)
			}
			info, err := os.Stat(full)
			if err != nil {
				return apperr.FS(err)
			}

			f := indexer.NewEntry(ctx, s.prober, parent, vol.ID, name, full, info)
			if err := tx.Files().Create(f); err != nil {
				return err
			}
			created = append(created, *f)
		}
		return nil
	})
	if err != nil {
		// 事务已回滚，删除已经写入的文件，再从最深处开始删除新建的目录
		for _, p := range written {
			if rerr := os.Remove(p); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				log.Warnw("[Upload] 清理上传文件失败", "path", p, "error", rerr)
			}
		}
		for i := len(madeDirs) - 1; i >= 0; i-- {
			if rerr := os.Remove(madeDirs[i]); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				log.Warnw("[Upload] 清理上传目录失败", "path", madeDirs[i], "error", rerr)
			}
		}
		return nil, err
	}
	log.Infow("[Upload] 上传完成", "dest", destID, "files", len(created))
	return created, nil
}

// writeUpload 把上传内容写到 full，目标已存在时失败，不会覆盖磁盘上未入库的文件。
func writeUpload(full string, up Upload) error {
	if up.TempPath != "" {
		if _, err := os.Lstat(full); err == nil {
			return os.ErrExist
		}
		return fsutil.Move(up.TempPath, full)
	}
	if up.Reader == nil {
		return errors.New("upload has no content")
	}
	out, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, uploadMode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, up.Reader); err != nil {
		out.Close()
		_ = os.Remove(full)
		return err
	}
	return out.Close()
}
