package service

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/flate"

	"homedrive-go/internal/apperr"
	"homedrive-go/internal/jobs"
	"homedrive-go/internal/model"
	"homedrive-go/internal/repository"
	"homedrive-go/pkg/fsutil"
	"homedrive-go/pkg/log"
	"homedrive-go/pkg/tasks"
)

const zipMediaType = "application/zip"

// ZipService 负责校验压缩请求并把它放入任务队列。
type ZipService interface {
	EnqueueZip(ctx context.Context, user *model.User, fileIDs []string, parentID, zipName string) (*model.Job, error)
}

type zipService struct {
	store *repository.Store
	gate  *Gate
	queue *jobs.Queue
}

// NewZipService 创建一个新的 ZipService 实例。
func NewZipService(store *repository.Store, gate *Gate, queue *jobs.Queue) ZipService {
	return &zipService{store: store, gate: gate, queue: queue}
}

// ZipName 规范化 zip 文件名：去掉首尾空白，缺少 .zip 后缀时补上。
func ZipName(name string) (string, error) {
	name = fsutil.CleanName(name)
	if name == "" {
		return "", apperr.InvalidName("Zip name cannot be empty.")
	}
	if !strings.HasSuffix(name, ".zip") {
		name += ".zip"
	}
	if err := fsutil.ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

func (s *zipService) EnqueueZip(ctx context.Context, user *model.User, fileIDs []string, parentID, zipName string) (*model.Job, error) {
	name, err := ZipName(zipName)
	if err != nil {
		return nil, err
	}
	var job *model.Job
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		parent, vol, err := s.gate.GetFile(tx, user, parentID, true)
		if err != nil {
			return err
		}
		if !parent.IsFolder() {
			return apperr.InvalidOp("Destination is not a folder.")
		}
		ids := uniqueIDs(fileIDs)
		if len(ids) == 0 {
			return apperr.InvalidOp("No file to compress.")
		}
		files, err := tx.Files().FindByIDs(ids)
		if err != nil {
			return err
		}
		if len(files) != len(ids) {
			return apperr.ErrFileNotFound
		}
		var level string
		for i := range files {
			f := &files[i]
			if f.VolumeID != vol.ID {
				return apperr.InvalidOp("Files must be from the same volume.")
			}
			if f.IsRoot() {
				return apperr.InvalidOp("Cannot compress the root folder.")
			}
			if i == 0 {
				level = *f.ParentID
			} else if *f.ParentID != level {
				return apperr.InvalidOp("Files must be in the same folder.")
			}
		}

		volID := vol.ID
		job, err = s.queue.EnqueueTx(tx, model.JobZip, &volID, "Compress "+name,
			tasks.ZipTask{Files: ids, Parent: parent.ID, Name: name, UserID: user.ID})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.queue.Notify(ctx, job)
	log.Infow("[ZipService] 压缩任务已入队", "job", job.ID, "name", name, "files", len(fileIDs))
	return job, nil
}

// bestCompressor 用 klauspost 的 flate 实现替换标准库的 Deflate 压缩器，压缩级别 9。
func bestCompressor(w io.Writer) (io.WriteCloser, error) {
	return flate.NewWriter(w, flate.BestCompression)
}

// ZipRunner 执行 Zip 任务：先写到临时目录，完成后移动到目标目录并入库。
type ZipRunner struct {
	Store   *repository.Store
	TempDir string

	// afterEntry 在每个条目写入之后、报告进度之前调用，测试用。
	afterEntry func(e zipEntry)
}

type zipEntry struct {
	full    string
	arcname string
	dir     bool
}

func (r ZipRunner) Run(ctx context.Context, job *model.Job, progress *jobs.Progress) error {
	var task tasks.ZipTask
	if err := jobs.DecodePayload(job, &task); err != nil {
		return err
	}
	store := r.Store.WithContext(ctx)
	parent, err := store.Files().Get(task.Parent)
	if err != nil {
		return fmt.Errorf("load zip parent: %w", err)
	}
	vol, err := store.Volumes().Get(parent.VolumeID)
	if err != nil {
		return fmt.Errorf("load zip volume: %w", err)
	}
	sources, err := store.Files().FindByIDs(task.Files)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return apperr.ErrFileNotFound
	}

	// 条目名相对于源文件所在的目录
	base := vol.Path
	if sources[0].ParentID != nil {
		srcParent, err := store.Files().Get(*sources[0].ParentID)
		if err != nil {
			return err
		}
		base = fsutil.FullPath(vol.Path, srcParent.PathFromVol)
	}
	entries, err := collectZipEntries(vol, sources, base)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(r.TempDir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(r.TempDir, uuid.NewString()+".zip")
	if err := writeZip(tmp, entries, progress, r.afterEntry); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := r.install(ctx, tmp, task.Name, parent.ID); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	log.Infow("[ZipRunner] 压缩完成", "job", job.ID, "name", task.Name, "entries", len(entries))
	return nil
}

// collectZipEntries 用显式栈遍历源文件，返回所有要写入的条目。符号链接被忽略。
func collectZipEntries(vol *model.Volume, sources []model.File, base string) ([]zipEntry, error) {
	var entries []zipEntry
	stack := make([]string, 0, len(sources))
	for i := len(sources) - 1; i >= 0; i-- {
		stack = append(stack, fsutil.FullPath(vol.Path, sources[i].PathFromVol))
	}
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		info, err := os.Lstat(p)
		if err != nil {
			return nil, err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			continue
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return nil, err
		}
		arcname := filepath.ToSlash(rel)
		if info.IsDir() {
			entries = append(entries, zipEntry{full: p, arcname: arcname + "/", dir: true})
			children, err := os.ReadDir(p)
			if err != nil {
				return nil, err
			}
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, filepath.Join(p, children[i].Name()))
			}
			continue
		}
		if info.Mode().IsRegular() {
			entries = append(entries, zipEntry{full: p, arcname: arcname})
		}
	}
	return entries, nil
}

func writeZip(path string, entries []zipEntry, progress *jobs.Progress, afterEntry func(zipEntry)) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, bestCompressor)
	total := len(entries)
	if total == 0 {
		total = 1
	}
	for i, e := range entries {
		if err := progress.Report(i * 100 / total); err != nil {
			zw.Close()
			out.Close()
			return err
		}
		if err := addZipEntry(zw, e); err != nil {
			zw.Close()
			out.Close()
			return fmt.Errorf("add %s: %w", e.arcname, err)
		}
		if afterEntry != nil {
			afterEntry(e)
		}
		if err := progress.Report((i + 1) * 100 / total); err != nil {
			zw.Close()
			out.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func addZipEntry(zw *zip.Writer, e zipEntry) error {
	info, err := os.Stat(e.full)
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = e.arcname
	if e.dir {
		hdr.Method = zip.Store
		_, err = zw.CreateHeader(hdr)
		return err
	}
	hdr.Method = zip.Deflate
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	in, err := os.Open(e.full)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(w, in)
	return err
}

// install 在一个短事务中把临时 zip 移到目标目录并插入目录记录，同名的旧条目先被删除。
func (r ZipRunner) install(ctx context.Context, tmp, name, parentID string) error {
	return r.Store.Transaction(ctx, func(tx *repository.Store) error {
		parent, err := tx.Files().GetForUpdate(parentID)
		if err != nil {
			return err
		}
		vol, err := tx.Volumes().Get(parent.VolumeID)
		if err != nil {
			return err
		}
		dst, err := fsutil.JoinChild(fsutil.FullPath(vol.Path, parent.PathFromVol), name)
		if err != nil {
			return err
		}
		existing, err := tx.Files().ChildByName(parent.ID, name)
		switch {
		case err == nil:
			if err := tx.Files().Delete(existing.ID); err != nil {
				return err
			}
			if err := removeHost(dst, existing.IsFolder()); err != nil {
				return err
			}
		case !repository.IsNotFound(err):
			return err
		default:
			// 磁盘上可能有未入库的同名文件
			if info, serr := os.Lstat(dst); serr == nil {
				if err := removeHost(dst, info.IsDir()); err != nil {
					return err
				}
			}
		}

		if err := fsutil.Move(tmp, dst); err != nil {
			return apperr.FS(err)
		}
		info, err := os.Stat(dst)
		if err != nil {
			return apperr.FS(err)
		}
		mt := zipMediaType
		f := &model.File{
			Name:         name,
			Kind:         model.KindFile,
			ParentID:     &parent.ID,
			VolumeID:     vol.ID,
			PathFromVol:  fsutil.JoinVolPath(parent.PathFromVol, name),
			MediaType:    &mt,
			LastModified: model.NormalizeTime(info.ModTime()),
			Size:         info.Size(),
		}
		if err := tx.Files().Create(f); err != nil {
			if rerr := os.Remove(dst); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
				log.Warnw("[ZipRunner] 清理 zip 文件失败", "path", dst, "error", rerr)
			}
			return err
		}
		return nil
	})
}
