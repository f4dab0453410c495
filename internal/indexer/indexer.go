// Package indexer 把一个卷的目录记录与主机上的实际目录树对齐。
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"homedrive-go/internal/apperr"
	"homedrive-go/internal/model"
	"homedrive-go/internal/probe"
	"homedrive-go/internal/repository"
	"homedrive-go/pkg/fsutil"
	"homedrive-go/pkg/log"
)

// Checkpoint 在处理每个目录之前调用，done 为已处理的目录数，pending 为栈中待处理的目录数。
// 返回错误时索引在当前目录之前停止。
type Checkpoint func(done, pending int) error

// Stats 汇总一次索引对目录记录的改动。
type Stats struct {
	Folders  int `json:"folders"`
	Created  int `json:"created"`
	Replaced int `json:"replaced"`
	Updated  int `json:"updated"`
	Deleted  int `json:"deleted"`
}

// Writes 返回本次索引写入的记录数。
func (s Stats) Writes() int {
	return s.Created + s.Replaced + s.Updated + s.Deleted
}

// Indexer 对卷进行索引。
type Indexer struct {
	store  *repository.Store
	prober probe.Prober
	now    func() time.Time
}

// New 创建一个 Indexer。prober 为 nil 时不提取元数据。
func New(store *repository.Store, prober probe.Prober) *Indexer {
	if prober == nil {
		prober = probe.Nop{}
	}
	return &Indexer{store: store, prober: prober, now: time.Now}
}

// pendingUpdate 是一条待批量更新的记录以及它实际变化的列。
type pendingUpdate struct {
	file   *model.File
	fields []string
}

// IndexVolume 对 volumeID 对应的卷做一次完整的索引。
// 新建和替换的记录立即写入（各自一个短事务），内容变化和删除在遍历结束后统一提交。
func (ix *Indexer) IndexVolume(ctx context.Context, volumeID string, checkpoint Checkpoint) (stats Stats, err error) {
	store := ix.store.WithContext(ctx)
	vol, err := store.Volumes().Get(volumeID)
	if err != nil {
		if repository.IsNotFound(err) {
			return stats, apperr.ErrVolumeNotFound
		}
		return stats, err
	}
	if vol.Kind != model.HostPath {
		return stats, apperr.ErrNotImplemented
	}

	vol.Indexing = true
	if err := store.Volumes().Update(vol, "indexing"); err != nil {
		return stats, err
	}
	defer func() {
		vol.Indexing = false
		fields := []string{"indexing"}
		if err == nil {
			now := ix.now().UTC()
			vol.LastIndexed = &now
			fields = append(fields, "last_indexed")
		}
		if uerr := ix.store.Volumes().Update(vol, fields...); uerr != nil && err == nil {
			err = uerr
		}
	}()

	root, err := ix.ensureRoot(ctx, store, vol)
	if err != nil {
		return stats, err
	}

	var (
		updates []pendingUpdate
		deletes []string
		stack   = []*model.File{root}
		stopErr error
	)
	for len(stack) > 0 {
		if checkpoint != nil {
			if stopErr = checkpoint(stats.Folders, len(stack)); stopErr != nil {
				break
			}
		}
		folder := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		subdirs, err := ix.reconcileFolder(ctx, store, vol, folder, &stats, &updates, &deletes)
		if err != nil {
			return stats, err
		}
		stats.Folders++
		// 逆序压栈，按名字顺序深度优先
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	if err := ix.flush(ctx, updates, deletes); err != nil {
		return stats, err
	}
	stats.Updated = len(updates)
	stats.Deleted = len(deletes)

	if stopErr != nil {
		log.Infow("[Indexer] 索引被中止", "volume", vol.Name, "folders", stats.Folders)
		return stats, stopErr
	}
	log.Infow("[Indexer] 索引完成", "volume", vol.Name, "folders", stats.Folders,
		"created", stats.Created, "replaced", stats.Replaced, "updated", stats.Updated, "deleted", stats.Deleted)
	return stats, nil
}

// ensureRoot 返回卷的根记录，不存在时按卷目录的 stat 信息创建。
func (ix *Indexer) ensureRoot(ctx context.Context, store *repository.Store, vol *model.Volume) (*model.File, error) {
	root, err := store.Files().Root(vol.ID)
	if err == nil {
		return root, nil
	}
	if !repository.IsNotFound(err) {
		return nil, err
	}
	info, err := os.Stat(vol.Path)
	if err != nil {
		return nil, apperr.FS(err)
	}
	root = NewEntry(ctx, ix.prober, nil, vol.ID, "", vol.Path, info)
	if err := store.Files().Create(root); err != nil {
		return nil, err
	}
	return root, nil
}

// reconcileFolder 对比一个目录的目录记录与主机目录项，返回需要继续下探的子目录。
func (ix *Indexer) reconcileFolder(ctx context.Context, store *repository.Store, vol *model.Volume, folder *model.File,
	stats *Stats, updates *[]pendingUpdate, deletes *[]string) ([]*model.File, error) {

	children, err := store.Files().Children(folder.ID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*model.File, len(children))
	for i := range children {
		byName[children[i].Name] = &children[i]
	}

	folderFull := fsutil.FullPath(vol.Path, folder.PathFromVol)
	entries, err := os.ReadDir(folderFull)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// 目录在遍历过程中被删除，交给下一次索引处理
			log.Warnf("[Indexer] 目录已不存在，跳过: %s", folderFull)
			return nil, nil
		}
		return nil, apperr.FS(err)
	}

	seen := make(map[string]struct{}, len(entries))
	var subdirs []*model.File
	for _, de := range entries {
		if !indexable(de.Type()) {
			continue
		}
		name := de.Name()
		info, err := de.Info()
		if err != nil {
			// 读目录和 stat 之间被删除
			continue
		}
		if !indexable(info.Mode()) {
			continue
		}
		seen[name] = struct{}{}
		fullPath := fsutil.FullPath(vol.Path, fsutil.JoinVolPath(folder.PathFromVol, name))
		existing := byName[name]

		switch {
		case existing == nil:
			entry := NewEntry(ctx, ix.prober, folder, vol.ID, name, fullPath, info)
			if err := store.Files().Create(entry); err != nil {
				return nil, fmt.Errorf("create %s: %w", entry.PathFromVol, err)
			}
			stats.Created++
			if entry.IsFolder() {
				subdirs = append(subdirs, entry)
			}

		case existing.Kind != kindOf(info):
			entry := NewEntry(ctx, ix.prober, folder, vol.ID, name, fullPath, info)
			err := store.Transaction(ctx, func(tx *repository.Store) error {
				if err := tx.Files().Delete(existing.ID); err != nil {
					return err
				}
				return tx.Files().Create(entry)
			})
			if err != nil {
				return nil, fmt.Errorf("replace %s: %w", entry.PathFromVol, err)
			}
			stats.Replaced++
			if entry.IsFolder() {
				subdirs = append(subdirs, entry)
			}

		case existing.IsFolder():
			if !model.SameTime(existing.LastModified, info.ModTime()) {
				existing.LastModified = model.NormalizeTime(info.ModTime())
				*updates = append(*updates, pendingUpdate{file: existing, fields: []string{"last_modified"}})
			}
			subdirs = append(subdirs, existing)

		default:
			if fields := ix.refreshFile(ctx, existing, fullPath, info); len(fields) > 0 {
				*updates = append(*updates, pendingUpdate{file: existing, fields: fields})
			}
		}
	}

	var gone []string
	for name, c := range byName {
		if _, ok := seen[name]; !ok {
			gone = append(gone, c.ID)
		}
	}
	sort.Strings(gone)
	*deletes = append(*deletes, gone...)
	return subdirs, nil
}

// refreshFile 在修改时间或大小变化时重新计算文件属性，返回实际变化的列。
func (ix *Indexer) refreshFile(ctx context.Context, f *model.File, fullPath string, info os.FileInfo) []string {
	if model.SameTime(f.LastModified, info.ModTime()) && f.Size == info.Size() {
		return nil
	}
	var fields []string
	if lm := model.NormalizeTime(info.ModTime()); !lm.Equal(f.LastModified) {
		f.LastModified = lm
		fields = append(fields, "last_modified")
	}
	if f.Size != info.Size() {
		f.Size = info.Size()
		fields = append(fields, "size")
	}
	mt, meta := probeFile(ctx, ix.prober, fullPath)
	if !sameMediaType(f.MediaType, mt) {
		f.MediaType = mt
		fields = append(fields, "media_type")
	}
	if !sameMetadata(f.Metadata, meta) {
		f.Metadata = meta
		fields = append(fields, "metadata")
	}
	return fields
}

// flush 在一个事务中提交遍历期间收集的更新与删除。更新按变化的列分组批量写入。
func (ix *Indexer) flush(ctx context.Context, updates []pendingUpdate, deletes []string) error {
	if len(updates) == 0 && len(deletes) == 0 {
		return nil
	}
	groups := make(map[string][]*model.File)
	fieldsOf := make(map[string][]string)
	var keys []string
	for _, u := range updates {
		key := strings.Join(u.fields, ",")
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
			fieldsOf[key] = u.fields
		}
		groups[key] = append(groups[key], u.file)
	}
	sort.Strings(keys)

	return ix.store.Transaction(ctx, func(tx *repository.Store) error {
		for _, key := range keys {
			if err := tx.Files().BulkUpdate(groups[key], fieldsOf[key]...); err != nil {
				return err
			}
		}
		return tx.Files().DeleteByIDs(deletes)
	})
}
