package service

import (
	"context"

	"homedrive-go/internal/apperr"
	"homedrive-go/internal/model"
	"homedrive-go/internal/repository"
	"homedrive-go/pkg/fsutil"
)

// Move 把一组同卷的文件移动到目标目录下。同名目录会合并，其余冲突按 strategy 处理。
func (s *fileService) Move(ctx context.Context, user *model.User, fileIDs []string, destID string, strategy MoveStrategy) error {
	if strategy != MoveOverwrite {
		strategy = MoveRename
	}
	return s.store.Transaction(ctx, func(tx *repository.Store) error {
		ids := uniqueIDs(fileIDs)
		found, err := tx.Files().FindByIDsForUpdate(ids)
		if err != nil {
			return err
		}
		volumeID := ""
		for _, f := range found {
			if volumeID == "" {
				volumeID = f.VolumeID
			} else if f.VolumeID != volumeID {
				return apperr.InvalidOp("Files must be from the same volume.")
			}
		}
		if len(ids) == 0 || len(found) != len(ids) {
			return apperr.ErrNoFileToMove
		}

		vol, err := s.gate.RequestVolume(tx, user, volumeID, model.PermReadWrite, true)
		if err != nil {
			if apperr.KindOf(err) == apperr.VolumeNotFound {
				return apperr.ErrNoFileToMove
			}
			return err
		}
		dest, destVol, err := s.gate.GetFile(tx, user, destID, true)
		if err != nil {
			return err
		}
		if !dest.IsFolder() {
			return apperr.InvalidOp("Destination is not a folder.")
		}
		destFull := fsutil.FullPath(destVol.Path, dest.PathFromVol)
		for _, f := range found {
			if fsutil.IsWithin(fsutil.FullPath(vol.Path, f.PathFromVol), destFull) {
				return apperr.InvalidOp("Cannot move a folder into itself.")
			}
		}
		if dest.VolumeID != vol.ID {
			return apperr.InvalidOp("Cannot move files across volumes.")
		}

		byID := make(map[string]*model.File, len(found))
		for i := range found {
			byID[found[i].ID] = &found[i]
		}
		// 合并会改写 found 中的路径，先确定哪些源随祖先一起移动
		covered := make(map[string]bool, len(found))
		for i := range found {
			covered[found[i].ID] = coveredBySource(vol, &found[i], found)
		}
		for _, id := range ids {
			if covered[id] {
				continue
			}
			if err := s.merge(tx, vol, byID[id], dest, strategy); err != nil {
				return err
			}
		}
		return nil
	})
}

// coveredBySource 判断 f 是否位于另一个源目录之下。它会随祖先一起移动，不能再单独处理。
func coveredBySource(vol *model.Volume, f *model.File, sources []model.File) bool {
	full := fsutil.FullPath(vol.Path, f.PathFromVol)
	for i := range sources {
		other := &sources[i]
		if other.ID == f.ID || !other.IsFolder() {
			continue
		}
		if fsutil.IsWithin(fsutil.FullPath(vol.Path, other.PathFromVol), full) {
			return true
		}
	}
	return false
}

type mergeFrame struct {
	src  *model.File
	dest *model.File
	// cleanup 帧在 src 的子项都处理完之后删除已清空的源目录
	cleanup bool
}

// merge 把 src 移入 dest。用显式栈代替递归，后序的 cleanup 帧负责删除合并后的空目录。
func (s *fileService) merge(tx *repository.Store, vol *model.Volume, src, dest *model.File, strategy MoveStrategy) error {
	stack := []mergeFrame{{src: src, dest: dest}}
	for len(stack) > 0 {
		fr := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if fr.cleanup {
			if err := tx.Files().Delete(fr.src.ID); err != nil {
				return err
			}
			if err := removeHost(fsutil.FullPath(vol.Path, fr.src.PathFromVol), false); err != nil {
				return err
			}
			continue
		}

		target, err := tx.Files().ChildByName(fr.dest.ID, fr.src.Name)
		if err != nil && !repository.IsNotFound(err) {
			return err
		}
		switch {
		case target == nil:
			err = s.relocate(tx, vol, fr.src, fr.dest, fr.src.Name)
		case target.ID == fr.src.ID:
			// 已经在目标目录下
		case target.IsFolder() && fr.src.IsFolder():
			children, err := tx.Files().Children(fr.src.ID)
			if err != nil {
				return err
			}
			stack = append(stack, mergeFrame{src: fr.src, cleanup: true})
			for i := len(children) - 1; i >= 0; i-- {
				child := children[i]
				stack = append(stack, mergeFrame{src: &child, dest: target})
			}
		case !target.IsFolder() && !fr.src.IsFolder() && strategy == MoveOverwrite:
			if err := tx.Files().Delete(target.ID); err != nil {
				return err
			}
			if err := removeHost(fsutil.FullPath(vol.Path, target.PathFromVol), false); err != nil {
				return err
			}
			err = s.relocate(tx, vol, fr.src, fr.dest, fr.src.Name)
		default:
			used, uerr := tx.Files().ChildNames(fr.dest.ID)
			if uerr != nil {
				return uerr
			}
			name, nerr := fsutil.NewName(fr.src.Name, used)
			if nerr != nil {
				return nerr
			}
			err = s.relocate(tx, vol, fr.src, fr.dest, name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
