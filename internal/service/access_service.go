package service

import (
	"homedrive-go/internal/apperr"
	"homedrive-go/internal/model"
	"homedrive-go/internal/repository"
)

// Gate 根据卷授权和超级用户身份判断用户能否访问卷和文件。
// 无权访问的卷对用户表现为不存在。
type Gate struct{}

// NewGate 创建一个新的 Gate。
func NewGate() *Gate { return &Gate{} }

// Level 返回用户在卷上的有效权限：超级用户总是 Admin，其他用户取授权记录，没有记录时为 None。
func (g *Gate) Level(tx *repository.Store, user *model.User, volumeID string) (model.Permission, error) {
	if user.IsSuperuser() {
		return model.PermAdmin, nil
	}
	if user == nil {
		return model.PermNone, nil
	}
	return tx.VolumeUsers().Permission(volumeID, user.ID)
}

// RequestVolume 加载卷并要求用户至少拥有 min 权限。forWrite 时对卷加行锁。
func (g *Gate) RequestVolume(tx *repository.Store, user *model.User, volumeID string, min model.Permission, forWrite bool) (*model.Volume, error) {
	var (
		vol *model.Volume
		err error
	)
	if forWrite {
		vol, err = tx.Volumes().GetForUpdate(volumeID)
	} else {
		vol, err = tx.Volumes().Get(volumeID)
	}
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperr.ErrVolumeNotFound
		}
		return nil, err
	}
	level, err := g.Level(tx, user, volumeID)
	if err != nil {
		return nil, err
	}
	if level == model.PermNone {
		return nil, apperr.ErrVolumeNotFound
	}
	if level < min {
		return nil, apperr.ErrNoPermission
	}
	return vol, nil
}

// GetFile 加载文件并检查所在卷的权限：读需要 Read，写需要 ReadWrite。
// 读操作的任何拒绝都表现为文件不存在；写操作只隐藏看不见的卷，权限不足仍返回 NoPermission。
func (g *Gate) GetFile(tx *repository.Store, user *model.User, fileID string, forWrite bool) (*model.File, *model.Volume, error) {
	var (
		f   *model.File
		err error
	)
	if forWrite {
		f, err = tx.Files().GetForUpdate(fileID)
	} else {
		f, err = tx.Files().Get(fileID)
	}
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, apperr.ErrFileNotFound
		}
		return nil, nil, err
	}

	min := model.PermRead
	if forWrite {
		min = model.PermReadWrite
	}
	vol, err := g.RequestVolume(tx, user, f.VolumeID, min, forWrite)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.VolumeNotFound:
			return nil, nil, apperr.ErrFileNotFound
		case apperr.NoPermission:
			if !forWrite {
				return nil, nil, apperr.ErrFileNotFound
			}
		}
		return nil, nil, err
	}
	return f, vol, nil
}

// ReadableVolumeIDs 返回用户至少拥有 Read 权限的卷。
func (g *Gate) ReadableVolumeIDs(tx *repository.Store, user *model.User) ([]string, error) {
	if user.IsSuperuser() {
		vols, err := tx.Volumes().FindAll()
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(vols))
		for _, v := range vols {
			ids = append(ids, v.ID)
		}
		return ids, nil
	}
	if user == nil {
		return nil, nil
	}
	return tx.VolumeUsers().VolumeIDsWithMin(user.ID, model.PermRead)
}
