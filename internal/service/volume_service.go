package service

import (
	"context"
	"os"

	"homedrive-go/internal/apperr"
	"homedrive-go/internal/indexer"
	"homedrive-go/internal/jobs"
	"homedrive-go/internal/model"
	"homedrive-go/internal/repository"
	"homedrive-go/pkg/fsutil"
	"homedrive-go/pkg/log"
	"homedrive-go/pkg/tasks"
)

// VolumeView 是卷连同当前用户有效权限的视图。
type VolumeView struct {
	model.Volume
	Permission model.Permission `json:"permission"`
	RootID     string           `json:"rootId"`
}

// VolumeService 接口定义了卷的管理操作。
type VolumeService interface {
	List(ctx context.Context, user *model.User) ([]VolumeView, error)
	Create(ctx context.Context, user *model.User, name, path string) (*model.Volume, *model.Job, error)
	Rename(ctx context.Context, user *model.User, volumeID, name string) (*model.Volume, error)
	Delete(ctx context.Context, user *model.User, volumeID string) error
	Grant(ctx context.Context, user *model.User, volumeID string, userID uint, perm model.Permission) error
	RequestIndex(ctx context.Context, user *model.User, volumeID string) (*model.Job, error)
}

type volumeService struct {
	store *repository.Store
	gate  *Gate
	queue *jobs.Queue
}

// NewVolumeService 创建一个新的 VolumeService 实例。
func NewVolumeService(store *repository.Store, gate *Gate, queue *jobs.Queue) VolumeService {
	return &volumeService{store: store, gate: gate, queue: queue}
}

// List 返回用户可见的卷，超级用户看到全部。
func (s *volumeService) List(ctx context.Context, user *model.User) ([]VolumeView, error) {
	store := s.store.WithContext(ctx)
	ids, err := s.gate.ReadableVolumeIDs(store, user)
	if err != nil {
		return nil, err
	}
	vols, err := store.Volumes().FindByIDs(ids)
	if err != nil {
		return nil, err
	}
	views := make([]VolumeView, 0, len(vols))
	for _, v := range vols {
		level, err := s.gate.Level(store, user, v.ID)
		if err != nil {
			return nil, err
		}
		view := VolumeView{Volume: v, Permission: level}
		if root, err := store.Files().Root(v.ID); err == nil {
			view.RootID = root.ID
		}
		views = append(views, view)
	}
	return views, nil
}

// Create 挂载一个主机目录为新卷（仅超级用户），并安排首次索引。
// 卷路径被规范化，且不能与已有卷互相包含。
func (s *volumeService) Create(ctx context.Context, user *model.User, name, path string) (*model.Volume, *model.Job, error) {
	if !user.IsSuperuser() {
		return nil, nil, apperr.ErrNoPermission
	}
	name = fsutil.CleanName(name)
	if name == "" {
		return nil, nil, apperr.New(apperr.InvalidVolumeName, "Volume name cannot be empty.")
	}
	canonical, err := fsutil.CanonicalDir(path)
	if err != nil {
		return nil, nil, err
	}

	vol := &model.Volume{Name: name, Kind: model.HostPath, Path: canonical}
	var job *model.Job
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		existing, err := tx.Volumes().FindAll()
		if err != nil {
			return err
		}
		for _, v := range existing {
			if v.Name == name {
				return apperr.New(apperr.InvalidVolumeName, "A volume with this name already exists.")
			}
			if fsutil.IsWithin(v.Path, canonical) || fsutil.IsWithin(canonical, v.Path) {
				return apperr.Newf(apperr.InvalidVolumePath, "Volume path overlaps with volume %q.", v.Name)
			}
		}
		if err := tx.Volumes().Create(vol); err != nil {
			return err
		}
		info, err := os.Stat(canonical)
		if err != nil {
			return apperr.FS(err)
		}
		root := indexer.NewEntry(ctx, nil, nil, vol.ID, "", canonical, info)
		if err := tx.Files().Create(root); err != nil {
			return err
		}
		volID := vol.ID
		job, err = s.queue.EnqueueTx(tx, model.JobIndex, &volID, "Index "+vol.Name, tasks.IndexTask{VolumeID: vol.ID})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	s.queue.Notify(ctx, job)
	log.Infow("[VolumeService] 新卷已挂载", "volume", vol.Name, "path", vol.Path)
	return vol, job, nil
}

// Rename 修改卷名，需要 Admin 权限。
func (s *volumeService) Rename(ctx context.Context, user *model.User, volumeID, name string) (*model.Volume, error) {
	name = fsutil.CleanName(name)
	if name == "" {
		return nil, apperr.New(apperr.InvalidVolumeName, "Volume name cannot be empty.")
	}
	var vol *model.Volume
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		vol, err = s.gate.RequestVolume(tx, user, volumeID, model.PermAdmin, true)
		if err != nil {
			return err
		}
		vol.Name = name
		err = tx.Volumes().Update(vol, "name")
		if apperr.KindOf(err) == apperr.Integrity {
			return apperr.New(apperr.InvalidVolumeName, "A volume with this name already exists.")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return vol, nil
}

// Delete 卸载卷（仅超级用户）。只删除目录记录，主机上的文件保持不变。
func (s *volumeService) Delete(ctx context.Context, user *model.User, volumeID string) error {
	if !user.IsSuperuser() {
		return apperr.ErrNoPermission
	}
	return s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, err := s.gate.RequestVolume(tx, user, volumeID, model.PermAdmin, true); err != nil {
			return err
		}
		return tx.Volumes().Delete(volumeID)
	})
}

// Grant 设置用户在卷上的权限，需要 Admin。授予 None 即撤销授权。
func (s *volumeService) Grant(ctx context.Context, user *model.User, volumeID string, userID uint, perm model.Permission) error {
	if !perm.Valid() {
		return apperr.InvalidOp("Invalid permission.")
	}
	return s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, err := s.gate.RequestVolume(tx, user, volumeID, model.PermAdmin, true); err != nil {
			return err
		}
		if _, err := tx.Users().FindByID(userID); err != nil {
			if repository.IsNotFound(err) {
				return apperr.New(apperr.NotFound, "User not found.")
			}
			return err
		}
		if perm == model.PermNone {
			return tx.VolumeUsers().Delete(volumeID, userID)
		}
		return tx.VolumeUsers().Upsert(volumeID, userID, perm)
	})
}

// RequestIndex 为卷安排一次索引，需要 Admin；已有排队或执行中的索引任务时拒绝。
func (s *volumeService) RequestIndex(ctx context.Context, user *model.User, volumeID string) (*model.Job, error) {
	var job *model.Job
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		vol, err := s.gate.RequestVolume(tx, user, volumeID, model.PermAdmin, true)
		if err != nil {
			return err
		}
		if vol.Kind != model.HostPath {
			return apperr.ErrNotImplemented
		}
		active, err := tx.Jobs().HasActive(model.JobIndex, vol.ID)
		if err != nil {
			return err
		}
		if active {
			return apperr.InvalidOp("Volume is already being indexed.")
		}
		volID := vol.ID
		job, err = s.queue.EnqueueTx(tx, model.JobIndex, &volID, "Index "+vol.Name, tasks.IndexTask{VolumeID: vol.ID})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.queue.Notify(ctx, job)
	return job, nil
}
