package service

import (
	"context"

	"homedrive-go/internal/apperr"
	"homedrive-go/internal/jobs"
	"homedrive-go/internal/model"
	"homedrive-go/internal/repository"
)

// JobService 让用户查看和停止自己能看到的卷上的任务。
type JobService interface {
	List(ctx context.Context, user *model.User, limit int) ([]model.Job, error)
	Get(ctx context.Context, user *model.User, id uint) (*model.Job, error)
	Stop(ctx context.Context, user *model.User, id uint) (*model.Job, error)
}

type jobService struct {
	store *repository.Store
	gate  *Gate
	queue *jobs.Queue
}

// NewJobService 创建一个新的 JobService 实例。
func NewJobService(store *repository.Store, gate *Gate, queue *jobs.Queue) JobService {
	return &jobService{store: store, gate: gate, queue: queue}
}

// List 返回最近的任务。普通用户只能看到可读卷上的任务。
func (s *jobService) List(ctx context.Context, user *model.User, limit int) ([]model.Job, error) {
	all, err := s.queue.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	if user.IsSuperuser() {
		return all, nil
	}
	readable, err := s.gate.ReadableVolumeIDs(s.store.WithContext(ctx), user)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]struct{}, len(readable))
	for _, id := range readable {
		allowed[id] = struct{}{}
	}
	out := make([]model.Job, 0, len(all))
	for _, j := range all {
		if j.VolumeID == nil {
			continue
		}
		if _, ok := allowed[*j.VolumeID]; ok {
			out = append(out, j)
		}
	}
	return out, nil
}

// Get 返回单个任务，看不到的任务表现为不存在。
func (s *jobService) Get(ctx context.Context, user *model.User, id uint) (*model.Job, error) {
	job, err := s.queue.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(ctx, user, job, model.PermRead); err != nil {
		return nil, err
	}
	return job, nil
}

// Stop 请求停止任务，需要卷上的 ReadWrite 权限。
func (s *jobService) Stop(ctx context.Context, user *model.User, id uint) (*model.Job, error) {
	job, err := s.queue.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.check(ctx, user, job, model.PermReadWrite); err != nil {
		return nil, err
	}
	return s.queue.Stop(ctx, id)
}

func (s *jobService) check(ctx context.Context, user *model.User, job *model.Job, min model.Permission) error {
	if user.IsSuperuser() {
		return nil
	}
	if job.VolumeID == nil {
		return apperr.New(apperr.NotFound, "Job not found.")
	}
	_, err := s.gate.RequestVolume(s.store.WithContext(ctx), user, *job.VolumeID, min, false)
	if apperr.KindOf(err) == apperr.VolumeNotFound {
		return apperr.New(apperr.NotFound, "Job not found.")
	}
	return err
}
