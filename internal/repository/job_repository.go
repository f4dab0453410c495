package repository

import (
	"gorm.io/gorm"

	"homedrive-go/internal/model"
)

// JobRepository 定义了后台任务的持久化操作。
type JobRepository interface {
	Create(job *model.Job) error
	Get(id uint) (*model.Job, error)
	List(limit int) ([]model.Job, error)
	OldestQueued() (*model.Job, error)
	Claim(id uint) (bool, error)
	UpdateProgress(id uint, progress int) error
	RequestStop(id uint) error
	Finish(id uint, status model.JobStatus, progress int, errMsg string) error
	RequeueRunning() (int64, error)
	HasActive(kind model.JobKind, volumeID string) (bool, error)
}

type jobRepository struct {
	db *gorm.DB
}

// NewJobRepository 创建一个新的 JobRepository 实例。
func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{db: db}
}

func (r *jobRepository) Create(job *model.Job) error {
	return r.db.Create(job).Error
}

func (r *jobRepository) Get(id uint) (*model.Job, error) {
	var job model.Job
	if err := r.db.First(&job, id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// List 返回最近的任务，最新的在前。
func (r *jobRepository) List(limit int) ([]model.Job, error) {
	var jobs []model.Job
	q := r.db.Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&jobs).Error
	return jobs, err
}

// OldestQueued 返回最早入队且仍在排队的任务，没有时返回 gorm.ErrRecordNotFound。
func (r *jobRepository) OldestQueued() (*model.Job, error) {
	var jobs []model.Job
	err := r.db.Where("status = ?", model.JobInQueue).Order("id asc").Limit(1).Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &jobs[0], nil
}

// Claim 以条件更新把任务从 InQueue 切换到 Running，只有一个调用者能成功。
func (r *jobRepository) Claim(id uint) (bool, error) {
	res := r.db.Model(&model.Job{}).
		Where("id = ? AND status = ?", id, model.JobInQueue).
		Update("status", model.JobRunning)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *jobRepository) UpdateProgress(id uint, progress int) error {
	return r.db.Model(&model.Job{}).Where("id = ?", id).Update("progress", progress).Error
}

// RequestStop 设置 to_stop 标志，由执行中的 worker 协作式地检查。
func (r *jobRepository) RequestStop(id uint) error {
	return r.db.Model(&model.Job{}).Where("id = ?", id).Update("to_stop", true).Error
}

// Finish 写入任务的终态。
func (r *jobRepository) Finish(id uint, status model.JobStatus, progress int, errMsg string) error {
	return r.db.Model(&model.Job{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":   status,
		"progress": progress,
		"error":    errMsg,
	}).Error
}

// RequeueRunning 把上次进程崩溃时遗留在 Running 的任务放回队列。
func (r *jobRepository) RequeueRunning() (int64, error) {
	res := r.db.Model(&model.Job{}).
		Where("status = ?", model.JobRunning).
		Updates(map[string]interface{}{"status": model.JobInQueue, "progress": 0})
	return res.RowsAffected, res.Error
}

// HasActive 判断卷上是否已有排队中或执行中的同类任务。
func (r *jobRepository) HasActive(kind model.JobKind, volumeID string) (bool, error) {
	var n int64
	err := r.db.Model(&model.Job{}).
		Where("kind = ? AND volume_id = ? AND status IN ?", kind, volumeID,
			[]model.JobStatus{model.JobInQueue, model.JobRunning}).
		Count(&n).Error
	return n > 0, err
}
