// Package jobs 实现持久化的后台任务队列：入队、认领、执行、进度与协作式取消。
package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"homedrive-go/internal/apperr"
	"homedrive-go/internal/model"
	"homedrive-go/internal/repository"
)

// Queue 负责任务的入队、查询与停止请求。
type Queue struct {
	store  *repository.Store
	events EventSink
}

// NewQueue 创建一个新的 Queue。events 为 nil 时丢弃事件。
func NewQueue(store *repository.Store, events EventSink) *Queue {
	if events == nil {
		events = NopSink()
	}
	return &Queue{store: store, events: events}
}

// EnqueueTx 在调用方的事务中创建一个排队中的任务。事务提交后应调用 Notify。
func (q *Queue) EnqueueTx(tx *repository.Store, kind model.JobKind, volumeID *string, description string, payload interface{}) (*model.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	job := &model.Job{
		Kind:        kind,
		VolumeID:    volumeID,
		Description: description,
		Data:        datatypes.JSON(data),
		Status:      model.JobInQueue,
	}
	if err := tx.Jobs().Create(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Enqueue 在独立事务中创建任务并发布入队事件。
func (q *Queue) Enqueue(ctx context.Context, kind model.JobKind, volumeID *string, description string, payload interface{}) (*model.Job, error) {
	job, err := q.EnqueueTx(q.store.WithContext(ctx), kind, volumeID, description, payload)
	if err != nil {
		return nil, err
	}
	q.Notify(ctx, job)
	return job, nil
}

// Notify 发布任务的当前状态。
func (q *Queue) Notify(ctx context.Context, job *model.Job) {
	q.events.Publish(ctx, EventOf(job))
}

// Get 返回任务，不存在时返回 NotFound。
func (q *Queue) Get(ctx context.Context, id uint) (*model.Job, error) {
	job, err := q.store.WithContext(ctx).Jobs().Get(id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperr.New(apperr.NotFound, "Job not found.")
		}
		return nil, err
	}
	return job, nil
}

// List 返回最近的任务。
func (q *Queue) List(ctx context.Context, limit int) ([]model.Job, error) {
	return q.store.WithContext(ctx).Jobs().List(limit)
}

// Stop 请求停止任务。已结束的任务不能再停止。
func (q *Queue) Stop(ctx context.Context, id uint) (*model.Job, error) {
	job, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Finished() {
		return nil, apperr.InvalidOp("Job has already finished.")
	}
	if err := q.store.WithContext(ctx).Jobs().RequestStop(id); err != nil {
		return nil, err
	}
	job.ToStop = true
	return job, nil
}

// DecodePayload 把任务负载解析到 v。
func DecodePayload(job *model.Job, v interface{}) error {
	if err := json.Unmarshal(job.Data, v); err != nil {
		return fmt.Errorf("decode %s job payload: %w", job.Kind, err)
	}
	return nil
}
