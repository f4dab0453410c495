package jobs

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"homedrive-go/internal/model"
	"homedrive-go/internal/repository"
	"homedrive-go/pkg/log"
	"homedrive-go/pkg/tasks"
)

// Scheduler 按固定周期为每个主机目录卷安排索引任务。
type Scheduler struct {
	store  *repository.Store
	queue  *Queue
	period int
	cron   *cron.Cron
}

// NewScheduler 创建调度器。periodMinutes 为 0 时 Start 直接返回。
func NewScheduler(store *repository.Store, queue *Queue, periodMinutes int) *Scheduler {
	return &Scheduler{store: store, queue: queue, period: periodMinutes}
}

// Start 启动定时器并阻塞直到 ctx 结束。
func (s *Scheduler) Start(ctx context.Context) error {
	if s.period <= 0 {
		log.Info("[Scheduler] 定时索引未开启")
		return nil
	}
	s.cron = cron.New()
	spec := fmt.Sprintf("@every %dm", s.period)
	if _, err := s.cron.AddFunc(spec, func() {
		if _, err := s.EnqueueAll(ctx); err != nil {
			log.Errorf("[Scheduler] 安排索引任务失败: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.cron.Start()
	log.Infof("[Scheduler] 定时索引已启动: %s", spec)

	<-ctx.Done()
	<-s.cron.Stop().Done()
	log.Info("[Scheduler] 定时索引已停止")
	return nil
}

// EnqueueAll 为每个主机目录卷入队一个索引任务，已有排队或执行中的索引任务的卷会被跳过。
func (s *Scheduler) EnqueueAll(ctx context.Context) (int, error) {
	store := s.store.WithContext(ctx)
	vols, err := store.Volumes().FindByKind(model.HostPath)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range vols {
		ok, err := EnqueueIndex(ctx, store, s.queue, &vols[i])
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// EnqueueIndex 在卷没有活跃索引任务时入队一个，返回是否真的入队。
func EnqueueIndex(ctx context.Context, store *repository.Store, queue *Queue, vol *model.Volume) (bool, error) {
	active, err := store.Jobs().HasActive(model.JobIndex, vol.ID)
	if err != nil || active {
		return false, err
	}
	volID := vol.ID
	_, err = queue.Enqueue(ctx, model.JobIndex, &volID, "Index "+vol.Name, tasks.IndexTask{VolumeID: vol.ID})
	return err == nil, err
}
