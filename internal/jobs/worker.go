package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"homedrive-go/internal/config"
	"homedrive-go/internal/model"
	"homedrive-go/internal/repository"
	"homedrive-go/pkg/log"
)

// Runner 执行某一类任务。Run 应在工作单元之间调用 Progress.Report/Check，
// 收到 ErrStopped 时清理中间产物并原样返回。
type Runner interface {
	Run(ctx context.Context, job *model.Job, progress *Progress) error
}

// RunnerFunc 让普通函数实现 Runner。
type RunnerFunc func(ctx context.Context, job *model.Job, progress *Progress) error

func (f RunnerFunc) Run(ctx context.Context, job *model.Job, progress *Progress) error {
	return f(ctx, job, progress)
}

const claimLeaseKey = "jobs:claim"

// Pool 是后台任务的 worker 池：按 ID 从小到大认领排队中的任务并分派给对应的 Runner。
type Pool struct {
	store   *repository.Store
	runners map[model.JobKind]Runner
	workers int
	poll    time.Duration
	lease   Lease
	events  EventSink
}

// NewPool 创建一个 worker 池。lease 为 nil 时使用进程内租约。
func NewPool(store *repository.Store, cfg config.JobsConfig, lease Lease, events EventSink) *Pool {
	if lease == nil {
		lease = NewLease(nil)
	}
	if events == nil {
		events = NopSink()
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	poll := time.Duration(cfg.PollIntervalMS) * time.Millisecond
	if poll <= 0 {
		poll = time.Second
	}
	return &Pool{
		store:   store,
		runners: make(map[model.JobKind]Runner),
		workers: workers,
		poll:    poll,
		lease:   lease,
		events:  events,
	}
}

// Register 为任务类型注册 Runner。
func (p *Pool) Register(kind model.JobKind, r Runner) {
	p.runners[kind] = r
}

// Recover 把上次进程退出时仍处于 Running 的任务放回队列。
func (p *Pool) Recover(ctx context.Context) error {
	n, err := p.store.WithContext(ctx).Jobs().RequeueRunning()
	if err != nil {
		return err
	}
	if n > 0 {
		log.Infof("[Jobs] 已将 %d 个中断的任务重新放回队列", n)
	}
	return nil
}

// Start 启动 worker，阻塞直到 ctx 结束。
func (p *Pool) Start(ctx context.Context) error {
	if err := p.Recover(ctx); err != nil {
		return err
	}
	log.Infof("[Jobs] 启动 %d 个 worker，轮询间隔 %s", p.workers, p.poll)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		id := i
		g.Go(func() error {
			p.loop(gctx, id)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) loop(ctx context.Context, id int) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		ran, err := p.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			log.Errorf("[Jobs] worker %d 执行任务出错: %v", id, err)
		}
		if ran {
			timer.Reset(0)
		} else {
			timer.Reset(p.poll)
		}
	}
}

// RunOnce 认领并执行最早的一个排队任务。队列为空时返回 false。
func (p *Pool) RunOnce(ctx context.Context) (bool, error) {
	job, err := p.claim(ctx)
	if err != nil || job == nil {
		return false, err
	}
	return true, p.execute(ctx, job)
}

func (p *Pool) claim(ctx context.Context) (*model.Job, error) {
	release, ok, err := p.lease.Acquire(ctx, claimLeaseKey, 30*time.Second)
	if err != nil || !ok {
		return nil, err
	}
	defer release()

	repo := p.store.WithContext(ctx).Jobs()
	job, err := repo.OldestQueued()
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	claimed, err := repo.Claim(job.ID)
	if err != nil || !claimed {
		return nil, err
	}
	job.Status = model.JobRunning
	return job, nil
}

func (p *Pool) execute(ctx context.Context, job *model.Job) error {
	p.events.Publish(ctx, EventOf(job))
	log.Infow("[Jobs] 开始执行任务", "job", job.ID, "kind", job.Kind, "description", job.Description)

	progress := newProgress(ctx, p.store, job.ID, job.Progress)
	var runErr error
	if job.ToStop {
		runErr = ErrStopped
	} else if runner, ok := p.runners[job.Kind]; !ok {
		runErr = fmt.Errorf("no runner registered for job kind %q", job.Kind)
	} else {
		runErr = p.safeRun(ctx, runner, job, progress)
	}

	status, pct, msg := model.JobCompleted, 100, ""
	switch {
	case runErr == nil:
	case errors.Is(runErr, ErrStopped):
		pct = progress.Last()
		log.Infow("[Jobs] 任务已停止", "job", job.ID, "progress", pct)
	case ctx.Err() != nil:
		// 进程退出，放回队列等待下次启动
		if err := p.store.Jobs().Finish(job.ID, model.JobInQueue, 0, ""); err != nil {
			return err
		}
		log.Infow("[Jobs] 任务因退出被放回队列", "job", job.ID)
		return ctx.Err()
	default:
		status, pct, msg = model.JobFailed, progress.Last(), runErr.Error()
		log.Errorf("[Jobs] 任务 %d (%s) 失败: %v", job.ID, job.Kind, runErr)
	}

	// 即使请求已取消也要写入终态
	if err := p.store.Jobs().Finish(job.ID, status, pct, msg); err != nil {
		return err
	}
	job.Status, job.Progress, job.Error = status, pct, msg
	p.events.Publish(context.Background(), EventOf(job))
	if status == model.JobCompleted {
		log.Infow("[Jobs] 任务结束", "job", job.ID, "status", status.String(), "progress", pct)
	}
	return nil
}

func (p *Pool) safeRun(ctx context.Context, runner Runner, job *model.Job, progress *Progress) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return runner.Run(ctx, job, progress)
}
