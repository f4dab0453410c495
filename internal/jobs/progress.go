package jobs

import (
	"context"
	"errors"

	"homedrive-go/internal/repository"
)

// ErrStopped 表示任务因 to_stop 被协作式地中止。
var ErrStopped = errors.New("job stopped")

// Progress 由 runner 在每个工作单元前后调用，负责持久化进度并检查停止请求。
type Progress struct {
	ctx   context.Context
	store *repository.Store
	jobID uint
	last  int
}

func newProgress(ctx context.Context, store *repository.Store, jobID uint, start int) *Progress {
	return &Progress{ctx: ctx, store: store, jobID: jobID, last: start}
}

// Report 记录进度（限制在 0..100，只在数值变化时写库），并在任务被要求停止时返回 ErrStopped。
func (p *Progress) Report(pct int) error {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if pct != p.last {
		if err := p.store.WithContext(p.ctx).Jobs().UpdateProgress(p.jobID, pct); err != nil {
			return err
		}
		p.last = pct
	}
	return p.Check()
}

// Check 只检查停止请求和 context 是否结束。
func (p *Progress) Check() error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	job, err := p.store.WithContext(p.ctx).Jobs().Get(p.jobID)
	if err != nil {
		return err
	}
	if job.ToStop {
		return ErrStopped
	}
	return nil
}

// Last 返回最近一次写入的进度。
func (p *Progress) Last() int { return p.last }
