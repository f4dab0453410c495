package jobs

import (
	"context"

	"homedrive-go/internal/indexer"
	"homedrive-go/internal/model"
	"homedrive-go/pkg/tasks"
)

// IndexRunner 执行 Index 任务。
type IndexRunner struct {
	Indexer *indexer.Indexer
}

func (r IndexRunner) Run(ctx context.Context, job *model.Job, progress *Progress) error {
	var task tasks.IndexTask
	if err := DecodePayload(job, &task); err != nil {
		return err
	}
	if task.VolumeID == "" && job.VolumeID != nil {
		task.VolumeID = *job.VolumeID
	}

	// 目录总数未知，用 已处理/(已处理+待处理) 估算，并保持单调、不到 100
	best := progress.Last()
	_, err := r.Indexer.IndexVolume(ctx, task.VolumeID, func(done, pending int) error {
		if total := done + pending; total > 0 {
			if pct := done * 100 / total; pct > best && pct < 100 {
				best = pct
			}
		}
		return progress.Report(best)
	})
	return err
}
