package jobs

import (
	"context"
	"time"

	"homedrive-go/internal/config"
	"homedrive-go/internal/model"
	"homedrive-go/pkg/kafka"
	"homedrive-go/pkg/log"
	"homedrive-go/pkg/tasks"
)

// EventSink 接收任务状态变化事件。发布失败只记录日志，不影响任务本身。
type EventSink interface {
	Publish(ctx context.Context, event tasks.JobEvent)
	Close() error
}

type nopSink struct{}

func (nopSink) Publish(context.Context, tasks.JobEvent) {}
func (nopSink) Close() error                            { return nil }

// NopSink 丢弃所有事件。
func NopSink() EventSink { return nopSink{} }

type kafkaSink struct {
	producer *kafka.Producer
}

func (s *kafkaSink) Publish(ctx context.Context, event tasks.JobEvent) {
	if err := s.producer.Publish(ctx, event); err != nil {
		log.Warnw("[Jobs] 发布任务事件失败", "job", event.JobID, "status", event.Status, "error", err)
	}
}

func (s *kafkaSink) Close() error { return s.producer.Close() }

// NewEventSink 配置了 Kafka brokers 时把事件发布到 Kafka，否则丢弃。
func NewEventSink(cfg config.KafkaConfig) EventSink {
	if cfg.Brokers == "" {
		return NopSink()
	}
	return &kafkaSink{producer: kafka.NewProducer(cfg)}
}

// EventOf 把任务的当前状态转换为事件。
func EventOf(job *model.Job) tasks.JobEvent {
	ev := tasks.JobEvent{
		JobID:     job.ID,
		Kind:      string(job.Kind),
		Status:    job.Status.String(),
		Progress:  job.Progress,
		Error:     job.Error,
		Timestamp: time.Now().UTC(),
	}
	if job.VolumeID != nil {
		ev.VolumeID = *job.VolumeID
	}
	return ev
}
