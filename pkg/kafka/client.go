// Package kafka 提供了与 Kafka 消息队列交互的功能，用于发布和订阅任务事件。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"homedrive-go/internal/config"
	"homedrive-go/pkg/log"
	"homedrive-go/pkg/tasks"
)

// EventHandler 处理一条从 Kafka 读取到的任务事件。
type EventHandler interface {
	HandleEvent(ctx context.Context, event tasks.JobEvent) error
}

// EventHandlerFunc 让普通函数实现 EventHandler。
type EventHandlerFunc func(ctx context.Context, event tasks.JobEvent) error

func (f EventHandlerFunc) HandleEvent(ctx context.Context, event tasks.JobEvent) error {
	return f(ctx, event)
}

// Producer 将任务事件写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

func brokerList(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokerList(cfg.Brokers)...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Errorf("[Kafka] 发送任务事件失败 (%d 条): %v", len(messages), err)
			}
		},
	}
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: w}
}

// Publish 发送一个任务事件，以任务 ID 作为消息 key 保证同一任务的事件有序。
func (p *Producer) Publish(ctx context.Context, event tasks.JobEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprintf("%d", event.JobID)),
		Value: body,
	})
}

// Close 刷新并关闭生产者。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consume 订阅任务事件主题，直到 ctx 结束。格式错误的消息会被直接提交以免阻塞。
func Consume(ctx context.Context, cfg config.KafkaConfig, groupID string, handler EventHandler) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokerList(cfg.Brokers),
		Topic:    cfg.Topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("[Kafka] 关闭消费者失败: %v", err)
		}
	}()

	log.Infof("[Kafka] 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("从 Kafka 读取消息失败: %w", err)
		}

		var event tasks.JobEvent
		if err := json.Unmarshal(m.Value, &event); err != nil {
			log.Errorf("[Kafka] 无法解析消息: %v, value: %s", err, string(m.Value))
		} else if err := handler.HandleEvent(ctx, event); err != nil {
			log.Errorf("[Kafka] 处理任务事件失败: job=%d, err=%v", event.JobID, err)
			// 不提交 offset，交给下次重试
			continue
		}
		if err := r.CommitMessages(ctx, m); err != nil {
			log.Errorf("[Kafka] 提交 offset 失败: %v", err)
		}
	}
}
