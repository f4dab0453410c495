// Package tasks 定义了后台任务的负载结构，以及发往 Kafka 的任务事件。
package tasks

import "time"

// IndexTask 是 Index 任务的负载。
type IndexTask struct {
	VolumeID string `json:"volume_id"`
}

// ZipTask 是 Zip 任务的负载：把同一目录下的 Files 压缩为 Parent 下名为 Name 的 zip 文件。
type ZipTask struct {
	Files  []string `json:"files"`
	Parent string   `json:"parent"`
	Name   string   `json:"name"`
	// UserID 为发起压缩的用户，仅用于审计日志。
	UserID uint `json:"user_id,omitempty"`
}

// JobEvent 描述一次任务状态变化。
type JobEvent struct {
	JobID     uint      `json:"job_id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Error     string    `json:"error,omitempty"`
	VolumeID  string    `json:"volume_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
