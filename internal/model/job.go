package model

import (
	"time"

	"gorm.io/datatypes"
)

// JobKind 是后台任务的类型。
type JobKind string

const (
	JobIndex JobKind = "Index"
	JobZip   JobKind = "Zip"
)

// JobStatus 是任务的生命周期状态。
type JobStatus int

const (
	JobInQueue   JobStatus = 0
	JobRunning   JobStatus = 1
	JobCompleted JobStatus = 2
	JobFailed    JobStatus = 3
)

func (s JobStatus) String() string {
	switch s {
	case JobInQueue:
		return "InQueue"
	case JobRunning:
		return "Running"
	case JobCompleted:
		return "Completed"
	case JobFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Job 对应于 'jobs' 表。ID 自增，最小的 ID 即最早入队的任务。
type Job struct {
	ID          uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind        JobKind        `gorm:"type:varchar(16);not null" json:"kind"`
	VolumeID    *string        `gorm:"type:varchar(36);index" json:"volumeId"`
	Volume      *Volume        `gorm:"foreignKey:VolumeID;references:ID;constraint:OnDelete:SET NULL" json:"-"`
	Description string         `gorm:"type:varchar(512)" json:"description"`
	Data        datatypes.JSON `json:"data"`
	Status      JobStatus      `gorm:"not null;default:0;index" json:"status"`
	Progress    int            `gorm:"not null;default:0" json:"progress"`
	ToStop      bool           `gorm:"not null;default:false" json:"toStop"`
	Error       string         `gorm:"type:text" json:"error,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Job) TableName() string {
	return "jobs"
}

// JobProgress 是推送给前端轮询 / websocket 的任务进度视图。
type JobProgress struct {
	ID          uint    `json:"id"`
	Kind        JobKind `json:"kind"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	Progress    int     `json:"progress"`
	ToStop      bool    `json:"to_stop"`
}

// ProgressView 将任务转换为进度视图。
func (j *Job) ProgressView() JobProgress {
	return JobProgress{
		ID:          j.ID,
		Kind:        j.Kind,
		Description: j.Description,
		Status:      j.Status.String(),
		Progress:    j.Progress,
		ToStop:      j.ToStop,
	}
}

// Finished 判断任务是否已经结束。
func (j *Job) Finished() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
