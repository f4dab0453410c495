// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VolumeKind 是卷的存储类型。
type VolumeKind int

const (
	// HostPath 是挂载在本机上的目录。
	HostPath VolumeKind = 0
	// RemoteRpiDrive 是远程设备上的盘，目前仅占位，不支持索引和修改。
	RemoteRpiDrive VolumeKind = 1
)

func (k VolumeKind) String() string {
	if k == RemoteRpiDrive {
		return "RemoteRpiDrive"
	}
	return "HostPath"
}

// Volume 对应于数据库中的 'volumes' 表，即一个被挂载的主机目录。
type Volume struct {
	ID   string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name string     `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	Kind VolumeKind `gorm:"not null;default:0" json:"kind"`
	// Path 为规范化后的绝对路径，不带结尾分隔符。
	Path        string     `gorm:"type:varchar(512);not null;uniqueIndex" json:"path"`
	Indexing    bool       `gorm:"not null;default:false" json:"indexing"`
	LastIndexed *time.Time `json:"lastIndexed"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Volume) TableName() string {
	return "volumes"
}

// BeforeCreate 在插入前分配 UUID 主键。
func (v *Volume) BeforeCreate(tx *gorm.DB) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return nil
}
