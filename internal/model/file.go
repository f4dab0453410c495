package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FileKind 区分目录与普通文件。
type FileKind int

const (
	KindFolder FileKind = 0
	KindFile   FileKind = 1
)

func (k FileKind) String() string {
	if k == KindFolder {
		return "Folder"
	}
	return "File"
}

// RootPath 是每个卷根目录的 path_from_vol。
const RootPath = "/"

// File 对应于数据库中的 'files' 表，是一个主机文件系统对象在目录中的记录。
// 父子关系只通过 ParentID 表达，不在结构体中嵌入子节点列表。
type File struct {
	ID   string   `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name string   `gorm:"type:varchar(255);not null;default:''" json:"name"`
	Kind FileKind `gorm:"not null" json:"kind"`
	// ParentID 为空当且仅当该记录是卷的根目录。
	ParentID *string `gorm:"type:varchar(36);index" json:"parentId"`
	Parent   *File   `gorm:"foreignKey:ParentID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	VolumeID string  `gorm:"type:varchar(36);not null;uniqueIndex:idx_volume_path,priority:1" json:"volumeId"`
	Volume   *Volume `gorm:"foreignKey:VolumeID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	// PathFromVol 总是以 "/" 开头，根目录为 "/"。
	PathFromVol  string            `gorm:"type:varchar(700);not null;uniqueIndex:idx_volume_path,priority:2" json:"pathFromVol"`
	MediaType    *string           `gorm:"type:varchar(255)" json:"mediaType"`
	LastModified time.Time         `gorm:"not null" json:"lastModified"`
	Size         int64             `gorm:"not null;default:0" json:"size"`
	Metadata     datatypes.JSONMap `json:"metadata"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (File) TableName() string {
	return "files"
}

// BeforeCreate 在插入前分配 UUID 主键。
func (f *File) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// IsRoot 判断是否为卷的根目录。
func (f *File) IsRoot() bool { return f.ParentID == nil }

// IsFolder 判断是否为目录。
func (f *File) IsFolder() bool { return f.Kind == KindFolder }

// MediaTypeOrEmpty 返回 MIME 类型，未知时为空串。
func (f *File) MediaTypeOrEmpty() string {
	if f.MediaType == nil {
		return ""
	}
	return *f.MediaType
}
