package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PublicFileLink 对应于 'public_file_links' 表，是一个有时效的免登录下载链接。
type PublicFileLink struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	FileID     string    `gorm:"type:varchar(36);not null;index" json:"fileId"`
	File       *File     `gorm:"foreignKey:FileID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	CreatorID  *uint     `json:"creatorId"`
	Creator    *User     `gorm:"foreignKey:CreatorID;references:ID;constraint:OnDelete:SET NULL" json:"-"`
	ExpireTime time.Time `gorm:"not null" json:"expireTime"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (PublicFileLink) TableName() string {
	return "public_file_links"
}

// BeforeCreate 在插入前分配 UUID 主键。
func (l *PublicFileLink) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// Expired 判断链接在 now 时刻是否已过期。
func (l *PublicFileLink) Expired(now time.Time) bool {
	return !now.Before(l.ExpireTime)
}
