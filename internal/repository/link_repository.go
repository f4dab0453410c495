package repository

import (
	"time"

	"gorm.io/gorm"

	"homedrive-go/internal/model"
)

// LinkRepository 定义了快速访问链接的持久化操作。
type LinkRepository interface {
	Create(link *model.PublicFileLink) error
	Get(id string) (*model.PublicFileLink, error)
	Delete(id string) error
	DeleteExpired(now time.Time) (int64, error)
}

type linkRepository struct {
	db *gorm.DB
}

// NewLinkRepository 创建一个新的 LinkRepository 实例。
func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) Create(link *model.PublicFileLink) error {
	return translateWrite(r.db.Create(link).Error)
}

func (r *linkRepository) Get(id string) (*model.PublicFileLink, error) {
	var link model.PublicFileLink
	if err := r.db.Where("id = ?", id).First(&link).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *linkRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&model.PublicFileLink{}).Error
}

// DeleteExpired 删除所有在 now 之前过期的链接。
func (r *linkRepository) DeleteExpired(now time.Time) (int64, error) {
	res := r.db.Where("expire_time <= ?", now).Delete(&model.PublicFileLink{})
	return res.RowsAffected, res.Error
}
