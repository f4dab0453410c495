package repository

import (
	"gorm.io/gorm"

	"homedrive-go/internal/model"
)

// VolumeRepository 定义了卷的持久化操作。
type VolumeRepository interface {
	Get(id string) (*model.Volume, error)
	GetForUpdate(id string) (*model.Volume, error)
	FindAll() ([]model.Volume, error)
	FindByIDs(ids []string) ([]model.Volume, error)
	FindByKind(kind model.VolumeKind) ([]model.Volume, error)
	Create(v *model.Volume) error
	Update(v *model.Volume, fields ...string) error
	Delete(id string) error
}

type volumeRepository struct {
	db *gorm.DB
}

// NewVolumeRepository 创建一个新的 VolumeRepository 实例。
func NewVolumeRepository(db *gorm.DB) VolumeRepository {
	return &volumeRepository{db: db}
}

func (r *volumeRepository) Get(id string) (*model.Volume, error) {
	var v model.Volume
	if err := r.db.Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// GetForUpdate 读取卷并对该行加写锁。
func (r *volumeRepository) GetForUpdate(id string) (*model.Volume, error) {
	var v model.Volume
	if err := forUpdate(r.db).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *volumeRepository) FindAll() ([]model.Volume, error) {
	var vols []model.Volume
	err := r.db.Order("name asc").Find(&vols).Error
	return vols, err
}

func (r *volumeRepository) FindByIDs(ids []string) ([]model.Volume, error) {
	var vols []model.Volume
	if len(ids) == 0 {
		return vols, nil
	}
	err := r.db.Where("id IN ?", ids).Order("name asc").Find(&vols).Error
	return vols, err
}

func (r *volumeRepository) FindByKind(kind model.VolumeKind) ([]model.Volume, error) {
	var vols []model.Volume
	err := r.db.Where("kind = ?", kind).Order("name asc").Find(&vols).Error
	return vols, err
}

func (r *volumeRepository) Create(v *model.Volume) error {
	return translateWrite(r.db.Create(v).Error)
}

// Update 只更新 fields 中列出的列；fields 为空时更新全部列。
func (r *volumeRepository) Update(v *model.Volume, fields ...string) error {
	q := r.db.Model(v)
	if len(fields) > 0 {
		q = q.Select(fields)
	} else {
		q = q.Select("*")
	}
	return translateWrite(q.Updates(v).Error)
}

// Delete 删除卷，其下的文件记录和授权级联删除。
func (r *volumeRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&model.Volume{}).Error
}
