package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"homedrive-go/internal/model"
)

// VolumeUserRepository 定义了卷授权的持久化操作。
type VolumeUserRepository interface {
	Get(volumeID string, userID uint) (*model.VolumeUser, error)
	Permission(volumeID string, userID uint) (model.Permission, error)
	ListByVolume(volumeID string) ([]model.VolumeUser, error)
	VolumeIDsWithMin(userID uint, min model.Permission) ([]string, error)
	Upsert(volumeID string, userID uint, perm model.Permission) error
	Delete(volumeID string, userID uint) error
}

type volumeUserRepository struct {
	db *gorm.DB
}

// NewVolumeUserRepository 创建一个新的 VolumeUserRepository 实例。
func NewVolumeUserRepository(db *gorm.DB) VolumeUserRepository {
	return &volumeUserRepository{db: db}
}

func (r *volumeUserRepository) Get(volumeID string, userID uint) (*model.VolumeUser, error) {
	var vu model.VolumeUser
	err := r.db.Where("volume_id = ? AND user_id = ?", volumeID, userID).First(&vu).Error
	if err != nil {
		return nil, err
	}
	return &vu, nil
}

// Permission 返回用户在卷上的授权等级，没有授权记录时为 PermNone。
func (r *volumeUserRepository) Permission(volumeID string, userID uint) (model.Permission, error) {
	var grants []model.VolumeUser
	err := r.db.Where("volume_id = ? AND user_id = ?", volumeID, userID).Limit(1).Find(&grants).Error
	if err != nil {
		return model.PermNone, err
	}
	if len(grants) == 0 {
		return model.PermNone, nil
	}
	return grants[0].Permission, nil
}

func (r *volumeUserRepository) ListByVolume(volumeID string) ([]model.VolumeUser, error) {
	var grants []model.VolumeUser
	err := r.db.Where("volume_id = ?", volumeID).Order("user_id asc").Find(&grants).Error
	return grants, err
}

// VolumeIDsWithMin 返回用户授权等级不低于 min 的卷 ID。
func (r *volumeUserRepository) VolumeIDsWithMin(userID uint, min model.Permission) ([]string, error) {
	var ids []string
	err := r.db.Model(&model.VolumeUser{}).
		Where("user_id = ? AND permission >= ?", userID, min).
		Pluck("volume_id", &ids).Error
	return ids, err
}

// Upsert 创建或更新一条授权。
func (r *volumeUserRepository) Upsert(volumeID string, userID uint, perm model.Permission) error {
	vu := model.VolumeUser{VolumeID: volumeID, UserID: userID, Permission: perm}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "volume_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"permission"}),
	}).Create(&vu).Error
	return translateWrite(err)
}

func (r *volumeUserRepository) Delete(volumeID string, userID uint) error {
	return r.db.Where("volume_id = ? AND user_id = ?", volumeID, userID).Delete(&model.VolumeUser{}).Error
}
