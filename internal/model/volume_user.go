package model

// VolumeUser 对应于 'volume_users' 表，记录用户在卷上的授权。
type VolumeUser struct {
	ID         uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	VolumeID   string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_volume_user,priority:1" json:"volumeId"`
	Volume     *Volume    `gorm:"foreignKey:VolumeID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	UserID     uint       `gorm:"not null;uniqueIndex:idx_volume_user,priority:2" json:"userId"`
	User       *User      `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	Permission Permission `gorm:"not null;default:0" json:"permission"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (VolumeUser) TableName() string {
	return "volume_users"
}
