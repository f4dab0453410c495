package model

import "time"

// Playlist 对应于 'playlists' 表，是用户私有的有序文件列表。
type Playlist struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"userId"`
	User      *User     `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Playlist) TableName() string {
	return "playlists"
}

// PlaylistFile 对应于 'playlist_files' 表。同一播放列表内 Sequence 唯一，展示时从 0 开始连续。
type PlaylistFile struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PlaylistID uint      `gorm:"not null;uniqueIndex:idx_playlist_seq,priority:1" json:"playlistId"`
	Playlist   *Playlist `gorm:"foreignKey:PlaylistID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	FileID     string    `gorm:"type:varchar(36);not null;index" json:"fileId"`
	File       *File     `gorm:"foreignKey:FileID;references:ID;constraint:OnDelete:CASCADE" json:"file,omitempty"`
	Sequence   int       `gorm:"not null;uniqueIndex:idx_playlist_seq,priority:2" json:"sequence"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (PlaylistFile) TableName() string {
	return "playlist_files"
}
