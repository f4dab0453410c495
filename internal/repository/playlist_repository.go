package repository

import (
	"gorm.io/gorm"

	"homedrive-go/internal/model"
)

// PlaylistRepository 定义了播放列表的持久化操作。
type PlaylistRepository interface {
	Create(p *model.Playlist) error
	Get(id uint) (*model.Playlist, error)
	GetForUpdate(id uint) (*model.Playlist, error)
	ListByUser(userID uint) ([]model.Playlist, error)
	Delete(id uint) error
	Entries(playlistID uint) ([]model.PlaylistFile, error)
	Append(playlistID uint, fileID string) (*model.PlaylistFile, error)
	RemoveFile(playlistID uint, fileID string) (int64, error)
	Resequence(playlistID uint) error
}

type playlistRepository struct {
	db *gorm.DB
}

// NewPlaylistRepository 创建一个新的 PlaylistRepository 实例。
func NewPlaylistRepository(db *gorm.DB) PlaylistRepository {
	return &playlistRepository{db: db}
}

func (r *playlistRepository) Create(p *model.Playlist) error {
	return translateWrite(r.db.Create(p).Error)
}

func (r *playlistRepository) Get(id uint) (*model.Playlist, error) {
	var p model.Playlist
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *playlistRepository) GetForUpdate(id uint) (*model.Playlist, error) {
	var p model.Playlist
	if err := forUpdate(r.db).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *playlistRepository) ListByUser(userID uint) ([]model.Playlist, error) {
	var ps []model.Playlist
	err := r.db.Where("user_id = ?", userID).Order("id asc").Find(&ps).Error
	return ps, err
}

func (r *playlistRepository) Delete(id uint) error {
	return r.db.Delete(&model.Playlist{}, id).Error
}

// Entries 返回按 sequence 排序的条目，并预加载对应的文件记录。
func (r *playlistRepository) Entries(playlistID uint) ([]model.PlaylistFile, error) {
	var entries []model.PlaylistFile
	err := r.db.Preload("File").Where("playlist_id = ?", playlistID).Order("sequence asc").Find(&entries).Error
	return entries, err
}

// Append 把文件追加到列表末尾。
func (r *playlistRepository) Append(playlistID uint, fileID string) (*model.PlaylistFile, error) {
	var next int
	err := r.db.Model(&model.PlaylistFile{}).
		Where("playlist_id = ?", playlistID).
		Select("COALESCE(MAX(sequence) + 1, 0)").
		Scan(&next).Error
	if err != nil {
		return nil, err
	}
	entry := &model.PlaylistFile{PlaylistID: playlistID, FileID: fileID, Sequence: next}
	if err := r.db.Create(entry).Error; err != nil {
		return nil, translateWrite(err)
	}
	return entry, nil
}

// RemoveFile 删除列表中该文件的所有条目。
func (r *playlistRepository) RemoveFile(playlistID uint, fileID string) (int64, error) {
	res := r.db.Where("playlist_id = ? AND file_id = ?", playlistID, fileID).Delete(&model.PlaylistFile{})
	return res.RowsAffected, res.Error
}

// Resequence 把 sequence 重新压缩为 0..n-1，保持原有顺序。
func (r *playlistRepository) Resequence(playlistID uint) error {
	var entries []model.PlaylistFile
	if err := r.db.Where("playlist_id = ?", playlistID).Order("sequence asc").Find(&entries).Error; err != nil {
		return err
	}
	for i, e := range entries {
		if e.Sequence == i {
			continue
		}
		// sequence 只会变小，按升序逐条更新不会撞上唯一索引
		if err := r.db.Model(&model.PlaylistFile{}).Where("id = ?", e.ID).Update("sequence", i).Error; err != nil {
			return err
		}
	}
	return nil
}
