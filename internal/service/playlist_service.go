package service

import (
	"context"

	"homedrive-go/internal/apperr"
	"homedrive-go/internal/model"
	"homedrive-go/internal/repository"
	"homedrive-go/pkg/fsutil"
)

var errPlaylistNotFound = apperr.New(apperr.NotFound, "Playlist not found.")

// PlaylistDetail 是播放列表及其按顺序排列的条目。
type PlaylistDetail struct {
	model.Playlist
	Entries []model.PlaylistFile `json:"entries"`
}

// PlaylistService 管理用户私有的播放列表。
type PlaylistService interface {
	List(ctx context.Context, user *model.User) ([]model.Playlist, error)
	Create(ctx context.Context, user *model.User, name string) (*model.Playlist, error)
	Get(ctx context.Context, user *model.User, id uint) (*PlaylistDetail, error)
	Delete(ctx context.Context, user *model.User, id uint) error
	AddFile(ctx context.Context, user *model.User, id uint, fileID string) (*model.PlaylistFile, error)
	RemoveFile(ctx context.Context, user *model.User, id uint, fileID string) error
}

type playlistService struct {
	store *repository.Store
	gate  *Gate
}

// NewPlaylistService 创建一个新的 PlaylistService 实例。
func NewPlaylistService(store *repository.Store, gate *Gate) PlaylistService {
	return &playlistService{store: store, gate: gate}
}

func (s *playlistService) List(ctx context.Context, user *model.User) ([]model.Playlist, error) {
	return s.store.WithContext(ctx).Playlists().ListByUser(user.ID)
}

func (s *playlistService) Create(ctx context.Context, user *model.User, name string) (*model.Playlist, error) {
	name = fsutil.CleanName(name)
	if name == "" {
		return nil, apperr.InvalidOp("Playlist name cannot be empty.")
	}
	p := &model.Playlist{UserID: user.ID, Name: name}
	if err := s.store.WithContext(ctx).Playlists().Create(p); err != nil {
		return nil, err
	}
	return p, nil
}

// owned 加载属于 user 的播放列表，别人的列表表现为不存在。
func owned(tx *repository.Store, user *model.User, id uint, forUpdate bool) (*model.Playlist, error) {
	var (
		p   *model.Playlist
		err error
	)
	if forUpdate {
		p, err = tx.Playlists().GetForUpdate(id)
	} else {
		p, err = tx.Playlists().Get(id)
	}
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, errPlaylistNotFound
		}
		return nil, err
	}
	if p.UserID != user.ID {
		return nil, errPlaylistNotFound
	}
	return p, nil
}

func (s *playlistService) Get(ctx context.Context, user *model.User, id uint) (*PlaylistDetail, error) {
	store := s.store.WithContext(ctx)
	p, err := owned(store, user, id, false)
	if err != nil {
		return nil, err
	}
	entries, err := store.Playlists().Entries(p.ID)
	if err != nil {
		return nil, err
	}
	// 失去读权限的文件不展示
	readable, err := s.gate.ReadableVolumeIDs(store, user)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]struct{}, len(readable))
	for _, vid := range readable {
		allowed[vid] = struct{}{}
	}
	visible := make([]model.PlaylistFile, 0, len(entries))
	for _, e := range entries {
		if e.File == nil {
			continue
		}
		if _, ok := allowed[e.File.VolumeID]; ok {
			visible = append(visible, e)
		}
	}
	return &PlaylistDetail{Playlist: *p, Entries: visible}, nil
}

func (s *playlistService) Delete(ctx context.Context, user *model.User, id uint) error {
	return s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, err := owned(tx, user, id, true); err != nil {
			return err
		}
		return tx.Playlists().Delete(id)
	})
}

// AddFile 把一个可读的文件追加到列表末尾。
func (s *playlistService) AddFile(ctx context.Context, user *model.User, id uint, fileID string) (*model.PlaylistFile, error) {
	var entry *model.PlaylistFile
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		p, err := owned(tx, user, id, true)
		if err != nil {
			return err
		}
		f, _, err := s.gate.GetFile(tx, user, fileID, false)
		if err != nil {
			return err
		}
		if f.IsFolder() {
			return apperr.InvalidOp("Cannot add a folder to a playlist.")
		}
		entry, err = tx.Playlists().Append(p.ID, f.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// RemoveFile 从列表中移除文件，剩余条目的 sequence 重新从 0 连续编号。
func (s *playlistService) RemoveFile(ctx context.Context, user *model.User, id uint, fileID string) error {
	return s.store.Transaction(ctx, func(tx *repository.Store) error {
		p, err := owned(tx, user, id, true)
		if err != nil {
			return err
		}
		n, err := tx.Playlists().RemoveFile(p.ID, fileID)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.ErrFileNotFound
		}
		return tx.Playlists().Resequence(p.ID)
	})
}
