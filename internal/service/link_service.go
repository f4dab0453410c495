package service

import (
	"context"
	"os"
	"time"

	"homedrive-go/internal/apperr"
	"homedrive-go/internal/model"
	"homedrive-go/internal/repository"
	"homedrive-go/pkg/log"
)

var errLinkNotFound = apperr.New(apperr.NotFound, "Link not found.")

// LinkService 管理免登录的快速访问链接。
type LinkService interface {
	Create(ctx context.Context, user *model.User, fileID string) (*model.PublicFileLink, error)
	Open(ctx context.Context, linkID string) (*model.File, *os.File, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

type linkService struct {
	store  *repository.Store
	gate   *Gate
	expiry time.Duration
	now    func() time.Time
}

// NewLinkService 创建一个新的 LinkService 实例，链接在创建 expiryMinutes 分钟后过期。
func NewLinkService(store *repository.Store, gate *Gate, expiryMinutes int) LinkService {
	return &linkService{
		store:  store,
		gate:   gate,
		expiry: time.Duration(expiryMinutes) * time.Minute,
		now:    time.Now,
	}
}

// Create 为文件生成链接，需要 Read 权限，目录不能分享。
func (s *linkService) Create(ctx context.Context, user *model.User, fileID string) (*model.PublicFileLink, error) {
	store := s.store.WithContext(ctx)
	f, _, err := s.gate.GetFile(store, user, fileID, false)
	if err != nil {
		return nil, err
	}
	if f.IsFolder() {
		return nil, apperr.InvalidOp("Cannot share a folder.")
	}
	link := &model.PublicFileLink{
		FileID:     f.ID,
		ExpireTime: s.now().UTC().Add(s.expiry),
	}
	if user != nil {
		id := user.ID
		link.CreatorID = &id
	}
	if err := store.Links().Create(link); err != nil {
		return nil, err
	}
	return link, nil
}

// Open 解析链接并打开对应的文件，过期的链接在这里被删除。调用方负责关闭文件。
func (s *linkService) Open(ctx context.Context, linkID string) (*model.File, *os.File, error) {
	store := s.store.WithContext(ctx)
	link, err := store.Links().Get(linkID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, errLinkNotFound
		}
		return nil, nil, err
	}
	if link.Expired(s.now()) {
		if err := store.Links().Delete(link.ID); err != nil {
			log.Warnw("[LinkService] 删除过期链接失败", "link", link.ID, "error", err)
		}
		return nil, nil, errLinkNotFound
	}
	f, err := store.Files().Get(link.FileID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil, errLinkNotFound
		}
		return nil, nil, err
	}
	vol, err := store.Volumes().Get(f.VolumeID)
	if err != nil {
		return nil, nil, err
	}
	h, err := openHost(vol, f)
	if err != nil {
		return nil, nil, err
	}
	return f, h, nil
}

// PurgeExpired 删除所有已过期的链接。
func (s *linkService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.WithContext(ctx).Links().DeleteExpired(s.now())
}
