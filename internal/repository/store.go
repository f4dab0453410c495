// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"homedrive-go/internal/apperr"
)

// DefaultBatchSize 是批量更新/删除时每批的默认行数。
const DefaultBatchSize = 500

// Store 是目录存储的入口：它包装一个 *gorm.DB（可能是事务），并派生出各实体的仓储。
type Store struct {
	db        *gorm.DB
	batchSize int
}

// NewStore 创建一个新的 Store。batchSize <= 0 时使用 DefaultBatchSize。
func NewStore(db *gorm.DB, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Store{db: db, batchSize: batchSize}
}

// DB 返回底层的 gorm 句柄。
func (s *Store) DB() *gorm.DB { return s.db }

// BatchSize 返回批量操作的批大小。
func (s *Store) BatchSize() int { return s.batchSize }

// WithContext 返回绑定了 ctx 的 Store。
func (s *Store) WithContext(ctx context.Context) *Store {
	return &Store{db: s.db.WithContext(ctx), batchSize: s.batchSize}
}

// Transaction 在一个数据库事务中执行 fn。fn 返回错误或 panic 时回滚，否则提交。
// fn 内的所有查询都必须通过 tx 进行。
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, batchSize: s.batchSize})
	})
}

func (s *Store) Volumes() VolumeRepository         { return NewVolumeRepository(s.db) }
func (s *Store) Files() FileRepository             { return NewFileRepository(s.db, s.batchSize) }
func (s *Store) VolumeUsers() VolumeUserRepository { return NewVolumeUserRepository(s.db) }
func (s *Store) Jobs() JobRepository               { return NewJobRepository(s.db) }
func (s *Store) Links() LinkRepository             { return NewLinkRepository(s.db) }
func (s *Store) Playlists() PlaylistRepository     { return NewPlaylistRepository(s.db) }
func (s *Store) Users() UserRepository             { return NewUserRepository(s.db) }

// forUpdate 为查询加上行级写锁（SQLite 方言会忽略该子句）。
func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// IsNotFound 判断错误是否为记录不存在。
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// translateWrite 把唯一约束冲突转换为 Integrity 错误。
func translateWrite(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return &apperr.Error{Kind: apperr.Integrity, Message: "Integrity error: duplicate entry.", Err: err}
	}
	return err
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}

// likeEscaper 转义 LIKE 模式中的通配符，配合 ESCAPE '!' 使用。
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// EscapeLike 转义 s，使其在 LIKE ... ESCAPE '!' 中按字面匹配。
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}
