package repository

import (
	"strings"

	"gorm.io/gorm"

	"homedrive-go/internal/model"
)

// FileRepository 定义了文件目录记录的持久化操作。
type FileRepository interface {
	Get(id string) (*model.File, error)
	GetForUpdate(id string) (*model.File, error)
	FindByIDs(ids []string) ([]model.File, error)
	FindByIDsForUpdate(ids []string) ([]model.File, error)
	GetByPath(volumeID, pathFromVol string) (*model.File, error)
	Root(volumeID string) (*model.File, error)
	Children(parentID string) ([]model.File, error)
	ChildByName(parentID, name string) (*model.File, error)
	ChildNames(parentID string) (map[string]struct{}, error)
	Descendants(volumeID, pathFromVol string) ([]model.File, error)
	SearchByName(tokens []string, volumeIDs []string, limit int) ([]model.File, error)
	CountByVolume(volumeID string) (int64, error)
	Create(f *model.File) error
	Update(f *model.File, fields ...string) error
	BulkUpdate(files []*model.File, fields ...string) error
	Delete(id string) error
	DeleteByIDs(ids []string) error
}

type fileRepository struct {
	db        *gorm.DB
	batchSize int
}

// NewFileRepository 创建一个新的 FileRepository 实例。
func NewFileRepository(db *gorm.DB, batchSize int) FileRepository {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &fileRepository{db: db, batchSize: batchSize}
}

func (r *fileRepository) Get(id string) (*model.File, error) {
	var f model.File
	if err := r.db.Where("id = ?", id).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// GetForUpdate 读取文件记录并对该行加写锁。
func (r *fileRepository) GetForUpdate(id string) (*model.File, error) {
	var f model.File
	if err := forUpdate(r.db).Where("id = ?", id).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *fileRepository) FindByIDs(ids []string) ([]model.File, error) {
	var files []model.File
	if len(ids) == 0 {
		return files, nil
	}
	err := r.db.Where("id IN ?", ids).Find(&files).Error
	return files, err
}

func (r *fileRepository) FindByIDsForUpdate(ids []string) ([]model.File, error) {
	var files []model.File
	if len(ids) == 0 {
		return files, nil
	}
	err := forUpdate(r.db).Where("id IN ?", ids).Find(&files).Error
	return files, err
}

func (r *fileRepository) GetByPath(volumeID, pathFromVol string) (*model.File, error) {
	var f model.File
	err := r.db.Where("volume_id = ? AND path_from_vol = ?", volumeID, pathFromVol).First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Root 返回卷的根目录记录。
func (r *fileRepository) Root(volumeID string) (*model.File, error) {
	var f model.File
	err := r.db.Where("volume_id = ? AND parent_id IS NULL", volumeID).First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Children 返回目录的直接子项，目录在前，然后按名称排序。
func (r *fileRepository) Children(parentID string) ([]model.File, error) {
	var files []model.File
	err := r.db.Where("parent_id = ?", parentID).Order("kind asc").Order("name asc").Find(&files).Error
	return files, err
}

func (r *fileRepository) ChildByName(parentID, name string) (*model.File, error) {
	var f model.File
	// 用 Find + Limit 而不是 First：按名字找不到是常态，不需要记录 ErrRecordNotFound 日志
	res := r.db.Where("parent_id = ? AND name = ?", parentID, name).Limit(1).Find(&f)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &f, nil
}

// ChildNames 返回目录下已被占用的名字集合，供新名字生成算法使用。
func (r *fileRepository) ChildNames(parentID string) (map[string]struct{}, error) {
	var names []string
	if err := r.db.Model(&model.File{}).Where("parent_id = ?", parentID).Pluck("name", &names).Error; err != nil {
		return nil, err
	}
	used := make(map[string]struct{}, len(names))
	for _, n := range names {
		used[n] = struct{}{}
	}
	return used, nil
}

// descendantPrefix 返回 pathFromVol 下所有子孙路径共同的前缀（带结尾分隔符）。
func descendantPrefix(pathFromVol string) string {
	if pathFromVol == model.RootPath {
		return model.RootPath
	}
	return strings.TrimSuffix(pathFromVol, "/") + "/"
}

// Descendants 按路径前缀返回某目录下的所有子孙记录（不含其自身），按路径排序。
func (r *fileRepository) Descendants(volumeID, pathFromVol string) ([]model.File, error) {
	prefix := descendantPrefix(pathFromVol)
	var rows []model.File
	err := r.db.
		Where("volume_id = ? AND path_from_vol LIKE ? ESCAPE '!' AND path_from_vol <> ?",
			volumeID, EscapeLike(prefix)+"%", pathFromVol).
		Order("path_from_vol asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	// 大小写不敏感的排序规则下 LIKE 可能多匹配，这里按字节再过滤一次
	out := rows[:0]
	for _, f := range rows {
		if strings.HasPrefix(f.PathFromVol, prefix) {
			out = append(out, f)
		}
	}
	return out, nil
}

// SearchByName 返回名字包含全部 tokens（忽略大小写）的记录，只在给定的卷中查找。
func (r *fileRepository) SearchByName(tokens []string, volumeIDs []string, limit int) ([]model.File, error) {
	var files []model.File
	if len(volumeIDs) == 0 || len(tokens) == 0 {
		return files, nil
	}
	q := r.db.Where("volume_id IN ? AND parent_id IS NOT NULL", volumeIDs)
	for _, tok := range tokens {
		q = q.Where("LOWER(name) LIKE ? ESCAPE '!'", "%"+EscapeLike(strings.ToLower(tok))+"%")
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Order("kind asc").Order("name asc").Find(&files).Error
	return files, err
}

func (r *fileRepository) CountByVolume(volumeID string) (int64, error) {
	var n int64
	err := r.db.Model(&model.File{}).Where("volume_id = ?", volumeID).Count(&n).Error
	return n, err
}

func (r *fileRepository) Create(f *model.File) error {
	return translateWrite(r.db.Create(f).Error)
}

// Update 只更新 fields 中列出的列。
func (r *fileRepository) Update(f *model.File, fields ...string) error {
	q := r.db.Model(f)
	if len(fields) > 0 {
		q = q.Select(fields)
	} else {
		q = q.Select("*")
	}
	return translateWrite(q.Updates(f).Error)
}

// BulkUpdate 按固定批大小依次更新 files 的 fields 列，顺序与传入顺序一致。
func (r *fileRepository) BulkUpdate(files []*model.File, fields ...string) error {
	if len(files) == 0 || len(fields) == 0 {
		return nil
	}
	for start := 0; start < len(files); start += r.batchSize {
		end := start + r.batchSize
		if end > len(files) {
			end = len(files)
		}
		err := r.db.Transaction(func(tx *gorm.DB) error {
			for _, f := range files[start:end] {
				if err := tx.Model(f).Select(fields).Updates(f).Error; err != nil {
					return translateWrite(err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Delete 删除一条记录，子孙记录由外键级联删除。
func (r *fileRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&model.File{}).Error
}

// DeleteByIDs 按批删除一组记录。
func (r *fileRepository) DeleteByIDs(ids []string) error {
	for start := 0; start < len(ids); start += r.batchSize {
		end := start + r.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := r.db.Where("id IN ?", ids[start:end]).Delete(&model.File{}).Error; err != nil {
			return err
		}
	}
	return nil
}
