package model

import "time"

// NormalizeTime 将时间统一为 UTC 毫秒精度，写入和比较修改时间之前都要经过它，
// 这样不同数据库驱动的时间精度不会让索引器误判文件发生了变化。
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// SameTime 比较两个修改时间在毫秒精度下是否相等。
func SameTime(a, b time.Time) bool {
	return NormalizeTime(a).Equal(NormalizeTime(b))
}

// AllModels 返回所有需要自动迁移的模型，顺序满足外键依赖。
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Volume{},
		&VolumeUser{},
		&File{},
		&Job{},
		&PublicFileLink{},
		&Playlist{},
		&PlaylistFile{},
	}
}
