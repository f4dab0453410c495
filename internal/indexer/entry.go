package indexer

import (
	"context"
	"encoding/json"
	"io/fs"

	"gorm.io/datatypes"

	"homedrive-go/internal/model"
	"homedrive-go/internal/probe"
	"homedrive-go/pkg/fsutil"
)

// NewEntry 根据主机上的 stat 信息构造一条目录记录（尚未写库）。
// 普通文件会猜测 MIME 类型并提取元数据；目录的 size 记为 0，不提取元数据。
func NewEntry(ctx context.Context, prober probe.Prober, parent *model.File, volumeID, name, fullPath string, info fs.FileInfo) *model.File {
	f := &model.File{
		Name:         name,
		VolumeID:     volumeID,
		LastModified: model.NormalizeTime(info.ModTime()),
	}
	if parent == nil {
		f.PathFromVol = model.RootPath
	} else {
		f.ParentID = &parent.ID
		f.PathFromVol = fsutil.JoinVolPath(parent.PathFromVol, name)
	}
	if info.IsDir() {
		f.Kind = model.KindFolder
		return f
	}
	f.Kind = model.KindFile
	f.Size = info.Size()
	mt, meta := probeFile(ctx, prober, fullPath)
	f.MediaType = mt
	f.Metadata = meta
	return f
}

func probeFile(ctx context.Context, prober probe.Prober, fullPath string) (*string, datatypes.JSONMap) {
	mt := fsutil.MediaType(fullPath)
	if mt == "" {
		return nil, nil
	}
	var meta datatypes.JSONMap
	if prober != nil {
		if m := prober.Probe(ctx, fullPath, mt); m != nil {
			meta = datatypes.JSONMap(m)
		}
	}
	return &mt, meta
}

func sameMediaType(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// sameMetadata 以 JSON 形式比较，避免数据库读回的数字类型与新提取的不同。
func sameMetadata(a, b datatypes.JSONMap) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == 0 && len(b) == 0
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ja) == string(jb)
}

func kindOf(info fs.FileInfo) model.FileKind {
	if info.IsDir() {
		return model.KindFolder
	}
	return model.KindFile
}

// indexable 过滤掉符号链接和设备、管道等特殊文件。
func indexable(mode fs.FileMode) bool {
	if mode&fs.ModeSymlink != 0 {
		return false
	}
	return mode.IsDir() || mode.IsRegular()
}
