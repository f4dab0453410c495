package probe

import (
	"context"
	"os"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// ExifExtractor 读取图片中的 EXIF 字段，值统一转换为字符串。
type ExifExtractor struct{}

type exifWalker map[string]interface{}

func (w exifWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	// 缩略图和厂商私有数据体积大且不可读
	switch name {
	case exif.MakerNote, exif.UserComment:
		return nil
	}
	if tag.Count > 64 && tag.Format() == tiff.OtherVal {
		return nil
	}
	w[string(name)] = tag.String()
	return nil
}

func (ExifExtractor) Extract(_ context.Context, path, _ string) (map[string]interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return nil, err
	}
	meta := exifWalker{}
	if err := x.Walk(meta); err != nil {
		return nil, err
	}
	return meta, nil
}
