package probe

import (
	"context"
	"fmt"
	"os"

	"github.com/dhowden/tag"
)

// AudioExtractor 读取音频/视频容器中的标签（ID3、MP4、FLAC、OGG）。
type AudioExtractor struct{}

func (AudioExtractor) Extract(_ context.Context, path, _ string) (map[string]interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, err
	}

	meta := map[string]interface{}{
		"format":    string(m.Format()),
		"file_type": string(m.FileType()),
	}
	putString(meta, "title", m.Title())
	putString(meta, "artist", m.Artist())
	putString(meta, "album", m.Album())
	putString(meta, "album_artist", m.AlbumArtist())
	putString(meta, "composer", m.Composer())
	putString(meta, "genre", m.Genre())
	if y := m.Year(); y > 0 {
		meta["year"] = y
	}
	if n, total := m.Track(); n > 0 {
		meta["track"] = n
		if total > 0 {
			meta["track_total"] = total
		}
	}
	if n, total := m.Disc(); n > 0 {
		meta["disc"] = n
		if total > 0 {
			meta["disc_total"] = total
		}
	}
	if m.Picture() != nil {
		meta["has_picture"] = true
	}
	return meta, nil
}

func putString(meta map[string]interface{}, key, value string) {
	if value != "" {
		meta[key] = value
	}
}

// ErrNoThumbnail 表示文件中没有内嵌封面。
var ErrNoThumbnail = fmt.Errorf("no embedded picture")

// Thumbnail 返回音频文件内嵌的封面图片及其 MIME 类型。
func Thumbnail(path string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, "", err
	}
	pic := m.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return nil, "", ErrNoThumbnail
	}
	mimeType := pic.MIMEType
	if mimeType == "" {
		mimeType = "image/" + pic.Ext
	}
	return pic.Data, mimeType, nil
}
