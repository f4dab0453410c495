package fsutil

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// 系统 mime.types 不一定存在，这里补上文件服务器常见的扩展名。
var extraTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".wav":  "audio/wav",
	".aac":  "audio/aac",
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".heic": "image/heic",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".epub": "application/epub+zip",
	".mobi": "application/x-mobipocket-ebook",
	".azw3": "application/x-mobipocket-ebook",
	".zip":  "application/zip",
	".txt":  "text/plain",
	".md":   "text/markdown",
}

func init() {
	for ext, typ := range extraTypes {
		_ = mime.AddExtensionType(ext, typ)
	}
}

// MediaType 返回文件的 MIME 类型：先按扩展名猜测，猜不到时读取文件头嗅探。
// 无法判断时返回空串。
func MediaType(fullPath string) string {
	if typ := byExtension(fullPath); typ != "" {
		return typ
	}
	m, err := mimetype.DetectFile(fullPath)
	if err != nil || m == nil {
		return ""
	}
	return stripParams(m.String())
}

func byExtension(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	return stripParams(mime.TypeByExtension(ext))
}

func stripParams(typ string) string {
	if typ == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(typ)
	if err != nil {
		return ""
	}
	if mediaType == "application/octet-stream" {
		return ""
	}
	return mediaType
}
