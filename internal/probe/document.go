package probe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"homedrive-go/pkg/tika"
)

const maxDocValueLen = 1024

// DocumentExtractor 通过 Tika 服务器读取 PDF/EPUB/MOBI 的文档信息。
type DocumentExtractor struct {
	Client *tika.Client
}

func (d DocumentExtractor) Extract(ctx context.Context, path, mediaType string) (map[string]interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := d.Client.ExtractMetadata(ctx, f, filepath.Base(path), mediaType)
	if err != nil {
		return nil, err
	}
	meta := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		// X-TIKA 前缀的是解析器自身的诊断信息
		if strings.HasPrefix(k, "X-TIKA") || strings.HasPrefix(k, "X-Parsed-By") {
			continue
		}
		meta[k] = clampValue(v)
	}
	return meta, nil
}

// truncateUTF8 把 s 截断到最多 n 个字节，不切开多字节字符。
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func clampValue(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return truncateUTF8(val, maxDocValueLen)
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprint(clampValue(item)))
		}
		return out
	default:
		return val
	}
}
