// Package probe 从媒体文件中提取元数据（音频标签、EXIF、文档信息），按 MIME 前缀选择提取器。
package probe

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"homedrive-go/pkg/log"
	"homedrive-go/pkg/tika"
)

// Extractor 从一个文件中提取元数据。实现只能以只读方式打开文件。
type Extractor interface {
	Extract(ctx context.Context, path, mediaType string) (map[string]interface{}, error)
}

// ExtractorFunc 让普通函数实现 Extractor。
type ExtractorFunc func(ctx context.Context, path, mediaType string) (map[string]interface{}, error)

func (f ExtractorFunc) Extract(ctx context.Context, path, mediaType string) (map[string]interface{}, error) {
	return f(ctx, path, mediaType)
}

// Prober 是索引器和上传流程依赖的接口。
type Prober interface {
	Probe(ctx context.Context, path, mediaType string) map[string]interface{}
}

type entry struct {
	prefix    string
	extractor Extractor
}

// Registry 按 MIME 前缀注册提取器，匹配时取最长前缀。
type Registry struct {
	entries []entry
}

// NewRegistry 创建一个空的注册表。
func NewRegistry() *Registry {
	return &Registry{}
}

// Register 注册 prefix 对应的提取器，例如 "audio/" 或 "application/pdf"。
func (r *Registry) Register(prefix string, ex Extractor) {
	r.entries = append(r.entries, entry{prefix: prefix, extractor: ex})
	sort.SliceStable(r.entries, func(i, j int) bool {
		return len(r.entries[i].prefix) > len(r.entries[j].prefix)
	})
}

func (r *Registry) lookup(mediaType string) Extractor {
	for _, e := range r.entries {
		if strings.HasPrefix(mediaType, e.prefix) {
			return e.extractor
		}
	}
	return nil
}

// Probe 返回文件的元数据。没有匹配的提取器、提取失败或提取器 panic 时都返回 nil。
func (r *Registry) Probe(ctx context.Context, path, mediaType string) (meta map[string]interface{}) {
	if mediaType == "" {
		return nil
	}
	ex := r.lookup(mediaType)
	if ex == nil {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Warnw("[Probe] 提取元数据时发生 panic", "path", path, "mediaType", mediaType, "panic", fmt.Sprint(rec))
			meta = nil
		}
	}()
	m, err := ex.Extract(ctx, path, mediaType)
	if err != nil {
		log.Warnw("[Probe] 提取元数据失败", "path", path, "mediaType", mediaType, "error", err)
		return nil
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// NewDefault 创建默认注册表。tikaClient 为 nil 时不提取 PDF/EPUB/MOBI 的文档信息。
func NewDefault(tikaClient *tika.Client) *Registry {
	r := NewRegistry()
	audio := AudioExtractor{}
	r.Register("audio/", audio)
	r.Register("video/", audio)
	r.Register("image/", ExifExtractor{})
	if tikaClient != nil {
		doc := DocumentExtractor{Client: tikaClient}
		r.Register("application/pdf", doc)
		r.Register("application/epub", doc)
		r.Register("application/x-mobipocket", doc)
		r.Register("application/mobi", doc)
	}
	return r
}

// Nop 不提取任何元数据。
type Nop struct{}

func (Nop) Probe(context.Context, string, string) map[string]interface{} { return nil }
