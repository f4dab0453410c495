package handler

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"homedrive-go/internal/model"
	"homedrive-go/pkg/log"
)

// parseRange 解析单段 "bytes=a-b"、"bytes=a-" 和 "bytes=-n"。
// 返回的 status 为 200（无 Range 或格式不合法，发送整个文件）、206 或 416。
func parseRange(header string, size int64) (start, end int64, status int) {
	full := func() (int64, int64, int) { return 0, size - 1, http.StatusOK }
	if header == "" {
		return full()
	}
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok || strings.Contains(spec, ",") {
		return full()
	}
	first, last, ok := strings.Cut(spec, "-")
	if !ok {
		return full()
	}
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)

	if first == "" {
		// 后缀形式：最后 n 个字节
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return full()
		}
		if size == 0 {
			return 0, 0, http.StatusRequestedRangeNotSatisfiable
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, http.StatusPartialContent
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return full()
	}
	if start >= size {
		return 0, 0, http.StatusRequestedRangeNotSatisfiable
	}
	end = size - 1
	if last != "" {
		e, err := strconv.ParseInt(last, 10, 64)
		if err != nil || e < start {
			return full()
		}
		if e < end {
			end = e
		}
	}
	return start, end, http.StatusPartialContent
}

// contentDisposition 生成下载头。非 ASCII 或需要转义的文件名使用 RFC 5987 编码。
func contentDisposition(name string) string {
	plain := true
	for _, r := range name {
		if r < 0x20 || r >= 0x7f || r == '"' || r == '\\' {
			plain = false
			break
		}
	}
	if plain {
		return `attachment;filename="` + name + `"`
	}
	return "attachment;filename*=utf-8''" + strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
}

// serveFile 把已打开的文件写入响应。调用方负责关闭 h。
func serveFile(c *gin.Context, f *model.File, h *os.File) {
	info, err := h.Stat()
	if err != nil {
		renderError(c, err)
		return
	}
	size := info.Size()
	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Disposition", contentDisposition(f.Name))

	start, end, status := parseRange(c.GetHeader("Range"), size)
	if status == http.StatusRequestedRangeNotSatisfiable {
		c.Header("Content-Range", fmt.Sprintf("bytes */%d", size))
		c.AbortWithStatusJSON(status, gin.H{"error": "Requested range not satisfiable."})
		return
	}

	length := end - start + 1
	headers := map[string]string{}
	if status == http.StatusPartialContent {
		if _, err := h.Seek(start, io.SeekStart); err != nil {
			renderError(c, err)
			return
		}
		headers["Content-Range"] = fmt.Sprintf("bytes %d-%d/%d", start, end, size)
	}
	// 客户端中途断开时写入失败，文件由调用方的 defer 关闭
	c.DataFromReader(status, length, "application/octet-stream", io.LimitReader(h, length), headers)
	if err := c.Request.Context().Err(); err != nil {
		log.Warnf("[Download] 客户端提前断开, file: %s, error: %v", f.ID, err)
	}
}
