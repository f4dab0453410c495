package fsutil

import (
	"fmt"
	"strings"

	"homedrive-go/internal/apperr"
)

// MaxNameAttempts 是冲突改名时尝试的最大序号。
const MaxNameAttempts = 100000

// NewName 返回一个不在 used 中的名字：name 可用时原样返回，
// 否则依次尝试 "stem (1).ext"、"stem (2).ext"……
// 以点开头且没有其他点的名字（如 ".bashrc"）视为没有扩展名。
func NewName(name string, used map[string]struct{}) (string, error) {
	if _, taken := used[name]; !taken {
		return name, nil
	}
	stem, ext := name, ""
	if i := strings.LastIndex(name, "."); i > 0 {
		stem, ext = name[:i], name[i:]
	}
	for i := 1; i <= MaxNameAttempts; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if _, taken := used[candidate]; !taken {
			return candidate, nil
		}
	}
	return "", apperr.ErrNameExhausted
}
