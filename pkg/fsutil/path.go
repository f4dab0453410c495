// Package fsutil 负责目录记录与主机路径之间的转换，以及名字校验、冲突改名和跨设备移动。
package fsutil

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"homedrive-go/internal/apperr"
)

// CleanName 去掉首尾空白并统一为 NFC 形式，用户输入的名字在校验前都要经过它。
func CleanName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// FullPath 把卷路径与 path_from_vol 拼成主机上的绝对路径。
func FullPath(volumePath, pathFromVol string) string {
	rel := strings.TrimLeft(pathFromVol, "/")
	if rel == "" {
		return volumePath
	}
	return strings.TrimRight(volumePath, "/") + "/" + rel
}

// JoinChild 在 parentFull 下拼出子项路径，并保证结果的父目录正好是 parentFull。
// 这是阻止路径逃逸出卷的唯一入口。
func JoinChild(parentFull, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	parent := filepath.Clean(parentFull)
	child := filepath.Join(parent, name)
	if filepath.Dir(child) != parent || filepath.Base(child) != name {
		return "", apperr.InvalidName("Invalid file name.")
	}
	return child, nil
}

// ValidateName 校验一个叶子名字：非空、不是 . 或 ..、不含分隔符、不是绝对路径。
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return apperr.InvalidName("File name cannot be empty.")
	case name == "." || name == "..":
		return apperr.InvalidName("Invalid file name.")
	case strings.ContainsRune(name, '/') || strings.ContainsRune(name, os.PathSeparator):
		return apperr.InvalidName("File name cannot contain a path separator.")
	case filepath.IsAbs(name):
		return apperr.InvalidName("Invalid file name.")
	case strings.ContainsRune(name, 0):
		return apperr.InvalidName("Invalid file name.")
	}
	return nil
}

// JoinVolPath 拼接目录记录中的 path_from_vol。
func JoinVolPath(parentPathFromVol, name string) string {
	if parentPathFromVol == "/" || parentPathFromVol == "" {
		return "/" + name
	}
	return strings.TrimRight(parentPathFromVol, "/") + "/" + name
}

// RewritePrefix 把 path 开头的 oldPrefix 路径替换为 newPrefix，按路径分量匹配。
// path 不在 oldPrefix 之下时原样返回，ok 为 false。
func RewritePrefix(path, oldPrefix, newPrefix string) (string, bool) {
	if path == oldPrefix {
		return newPrefix, true
	}
	if oldPrefix == "/" {
		return JoinVolPath(newPrefix, strings.TrimPrefix(path, "/")), strings.HasPrefix(path, "/")
	}
	if strings.HasPrefix(path, oldPrefix+"/") {
		return newPrefix + path[len(oldPrefix):], true
	}
	return path, false
}

// IsWithin 判断 child 是否等于 parent 或位于 parent 之下（按路径分量比较）。
func IsWithin(parent, child string) bool {
	parent = filepath.Clean(parent)
	child = filepath.Clean(child)
	if parent == child {
		return true
	}
	if parent == string(filepath.Separator) {
		return strings.HasPrefix(child, parent)
	}
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}

// CanonicalDir 把路径转换为绝对、解析过符号链接的规范形式，并要求它是一个已存在的目录。
func CanonicalDir(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", apperr.New(apperr.InvalidVolumePath, "Volume path cannot be empty.")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", apperr.Newf(apperr.InvalidVolumePath, "Invalid volume path: %v", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", apperr.New(apperr.InvalidVolumePath, "Volume path does not exist.")
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", apperr.New(apperr.InvalidVolumePath, "Volume path does not exist.")
	}
	if !info.IsDir() {
		return "", apperr.New(apperr.InvalidVolumePath, "Volume path is not a directory.")
	}
	return filepath.Clean(resolved), nil
}

// SplitRelPath 把上传时的相对路径拆成中间目录和最终文件名，忽略空分量。
func SplitRelPath(rel string) (dirs []string, name string) {
	var parts []string
	for _, p := range strings.Split(filepath.ToSlash(rel), "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return nil, ""
	}
	return parts[:len(parts)-1], parts[len(parts)-1]
}
