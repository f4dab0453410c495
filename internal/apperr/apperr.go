// Package apperr 定义了业务层统一的错误分类，以及它们到 HTTP 状态码的映射。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 表示一类错误。
type Kind int

const (
	Unknown Kind = iota
	VolumeNotFound
	NoPermission
	FileNotFound
	InvalidOperation
	InvalidFileName
	InvalidVolumeName
	InvalidVolumePath
	Integrity
	NotImplemented
	Unauthorized
	NotFound
)

func (k Kind) String() string {
	switch k {
	case VolumeNotFound:
		return "VolumeNotFound"
	case NoPermission:
		return "NoPermission"
	case FileNotFound:
		return "FileNotFound"
	case InvalidOperation:
		return "InvalidOperation"
	case InvalidFileName:
		return "InvalidFileName"
	case InvalidVolumeName:
		return "InvalidVolumeName"
	case InvalidVolumePath:
		return "InvalidVolumePath"
	case Integrity:
		return "Integrity"
	case NotImplemented:
		return "NotImplemented"
	case Unauthorized:
		return "Unauthorized"
	case NotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}

// Error 是带分类的业务错误。Err 保存底层原因（如 OS 错误），不会暴露给客户端。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, apperr.ErrFileNotFound) 这类按分类的比较成立。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// 预定义的错误，消息即对外可见的文本。
var (
	ErrVolumeNotFound = &Error{Kind: VolumeNotFound, Message: "Volume not found."}
	ErrNoPermission   = &Error{Kind: NoPermission, Message: "No permission."}
	ErrFileNotFound   = &Error{Kind: FileNotFound, Message: "File not found."}
	ErrNotImplemented = &Error{Kind: NotImplemented, Message: "Not implemented."}
	ErrNoFileToMove   = &Error{Kind: InvalidOperation, Message: "No file to move."}
	ErrNameExhausted  = &Error{Kind: InvalidOperation, Message: "Could not generate a free name."}
)

// New 创建一个指定分类的错误。
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf 创建一个指定分类、格式化消息的错误。
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// InvalidOp 创建一个 InvalidOperation 错误。
func InvalidOp(msg string) *Error { return New(InvalidOperation, msg) }

// InvalidName 创建一个 InvalidFileName 错误。
func InvalidName(msg string) *Error { return New(InvalidFileName, msg) }

// FS 将文件系统错误包装为 InvalidOperation。OS 原始信息含有主机路径，只保留在 Err 中供日志使用。
func FS(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: InvalidOperation, Message: msgFileSystem, Err: err}
}

const msgFileSystem = "File system operation failed."

// KindOf 返回错误链中第一个 *Error 的分类；非业务错误返回 Unknown。
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Unknown
}

// Status 将错误映射为 HTTP 状态码。
func Status(err error) int {
	switch KindOf(err) {
	case VolumeNotFound, FileNotFound, NotFound:
		return http.StatusNotFound
	case NoPermission:
		return http.StatusForbidden
	case Unauthorized:
		return http.StatusUnauthorized
	case InvalidOperation, InvalidFileName, InvalidVolumeName, InvalidVolumePath, Integrity:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage 返回可以安全展示给客户端的消息。
func PublicMessage(err error) string {
	var ae *Error
	if errors.As(err, &ae) && Status(err) != http.StatusInternalServerError {
		return ae.Message
	}
	return "Internal server error."
}
