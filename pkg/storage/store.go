package stores

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrObjectNotFound is returned by Read when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// ErrInvalidKey is returned for keys that are empty or contain path elements.
var ErrInvalidKey = errors.New("invalid object key")

// Store 音频文件存储。键是扁平文件名，不允许包含目录
type Store interface {
	Read(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Write(ctx context.Context, key string, r io.Reader) error
	// Delete 删除对象；对象不存在时视为成功
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context) ([]string, error)
	// Location 返回对象的本地路径或公开访问地址
	Location(key string) string
}

// ValidKey reports whether key is a plain file name.
func ValidKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`) && !strings.Contains(key, "\x00")
}
