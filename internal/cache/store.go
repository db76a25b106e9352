package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<CacheRoot>/<h[0:2]>/<h[2:4]>/<h>/source        # 源图正文
//	<CacheRoot>/<h[0:2]>/<h[2:4]>/<h>/<variant>     # 旁路文件（如 rules.json）
//
// 其中 h 为标识符的 SHA-256 十六进制串，文件的 ModTime/Size 由文件系统提供。
type Store interface {
	// Get 返回一个可流式读取的缓存条目。不存在或为空文件时返回 ErrNotFound。
	Get(ctx context.Context, locator Locator) (*ReadResult, error)

	// Put 将远端正文写入缓存。实现需通过临时文件 + rename 保证写入原子性，
	// 并在失败时清理临时文件。可选地根据 opts.ModTime 设置文件时间戳。
	Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除缓存文件，文件不存在时不报错。
	Remove(ctx context.Context, locator Locator) error

	// Path 返回条目对应的绝对路径，不检查文件是否存在。
	Path(locator Locator) (string, error)
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime time.Time
}

// Locator 唯一定位一个缓存条目：标识符 + 可选旁路文件名。
type Locator struct {
	Identifier string
	Variant    string
}

// SourceVariant 是源图正文使用的文件名。
const SourceVariant = "source"

// Entry 表示一次缓存命中结果，包含绝对文件路径及文件信息。
type Entry struct {
	Locator   Locator `json:"locator"`
	FilePath  string  `json:"file_path"`
	SizeBytes int64   `json:"size_bytes"`
	ModTime   time.Time
}

// ReadResult 组合 Entry 与正文 Reader，调用方负责关闭。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrWrite 表示本地磁盘写入失败（空间不足、权限、rename 失败）。
	ErrWrite = errors.New("cache write failed")
	// ErrSourceRead 表示读取远端正文的过程中断，临时文件已丢弃。
	ErrSourceRead = errors.New("cache source read failed")
	// ErrEmptyBody 表示远端正文为空，不会生成缓存文件。
	ErrEmptyBody = errors.New("cache source body is empty")
)
