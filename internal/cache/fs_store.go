package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// NewStore 以 basePath 为根目录构建磁盘缓存，整个进程复用一份实例。
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("cache root required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}

	return &fileStore{basePath: abs}, nil
}

// fileStore 不做并发写入互斥：同一标识符的写入由解析器合并，
// 不同进程之间依赖 rename 的原子性，最后一次 rename 胜出且内容一致。
type fileStore struct {
	basePath string
}

func (s *fileStore) Get(ctx context.Context, locator Locator) (*ReadResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	filePath, err := s.entryPath(locator)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() || info.Size() == 0 {
		return nil, ErrNotFound
	}

	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	entry := Entry{
		Locator:   locator,
		FilePath:  filePath,
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
	}

	return &ReadResult{
		Entry:  entry,
		Reader: f,
	}, nil
}

func (s *fileStore) Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error) {
	filePath, err := s.entryPath(locator)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(filePath), ".cache-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}
	tempName := tempFile.Name()

	written, err := copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil && closeErr != nil {
		err = fmt.Errorf("%w: %w", ErrWrite, closeErr)
	}
	if err == nil && written == 0 {
		err = ErrEmptyBody
	}
	if err != nil {
		os.Remove(tempName)
		return nil, err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}

	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = time.Now().UTC()
	}
	if err := os.Chtimes(filePath, modTime, modTime); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrite, err)
	}

	entry := Entry{
		Locator:   locator,
		FilePath:  filePath,
		SizeBytes: written,
		ModTime:   modTime,
	}
	return &entry, nil
}

func (s *fileStore) Remove(ctx context.Context, locator Locator) error {
	filePath, err := s.entryPath(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) Path(locator Locator) (string, error) {
	return s.entryPath(locator)
}

func (s *fileStore) entryPath(locator Locator) (string, error) {
	if locator.Identifier == "" {
		return "", errors.New("identifier required")
	}

	variant := locator.Variant
	if variant == "" {
		variant = SourceVariant
	}
	if strings.ContainsAny(variant, `/\`) || strings.HasPrefix(variant, ".") {
		return "", fmt.Errorf("invalid cache variant %q", variant)
	}

	return filepath.Join(s.basePath, directoryName(locator.Identifier), variant), nil
}

// directoryName 把标识符映射为两级散列目录，避免单目录下文件过多。
func directoryName(identifier string) string {
	sum := sha256.Sum256([]byte(identifier))
	h := hex.EncodeToString(sum[:])
	return filepath.Join(h[0:2], h[2:4], h)
}

// copyWithContext 区分读侧与写侧错误：读侧失败可重试，写侧失败属于本地故障。
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, fmt.Errorf("%w: %w", ErrSourceRead, err)
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, fmt.Errorf("%w: %w", ErrWrite, wErr)
			}
			if w < n {
				return copied, fmt.Errorf("%w: %w", ErrWrite, io.ErrShortWrite)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, fmt.Errorf("%w: %w", ErrSourceRead, err)
		}
	}
}
