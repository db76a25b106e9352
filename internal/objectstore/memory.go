package objectstore

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"
)

// Memory 是线程安全的内存对象存储，供测试与本地演示使用，不进入后端注册表。
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
	gets    map[string]int
}

type memObject struct {
	data        []byte
	contentType string
	modTime     time.Time
}

// NewMemory 返回一个空的内存存储。
func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string]memObject),
		gets:    make(map[string]int),
	}
}

// Put 写入对象，覆盖同名对象。
func (m *Memory) Put(bucket, key string, data []byte, contentType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[memKey(bucket, key)] = memObject{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		modTime:     time.Now().UTC().Truncate(time.Second),
	}
}

// Gets 返回指定对象被 GetObject 调用的次数。
func (m *Memory) Gets(bucket, key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gets[memKey(bucket, key)]
}

func (m *Memory) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, *ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	m.gets[memKey(bucket, key)]++
	obj, ok := m.objects[memKey(bucket, key)]
	m.mu.Unlock()

	if !ok {
		return nil, nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), obj.info(bucket, key), nil
}

func (m *Memory) HeadObject(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	obj, ok := m.objects[memKey(bucket, key)]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return obj.info(bucket, key), nil
}

func (o memObject) info(bucket, key string) *ObjectInfo {
	return &ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         int64(len(o.data)),
		ContentType:  o.contentType,
		LastModified: o.modTime,
	}
}

func memKey(bucket, key string) string {
	return bucket + "::" + key
}
