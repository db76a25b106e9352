package objectstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Options 汇总各后端共用的连接参数，由 config.StoreConfig 映射而来。
type Options struct {
	Region          string
	Endpoint        string
	UsePathStyle    bool
	AccessKeyID     string
	SecretAccessKey string
}

// Factory 根据连接参数构造一个 Store。
type Factory func(ctx context.Context, opts Options) (Store, error)

// Backend 是注册表中的后端描述。
type Backend struct {
	Key         string
	Description string
	New         Factory
}

var globalRegistry = newRegistry()

type registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

func newRegistry() *registry {
	return &registry{backends: make(map[string]Backend)}
}

// Register 将后端加入全局注册表，重复键会返回错误。
func Register(backend Backend) error {
	return globalRegistry.register(backend)
}

// MustRegister 在注册失败时 panic，适合后端 init() 中调用。
func MustRegister(backend Backend) {
	if err := Register(backend); err != nil {
		panic(err)
	}
}

// Resolve 返回指定键的后端描述。
func Resolve(key string) (Backend, bool) {
	return globalRegistry.resolve(key)
}

// Keys 返回所有已注册后端的键值（已排序），供配置校验与诊断使用。
func Keys() []string {
	return globalRegistry.keys()
}

// Open 按名称构造后端实例。
func Open(ctx context.Context, key string, opts Options) (Store, error) {
	backend, ok := Resolve(key)
	if !ok {
		return nil, fmt.Errorf("objectstore: backend %q is not registered", key)
	}
	return backend.New(ctx, opts)
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *registry) register(backend Backend) error {
	key := normalizeKey(backend.Key)
	if key == "" {
		return fmt.Errorf("backend key is required")
	}
	if backend.New == nil {
		return fmt.Errorf("backend %s has no factory", key)
	}
	backend.Key = key

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[key]; exists {
		return fmt.Errorf("backend %s already registered", key)
	}
	r.backends[key] = backend
	return nil
}

func (r *registry) resolve(key string) (Backend, bool) {
	normalized := normalizeKey(key)
	if normalized == "" {
		return Backend{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	backend, ok := r.backends[normalized]
	return backend, ok
}

func (r *registry) keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.backends))
	for key := range r.backends {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
