package cache

import (
	"context"
	"errors"
)

// Storage 管理多个按名称区分的缓存代（generation）。更换名称等同于放弃旧缓存，
// 不做任何迁移。
type Storage interface {
	// Open 打开（必要时创建）指定名称的缓存代。
	Open(ctx context.Context, name string) (Store, error)

	// Names 列出当前存在的缓存代名称。
	Names(ctx context.Context) ([]string, error)

	// Delete 删除整个缓存代，返回其删除前是否存在。
	Delete(ctx context.Context, name string) (bool, error)

	// Match 在所有缓存代中按请求标识查找条目，未命中返回 ErrNotFound。
	Match(ctx context.Context, key string) (*Snapshot, error)

	Close() error
}

// Store 是单个缓存代内的 key → Snapshot 映射。
type Store interface {
	// Match 返回 key 对应的快照。若不存在则返回 ErrNotFound。
	Match(ctx context.Context, key string) (*Snapshot, error)

	// Put 以完整快照替换 key 对应的条目，实现需保证写入原子性。
	Put(ctx context.Context, key string, snap *Snapshot) error

	// Delete 删除条目，条目不存在时不报错。
	Delete(ctx context.Context, key string) error

	// Keys 列出当前缓存代中的全部请求标识。
	Keys(ctx context.Context) ([]string, error)
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")

	// ErrInvalidName 表示缓存代名称无法映射到存储布局。
	ErrInvalidName = errors.New("invalid cache name")
)
