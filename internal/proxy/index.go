package proxy

import (
	"sync"

	"github.com/lazier-docs/lazier-docs/internal/cache"
)

const (
	// RootAlias 是根路径的逻辑文件名，与 IndexDocument 始终指向同一份快照。
	RootAlias = ""
	// IndexDocument 是承载 Markdown 占位符的外壳页面。
	IndexDocument = "index.html"
)

// ResourceIndex 记录清单中每个逻辑文件名当前已知的响应快照，nil 表示尚未缓存。
// 写入均为整份快照替换，并发写入遵循 last-write-wins。
type ResourceIndex struct {
	mu      sync.RWMutex
	keys    []string
	entries map[string]*cache.Snapshot
	// epoch 在 Replace 与 Invalidate 时递增。
	epoch uint64
}

// NewResourceIndex 以给定清单创建索引，所有条目初始为空。
func NewResourceIndex(keys []string) *ResourceIndex {
	idx := &ResourceIndex{}
	idx.Replace(keys)
	return idx
}

// Replace 整体替换键集合，所有值重置为空。
func (x *ResourceIndex) Replace(keys []string) {
	ordered := make([]string, 0, len(keys))
	entries := make(map[string]*cache.Snapshot, len(keys))
	for _, key := range keys {
		if _, dup := entries[key]; dup {
			continue
		}
		entries[key] = nil
		ordered = append(ordered, key)
	}

	x.mu.Lock()
	x.keys = ordered
	x.entries = entries
	x.epoch++
	x.mu.Unlock()
}

// Epoch 返回当前代次，补齐流程据此识别过期写入。
func (x *ResourceIndex) Epoch() uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.epoch
}

// Keys 按配置顺序返回键集合的副本。
func (x *ResourceIndex) Keys() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return append([]string(nil), x.keys...)
}

// Has reports whether name is part of the manifest.
func (x *ResourceIndex) Has(name string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.entries[name]
	return ok
}

// Get 返回快照副本；未缓存或不在清单中时返回 false。
func (x *ResourceIndex) Get(name string) (*cache.Snapshot, bool) {
	x.mu.RLock()
	snap := x.entries[name]
	x.mu.RUnlock()
	if snap == nil {
		return nil, false
	}
	return snap.Clone(), true
}

// Set 写入（或以 nil 清空）条目，index.html 与根别名同时更新。清单外的键被忽略。
func (x *ResourceIndex) Set(name string, snap *cache.Snapshot) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, key := range aliasesOf(name) {
		if _, ok := x.entries[key]; ok {
			x.entries[key] = snap
		}
	}
}

// SetIfAbsent 只填充仍为空的条目，返回是否有条目被写入。
func (x *ResourceIndex) SetIfAbsent(name string, snap *cache.Snapshot) bool {
	return x.setIfAbsent(nil, name, snap)
}

// SetIfAbsentAt 与 SetIfAbsent 相同，但 epoch 已过期时不写入。
func (x *ResourceIndex) SetIfAbsentAt(epoch uint64, name string, snap *cache.Snapshot) bool {
	return x.setIfAbsent(&epoch, name, snap)
}

func (x *ResourceIndex) setIfAbsent(epoch *uint64, name string, snap *cache.Snapshot) bool {
	if snap == nil {
		return false
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if epoch != nil && *epoch != x.epoch {
		return false
	}
	written := false
	for _, key := range aliasesOf(name) {
		if current, ok := x.entries[key]; ok && current == nil {
			x.entries[key] = snap
			written = true
		}
	}
	return written
}

// Invalidate 将所有条目重置为空，键集合保持不变。
func (x *ResourceIndex) Invalidate() {
	x.mu.Lock()
	defer x.mu.Unlock()
	for key := range x.entries {
		x.entries[key] = nil
	}
	x.epoch++
}

// Absent 按清单顺序返回仍未缓存的键。
func (x *ResourceIndex) Absent(keys []string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	var missing []string
	for _, key := range keys {
		if current, ok := x.entries[key]; ok && current == nil {
			missing = append(missing, key)
		}
	}
	return missing
}

func aliasesOf(name string) []string {
	if name == IndexDocument || name == RootAlias {
		return []string{IndexDocument, RootAlias}
	}
	return []string{name}
}
