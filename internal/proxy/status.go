package proxy

import "time"

// EntryStatus 描述清单中单个文件的缓存状态。
type EntryStatus struct {
	Key        string     `json:"key"`
	Cached     bool       `json:"cached"`
	StatusCode int        `json:"status_code,omitempty"`
	SizeBytes  int        `json:"size_bytes,omitempty"`
	StoredAt   *time.Time `json:"stored_at,omitempty"`
}

// Status 是 /-/status 诊断接口的数据来源。
type Status struct {
	CacheName string        `json:"cache_name"`
	Upstream  string        `json:"upstream"`
	Entries   []EntryStatus `json:"entries"`
}

// Status 汇总内存索引的当前状态，不触发任何补齐。
func (h *Handler) Status() Status {
	keys := h.index.Keys()
	entries := make([]EntryStatus, 0, len(keys))
	for _, key := range keys {
		entry := EntryStatus{Key: key}
		if snap, ok := h.index.Get(key); ok {
			storedAt := snap.StoredAt
			entry.Cached = true
			entry.StatusCode = snap.StatusCode
			entry.SizeBytes = snap.Size()
			entry.StoredAt = &storedAt
		}
		entries = append(entries, entry)
	}
	return Status{
		CacheName: h.cacheName,
		Upstream:  h.base.String(),
		Entries:   entries,
	}
}
