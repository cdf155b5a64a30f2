package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Snapshot 是一次响应的不可变快照。Body 只读共享，Clone 仅复制 Header，
// 因此同一快照可以同时交给内存索引、Markdown 转换与客户端输出。
type Snapshot struct {
	StatusCode int
	Status     string
	Header     http.Header
	StoredAt   time.Time

	body []byte
}

// NewSnapshot 以 body 的所有权构建快照，调用方之后不得再修改 body。
func NewSnapshot(status int, header http.Header, body []byte) *Snapshot {
	if header == nil {
		header = http.Header{}
	}
	return &Snapshot{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     header,
		StoredAt:   time.Now().UTC(),
		body:       body,
	}
}

// ReadSnapshot 读取完整响应正文并关闭 Body。
func ReadSnapshot(resp *http.Response) (*Snapshot, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil response")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	snap := NewSnapshot(resp.StatusCode, resp.Header.Clone(), body)
	if text := statusText(resp.Status); text != "" {
		snap.Status = text
	}
	return snap, nil
}

// Clone 返回可独立修改 Header 的副本，正文缓冲区共享。
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Header = s.Header.Clone()
	if clone.Header == nil {
		clone.Header = http.Header{}
	}
	return &clone
}

// Body 返回共享的正文缓冲区，调用方不得修改。
func (s *Snapshot) Body() []byte {
	if s == nil {
		return nil
	}
	return s.body
}

// Reader 为每个消费者提供独立的读取游标。
func (s *Snapshot) Reader() io.Reader {
	return bytes.NewReader(s.Body())
}

// Size returns the body length in bytes.
func (s *Snapshot) Size() int {
	return len(s.Body())
}

// OK reports a 2xx status.
func (s *Snapshot) OK() bool {
	return s != nil && s.StatusCode >= 200 && s.StatusCode < 300
}

// Response 生成一个新的 *http.Response，每次调用都拥有独立的 Body。
func (s *Snapshot) Response() *http.Response {
	status := s.Status
	if status == "" {
		status = http.StatusText(s.StatusCode)
	}
	return &http.Response{
		Status:        strconv.Itoa(s.StatusCode) + " " + status,
		StatusCode:    s.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        s.Header.Clone(),
		Body:          io.NopCloser(s.Reader()),
		ContentLength: int64(s.Size()),
	}
}

// statusText 去掉 "200 OK" 中的状态码前缀。
func statusText(status string) string {
	if len(status) > 4 && status[3] == ' ' {
		if _, err := strconv.Atoi(status[:3]); err == nil {
			return status[4:]
		}
	}
	return status
}
