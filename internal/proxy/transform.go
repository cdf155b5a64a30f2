package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lazier-docs/lazier-docs/internal/cache"
)

// ErrShellMissing 表示外壳页面既不在内存索引也不在持久缓存中。
var ErrShellMissing = errors.New("shell document not cached")

// MarkdownTransformer 把 Markdown 正文编码后嵌入外壳页面。
type MarkdownTransformer struct {
	placeholder string
	shell       func(ctx context.Context) (*cache.Snapshot, error)
	logger      *logrus.Logger
}

// Transform 渲染失败时记录日志并原样返回 Markdown 响应。
func (t *MarkdownTransformer) Transform(ctx context.Context, md *cache.Snapshot) *cache.Snapshot {
	page, err := t.Render(ctx, md)
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"action": "markdown_transform",
		}).WithError(err).Warn("Markdown 渲染失败，返回原始内容")
		return md.Clone()
	}
	return page
}

// Render 用编码后的正文替换外壳中所有占位符，状态码沿用 Markdown 响应。
func (t *MarkdownTransformer) Render(ctx context.Context, md *cache.Snapshot) (*cache.Snapshot, error) {
	shell, err := t.shell(ctx)
	if err != nil {
		return nil, err
	}

	body := []byte(strings.ReplaceAll(string(shell.Body()), t.placeholder, EncodePayload(md.Body())))
	header := http.Header{}
	header.Set("Content-Type", "text/html; charset=utf-8")
	header.Set("Content-Length", strconv.Itoa(len(body)))

	page := cache.NewSnapshot(md.StatusCode, header, body)
	if md.Status != "" {
		page.Status = md.Status
	}
	return page, nil
}

// EncodePayload 将字节序列编码为逗号分隔的十进制数，输出仅含 ASCII 数字与逗号，
// 嵌入 HTML 时无需转义。页面脚本按 UTF-8 解码还原原文。
func EncodePayload(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	buf := make([]byte, 0, len(data)*4)
	for i, b := range data {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendUint(buf, uint64(b), 10)
	}
	return string(buf)
}

// DecodePayload 是 EncodePayload 的逆运算。
func DecodePayload(payload string) ([]byte, error) {
	if payload == "" {
		return []byte{}, nil
	}
	parts := strings.Split(payload, ",")
	out := make([]byte, len(parts))
	for i, part := range parts {
		v, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("payload byte %d: %w", i, err)
		}
		out[i] = byte(v)
	}
	return out, nil
}
