package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// docsFixture 返回 testdata 下的配置样例路径。
func docsFixture(name string) string {
	return filepath.Join("testdata", name)
}

// writeDocsConfig 将全局字段与 [Docs] 段拼成一份配置文件。
func writeDocsConfig(t *testing.T, global string, docs string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(strings.TrimSpace(global))
	b.WriteString("\n\n[Docs]\n")
	b.WriteString(strings.TrimSpace(docs))
	b.WriteString("\n")

	path := filepath.Join(t.TempDir(), "lazier-docs.toml")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatalf("写入文档配置失败: %v", err)
	}
	return path
}
