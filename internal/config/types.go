package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 默认值与前端 lazierDocs.js / sw.js 约定保持一致。
const (
	DefaultCacheName        = "lazier-docs-cache-v1"
	DefaultPlaceholder      = "${MD_TEXT}"
	DefaultMarkdownSuffix   = ".md"
	DefaultAPISegment       = "/SWAPI/"
	DefaultFetchConcurrency = 4
)

// DefaultManifest 返回默认需要保持热缓存的文件列表，空字符串等同于 index.html。
func DefaultManifest() []string {
	return []string{"", "index.html", "lazierDocs.js", "sw.js"}
}

// GlobalConfig 描述进程级运行参数。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	StoreDriver     string   `mapstructure:"StoreDriver"`
	StoreDSN        string   `mapstructure:"StoreDSN"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
}

// DocsConfig 决定文档站点的上游地址、缓存代名称以及需要常驻缓存的文件清单。
type DocsConfig struct {
	Upstream         string   `mapstructure:"Upstream"`
	CacheName        string   `mapstructure:"CacheName"`
	Manifest         []string `mapstructure:"Manifest"`
	ManifestPath     string   `mapstructure:"ManifestPath"`
	Placeholder      string   `mapstructure:"Placeholder"`
	MarkdownSuffix   string   `mapstructure:"MarkdownSuffix"`
	APISegment       string   `mapstructure:"APISegment"`
	FetchConcurrency int      `mapstructure:"FetchConcurrency"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Docs   DocsConfig   `mapstructure:"Docs"`
}

// StoreSummary 输出 `driver` 或 `driver:path` 摘要，供启动日志使用，DSN 不会被打印。
func (c *Config) StoreSummary() string {
	driver := strings.ToLower(strings.TrimSpace(c.Global.StoreDriver))
	if driver == "" || driver == "fs" {
		return "fs:" + c.Global.StoragePath
	}
	return driver
}
