package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage
	applyDocsDefaults(&cfg.Docs, cfg.Global.StoragePath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("StoreDriver", "fs")
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("Docs.CacheName", DefaultCacheName)
	v.SetDefault("Docs.Manifest", DefaultManifest())
	v.SetDefault("Docs.Placeholder", DefaultPlaceholder)
	v.SetDefault("Docs.MarkdownSuffix", DefaultMarkdownSuffix)
	v.SetDefault("Docs.APISegment", DefaultAPISegment)
	v.SetDefault("Docs.FetchConcurrency", DefaultFetchConcurrency)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.StoragePath == "" {
		g.StoragePath = "./storage"
	}
	g.StoreDriver = strings.ToLower(strings.TrimSpace(g.StoreDriver))
	if g.StoreDriver == "" {
		g.StoreDriver = "fs"
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
}

func applyDocsDefaults(d *DocsConfig, storagePath string) {
	d.Upstream = strings.TrimSpace(d.Upstream)
	if d.Upstream != "" && !strings.HasSuffix(d.Upstream, "/") {
		d.Upstream += "/"
	}
	if strings.TrimSpace(d.CacheName) == "" {
		d.CacheName = DefaultCacheName
	}
	if d.Manifest == nil {
		d.Manifest = DefaultManifest()
	}
	if d.ManifestPath == "" {
		d.ManifestPath = filepath.Join(storagePath, "manifest.json")
	}
	if d.Placeholder == "" {
		d.Placeholder = DefaultPlaceholder
	}
	if d.MarkdownSuffix == "" {
		d.MarkdownSuffix = DefaultMarkdownSuffix
	}
	if d.APISegment == "" {
		d.APISegment = DefaultAPISegment
	}
	if d.FetchConcurrency <= 0 {
		d.FetchConcurrency = DefaultFetchConcurrency
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
