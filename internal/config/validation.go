package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var supportedStoreDrivers = map[string]struct{}{
	"fs":       {},
	"sqlite":   {},
	"postgres": {},
}

const supportedStoreDriverList = "fs|sqlite|postgres"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	driver := strings.ToLower(strings.TrimSpace(g.StoreDriver))
	if _, ok := supportedStoreDrivers[driver]; !ok {
		return newFieldError("Global.StoreDriver", "仅支持 "+supportedStoreDriverList)
	}
	if driver == "postgres" && strings.TrimSpace(g.StoreDSN) == "" {
		return newFieldError("Global.StoreDSN", "postgres 驱动必须提供 DSN")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	d := c.Docs
	if err := validateUpstream(d.Upstream); err != nil {
		return fmt.Errorf("%s: %w", docsField("Upstream"), err)
	}
	if strings.TrimSpace(d.CacheName) == "" {
		return newFieldError(docsField("CacheName"), "不能为空")
	}
	if len(d.Manifest) == 0 {
		return newFieldError(docsField("Manifest"), "至少需要一个文件")
	}
	seen := make(map[string]struct{}, len(d.Manifest))
	for _, key := range d.Manifest {
		if strings.Contains(key, "/") {
			return newFieldError(docsField("Manifest"), fmt.Sprintf("文件名不允许包含路径: %s", key))
		}
		if _, exists := seen[key]; exists {
			return newFieldError(docsField("Manifest"), fmt.Sprintf("重复: %q", key))
		}
		seen[key] = struct{}{}
	}
	if d.Placeholder == "" {
		return newFieldError(docsField("Placeholder"), "不能为空")
	}
	if !strings.HasPrefix(d.MarkdownSuffix, ".") {
		return newFieldError(docsField("MarkdownSuffix"), "必须以 . 开头")
	}
	if !strings.HasPrefix(d.APISegment, "/") || !strings.HasSuffix(d.APISegment, "/") || len(d.APISegment) < 3 {
		return newFieldError(docsField("APISegment"), "必须形如 /NAME/")
	}
	if d.FetchConcurrency <= 0 {
		return newFieldError(docsField("FetchConcurrency"), "必须大于 0")
	}

	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return fmt.Errorf("上游地址不应包含查询参数或片段: %s", raw)
	}
	return nil
}
