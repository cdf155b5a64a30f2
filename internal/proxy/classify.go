package proxy

import "strings"

// Kind 是请求分类结果。
type Kind int

const (
	KindGenericAsset Kind = iota
	KindMarkdownDocument
	KindAdministrativeCall
)

func (k Kind) String() string {
	switch k {
	case KindMarkdownDocument:
		return "markdown"
	case KindAdministrativeCall:
		return "api"
	default:
		return "asset"
	}
}

// Route 描述一次分类结果；Operation 仅对管理接口有效。
type Route struct {
	Kind      Kind
	Operation string
}

// Rules 保存分类所需的路径约定。
type Rules struct {
	APISegment     string
	MarkdownSuffix string
}

// Classify 只依据 URL 路径决定请求类别，没有副作用。
// 优先级：管理接口 > Markdown 文档 > 普通资源。
func (r Rules) Classify(path string) Route {
	if r.APISegment != "" {
		if idx := strings.Index(path, r.APISegment); idx >= 0 {
			return Route{
				Kind:      KindAdministrativeCall,
				Operation: path[idx+len(r.APISegment):],
			}
		}
	}
	if r.MarkdownSuffix != "" && strings.HasSuffix(path, r.MarkdownSuffix) {
		return Route{Kind: KindMarkdownDocument}
	}
	return Route{Kind: KindGenericAsset}
}

// lastSegment 返回路径最后一个 "/" 之后的部分，"/docs/" 得到空字符串。
func lastSegment(path string) string {
	return path[strings.LastIndex(path, "/")+1:]
}
