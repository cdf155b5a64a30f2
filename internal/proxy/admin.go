package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/lazier-docs/lazier-docs/internal/cache"
	"github.com/lazier-docs/lazier-docs/internal/manifest"
)

// Operation 枚举支持的管理操作。
type Operation int

const (
	OpClearCache Operation = iota + 1
	OpUpdateManifest
)

var operationsByName = map[string]Operation{
	"clearSWCache":     OpClearCache,
	"updateCacheFiles": OpUpdateManifest,
}

// ParseOperation 将 URL 中的操作名映射为 Operation。
func ParseOperation(name string) (Operation, bool) {
	op, ok := operationsByName[name]
	return op, ok
}

func (o Operation) String() string {
	switch o {
	case OpClearCache:
		return "clearSWCache"
	case OpUpdateManifest:
		return "updateCacheFiles"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

const (
	msgCacheCleared     = "所有缓存已清理完成"
	msgClearFailed      = "清理缓存失败!"
	msgManifestUpdated  = "已更新缓存"
	msgManifestInvalid  = "无效的数据"
	msgOperationFailure = "swapi操作失败: "
)

// APIResult 是管理接口统一的响应体。
type APIResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *Handler) dispatch(ctx context.Context, name string, req *Request) (resp *cache.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.WithFields(logrus.Fields{
				"action":    "swapi",
				"operation": name,
				"stack":     string(debug.Stack()),
			}).Error(fmt.Sprintf("管理操作异常: %v", r))
			resp = h.apiFailure(name, "", fmt.Errorf("panic: %v", r))
		}
	}()

	op, ok := ParseOperation(name)
	if !ok {
		return h.apiFailure(name, "", fmt.Errorf("unknown operation %q", name))
	}

	switch op {
	case OpClearCache:
		if err := h.clearCache(ctx); err != nil {
			return h.apiFailure(name, msgClearFailed, err)
		}
		return apiResponse(http.StatusOK, APIResult{Success: true, Message: msgCacheCleared})
	case OpUpdateManifest:
		msg, err := h.updateManifest(ctx, req)
		if err != nil {
			return h.apiFailure(name, "", err)
		}
		return apiResponse(http.StatusOK, APIResult{Success: true, Message: msg})
	default:
		return h.apiFailure(name, "", fmt.Errorf("unhandled operation %s", op))
	}
}

// clearCache 删除全部缓存代并清空内存索引，随后在后台重新补齐。
func (h *Handler) clearCache(ctx context.Context) error {
	names, err := h.storage.Names(ctx)
	if err != nil {
		return err
	}
	workers := pool.New().WithErrors()
	for _, name := range names {
		workers.Go(func() error {
			_, err := h.storage.Delete(ctx, name)
			return err
		})
	}
	if err := workers.Wait(); err != nil {
		return err
	}

	h.index.Invalidate()
	h.populator.Forget()
	h.logger.WithFields(logrus.Fields{
		"action":      "swapi",
		"operation":   OpClearCache.String(),
		"generations": len(names),
	}).Info(msgCacheCleared)

	h.tasks.Go(ctx, "repopulate", func(ctx context.Context) error {
		h.populator.Populate(ctx)
		return nil
	})
	return nil
}

// updateManifest 用请求体中的 JSON 对象键替换清单并等待补齐完成。
func (h *Handler) updateManifest(ctx context.Context, req *Request) (string, error) {
	keys, ok, err := manifest.Parse(req.Body)
	if err != nil {
		return "", err
	}
	if !ok {
		return msgManifestInvalid, nil
	}

	h.index.Replace(keys)
	h.populator.Forget()
	if h.manifests != nil {
		if err := h.manifests.Save(ctx, keys); err != nil {
			h.logger.WithFields(logrus.Fields{
				"action": "swapi",
				"keys":   len(keys),
			}).WithError(err).Warn("保存清单失败")
		}
	}
	h.populator.PopulateKeys(ctx, keys)

	h.logger.WithFields(logrus.Fields{
		"action":    "swapi",
		"operation": OpUpdateManifest.String(),
		"keys":      len(keys),
	}).Info(msgManifestUpdated)
	return msgManifestUpdated, nil
}

func (h *Handler) apiFailure(op, message string, err error) *cache.Snapshot {
	h.logger.WithFields(logrus.Fields{
		"action":    "swapi",
		"operation": op,
	}).WithError(err).Error("管理操作失败")
	if message == "" {
		message = msgOperationFailure + err.Error()
	}
	return apiResponse(http.StatusInternalServerError, APIResult{Success: false, Message: message})
}

func apiResponse(status int, result APIResult) *cache.Snapshot {
	body, err := json.Marshal(result)
	if err != nil {
		body = []byte(`{"success":false,"message":"encode failed"}`)
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json; charset=utf-8")
	return cache.NewSnapshot(status, header, body)
}
