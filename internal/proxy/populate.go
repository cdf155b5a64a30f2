package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"

	"github.com/lazier-docs/lazier-docs/internal/cache"
)

// Populator 将清单中缺失的条目从持久缓存或上游补齐到内存索引。
// 它从不向调用方返回错误，失败的条目保持为空，留待下次补齐。
type Populator struct {
	index     *ResourceIndex
	storage   cache.Storage
	cacheName string
	base      *url.URL
	fetcher   Fetcher
	limit     int
	logger    *logrus.Logger

	group singleflight.Group
}

// Populate 对全部清单键执行一次补齐。并发调用共享同一次执行。
func (p *Populator) Populate(ctx context.Context) {
	detached := context.WithoutCancel(ctx)
	_, _, _ = p.group.Do("populate", func() (interface{}, error) {
		p.PopulateKeys(detached, p.index.Keys())
		return nil, nil
	})
}

// Forget 使下一次 Populate 启动新的执行，而不是加入已在进行中的那一次。
func (p *Populator) Forget() {
	p.group.Forget("populate")
}

// PopulateKeys 只补齐给定的键。索引在执行期间被清空或替换时，本次读到的快照会被丢弃。
func (p *Populator) PopulateKeys(ctx context.Context, keys []string) {
	epoch := p.index.Epoch()
	keys = p.fileKeys(keys)
	if len(keys) == 0 {
		return
	}

	store, err := p.storage.Open(ctx, p.cacheName)
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"action": "populate",
			"cache":  p.cacheName,
		}).WithError(err).Warn("打开缓存失败")
		return
	}

	p.load(ctx, epoch, store, keys)
	missing := p.index.Absent(keys)
	if len(missing) == 0 {
		return
	}
	stored := p.fetchAll(ctx, store, missing)
	p.load(ctx, epoch, store, stored)
}

// fileKeys 在清单同时包含 index.html 时略去根别名，二者共享同一份快照。
func (p *Populator) fileKeys(keys []string) []string {
	hasIndex := p.index.Has(IndexDocument)
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == RootAlias && hasIndex {
			continue
		}
		out = append(out, key)
	}
	return out
}

func (p *Populator) load(ctx context.Context, epoch uint64, store cache.Store, keys []string) {
	for _, key := range p.index.Absent(keys) {
		snap, err := store.Match(ctx, resolveKey(p.base, key))
		switch {
		case err == nil:
			p.index.SetIfAbsentAt(epoch, key, snap)
		case errors.Is(err, cache.ErrNotFound):
		default:
			p.logger.WithFields(logrus.Fields{
				"action": "populate",
				"key":    key,
			}).WithError(err).Warn("读取缓存失败")
		}
	}
}

// fetchAll 并发拉取缺失条目，200 响应逐个写入持久缓存，返回写入成功的键。
func (p *Populator) fetchAll(ctx context.Context, store cache.Store, keys []string) []string {
	stored := make([]bool, len(keys))
	workers := pool.New().WithMaxGoroutines(p.limit).WithErrors()
	for i, key := range keys {
		workers.Go(func() error {
			target := resolveKey(p.base, key)
			u, err := url.Parse(target)
			if err != nil {
				return fmt.Errorf("%q: %w", key, err)
			}
			snap, err := p.fetcher.Fetch(ctx, &Request{Method: http.MethodGet, URL: u, Header: http.Header{}})
			if err != nil {
				return fmt.Errorf("%q: %w", key, err)
			}
			if snap.StatusCode != http.StatusOK {
				return fmt.Errorf("%q: upstream status %d", key, snap.StatusCode)
			}
			if err := store.Put(ctx, target, snap); err != nil {
				return fmt.Errorf("%q: %w", key, err)
			}
			stored[i] = true
			return nil
		})
	}
	if err := workers.Wait(); err != nil {
		p.logger.WithFields(logrus.Fields{
			"action": "populate",
			"cache":  p.cacheName,
		}).WithError(err).Warn("部分清单文件拉取失败")
	}

	out := make([]string, 0, len(keys))
	for i, key := range keys {
		if stored[i] {
			out = append(out, key)
		}
	}
	return out
}
