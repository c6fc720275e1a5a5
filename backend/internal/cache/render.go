package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	redis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"pieceServer/backend/internal/piecetable"
)

const (
	RenderBaseTTL = 10 * time.Minute // 基础过期时间
	RenderJitter  = 2 * time.Minute  // 随机抖动范围
)

// 随机 TTL，避免同一批版本同时过期
func renderTTL() time.Duration {
	return RenderBaseTTL + time.Duration(rand.Int63n(int64(RenderJitter)))
}

// RenderCache：render index 按 (docID, epoch, revision) 缓存在 redis 里。
// epoch 标识文档的一次打开，同一 epoch 下同一版本内容不会再变，所以不需要主动失效，旧版本靠 TTL 过期。
type RenderCache struct {
	rdb redis.UniversalClient
	sf  singleflight.Group
}

// NewRenderCache：rdb 为 nil 时只做 singleflight 合并，不落 redis
func NewRenderCache(rdb redis.UniversalClient) *RenderCache {
	return &RenderCache{rdb: rdb}
}

func (c *RenderCache) read(ctx context.Context, key string) (*piecetable.RenderIndex, bool, error) {
	if c.rdb == nil {
		return nil, false, nil
	}
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var ri piecetable.RenderIndex
	if err := json.Unmarshal(b, &ri); err != nil {
		return nil, false, err
	}
	return &ri, true, nil
}

func (c *RenderCache) write(ctx context.Context, key string, ri *piecetable.RenderIndex) error {
	if c.rdb == nil {
		return nil
	}
	b, err := json.Marshal(ri)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, renderTTL()).Err()
}

// GetOrBuild：先读缓存，未命中时回源 build。
// 同一个 key 的并发请求用 singleflight 合并，只 build 一次。redis 出错时降级为直接 build。
func (c *RenderCache) GetOrBuild(ctx context.Context, docID, epoch string, rev uint64,
	build func() (*piecetable.RenderIndex, error)) (*piecetable.RenderIndex, error) {
	key := renderKey(docID, epoch, rev)
	val, err, _ := c.sf.Do(key, func() (interface{}, error) {
		ri, hit, err := c.read(ctx, key)
		if err != nil {
			log.Printf("render cache read failed key=%s err=%v", key, err)
		}
		if hit {
			return ri, nil
		}
		ri, err = build()
		if err != nil {
			return nil, err
		}
		if err := c.write(ctx, key, ri); err != nil {
			log.Printf("render cache write failed key=%s err=%v", key, err)
		}
		return ri, nil
	})
	if err != nil {
		return nil, err
	}
	// 使用断言确保不会panic
	if ri, ok := val.(*piecetable.RenderIndex); ok {
		return ri, nil
	}
	return nil, fmt.Errorf("render cache: unexpected value type %T", val)
}
