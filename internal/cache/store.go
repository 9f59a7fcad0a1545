package cache

import (
	"context"
	"errors"
	"time"
)

// Store 负责管理包名 → 版本号映射的读写。键与值均为不透明字符串，
// 由调用方决定语义；过期由存储自身负责，到期后条目视同不存在。
type Store interface {
	// Get 返回 key 对应的版本号。若不存在或已过期则返回 ErrNotFound。
	Get(ctx context.Context, key string) (string, error)

	// Put 写入键值对。ttl 大于 0 时条目在 ttl 之后过期；
	// ttl 为 0 表示永不过期，直到被覆盖。
	Put(ctx context.Context, key, value string, ttl time.Duration) error
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")
