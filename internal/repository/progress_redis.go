package repository

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisProgress keeps progress in a Redis set, for runners without a
// persistent working directory.
type RedisProgress struct {
	Client *redis.Client
	Key    string

	done    map[string]struct{}
	added   map[string]struct{}
	removed map[string]struct{}
}

func NewRedisProgress(client *redis.Client, productType string) *RedisProgress {
	p := &RedisProgress{
		Client: client,
		Key:    fmt.Sprintf("specscrape:%s:progress", productType),
		done:   map[string]struct{}{},
	}
	p.clearPending()
	return p
}

func (p *RedisProgress) clearPending() {
	p.added = map[string]struct{}{}
	p.removed = map[string]struct{}{}
}

func (p *RedisProgress) Load(ctx context.Context) error {
	members, err := p.Client.SMembers(ctx, p.Key).Result()
	if err != nil {
		return fmt.Errorf("load progress %s: %w", p.Key, err)
	}
	p.done = make(map[string]struct{}, len(members))
	p.clearPending()
	for _, m := range members {
		p.done[m] = struct{}{}
	}
	return nil
}

func (p *RedisProgress) Contains(url string) bool {
	_, ok := p.done[url]
	return ok
}

func (p *RedisProgress) MarkDone(url string) {
	delete(p.removed, url)
	if _, ok := p.done[url]; ok {
		return
	}
	p.done[url] = struct{}{}
	p.added[url] = struct{}{}
}

func (p *RedisProgress) Forget(url string) {
	if _, ok := p.done[url]; !ok {
		return
	}
	delete(p.done, url)
	delete(p.added, url)
	p.removed[url] = struct{}{}
}

func (p *RedisProgress) Done() []string {
	return sortedKeys(p.done)
}

func (p *RedisProgress) Len() int {
	return len(p.done)
}

// Persist applies buffered additions and removals in one transaction.
func (p *RedisProgress) Persist(ctx context.Context) error {
	if len(p.added) == 0 && len(p.removed) == 0 {
		return nil
	}
	_, err := p.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(p.removed) > 0 {
			pipe.SRem(ctx, p.Key, members(p.removed)...)
		}
		if len(p.added) > 0 {
			pipe.SAdd(ctx, p.Key, members(p.added)...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: update %s: %w", ErrPersistence, p.Key, err)
	}
	p.clearPending()
	return nil
}

func (p *RedisProgress) Reset(ctx context.Context) error {
	p.done = map[string]struct{}{}
	p.clearPending()
	if err := p.Client.Del(ctx, p.Key).Err(); err != nil {
		return fmt.Errorf("%w: del %s: %w", ErrPersistence, p.Key, err)
	}
	return nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func members(set map[string]struct{}) []any {
	keys := sortedKeys(set)
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}
