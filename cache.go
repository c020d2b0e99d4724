package replan

import (
	"fmt"
	"math"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CollisionCache memoizes pairwise collision results. Keys include a
// fingerprint of both bodies' poses and joint positions, so entries never go
// stale when the world configuration changes.
type CollisionCache struct {
	entries *lru.Cache[string, bool]
	metrics *Metrics
}

// NewCollisionCache creates a cache holding up to size results.
func NewCollisionCache(size int) (*CollisionCache, error) {
	entries, err := lru.New[string, bool](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create collision cache: %w", err)
	}
	return &CollisionCache{entries: entries}, nil
}

// Collision answers from the cache or asks gw and records the result.
func (c *CollisionCache) Collision(gw Gateway, a, b Obstacle, maxDistance float64) bool {
	key := c.key(gw, a, b, maxDistance)
	if hit, ok := c.entries.Get(key); ok {
		c.metrics.cacheLookup(true)
		return hit
	}
	c.metrics.cacheLookup(false)
	hit := gw.Collision(a, b, maxDistance)
	c.entries.Add(key, hit)
	return hit
}

// Len returns the number of cached results.
func (c *CollisionCache) Len() int { return c.entries.Len() }

// Purge drops every cached result.
func (c *CollisionCache) Purge() { c.entries.Purge() }

func (c *CollisionCache) key(gw Gateway, a, b Obstacle, maxDistance float64) string {
	ka, kb := a.Key(), b.Key()
	if kb < ka {
		a, b = b, a
		ka, kb = kb, ka
	}
	buf := make([]byte, 0, 256)
	buf = append(buf, ka...)
	buf = append(buf, '|')
	buf = append(buf, kb...)
	buf = append(buf, '|')
	buf = appendRounded(buf, maxDistance)
	buf = appendBodyState(buf, gw, a.Body)
	if b.Body != a.Body {
		buf = appendBodyState(buf, gw, b.Body)
	}
	return string(buf)
}

func appendBodyState(buf []byte, gw Gateway, body string) []byte {
	p := gw.Pose(body)
	buf = append(buf, '|')
	for _, v := range [...]float64{p.Point.X, p.Point.Y, p.Point.Z, p.Quat.X, p.Quat.Y, p.Quat.Z, p.Quat.W} {
		buf = appendRounded(buf, v)
	}
	for _, v := range gw.JointPositions(body, gw.Joints(body)) {
		buf = appendRounded(buf, v)
	}
	return buf
}

func appendRounded(buf []byte, v float64) []byte {
	buf = strconv.AppendFloat(buf, math.Round(v*1e6)/1e6, 'f', -1, 64)
	return append(buf, ',')
}
