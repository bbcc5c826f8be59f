// Package resultcache caches evaluated query.Result values behind a
// deterministic Key, so repeat MDX queries (same cube, statement text,
// and user) skip straight past axis materialization and Calculator
// dispatch. It is an ambient performance layer, not a correctness
// dependency: spec.md §1 names "no persistence of computed results" as
// a non-goal, and this cache honors that — every entry is TTL-bounded
// and a miss always falls through to full recomputation.
//
// Adapted from the teacher's src/storage/grid_cache_tiered.go
// (TieredGridCache): L1 in-process LRU in front of an L2 Redis store,
// with Pub/Sub-driven invalidation so every node purges its L1 when
// one node busts a key. The teacher's GridCacheKey/GridCacheEntry pair
// (src/storage/grid_cache_redis.go) becomes Key/Entry here, repointed
// at evaluated MDX results instead of pre-aggregated grid responses.
package resultcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"mdxgrid/evaluator/internal/domain"
)

// Key identifies one cacheable query result: a cube, the user whose
// access rules gated it (access decisions are user-specific, so the
// cache must be too), and a hash of the canonical statement text.
type Key struct {
	CubeGid       domain.Gid
	UserName      string
	StatementHash string
}

// NewKey hashes mdxText (the statement's canonical source form) into a
// Key alongside the cube and user it was evaluated for.
func NewKey(cubeGid domain.Gid, userName, mdxText string) Key {
	sum := sha256.Sum256([]byte(mdxText))
	return Key{CubeGid: cubeGid, UserName: userName, StatementHash: hex.EncodeToString(sum[:])}
}

func (k Key) redisKey() string {
	var sb strings.Builder
	sb.WriteString("mdx-result:")
	fmt.Fprintf(&sb, "%d", k.CubeGid)
	sb.WriteByte(':')
	sb.WriteString(k.UserName)
	sb.WriteByte(':')
	sb.WriteString(k.StatementHash)
	return sb.String()
}

// RoleEntry is the display projection of one domain.MemberRole: its
// dimension role, the member it's bound to (zero for a formula role),
// and a human-readable name. Caching names rather than re-wiring full
// domain.Member/ast.Expression values keeps the cache a read-through
// response projection, exactly the role the teacher's GridCacheEntry
// plays for pre-aggregated grids.
type RoleEntry struct {
	DimRoleGid domain.Gid `json:"dim_role_gid"`
	MemberGid  domain.Gid `json:"member_gid,omitempty"`
	Name       string     `json:"name"`
	IsFormula  bool       `json:"is_formula,omitempty"`
}

// AxisEntry is one materialized axis: its ordinal position and the
// tuples (each a row of RoleEntry) the axis resolved to.
type AxisEntry struct {
	Number int           `json:"number"`
	Tuples [][]RoleEntry `json:"tuples"`
}

// CellEntry is the JSON projection of a domain.CellValue.
type CellEntry struct {
	Kind domain.CellValueKind `json:"kind"`
	Num  float64              `json:"num,omitempty"`
	Str  string               `json:"str,omitempty"`
}

// Entry is the cached unit: the evaluated axes plus the row-major cell
// grid, and the Unix timestamp it was produced at.
type Entry struct {
	CreatedAtUnix int64       `json:"created_at_unix"`
	Axes          []AxisEntry `json:"axes"`
	Cells         []CellEntry `json:"cells"`
}

// NewEntry projects axes/cells (as produced by query.Result, passed
// field-by-field to avoid an import cycle: query already imports
// nothing from resultcache, and resultcache stays a leaf so either
// ordering of imports would work, but passing fields keeps the
// dependency direction obviously acyclic) into a cacheable Entry.
func NewEntry(createdAtUnix int64, axes []AxisSnapshot, cells []domain.CellValue) *Entry {
	e := &Entry{CreatedAtUnix: createdAtUnix, Axes: make([]AxisEntry, len(axes)), Cells: make([]CellEntry, len(cells))}
	for i, a := range axes {
		tuples := make([][]RoleEntry, len(a.Tuples))
		for j, t := range a.Tuples {
			roles := make([]RoleEntry, len(t.Roles))
			for k, r := range t.Roles {
				if r.IsFormula {
					roles[k] = RoleEntry{DimRoleGid: r.FormulaDimRoleGid, IsFormula: true, Name: fmt.Sprintf("Formula(%d)", r.FormulaGid)}
					continue
				}
				roles[k] = RoleEntry{DimRoleGid: r.DimRole.Gid, MemberGid: r.Member.Gid, Name: r.Member.Name}
			}
			tuples[j] = roles
		}
		e.Axes[i] = AxisEntry{Number: a.Number, Tuples: tuples}
	}
	for i, c := range cells {
		e.Cells[i] = CellEntry{Kind: c.Kind, Num: c.Num, Str: c.Str}
	}
	return e
}

// AxisSnapshot is the subset of query.Axis/domain.Set NewEntry needs;
// callers pass query.Result's Axes through this shape rather than
// resultcache importing the query package.
type AxisSnapshot struct {
	Number int
	Tuples []domain.Tuple
}

// L2 is the Redis-backed tier: get/set raw envelope bytes by key.
// Cross-node invalidation is published by Cache, not by L2.
type L2 struct {
	client     *redis.Client
	defaultTTL time.Duration
}

func NewL2(client *redis.Client, defaultTTL time.Duration) *L2 {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &L2{client: client, defaultTTL: defaultTTL}
}

func (l *L2) get(ctx context.Context, key Key) (*Entry, bool, error) {
	if l.client == nil {
		return nil, false, nil
	}
	raw, err := l.client.Get(ctx, key.redisKey()).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("resultcache: redis get: %w", err)
	}
	payload, err := decodeEnvelope(raw)
	if err != nil {
		return nil, false, err
	}
	var e Entry
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, false, fmt.Errorf("resultcache: decode entry: %w", err)
	}
	return &e, true, nil
}

func (l *L2) set(ctx context.Context, key Key, e *Entry, ttl time.Duration) error {
	if l.client == nil {
		return nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("resultcache: encode entry: %w", err)
	}
	if ttl <= 0 {
		ttl = l.defaultTTL
	}
	return l.client.Set(ctx, key.redisKey(), encodeEnvelope(payload), ttl).Err()
}

// InvalidationEvent is broadcast over Redis Pub/Sub so every node
// purges the affected key from its L1, mirroring the teacher's
// plan-scoped TieredGridCache.InvalidateByAtomRevision broadcast.
type InvalidationEvent struct {
	RedisKey     string `json:"redis_key"`
	SourceNodeID string `json:"source_node_id"`
}

// Cache is the L1 (in-process LRU) + L2 (Redis) tiered cache, with a
// Pub/Sub invalidation channel all nodes subscribe to.
type Cache struct {
	l1      *lru.Cache[string, *Entry]
	l2      *L2
	redis   *redis.Client
	channel string
	nodeID  string
}

// New builds a Cache. l1Size <= 0 defaults to 1024 entries; channel
// empty defaults to "mdx-result-cache:invalidate".
func New(l2 *L2, redisClient *redis.Client, l1Size int, channel, nodeID string) (*Cache, error) {
	if l1Size <= 0 {
		l1Size = 1024
	}
	if channel == "" {
		channel = "mdx-result-cache:invalidate"
	}
	if nodeID == "" {
		nodeID = "node-unknown"
	}
	l1, err := lru.New[string, *Entry](l1Size)
	if err != nil {
		return nil, err
	}
	return &Cache{l1: l1, l2: l2, redis: redisClient, channel: channel, nodeID: nodeID}, nil
}

// StartInvalidationSubscriber starts a background goroutine purging L1
// entries named by incoming invalidation events. Call once per process
// after New; it returns immediately if redisClient is nil (tests and
// single-process deployments run L1-only).
func (c *Cache) StartInvalidationSubscriber(ctx context.Context) {
	if c.redis == nil {
		return
	}
	ps := c.redis.Subscribe(ctx, c.channel)
	go func() {
		for {
			msg, err := ps.ReceiveMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("resultcache: pubsub receive error: %v", err)
				time.Sleep(time.Second)
				continue
			}
			var ev InvalidationEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("resultcache: invalidation event unmarshal error: %v", err)
				continue
			}
			if ev.RedisKey == "*" {
				c.l1.Purge()
				continue
			}
			c.l1.Remove(ev.RedisKey)
		}
	}()
}

// Get checks L1 then L2, populating L1 on an L2 hit.
func (c *Cache) Get(ctx context.Context, key Key) (*Entry, bool, error) {
	rk := key.redisKey()
	if e, ok := c.l1.Get(rk); ok {
		return e, true, nil
	}
	e, found, err := c.l2.get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	c.l1.Add(rk, e)
	return e, true, nil
}

// Set writes through L1 and L2.
func (c *Cache) Set(ctx context.Context, key Key, e *Entry, ttl time.Duration) error {
	if err := c.l2.set(ctx, key, e, ttl); err != nil {
		return err
	}
	c.l1.Add(key.redisKey(), e)
	return nil
}

// Invalidate purges key from L1 locally and publishes an invalidation
// event so every other node purges it too.
func (c *Cache) Invalidate(ctx context.Context, key Key) error {
	rk := key.redisKey()
	c.l1.Remove(rk)

	if c.redis == nil {
		return nil
	}
	ev := InvalidationEvent{RedisKey: rk, SourceNodeID: c.nodeID}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.redis.Publish(ctx, c.channel, b).Err()
}

// InvalidateAll drops every local L1 entry, used when MetaCache.Reload
// runs and every cached result may now reflect stale metadata.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	c.l1.Purge()
	if c.redis == nil {
		return nil
	}
	ev := InvalidationEvent{RedisKey: "*", SourceNodeID: c.nodeID}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.redis.Publish(ctx, c.channel, b).Err()
}
