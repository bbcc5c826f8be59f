// Package metacache holds a read-mostly, RWMutex-guarded snapshot of
// cube metadata: members and levels keyed by gid. It is populated once
// at startup via MetaClient and refreshed wholesale on a
// SchemaReloaded event, the same read-heavy/write-rare shape the
// teacher's CachedMetadataResolver uses for dimension metadata.
package metacache

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"mdxgrid/evaluator/internal/domain"
)

// MetaClient is the subset of the metadata RPC facade needed to
// (re)populate a Cache.
type MetaClient interface {
	AllMembers(ctx context.Context) ([]domain.Member, error)
	AllLevels(ctx context.Context) ([]domain.Level, error)
}

// Cache is safe for concurrent use: readers take the read lock,
// Init/Reload take the write lock and swap the maps wholesale.
type Cache struct {
	mu sync.RWMutex

	members map[domain.Gid]domain.Member
	levels  map[domain.Gid]domain.Level

	// childrenOf and hierarchyLevels are derived indexes rebuilt
	// alongside members/levels on every load.
	childrenOf      map[domain.Gid][]domain.Member
	hierarchyLevels map[domain.Gid]map[int]domain.Level
}

func New() *Cache {
	return &Cache{
		members:         make(map[domain.Gid]domain.Member),
		levels:          make(map[domain.Gid]domain.Level),
		childrenOf:      make(map[domain.Gid][]domain.Member),
		hierarchyLevels: make(map[domain.Gid]map[int]domain.Level),
	}
}

// Init performs the first full load from client.
func (c *Cache) Init(ctx context.Context, client MetaClient) error {
	return c.Reload(ctx, client)
}

// Reload fetches a fresh full snapshot from client and atomically
// swaps it in. A failed fetch leaves the existing snapshot untouched
// so a transient metadata-service outage doesn't blank the cache out
// from under in-flight queries.
func (c *Cache) Reload(ctx context.Context, client MetaClient) error {
	members, err := client.AllMembers(ctx)
	if err != nil {
		return fmt.Errorf("metacache: fetch members: %w", err)
	}
	levels, err := client.AllLevels(ctx)
	if err != nil {
		return fmt.Errorf("metacache: fetch levels: %w", err)
	}

	memberMap := make(map[domain.Gid]domain.Member, len(members))
	childrenOf := make(map[domain.Gid][]domain.Member, len(members))
	for _, m := range members {
		memberMap[m.Gid] = m
		if m.ParentGid != 0 {
			childrenOf[m.ParentGid] = append(childrenOf[m.ParentGid], m)
		}
	}
	for _, children := range childrenOf {
		sort.Slice(children, func(i, j int) bool { return children[i].Gid < children[j].Gid })
	}

	levelMap := make(map[domain.Gid]domain.Level, len(levels))
	hierarchyLevels := make(map[domain.Gid]map[int]domain.Level)
	for _, l := range levels {
		levelMap[l.Gid] = l
		if hierarchyLevels[l.HierarchyGid] == nil {
			hierarchyLevels[l.HierarchyGid] = make(map[int]domain.Level)
		}
		hierarchyLevels[l.HierarchyGid][l.Ordinal] = l
	}

	c.mu.Lock()
	c.members = memberMap
	c.levels = levelMap
	c.childrenOf = childrenOf
	c.hierarchyLevels = hierarchyLevels
	c.mu.Unlock()
	return nil
}

func (c *Cache) GetMember(gid domain.Gid) (domain.Member, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.members[gid]
	if !ok {
		return domain.Member{}, fmt.Errorf("metacache: no member with gid %s", gid)
	}
	return m, nil
}

func (c *Cache) GetLevel(gid domain.Gid) (domain.Level, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.levels[gid]
	if !ok {
		return domain.Level{}, fmt.Errorf("metacache: no level with gid %s", gid)
	}
	return l, nil
}

func (c *Cache) GetHierarchyLevel(hierarchyGid domain.Gid, ordinal int) (domain.Level, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	byOrdinal, ok := c.hierarchyLevels[hierarchyGid]
	if !ok {
		return domain.Level{}, fmt.Errorf("metacache: no hierarchy with gid %s", hierarchyGid)
	}
	l, ok := byOrdinal[ordinal]
	if !ok {
		return domain.Level{}, fmt.Errorf("metacache: hierarchy %s has no level at ordinal %d", hierarchyGid, ordinal)
	}
	return l, nil
}

// ChildMembers returns memberGid's children in gid order.
func (c *Cache) ChildMembers(memberGid domain.Gid) ([]domain.Member, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.Member(nil), c.childrenOf[memberGid]...), nil
}

// MembersAtLevel returns every member whose LevelGid is levelGid, in
// gid order.
func (c *Cache) MembersAtLevel(levelGid domain.Gid) ([]domain.Member, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Member, 0)
	for _, m := range c.members {
		if m.LevelGid == levelGid {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Gid < out[j].Gid })
	return out, nil
}

// AncestorOnLevel walks memberGid's parent chain up to levelGid's
// ordinal, returning the ancestor found there. Returns an error if
// levelGid is not an ancestor level of memberGid (e.g. it's a
// descendant level, or a different hierarchy entirely).
func (c *Cache) AncestorOnLevel(memberGid domain.Gid, levelGid domain.Gid) (domain.Member, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	target, ok := c.levels[levelGid]
	if !ok {
		return domain.Member{}, fmt.Errorf("metacache: no level with gid %s", levelGid)
	}

	cur, ok := c.members[memberGid]
	if !ok {
		return domain.Member{}, fmt.Errorf("metacache: no member with gid %s", memberGid)
	}
	for {
		curLevel, ok := c.levels[cur.LevelGid]
		if !ok {
			return domain.Member{}, fmt.Errorf("metacache: member %s has unknown level %s", cur.Name, cur.LevelGid)
		}
		if curLevel.Gid == target.Gid {
			return cur, nil
		}
		if curLevel.Ordinal <= target.Ordinal || cur.ParentGid == 0 {
			return domain.Member{}, fmt.Errorf("metacache: level %s is not an ancestor level of member %s", target.Name, cur.Name)
		}
		parent, ok := c.members[cur.ParentGid]
		if !ok {
			return domain.Member{}, fmt.Errorf("metacache: member %s has unknown parent %s", cur.Name, cur.ParentGid)
		}
		cur = parent
	}
}

// ShiftAncestorAndFind implements ParallelPeriod's core machinery:
// find memberGid's ancestor at levelGid, shift that ancestor `periods`
// positions among its own level mates (gid order), then re-descend
// the exact child-index path from the original ancestor down to
// memberGid starting from the shifted ancestor.
func (c *Cache) ShiftAncestorAndFind(memberGid domain.Gid, levelGid domain.Gid, periods int) (domain.Member, error) {
	ancestor, err := c.AncestorOnLevel(memberGid, levelGid)
	if err != nil {
		return domain.Member{}, err
	}

	mates, err := c.MembersAtLevel(levelGid)
	if err != nil {
		return domain.Member{}, err
	}
	mates = siblingsSharingParent(mates, ancestor.ParentGid)

	idx := indexOf(mates, ancestor.Gid)
	if idx < 0 {
		return domain.Member{}, fmt.Errorf("metacache: ancestor %s not found among its level mates", ancestor.Name)
	}
	target := idx - periods
	if target < 0 || target >= len(mates) {
		return domain.Member{}, fmt.Errorf("metacache: shifted ancestor for %s is out of range", ancestor.Name)
	}
	shiftedAncestor := mates[target]

	path, err := c.childIndexPath(memberGid, ancestor.Gid)
	if err != nil {
		return domain.Member{}, err
	}
	return c.descendPath(shiftedAncestor.Gid, path)
}

func siblingsSharingParent(mates []domain.Member, parentGid domain.Gid) []domain.Member {
	out := make([]domain.Member, 0, len(mates))
	for _, m := range mates {
		if m.ParentGid == parentGid {
			out = append(out, m)
		}
	}
	return out
}

func indexOf(mates []domain.Member, gid domain.Gid) int {
	for i, m := range mates {
		if m.Gid == gid {
			return i
		}
	}
	return -1
}

func (c *Cache) childIndexPath(memberGid, ancestorGid domain.Gid) ([]int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	chain := []domain.Member{}
	cur, ok := c.members[memberGid]
	if !ok {
		return nil, fmt.Errorf("metacache: no member with gid %s", memberGid)
	}
	chain = append(chain, cur)
	for cur.Gid != ancestorGid {
		if cur.ParentGid == 0 {
			return nil, fmt.Errorf("metacache: member %s is not a descendant of %s", memberGid, ancestorGid)
		}
		parent, ok := c.members[cur.ParentGid]
		if !ok {
			return nil, fmt.Errorf("metacache: unknown parent %s", cur.ParentGid)
		}
		chain = append(chain, parent)
		cur = parent
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	indices := make([]int, 0, len(chain)-1)
	for i := 0; i < len(chain)-1; i++ {
		siblings := append([]domain.Member(nil), c.childrenOf[chain[i].Gid]...)
		idx := indexOf(siblings, chain[i+1].Gid)
		if idx < 0 {
			return nil, fmt.Errorf("metacache: member %s not found among children of %s", chain[i+1].Name, chain[i].Name)
		}
		indices = append(indices, idx)
	}
	return indices, nil
}

func (c *Cache) descendPath(startGid domain.Gid, path []int) (domain.Member, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cur, ok := c.members[startGid]
	if !ok {
		return domain.Member{}, fmt.Errorf("metacache: no member with gid %s", startGid)
	}
	for _, idx := range path {
		children := c.childrenOf[cur.Gid]
		if idx >= len(children) {
			return domain.Member{}, fmt.Errorf("metacache: no matching descendant under %s", cur.Name)
		}
		cur = children[idx]
	}
	return cur, nil
}
