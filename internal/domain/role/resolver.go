package role

import (
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Default bucket levels. Levels between buckets inherit the nearest bucket
// below; levels below the lowest bucket fall back to it.
const (
	LevelTrainee  = 1
	LevelOperator = 3
	LevelTeamLead = 5
	LevelManager  = 7
	LevelAdmin    = 9
)

const (
	cacheTTL     = 10 * time.Minute
	cacheCleanup = 30 * time.Minute
)

// Resolver answers "what can a user at this role level do", walking the
// sparse bucket ladder and applying per-user overrides. Resolution is pure,
// so results are memoized in a TTL cache keyed by level and override hash.
type Resolver struct {
	buckets map[int]PermissionSet
	levels  []int
	cache   *gocache.Cache
}

func NewResolver() *Resolver {
	r := &Resolver{
		buckets: defaultBuckets(),
		cache:   gocache.New(cacheTTL, cacheCleanup),
	}
	for lvl := range r.buckets {
		r.levels = append(r.levels, lvl)
	}
	sort.Ints(r.levels)
	return r
}

// defaultBuckets is the sparse permission ladder. Each bucket is dense over
// all categories and actions; unmentioned grants are explicit falses.
func defaultBuckets() map[int]PermissionSet {
	grant := func(grants map[string][]string) PermissionSet {
		set := make(PermissionSet, len(Categories))
		for _, cat := range Categories {
			m := make(map[string]bool, len(Actions))
			for _, a := range Actions {
				m[a] = false
			}
			set[cat] = m
		}
		for cat, actions := range grants {
			for _, a := range actions {
				set[cat][a] = true
			}
		}
		return set
	}

	return map[int]PermissionSet{
		LevelTrainee: grant(map[string][]string{
			CategoryClaims: {ActionView},
		}),
		LevelOperator: grant(map[string][]string{
			CategoryClaims: {ActionView, ActionEdit},
		}),
		LevelTeamLead: grant(map[string][]string{
			CategoryClaims:  {ActionView, ActionEdit, ActionAssign},
			CategoryReports: {ActionView},
			CategoryQA:      {ActionView, ActionEdit},
		}),
		LevelManager: grant(map[string][]string{
			CategoryClaims:  {ActionView, ActionEdit, ActionAssign, ActionApprove},
			CategoryReports: {ActionView, ActionEdit},
			CategoryUsers:   {ActionView, ActionEdit},
			CategoryQA:      {ActionView, ActionEdit, ActionApprove},
		}),
		LevelAdmin: grant(map[string][]string{
			CategoryClaims:   {ActionView, ActionEdit, ActionAssign, ActionApprove},
			CategoryReports:  {ActionView, ActionEdit, ActionAssign, ActionApprove},
			CategoryUsers:    {ActionView, ActionEdit, ActionAssign, ActionApprove},
			CategorySettings: {ActionView, ActionEdit, ActionAssign, ActionApprove},
			CategoryQA:       {ActionView, ActionEdit, ActionAssign, ActionApprove},
		}),
	}
}

// Levels returns the defined bucket levels in ascending order.
func (r *Resolver) Levels() []int {
	out := make([]int, len(r.levels))
	copy(out, r.levels)
	return out
}

// bucketFor finds the nearest defined bucket at or below the level. Levels
// below the lowest bucket use the lowest.
func (r *Resolver) bucketFor(level int) int {
	idx := sort.SearchInts(r.levels, level+1) - 1
	if idx < 0 {
		idx = 0
	}
	return r.levels[idx]
}

// Resolve returns the dense permission set for the level with overrides
// applied. The returned set is the caller's to keep.
func (r *Resolver) Resolve(level int, overrides Overrides) PermissionSet {
	key := cacheKey(level, overrides)
	if hit, ok := r.cache.Get(key); ok {
		return hit.(PermissionSet).clone()
	}

	set := r.buckets[r.bucketFor(level)].clone()
	for cat, actions := range overrides {
		m, ok := set[cat]
		if !ok {
			continue
		}
		for a, allowed := range actions {
			if _, known := m[a]; known {
				m[a] = allowed
			}
		}
	}

	r.cache.Set(key, set.clone(), gocache.DefaultExpiration)
	return set
}

// cacheKey hashes the overrides in sorted order so equal patches share an
// entry.
func cacheKey(level int, overrides Overrides) string {
	h := fnv.New64a()

	cats := make([]string, 0, len(overrides))
	for cat := range overrides {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	for _, cat := range cats {
		actions := make([]string, 0, len(overrides[cat]))
		for a := range overrides[cat] {
			actions = append(actions, a)
		}
		sort.Strings(actions)
		for _, a := range actions {
			fmt.Fprintf(h, "%s.%s=%t;", cat, a, overrides[cat][a])
		}
	}
	return fmt.Sprintf("%d|%x", level, h.Sum64())
}
