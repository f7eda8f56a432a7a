package role

import "testing"

func TestResolveExactBucket(t *testing.T) {
	r := NewResolver()
	set := r.Resolve(LevelOperator, nil)
	if !set.Allowed(CategoryClaims, ActionEdit) {
		t.Error("operator must edit claims")
	}
	if set.Allowed(CategoryUsers, ActionView) {
		t.Error("operator must not see users")
	}
}

func TestResolveWalksDownToNearestBucket(t *testing.T) {
	r := NewResolver()

	// Level 4 has no bucket of its own; it inherits level 3.
	four := r.Resolve(4, nil)
	three := r.Resolve(LevelOperator, nil)
	for _, cat := range Categories {
		for _, a := range Actions {
			if four.Allowed(cat, a) != three.Allowed(cat, a) {
				t.Errorf("level 4 differs from level 3 at %s.%s", cat, a)
			}
		}
	}

	// Level 8 inherits level 7, not level 9.
	if r.Resolve(8, nil).Allowed(CategorySettings, ActionEdit) {
		t.Error("level 8 must not get admin settings access")
	}
	if !r.Resolve(8, nil).Allowed(CategoryUsers, ActionEdit) {
		t.Error("level 8 must get manager user access")
	}
}

func TestResolveBelowLowestBucket(t *testing.T) {
	r := NewResolver()
	zero := r.Resolve(0, nil)
	if !zero.Allowed(CategoryClaims, ActionView) {
		t.Error("sub-trainee levels fall back to the trainee bucket")
	}
	if zero.Allowed(CategoryClaims, ActionEdit) {
		t.Error("trainee bucket must not grant edit")
	}
}

func TestResolveReturnsAllCategories(t *testing.T) {
	r := NewResolver()
	set := r.Resolve(LevelTrainee, nil)
	if len(set) != len(Categories) {
		t.Fatalf("categories = %d, want %d", len(set), len(Categories))
	}
	for _, cat := range Categories {
		actions, ok := set[cat]
		if !ok {
			t.Fatalf("category %s missing from resolved set", cat)
		}
		if len(actions) != len(Actions) {
			t.Errorf("category %s has %d actions, want %d", cat, len(actions), len(Actions))
		}
	}
}

func TestOverridesWin(t *testing.T) {
	r := NewResolver()

	// Grant something the bucket lacks.
	granted := r.Resolve(LevelTrainee, Overrides{
		CategoryReports: {ActionView: true},
	})
	if !granted.Allowed(CategoryReports, ActionView) {
		t.Error("grant override ignored")
	}

	// Revoke something the bucket has.
	revoked := r.Resolve(LevelAdmin, Overrides{
		CategorySettings: {ActionEdit: false},
	})
	if revoked.Allowed(CategorySettings, ActionEdit) {
		t.Error("revoke override ignored")
	}
	if !revoked.Allowed(CategorySettings, ActionView) {
		t.Error("revoke must not touch other actions")
	}
}

func TestUnknownOverrideKeysIgnored(t *testing.T) {
	r := NewResolver()
	set := r.Resolve(LevelOperator, Overrides{
		"bogus-category": {ActionView: true},
		CategoryClaims:   {"bogus-action": true},
	})
	if _, ok := set["bogus-category"]; ok {
		t.Error("unknown category leaked into resolved set")
	}
	if _, ok := set[CategoryClaims]["bogus-action"]; ok {
		t.Error("unknown action leaked into resolved set")
	}
}

func TestCachedResultIsIsolated(t *testing.T) {
	r := NewResolver()
	first := r.Resolve(LevelOperator, nil)
	first[CategoryClaims][ActionView] = false

	second := r.Resolve(LevelOperator, nil)
	if !second.Allowed(CategoryClaims, ActionView) {
		t.Error("mutating a resolved set poisoned the cache")
	}
}

func TestSameOverridesShareCacheKey(t *testing.T) {
	a := cacheKey(5, Overrides{CategoryClaims: {ActionEdit: true, ActionView: false}})
	b := cacheKey(5, Overrides{CategoryClaims: {ActionView: false, ActionEdit: true}})
	if a != b {
		t.Error("map iteration order changed the cache key")
	}
	c := cacheKey(5, Overrides{CategoryClaims: {ActionEdit: false, ActionView: false}})
	if a == c {
		t.Error("different overrides collided")
	}
}
