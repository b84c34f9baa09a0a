package keys

import (
	"strings"
	"testing"
)

func TestCacheKeyDeterministic(t *testing.T) {
	locs := []string{"out/app.js", "src/a.js", "src/b.js"}
	if CacheKey("script", locs) != CacheKey("script", locs) {
		t.Fatalf("same locations produced different keys")
	}
}

func TestCacheKeyShape(t *testing.T) {
	k := CacheKey("sprite", []string{"out/icons.png"})
	if !strings.HasPrefix(k, "sprite:") {
		t.Fatalf("key %q lacks kind prefix", k)
	}
	if len(k) != len("sprite")+1+16 {
		t.Fatalf("key length = %d, want %d", len(k), len("sprite")+1+16)
	}
}

func TestCacheKeySensitiveToLocations(t *testing.T) {
	base := CacheKey("script", []string{"out/app.js", "src/a.js"})
	cases := map[string][]string{
		"extra source":    {"out/app.js", "src/a.js", "src/b.js"},
		"other output":    {"out/other.js", "src/a.js"},
		"reordered":       {"src/a.js", "out/app.js"},
		"shifted boundary": {"out/app.jssrc", "/a.js"},
	}
	for name, locs := range cases {
		if CacheKey("script", locs) == base {
			t.Errorf("%s: collided with base key", name)
		}
	}
}

func TestCacheKeyPrefixSeparatesKinds(t *testing.T) {
	locs := []string{"out/x"}
	if CacheKey("script", locs) == CacheKey("sprite", locs) {
		t.Fatalf("kinds share a key for identical locations")
	}
}
