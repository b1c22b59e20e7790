package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleCatalog = `{
  "productos": [
    {"nombre_oficial": "Café", "alias": ["cafe", "cafecito"], "precio": 50},
    {"nombre_oficial": "Brownie", "alias": [], "precio": 35}
  ]
}`

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "products.json")
	if err := os.WriteFile(path, []byte(sampleCatalog), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestLoadAndLookup(t *testing.T) {
	t.Parallel()

	c, err := Load(writeCatalog(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cases := map[string]int{
		"Café":       50,
		" café ":     50,
		"CAFE":       50,
		"cafecito":   50,
		"brownie":    35,
		"Cappuccino": PriceNotFound,
		"":           PriceNotFound,
	}
	for name, want := range cases {
		if got := c.Lookup(name); got != want {
			t.Fatalf("Lookup(%q) = %d, want %d", name, got, want)
		}
	}
}

func TestResolveReturnsOfficialName(t *testing.T) {
	t.Parallel()

	c := New([]Product{{Name: "Café", Aliases: []string{"cafe"}, Price: 50}})
	p, ok := c.Resolve(" Cafe ")
	if !ok {
		t.Fatal("expected product")
	}
	if p.Name != "Café" || p.Price != 50 {
		t.Fatalf("unexpected product: %#v", p)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing catalog")
	}
}
