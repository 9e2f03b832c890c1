package blob

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// importRule forbids packages outside allowed from importing anything under
// prefix.
type importRule struct {
	prefix  string
	allowed []string
}

var importRules = []importRule{
	// Blob drivers are reached through blob.Open and the Store interface.
	{prefix: "farmledger/internal/infra/blob", allowed: []string{"farmledger/internal/blob", "farmledger/internal/infra/blob"}},
	// The domain package stays free of internal dependencies.
	{prefix: "farmledger/internal", allowed: []string{"farmledger/internal", "farmledger/cmd"}},
}

func TestImportBoundaries(t *testing.T) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "farmledger/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	if len(pkgs) == 0 {
		t.Skipf("no packages loaded")
	}

	seen := make(map[string]struct{})
	for _, pkg := range pkgs {
		for _, rule := range importRules {
			if hasAnyPrefix(pkg.PkgPath, rule.allowed) {
				continue
			}
			for importPath := range pkg.Imports {
				if underPrefix(importPath, rule.prefix) {
					seen[pkg.PkgPath+": "+importPath] = struct{}{}
				}
			}
		}
	}

	if len(seen) > 0 {
		violations := make([]string, 0, len(seen))
		for v := range seen {
			violations = append(violations, v)
		}
		sort.Strings(violations)
		for _, v := range violations {
			t.Errorf("forbidden import: %s", v)
		}
		t.Fatalf("found %d forbidden imports", len(violations))
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if underPrefix(path, p) {
			return true
		}
	}
	return false
}

func underPrefix(importPath, prefix string) bool {
	return importPath == prefix || strings.HasPrefix(importPath, prefix+"/")
}
