package blob

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// layerRule forbids packages under from importing anything under to.
// Packages under except are exempt.
type layerRule struct {
	name   string
	from   string
	to     []string
	except []string
}

var layerRules = []layerRule{
	{
		name:   "blob drivers are only constructed by the blob factory",
		from:   "virsift",
		to:     []string{"virsift/internal/infra/blob"},
		except: []string{"virsift/internal/blob", "virsift/internal/infra/blob"},
	},
	{
		name: "the record model does not depend on the engine",
		from: "virsift/pkg/domain",
		to:   []string{"virsift/internal", "virsift/cmd"},
	},
	{
		name: "the curation engine does not know its exports or CLI",
		from: "virsift/internal/core",
		to:   []string{"virsift/internal/adapters", "virsift/internal/blob", "virsift/cmd"},
	},
}

func underPath(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func (r layerRule) violations(pkg *packages.Package) []string {
	if !underPath(pkg.PkgPath, r.from) {
		return nil
	}
	for _, e := range r.except {
		if underPath(pkg.PkgPath, e) {
			return nil
		}
	}
	var out []string
	for imp := range pkg.Imports {
		for _, to := range r.to {
			if underPath(imp, to) {
				out = append(out, pkg.PkgPath+" -> "+imp)
			}
		}
	}
	return out
}

func TestPackageLayering(t *testing.T) {
	pkgs, err := packages.Load(&packages.Config{Mode: packages.NeedName | packages.NeedImports}, "virsift/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	if len(pkgs) == 0 {
		t.Fatalf("no packages loaded")
	}
	for _, rule := range layerRules {
		var found []string
		for _, pkg := range pkgs {
			found = append(found, rule.violations(pkg)...)
		}
		sort.Strings(found)
		for _, v := range found {
			t.Errorf("%s: %s", rule.name, v)
		}
	}
}

func TestLayerRuleMatching(t *testing.T) {
	rule := layerRules[0]
	cases := []struct {
		pkg     string
		imports []string
		want    int
	}{
		{"virsift/internal/adapters/exports", []string{"virsift/internal/infra/blob/fs"}, 1},
		{"virsift/internal/adapters/exports", []string{"virsift/internal/infra/blobcache"}, 0},
		{"virsift/internal/blob", []string{"virsift/internal/infra/blob/s3"}, 0},
		{"virsift/internal/infra/blob/s3", []string{"virsift/internal/infra/blob/core"}, 0},
		{"example.com/other", []string{"virsift/internal/infra/blob"}, 0},
	}
	for _, tc := range cases {
		pkg := &packages.Package{PkgPath: tc.pkg, Imports: make(map[string]*packages.Package)}
		for _, imp := range tc.imports {
			pkg.Imports[imp] = nil
		}
		if got := rule.violations(pkg); len(got) != tc.want {
			t.Fatalf("%s importing %v: expected %d violations, got %v", tc.pkg, tc.imports, tc.want, got)
		}
	}
}
