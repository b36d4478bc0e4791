package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type captureFatal struct {
	msg string
}

func (c *captureFatal) Fatalf(format string, args ...any) { c.msg = fmt.Sprintf(format, args...) }

func writeGo(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestPredicates(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"virsift/internal/core", true},
		{"crypto/internal/fips140/sha256", false},
		{"virsift/pkg/domain", false},
		{"golang.org/x/text/unicode/norm", false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
	only := ModuleImportsExcept("virsift/pkg/domain")
	if only("virsift/pkg/domain") || !only("virsift/internal/core") || only("github.com/shenwei356/bio/seq") {
		t.Fatalf("ModuleImportsExcept misclassified an import")
	}
}

func TestDirectImportViolationsSkipsTestsAndSubdirs(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "a.go", "package tmp\nimport \"fmt\"\nfunc A() { fmt.Println() }\n")
	writeGo(t, dir, "a_test.go", "package tmp\nimport _ \"virsift/internal/core\"\n")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeGo(t, filepath.Join(dir, "sub"), "b.go", "package sub\nimport _ \"virsift/internal/core\"\n")
	writeGo(t, dir, "notes.txt", "import \"virsift/internal/core\"")

	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 0 {
		t.Fatalf("unexpected violations %v", viols)
	}
	AssertNoDirectImports(t, dir, InternalImportForbidden, "clean package")
}

func TestDirectImportViolationsReported(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "bad.go", "package tmp\nimport (\n\t_ \"virsift/internal/core\"\n\t\"fmt\"\n)\nvar _ = fmt.Sprint\n")
	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "virsift/internal/core (in bad.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}
	var c captureFatal
	failIfViolations(&c, "forbidden direct imports", "layering", viols)
	if !strings.Contains(c.msg, "layering") || !strings.Contains(c.msg, "bad.go") {
		t.Fatalf("unexpected failure message %q", c.msg)
	}
}

func TestDirectImportViolationsParseError(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "broken.go", "package\n")
	if _, err := directImportViolations(dir, InternalImportForbidden); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := directImportViolations(filepath.Join(dir, "missing"), InternalImportForbidden); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestTransitiveDependencyViolations(t *testing.T) {
	orig := goListDeps
	t.Cleanup(func() { goListDeps = orig })

	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\nvirsift/pkg/domain\n\nvirsift/internal/core\n"), nil
	}
	viols, _, err := transitiveDependencyViolations("./...", InternalImportForbidden)
	if err != nil || len(viols) != 1 || viols[0] != "virsift/internal/core" {
		t.Fatalf("unexpected result %v %v", viols, err)
	}

	goListDeps = func(string) ([]byte, error) { return []byte("boom"), errors.New("exit 1") }
	if _, out, err := transitiveDependencyViolations("./...", InternalImportForbidden); err == nil || string(out) != "boom" {
		t.Fatalf("expected go list failure, got %v %q", err, out)
	}
}
