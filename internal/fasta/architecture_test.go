package fasta

import (
	"testing"

	"virsift/testutil"
)

func TestFASTAOnlyImportsDomain(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.ModuleImportsExcept("virsift/pkg/domain"), "fasta sits below core")
}
