package prism

import (
	"testing"

	"trialcore/testutil"
)

func TestPrismDoesNotImportInfra(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InfraImportForbidden, "prism builds documents without storage")
}
