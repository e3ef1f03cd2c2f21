package domain

import (
	"testing"

	"chemledger/testutil"
)

// TestDomainImportsStandardLibraryOnly keeps the record model free of any
// module or third-party dependency.
func TestDomainImportsStandardLibraryOnly(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AnyOf(testutil.InternalImportForbidden, testutil.ThirdPartyImportForbidden), "domain purity")
}
