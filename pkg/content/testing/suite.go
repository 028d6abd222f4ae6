// Package testing provides a conformance suite for content.Store
// implementations.
package testing

import (
	"context"
	"testing"

	"github.com/marmos91/godfs/pkg/content"
)

// StoreTestSuite is a comprehensive test suite for content.Store
// implementations. It tests the interface contract, not implementation
// details, so it runs unchanged against memory, filesystem and S3 stores.
//
// Usage:
//
//	func TestMyContentStore(t *testing.T) {
//	    suite := &contenttesting.StoreTestSuite{
//	        NewStore: func() content.Store {
//	            return myStore
//	        },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh store for each test.
	NewStore func() content.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("ReadOperations", suite.RunReadTests)
	t.Run("WriteOperations", suite.RunWriteTests)
}

func testContext() context.Context {
	return context.Background()
}

func (suite *StoreTestSuite) newStore(t *testing.T) content.Store {
	t.Helper()
	store := suite.NewStore()
	t.Cleanup(func() { _ = store.Close() })
	return store
}
