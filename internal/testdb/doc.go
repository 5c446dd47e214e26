//go:build integration

// Package testdb provides utilities for database integration tests.
//
// Tests that exercise a single store run inside WithTx, which rolls the
// transaction back when the test function returns:
//
//	func TestStageStore(t *testing.T) {
//	    db := testdb.GetTestDBWithT(t)
//	    testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	        s := postgres.NewPostgresStageStore(tx, nil)
//	        // ...
//	    })
//	}
//
// Tests that exercise services, which begin their own transactions, use
// GetTestDBWithT followed by ResetTables instead.
//
// The schema is applied once per test binary from the embedded goose
// migrations of internal/platform/postgres.
package testdb
