//go:build integration

package migrations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbyte-inspect/inspection-engine/pkg/testhelpers"
)

// Test_001_InitialSchema verifies the base tables and their dedup
// constraints exist after migration.
func Test_001_InitialSchema(t *testing.T) {
	testDB := testhelpers.GetTestDB(t)
	ctx := context.Background()

	for _, table := range []string{"plc_snapshots", "inspections", "inspection_photos", "machine_aggregates"} {
		var exists bool
		err := testDB.DB.Pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_name = $1
			)`, table).Scan(&exists)
		require.NoError(t, err, "Failed to query table information")
		assert.True(t, exists, "table %s should exist", table)
	}

	// content_hash uniqueness is what makes feed re-reads idempotent.
	var hashUnique bool
	err := testDB.DB.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_constraint
			WHERE conname = 'plc_snapshots_content_hash_key'
			AND contype = 'u'
		)`).Scan(&hashUnique)
	require.NoError(t, err)
	assert.True(t, hashUnique, "plc_snapshots.content_hash should be unique")

	// The normalized natural-key index guards against duplicate inspections.
	var nkIndex bool
	err = testDB.DB.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_indexes
			WHERE tablename = 'inspections'
			AND indexname = 'idx_inspections_natural_key'
		)`).Scan(&nkIndex)
	require.NoError(t, err)
	assert.True(t, nkIndex, "idx_inspections_natural_key index should exist")

	var pathUnique bool
	err = testDB.DB.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM pg_constraint
			WHERE conname = 'inspection_photos_photo_path_key'
			AND contype = 'u'
		)`).Scan(&pathUnique)
	require.NoError(t, err)
	assert.True(t, pathUnique, "inspection_photos.photo_path should be unique")
}
