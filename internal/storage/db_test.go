package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateIndexTimestampsAreNullable(t *testing.T) {
	data, err := schemaFS.ReadFile("schema/002_candidate_index.sql")
	require.NoError(t, err)
	schema := string(data)

	for _, col := range []string{"updated_at", "source_updated_at"} {
		var def string
		for _, line := range strings.Split(schema, "\n") {
			if fields := strings.Fields(line); len(fields) > 1 && fields[0] == col {
				def = line
			}
		}
		require.NotEmpty(t, def, col)
		assert.NotContains(t, strings.ToUpper(def), "NOT NULL", col)
		// Tables created by an older schema get the constraint dropped.
		assert.Contains(t, schema, "ALTER COLUMN "+col+" DROP NOT NULL")
	}
}
