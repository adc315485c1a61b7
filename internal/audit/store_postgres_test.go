package audit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"prepguard/migrations"
)

// Global retention sweeps log data-delete-complete entries with no user
// scope, and Append maps every empty optional field to NULL. The schema must
// keep those columns nullable: an insert rejected by a NOT NULL constraint
// would be swallowed by the fail-open publisher and the entry would silently
// vanish from cleanup statistics.
func TestSchemaKeepsOptionalEntryColumnsNullable(t *testing.T) {
	raw, err := migrations.FS.ReadFile("0001_init.sql")
	require.NoError(t, err)

	table := tableDefinition(t, string(raw), "audit_entries")
	for _, column := range []string{"user_id", "session_id", "ip", "user_agent"} {
		line := columnDefinition(t, table, column)
		require.NotContains(t, line, "NOT NULL", "audit_entries.%s must accept NULL", column)
	}
}

func tableDefinition(t *testing.T, schema, name string) string {
	t.Helper()
	marker := "CREATE TABLE IF NOT EXISTS " + name + " ("
	start := strings.Index(schema, marker)
	require.NotEqual(t, -1, start, "table %s not found in schema", name)
	body := schema[start+len(marker):]
	end := strings.Index(body, ");")
	require.NotEqual(t, -1, end, "table %s definition not terminated", name)
	return body[:end]
}

func columnDefinition(t *testing.T, table, column string) string {
	t.Helper()
	for _, line := range strings.Split(table, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), column+" ") {
			return line
		}
	}
	t.Fatalf("column %s not found in table definition", column)
	return ""
}
