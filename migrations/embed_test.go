package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, n := range names {
		switch {
		case strings.HasSuffix(n, ".up.sql"):
			ups[strings.TrimSuffix(n, ".up.sql")] = true
		case strings.HasSuffix(n, ".down.sql"):
			downs[strings.TrimSuffix(n, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file %s", n)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestSchemaCoversStores(t *testing.T) {
	var all strings.Builder
	names, err := fs.Glob(FS, "*.up.sql")
	require.NoError(t, err)
	for _, n := range names {
		b, err := fs.ReadFile(FS, n)
		require.NoError(t, err)
		all.Write(b)
	}
	for _, table := range []string{
		"journal_entries", "intervention_deliveries", "privacy_consents",
		"escalation_states", "escalation_level_history",
		"escalation_audit_records", "scheduled_interventions",
	} {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table, table)
	}
}
