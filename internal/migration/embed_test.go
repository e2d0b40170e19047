package migration

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(embeddedMigrations, migrationsDir)
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	assert.NotEmpty(t, ups)
	assert.Equal(t, ups, downs)
}

func TestLedgerMigrationDeclaresActiveBookingIndex(t *testing.T) {
	body, err := fs.ReadFile(embeddedMigrations, migrationsDir+"/000004_booking_active_slot.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "DROP INDEX IF EXISTS ux_payouts_booking_method_active")
	assert.Contains(t, string(body), "ON payouts (booking_id)\n")
	assert.Contains(t, string(body), "WHERE status <> 'rejected'")
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	assert.Error(t, RunMigrations(nil))
}
