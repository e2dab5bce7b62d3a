package migration

import (
	"io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(migrationsFS, "sql/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range names {
		base := strings.TrimPrefix(name, "sql/")
		switch {
		case strings.HasSuffix(base, ".up.sql"):
			ups[strings.TrimSuffix(base, ".up.sql")] = true
		case strings.HasSuffix(base, ".down.sql"):
			downs[strings.TrimSuffix(base, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file %s", name)
		}
	}
	assert.Equal(t, ups, downs)

	versions := make([]string, 0, len(ups))
	for v := range ups {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	assert.True(t, strings.HasPrefix(versions[0], "000001_"))
}

func TestDocumentsSchemaGuardsNonDraftRows(t *testing.T) {
	raw, err := fs.ReadFile(migrationsFS, "sql/000003_documents.up.sql")
	require.NoError(t, err)
	sql := string(raw)

	assert.Contains(t, sql, "uq_documents_tenant_type_number")
	assert.Contains(t, sql, "BEFORE UPDATE OR DELETE ON documents")
	assert.Contains(t, sql, "chk_documents_number_status")
	assert.Contains(t, sql, "IF OLD.document_status <> 'draft' THEN")
	assert.Contains(t, sql, "('draft', 'final', 'cancelled', 'voided')")
}
