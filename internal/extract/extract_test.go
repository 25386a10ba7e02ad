package extract

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"migrator/internal/schema"
	"migrator/internal/scope"
)

func doc(t *testing.T, name string) *schema.Document {
	t.Helper()
	d, err := schema.Builtin().Document(name)
	require.NoError(t, err)
	return d
}

func TestQuery_SelectListMatchesLayoutWidth(t *testing.T) {
	t.Parallel()
	c, err := Default()
	require.NoError(t, err)
	reg := schema.Builtin()
	sc, err := scope.Parse("2025-06-01", "02")
	require.NoError(t, err)

	for _, name := range reg.Documents() {
		d, err := reg.Document(name)
		require.NoError(t, err)
		require.True(t, c.Has(name), name)

		q, err := c.Query(d, sc, "SBO_PROD")
		require.NoError(t, err, name)
		start := strings.Index(q, "SELECT") + len("SELECT")
		end := strings.Index(q, "\nFROM")
		require.Greater(t, end, start, name)
		cols := strings.Count(q[start:end], ",") + 1
		assert.Equal(t, d.Width, cols, "%s select list", name)
	}
}

func TestQuery_TransferScope(t *testing.T) {
	t.Parallel()
	c, err := Default()
	require.NoError(t, err)
	sc, err := scope.Parse("2025-06-01", "15")
	require.NoError(t, err)

	q, err := c.Query(doc(t, "transfer"), sc, "SBO_PROD")
	require.NoError(t, err)
	assert.Contains(t, q, `FROM "SBO_PROD"."OWTR" T0`)
	assert.Contains(t, q, `= '2025-06-01'`)
	assert.Contains(t, q, `T0."Filler" IN ('15', '16')`)
	assert.Contains(t, q, `T0."ToWhsCode" IN ('01', '09')`)
	assert.NotContains(t, q, "<no value>")
}

func TestQuery_DispatchWindow(t *testing.T) {
	t.Parallel()
	c, err := Default()
	require.NoError(t, err)
	sc, err := scope.Parse("2025-06-01", "07")
	require.NoError(t, err)

	q, err := c.Query(doc(t, "dispatch"), sc, "SBO")
	require.NoError(t, err)
	assert.Contains(t, q, `BETWEEN '2025-05-30' AND '2025-06-03'`)
	assert.Contains(t, q, `T0."U_COB_LUGAREN" IN ('07')`)
}

func TestQuery_BatchExpiry(t *testing.T) {
	t.Parallel()
	c, err := Default()
	require.NoError(t, err)

	sc, err := scope.Parse("2025-06-01", "")
	require.NoError(t, err)
	q, err := c.Query(doc(t, "batch"), sc, "SBO")
	require.NoError(t, err)
	assert.Contains(t, q, `FROM "SBO"."OBTN" T0`)
	assert.Contains(t, q, `WHERE T0."ExpDate" > '2025-06-01'`)

	q, err = c.Query(doc(t, "batch"), scope.Scope{}, "SBO")
	require.NoError(t, err)
	assert.NotContains(t, q, "ExpDate\" >")
}

func TestQuery_WildcardHasNoScopeFilter(t *testing.T) {
	t.Parallel()
	c, err := Default()
	require.NoError(t, err)

	q, err := c.Query(doc(t, "reception"), scope.Scope{}, "SBO")
	require.NoError(t, err)
	assert.NotContains(t, q, "CAST(")
	assert.NotContains(t, q, `"ToWhsCode" IN`)
}

func TestLoad_DirectoryOverridesEmbedded(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "warehouse.sql"),
		[]byte(`SELECT "WhsCode", "WhsName", "TaxOffice" FROM "{{.Schema}}"."OWHS" WHERE "Inactive" = 'N'`), 0o644))

	c, err := Load(dir)
	require.NoError(t, err)
	q, err := c.Query(doc(t, "warehouse"), scope.Scope{}, "SBO")
	require.NoError(t, err)
	assert.Equal(t, `SELECT "WhsCode", "WhsName", "TaxOffice" FROM "SBO"."OWHS" WHERE "Inactive" = 'N'`, q)

	// Untouched documents keep the embedded query.
	q, err = c.Query(doc(t, "sale"), scope.Scope{}, "SBO")
	require.NoError(t, err)
	assert.Contains(t, q, `"SBO"."ODLN"`)
}

func TestQuery_UnknownDocument(t *testing.T) {
	t.Parallel()
	c, err := Default()
	require.NoError(t, err)
	_, err = c.Query(&schema.Document{Name: "returns"}, scope.Scope{}, "SBO")
	var cfg *schema.ConfigurationError
	assert.True(t, errors.As(err, &cfg))
}
