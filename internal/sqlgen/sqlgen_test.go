package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialects_QuoteAndTable(t *testing.T) {
	t.Parallel()
	cases := []struct {
		d        Dialect
		quote    string
		table    string
		truncate string
		date     string
	}{
		{MSSQL{}, `[a]]b]`, `[dbo].[OWTR]`, `TRUNCATE TABLE [dbo].[OWTR]`, `CAST(x AS DATE)`},
		{Postgres{}, `"a]b"`, `"dbo"."OWTR"`, `TRUNCATE TABLE "dbo"."OWTR"`, `CAST(x AS DATE)`},
		{SQLite{}, `"a]b"`, `"OWTR"`, `DELETE FROM "OWTR"`, `date(x)`},
	}
	for _, tc := range cases {
		t.Run(tc.d.Name(), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.quote, tc.d.Quote("a]b"))
			tbl := tc.d.Table("dbo", "OWTR")
			assert.Equal(t, tc.table, tbl)
			assert.Equal(t, tc.truncate, tc.d.Truncate(tbl))
			assert.Equal(t, tc.date, tc.d.DateOf("x"))
		})
	}
}

func TestLookup(t *testing.T) {
	t.Parallel()
	d, err := Lookup("SQLServer")
	require.NoError(t, err)
	assert.Equal(t, "mssql", d.Name())

	_, err = Lookup("oracle")
	assert.Error(t, err)
}

func TestInsert(t *testing.T) {
	t.Parallel()
	got := Insert(MSSQL{}, "[dbo].[WTR1]", []string{"DocEntry", "LineNum"},
		[]string{"'1'", "'0'"}, []string{"'1'", "NULL"})
	assert.Equal(t, "INSERT INTO [dbo].[WTR1] ([DocEntry], [LineNum]) VALUES ('1', '0'), ('1', NULL)", got)
	assert.Equal(t, "'O''Brien'", Literal("O'Brien"))
}
