package decompose

import (
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"migrator/internal/schema"
)

func testRegistry(t *testing.T) (*schema.Registry, *schema.Document) {
	t.Helper()
	reg, err := schema.NewRegistry(
		[]schema.Table{
			{Name: "header", Columns: []string{"id", "a", "b", "c", "d"}, Key: []string{"id"}},
			{Name: "line", Columns: []string{"id", "ln", "x", "y"}, Key: []string{"id", "ln"}},
			{Name: "link", Columns: []string{"id", "ln", "z"}},
		},
		[]schema.Document{{
			Name: "doc",
			Root: "header",
			Entities: []schema.Entity{
				{Table: "header", Start: 0, End: 5},
				{Table: "line", Start: 5, End: 9, Parent: "header", On: []schema.ColumnPair{{Child: "id", Parent: "id"}}},
				{Table: "link", Start: 9, End: 12, Optional: true, Parent: "line", On: []schema.ColumnPair{{Child: "id", Parent: "id"}}},
			},
		}},
	)
	require.NoError(t, err)
	doc, err := reg.Document("doc")
	require.NoError(t, err)
	return reg, doc
}

func TestLiteral(t *testing.T) {
	t.Parallel()
	ts := time.Date(2025, 6, 1, 7, 5, 9, 123, time.UTC)
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "NULL"},
		{"empty", "", "NULL"},
		{"none lower", "none", "NULL"},
		{"none mixed", "NoNe", "NULL"},
		{"not none", "nonexistent", "'nonexistent'"},
		{"quote doubled", "O'Brien", "'O''Brien'"},
		{"bytes", []byte("12.50"), "'12.50'"},
		{"nil bytes", []byte(nil), "NULL"},
		{"time", ts, "'2025-06-01 07:05:09'"},
		{"int64", int64(42), "'42'"},
		{"float", 1.5, "'1.5'"},
		{"bool", true, "'1'"},
		{"rat", big.NewRat(25, 2), "'12.5'"},
		{"rat int", big.NewRat(8, 1), "'8'"},
		{"rat tiny", new(big.Rat).SetFrac64(1, 1_000_000_000_000), "'0.000000000001'"},
		{"rat tiny negative", new(big.Rat).SetFrac64(-1, 1_000_000_000_000), "'-0.000000000001'"},
		{"rat twelve places", new(big.Rat).SetFrac64(123456789012, 1_000_000_000_000), "'0.123456789012'"},
		{"rat eighths", big.NewRat(1, 8), "'0.125'"},
		{"rat repeating", big.NewRat(1, 3), "'0." + strings.Repeat("3", 38) + "'"},
		{"nfc", "José", "'José'"},
		{"ill formed", "a\xffb", "'a�b'"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Literal(tc.in))
		})
	}
}

func TestDecompose_ThreeEntities(t *testing.T) {
	t.Parallel()
	reg, doc := testRegistry(t)
	d := New(reg)
	row := schema.FlatRow{1, "h", nil, "", "none", 1, 0, "x", "y", 1, 0, "z"}
	orig := append(schema.FlatRow(nil), row...)

	h, err := d.Decompose(row, doc, "header")
	require.NoError(t, err)
	assert.Equal(t, []string{"'1'", "'h'", "NULL", "NULL", "NULL"}, h.Values)
	assert.Equal(t, []string{"'1'"}, h.Key)

	l, err := d.Decompose(row, doc, "line")
	require.NoError(t, err)
	assert.Equal(t, []string{"'1'", "'0'"}, l.Key)

	k, err := d.Decompose(row, doc, "link")
	require.NoError(t, err)
	assert.Nil(t, k.Key)
	assert.Equal(t, "link", k.Entity)
	assert.Len(t, k.Values, 3)

	assert.Equal(t, orig, row, "row must not be mutated")
}

func TestDecompose_ShortRowOnlyFailsEntitiesPastTheEnd(t *testing.T) {
	t.Parallel()
	reg, err := schema.NewRegistry(
		[]schema.Table{
			{Name: "header", Columns: []string{"id", "a", "b", "c"}, Key: []string{"id"}},
			{Name: "line", Columns: []string{"id", "ln", "x", "y"}, Key: []string{"id", "ln"}},
			{Name: "link", Columns: []string{"z"}},
		},
		[]schema.Document{{
			Name: "short",
			Root: "header",
			Entities: []schema.Entity{
				{Table: "header", Start: 0, End: 4},
				{Table: "line", Start: 4, End: 8},
				{Table: "link", Start: 8, End: 9},
			},
		}},
	)
	require.NoError(t, err)
	doc, err := reg.Document("short")
	require.NoError(t, err)
	d := New(reg)
	row := schema.FlatRow{1, "a", "b", "c", 1, 0, "x", "y"}

	_, err = d.Decompose(row, doc, "header")
	require.NoError(t, err)
	_, err = d.Decompose(row, doc, "line")
	require.NoError(t, err)

	_, err = d.Decompose(row, doc, "link")
	var shape *RowShapeError
	require.True(t, errors.As(err, &shape))
	assert.Equal(t, "link", shape.Entity)
	assert.Equal(t, 9, shape.Need)
	assert.Equal(t, 8, shape.Got)
}

func TestDecompose_UnknownEntity(t *testing.T) {
	t.Parallel()
	reg, doc := testRegistry(t)
	_, err := New(reg).Decompose(schema.FlatRow{}, doc, "ghost")
	var cfg *schema.ConfigurationError
	assert.True(t, errors.As(err, &cfg))
}

func TestRecord_Absent(t *testing.T) {
	t.Parallel()
	assert.True(t, Record{Key: []string{"NULL"}, Values: []string{"NULL", "'x'"}}.Absent())
	assert.False(t, Record{Key: []string{"'1'"}, Values: []string{"'1'"}}.Absent())
	assert.True(t, Record{Values: []string{"NULL", "NULL"}}.Absent())
	assert.False(t, Record{Values: []string{"NULL", "'2'"}}.Absent())
}
