package migration

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultListLoads(t *testing.T) {
	l, err := DefaultList()
	require.NoError(t, err)

	require.Equal(t, []string{scriptProduct, scriptCustomer, scriptSale,
		scriptExpense}, l.Names())
	require.Equal(t, scriptExpense, l.Latest())

	// Every script carries forward and inverse DDL for every dialect
	for _, name := range l.Names() {
		s, err := l.Get(name)
		require.NoError(t, err)
		for en := range dialectDirs {
			up, ok := s.UpSQL(en)
			require.True(t, ok, "%s missing %s up", name, en)
			require.NotEmpty(t, up)
			down, ok := s.DownSQL(en)
			require.True(t, ok, "%s missing %s down", name, en)
			require.NotEmpty(t, down)
		}
	}
}

func TestListPending(t *testing.T) {
	l, err := DefaultList()
	require.NoError(t, err)

	tests := []struct {
		name        string
		lastApplied string
		target      string
		want        []string
		wantErr     bool
	}{
		{
			name: "nothing applied to latest",
			want: []string{scriptProduct, scriptCustomer, scriptSale, scriptExpense},
		},
		{
			name:        "middle to latest",
			lastApplied: scriptCustomer,
			want:        []string{scriptSale, scriptExpense},
		},
		{
			name:        "up to date",
			lastApplied: scriptExpense,
			want:        nil,
		},
		{
			name:   "nothing applied to target",
			target: scriptCustomer,
			want:   []string{scriptProduct, scriptCustomer},
		},
		{
			name:        "target before last applied",
			lastApplied: scriptSale,
			target:      scriptProduct,
			want:        nil,
		},
		{
			name:        "unknown last applied",
			lastApplied: "20990101000000_bogus",
			wantErr:     true,
		},
		{
			name:    "unknown target",
			target:  "20990101000000_bogus",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sList, err := l.Pending(tt.lastApplied, tt.target)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			var names []string
			for _, s := range sList {
				names = append(names, s.Name)
			}
			require.Equal(t, tt.want, names)
		})
	}
}

func TestListToRevert(t *testing.T) {
	l, err := DefaultList()
	require.NoError(t, err)

	tests := []struct {
		name        string
		lastApplied string
		target      string
		want        []string
	}{
		{
			name:        "latest back to base",
			lastApplied: scriptExpense,
			want: []string{scriptExpense, scriptSale, scriptCustomer,
				scriptProduct},
		},
		{
			name:        "one step back",
			lastApplied: scriptExpense,
			target:      scriptSale,
			want:        []string{scriptExpense},
		},
		{
			name:        "middle back two",
			lastApplied: scriptSale,
			target:      scriptProduct,
			want:        []string{scriptSale, scriptCustomer},
		},
		{
			name: "nothing applied",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sList, err := l.ToRevert(tt.lastApplied, tt.target)
			require.NoError(t, err)

			var names []string
			for _, s := range sList {
				names = append(names, s.Name)
			}
			require.Equal(t, tt.want, names)
		})
	}
}

func TestListPrevious(t *testing.T) {
	l, err := DefaultList()
	require.NoError(t, err)

	prev, err := l.Previous(scriptProduct)
	require.NoError(t, err)
	require.Equal(t, "", prev)

	prev, err = l.Previous(scriptSale)
	require.NoError(t, err)
	require.Equal(t, scriptCustomer, prev)

	_, err = l.Previous("20990101000000_bogus")
	require.Error(t, err)
}

func TestListRequiredTables(t *testing.T) {
	l, err := DefaultList()
	require.NoError(t, err)

	require.Empty(t, l.RequiredTables(""))

	require.Equal(t, []string{"product_category", "product"},
		l.RequiredTables(scriptProduct))

	require.Equal(t, []string{"product_category", "product", "customer",
		"sale", "sale_line", "expense"},
		l.RequiredTables(scriptExpense))
}

func TestSplitScriptFileName(t *testing.T) {
	tests := []struct {
		fileName string
		wantName string
		wantUp   bool
		wantErr  bool
	}{
		{fileName: "20240105090000_create_product.up.sql",
			wantName: "20240105090000_create_product", wantUp: true},
		{fileName: "20240105090000_create_product.down.sql",
			wantName: "20240105090000_create_product"},
		{fileName: "20240105090000_create_product.sql", wantErr: true},
		{fileName: "create_product.up.sql", wantErr: true},
		{fileName: "2024010509_create_product.up.sql", wantErr: true},
		{fileName: "20240105090000.up.sql", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.fileName, func(t *testing.T) {
			name, isUp, err := splitScriptFileName(tt.fileName)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantName, name)
			require.Equal(t, tt.wantUp, isUp)
		})
	}
}

func TestScriptOrderingIsLexicographic(t *testing.T) {
	l := testList(
		sqliteScript("20250301000000_third", "SELECT 1;", "SELECT 1;"),
		sqliteScript("20250101000000_first", "SELECT 1;", "SELECT 1;"),
		sqliteScript("20250201000000_second", "SELECT 1;", "SELECT 1;"),
	)

	require.Equal(t, []string{"20250101000000_first", "20250201000000_second",
		"20250301000000_third"}, l.Names())
	require.Equal(t, "20250301000000_third", l.Latest())
}
