package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareMigrations(t *testing.T) {
	for _, tc := range []struct {
		name     string
		wanted   []string
		existing []string
		exp      []string
		expErr   bool
	}{
		{
			name:   "fresh",
			wanted: []string{"a", "b"},
			exp:    []string{"a", "b"},
		},
		{
			name:     "partial",
			wanted:   []string{"a", "b", "c"},
			existing: []string{"a"},
			exp:      []string{"b", "c"},
		},
		{
			name:     "up to date",
			wanted:   []string{"a", "b"},
			existing: []string{"a", "b"},
			exp:      []string{},
		},
		{
			name:     "too many existing",
			wanted:   []string{"a"},
			existing: []string{"a", "b"},
			expErr:   true,
		},
		{
			name:     "incompatible",
			wanted:   []string{"a", "x"},
			existing: []string{"a", "b"},
			expErr:   true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			act, err := compareMigrations(tc.wanted, tc.existing)
			if tc.expErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.exp, act)
		})
	}
}

func TestRebind(t *testing.T) {
	query := `UPDATE video_record SET status = ? WHERE video_id = ? AND status IN (?, ?)`
	assert.Equal(t, query, DialectSQLite.rebind(query))
	assert.Equal(t,
		`UPDATE video_record SET status = $1 WHERE video_id = $2 AND status IN ($3, $4)`,
		DialectPostgres.rebind(query))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?,?,?", placeholders(3))
}
