package bigquery

import (
	"strings"
	"testing"
	"testing/fstest"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_budgets.sql":          {Data: []byte("CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.budgets` (x INT64);")},
		"m/0001_accounts.sql":         {Data: []byte("CREATE TABLE a (x INT64);")},
		"m/001_short_version.sql":     {Data: []byte("x")},
		"m/0003_missing_extension":    {Data: []byte("x")},
		"m/invalid_0004_order.sql":    {Data: []byte("x")},
		"m/0005.sql":                  {Data: []byte("x")},
		"m/nested/0006_directory.sql": {Data: []byte("x")},
	}

	migrations, err := ReadMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, migrations, 2)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "accounts", migrations[0].Name)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, "0002_budgets.sql", migrations[1].Filename)
	assert.Len(t, migrations[1].Checksum, 64)
	assert.NotEqual(t, migrations[0].Checksum, migrations[1].Checksum)

	assert.Equal(t, "CREATE TABLE `proj.fin.budgets` (x INT64);", migrations[1].Render("proj", "fin"))
}

func TestReadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0001_a.sql": {Data: []byte("a")},
		"m/0001_b.sql": {Data: []byte("b")},
	}

	_, err := ReadMigrations(fsys, "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version 0001")
}

func TestMigrations_Bundled(t *testing.T) {
	migrations, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	assert.Equal(t, 1, migrations[0].Version)
	sql := migrations[0].Render("proj", "fin")
	for _, table := range []string{accountsTable, categoriesTable, transactionsTable, budgetsTable} {
		assert.Contains(t, sql, "`proj.fin."+table+"`")
	}
	for _, m := range migrations {
		assert.False(t, strings.Contains(m.Render("p", "d"), "{{"), "unexpanded placeholder in %s", m.Filename)
	}
}

func TestPending(t *testing.T) {
	all := []Migration{
		{Version: 1, Name: "a", Checksum: "aaa"},
		{Version: 2, Name: "b", Checksum: "bbb"},
		{Version: 3, Name: "c", Checksum: "ccc"},
	}

	t.Run("skips applied versions", func(t *testing.T) {
		pending, err := Pending(all, []AppliedMigration{
			{Version: 1, Checksum: bigquery.NullString{StringVal: "aaa", Valid: true}},
			{Version: 2},
		})
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, 3, pending[0].Version)
	})

	t.Run("changed checksum", func(t *testing.T) {
		_, err := Pending(all, []AppliedMigration{
			{Version: 2, Checksum: bigquery.NullString{StringVal: "other", Valid: true}},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "0002_b")
	})

	t.Run("nothing applied", func(t *testing.T) {
		pending, err := Pending(all, nil)
		require.NoError(t, err)
		assert.Len(t, pending, 3)
	})
}
