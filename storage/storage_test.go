package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func widgetsTable(d Dialect) Table {
	return Table{
		Name: "widgets",
		Create: append([]string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS widgets (
    %s,
    name TEXT NOT NULL,
    updated_at %s NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, d.AutoID(), d.TimestampType()),
			`CREATE INDEX IF NOT EXISTS idx_widgets_name ON widgets(name)`,
		}, d.TouchUpdatedAt("widgets")...),
		Added: []Column{{Name: "color", Definition: "TEXT"}},
	}
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"", SQLite, false},
		{"sqlite", SQLite, false},
		{"postgres", Postgres, false},
		{"PGX", Postgres, false},
		{"mysql", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDialect(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestRebind(t *testing.T) {
	q := `UPDATE blogs SET slug = ?, title = ? WHERE id = ?`
	assert.Equal(t, q, SQLite.Rebind(q))
	assert.Equal(t, `UPDATE blogs SET slug = $1, title = $2 WHERE id = $3`, Postgres.Rebind(q))
}

func TestProvisionIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	p := NewProvisioner(db, nil)
	ctx := context.Background()

	require.NoError(t, p.Provision(ctx, widgetsTable(SQLite)))
	require.NoError(t, p.Provision(ctx, widgetsTable(SQLite)))

	ok, err := p.columnExists(ctx, "widgets", "color")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProvisionAddsMissingColumn(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// A table from before the color column existed.
	_, err := db.ExecContext(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO widgets (name) VALUES (?)`, "old")
	require.NoError(t, err)

	p := NewProvisioner(db, nil)
	ok, err := p.columnExists(ctx, "widgets", "color")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, p.Provision(ctx, widgetsTable(SQLite)))

	var name string
	var color *string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT name, color FROM widgets`).Scan(&name, &color))
	assert.Equal(t, "old", name)
	assert.Nil(t, color)
}

func TestTouchUpdatedAtTrigger(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, NewProvisioner(db, nil).Provision(ctx, widgetsTable(SQLite)))

	_, err := db.ExecContext(ctx, `INSERT INTO widgets (name, updated_at) VALUES (?, ?)`, "w", "2000-01-01 00:00:00")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `UPDATE widgets SET name = ? WHERE name = ?`, "w2", "w")
	require.NoError(t, err)

	var ts Timestamp
	require.NoError(t, db.QueryRowContext(ctx, `SELECT updated_at FROM widgets`).Scan(&ts))
	assert.True(t, ts.After(time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)), "updated_at = %v", ts.Time)
}

func TestIsUniqueViolation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, `CREATE TABLE u (slug TEXT NOT NULL UNIQUE)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO u (slug) VALUES (?)`, "a")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO u (slug) VALUES (?)`, "a")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23502"}))
	assert.False(t, IsUniqueViolation(errors.New("connection refused")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestPostgresProvisionProbesInformationSchema(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer sqlDB.Close()

	table := Table{
		Name:   "blogs",
		Create: []string{`CREATE TABLE IF NOT EXISTS blogs (id BIGINT)`},
		Added: []Column{
			{Name: "author_image", Definition: "TEXT"},
			{Name: "cover_image", Definition: "TEXT"},
		},
	}

	probe := `SELECT COUNT\(\*\) FROM information_schema\.columns WHERE table_schema = current_schema\(\) AND table_name = \$1 AND column_name = \$2`
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS blogs`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(probe).WithArgs("blogs", "author_image").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(probe).WithArgs("blogs", "cover_image").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta(`ALTER TABLE blogs ADD COLUMN cover_image TEXT`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	p := NewProvisioner(New(sqlDB, Postgres), nil)
	require.NoError(t, p.Provision(context.Background(), table))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisionReturnsDDLErrors(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectExec(`CREATE TABLE`).WillReturnError(errors.New("permission denied"))

	p := NewProvisioner(New(sqlDB, Postgres), nil)
	err = p.Provision(context.Background(), Table{Name: "contacts", Create: []string{"CREATE TABLE contacts (id BIGINT)"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provision contacts")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	tests := []struct {
		name string
		src  any
		want time.Time
	}{
		{"time", want, want},
		{"sqlite text", "2024-01-02 03:04:05", want},
		{"rfc3339", "2024-01-02T03:04:05Z", want},
		{"bytes", []byte("2024-01-02 03:04:05"), want},
		{"date only", "2024-01-02", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"nil", nil, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTime(tt.src)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}

	_, err := ParseTime("yesterday")
	assert.Error(t, err)
	_, err = ParseTime(3.5)
	assert.Error(t, err)
}
