package storage

import (
	"context"
	"fmt"
	"log/slog"
)

// Column is a column added after a table's first release. Definition is the
// type and constraints as written after the column name in ALTER TABLE.
type Column struct {
	Name       string
	Definition string
}

// Table describes one managed table. Create holds idempotent statements
// (CREATE ... IF NOT EXISTS and similar) run in order; Added lists columns
// that older databases may lack.
type Table struct {
	Name   string
	Create []string
	Added  []Column
}

// Provisioner brings the schema to the expected shape. It only ever creates
// tables, indexes, triggers and columns; it never drops or renames anything,
// so running it against a current schema is a no-op.
type Provisioner struct {
	db     *DB
	logger *slog.Logger
}

// NewProvisioner returns a provisioner for db.
func NewProvisioner(db *DB, logger *slog.Logger) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provisioner{db: db, logger: logger}
}

// Provision ensures every table exists and has every added column. The
// column probe is check-then-act, so it must run from a single owner before
// the service accepts requests.
func (p *Provisioner) Provision(ctx context.Context, tables ...Table) error {
	for _, t := range tables {
		for _, stmt := range t.Create {
			if _, err := p.db.sql.ExecContext(ctx, stmt); err != nil {
				if isAlreadyExists(err) {
					continue
				}
				return fmt.Errorf("provision %s: %w", t.Name, err)
			}
		}
		for _, c := range t.Added {
			exists, err := p.columnExists(ctx, t.Name, c.Name)
			if err != nil {
				return fmt.Errorf("probe %s.%s: %w", t.Name, c.Name, err)
			}
			if exists {
				continue
			}
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", t.Name, c.Name, c.Definition)
			if _, err := p.db.sql.ExecContext(ctx, stmt); err != nil {
				if isAlreadyExists(err) {
					continue
				}
				return fmt.Errorf("add column %s.%s: %w", t.Name, c.Name, err)
			}
			p.logger.Info("schema column added", "table", t.Name, "column", c.Name)
		}
	}
	return nil
}

func (p *Provisioner) columnExists(ctx context.Context, table, column string) (bool, error) {
	var q string
	switch p.db.dialect {
	case Postgres:
		q = `SELECT COUNT(*) FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ? AND column_name = ?`
	default:
		q = `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`
	}
	var n int
	if err := p.db.QueryRowContext(ctx, q, table, column).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// TouchUpdatedAt returns statements that keep table.updated_at current on
// every UPDATE, as a schema-level trigger.
func (d Dialect) TouchUpdatedAt(table string) []string {
	if d == Postgres {
		return []string{
			`CREATE OR REPLACE FUNCTION pubapi_touch_updated_at() RETURNS trigger AS $$
BEGIN
    NEW.updated_at = now();
    RETURN NEW;
END;
$$ LANGUAGE plpgsql`,
			fmt.Sprintf(`CREATE OR REPLACE TRIGGER %[1]s_touch_updated_at
    BEFORE UPDATE ON %[1]s
    FOR EACH ROW EXECUTE FUNCTION pubapi_touch_updated_at()`, table),
		}
	}
	return []string{fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %[1]s_touch_updated_at
    AFTER UPDATE ON %[1]s
    FOR EACH ROW WHEN NEW.updated_at = OLD.updated_at
BEGIN
    UPDATE %[1]s SET updated_at = CURRENT_TIMESTAMP WHERE id = NEW.id;
END`, table)}
}

// AutoID returns the generated primary key column definition.
func (d Dialect) AutoID() string {
	if d == Postgres {
		return "id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
	}
	return "id INTEGER PRIMARY KEY AUTOINCREMENT"
}

// TimestampType returns the column type for system timestamps.
func (d Dialect) TimestampType() string {
	if d == Postgres {
		return "TIMESTAMPTZ"
	}
	return "DATETIME"
}
