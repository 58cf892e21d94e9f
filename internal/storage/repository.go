// Package storage keeps records and reference lists in SQL: sqlite for a single
// household box, postgres when the API runs next to a shared database.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "modernc.org/sqlite"

	"gagyebu/internal/core"
	"gagyebu/internal/log"
	"gagyebu/internal/remote"
)

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
)

// Repository implements remote.Store over database/sql.
type Repository struct {
	db      *sql.DB
	dialect string
	logger  *log.Logger
}

var _ remote.Store = (*Repository)(nil)

// OpenSQLite opens (creating if needed) the database file at dbPath, migrates it and
// seeds the default references into empty tables.
func OpenSQLite(ctx context.Context, dbPath string, logger *log.Logger) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite serialises writers anyway; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return open(ctx, db, dialectSQLite, logger)
}

// OpenPostgres connects through pgx, applies the schema and seeds empty reference tables.
func OpenPostgres(ctx context.Context, dsn string, logger *log.Logger) (*Repository, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := applyPostgresSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return open(ctx, db, dialectPostgres, logger)
}

func open(ctx context.Context, db *sql.DB, dialect string, logger *log.Logger) (*Repository, error) {
	if logger == nil {
		logger = log.Discard()
	}
	r := &Repository{db: db, dialect: dialect, logger: logger.WithComponent(log.ComponentStorage)}
	if err := r.seed(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// seed inserts the default labels into reference tables that have no rows yet.
func (r *Repository) seed(ctx context.Context) error {
	for _, kind := range []core.ReferenceKind{core.KindCategory, core.KindMethod} {
		var n int
		if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+string(kind)).Scan(&n); err != nil {
			return fmt.Errorf("count %s: %w", kind, err)
		}
		if n > 0 {
			continue
		}
		for _, label := range remote.DefaultLabels(kind) {
			if _, err := r.CreateReference(ctx, kind, label); err != nil {
				return fmt.Errorf("seed %s: %w", kind, err)
			}
		}
		r.logger.InfoContext(ctx, "Seeded default references", log.FieldReferenceKind, kind)
	}
	return nil
}

const selectRecords = `SELECT r.id, r.date, c.type, m.type, r.amount, r.user_name, r.etc
FROM records r
JOIN categories c ON c.id = r.category_id
JOIN methods m ON m.id = r.method_id`

func (r *Repository) ListRecords(ctx context.Context, rng core.DateRange) ([]core.Record, error) {
	var (
		where []string
		args  []any
	)
	if rng.Start != "" {
		where = append(where, "r.date >= ?")
		args = append(args, rng.Start)
	}
	if rng.End != "" {
		where = append(where, "r.date <= ?")
		args = append(args, rng.End)
	}
	query := selectRecords
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY r.date DESC, r.id"

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	out := make([]core.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

// Get returns one record with its labels joined.
func (r *Repository) Get(ctx context.Context, id int64) (core.Record, error) {
	row := r.db.QueryRowContext(ctx, r.rebind(selectRecords+"\nWHERE r.id = ?"), id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, remote.ErrNotFound
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("get record %d: %w", id, err)
	}
	return rec, nil
}

func (r *Repository) References(ctx context.Context, kind core.ReferenceKind) (core.ReferenceSet, error) {
	if !kind.IsValid() {
		return nil, remote.ErrNotFound
	}
	rows, err := r.db.QueryContext(ctx, "SELECT id, type FROM "+string(kind)+" ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	set := core.ReferenceSet{}
	for rows.Next() {
		var ref core.Reference
		if err := rows.Scan(&ref.ID, &ref.Type); err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		set = append(set, ref)
	}
	return set, rows.Err()
}

func (r *Repository) CreateRecord(ctx context.Context, c core.Creation) (core.Record, error) {
	var id int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.refExists(ctx, tx, core.KindCategory, c.CategoryID); err != nil {
			return err
		}
		if err := r.refExists(ctx, tx, core.KindMethod, c.MethodID); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, r.rebind(
			`INSERT INTO records (date, category_id, method_id, amount, user_name, etc)
			 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
			c.Date, c.CategoryID, c.MethodID, c.Amount, c.User, c.Memo,
		).Scan(&id)
	})
	if err != nil {
		return core.Record{}, err
	}

	r.logger.InfoContext(ctx, "Record saved",
		log.FieldRecordID, id, log.FieldAmount, c.Amount, "date", c.Date)
	return r.Get(ctx, id)
}

// patchColumns maps wire parameter names onto record columns.
var patchColumns = map[string]string{
	core.ParamDate:       "date",
	core.ParamCategoryID: "category_id",
	core.ParamMethodID:   "method_id",
	core.ParamAmount:     "amount",
	core.ParamUserName:   "user_name",
	core.ParamMemo:       "etc",
}

func (r *Repository) PatchRecord(ctx context.Context, id int64, c core.Change) (core.Record, error) {
	column, ok := patchColumns[c.Param]
	if !ok {
		return core.Record{}, fmt.Errorf("%w: %s", remote.ErrInvalid, c.Param)
	}
	var value any = c.Value
	switch c.Param {
	case core.ParamCategoryID, core.ParamMethodID:
		refID, ok := c.ReferenceID()
		if !ok {
			return core.Record{}, fmt.Errorf("%w: %s=%q", remote.ErrInvalid, c.Param, c.Value)
		}
		value = refID
	case core.ParamAmount:
		amount, ok := c.AmountValue()
		if !ok {
			return core.Record{}, fmt.Errorf("%w: %s=%q", remote.ErrInvalid, c.Param, c.Value)
		}
		value = amount
	}

	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx, r.rebind("SELECT 1 FROM records WHERE id = ?"), id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return remote.ErrNotFound
		}
		if err != nil {
			return err
		}
		switch c.Param {
		case core.ParamCategoryID:
			err = r.refExists(ctx, tx, core.KindCategory, value.(int64))
		case core.ParamMethodID:
			err = r.refExists(ctx, tx, core.KindMethod, value.(int64))
		}
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, r.rebind(
			"UPDATE records SET "+column+" = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?"), value, id)
		return err
	})
	if err != nil {
		return core.Record{}, err
	}

	r.logger.InfoContext(ctx, "Record patched", log.FieldRecordID, id, log.FieldField, c.Param)
	return r.Get(ctx, id)
}

func (r *Repository) DeleteRecord(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, r.rebind("DELETE FROM records WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete record %d: %w", id, err)
	}
	if err := expectOne(res); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "Record deleted", log.FieldRecordID, id)
	return nil
}

func (r *Repository) CreateReference(ctx context.Context, kind core.ReferenceKind, label string) (core.Reference, error) {
	if !kind.IsValid() {
		return core.Reference{}, remote.ErrNotFound
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return core.Reference{}, fmt.Errorf("%w: empty label", remote.ErrInvalid)
	}
	ref := core.Reference{Type: label}
	err := r.db.QueryRowContext(ctx, r.rebind("INSERT INTO "+string(kind)+" (type) VALUES (?) RETURNING id"), label).Scan(&ref.ID)
	if err != nil {
		return core.Reference{}, fmt.Errorf("create %s: %w", kind, err)
	}
	return ref, nil
}

func (r *Repository) RenameReference(ctx context.Context, kind core.ReferenceKind, id int64, label string) (core.Reference, error) {
	if !kind.IsValid() {
		return core.Reference{}, remote.ErrNotFound
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return core.Reference{}, fmt.Errorf("%w: empty label", remote.ErrInvalid)
	}
	res, err := r.db.ExecContext(ctx, r.rebind("UPDATE "+string(kind)+" SET type = ? WHERE id = ?"), label, id)
	if err != nil {
		return core.Reference{}, fmt.Errorf("rename %s %d: %w", kind, id, err)
	}
	if err := expectOne(res); err != nil {
		return core.Reference{}, err
	}
	return core.Reference{ID: id, Type: label}, nil
}

func (r *Repository) DeleteReference(ctx context.Context, kind core.ReferenceKind, id int64) error {
	if !kind.IsValid() {
		return remote.ErrNotFound
	}
	column := "category_id"
	if kind == core.KindMethod {
		column = "method_id"
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		var used int
		if err := tx.QueryRowContext(ctx, r.rebind("SELECT COUNT(*) FROM records WHERE "+column+" = ?"), id).Scan(&used); err != nil {
			return err
		}
		if used > 0 {
			return fmt.Errorf("%w: %s %d is used by %d records", remote.ErrConflict, kind, id, used)
		}
		res, err := tx.ExecContext(ctx, r.rebind("DELETE FROM "+string(kind)+" WHERE id = ?"), id)
		if err != nil {
			return err
		}
		return expectOne(res)
	})
}

// refExists reports remote.ErrInvalid when a record would point at a missing reference.
func (r *Repository) refExists(ctx context.Context, tx *sql.Tx, kind core.ReferenceKind, id int64) error {
	var one int
	err := tx.QueryRowContext(ctx, r.rebind("SELECT 1 FROM "+string(kind)+" WHERE id = ?"), id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: unknown %s id %d", remote.ErrInvalid, kind.Field(), id)
	}
	return err
}

func (r *Repository) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders into $n for postgres.
func (r *Repository) rebind(query string) string {
	if r.dialect != dialectPostgres {
		return query
	}
	return rebindDollar(query)
}

func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (core.Record, error) {
	var rec core.Record
	err := s.Scan(&rec.ID, &rec.Date, &rec.Category, &rec.Method, &rec.Amount, &rec.User, &rec.Memo)
	return rec, err
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return remote.ErrNotFound
	}
	return nil
}
