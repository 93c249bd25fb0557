package clinical

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sanitas/hce/internal/platform/db"
	"github.com/sanitas/hce/pkg/fieldpatch"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Repository backed by one table per kind.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func columns(d *Definition) []string {
	cols := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		cols[i] = f.Column
	}
	return cols
}

func selectSQL(d *Definition) string {
	return fmt.Sprintf(`SELECT id, paciente_id, %s, fecha_registro FROM %s`,
		strings.Join(columns(d), ", "), d.Table)
}

func scanRecord(d *Definition, row pgx.Row) (Record, error) {
	rec := d.New()
	b := rec.base()
	dest := append([]any{&b.ID, &b.PatientID}, rec.targets()...)
	dest = append(dest, &b.RegisteredAt)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *repoPG) List(ctx context.Context, kind Kind, patientID int64) ([]Record, error) {
	d := kind.Def()
	rows, err := r.conn(ctx).Query(ctx, selectSQL(d)+
		` WHERE paciente_id = $1 ORDER BY `+d.DateColumn+` DESC NULLS LAST, id ASC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Record
	for rows.Next() {
		rec, err := scanRecord(d, rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, patientID int64, rec Record) error {
	d := rec.kind().Def()
	cols := columns(d)
	marks := make([]string, len(cols)+1)
	for i := range marks {
		marks[i] = fmt.Sprintf("$%d", i+1)
	}
	args := append([]any{patientID}, rec.values()...)

	b := rec.base()
	err := r.conn(ctx).QueryRow(ctx, fmt.Sprintf(
		`INSERT INTO %s (paciente_id, %s) VALUES (%s) RETURNING id, fecha_registro`,
		d.Table, strings.Join(cols, ", "), strings.Join(marks, ", ")),
		args...).Scan(&b.ID, &b.RegisteredAt)
	if db.IsForeignKeyViolation(err, "") {
		return ErrPatientNotFound
	}
	if err != nil {
		return err
	}
	b.PatientID = patientID
	return nil
}

func (r *repoPG) Update(ctx context.Context, kind Kind, patientID, id int64, patch fieldpatch.Patch) error {
	d := kind.Def()
	set, vals := patch.SetClause(3)
	args := append([]any{id, patientID}, vals...)
	return r.execOne(ctx, `UPDATE `+d.Table+` SET `+set+` WHERE id = $1 AND paciente_id = $2`, args...)
}

func (r *repoPG) Delete(ctx context.Context, kind Kind, patientID, id int64) error {
	return r.execOne(ctx, `DELETE FROM `+kind.Def().Table+` WHERE id = $1 AND paciente_id = $2`, id, patientID)
}

func (r *repoPG) Owner(ctx context.Context, kind Kind, id int64) (int64, error) {
	var pid int64
	err := r.conn(ctx).QueryRow(ctx, `SELECT paciente_id FROM `+kind.Def().Table+` WHERE id = $1`, id).Scan(&pid)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return pid, err
}

func (r *repoPG) execOne(ctx context.Context, sql string, args ...interface{}) error {
	tag, err := r.conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
