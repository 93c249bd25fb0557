package files

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sanitas/hce/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

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

const fileCols = `id, paciente_id, nombre_archivo, nombre_original, tipo_archivo, categoria,
	descripcion, tamano_bytes, subido_por_medico_id, fecha_subida`

func scanFile(row pgx.Row) (*MedicalFile, error) {
	var f MedicalFile
	err := row.Scan(&f.ID, &f.PatientID, &f.StoredName, &f.OriginalName, &f.ContentType, &f.Category,
		&f.Description, &f.SizeBytes, &f.UploadedBy, &f.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &f, err
}

func (r *repoPG) Create(ctx context.Context, f *MedicalFile) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO archivos_medicos (paciente_id, nombre_archivo, nombre_original, tipo_archivo,
			categoria, descripcion, tamano_bytes, subido_por_medico_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, fecha_subida`,
		f.PatientID, f.StoredName, f.OriginalName, f.ContentType,
		f.Category, f.Description, f.SizeBytes, f.UploadedBy,
	).Scan(&f.ID, &f.UploadedAt)
}

func (r *repoPG) List(ctx context.Context, patientID int64) ([]*MedicalFile, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+fileCols+` FROM archivos_medicos
		WHERE paciente_id = $1 ORDER BY fecha_subida DESC, id DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*MedicalFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*MedicalFile, error) {
	return scanFile(r.conn(ctx).QueryRow(ctx, `SELECT `+fileCols+` FROM archivos_medicos WHERE id = $1`, id))
}

func (r *repoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM archivos_medicos WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
