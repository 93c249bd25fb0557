package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sanitas/hce/internal/platform/auth"
	"github.com/sanitas/hce/internal/platform/db"
	"github.com/sanitas/hce/pkg/fieldpatch"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// =========== User Repository ===========

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository {
	return &userRepoPG{pool: pool}
}

func (r *userRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const userCols = `id, email, contrasena, rol, activo, fecha_creacion, ultimo_acceso`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &u.Active, &u.CreatedAt, &u.LastAccess)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	return &u, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO usuarios (email, contrasena, rol, activo)
		VALUES ($1, $2, $3, $4)
		RETURNING id, fecha_creacion`,
		u.Email, u.PasswordHash, string(u.Role), u.Active,
	).Scan(&u.ID, &u.CreatedAt)
	if db.IsUniqueViolation(err, "usuarios_email_key") {
		return ErrDuplicateEmail
	}
	return err
}

func (r *userRepoPG) GetByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM usuarios WHERE id = $1`, id))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM usuarios WHERE email = $1`, email))
}

func (r *userRepoPG) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM usuarios WHERE email = $1)`, email).Scan(&exists)
	return exists, err
}

func (r *userRepoPG) UpdatePassword(ctx context.Context, id int64, hash string) error {
	return execOne(ctx, r.conn(ctx), `UPDATE usuarios SET contrasena = $2 WHERE id = $1`, id, hash)
}

func (r *userRepoPG) TouchLastAccess(ctx context.Context, id int64, at time.Time) error {
	return execOne(ctx, r.conn(ctx), `UPDATE usuarios SET ultimo_acceso = $2 WHERE id = $1`, id, at)
}

func (r *userRepoPG) SetActive(ctx context.Context, id int64, active bool) error {
	return execOne(ctx, r.conn(ctx), `UPDATE usuarios SET activo = $2 WHERE id = $1`, id, active)
}

func (r *userRepoPG) Delete(ctx context.Context, id int64) error {
	return execOne(ctx, r.conn(ctx), `DELETE FROM usuarios WHERE id = $1`, id)
}

// execOne runs a statement that must touch exactly one row.
func execOne(ctx context.Context, q queryable, sql string, args ...interface{}) error {
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const patientCols = `p.id, p.usuario_id, p.nombres, p.apellidos, p.identificacion,
	p.fecha_nacimiento, p.genero, p.telefono, p.direccion,
	p.contacto_emergencia_nombre, p.contacto_emergencia_telefono,
	p.contacto_emergencia_relacion, p.fecha_registro, u.email, u.activo`

const patientFrom = ` FROM pacientes p JOIN usuarios u ON u.id = p.usuario_id`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.UserID, &p.FirstNames, &p.LastNames, &p.NationalID,
		&p.BirthDate, &p.Gender, &p.Phone, &p.Address,
		&p.EmergencyContactName, &p.EmergencyContactPhone,
		&p.EmergencyContactRel, &p.RegisteredAt, &p.Email, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO pacientes (usuario_id, nombres, apellidos, identificacion,
			fecha_nacimiento, genero, telefono, direccion,
			contacto_emergencia_nombre, contacto_emergencia_telefono,
			contacto_emergencia_relacion)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id, fecha_registro`,
		p.UserID, p.FirstNames, p.LastNames, p.NationalID,
		p.BirthDate, p.Gender, p.Phone, p.Address,
		p.EmergencyContactName, p.EmergencyContactPhone, p.EmergencyContactRel,
	).Scan(&p.ID, &p.RegisteredAt)
	if db.IsUniqueViolation(err, "pacientes_identificacion_key") {
		return ErrDuplicateNationalID
	}
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+patientFrom+` WHERE p.id = $1`, id))
}

func (r *patientRepoPG) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM pacientes WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

func (r *patientRepoPG) NationalIDExists(ctx context.Context, nationalID string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM pacientes WHERE identificacion = $1)`, nationalID).Scan(&exists)
	return exists, err
}

func (r *patientRepoPG) PatientIDForUser(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := r.conn(ctx).QueryRow(ctx, `SELECT id FROM pacientes WHERE usuario_id = $1`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, auth.ErrNoPatient
	}
	return id, err
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+patientFrom+` WHERE u.activo`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+patientFrom+`
		WHERE u.activo ORDER BY p.apellidos, p.nombres, p.id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) Update(ctx context.Context, id int64, patch fieldpatch.Patch) error {
	set, args := patch.SetClause(2)
	err := execOne(ctx, r.conn(ctx), `UPDATE pacientes SET `+set+` WHERE id = $1`, append([]interface{}{id}, args...)...)
	if db.IsUniqueViolation(err, "pacientes_identificacion_key") {
		return ErrDuplicateNationalID
	}
	return err
}

func (r *patientRepoPG) Delete(ctx context.Context, id int64) (int64, error) {
	var userID int64
	err := r.conn(ctx).QueryRow(ctx, `DELETE FROM pacientes WHERE id = $1 RETURNING usuario_id`, id).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return userID, err
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

func (r *doctorRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const doctorCols = `m.id, m.usuario_id, m.nombres, m.apellidos, m.especialidad,
	m.licencia_medica, m.telefono, m.fecha_registro, u.email, u.activo`

const doctorFrom = ` FROM medicos m JOIN usuarios u ON u.id = m.usuario_id`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.UserID, &d.FirstNames, &d.LastNames, &d.Specialty,
		&d.LicenseNumber, &d.Phone, &d.RegisteredAt, &d.Email, &d.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medicos (usuario_id, nombres, apellidos, especialidad, licencia_medica, telefono)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id, fecha_registro`,
		d.UserID, d.FirstNames, d.LastNames, d.Specialty, d.LicenseNumber, d.Phone,
	).Scan(&d.ID, &d.RegisteredAt)
	if db.IsUniqueViolation(err, "medicos_licencia_medica_key") {
		return ErrDuplicateLicense
	}
	return err
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id int64) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+doctorFrom+` WHERE m.id = $1`, id))
}

func (r *doctorRepoPG) LicenseExists(ctx context.Context, license string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM medicos WHERE licencia_medica = $1)`, license).Scan(&exists)
	return exists, err
}

func (r *doctorRepoPG) DoctorIDForUser(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := r.conn(ctx).QueryRow(ctx, `SELECT id FROM medicos WHERE usuario_id = $1`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return id, err
}

func (r *doctorRepoPG) List(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+doctorFrom+` WHERE u.activo`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+doctorCols+doctorFrom+`
		WHERE u.activo ORDER BY m.apellidos, m.nombres, m.id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

func (r *doctorRepoPG) Update(ctx context.Context, id int64, patch fieldpatch.Patch) error {
	set, args := patch.SetClause(2)
	err := execOne(ctx, r.conn(ctx), `UPDATE medicos SET `+set+` WHERE id = $1`, append([]interface{}{id}, args...)...)
	if db.IsUniqueViolation(err, "medicos_licencia_medica_key") {
		return ErrDuplicateLicense
	}
	return err
}

func (r *doctorRepoPG) Delete(ctx context.Context, id int64) (int64, error) {
	var userID int64
	err := r.conn(ctx).QueryRow(ctx, `DELETE FROM medicos WHERE id = $1 RETURNING usuario_id`, id).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return userID, err
}
