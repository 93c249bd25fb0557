package identity

import (
	"errors"
	"time"

	"github.com/sanitas/hce/internal/platform/auth"
	"github.com/sanitas/hce/pkg/civil"
	"github.com/sanitas/hce/pkg/fieldpatch"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrDuplicateEmail      = errors.New("email already registered")
	ErrDuplicateNationalID = errors.New("identification already registered")
	ErrDuplicateLicense    = errors.New("medical license already registered")
)

// User is a login account. PasswordHash holds a bcrypt hash, or the
// plaintext credential of an account created before hashing was enforced.
type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         auth.Role  `json:"rol"`
	Active       bool       `json:"activo"`
	CreatedAt    time.Time  `json:"fecha_creacion"`
	LastAccess   *time.Time `json:"ultimo_acceso,omitempty"`
}

// Patient is the demographic profile owned by a paciente account. Email
// and Active are read from the owning user.
type Patient struct {
	ID                    int64      `json:"id"`
	UserID                int64      `json:"usuario_id"`
	FirstNames            string     `json:"nombres"`
	LastNames             string     `json:"apellidos"`
	NationalID            string     `json:"identificacion"`
	BirthDate             civil.Date `json:"fecha_nacimiento"`
	Gender                *string    `json:"genero"`
	Phone                 *string    `json:"telefono"`
	Address               *string    `json:"direccion"`
	EmergencyContactName  *string    `json:"contacto_emergencia_nombre"`
	EmergencyContactPhone *string    `json:"contacto_emergencia_telefono"`
	EmergencyContactRel   *string    `json:"contacto_emergencia_relacion"`
	RegisteredAt          time.Time  `json:"fecha_registro"`
	Email                 string     `json:"email,omitempty"`
	Active                bool       `json:"activo"`
}

// FullName is "nombres apellidos".
func (p *Patient) FullName() string {
	return p.FirstNames + " " + p.LastNames
}

// Doctor is the professional profile owned by a medico account.
type Doctor struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"usuario_id"`
	FirstNames    string    `json:"nombres"`
	LastNames     string    `json:"apellidos"`
	Specialty     string    `json:"especialidad"`
	LicenseNumber string    `json:"licencia_medica"`
	Phone         *string   `json:"telefono"`
	RegisteredAt  time.Time `json:"fecha_registro"`
	Email         string    `json:"email,omitempty"`
	Active        bool      `json:"activo"`
}

// PatientRegistration is the payload of /register and POST /pacientes.
type PatientRegistration struct {
	Email    string `json:"email"`
	Password string `json:"contrasena"`
	Patient
}

// DoctorRegistration is the payload of /register-medico and POST /medicos.
type DoctorRegistration struct {
	Email    string `json:"email"`
	Password string `json:"contrasena"`
	Doctor
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"contrasena"`
}

var patientFields = []fieldpatch.Field{
	{Key: "nombres", Column: "nombres", Type: fieldpatch.Text, Required: true},
	{Key: "apellidos", Column: "apellidos", Type: fieldpatch.Text, Required: true},
	{Key: "identificacion", Column: "identificacion", Type: fieldpatch.Text, Required: true},
	{Key: "fecha_nacimiento", Column: "fecha_nacimiento", Type: fieldpatch.Date, Required: true},
	{Key: "genero", Column: "genero", Type: fieldpatch.Text},
	{Key: "telefono", Column: "telefono", Type: fieldpatch.Text},
	{Key: "direccion", Column: "direccion", Type: fieldpatch.Text},
	{Key: "contacto_emergencia_nombre", Column: "contacto_emergencia_nombre", Type: fieldpatch.Text},
	{Key: "contacto_emergencia_telefono", Column: "contacto_emergencia_telefono", Type: fieldpatch.Text},
	{Key: "contacto_emergencia_relacion", Column: "contacto_emergencia_relacion", Type: fieldpatch.Text},
}

var doctorFields = []fieldpatch.Field{
	{Key: "nombres", Column: "nombres", Type: fieldpatch.Text, Required: true},
	{Key: "apellidos", Column: "apellidos", Type: fieldpatch.Text, Required: true},
	{Key: "especialidad", Column: "especialidad", Type: fieldpatch.Text, Required: true},
	{Key: "licencia_medica", Column: "licencia_medica", Type: fieldpatch.Text, Required: true},
	{Key: "telefono", Column: "telefono", Type: fieldpatch.Text},
}
