package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"medication-adherence/internal/domain/caregivers"
)

type CaregiversRepo struct {
	db *sql.DB
}

func NewCaregiversRepo(db *sql.DB) *CaregiversRepo {
	return &CaregiversRepo{db: db}
}

const linkColumns = `
	id, patient_user_id, caregiver_user_id,
	scopes, status,
	created_at, updated_at, revoked_at`

func (r *CaregiversRepo) Create(ctx context.Context, l caregivers.Link) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO caregiver_links (`+linkColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		l.ID,
		l.PatientUserID,
		l.CaregiverUserID,
		scopesToTextArray(l.Scopes),
		string(l.Status),
		l.CreatedAt,
		l.UpdatedAt,
		toNullTime(l.RevokedAt),
	)
	return err
}

func (r *CaregiversRepo) Update(ctx context.Context, l caregivers.Link) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE caregiver_links
		SET
			scopes = $2,
			status = $3,
			updated_at = $4,
			revoked_at = $5
		WHERE id = $1
	`,
		l.ID,
		scopesToTextArray(l.Scopes),
		string(l.Status),
		l.UpdatedAt,
		toNullTime(l.RevokedAt),
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CaregiversRepo) GetByID(ctx context.Context, id string) (caregivers.Link, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return caregivers.Link{}, ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM caregiver_links WHERE id = $1`, id)
	l, err := scanLink(pgtype.NewMap(), row)
	if errors.Is(err, sql.ErrNoRows) {
		return caregivers.Link{}, ErrNotFound
	}
	return l, err
}

func (r *CaregiversRepo) ListByPatient(ctx context.Context, patientUserID string) ([]caregivers.Link, error) {
	patientUserID = strings.TrimSpace(patientUserID)
	if patientUserID == "" {
		return nil, nil
	}
	return r.list(ctx, `WHERE patient_user_id = $1 ORDER BY created_at ASC`, patientUserID)
}

func (r *CaregiversRepo) ListByCaregiver(ctx context.Context, caregiverUserID string) ([]caregivers.Link, error) {
	caregiverUserID = strings.TrimSpace(caregiverUserID)
	if caregiverUserID == "" {
		return nil, nil
	}
	return r.list(ctx, `WHERE caregiver_user_id = $1 ORDER BY updated_at DESC`, caregiverUserID)
}

// Si hubiera más de un vínculo activo para el par, gana el más reciente.
func (r *CaregiversRepo) GetActiveLink(ctx context.Context, patientUserID, caregiverUserID string) (caregivers.Link, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+linkColumns+`
		FROM caregiver_links
		WHERE patient_user_id = $1
		  AND caregiver_user_id = $2
		  AND status = $3
		ORDER BY updated_at DESC, created_at DESC
		LIMIT 1
	`, patientUserID, caregiverUserID, string(caregivers.StatusActive))

	l, err := scanLink(pgtype.NewMap(), row)
	if errors.Is(err, sql.ErrNoRows) {
		return caregivers.Link{}, ErrNotFound
	}
	return l, err
}

func (r *CaregiversRepo) list(ctx context.Context, where string, args ...any) ([]caregivers.Link, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+linkColumns+` FROM caregiver_links `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	m := pgtype.NewMap()
	out := make([]caregivers.Link, 0)
	for rows.Next() {
		l, err := scanLink(m, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// scopes es text[]: database/sql no lo decodifica solo, pgtype.Map sí.
// Un Map por consulta, no es seguro compartirlo entre goroutines.
func scanLink(m *pgtype.Map, s rowScanner) (caregivers.Link, error) {
	var l caregivers.Link
	var status string
	var scopes []string
	var revokedAt sql.NullTime

	if err := s.Scan(
		&l.ID,
		&l.PatientUserID,
		&l.CaregiverUserID,
		m.SQLScanner(&scopes),
		&status,
		&l.CreatedAt,
		&l.UpdatedAt,
		&revokedAt,
	); err != nil {
		return caregivers.Link{}, err
	}

	l.Status = caregivers.Status(status)
	l.Scopes = textArrayToScopes(scopes)
	l.RevokedAt = fromNullTime(revokedAt)
	return l, nil
}

func scopesToTextArray(in []caregivers.Scope) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}

func textArrayToScopes(in []string) []caregivers.Scope {
	out := make([]caregivers.Scope, 0, len(in))
	for _, s := range in {
		out = append(out, caregivers.Scope(s))
	}
	return out
}
