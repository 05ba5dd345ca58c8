package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"medication-adherence/internal/domain/regimens"
	"medication-adherence/internal/domain/schedule"
)

type RegimensRepo struct {
	db *sql.DB
}

func NewRegimensRepo(db *sql.DB) *RegimensRepo {
	return &RegimensRepo{db: db}
}

const regimenColumns = `
	id, owner_user_id,
	medication_ref, medication_name,
	frequency, fixed_times, custom_schedule,
	start_date, end_date,
	is_active, dosage_amount, dosage_unit,
	created_at, updated_at`

type customTimeJSON struct {
	Time  string `json:"time"`
	Label string `json:"label,omitempty"`
}

func (r *RegimensRepo) Create(ctx context.Context, reg schedule.Regimen) error {
	fixed, custom, err := encodeTimes(reg)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO regimens (`+regimenColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		reg.ID,
		reg.OwnerUserID,
		reg.MedicationRef,
		reg.MedicationName,
		string(reg.Frequency),
		fixed,
		custom,
		reg.StartDate,
		toNullTime(reg.EndDate),
		reg.IsActive,
		reg.Dosage.Amount,
		reg.Dosage.Unit,
		reg.CreatedAt,
		reg.UpdatedAt,
	)
	return err
}

func (r *RegimensRepo) Update(ctx context.Context, reg schedule.Regimen) error {
	fixed, custom, err := encodeTimes(reg)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE regimens
		SET
			medication_name = $2,
			fixed_times = $3,
			custom_schedule = $4,
			end_date = $5,
			is_active = $6,
			dosage_amount = $7,
			dosage_unit = $8,
			updated_at = $9
		WHERE id = $1
	`,
		reg.ID,
		reg.MedicationName,
		fixed,
		custom,
		toNullTime(reg.EndDate),
		reg.IsActive,
		reg.Dosage.Amount,
		reg.Dosage.Unit,
		reg.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return regimens.ErrNotFound
	}
	return nil
}

func (r *RegimensRepo) GetByID(ctx context.Context, id string) (schedule.Regimen, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return schedule.Regimen{}, regimens.ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+regimenColumns+` FROM regimens WHERE id = $1`, id)
	reg, err := scanRegimen(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.Regimen{}, regimens.ErrNotFound
	}
	return reg, err
}

func (r *RegimensRepo) ListByOwner(ctx context.Context, ownerUserID string) ([]schedule.Regimen, error) {
	ownerUserID = strings.TrimSpace(ownerUserID)
	if ownerUserID == "" {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+regimenColumns+`
		FROM regimens
		WHERE owner_user_id = $1
		ORDER BY created_at ASC, id ASC
	`, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]schedule.Regimen, 0)
	for rows.Next() {
		reg, err := scanRegimen(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

func (r *RegimensRepo) ListOwners(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT owner_user_id
		FROM regimens
		WHERE is_active
		ORDER BY owner_user_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		out = append(out, owner)
	}
	return out, rows.Err()
}

// rowScanner cubre *sql.Row y *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRegimen(s rowScanner) (schedule.Regimen, error) {
	var reg schedule.Regimen
	var freq string
	var fixed, custom []byte
	var endDate sql.NullTime

	if err := s.Scan(
		&reg.ID,
		&reg.OwnerUserID,
		&reg.MedicationRef,
		&reg.MedicationName,
		&freq,
		&fixed,
		&custom,
		&reg.StartDate,
		&endDate,
		&reg.IsActive,
		&reg.Dosage.Amount,
		&reg.Dosage.Unit,
		&reg.CreatedAt,
		&reg.UpdatedAt,
	); err != nil {
		return schedule.Regimen{}, err
	}

	reg.Frequency = schedule.Frequency(freq)
	reg.EndDate = fromNullTime(endDate)

	if err := json.Unmarshal(fixed, &reg.FixedTimes); err != nil {
		return schedule.Regimen{}, err
	}
	var ct []customTimeJSON
	if err := json.Unmarshal(custom, &ct); err != nil {
		return schedule.Regimen{}, err
	}
	for _, c := range ct {
		reg.CustomSchedule = append(reg.CustomSchedule, schedule.CustomTime{Time: c.Time, Label: c.Label})
	}
	return reg, nil
}

func encodeTimes(reg schedule.Regimen) (string, string, error) {
	fixed := reg.FixedTimes
	if fixed == nil {
		fixed = []string{}
	}
	fb, err := json.Marshal(fixed)
	if err != nil {
		return "", "", err
	}

	ct := make([]customTimeJSON, 0, len(reg.CustomSchedule))
	for _, c := range reg.CustomSchedule {
		ct = append(ct, customTimeJSON{Time: c.Time, Label: c.Label})
	}
	cb, err := json.Marshal(ct)
	if err != nil {
		return "", "", err
	}
	return string(fb), string(cb), nil
}
