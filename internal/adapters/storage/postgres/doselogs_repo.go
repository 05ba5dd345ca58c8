package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"medication-adherence/internal/domain/doselogs"
	"medication-adherence/internal/domain/schedule"
)

type DoseLogsRepo struct {
	db *sql.DB
}

func NewDoseLogsRepo(db *sql.DB) *DoseLogsRepo {
	return &DoseLogsRepo{db: db}
}

const doseLogColumns = `
	id, owner_user_id, regimen_id,
	scheduled_time, actual_time, status,
	mood, side_effects, effectiveness, notes,
	source, recorded_at`

func (r *DoseLogsRepo) Create(ctx context.Context, l schedule.DoseLog) error {
	effects := l.SideEffects
	if effects == nil {
		effects = []string{}
	}
	eb, err := json.Marshal(effects)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO dose_logs (`+doseLogColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		l.ID,
		l.OwnerUserID,
		l.RegimenID,
		l.ScheduledTime,
		toNullTime(l.ActualTime),
		string(l.Status),
		l.Mood,
		string(eb),
		l.Effectiveness,
		l.Notes,
		string(l.Source),
		l.RecordedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: regimen %s at %s", doselogs.ErrAlreadyLogged, l.RegimenID, l.ScheduledTime.Format(time.RFC3339))
	}
	return err
}

func (r *DoseLogsRepo) GetByID(ctx context.Context, id string) (schedule.DoseLog, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return schedule.DoseLog{}, ErrNotFound
	}

	row := r.db.QueryRowContext(ctx, `SELECT `+doseLogColumns+` FROM dose_logs WHERE id = $1`, id)
	l, err := scanDoseLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.DoseLog{}, ErrNotFound
	}
	return l, err
}

func (r *DoseLogsRepo) List(ctx context.Context, ownerUserID string, filter doselogs.ListFilter) ([]schedule.DoseLog, error) {
	ownerUserID = strings.TrimSpace(ownerUserID)
	if ownerUserID == "" {
		return nil, nil
	}

	sb := strings.Builder{}
	sb.WriteString(`SELECT ` + doseLogColumns + ` FROM dose_logs WHERE owner_user_id = $1`)

	args := []any{ownerUserID}
	argN := 2

	if filter.RegimenID != "" {
		sb.WriteString(fmt.Sprintf(" AND regimen_id = $%d", argN))
		args = append(args, filter.RegimenID)
		argN++
	}
	if filter.From != nil {
		sb.WriteString(fmt.Sprintf(" AND scheduled_time >= $%d", argN))
		args = append(args, *filter.From)
		argN++
	}
	if filter.To != nil {
		sb.WriteString(fmt.Sprintf(" AND scheduled_time <= $%d", argN))
		args = append(args, *filter.To)
		argN++
	}

	sb.WriteString(" ORDER BY scheduled_time ASC, recorded_at ASC")
	if filter.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", argN))
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]schedule.DoseLog, 0)
	for rows.Next() {
		l, err := scanDoseLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanDoseLog(s rowScanner) (schedule.DoseLog, error) {
	var l schedule.DoseLog
	var status, source string
	var actual sql.NullTime
	var effects []byte

	if err := s.Scan(
		&l.ID,
		&l.OwnerUserID,
		&l.RegimenID,
		&l.ScheduledTime,
		&actual,
		&status,
		&l.Mood,
		&effects,
		&l.Effectiveness,
		&l.Notes,
		&source,
		&l.RecordedAt,
	); err != nil {
		return schedule.DoseLog{}, err
	}

	l.Status = schedule.DoseStatus(status)
	l.Source = schedule.LogSource(source)
	l.ActualTime = fromNullTime(actual)
	if err := json.Unmarshal(effects, &l.SideEffects); err != nil {
		return schedule.DoseLog{}, err
	}
	return l, nil
}
