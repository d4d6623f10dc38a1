package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the slice of pgxpool.Pool the repository needs. Satisfied by
// *pgxpool.Pool and by pgxmock pools in tests.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRepository struct {
	q Querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{q: pool}
}

// NewPgRepositoryWithQuerier allows injecting mocks for tests.
func NewPgRepositoryWithQuerier(q Querier) *PgRepository {
	return &PgRepository{q: q}
}

const appointmentColumns = `id, code, date, start_time, end_time, provider_id, patient_id,
		       status, reason, external_event_id, cancelled_at, cancelled_by,
		       created_by_id, created_at, updated_at`

// Helpers

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var calendarID *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&calendarID,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	if calendarID != nil {
		p.CalendarID = *calendarID
	}
	return &p, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Email,
		&p.Phone,
		&p.Notes,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	return &p, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.Code,
		&a.Date,
		&a.StartTime,
		&a.EndTime,
		&a.ProviderID,
		&a.PatientID,
		&a.Status,
		&a.Reason,
		&a.ExternalEventID,
		&a.CancelledAt,
		&a.CancelledBy,
		&a.CreatedByID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	var patientName, patientEmail *string

	err := row.Scan(
		&d.ID,
		&d.Code,
		&d.Date,
		&d.StartTime,
		&d.EndTime,
		&d.ProviderID,
		&d.PatientID,
		&d.Status,
		&d.Reason,
		&d.ExternalEventID,
		&d.CancelledAt,
		&d.CancelledBy,
		&d.CreatedByID,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.ProviderName,
		&patientName,
		&patientEmail,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if patientName != nil {
		d.PatientName = *patientName
	}
	if patientEmail != nil {
		d.PatientEmail = *patientEmail
	}
	return &d, nil
}

// Interface methods

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, calendar_id, active, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.q.QueryRow(ctx, `
		SELECT id, name, email, phone, notes, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, p CreateAppointmentParams) (*Appointment, error) {
	id := uuid.New()

	row := r.q.QueryRow(ctx, `
		INSERT INTO appointments (id, code, date, start_time, end_time, provider_id, patient_id,
		                          status, reason, created_by_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'Scheduled', $8, $9, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, p.Code, p.Date, p.StartTime, p.EndTime, p.ProviderID, p.PatientID, p.Reason, p.CreatedByID)

	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, id uuid.UUID, patch AppointmentPatch) (*Appointment, error) {
	set := "updated_at = now()"
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		set += fmt.Sprintf(", %s = $%d", col, len(args))
	}

	if patch.Date != nil {
		add("date", *patch.Date)
	}
	if patch.StartTime != nil {
		add("start_time", *patch.StartTime)
	}
	if patch.EndTime != nil {
		add("end_time", *patch.EndTime)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Reason != nil {
		add("reason", *patch.Reason)
	}
	if patch.CancelledAt != nil {
		add("cancelled_at", *patch.CancelledAt)
	}
	if patch.CancelledBy != nil {
		add("cancelled_by", *patch.CancelledBy)
	}

	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET `+set+`
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, args...)

	return scanAppointment(row)
}

func (r *PgRepository) SetExternalEvent(ctx context.Context, id uuid.UUID, eventID, code string) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET external_event_id = $2,
		    code = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, eventID, code)

	return scanAppointment(row)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `
		DELETE FROM appointments
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) FindForProviderDay(ctx context.Context, providerID uuid.UUID, date string) ([]Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND date = $2
		  AND status <> 'Cancelled'
		ORDER BY start_time
	`, providerID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

const detailColumns = `a.id, a.code, a.date, a.start_time, a.end_time, a.provider_id, a.patient_id,
		       a.status, a.reason, a.external_event_id, a.cancelled_at, a.cancelled_by,
		       a.created_by_id, a.created_at, a.updated_at,
		       pr.name, pa.name, pa.email`

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+detailColumns+`
		FROM appointments a
		JOIN providers pr ON pr.id = a.provider_id
		LEFT JOIN patients pa ON pa.id = a.patient_id
		WHERE a.id = $1
	`, id)
	return scanDetail(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, error) {
	where := "TRUE"
	args := []any{}
	if f.ProviderID != nil {
		args = append(args, *f.ProviderID)
		where += fmt.Sprintf(" AND a.provider_id = $%d", len(args))
	}
	if f.Date != "" {
		args = append(args, f.Date)
		where += fmt.Sprintf(" AND a.date = $%d", len(args))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)

	rows, err := r.q.Query(ctx, fmt.Sprintf(`
		SELECT `+detailColumns+`
		FROM appointments a
		JOIN providers pr ON pr.id = a.provider_id
		LEFT JOIN patients pa ON pa.id = a.patient_id
		WHERE %s
		ORDER BY a.date, a.start_time
		LIMIT $%d
	`, where, len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) FindUnmirrored(ctx context.Context, limit int) ([]Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE external_event_id IS NULL
		  AND status <> 'Cancelled'
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev ScheduleEvent) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO schedule_events (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert schedule event: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
