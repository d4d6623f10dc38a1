package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

var appointmentCols = []string{
	"id", "code", "date", "start_time", "end_time", "provider_id", "patient_id",
	"status", "reason", "external_event_id", "cancelled_at", "cancelled_by",
	"created_by_id", "created_at", "updated_at",
}

func appointmentRow(id, providerID uuid.UUID, date, start, end string) []any {
	now := time.Now()
	return []any{
		id, "A-100", date, start, end, providerID, (*uuid.UUID)(nil),
		StatusScheduled, "Checkup", (*string)(nil), (*time.Time)(nil), (*string)(nil),
		(*uuid.UUID)(nil), now, now,
	}
}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PgRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPgRepositoryWithQuerier(mock)
}

func TestPgGetProviderByID(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()
	now := time.Now()
	calendarID := "cal-1"

	mock.ExpectQuery("SELECT id, name, calendar_id, active, created_at, updated_at").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "calendar_id", "active", "created_at", "updated_at"}).
			AddRow(id, "Dr. Reyes", &calendarID, true, now, now))

	p, err := repo.GetProviderByID(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "Dr. Reyes", p.Name)
	require.Equal(t, "cal-1", p.CalendarID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetProviderByIDNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT id, name, calendar_id, active, created_at, updated_at").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetProviderByID(context.Background(), id)
	require.ErrorIs(t, err, ErrProviderNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCreateAppointment(t *testing.T) {
	mock, repo := newMockRepo(t)
	providerID := uuid.New()
	rowID := uuid.New()

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(appointmentCols).
			AddRow(appointmentRow(rowID, providerID, "2025-01-01", "09:00", "09:30")...))

	a, err := repo.CreateAppointment(context.Background(), CreateAppointmentParams{
		Code:       "A-100",
		Date:       "2025-01-01",
		StartTime:  "09:00",
		EndTime:    "09:30",
		ProviderID: providerID,
		Reason:     "Checkup",
	})
	require.NoError(t, err)
	require.Equal(t, rowID, a.ID)
	require.Equal(t, StatusScheduled, a.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateAppointmentBuildsSetClause(t *testing.T) {
	mock, repo := newMockRepo(t)
	providerID := uuid.New()
	id := uuid.New()
	status := StatusConfirmed
	reason := "follow-up"

	// Placeholders follow the patch field order: $1 id, then status, reason.
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, status, reason).
		WillReturnRows(pgxmock.NewRows(appointmentCols).
			AddRow(appointmentRow(id, providerID, "2025-01-01", "09:00", "09:30")...))

	_, err := repo.UpdateAppointment(context.Background(), id, AppointmentPatch{
		Status: &status,
		Reason: &reason,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgSetExternalEvent(t *testing.T) {
	mock, repo := newMockRepo(t)
	providerID := uuid.New()
	id := uuid.New()

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, "evt-1", "evt-1").
		WillReturnRows(pgxmock.NewRows(appointmentCols).
			AddRow(appointmentRow(id, providerID, "2025-01-01", "09:00", "09:30")...))

	_, err := repo.SetExternalEvent(context.Background(), id, "evt-1", "evt-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgDeleteAppointmentNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)
	id := uuid.New()

	mock.ExpectExec("DELETE FROM appointments").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := repo.DeleteAppointment(context.Background(), id)
	require.ErrorIs(t, err, ErrAppointmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgFindForProviderDay(t *testing.T) {
	mock, repo := newMockRepo(t)
	providerID := uuid.New()

	mock.ExpectQuery("FROM appointments").
		WithArgs(providerID, "2025-01-01").
		WillReturnRows(pgxmock.NewRows(appointmentCols).
			AddRow(appointmentRow(uuid.New(), providerID, "2025-01-01", "09:00", "09:30")...).
			AddRow(appointmentRow(uuid.New(), providerID, "2025-01-01", "10:00", "10:30")...))

	appts, err := repo.FindForProviderDay(context.Background(), providerID, "2025-01-01")
	require.NoError(t, err)
	require.Len(t, appts, 2)
	require.Equal(t, "09:00", appts[0].StartTime)
	require.Equal(t, "10:00", appts[1].StartTime)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetAppointmentDetailWithoutPatient(t *testing.T) {
	mock, repo := newMockRepo(t)
	providerID := uuid.New()
	id := uuid.New()

	cols := append(append([]string{}, appointmentCols...), "provider_name", "patient_name", "patient_email")
	row := append(appointmentRow(id, providerID, "2025-01-01", "09:00", "09:30"),
		"Dr. Reyes", (*string)(nil), (*string)(nil))

	mock.ExpectQuery("FROM appointments a").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(row...))

	d, err := repo.GetAppointmentDetail(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, "Dr. Reyes", d.ProviderName)
	require.Empty(t, d.PatientName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListAppointmentsAppliesDefaultLimit(t *testing.T) {
	mock, repo := newMockRepo(t)
	providerID := uuid.New()

	cols := append(append([]string{}, appointmentCols...), "provider_name", "patient_name", "patient_email")
	row := append(appointmentRow(uuid.New(), providerID, "2025-01-01", "09:00", "09:30"),
		"Dr. Reyes", (*string)(nil), (*string)(nil))

	mock.ExpectQuery("FROM appointments a").
		WithArgs(providerID, 200).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(row...))

	items, err := repo.ListAppointments(context.Background(), ListFilter{ProviderID: &providerID})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgFindUnmirrored(t *testing.T) {
	mock, repo := newMockRepo(t)
	providerID := uuid.New()

	mock.ExpectQuery("external_event_id IS NULL").
		WithArgs(50).
		WillReturnRows(pgxmock.NewRows(appointmentCols).
			AddRow(appointmentRow(uuid.New(), providerID, "2025-01-01", "09:00", "09:30")...))

	appts, err := repo.FindUnmirrored(context.Background(), 50)
	require.NoError(t, err)
	require.Len(t, appts, 1)
	require.Nil(t, appts[0].ExternalEventID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgInsertEvent(t *testing.T) {
	mock, repo := newMockRepo(t)
	apptID := uuid.New()

	mock.ExpectExec("INSERT INTO schedule_events").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.InsertEvent(context.Background(), ScheduleEvent{
		EventType:     EventAppointmentCreated,
		AppointmentID: &apptID,
		Payload:       []byte(`{"date":"2025-01-01"}`),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
