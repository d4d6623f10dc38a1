package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrValidation marks malformed or missing client input. Wrap it with
	// detail: fmt.Errorf("%w: providerId required", ErrValidation).
	ErrValidation = errors.New("validation failed")
)

// CreateAppointmentParams are the fields the workflow persists for the
// provisional row. Status is always Scheduled and the external event id is
// null until the mirror write succeeds.
type CreateAppointmentParams struct {
	Code        string
	Date        string
	StartTime   string
	EndTime     string
	ProviderID  uuid.UUID
	PatientID   *uuid.UUID
	Reason      string
	CreatedByID *uuid.UUID
}

// AppointmentPatch is a partial update. Nil fields are left untouched. Time
// fields travel together: the workflow never moves start without end.
type AppointmentPatch struct {
	Date        *string
	StartTime   *string
	EndTime     *string
	Status      *Status
	Reason      *string
	CancelledAt *time.Time // set only on transition to Cancelled
	CancelledBy *string
}

// ListFilter narrows the composed list view. Zero values mean "no filter".
type ListFilter struct {
	ProviderID *uuid.UUID
	Date       string
	Limit      int
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	CreateAppointment(ctx context.Context, p CreateAppointmentParams) (*Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateAppointment(ctx context.Context, id uuid.UUID, patch AppointmentPatch) (*Appointment, error)
	SetExternalEvent(ctx context.Context, id uuid.UUID, eventID, code string) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	// For overlap checks
	FindForProviderDay(ctx context.Context, providerID uuid.UUID, date string) ([]Appointment, error)

	// Composed read paths
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]AppointmentDetail, error)

	// Reconcile worker
	FindUnmirrored(ctx context.Context, limit int) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev ScheduleEvent) error
}
