package scheduling

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled Status = "Scheduled"
	StatusConfirmed Status = "Confirmed"
	StatusCheckIn   Status = "CheckIn"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// statusSynonyms is the single casing authority for status input. Upstream
// clients historically sent the vocabulary in several spellings, so every
// call site must go through NormalizeStatus instead of comparing raw strings.
var statusSynonyms = map[string]Status{
	"scheduled": StatusScheduled,
	"confirmed": StatusConfirmed,
	"checkin":   StatusCheckIn,
	"check in":  StatusCheckIn,
	"check-in":  StatusCheckIn,
	"checkedin": StatusCheckIn,
	"completed": StatusCompleted,
	"cancelled": StatusCancelled,
	"canceled":  StatusCancelled,
}

// NormalizeStatus maps free-text status input to the canonical vocabulary.
func NormalizeStatus(raw string) (Status, bool) {
	s, ok := statusSynonyms[strings.ToLower(strings.TrimSpace(raw))]
	return s, ok
}

type Provider struct {
	ID         uuid.UUID
	Name       string
	CalendarID string // external calendar identifier, empty until provisioned
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	Notes     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment is the authoritative local record. Date is a clinic-local
// calendar day (YYYY-MM-DD) and StartTime/EndTime are wall-clock HH:mm
// forming the half-open interval [StartTime, EndTime).
type Appointment struct {
	ID              uuid.UUID
	Code            string
	Date            string
	StartTime       string
	EndTime         string
	ProviderID      uuid.UUID
	PatientID       *uuid.UUID
	Status          Status
	Reason          string
	ExternalEventID *string
	CancelledAt     *time.Time
	CancelledBy     *string
	CreatedByID     *uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Cancelled reports whether the appointment no longer blocks its interval.
func (a *Appointment) Cancelled() bool {
	return a.Status == StatusCancelled
}

// AppointmentDetail is the composed view returned to callers, joined with
// provider and patient display data.
type AppointmentDetail struct {
	Appointment
	ProviderName string
	PatientName  string
	PatientEmail string
}

type ScheduleEvent struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
