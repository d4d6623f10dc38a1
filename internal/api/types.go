package api

import (
	"time"

	"github.com/google/uuid"
)

type CreateAppointmentRequest struct {
	ProviderID string `json:"providerId"`
	PatientID  string `json:"patientId,omitempty"`
	Date       string `json:"date"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Reason     string `json:"reason,omitempty"`
	Code       string `json:"code,omitempty"`
}

// PatchAppointmentRequest accepts either {startISO,endISO} or
// {date,start,end} for a time change, plus optional status and reason.
type PatchAppointmentRequest struct {
	StartISO string  `json:"startISO,omitempty"`
	EndISO   string  `json:"endISO,omitempty"`
	Date     string  `json:"date,omitempty"`
	Start    string  `json:"start,omitempty"`
	End      string  `json:"end,omitempty"`
	Status   *string `json:"status,omitempty"`
	Reason   *string `json:"reason,omitempty"`
}

type PersonView struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	Code            string     `json:"code"`
	Status          string     `json:"status"`
	Reason          string     `json:"reason,omitempty"`
	ProviderID      uuid.UUID  `json:"providerId"`
	ExternalEventID string     `json:"externalEventId,omitempty"`
	Patient         PersonView `json:"patient"`
	Provider        PersonView `json:"provider"`
	StartTimestamp  string     `json:"startTimestamp"`
	EndTimestamp    string     `json:"endTimestamp"`
	CancelledAt     *time.Time `json:"cancelledAt,omitempty"`
	CancelledBy     string     `json:"cancelledBy,omitempty"`
}

type ListAppointmentsResponse struct {
	Items []AppointmentResponse `json:"items"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
