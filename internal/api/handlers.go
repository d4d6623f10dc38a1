package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	redisclient "github.com/clinicops/clinic-scheduler/internal/redis"
	"github.com/clinicops/clinic-scheduler/internal/scheduling"
)

func createAppointmentHandler(svc *scheduling.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if req.ProviderID == "" {
			writeError(w, http.StatusBadRequest, "validation_error", "providerId required")
			return
		}
		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "providerId must be a valid UUID")
			return
		}

		var patientID *uuid.UUID
		if req.PatientID != "" {
			id, err := uuid.Parse(req.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "validation_error", "patientId must be a valid UUID")
				return
			}
			patientID = &id
		}

		detail, err := svc.CreateAppointment(r.Context(), scheduling.CreateRequest{
			ProviderID: providerID,
			PatientID:  patientID,
			Date:       req.Date,
			Start:      req.Start,
			End:        req.End,
			Reason:     req.Reason,
			Code:       req.Code,
			User:       GetCurrentUser(r.Context()),
		})
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(detail, loc))
	}
}

func patchAppointmentHandler(svc *scheduling.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "id must be a valid UUID")
			return
		}

		var req PatchAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		timeChange, err := resolveTimeChange(req, loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}

		detail, err := svc.PatchAppointment(r.Context(), id, scheduling.PatchRequest{
			Time:   timeChange,
			Status: req.Status,
			Reason: req.Reason,
			User:   GetCurrentUser(r.Context()),
		})
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(detail, loc))
	}
}

func getAppointmentHandler(svc *scheduling.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "id must be a valid UUID")
			return
		}

		detail, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(detail, loc))
	}
}

func listAppointmentsHandler(svc *scheduling.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := scheduling.ListQuery{
			Date: r.URL.Query().Get("date"),
			By:   r.URL.Query().Get("by"),
			Term: r.URL.Query().Get("term"),
		}

		if raw := r.URL.Query().Get("providerId"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "validation_error", "providerId must be a valid UUID")
				return
			}
			q.ProviderID = &id
		}

		if raw := r.URL.Query().Get("timeMin"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "validation_error", "timeMin must be RFC3339")
				return
			}
			q.TimeMin = &t
		}
		if raw := r.URL.Query().Get("timeMax"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "validation_error", "timeMax must be RFC3339")
				return
			}
			q.TimeMax = &t
		}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				q.Limit = n
			}
		}

		items, err := svc.ListAppointments(r.Context(), q)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		resp := ListAppointmentsResponse{Items: make([]AppointmentResponse, 0, len(items))}
		for i := range items {
			resp.Items = append(resp.Items, toAppointmentResponse(&items[i], loc))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func deleteAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "id must be a valid UUID")
			return
		}

		if err := svc.DeleteAppointment(r.Context(), id); err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// resolveTimeChange collapses the two accepted body variants into one
// canonical interval. {startISO,endISO} wins when both are present.
func resolveTimeChange(req PatchAppointmentRequest, loc *time.Location) (*scheduling.TimeChange, error) {
	if req.StartISO != "" && req.EndISO != "" {
		date, start, err := scheduling.FromExternalTimestamp(req.StartISO, loc)
		if err != nil {
			return nil, err
		}
		endDate, end, err := scheduling.FromExternalTimestamp(req.EndISO, loc)
		if err != nil {
			return nil, err
		}
		if endDate != date {
			return nil, errors.New("startISO and endISO must fall on the same day")
		}
		return &scheduling.TimeChange{Date: date, Start: start, End: end}, nil
	}
	if req.Date != "" && req.Start != "" && req.End != "" {
		return &scheduling.TimeChange{Date: req.Date, Start: req.Start, End: req.End}, nil
	}
	return nil, nil
}

func toAppointmentResponse(d *scheduling.AppointmentDetail, loc *time.Location) AppointmentResponse {
	resp := AppointmentResponse{
		ID:          d.ID,
		Code:        d.Code,
		Status:      string(d.Status),
		Reason:      d.Reason,
		ProviderID:  d.ProviderID,
		Patient:     PersonView{Name: d.PatientName, Email: d.PatientEmail},
		Provider:    PersonView{Name: d.ProviderName},
		CancelledAt: d.CancelledAt,
	}
	if d.ExternalEventID != nil {
		resp.ExternalEventID = *d.ExternalEventID
	}
	if d.CancelledBy != nil {
		resp.CancelledBy = *d.CancelledBy
	}
	if start, err := scheduling.ComposeLocal(d.Date, d.StartTime, loc); err == nil {
		resp.StartTimestamp = start.Format(time.RFC3339)
	}
	if end, err := scheduling.ComposeLocal(d.Date, d.EndTime, loc); err == nil {
		resp.EndTimestamp = end.Format(time.RFC3339)
	}
	return resp
}

func handleScheduleError(w http.ResponseWriter, err error) {
	var conflict *scheduling.ConflictError
	switch {
	case errors.Is(err, scheduling.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, scheduling.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, "schedule_conflict", conflict.Error())
	case errors.Is(err, scheduling.ErrCalendarBusy):
		writeError(w, http.StatusConflict, "calendar_busy", err.Error())
	case errors.Is(err, scheduling.ErrScheduleBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "schedule_busy", "provider schedule is being updated, please retry shortly")
	case errors.Is(err, scheduling.ErrRemoteMirror):
		writeError(w, http.StatusBadGateway, "calendar_unavailable", err.Error())
	default:
		// Internal detail stays in the server logs, not the response.
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}
