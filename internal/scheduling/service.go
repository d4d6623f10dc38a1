package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/clinic-scheduler/internal/config"
	"github.com/clinicops/clinic-scheduler/internal/observability/metrics"
	redisclient "github.com/clinicops/clinic-scheduler/internal/redis"
	"github.com/clinicops/clinic-scheduler/pkg/logging"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentDeleted     = "APPOINTMENT_DELETED"
	EventMirrorFailed           = "MIRROR_FAILED"
	EventMirrorReconciled       = "MIRROR_RECONCILED"
)

var (
	// ErrScheduleBusy means another request holds the provider-day lock.
	ErrScheduleBusy = errors.New("provider schedule is being updated, please retry")

	// ErrRemoteMirror wraps calendar-service failures that are fatal to the
	// operation (create and reschedule time changes).
	ErrRemoteMirror = errors.New("calendar mirror write failed")

	// ErrCalendarBusy is raised by the optional freebusy pre-check.
	ErrCalendarBusy = errors.New("provider calendar shows busy time in the requested window")
)

// Mirror is the calendar synchronizer as seen by the workflow.
type Mirror interface {
	PublishCreate(ctx context.Context, appt *Appointment, prov *Provider, patientName string) (string, error)
	PublishReschedule(ctx context.Context, appt *Appointment, prov *Provider, date, start, end string) error
	PublishCancel(ctx context.Context, appt *Appointment, prov *Provider) error
	BusyConflict(ctx context.Context, prov *Provider, date, start, end string) (bool, error)
}

// CurrentUser is supplied by the auth collaborator; the workflow trusts it.
type CurrentUser struct {
	ID   *uuid.UUID
	Name string
}

type CreateRequest struct {
	ProviderID uuid.UUID
	PatientID  *uuid.UUID
	Date       string
	Start      string
	End        string
	Reason     string
	Code       string
	User       CurrentUser
}

// TimeChange is the canonical interval both patch body variants resolve to.
type TimeChange struct {
	Date  string
	Start string
	End   string
}

type PatchRequest struct {
	Time   *TimeChange
	Status *string // raw client input, normalized here
	Reason *string
	User   CurrentUser
}

type ListQuery struct {
	ProviderID *uuid.UUID
	Date       string
	By         string // patient, provider, id
	Term       string
	TimeMin    *time.Time
	TimeMax    *time.Time
	Limit      int
}

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	mirror  Mirror
	cfg     config.Config
	metrics *metrics.ScheduleMetrics
	logger  *logging.Logger
	loc     *time.Location
}

func NewService(repo Repository, locker redisclient.Locker, mirror Mirror, cfg config.Config, m *metrics.ScheduleMetrics, logger *logging.Logger) (*Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("resolve clinic timezone: %w", err)
	}
	return &Service{
		repo:    repo,
		locker:  locker,
		mirror:  mirror,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		loc:     loc,
	}, nil
}

// CreateAppointment runs the create protocol: validate, lock the provider
// day, re-check overlap inside the critical section, insert the provisional
// row, then mirror to the calendar service and record the external event id.
// A failed mirror write leaves the local row in place (orphaned) and reports
// the failure; the reconcile worker retries the mirror later.
func (s *Service) CreateAppointment(ctx context.Context, req CreateRequest) (*AppointmentDetail, error) {
	candidate, err := validateInterval(req.Date, req.Start, req.End)
	if err != nil {
		s.metrics.ObserveAttempt("create", "validation_error")
		return nil, err
	}

	provider, err := s.repo.GetProviderByID(ctx, req.ProviderID)
	if err != nil {
		s.metrics.ObserveAttempt("create", "provider_not_found")
		if errors.Is(err, ErrProviderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load provider: %w", err)
	}
	if provider.CalendarID == "" {
		s.metrics.ObserveAttempt("create", "validation_error")
		return nil, fmt.Errorf("%w: provider missing calendarId", ErrValidation)
	}

	var patientName string
	if req.PatientID != nil {
		patient, err := s.repo.GetPatientByID(ctx, *req.PatientID)
		if err != nil {
			s.metrics.ObserveAttempt("create", "patient_not_found")
			if errors.Is(err, ErrPatientNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load patient: %w", err)
		}
		patientName = patient.Name
	}

	if s.cfg.FreeBusyCheck {
		busy, err := s.mirror.BusyConflict(ctx, provider, req.Date, req.Start, req.End)
		if err != nil {
			// Secondary signal only: a freebusy outage never blocks booking.
			s.logger.Warn("freebusy pre-check failed", "provider_id", provider.ID.String(), "error", err.Error())
		} else if busy {
			s.metrics.ObserveAttempt("create", "conflict")
			return nil, ErrCalendarBusy
		}
	}

	var created *Appointment

	err = s.locker.WithScheduleLock(ctx, req.ProviderID, req.Date, func(lockCtx context.Context) error {
		// Re-check inside the critical section so two concurrent requests
		// cannot both pass the overlap check before either inserts.
		if err := CheckOverlap(lockCtx, s.repo, req.ProviderID, req.Date, candidate, nil); err != nil {
			return err
		}

		appt, err := s.repo.CreateAppointment(lockCtx, CreateAppointmentParams{
			Code:        req.Code,
			Date:        req.Date,
			StartTime:   req.Start,
			EndTime:     req.End,
			ProviderID:  req.ProviderID,
			PatientID:   req.PatientID,
			Reason:      req.Reason,
			CreatedByID: req.User.ID,
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt
		s.logEvent(lockCtx, appt.ID, EventAppointmentCreated, map[string]any{
			"provider_id": req.ProviderID.String(),
			"date":        req.Date,
			"start":       req.Start,
			"end":         req.End,
		})
		return nil
	})

	if err != nil {
		var conflict *ConflictError
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			s.metrics.ObserveAttempt("create", "lock_contention")
			return nil, ErrScheduleBusy
		case errors.As(err, &conflict):
			s.metrics.ObserveAttempt("create", "conflict")
			return nil, err
		default:
			s.metrics.ObserveAttempt("create", "error")
			return nil, err
		}
	}

	eventID, err := s.mirror.PublishCreate(ctx, created, provider, patientName)
	if err != nil {
		s.markOrphan(ctx, created, err)
		s.metrics.ObserveAttempt("create", "mirror_failed")
		return nil, fmt.Errorf("%w: %v", ErrRemoteMirror, err)
	}

	code := created.Code
	if code == "" {
		code = eventID
	}
	if _, err := s.repo.SetExternalEvent(ctx, created.ID, eventID, code); err != nil {
		s.markOrphan(ctx, created, err)
		s.metrics.ObserveAttempt("create", "error")
		return nil, fmt.Errorf("record external event id: %w", err)
	}

	s.metrics.ObserveAttempt("create", "ok")
	return s.repo.GetAppointmentDetail(ctx, created.ID)
}

// PatchAppointment applies a reschedule and/or status/reason change in one
// update. Time changes are mirrored remote-first and committed locally while
// the provider-day lock is still held: the calendar event moves before the
// row, and the row lands on the new interval before any concurrent booking
// can re-run its overlap check. Cancellation deletes the remote event
// best-effort.
func (s *Service) PatchAppointment(ctx context.Context, id uuid.UUID, req PatchRequest) (*AppointmentDetail, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		s.metrics.ObserveAttempt("patch", "not_found")
		return nil, err
	}

	provider, err := s.repo.GetProviderByID(ctx, appt.ProviderID)
	if err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			s.metrics.ObserveAttempt("patch", "validation_error")
			return nil, fmt.Errorf("%w: provider calendar unavailable", ErrValidation)
		}
		s.metrics.ObserveAttempt("patch", "error")
		return nil, fmt.Errorf("load provider: %w", err)
	}
	if provider.CalendarID == "" {
		s.metrics.ObserveAttempt("patch", "validation_error")
		return nil, fmt.Errorf("%w: provider calendar unavailable", ErrValidation)
	}

	patch := AppointmentPatch{}
	cancelled := false

	if req.Status != nil {
		status, ok := NormalizeStatus(*req.Status)
		if !ok {
			s.metrics.ObserveAttempt("patch", "validation_error")
			return nil, fmt.Errorf("%w: unrecognized status %q", ErrValidation, *req.Status)
		}
		patch.Status = &status
		cancelled = status == StatusCancelled
	}
	if req.Reason != nil {
		patch.Reason = req.Reason
	}

	if req.Time == nil && patch.Status == nil && patch.Reason == nil {
		s.metrics.ObserveAttempt("patch", "validation_error")
		return nil, fmt.Errorf("%w: no valid fields to update", ErrValidation)
	}

	if cancelled {
		// Best-effort: local cancellation succeeds even if the remote
		// delete fails, the syncer logs and swallows.
		_ = s.mirror.PublishCancel(ctx, appt, provider)
		now := time.Now()
		patch.CancelledAt = &now
		if req.User.Name != "" {
			name := req.User.Name
			patch.CancelledBy = &name
		}
	}

	var updated *Appointment

	if req.Time != nil {
		candidate, err := validateInterval(req.Time.Date, req.Time.Start, req.Time.End)
		if err != nil {
			s.metrics.ObserveAttempt("patch", "validation_error")
			return nil, err
		}

		err = s.locker.WithScheduleLock(ctx, appt.ProviderID, req.Time.Date, func(lockCtx context.Context) error {
			if err := CheckOverlap(lockCtx, s.repo, appt.ProviderID, req.Time.Date, candidate, &appt.ID); err != nil {
				return err
			}

			// Remote first: a calendar failure here aborts before the local
			// time change, keeping both systems on the old interval.
			if err := s.mirror.PublishReschedule(lockCtx, appt, provider, req.Time.Date, req.Time.Start, req.Time.End); err != nil {
				s.metrics.ObserveRemoteFailure("reschedule")
				return fmt.Errorf("%w: %v", ErrRemoteMirror, err)
			}

			patch.Date = &req.Time.Date
			patch.StartTime = &req.Time.Start
			patch.EndTime = &req.Time.End

			// The commit must not leave the critical section: once the lock
			// drops, a concurrent create may re-check overlap, and it has to
			// see this row on its new interval.
			moved, err := s.repo.UpdateAppointment(lockCtx, id, patch)
			if err != nil {
				return fmt.Errorf("update appointment: %w", err)
			}
			updated = moved
			return nil
		})
		if err != nil {
			var conflict *ConflictError
			switch {
			case errors.Is(err, redisclient.ErrLockNotAcquired):
				s.metrics.ObserveAttempt("patch", "lock_contention")
				return nil, ErrScheduleBusy
			case errors.As(err, &conflict):
				s.metrics.ObserveAttempt("patch", "conflict")
				return nil, err
			case errors.Is(err, ErrRemoteMirror):
				s.metrics.ObserveAttempt("patch", "mirror_failed")
				return nil, err
			default:
				s.metrics.ObserveAttempt("patch", "error")
				return nil, err
			}
		}
	} else {
		updated, err = s.repo.UpdateAppointment(ctx, id, patch)
		if err != nil {
			s.metrics.ObserveAttempt("patch", "error")
			return nil, fmt.Errorf("update appointment: %w", err)
		}
	}

	if patch.Date != nil {
		s.logEvent(ctx, updated.ID, EventAppointmentRescheduled, map[string]any{
			"date": updated.Date, "start": updated.StartTime, "end": updated.EndTime,
		})
	}
	if cancelled {
		s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
			"cancelled_by": req.User.Name,
		})
	}

	s.metrics.ObserveAttempt("patch", "ok")
	return s.repo.GetAppointmentDetail(ctx, updated.ID)
}

// GetAppointment retrieves the composed view by id.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	return s.repo.GetAppointmentDetail(ctx, id)
}

// ListAppointments is a pure read. Provider and date narrow the query at the
// store; the free-text term and time-window predicates are applied to the
// composed rows.
func (s *Service) ListAppointments(ctx context.Context, q ListQuery) ([]AppointmentDetail, error) {
	items, err := s.repo.ListAppointments(ctx, ListFilter{
		ProviderID: q.ProviderID,
		Date:       q.Date,
		Limit:      q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	if q.By != "" && q.Term != "" {
		term := strings.ToLower(strings.TrimSpace(q.Term))
		filtered := items[:0]
		for _, it := range items {
			var hay string
			switch q.By {
			case "patient":
				hay = it.PatientName
			case "provider":
				hay = it.ProviderName
			case "id":
				hay = it.Code
			}
			if strings.Contains(strings.ToLower(hay), term) {
				filtered = append(filtered, it)
			}
		}
		items = filtered
	}

	if q.TimeMin != nil || q.TimeMax != nil {
		filtered := items[:0]
		for _, it := range items {
			start, err := ComposeLocal(it.Date, it.StartTime, s.loc)
			if err != nil {
				continue
			}
			if q.TimeMin != nil && start.Before(*q.TimeMin) {
				continue
			}
			if q.TimeMax != nil && start.After(*q.TimeMax) {
				continue
			}
			filtered = append(filtered, it)
		}
		items = filtered
	}

	return items, nil
}

// DeleteAppointment is the administrative hard removal. The remote event is
// cleaned up best-effort only; the store removal is what counts.
func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return err
	}

	if provider, perr := s.repo.GetProviderByID(ctx, appt.ProviderID); perr == nil {
		_ = s.mirror.PublishCancel(ctx, appt, provider)
	}

	if err := s.repo.DeleteAppointment(ctx, id); err != nil {
		return err
	}

	s.logEvent(ctx, appt.ID, EventAppointmentDeleted, map[string]any{})
	return nil
}

// ReconcileOrphans re-mirrors appointments whose calendar write failed.
// Intended to be called by the worker periodically. The appointment id
// embedded in event metadata keeps retries traceable on the remote side.
func (s *Service) ReconcileOrphans(ctx context.Context, batch int) error {
	orphans, err := s.repo.FindUnmirrored(ctx, batch)
	if err != nil {
		return fmt.Errorf("find unmirrored appointments: %w", err)
	}

	for i := range orphans {
		appt := &orphans[i]

		provider, err := s.repo.GetProviderByID(ctx, appt.ProviderID)
		if err != nil || provider.CalendarID == "" {
			s.logger.Warn("skipping orphan with unavailable provider calendar",
				"appointment_id", appt.ID.String())
			continue
		}

		var patientName string
		if appt.PatientID != nil {
			if patient, err := s.repo.GetPatientByID(ctx, *appt.PatientID); err == nil {
				patientName = patient.Name
			}
		}

		eventID, err := s.mirror.PublishCreate(ctx, appt, provider, patientName)
		if err != nil {
			s.metrics.ObserveRemoteFailure("reconcile")
			s.logger.Warn("orphan re-mirror failed",
				"appointment_id", appt.ID.String(), "error", err.Error())
			continue
		}

		code := appt.Code
		if code == "" {
			code = eventID
		}
		if _, err := s.repo.SetExternalEvent(ctx, appt.ID, eventID, code); err != nil {
			s.logger.Error("failed to record reconciled event id",
				"appointment_id", appt.ID.String(), "error", err.Error())
			continue
		}

		s.metrics.ObserveReconciled()
		s.logEvent(ctx, appt.ID, EventMirrorReconciled, map[string]any{
			"event_id": eventID,
		})
	}

	return nil
}

func (s *Service) markOrphan(ctx context.Context, appt *Appointment, cause error) {
	s.metrics.ObserveRemoteFailure("create")
	s.metrics.ObserveOrphan()
	s.logger.Warn("appointment left without calendar mirror",
		"appointment_id", appt.ID.String(),
		"provider_id", appt.ProviderID.String(),
		"error", cause.Error())
	s.logEvent(ctx, appt.ID, EventMirrorFailed, map[string]any{
		"error": cause.Error(),
	})
}

func validateInterval(date, start, end string) (Interval, error) {
	if date == "" || start == "" || end == "" {
		return Interval{}, fmt.Errorf("%w: date, start and end are required", ErrValidation)
	}
	if err := ParseDate(date); err != nil {
		return Interval{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	startMin, err := ClockMinutes(start)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	endMin, err := ClockMinutes(end)
	if err != nil {
		return Interval{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if startMin >= endMin {
		return Interval{}, fmt.Errorf("%w: start must be before end", ErrValidation)
	}
	return Interval{Start: startMin, End: endMin}, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal event payload", "event_type", eventType, "error", err.Error())
		data = nil
	}

	apptID := appointmentID

	ev := ScheduleEvent{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error("failed to insert schedule event",
			"event_type", eventType,
			"appointment_id", appointmentID.String(),
			"error", err.Error())
	}
}
