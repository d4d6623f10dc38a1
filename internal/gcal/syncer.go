package gcal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/clinicops/clinic-scheduler/internal/scheduling"
	"github.com/clinicops/clinic-scheduler/pkg/logging"
)

// appointmentIDProp is the private extended-property key carrying the local
// appointment id on every mirrored event, so a remote event can always be
// traced back to its owning row.
const appointmentIDProp = "appointmentId"

// Syncer translates appointments into calendar-service operations against
// the owning provider's calendar. The local record stays authoritative; the
// remote event is only ever reconciled to match it.
type Syncer struct {
	api     EventAPI
	tz      string
	loc     *time.Location
	timeout time.Duration
	logger  *logging.Logger
}

func NewSyncer(api EventAPI, tz string, loc *time.Location, timeout time.Duration, logger *logging.Logger) *Syncer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Syncer{
		api:     api,
		tz:      tz,
		loc:     loc,
		timeout: timeout,
		logger:  logger,
	}
}

// PublishCreate inserts the mirror event and returns its external id.
func (s *Syncer) PublishCreate(ctx context.Context, appt *scheduling.Appointment, prov *scheduling.Provider, patientName string) (string, error) {
	start, end, err := s.eventTimes(appt.Date, appt.StartTime, appt.EndTime)
	if err != nil {
		return "", err
	}

	summary := patientName
	if summary == "" {
		summary = appt.Reason
	}
	if summary == "" {
		summary = "Appointment"
	}

	ev := &calendar.Event{
		Summary:     summary,
		Description: appt.Reason,
		Start:       start,
		End:         end,
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{appointmentIDProp: appt.ID.String()},
		},
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	created, err := s.api.InsertEvent(callCtx, prov.CalendarID, ev)
	if err != nil {
		return "", err
	}
	return created.Id, nil
}

// PublishReschedule patches only the start/end of the existing mirror event.
// A vanished remote event is tolerated: the local move still proceeds and
// the gap is left for reconciliation.
func (s *Syncer) PublishReschedule(ctx context.Context, appt *scheduling.Appointment, prov *scheduling.Provider, date, startClock, endClock string) error {
	if appt.ExternalEventID == nil || *appt.ExternalEventID == "" {
		// Orphaned row: nothing to patch remotely, reconcile worker owns it.
		s.logger.Warn("reschedule of unmirrored appointment",
			"appointment_id", appt.ID.String())
		return nil
	}

	start, end, err := s.eventTimes(date, startClock, endClock)
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err = s.api.PatchEvent(callCtx, prov.CalendarID, *appt.ExternalEventID, &calendar.Event{
		Start: start,
		End:   end,
	})
	if errors.Is(err, ErrEventGone) {
		s.logger.Warn("remote event missing during reschedule",
			"appointment_id", appt.ID.String(),
			"event_id", *appt.ExternalEventID)
		return nil
	}
	return err
}

// PublishCancel deletes the mirror event. Errors are swallowed and logged:
// local cancellation must succeed regardless of the remote side.
func (s *Syncer) PublishCancel(ctx context.Context, appt *scheduling.Appointment, prov *scheduling.Provider) error {
	if appt.ExternalEventID == nil || *appt.ExternalEventID == "" {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.api.DeleteEvent(callCtx, prov.CalendarID, *appt.ExternalEventID)
	if err != nil && !errors.Is(err, ErrEventGone) {
		s.logger.Warn("remote delete failed during cancellation",
			"appointment_id", appt.ID.String(),
			"event_id", *appt.ExternalEventID,
			"error", err.Error())
	}
	return nil
}

// BusyConflict reports whether the provider's calendar shows busy time
// intersecting [start, end) on date. Secondary signal only: it can add a
// conflict but never clears one found locally.
func (s *Syncer) BusyConflict(ctx context.Context, prov *scheduling.Provider, date, startClock, endClock string) (bool, error) {
	startAt, err := scheduling.ComposeLocal(date, startClock, s.loc)
	if err != nil {
		return false, err
	}
	endAt, err := scheduling.ComposeLocal(date, endClock, s.loc)
	if err != nil {
		return false, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	busy, err := s.api.FreeBusy(callCtx, prov.CalendarID, startAt, endAt)
	if err != nil {
		return false, err
	}

	for _, period := range busy {
		bs, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			continue
		}
		be, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			continue
		}
		if bs.Before(endAt) && be.After(startAt) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Syncer) eventTimes(date, startClock, endClock string) (*calendar.EventDateTime, *calendar.EventDateTime, error) {
	startTS, err := scheduling.ToExternalTimestamp(date, startClock)
	if err != nil {
		return nil, nil, fmt.Errorf("event start: %w", err)
	}
	endTS, err := scheduling.ToExternalTimestamp(date, endClock)
	if err != nil {
		return nil, nil, fmt.Errorf("event end: %w", err)
	}

	return &calendar.EventDateTime{DateTime: startTS, TimeZone: s.tz},
		&calendar.EventDateTime{DateTime: endTS, TimeZone: s.tz}, nil
}
