package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Interval is a half-open [Start, End) wall-clock range in minutes since
// midnight. Intervals that merely touch do not overlap.
type Interval struct {
	Start int
	End   int
}

// Overlaps applies the half-open intersection test. Symmetric.
func (i Interval) Overlaps(other Interval) bool {
	return other.Start < i.End && other.End > i.Start
}

// ConflictError reports an overlapping appointment for the same provider and
// date. It carries the blocking appointment so callers can display it.
type ConflictError struct {
	ProviderID    uuid.UUID
	Date          string
	ConflictingID uuid.UUID
	Existing      Interval
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("provider %s already has an overlapping appointment on %s (%s-%s, id=%s)",
		e.ProviderID, e.Date, MinutesClock(e.Existing.Start), MinutesClock(e.Existing.End), e.ConflictingID)
}

// CheckOverlap scans the provider's non-cancelled appointments on date and
// returns a ConflictError on the first intersection with candidate. The
// appointment identified by exclude is skipped so a reschedule never
// conflicts with itself.
func CheckOverlap(ctx context.Context, repo Repository, providerID uuid.UUID, date string, candidate Interval, exclude *uuid.UUID) error {
	if candidate.Start >= candidate.End {
		return fmt.Errorf("%w: start must be before end", ErrValidation)
	}

	existing, err := repo.FindForProviderDay(ctx, providerID, date)
	if err != nil {
		return fmt.Errorf("load provider day: %w", err)
	}

	for _, appt := range existing {
		if exclude != nil && appt.ID == *exclude {
			continue
		}
		if appt.Cancelled() {
			continue
		}
		iv, err := appt.Interval()
		if err != nil {
			return fmt.Errorf("appointment %s has malformed times: %w", appt.ID, err)
		}
		if iv.Overlaps(candidate) {
			return &ConflictError{
				ProviderID:    providerID,
				Date:          date,
				ConflictingID: appt.ID,
				Existing:      iv,
			}
		}
	}

	return nil
}

// Interval converts the appointment's HH:mm bounds to minute offsets.
func (a *Appointment) Interval() (Interval, error) {
	start, err := ClockMinutes(a.StartTime)
	if err != nil {
		return Interval{}, err
	}
	end, err := ClockMinutes(a.EndTime)
	if err != nil {
		return Interval{}, err
	}
	return Interval{Start: start, End: end}, nil
}
