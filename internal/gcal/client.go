package gcal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrRemote marks any calendar-service failure: expired auth, network,
// quota. Callers decide per operation whether it is fatal.
var ErrRemote = errors.New("calendar service error")

// EventAPI is the capability surface the synchronizer needs from the
// external calendar, scoped per calendar identifier.
type EventAPI interface {
	InsertEvent(ctx context.Context, calendarID string, ev *calendar.Event) (*calendar.Event, error)
	PatchEvent(ctx context.Context, calendarID, eventID string, ev *calendar.Event) (*calendar.Event, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	FreeBusy(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]*calendar.TimePeriod, error)
}

// GoogleClient implements EventAPI against the Google Calendar v3 API using
// the clinic's offline OAuth credentials.
type GoogleClient struct {
	svc *calendar.Service
}

func NewGoogleClient(ctx context.Context, clientID, clientSecret, refreshToken string) (*GoogleClient, error) {
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, errors.New("gcal: client id, secret and refresh token are required")
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{calendar.CalendarScope},
	}
	ts := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	svc, err := calendar.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	return &GoogleClient{svc: svc}, nil
}

func (c *GoogleClient) InsertEvent(ctx context.Context, calendarID string, ev *calendar.Event) (*calendar.Event, error) {
	out, err := c.svc.Events.Insert(calendarID, ev).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: insert event: %v", ErrRemote, err)
	}
	return out, nil
}

func (c *GoogleClient) PatchEvent(ctx context.Context, calendarID, eventID string, ev *calendar.Event) (*calendar.Event, error) {
	out, err := c.svc.Events.Patch(calendarID, eventID, ev).Context(ctx).Do()
	if err != nil {
		if isGone(err) {
			return nil, ErrEventGone
		}
		return nil, fmt.Errorf("%w: patch event %s: %v", ErrRemote, eventID, err)
	}
	return out, nil
}

func (c *GoogleClient) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if err := c.svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		if isGone(err) {
			return ErrEventGone
		}
		return fmt.Errorf("%w: delete event %s: %v", ErrRemote, eventID, err)
	}
	return nil
}

func (c *GoogleClient) FreeBusy(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]*calendar.TimePeriod, error) {
	resp, err := c.svc.Freebusy.Query(&calendar.FreeBusyRequest{
		TimeMin: timeMin.Format(time.RFC3339),
		TimeMax: timeMax.Format(time.RFC3339),
		Items:   []*calendar.FreeBusyRequestItem{{Id: calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: freebusy query: %v", ErrRemote, err)
	}

	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return nil, nil
	}
	return cal.Busy, nil
}

// ErrEventGone reports that the remote event was independently removed
// upstream. Reschedule and cancel tolerate it.
var ErrEventGone = errors.New("remote event no longer exists")

func isGone(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == 404 || gerr.Code == 410
	}
	return false
}
