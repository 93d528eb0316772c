package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/beekhof/calendar-import/internal/event"
)

const notParticipantReason = "participantIsNeitherOrganizerNorAttendee"

// GoogleClient is a wrapper around the Google Calendar API service.
type GoogleClient struct {
	service *gcal.Service
}

// NewGoogleClient creates a Google Calendar API client using the provided
// HTTP client. Extra options are applied after it, e.g. option.WithEndpoint.
func NewGoogleClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*GoogleClient, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &GoogleClient{service: service}, nil
}

// Submit imports the event. Events.Import keeps the iCalUID and never sends
// invitations.
func (c *GoogleClient) Submit(ctx context.Context, calendarID string, ev *event.Event) error {
	_, err := c.service.Events.Import(calendarID, toGoogleEvent(ev)).Context(ctx).Do()
	if err != nil {
		return wrapAPIError("failed to import event", err)
	}
	return nil
}

// ListExisting pages through the live events in the calendar and returns
// their identifiers. Events deleted at the destination are not listed, so a
// re-run imports them again.
func (c *GoogleClient) ListExisting(ctx context.Context, calendarID string) ([]Existing, error) {
	var out []Existing
	call := c.service.Events.List(calendarID).
		MaxResults(2500).
		Fields("nextPageToken", "items(iCalUID,extendedProperties/private)")

	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			e := Existing{ExternalID: item.ICalUID}
			if item.ExtendedProperties != nil && item.ExtendedProperties.Private != nil {
				e.ProvenanceID = item.ExtendedProperties.Private[ProvenanceKey]
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, wrapAPIError("failed to list events", err)
	}
	return out, nil
}

// ListCalendars returns every calendar on the account's calendar list.
func (c *GoogleClient) ListCalendars(ctx context.Context) ([]Info, error) {
	var out []Info
	err := c.service.CalendarList.List().Pages(ctx, func(page *gcal.CalendarList) error {
		for _, item := range page.Items {
			out = append(out, Info{
				ID:       item.Id,
				Summary:  item.Summary,
				TimeZone: item.TimeZone,
				Primary:  item.Primary,
			})
		}
		return nil
	})
	if err != nil {
		return nil, wrapAPIError("Google: failed to list calendars", err)
	}
	return out, nil
}

// TimeZone returns the calendar's configured zone.
func (c *GoogleClient) TimeZone(ctx context.Context, calendarID string) (string, error) {
	cal, err := c.service.Calendars.Get(calendarID).Context(ctx).Do()
	if err != nil {
		return "", wrapAPIError("failed to get calendar", err)
	}
	return cal.TimeZone, nil
}

// wrapAPIError attaches the matching error kind to Google API failures.
func wrapAPIError(op string, err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests,
		apiErr.Code == http.StatusForbidden && hasReason(apiErr, "rateLimitExceeded", "userRateLimitExceeded"):
		return fmt.Errorf("%s: %w: %w", op, ErrRateLimited, err)
	case apiErr.Code == http.StatusConflict:
		return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
	case apiErr.Code == http.StatusBadRequest && mentions(apiErr, notParticipantReason):
		return fmt.Errorf("%s: %w: %w", op, ErrNotParticipant, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func hasReason(apiErr *googleapi.Error, reasons ...string) bool {
	for _, item := range apiErr.Errors {
		for _, r := range reasons {
			if item.Reason == r {
				return true
			}
		}
	}
	return false
}

func mentions(apiErr *googleapi.Error, s string) bool {
	if hasReason(apiErr, s) {
		return true
	}
	return strings.Contains(apiErr.Message, s) || strings.Contains(apiErr.Body, s)
}

// toGoogleEvent builds the API representation of ev.
func toGoogleEvent(ev *event.Event) *gcal.Event {
	ge := &gcal.Event{
		ICalUID:      ev.ExternalID,
		Summary:      ev.Title,
		Description:  ev.Description,
		Location:     ev.Location,
		Start:        toEventDateTime(ev.Start),
		End:          toEventDateTime(ev.End),
		Recurrence:   ev.Recurrence,
		Status:       string(ev.Status),
		Transparency: string(ev.Transparency),
		Visibility:   string(ev.Visibility),
	}

	if ev.Organizer != nil {
		ge.Organizer = &gcal.EventOrganizer{
			Email:       ev.Organizer.Email,
			DisplayName: ev.Organizer.DisplayName,
		}
	}

	for _, a := range ev.Attendees {
		ge.Attendees = append(ge.Attendees, &gcal.EventAttendee{
			Email:          a.Email,
			DisplayName:    a.DisplayName,
			ResponseStatus: string(a.ResponseStatus),
			Optional:       a.Optional,
			Resource:       a.IsResource,
		})
	}

	if len(ev.Reminders) > 0 {
		overrides := make([]*gcal.EventReminder, 0, len(ev.Reminders))
		for _, r := range ev.Reminders {
			overrides = append(overrides, &gcal.EventReminder{
				Method:          string(r.Method),
				Minutes:         int64(r.MinutesBefore),
				ForceSendFields: []string{"Minutes"},
			})
		}
		ge.Reminders = &gcal.EventReminders{
			UseDefault:      false,
			Overrides:       overrides,
			ForceSendFields: []string{"UseDefault"},
		}
	}

	if ev.Sequence != nil {
		ge.Sequence = int64(*ev.Sequence)
		ge.ForceSendFields = append(ge.ForceSendFields, "Sequence")
	}

	if ev.OriginalID != "" {
		ge.ExtendedProperties = &gcal.EventExtendedProperties{
			Private: map[string]string{ProvenanceKey: ev.OriginalID},
		}
	}

	return ge
}

func toEventDateTime(ts event.TimeSpec) *gcal.EventDateTime {
	if ts.AllDay {
		return &gcal.EventDateTime{Date: ts.DateString()}
	}
	return &gcal.EventDateTime{
		DateTime: ts.Instant.Format(time.RFC3339),
		TimeZone: ts.ZoneID,
	}
}
