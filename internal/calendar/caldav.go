package calendar

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/beekhof/calendar-import/internal/event"
	"github.com/beekhof/calendar-import/internal/log"
)

// LegacyUIDProp carries the legacy UID on events stored over CalDAV.
const LegacyUIDProp = "X-LEGACY-UID"

const productID = "-//Calendar Import//EN"

// CalDAVClient is a client for CalDAV servers such as iCloud.
type CalDAVClient struct {
	httpClient *http.Client
	username   string
	password   string
	serverURL  string
	basePath   string
	logger     *log.Logger
}

// NewCalDAVClient creates a CalDAV client.
// serverURL is the server root (e.g. "https://caldav.icloud.com"); password
// should be an app-specific password. A nil httpClient gets a 30s timeout.
func NewCalDAVClient(serverURL, username, password string, httpClient *http.Client, logger *log.Logger) *CalDAVClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = log.Default()
	}

	return &CalDAVClient{
		httpClient: httpClient,
		username:   username,
		password:   password,
		serverURL:  strings.TrimSuffix(serverURL, "/"),
		// Calendar homes typically live at /{user}/calendars/.
		basePath: fmt.Sprintf("/%s/calendars/", username),
		logger:   logger,
	}
}

// makeRequest makes an authenticated HTTP request to the CalDAV server.
func (c *CalDAVClient) makeRequest(ctx context.Context, method, path string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, body)
	if err != nil {
		return nil, err
	}

	req.SetBasicAuth(c.username, c.password)
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	}

	return c.httpClient.Do(req)
}

// Submit stores the event as <calendarID><uid>.ics. If-None-Match makes the
// server reject it when the resource already exists.
func (c *CalDAVClient) Submit(ctx context.Context, calendarID string, ev *event.Event) error {
	cal := toICal(ev, time.Now())

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode iCalendar: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "text/calendar; charset=utf-8")
	header.Set("If-None-Match", "*")

	resp, err := c.makeRequest(ctx, http.MethodPut, calendarPath(calendarID)+url.PathEscape(ev.ExternalID)+".ics", &buf, header)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusNoContent, http.StatusOK:
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return statusError("failed to insert event", resp.StatusCode, body)
}

// statusError maps a CalDAV failure status to an error kind.
func statusError(op string, code int, body []byte) error {
	base := fmt.Errorf("%s: HTTP %d", op, code)
	switch code {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %w", ErrRateLimited, base)
	case http.StatusPreconditionFailed:
		return fmt.Errorf("%w: %w", ErrConflict, base)
	case http.StatusForbidden:
		text := string(body)
		if strings.Contains(text, "valid-organizer") || strings.Contains(text, "valid-attendee") {
			return fmt.Errorf("%w: %w", ErrNotParticipant, base)
		}
	}
	return base
}

const eventQuery = `<?xml version="1.0" encoding="utf-8" ?>
<C:calendar-query xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:prop>
    <D:getetag/>
    <C:calendar-data/>
  </D:prop>
  <C:filter>
    <C:comp-filter name="VCALENDAR">
      <C:comp-filter name="VEVENT"/>
    </C:comp-filter>
  </C:filter>
</C:calendar-query>`

// ListExisting returns the UID and legacy UID of every event in the calendar.
func (c *CalDAVClient) ListExisting(ctx context.Context, calendarID string) ([]Existing, error) {
	header := http.Header{}
	header.Set("Depth", "1")
	resp, err := c.makeRequest(ctx, "REPORT", calendarPath(calendarID), strings.NewReader(eventQuery), header)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusMultiStatus {
		return nil, statusError("failed to query calendar", resp.StatusCode, body)
	}

	ms, err := parseMultistatus(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CalDAV response: %w", err)
	}

	var out []Existing
	for _, r := range ms.Responses {
		data := r.prop().CalendarData
		if strings.TrimSpace(data) == "" {
			continue
		}
		cal, err := ical.NewDecoder(strings.NewReader(data)).Decode()
		if err != nil {
			c.logger.Warn("failed to parse iCalendar data", "href", r.Href, "err", err)
			continue
		}
		for _, comp := range cal.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			e := Existing{}
			if p := comp.Props.Get(ical.PropUID); p != nil {
				e.ExternalID = p.Value
			}
			if p := comp.Props.Get(LegacyUIDProp); p != nil {
				e.ProvenanceID = p.Value
			}
			out = append(out, e)
		}
	}
	return out, nil
}

const calendarsQuery = `<?xml version="1.0" encoding="utf-8" ?>
<d:propfind xmlns:d="DAV:" xmlns:c="urn:ietf:params:xml:ns:caldav">
  <d:prop>
    <d:displayname/>
    <d:resourcetype/>
    <c:calendar-timezone/>
  </d:prop>
</d:propfind>`

// ListCalendars lists the calendar collections under the user's home.
func (c *CalDAVClient) ListCalendars(ctx context.Context) ([]Info, error) {
	ms, err := c.propfind(ctx, c.basePath, "1")
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}

	var out []Info
	for _, r := range ms.Responses {
		p := r.prop()
		if p.ResourceType.Calendar == nil {
			continue
		}
		out = append(out, Info{
			ID:       r.Href,
			Summary:  p.DisplayName,
			TimeZone: vtimezoneID(p.CalendarTimezone),
		})
	}
	return out, nil
}

// TimeZone reads the calendar-timezone property of the collection.
func (c *CalDAVClient) TimeZone(ctx context.Context, calendarID string) (string, error) {
	ms, err := c.propfind(ctx, calendarPath(calendarID), "0")
	if err != nil {
		return "", fmt.Errorf("failed to get calendar: %w", err)
	}
	for _, r := range ms.Responses {
		if tz := vtimezoneID(r.prop().CalendarTimezone); tz != "" {
			return tz, nil
		}
	}
	return "", nil
}

func (c *CalDAVClient) propfind(ctx context.Context, path, depth string) (*multistatus, error) {
	header := http.Header{}
	header.Set("Depth", depth)
	resp, err := c.makeRequest(ctx, "PROPFIND", path, strings.NewReader(calendarsQuery), header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusMultiStatus && resp.StatusCode != http.StatusOK {
		return nil, statusError("PROPFIND", resp.StatusCode, body)
	}
	return parseMultistatus(body)
}

func calendarPath(calendarID string) string {
	if !strings.HasPrefix(calendarID, "/") {
		calendarID = "/" + calendarID
	}
	if !strings.HasSuffix(calendarID, "/") {
		calendarID += "/"
	}
	return calendarID
}

type multistatus struct {
	XMLName   xml.Name      `xml:"multistatus"`
	Responses []davResponse `xml:"response"`
}

type davResponse struct {
	Href      string     `xml:"href"`
	Propstats []propstat `xml:"propstat"`
}

type propstat struct {
	Prop   davProp `xml:"prop"`
	Status string  `xml:"status"`
}

type davProp struct {
	DisplayName      string       `xml:"displayname"`
	ResourceType     resourceType `xml:"resourcetype"`
	CalendarData     string       `xml:"calendar-data"`
	CalendarTimezone string       `xml:"calendar-timezone"`
}

type resourceType struct {
	Calendar *struct{} `xml:"calendar"`
}

// prop merges the successful propstats of a response.
func (r davResponse) prop() davProp {
	var out davProp
	for _, ps := range r.Propstats {
		if ps.Status != "" && !strings.Contains(ps.Status, " 200 ") {
			continue
		}
		if ps.Prop.DisplayName != "" {
			out.DisplayName = ps.Prop.DisplayName
		}
		if ps.Prop.ResourceType.Calendar != nil {
			out.ResourceType = ps.Prop.ResourceType
		}
		if ps.Prop.CalendarData != "" {
			out.CalendarData = ps.Prop.CalendarData
		}
		if ps.Prop.CalendarTimezone != "" {
			out.CalendarTimezone = ps.Prop.CalendarTimezone
		}
	}
	return out
}

func parseMultistatus(body []byte) (*multistatus, error) {
	var ms multistatus
	if err := xml.Unmarshal(body, &ms); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}
	return &ms, nil
}

// vtimezoneID extracts the TZID from a serialized VCALENDAR holding a VTIMEZONE.
func vtimezoneID(data string) string {
	if strings.TrimSpace(data) == "" {
		return ""
	}
	cal, err := ical.NewDecoder(strings.NewReader(data)).Decode()
	if err != nil {
		return ""
	}
	for _, comp := range cal.Children {
		if comp.Name != ical.CompTimezone {
			continue
		}
		if p := comp.Props.Get(ical.PropTimezoneID); p != nil {
			return p.Value
		}
	}
	return ""
}

var partstats = map[event.ResponseStatus]string{
	event.ResponseAccepted:    "ACCEPTED",
	event.ResponseDeclined:    "DECLINED",
	event.ResponseTentative:   "TENTATIVE",
	event.ResponseNeedsAction: "NEEDS-ACTION",
}

var classes = map[event.Visibility]string{
	event.VisibilityDefault:      "PUBLIC",
	event.VisibilityPrivate:      "PRIVATE",
	event.VisibilityConfidential: "CONFIDENTIAL",
}

// toICal converts a canonical event to a single-event VCALENDAR.
func toICal(ev *event.Event, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	vevent := ical.NewComponent(ical.CompEvent)
	cal.Children = append(cal.Children, vevent)

	vevent.Props.SetText(ical.PropUID, ev.ExternalID)
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	vevent.Props.SetText(ical.PropSummary, ev.Title)
	if ev.Description != "" {
		vevent.Props.SetText(ical.PropDescription, ev.Description)
	}
	if ev.Location != "" {
		vevent.Props.SetText(ical.PropLocation, ev.Location)
	}

	vevent.Props.Set(timeProp(ical.PropDateTimeStart, ev.Start))
	vevent.Props.Set(timeProp(ical.PropDateTimeEnd, ev.End))

	for _, line := range ev.Recurrence {
		if p := parseContentLine(line); p != nil {
			vevent.Props.Add(p)
		}
	}

	if ev.Status != "" {
		vevent.Props.SetText(ical.PropStatus, strings.ToUpper(string(ev.Status)))
	}
	if ev.Transparency != "" {
		vevent.Props.SetText(ical.PropTransparency, strings.ToUpper(string(ev.Transparency)))
	}
	if class, ok := classes[ev.Visibility]; ok {
		vevent.Props.SetText(ical.PropClass, class)
	}

	if ev.Organizer != nil {
		p := ical.NewProp(ical.PropOrganizer)
		p.Value = "mailto:" + ev.Organizer.Email
		if ev.Organizer.DisplayName != "" {
			p.Params.Set(ical.ParamCommonName, ev.Organizer.DisplayName)
		}
		vevent.Props.Set(p)
	}
	for _, a := range ev.Attendees {
		p := ical.NewProp(ical.PropAttendee)
		p.Value = "mailto:" + a.Email
		if a.DisplayName != "" {
			p.Params.Set(ical.ParamCommonName, a.DisplayName)
		}
		if ps, ok := partstats[a.ResponseStatus]; ok {
			p.Params.Set(ical.ParamParticipationStatus, ps)
		}
		if a.Optional {
			p.Params.Set(ical.ParamRole, "OPT-PARTICIPANT")
		}
		if a.IsResource {
			p.Params.Set(ical.ParamCalendarUserType, "RESOURCE")
		}
		vevent.Props.Add(p)
	}

	for _, r := range ev.Reminders {
		alarm := ical.NewComponent(ical.CompAlarm)
		action := "DISPLAY"
		if r.Method == event.ReminderEmail {
			action = "EMAIL"
			alarm.Props.SetText(ical.PropSummary, ev.Title)
		}
		alarm.Props.SetText(ical.PropAction, action)
		alarm.Props.SetText(ical.PropDescription, ev.Title)
		trigger := ical.NewProp(ical.PropTrigger)
		trigger.Value = fmt.Sprintf("-PT%dM", r.MinutesBefore)
		alarm.Props.Set(trigger)
		vevent.Children = append(vevent.Children, alarm)
	}

	if ev.Sequence != nil {
		p := ical.NewProp(ical.PropSequence)
		p.Value = fmt.Sprint(*ev.Sequence)
		vevent.Props.Set(p)
	}
	if ev.OriginalID != "" {
		p := ical.NewProp(LegacyUIDProp)
		p.Value = ev.OriginalID
		vevent.Props.Set(p)
	}

	return cal
}

func timeProp(name string, ts event.TimeSpec) *ical.Prop {
	p := ical.NewProp(name)
	if ts.AllDay {
		p.SetDate(ts.Date)
		return p
	}
	p.SetDateTime(ts.Instant)
	return p
}

// parseContentLine parses an already-encoded "NAME;PARAM=V:value" line.
func parseContentLine(line string) *ical.Prop {
	head, value, ok := strings.Cut(line, ":")
	if !ok {
		return nil
	}
	parts := strings.Split(head, ";")
	p := ical.NewProp(strings.ToUpper(parts[0]))
	p.Value = value
	for _, param := range parts[1:] {
		k, v, ok := strings.Cut(param, "=")
		if ok {
			p.Params.Set(strings.ToUpper(k), v)
		}
	}
	return p
}
