// Package translate converts legacy calendar records into canonical events.
package translate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"github.com/beekhof/calendar-import/internal/event"
	"github.com/beekhof/calendar-import/internal/legacy"
	"github.com/beekhof/calendar-import/internal/log"
	"github.com/beekhof/calendar-import/internal/timezone"
)

const (
	// GeneratedIDSuffix marks identifiers derived from record content.
	GeneratedIDSuffix = "@imported"

	// MaxReminderMinutes is the longest reminder lead time destinations accept (four weeks).
	MaxReminderMinutes = 40320
	// MaxReminders is the most reminders kept per event.
	MaxReminders = 5

	invalidPrefix  = "invalid:"
	resourceDomain = "@resource.calendar.google.com"
	busyStatusProp = "X-MICROSOFT-CDO-BUSYSTATUS"
)

// idNamespace scopes content-derived identifiers.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:calendar-import:legacy-event"))

var mailto = strings.NewReplacer("mailto:", "", "MAILTO:", "")

var platformTitles = []struct {
	keyword string
	title   string
}{
	{"zoom", "Zoom Meeting"},
	{"teams", "Teams Meeting"},
	{"webex", "Webex Meeting"},
	{"meet.google", "Google Meet"},
}

// Normalizer maps raw timezone names to IANA identifiers.
type Normalizer interface {
	Normalize(raw string) string
}

// Translator turns legacy records into canonical events. It holds no
// per-record state and is safe for concurrent use.
type Translator struct {
	zones  Normalizer
	logger *log.Logger
}

// New creates a Translator. A nil logger uses the package default.
func New(zones Normalizer, logger *log.Logger) *Translator {
	if zones == nil {
		zones = timezone.NewNormalizer()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Translator{zones: zones, logger: logger}
}

// Translate converts one record. calendarZone must already be an IANA
// identifier; it is used for values that carry no zone of their own.
// A record without DTSTART yields (nil, nil). An error is returned only when
// a date value cannot be decoded.
func (t *Translator) Translate(rec legacy.Record, calendarZone string, includeAttendees bool) (*event.Event, error) {
	startProp := rec.Prop(ical.PropDateTimeStart)
	if startProp == nil {
		return nil, nil
	}
	if calendarZone == "" {
		calendarZone = timezone.UTC
	}

	ev := &event.Event{}

	if uid := strings.TrimSpace(rec.Text(ical.PropUID)); uid != "" {
		ev.ExternalID = uid
		ev.OriginalID = uid
	} else {
		ev.ExternalID = GeneratedID(rec)
	}

	ev.Description = rec.Text(ical.PropDescription)
	ev.Location = rec.Text(ical.PropLocation)
	ev.Title = t.title(rec, ev.Description, ev.Location)

	start, err := legacy.ParseDateTime(startProp)
	if err != nil {
		return nil, fmt.Errorf("invalid DTSTART: %w", err)
	}
	startZone := t.zoneFor(start, calendarZone)
	ev.Start = spec(start, startZone)

	end, err := t.resolveEnd(rec, start, ev.Start, startZone, calendarZone)
	if err != nil {
		return nil, err
	}
	ev.End = end

	recurrence, err := t.recurrence(rec, calendarZone, ev.ExternalID)
	if err != nil {
		return nil, err
	}
	ev.Recurrence = recurrence

	if rec.Has(ical.PropStatus) {
		ev.Status = mapStatus(rec.Text(ical.PropStatus))
	}
	if rec.Has(ical.PropTransparency) {
		ev.Transparency = event.TransparencyOpaque
		if strings.EqualFold(rec.Text(ical.PropTransparency), "TRANSPARENT") {
			ev.Transparency = event.TransparencyTransparent
		}
	}
	if rec.Has(ical.PropClass) {
		ev.Visibility = mapVisibility(rec.Text(ical.PropClass))
	}

	ev.Organizer = organizer(rec.Prop(ical.PropOrganizer))
	if includeAttendees {
		ev.Attendees = attendees(rec.Props(ical.PropAttendee))
	}
	ev.Reminders = reminders(rec.Alarms())

	if s := strings.TrimSpace(rec.Text(ical.PropSequence)); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			if n != 0 {
				ev.Sequence = &n
			}
		} else {
			t.logger.Debug("ignoring invalid SEQUENCE", "uid", ev.ExternalID, "value", s)
		}
	}

	return ev, nil
}

// GeneratedID derives a stable identifier from the record's full content.
func GeneratedID(rec legacy.Record) string {
	return uuid.NewSHA1(idNamespace, []byte(rec.Serialize())).String() + GeneratedIDSuffix
}

func (t *Translator) title(rec legacy.Record, description, location string) string {
	if s := strings.TrimSpace(rec.Text(ical.PropSummary)); s != "" {
		return rec.Text(ical.PropSummary)
	}

	desc := strings.ToLower(description)
	loc := strings.ToLower(location)
	for _, p := range platformTitles {
		if strings.Contains(desc, p.keyword) || strings.Contains(loc, p.keyword) {
			return p.title
		}
	}

	if busy := strings.ToUpper(strings.TrimSpace(rec.Text(busyStatusProp))); busy != "" {
		switch busy {
		case "FREE":
			return "Free"
		case "TENTATIVE":
			return "Tentative"
		case "OOF":
			return "Out of Office"
		default:
			return "Busy"
		}
	}
	if strings.EqualFold(strings.TrimSpace(rec.Text(ical.PropTransparency)), "TRANSPARENT") {
		return "Free"
	}
	return "Busy"
}

// zoneFor resolves the zone a value belongs to. A TZID parameter wins; a
// value written in UTC falls back to the calendar zone like a floating one.
func (t *Translator) zoneFor(dt legacy.DateTime, calendarZone string) string {
	if dt.TZID != "" {
		return t.zones.Normalize(dt.TZID)
	}
	return calendarZone
}

func spec(dt legacy.DateTime, zone string) event.TimeSpec {
	if dt.DateOnly {
		return event.DateOnly(dt.Wall)
	}
	loc := timezone.Location(zone)
	return event.At(dt.In(loc), zone)
}

func (t *Translator) resolveEnd(rec legacy.Record, start legacy.DateTime, startSpec event.TimeSpec, startZone, calendarZone string) (event.TimeSpec, error) {
	if p := rec.Prop(ical.PropDateTimeEnd); p != nil {
		end, err := legacy.ParseDateTime(p)
		if err != nil {
			return event.TimeSpec{}, fmt.Errorf("invalid DTEND: %w", err)
		}
		if start.DateOnly {
			return event.DateOnly(end.Wall), nil
		}
		return spec(end, t.zoneFor(end, calendarZone)), nil
	}

	var d time.Duration
	switch {
	case rec.Has(ical.PropDuration):
		parsed, err := legacy.ParseDuration(rec.Prop(ical.PropDuration).Value)
		if err != nil {
			return event.TimeSpec{}, fmt.Errorf("invalid DURATION: %w", err)
		}
		d = parsed
	case start.DateOnly:
		d = 24 * time.Hour
	default:
		d = time.Hour
	}

	if startSpec.AllDay {
		return event.DateOnly(startSpec.Date.Add(d)), nil
	}
	loc := timezone.Location(startZone)
	return event.At(startSpec.Instant.Add(d).In(loc), startZone), nil
}

// recurrence encodes RRULE, then EXDATE values, then RDATE values. Exception
// and addition dates are only meaningful alongside a rule and are otherwise
// ignored.
func (t *Translator) recurrence(rec legacy.Record, calendarZone, uid string) ([]string, error) {
	rule := rec.Prop(ical.PropRecurrenceRule)
	if rule == nil || strings.TrimSpace(rule.Value) == "" {
		return nil, nil
	}
	value := strings.TrimSpace(rule.Value)
	if _, err := rrule.StrToROption(value); err != nil {
		t.logger.Warn("recurrence rule may be rejected by the destination", "uid", uid, "rule", value, "err", err)
	}

	lines := []string{"RRULE:" + value}
	for _, kind := range []string{ical.PropExceptionDates, ical.PropRecurrenceDates} {
		for _, p := range rec.Props(kind) {
			dates, err := legacy.ParseDateList(&p)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", kind, err)
			}
			for _, dt := range dates {
				lines = append(lines, t.encodeDate(kind, dt, calendarZone))
			}
		}
	}
	return lines, nil
}

func (t *Translator) encodeDate(kind string, dt legacy.DateTime, calendarZone string) string {
	if dt.DateOnly {
		return kind + ";VALUE=DATE:" + dt.Wall.Format("20060102")
	}
	instant := dt.In(timezone.Location(t.zoneFor(dt, calendarZone)))
	return kind + ":" + instant.UTC().Format("20060102T150405Z")
}

func mapStatus(v string) event.Status {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "CANCELLED":
		return event.StatusCancelled
	case "TENTATIVE":
		return event.StatusTentative
	default:
		return event.StatusConfirmed
	}
}

func mapVisibility(v string) event.Visibility {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "PRIVATE":
		return event.VisibilityPrivate
	case "CONFIDENTIAL":
		return event.VisibilityConfidential
	default:
		return event.VisibilityDefault
	}
}

func validAddress(email string) bool {
	return email != "" && strings.Contains(email, "@") && !strings.HasPrefix(email, invalidPrefix)
}

func organizer(p *ical.Prop) *event.Organizer {
	if p == nil {
		return nil
	}
	email := strings.TrimSpace(mailto.Replace(p.Value))
	if !validAddress(email) {
		return nil
	}
	return &event.Organizer{Email: email, DisplayName: p.Params.Get(ical.ParamCommonName)}
}

func attendees(props []ical.Prop) []event.Attendee {
	var out []event.Attendee
	for _, p := range props {
		email := strings.TrimSpace(mailto.Replace(p.Value))
		if !validAddress(email) || strings.HasSuffix(email, resourceDomain) {
			continue
		}

		a := event.Attendee{
			Email:          email,
			DisplayName:    p.Params.Get(ical.ParamCommonName),
			ResponseStatus: event.ResponseNeedsAction,
		}
		switch strings.ToUpper(p.Params.Get(ical.ParamParticipationStatus)) {
		case "ACCEPTED":
			a.ResponseStatus = event.ResponseAccepted
		case "DECLINED":
			a.ResponseStatus = event.ResponseDeclined
		case "TENTATIVE":
			a.ResponseStatus = event.ResponseTentative
		}
		if strings.EqualFold(p.Params.Get(ical.ParamRole), "OPT-PARTICIPANT") {
			a.Optional = true
		}
		switch strings.ToUpper(p.Params.Get(ical.ParamCalendarUserType)) {
		case "RESOURCE", "ROOM":
			a.IsResource = true
		}
		out = append(out, a)
	}
	return out
}

func reminders(alarms []legacy.Record) []event.Reminder {
	type key struct {
		method  event.ReminderMethod
		minutes int
	}
	seen := make(map[key]bool)
	var out []event.Reminder
	for _, alarm := range alarms {
		offset, ok := legacy.RelativeTrigger(alarm)
		if !ok {
			continue
		}
		minutes := int(offset / time.Minute)
		if minutes < 0 {
			minutes = -minutes
		}
		if minutes > MaxReminderMinutes {
			minutes = MaxReminderMinutes
		}
		method := event.ReminderPopup
		if strings.EqualFold(strings.TrimSpace(alarm.Text(ical.PropAction)), "EMAIL") {
			method = event.ReminderEmail
		}
		k := key{method, minutes}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, event.Reminder{Method: method, MinutesBefore: minutes})
	}
	if len(out) > MaxReminders {
		out = out[:MaxReminders]
	}
	return out
}
