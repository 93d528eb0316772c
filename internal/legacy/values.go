package legacy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

const (
	layoutDate     = "20060102"
	layoutDateTime = "20060102T150405"
)

// DateTime is a decoded DATE or DATE-TIME value. Wall carries the clock
// reading in the UTC location; the zone it belongs to is described by TZID
// or UTC and is resolved by the caller.
type DateTime struct {
	Wall     time.Time
	DateOnly bool
	// TZID is the raw TZID parameter, if any.
	TZID string
	// UTC is set when the value itself ends in "Z".
	UTC bool
}

// In returns the instant the value denotes when its wall clock is read in
// loc, expressed in loc. Values marked UTC keep their instant.
func (d DateTime) In(loc *time.Location) time.Time {
	if loc == nil {
		return d.Wall
	}
	if d.UTC {
		return d.Wall.In(loc)
	}
	w := d.Wall
	return time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), w.Second(), 0, loc)
}

// ParseDateTime decodes a single-valued DTSTART/DTEND-style property.
func ParseDateTime(p *ical.Prop) (DateTime, error) {
	if p == nil {
		return DateTime{}, errors.New("missing property")
	}
	return parseDateValue(strings.TrimSpace(p.Value), p.Params)
}

// ParseDateList decodes a possibly comma-separated EXDATE/RDATE property.
// PERIOD values contribute their start.
func ParseDateList(p *ical.Prop) ([]DateTime, error) {
	if p == nil {
		return nil, nil
	}
	var out []DateTime
	for _, part := range strings.Split(p.Value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if i := strings.IndexByte(part, '/'); i >= 0 {
			part = part[:i]
		}
		dt, err := parseDateValue(part, p.Params)
		if err != nil {
			return out, fmt.Errorf("%s: %w", p.Name, err)
		}
		out = append(out, dt)
	}
	return out, nil
}

func parseDateValue(v string, params ical.Params) (DateTime, error) {
	if v == "" {
		return DateTime{}, errors.New("empty date value")
	}
	out := DateTime{TZID: strings.Trim(params.Get(ical.ParamTimezoneID), `"`)}

	dateOnly := strings.EqualFold(params.Get(ical.ParamValue), string(ical.ValueDate)) || !strings.Contains(v, "T")
	if dateOnly {
		// Some exporters write VALUE=DATE with a time part; keep the date.
		if len(v) > len(layoutDate) {
			v = v[:len(layoutDate)]
		}
		t, err := time.ParseInLocation(layoutDate, v, time.UTC)
		if err != nil {
			return DateTime{}, fmt.Errorf("invalid date %q: %w", v, err)
		}
		out.Wall = t
		out.DateOnly = true
		out.TZID = ""
		return out, nil
	}

	if strings.HasSuffix(v, "Z") {
		v = strings.TrimSuffix(v, "Z")
		out.UTC = true
	}
	t, err := time.ParseInLocation(layoutDateTime, v, time.UTC)
	if err != nil {
		return DateTime{}, fmt.Errorf("invalid date-time %q: %w", v, err)
	}
	out.Wall = t
	return out, nil
}

// ParseDuration decodes an RFC 5545 duration such as "PT1H" or "-P1D".
func ParseDuration(value string) (time.Duration, error) {
	prop := ical.NewProp(ical.PropDuration)
	prop.Value = strings.TrimSpace(value)
	return prop.Duration()
}

// RelativeTrigger returns the offset of an alarm's TRIGGER when it is a
// duration. ok is false for absolute (DATE-TIME) triggers and missing ones.
func RelativeTrigger(alarm Record) (offset time.Duration, ok bool) {
	p := alarm.Prop(ical.PropTrigger)
	if p == nil {
		return 0, false
	}
	if strings.EqualFold(p.Params.Get(ical.ParamValue), string(ical.ValueDateTime)) {
		return 0, false
	}
	d, err := ParseDuration(p.Value)
	if err != nil {
		return 0, false
	}
	return d, true
}
