// Package legacy exposes calendar entries from exported ICS files as
// read-only property bags.
package legacy

import (
	"sort"
	"strings"

	"github.com/emersion/go-ical"
)

// Record is one exported calendar entry (a VEVENT) with its nested alarms.
type Record struct {
	comp *ical.Component
}

// NewRecord wraps a decoded component. Property lookups are case-insensitive.
func NewRecord(comp *ical.Component) Record {
	return Record{comp: comp}
}

// Component returns the underlying component.
func (r Record) Component() *ical.Component { return r.comp }

// Prop returns the first property with the given name, or nil.
func (r Record) Prop(name string) *ical.Prop {
	if r.comp == nil {
		return nil
	}
	return r.comp.Props.Get(strings.ToUpper(name))
}

// Props returns every property with the given name in source order.
func (r Record) Props(name string) []ical.Prop {
	if r.comp == nil {
		return nil
	}
	return r.comp.Props[strings.ToUpper(name)]
}

// Text returns the unescaped text of the first property, or "" if absent.
func (r Record) Text(name string) string {
	p := r.Prop(name)
	if p == nil {
		return ""
	}
	if s, err := p.Text(); err == nil {
		return s
	}
	return p.Value
}

// Has reports whether the property is present at all.
func (r Record) Has(name string) bool {
	return r.Prop(name) != nil
}

// Alarms returns the nested VALARM sub-records.
func (r Record) Alarms() []Record {
	if r.comp == nil {
		return nil
	}
	var alarms []Record
	for _, child := range r.comp.Children {
		if child.Name == ical.CompAlarm {
			alarms = append(alarms, Record{comp: child})
		}
	}
	return alarms
}

// Serialize renders the record deterministically: properties sorted by name,
// parameters sorted by key, children in source order. Identical content
// always yields identical output.
func (r Record) Serialize() string {
	var b strings.Builder
	if r.comp != nil {
		writeComponent(&b, r.comp)
	}
	return b.String()
}

func writeComponent(b *strings.Builder, comp *ical.Component) {
	b.WriteString("BEGIN:" + comp.Name + "\n")

	names := make([]string, 0, len(comp.Props))
	for name := range comp.Props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, prop := range comp.Props[name] {
			b.WriteString(name)
			writeParams(b, prop.Params)
			b.WriteString(":")
			b.WriteString(prop.Value)
			b.WriteString("\n")
		}
	}
	for _, child := range comp.Children {
		writeComponent(b, child)
	}
	b.WriteString("END:" + comp.Name + "\n")
}

func writeParams(b *strings.Builder, params ical.Params) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(";" + k + "=" + strings.Join(params[k], ","))
	}
}
