// Package ics renders a user's events as an iCalendar feed.
package ics

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"

	"gitea.jw6.us/james/almanac/internal/recur"
	"gitea.jw6.us/james/almanac/internal/store"
)

const productID = "-//Almanac//NONSGML Almanac Calendar//EN"

// Calendar builds a VCALENDAR with one VEVENT per stored event. Recurring
// events carry an RRULE so consuming clients expand the series themselves.
func Calendar(events []store.Event) (*ical.Calendar, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropVersion, "2.0")

	for i := range events {
		ev, err := component(&events[i])
		if err != nil {
			return nil, err
		}
		cal.Children = append(cal.Children, ev.Component)
	}
	return cal, nil
}

// Write encodes the events as an iCalendar stream.
func Write(w io.Writer, events []store.Event) error {
	cal, err := Calendar(events)
	if err != nil {
		return err
	}
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}

func component(e *store.Event) (*ical.Event, error) {
	ev := ical.NewEvent()
	ev.Props.SetText(ical.PropUID, e.ID)
	ev.Props.SetText(ical.PropSummary, e.Title)
	if e.Description != nil && *e.Description != "" {
		ev.Props.SetText(ical.PropDescription, *e.Description)
	}
	if e.Location != nil && *e.Location != "" {
		ev.Props.SetText(ical.PropLocation, *e.Location)
	}

	ev.Props.SetDateTime(ical.PropDateTimeStamp, e.UpdatedAt.UTC())
	if e.AllDay {
		setDate(ev, ical.PropDateTimeStart, e.StartAt)
		setDate(ev, ical.PropDateTimeEnd, e.EndAt)
	} else {
		ev.Props.SetDateTime(ical.PropDateTimeStart, e.StartAt.UTC())
		ev.Props.SetDateTime(ical.PropDateTimeEnd, e.EndAt.UTC())
	}

	if e.Recurrence.IsRecurring() {
		rrule, err := recur.RRuleString(e.Recurrence, e.StartAt)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", e.ID, err)
		}
		ev.Props.SetText(ical.PropRecurrenceRule, rrule)
	}
	return ev, nil
}

func setDate(ev *ical.Event, name string, t time.Time) {
	p := ical.NewProp(name)
	p.SetValueType(ical.ValueDate)
	p.Value = t.Format("20060102")
	ev.Props.Set(p)
}
