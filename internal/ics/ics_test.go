package ics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitea.jw6.us/james/almanac/internal/recur"
	"gitea.jw6.us/james/almanac/internal/store"
)

func testEvent(id, title string, rule recur.Rule) store.Event {
	start := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	return store.Event{
		ID:         id,
		UserID:     1,
		Title:      title,
		StartAt:    start,
		EndAt:      start.Add(time.Hour),
		Recurrence: rule,
		CreatedAt:  start,
		UpdatedAt:  start,
	}
}

func render(t *testing.T, events []store.Event) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, events))
	return buf.String()
}

func TestWriteSingleEvent(t *testing.T) {
	out := render(t, []store.Event{testEvent("evt-1", "Dentist", recur.None())})

	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "VERSION:2.0")
	assert.Contains(t, out, "BEGIN:VEVENT")
	assert.Contains(t, out, "UID:evt-1")
	assert.Contains(t, out, "SUMMARY:Dentist")
	assert.Contains(t, out, "DTSTART:20240304T090000Z")
	assert.Contains(t, out, "DTEND:20240304T100000Z")
	assert.NotContains(t, out, "RRULE")
}

func TestWriteRecurringEvent(t *testing.T) {
	rule := recur.Normalize(recur.Rule{
		Frequency: recur.FreqWeekly,
		Interval:  2,
		Days:      []recur.Weekday{recur.Monday, recur.Wednesday},
	})
	out := render(t, []store.Event{testEvent("evt-2", "Standup", rule)})

	require.Contains(t, out, "RRULE:")
	rruleLine := ""
	for _, line := range strings.Split(out, "\r\n") {
		if strings.HasPrefix(line, "RRULE:") {
			rruleLine = line
		}
	}
	assert.Contains(t, rruleLine, "FREQ=WEEKLY")
	assert.Contains(t, rruleLine, "INTERVAL=2")
	assert.Contains(t, rruleLine, "BYDAY=MO,WE")
}

func TestWriteAllDayEventUsesDateValues(t *testing.T) {
	ev := testEvent("evt-3", "Conference", recur.None())
	ev.AllDay = true
	ev.StartAt = time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	ev.EndAt = time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)

	out := render(t, []store.Event{ev})

	assert.Contains(t, out, "DTSTART;VALUE=DATE:20240304")
	assert.Contains(t, out, "DTEND;VALUE=DATE:20240305")
}

func TestWriteDescriptionAndLocation(t *testing.T) {
	ev := testEvent("evt-4", "Review", recur.None())
	desc := "Quarterly review"
	loc := "Room 4"
	ev.Description = &desc
	ev.Location = &loc

	out := render(t, []store.Event{ev})

	assert.Contains(t, out, "DESCRIPTION:Quarterly review")
	assert.Contains(t, out, "LOCATION:Room 4")
}
