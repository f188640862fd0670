package store

import (
	"testing"
	"time"

	"gitea.jw6.us/james/almanac/internal/recur"
)

func TestRuleColumnsRoundTrip(t *testing.T) {
	end := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	rules := []recur.Rule{
		recur.None(),
		recur.Normalize(recur.Rule{Frequency: recur.FreqDaily, Interval: 3, Termination: recur.Times(10)}),
		recur.Normalize(recur.Rule{
			Frequency: recur.FreqWeekly,
			Days:      []recur.Weekday{recur.Monday, recur.Friday},
		}),
		recur.Normalize(recur.Rule{
			Frequency:   recur.FreqMonthly,
			Anchor:      recur.OnNthWeekday(5, recur.Friday),
			Termination: recur.Until(end),
		}),
		recur.Normalize(recur.Rule{Frequency: recur.FreqMonthly, Anchor: recur.OnDay(31)}),
	}

	for _, rule := range rules {
		got := columnsOf(rule).rule()
		if !equalRules(got, rule) {
			t.Errorf("round trip changed rule: %+v -> %+v", rule, got)
		}
	}
}

func equalRules(a, b recur.Rule) bool {
	if a.Frequency != b.Frequency || a.Interval != b.Interval || len(a.Days) != len(b.Days) {
		return false
	}
	for i := range a.Days {
		if a.Days[i] != b.Days[i] {
			return false
		}
	}
	return a.Anchor == b.Anchor && a.Termination == b.Termination
}

func TestEngineEventCarriesRule(t *testing.T) {
	rule := recur.Normalize(recur.Rule{Frequency: recur.FreqDaily})
	start := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	e := Event{
		ID:         "evt-1",
		Title:      "Standup",
		StartAt:    start,
		EndAt:      start.Add(time.Hour),
		AllDay:     false,
		Recurrence: rule,
	}

	ev := e.EngineEvent()
	if ev.ID != e.ID || !ev.Start.Equal(e.StartAt) || !ev.End.Equal(e.EndAt) {
		t.Errorf("engine event mismatch: %+v", ev)
	}
	if !ev.Rule.IsRecurring() {
		t.Error("rule lost in conversion")
	}
}
