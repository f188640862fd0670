package recur

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(n int) *int { return &n }

func TestParams_DayOfMonthWinsOverRelativeAnchor(t *testing.T) {
	// A malformed payload can carry both monthly variants; the specific-day
	// form is the documented default.
	p := Params{
		Frequency:   FreqMonthly,
		Interval:    1,
		DayOfMonth:  intp(15),
		WeekOfMonth: intp(2),
		DayOfWeek:   intp(int(Tuesday)),
	}
	rule := p.Rule()
	day, ok := rule.Anchor.Day()
	require.True(t, ok)
	assert.Equal(t, 15, day)
}

func TestParams_RelativeAnchorNeedsBothFields(t *testing.T) {
	p := Params{Frequency: FreqMonthly, WeekOfMonth: intp(2)}
	assert.True(t, p.Rule().Anchor.IsZero())

	p.DayOfWeek = intp(int(Friday))
	week, weekday, ok := p.Rule().Anchor.NthWeekday()
	require.True(t, ok)
	assert.Equal(t, 2, week)
	assert.Equal(t, Friday, weekday)
}

func TestParams_EndDateWinsOverCount(t *testing.T) {
	end := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	p := Params{Frequency: FreqDaily, EndDate: &end, Count: intp(10)}
	rule := p.Rule()
	got, ok := rule.Termination.EndDate()
	require.True(t, ok)
	assert.Equal(t, end, got)
}

func TestRule_JSONRoundTrip(t *testing.T) {
	end := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	rules := []Rule{
		None(),
		Normalize(Rule{Frequency: FreqDaily, Interval: 2}),
		Normalize(Rule{Frequency: FreqWeekly, Days: []Weekday{Monday, Wednesday, Friday}, Termination: Times(10)}),
		Normalize(Rule{Frequency: FreqMonthly, Anchor: OnDay(31), Termination: Until(end)}),
		Normalize(Rule{Frequency: FreqMonthly, Interval: 3, Anchor: OnNthWeekday(5, Friday)}),
		Normalize(Rule{Frequency: FreqYearly}),
	}
	for _, rule := range rules {
		raw, err := json.Marshal(rule)
		require.NoError(t, err)

		var back Rule
		require.NoError(t, json.Unmarshal(raw, &back))
		assert.Equal(t, rule, back, "rule did not survive the wire: %s", raw)
	}
}

func TestRule_JSONFieldNames(t *testing.T) {
	rule := Normalize(Rule{Frequency: FreqWeekly, Interval: 2, Days: []Weekday{Monday}})
	raw, err := json.Marshal(rule)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "weekly", m["recurrence_frequency"])
	assert.EqualValues(t, 2, m["recurrence_interval"])
	assert.Contains(t, m, "recurrence_days")
	assert.NotContains(t, m, "recurrence_day_of_month")
}
