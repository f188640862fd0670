package store

import (
	"time"

	"gitea.jw6.us/james/almanac/internal/recur"
)

// User represents a person authenticated via OIDC.
type User struct {
	ID           int64
	OAuthSubject string
	PrimaryEmail string
	CreatedAt    time.Time
	LastLoginAt  time.Time
}

// Session is an opaque browser session. Only the SHA-256 of the token is
// stored; the raw token lives in the cookie.
type Session struct {
	ID        int64
	UserID    int64
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Event is a calendar event row. Recurrence is persisted as the flat column
// set mirroring recur.Params so a rule round-trips the database losslessly;
// the repositories convert to and from the structured rule at the scan
// boundary.
type Event struct {
	ID          string
	UserID      int64
	Title       string
	Description *string
	StartAt     time.Time
	EndAt       time.Time
	AllDay      bool
	Location    *string
	Color       *string
	Recurrence  recur.Rule
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EngineEvent is the event as the recurrence engine sees it.
func (e *Event) EngineEvent() recur.Event {
	return recur.Event{
		ID:     e.ID,
		Title:  e.Title,
		Start:  e.StartAt,
		End:    e.EndAt,
		AllDay: e.AllDay,
		Rule:   e.Recurrence,
	}
}

// ruleColumns is the scan/exec target for the flat recurrence columns.
type ruleColumns struct {
	Frequency   string
	Interval    *int32
	Days        []int32
	DayOfMonth  *int32
	WeekOfMonth *int32
	DayOfWeek   *int32
	EndDate     *time.Time
	Count       *int32
}

func columnsOf(rule recur.Rule) ruleColumns {
	p := recur.ParamsOf(rule)
	c := ruleColumns{Frequency: string(p.Frequency)}
	if p.Interval > 0 {
		c.Interval = int32p(p.Interval)
	}
	for _, d := range p.Days {
		c.Days = append(c.Days, int32(d))
	}
	if p.DayOfMonth != nil {
		c.DayOfMonth = int32p(*p.DayOfMonth)
	}
	if p.WeekOfMonth != nil {
		c.WeekOfMonth = int32p(*p.WeekOfMonth)
	}
	if p.DayOfWeek != nil {
		c.DayOfWeek = int32p(*p.DayOfWeek)
	}
	c.EndDate = p.EndDate
	if p.Count != nil {
		c.Count = int32p(*p.Count)
	}
	return c
}

func (c ruleColumns) rule() recur.Rule {
	p := recur.Params{Frequency: recur.Frequency(c.Frequency)}
	if c.Interval != nil {
		p.Interval = int(*c.Interval)
	}
	for _, d := range c.Days {
		p.Days = append(p.Days, int(d))
	}
	if c.DayOfMonth != nil {
		p.DayOfMonth = intp(int(*c.DayOfMonth))
	}
	if c.WeekOfMonth != nil {
		p.WeekOfMonth = intp(int(*c.WeekOfMonth))
	}
	if c.DayOfWeek != nil {
		p.DayOfWeek = intp(int(*c.DayOfWeek))
	}
	p.EndDate = c.EndDate
	if c.Count != nil {
		p.Count = intp(int(*c.Count))
	}
	return p.Rule()
}

func int32p(n int) *int32 {
	v := int32(n)
	return &v
}

func intp(n int) *int { return &n }
