package rules

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// EvalContext carries the request attributes conditions are evaluated against.
type EvalContext struct {
	Now      time.Time
	Location *time.Location // subject timezone; nil means UTC
	ClientIP netip.Addr     // zero when the gateway could not resolve one
}

func (c EvalContext) localNow() time.Time {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return c.Now.In(loc)
}

// Condition is one variant of a business-rule predicate. A condition that
// cannot be evaluated against the supplied context reports no match.
type Condition interface {
	Matches(ctx EvalContext) bool
	Validate() error
}

// DecodeCondition parses a stored payload into its typed variant.
func DecodeCondition(kind ConditionType, payload []byte) (Condition, error) {
	var cond Condition
	switch kind {
	case ConditionTimeWindow:
		cond = &TimeWindowCondition{}
	case ConditionDayOfWeek:
		cond = &DayOfWeekCondition{}
	case ConditionLocation:
		cond = &LocationCondition{}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidCondition, kind)
	}
	if err := json.Unmarshal(payload, cond); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCondition, err.Error())
	}
	if err := cond.Validate(); err != nil {
		return nil, err
	}
	return cond, nil
}

// EncodeCondition serializes a condition for storage.
func EncodeCondition(cond Condition) ([]byte, error) {
	if err := cond.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(cond)
}

// TimeWindowCondition matches when the local time of day falls inside
// [Start, End). A window whose end precedes its start wraps past midnight.
type TimeWindowCondition struct {
	Start string `json:"start"` // "HH:MM"
	End   string `json:"end"`   // "HH:MM"
}

// Validate checks both bounds parse as HH:MM and differ.
func (c *TimeWindowCondition) Validate() error {
	start, err := parseMinuteOfDay(c.Start)
	if err != nil {
		return fmt.Errorf("%w: start: %s", ErrInvalidCondition, err.Error())
	}
	end, err := parseMinuteOfDay(c.End)
	if err != nil {
		return fmt.Errorf("%w: end: %s", ErrInvalidCondition, err.Error())
	}
	if start == end {
		return fmt.Errorf("%w: window is empty", ErrInvalidCondition)
	}
	return nil
}

// Matches evaluates the window in the subject's timezone.
func (c *TimeWindowCondition) Matches(ctx EvalContext) bool {
	start, err := parseMinuteOfDay(c.Start)
	if err != nil {
		return false
	}
	end, err := parseMinuteOfDay(c.End)
	if err != nil {
		return false
	}
	local := ctx.localNow()
	minute := local.Hour()*60 + local.Minute()
	if start < end {
		return minute >= start && minute < end
	}
	// overnight window, e.g. 22:00-06:00
	return minute >= start || minute < end
}

// DayOfWeekCondition matches when the local weekday is listed.
type DayOfWeekCondition struct {
	Days []string `json:"days"` // lowercase English weekday names
}

// Validate checks every listed day is a known weekday.
func (c *DayOfWeekCondition) Validate() error {
	if len(c.Days) == 0 {
		return fmt.Errorf("%w: no days listed", ErrInvalidCondition)
	}
	for _, day := range c.Days {
		if _, ok := weekdayNames[strings.ToLower(day)]; !ok {
			return fmt.Errorf("%w: unknown day %q", ErrInvalidCondition, day)
		}
	}
	return nil
}

// Matches evaluates the weekday in the subject's timezone.
func (c *DayOfWeekCondition) Matches(ctx EvalContext) bool {
	weekday := ctx.localNow().Weekday()
	for _, day := range c.Days {
		if wd, ok := weekdayNames[strings.ToLower(day)]; ok && wd == weekday {
			return true
		}
	}
	return false
}

// LocationCondition matches when the client IP falls inside any listed prefix.
// A request without a resolvable IP never matches: the rule stays neutral.
type LocationCondition struct {
	CIDRs []string `json:"cidrs"`
}

// Validate checks every prefix parses.
func (c *LocationCondition) Validate() error {
	if len(c.CIDRs) == 0 {
		return fmt.Errorf("%w: no cidrs listed", ErrInvalidCondition)
	}
	for _, cidr := range c.CIDRs {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			return fmt.Errorf("%w: cidr %q: %s", ErrInvalidCondition, cidr, err.Error())
		}
	}
	return nil
}

// Matches tests the client IP against the listed prefixes.
func (c *LocationCondition) Matches(ctx EvalContext) bool {
	if !ctx.ClientIP.IsValid() {
		return false
	}
	ip := ctx.ClientIP.Unmap()
	for _, cidr := range c.CIDRs {
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			continue
		}
		if prefix.Contains(ip) {
			return true
		}
	}
	return false
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseMinuteOfDay(value string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
