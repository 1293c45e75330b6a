package query

import (
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// TemporalParser resolves relative-date phrases ("yesterday", "last
// week") to concrete [start, end) ranges, grounded on steveyegge-beads'
// use of olebedev/when for date-relative query expressions.
type TemporalParser struct {
	w     *when.Parser
	clock func() time.Time
}

// NewTemporalParser builds a parser with the English rule set. clock may
// be nil to use time.Now.
func NewTemporalParser(clock func() time.Time) *TemporalParser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	if clock == nil {
		clock = time.Now
	}
	return &TemporalParser{w: w, clock: clock}
}

// ResolveRelative resolves phrase (assumed already detected as one of the
// recognized relative-temporal phrases) to a [start, end) day/week/
// month/year range anchored at the parser's clock.
func (p *TemporalParser) ResolveRelative(phrase string) (start, end time.Time, ok bool) {
	now := p.clock()
	res, err := p.w.Parse(phrase, now)
	if err != nil || res == nil {
		return time.Time{}, time.Time{}, false
	}
	t := res.Time
	switch {
	case containsAny(phrase, "week"):
		start = startOfWeek(t)
		end = start.AddDate(0, 0, 7)
	case containsAny(phrase, "month"):
		start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
		end = start.AddDate(0, 1, 0)
	case containsAny(phrase, "year"):
		start = time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, t.Location())
		end = start.AddDate(1, 0, 0)
	default: // day
		start = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		end = start.AddDate(0, 0, 1)
	}
	return start, end, true
}

func startOfWeek(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := int(day.Weekday())
	return day.AddDate(0, 0, -offset)
}

func containsAny(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
