// Package interval holds the canonical outage-window model: hour intervals
// per queue, the merge/union fold, augmentation with announcement outages,
// and point-in-time status lookup.
//
// Intervals are half-open [Start, End) in hours of a single calendar date.
// Hour 24 is the end of that date; nothing wraps into the next day.
package interval

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	DayStart = 0.0
	DayEnd   = 24.0

	// DateLayout is the wire format for schedule dates.
	DateLayout = "2006-01-02"
)

// --------------------------------------------------------------------------
// Kind
// --------------------------------------------------------------------------

// Kind distinguishes a certain outage from a contingent one.
type Kind int

const (
	Guaranteed Kind = iota
	Possible
)

func (k Kind) String() string {
	switch k {
	case Guaranteed:
		return "guaranteed"
	case Possible:
		return "possible"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "guaranteed":
		return Guaranteed, nil
	case "possible":
		return Possible, nil
	}
	return 0, fmt.Errorf("unknown interval kind %q", s)
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// --------------------------------------------------------------------------
// Interval
// --------------------------------------------------------------------------

// Interval is one outage window in fractional hours.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Kind  Kind    `json:"kind"`
}

// Valid reports whether the interval is non-empty and inside the day.
func (iv Interval) Valid() bool {
	return iv.Start >= DayStart && iv.Start < iv.End && iv.End <= DayEnd
}

// Contains reports whether hour falls inside [Start, End).
func (iv Interval) Contains(hour float64) bool {
	return hour >= iv.Start && hour < iv.End
}

// StartMinute returns the start as minutes from midnight.
func (iv Interval) StartMinute() int {
	return HourToMinute(iv.Start)
}

// EndMinute returns the end as minutes from midnight.
func (iv Interval) EndMinute() int {
	return HourToMinute(iv.End)
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s-%s %s]", FormatHour(iv.Start), FormatHour(iv.End), iv.Kind)
}

// HourToMinute converts a fractional hour to whole minutes, rounding to the
// nearest minute so 17.5 and 17.4999999 agree.
func HourToMinute(h float64) int {
	return int(math.Round(h * 60))
}

// FormatHour renders a fractional hour as HH:MM.
func FormatHour(h float64) string {
	m := HourToMinute(h)
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Clamp forces a raw [start, end) pair into the day. An end at or before the
// start is read as "until the end of the day".
func Clamp(start, end float64) (float64, float64) {
	start = math.Max(DayStart, math.Min(start, DayEnd))
	end = math.Max(DayStart, math.Min(end, DayEnd))
	if end <= start {
		end = DayEnd
	}
	return start, end
}

// --------------------------------------------------------------------------
// Merge
// --------------------------------------------------------------------------

// Merge folds overlapping or touching intervals of the same kind. Empty or
// out-of-range intervals are dropped. The input is not modified; the result
// is ordered by start, then kind.
func Merge(intervals []Interval) []Interval {
	sorted := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Valid() {
			sorted = append(sorted, iv)
		}
	}
	if len(sorted) == 0 {
		return nil
	}

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Kind != sorted[j].Kind {
			return sorted[i].Kind < sorted[j].Kind
		}
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	merged := make([]Interval, 0, len(sorted))
	cur := sorted[0]
	for _, next := range sorted[1:] {
		if next.Kind == cur.Kind && cur.End >= next.Start {
			cur.End = math.Max(cur.End, next.End)
			continue
		}
		merged = append(merged, cur)
		cur = next
	}
	merged = append(merged, cur)

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Start != merged[j].Start {
			return merged[i].Start < merged[j].Start
		}
		return merged[i].Kind < merged[j].Kind
	})
	return merged
}

// --------------------------------------------------------------------------
// Queue schedules
// --------------------------------------------------------------------------

// QueueSchedule is the pair of interval lists for one queue.
type QueueSchedule struct {
	Guaranteed []Interval `json:"guaranteed"`
	Possible   []Interval `json:"possible"`
}

// Normalize merges both lists and forces each entry's kind to match the list
// it sits in. Nil lists become empty so "explicitly no outage" survives JSON.
func (q QueueSchedule) Normalize() QueueSchedule {
	return QueueSchedule{
		Guaranteed: mergeAs(q.Guaranteed, Guaranteed),
		Possible:   mergeAs(q.Possible, Possible),
	}
}

// Empty reports whether the queue has no outage of either kind.
func (q QueueSchedule) Empty() bool {
	return len(q.Guaranteed) == 0 && len(q.Possible) == 0
}

// All returns both lists as one slice ordered by start.
func (q QueueSchedule) All() []Interval {
	all := make([]Interval, 0, len(q.Guaranteed)+len(q.Possible))
	all = append(all, q.Guaranteed...)
	all = append(all, q.Possible...)
	return Merge(all)
}

func mergeAs(in []Interval, kind Kind) []Interval {
	fixed := make([]Interval, len(in))
	for i, iv := range in {
		iv.Kind = kind
		fixed[i] = iv
	}
	out := Merge(fixed)
	if out == nil {
		out = []Interval{}
	}
	return out
}

// QueueIntervals maps queue id (e.g. "3.1") to its schedule.
type QueueIntervals map[string]QueueSchedule

// Normalize returns a merged copy of every queue.
func (qi QueueIntervals) Normalize() QueueIntervals {
	out := make(QueueIntervals, len(qi))
	for q, s := range qi {
		out[q] = s.Normalize()
	}
	return out
}

// Clone returns a deep copy.
func (qi QueueIntervals) Clone() QueueIntervals {
	out := make(QueueIntervals, len(qi))
	for q, s := range qi {
		out[q] = QueueSchedule{
			Guaranteed: append([]Interval{}, s.Guaranteed...),
			Possible:   append([]Interval{}, s.Possible...),
		}
	}
	return out
}

// Queues returns the queue ids in sorted order.
func (qi QueueIntervals) Queues() []string {
	qs := make([]string, 0, len(qi))
	for q := range qi {
		qs = append(qs, q)
	}
	sort.Strings(qs)
	return qs
}

// --------------------------------------------------------------------------
// Announcement outages
// --------------------------------------------------------------------------

// AnnouncementOutage is an ad-hoc window mined from free text.
type AnnouncementOutage struct {
	ID    string    `json:"id"`
	Date  time.Time `json:"date"`
	Queue string    `json:"queue"`
	Start float64   `json:"start"`
	End   float64   `json:"end"`
	Text  string    `json:"text"`
}

// Interval returns the outage as a Guaranteed interval.
func (a AnnouncementOutage) Interval() Interval {
	return Interval{Start: a.Start, End: a.End, Kind: Guaranteed}
}

// dedupKey identifies an announcement by (date, queue, start, end).
type dedupKey struct {
	date       string
	queue      string
	start, end int
}

func (a AnnouncementOutage) dedupKey() dedupKey {
	return dedupKey{
		date:  a.Date.Format(DateLayout),
		queue: a.Queue,
		start: HourToMinute(a.Start),
		end:   HourToMinute(a.End),
	}
}

// Augment merges announcement outages into the base schedule as Guaranteed
// intervals for their queues. Duplicate announcements are applied once. The
// base is not modified.
func Augment(base QueueIntervals, extra []AnnouncementOutage) QueueIntervals {
	out := base.Clone()
	seen := make(map[dedupKey]bool, len(extra))
	for _, a := range extra {
		k := a.dedupKey()
		if seen[k] {
			continue
		}
		seen[k] = true
		s := out[a.Queue]
		s.Guaranteed = append(s.Guaranteed, a.Interval())
		out[a.Queue] = s
	}
	return out.Normalize()
}

// --------------------------------------------------------------------------
// Status
// --------------------------------------------------------------------------

// Status is the answer to "is my queue out at this hour".
type Status string

const (
	StatusOutage   Status = "outage"
	StatusPossible Status = "possible"
	StatusClear    Status = "clear"
)

// StatusAt resolves the status of a queue at the given hour. Guaranteed
// intervals take precedence over possible ones.
func StatusAt(q QueueSchedule, hour float64) Status {
	for _, iv := range q.Guaranteed {
		if iv.Contains(hour) {
			return StatusOutage
		}
	}
	for _, iv := range q.Possible {
		if iv.Contains(hour) {
			return StatusPossible
		}
	}
	return StatusClear
}

// DateOnly truncates t to midnight UTC of its calendar date in t's location.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// At returns the wall-clock instant of hour on date in loc.
func At(date time.Time, hour float64, loc *time.Location) time.Time {
	y, m, d := date.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return midnight.Add(time.Duration(HourToMinute(hour)) * time.Minute)
}
