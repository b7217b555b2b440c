package notifications

import (
	"fmt"
	"time"

	"github.com/prosvitlo/prosvitlo-data/internal/interval"
	"github.com/prosvitlo/prosvitlo-data/internal/schedule"
)

// Planner derives notification events from schedules. It is pure: the same
// inputs always give the same events.
type Planner struct {
	Lead           time.Duration
	NotifyPossible bool
	Location       *time.Location
}

// NewPlanner returns a planner with the default lead time when lead is zero.
func NewPlanner(lead time.Duration, notifyPossible bool, loc *time.Location) Planner {
	if lead == 0 {
		lead = defaultLead
	}
	if loc == nil {
		loc = time.UTC
	}
	return Planner{Lead: lead, NotifyPossible: notifyPossible, Location: loc}
}

// PlanDay returns one event per interval start of the day: guaranteed
// intervals always, possible ones when enabled.
func (p Planner) PlanDay(day schedule.Day) []Event {
	var events []Event
	for _, queue := range day.Intervals.Queues() {
		qs := day.Intervals[queue]
		for _, iv := range qs.Guaranteed {
			events = append(events, p.intervalEvent(day, queue, iv, KindGuaranteed))
		}
		if !p.NotifyPossible {
			continue
		}
		for _, iv := range qs.Possible {
			events = append(events, p.intervalEvent(day, queue, iv, KindPossible))
		}
	}
	return events
}

func (p Planner) intervalEvent(day schedule.Day, queue string, iv interval.Interval, kind EventKind) Event {
	start := interval.At(day.Date, iv.Start, p.Location)
	ev := Event{
		Key: EventKey{
			Date:        day.DateKey(),
			Queue:       queue,
			StartMinute: iv.StartMinute(),
			Kind:        kind,
		},
		Region: day.Region,
		Source: day.ContentHash,
		FireAt: start.Add(-p.Lead),
		Start:  start,
		End:    interval.At(day.Date, iv.End, p.Location),
		Title:  "Відключення електроенергії",
	}
	if kind == KindPossible {
		ev.Title = "Можливе відключення"
		ev.Body = fmt.Sprintf("Можливе відключення підчерги %s з %s до %s",
			queue, interval.FormatHour(iv.Start), interval.FormatHour(iv.End))
	} else {
		ev.Body = fmt.Sprintf("Згідно графіку, о %s буде відключено підчергу %s (до %s)",
			interval.FormatHour(iv.Start), queue, interval.FormatHour(iv.End))
	}
	return ev
}

// PlanAnnouncements returns one event per announcement outage. Outages that
// start inside a scheduled guaranteed interval of the same queue are skipped
// because that window is already announced.
func (p Planner) PlanAnnouncements(region string, scheduled interval.QueueIntervals, outages []interval.AnnouncementOutage) []Event {
	var events []Event
	for _, o := range outages {
		if coveredBySchedule(scheduled[o.Queue], o.Start) {
			continue
		}
		start := interval.At(o.Date, o.Start, p.Location)
		events = append(events, Event{
			Key: EventKey{
				Date:        o.Date.Format(interval.DateLayout),
				Queue:       o.Queue,
				StartMinute: interval.HourToMinute(o.Start),
				Kind:        KindAnnouncement,
				RecordID:    o.ID,
			},
			Region: region,
			Source: o.ID,
			FireAt: start.Add(-p.Lead),
			Start:  start,
			End:    interval.At(o.Date, o.End, p.Location),
			Title:  "Позапланове відключення",
			Body: fmt.Sprintf("За оголошенням, о %s буде відключено підчергу %s (до %s)",
				interval.FormatHour(o.Start), o.Queue, interval.FormatHour(o.End)),
		})
	}
	return events
}

func coveredBySchedule(qs interval.QueueSchedule, hour float64) bool {
	for _, iv := range qs.Guaranteed {
		if iv.Contains(hour) {
			return true
		}
	}
	return false
}

// SchedulePublished is the broadcast for the first schedule of a date.
// Later revisions of the same date share its key and are not re-announced.
func (p Planner) SchedulePublished(day schedule.Day) Event {
	return Event{
		Key: EventKey{
			Date: day.DateKey(),
			Kind: KindSchedulePublished,
		},
		Region: day.Region,
		Source: day.ContentHash,
		Title:  "Новий графік відключень",
		Body:   fmt.Sprintf("Опубліковано графік погодинних відключень на %s", day.Date.Format("02.01.2006")),
	}
}

// Notice is the one-off broadcast of an operator announcement.
func (p Planner) Notice(date time.Time, title, body, hash string) Event {
	return Event{
		Key: EventKey{
			Date:     date.Format(interval.DateLayout),
			Kind:     KindNotice,
			RecordID: hash,
		},
		Source: hash,
		Title:  title,
		Body:   body,
	}
}
