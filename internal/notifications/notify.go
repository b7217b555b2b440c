// Package notifications turns outage windows into exactly-once push
// notifications.
//
// Pipeline: plan events from the active schedule and announcement outages →
// arm one in-memory timer per event → on fire, insert the event key into the
// dedup ledger → deliver only if the insert was new. Timers are never
// persisted; after a restart they are re-derived from the stored schedule and
// the ledger.
package notifications

import (
	"errors"
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultLead        = 10 * time.Minute
	deliveryTimeout    = 30 * time.Second
	finishedEntryGrace = 24 * time.Hour
	broadcastQueue     = "all"
)

var (
	// ErrDedupConflict means the event is already in the ledger. Firing maps
	// it to success without delivery.
	ErrDedupConflict = errors.New("notification already recorded")
	// ErrDeliveryFailure wraps transport errors. The ledger row stays.
	ErrDeliveryFailure = errors.New("notification delivery failed")
)

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// EventKind says what a notification is about. It is part of the dedup key.
type EventKind string

const (
	KindGuaranteed        EventKind = "guaranteed"
	KindPossible          EventKind = "possible"
	KindAnnouncement      EventKind = "announcement"
	KindSchedulePublished EventKind = "schedule_published"
	KindNotice            EventKind = "notice"
)

// EventKey identifies one notification. It is both the ledger's unique key
// and the key of the in-memory timer map.
type EventKey struct {
	Date        string    `json:"date"` // YYYY-MM-DD
	Queue       string    `json:"queue"`
	StartMinute int       `json:"start_minute"`
	Kind        EventKind `json:"kind"`
	RecordID    string    `json:"record_id,omitempty"` // announcement id or notice hash
}

func (k EventKey) String() string {
	s := fmt.Sprintf("%s/%s/%s@%02d:%02d", k.Kind, k.Date, k.Queue, k.StartMinute/60, k.StartMinute%60)
	if k.RecordID != "" {
		s += "#" + k.RecordID
	}
	return s
}

// Event is a planned notification.
type Event struct {
	Key    EventKey  `json:"key"`
	Region string    `json:"region"`
	Source string    `json:"source"` // content hash or announcement id the event was derived from
	FireAt time.Time `json:"fire_at"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Title  string    `json:"title"`
	Body   string    `json:"body"`
}

// Notification is what senders deliver.
type Notification struct {
	Key   EventKey
	Topic string // queue id or "all"
	Title string
	Body  string
	Data  map[string]string
}

func (e Event) notification() Notification {
	topic := e.Key.Queue
	if topic == "" {
		topic = broadcastQueue
	}
	return Notification{
		Key:   e.Key,
		Topic: topic,
		Title: e.Title,
		Body:  e.Body,
		Data: map[string]string{
			"kind":  string(e.Key.Kind),
			"date":  e.Key.Date,
			"queue": e.Key.Queue,
		},
	}
}

// State is the lifecycle of one timer.
type State int

const (
	StatePending State = iota
	StateFired
	StateRecorded
	StateSuperseded
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFired:
		return "fired"
	case StateRecorded:
		return "recorded"
	case StateSuperseded:
		return "superseded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}
