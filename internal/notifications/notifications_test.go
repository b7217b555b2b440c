package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prosvitlo/prosvitlo-data/internal/interval"
	"github.com/prosvitlo/prosvitlo-data/internal/schedule"
)

// --------------------------------------------------------------------------
// Fakes
// --------------------------------------------------------------------------

var kyiv = time.FixedZone("EET", 2*60*60)

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock and runs due callbacks in fire order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

type recordingSender struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (r *recordingSender) Deliver(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingSender) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.sent...)
}

type flakyLedger struct {
	*MemoryLedger
	failures int
}

func (f *flakyLedger) Record(ctx context.Context, key EventKey) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}
	return f.MemoryLedger.Record(ctx, key)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testDate = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func testDay(hash string, intervals interval.QueueIntervals) schedule.Day {
	return schedule.Day{
		Date:        testDate,
		Region:      "hoe",
		ContentHash: hash,
		Intervals:   intervals,
		Active:      true,
	}
}

func guaranteed(start, end float64) interval.QueueSchedule {
	return interval.QueueSchedule{Guaranteed: []interval.Interval{{Start: start, End: end, Kind: interval.Guaranteed}}}
}

type harness struct {
	clock  *fakeClock
	store  *schedule.MemoryStore
	ledger *MemoryLedger
	sender *recordingSender
	sched  *Scheduler
}

func newHarness(t *testing.T, at time.Time, notifyPossible bool) *harness {
	t.Helper()
	h := &harness{
		clock:  newFakeClock(at),
		store:  schedule.NewMemoryStore(),
		ledger: NewMemoryLedger(),
		sender: &recordingSender{},
	}
	h.sched = h.newScheduler(h.ledger, h.sender, notifyPossible)
	return h
}

func (h *harness) newScheduler(ledger Ledger, sender Sender, notifyPossible bool) *Scheduler {
	return NewScheduler(h.store, ledger, sender, Options{
		Region:  "hoe",
		Planner: NewPlanner(10*time.Minute, notifyPossible, kyiv),
		Now:     h.clock.Now,
		After:   h.clock.After,
	}, testLogger())
}

func localTime(hour, minute int) time.Time {
	return time.Date(2026, 3, 10, hour, minute, 0, 0, kyiv)
}

// --------------------------------------------------------------------------
// Planner
// --------------------------------------------------------------------------

func TestPlanDay(t *testing.T) {
	day := testDay("h1", interval.QueueIntervals{
		"1.1": {
			Guaranteed: []interval.Interval{{Start: 8, End: 11, Kind: interval.Guaranteed}},
			Possible:   []interval.Interval{{Start: 14, End: 15, Kind: interval.Possible}},
		},
	})

	events := NewPlanner(10*time.Minute, false, kyiv).PlanDay(day)
	require.Len(t, events, 1)
	ev := events[0]
	assert.Equal(t, EventKey{Date: "2026-03-10", Queue: "1.1", StartMinute: 480, Kind: KindGuaranteed}, ev.Key)
	assert.True(t, ev.FireAt.Equal(localTime(7, 50)))
	assert.True(t, ev.End.Equal(localTime(11, 0)))
	assert.Equal(t, "h1", ev.Source)
	assert.Contains(t, ev.Body, "08:00")

	events = NewPlanner(10*time.Minute, true, kyiv).PlanDay(day)
	require.Len(t, events, 2)
	assert.Equal(t, KindPossible, events[1].Key.Kind)
	assert.Equal(t, 14*60, events[1].Key.StartMinute)
}

func TestPlannerDefaultLead(t *testing.T) {
	p := NewPlanner(0, false, nil)
	assert.Equal(t, defaultLead, p.Lead)
	assert.Equal(t, time.UTC, p.Location)
}

func TestPlanAnnouncementsSkipsCoveredOutages(t *testing.T) {
	scheduled := interval.QueueIntervals{"1.1": guaranteed(8, 11)}
	outages := []interval.AnnouncementOutage{
		{ID: "a", Date: testDate, Queue: "1.1", Start: 9, End: 10},
		{ID: "b", Date: testDate, Queue: "2.1", Start: 9, End: 10},
	}

	events := NewPlanner(10*time.Minute, false, kyiv).PlanAnnouncements("hoe", scheduled, outages)
	require.Len(t, events, 1)
	assert.Equal(t, "2.1", events[0].Key.Queue)
	assert.Equal(t, KindAnnouncement, events[0].Key.Kind)
	assert.Equal(t, "b", events[0].Key.RecordID)
}

func TestSchedulePublishedKeyIgnoresRevision(t *testing.T) {
	p := NewPlanner(0, false, kyiv)
	a := p.SchedulePublished(testDay("h1", nil))
	b := p.SchedulePublished(testDay("h2", nil))
	assert.Equal(t, a.Key, b.Key)
	assert.Equal(t, "all", a.notification().Topic)
}

// --------------------------------------------------------------------------
// Scheduler
// --------------------------------------------------------------------------

func TestSchedulerFiresAtLeadTime(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, localTime(7, 0), false)

	armed, err := h.sched.SyncDay(ctx, testDay("h1", interval.QueueIntervals{"1.1": guaranteed(8, 11)}))
	require.NoError(t, err)
	assert.Equal(t, 1, armed)

	h.clock.Advance(49 * time.Minute)
	assert.Empty(t, h.sender.Sent())

	h.clock.Advance(time.Minute)
	sent := h.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "1.1", sent[0].Topic)

	key := EventKey{Date: "2026-03-10", Queue: "1.1", StartMinute: 480, Kind: KindGuaranteed}
	state, ok := h.sched.State(key)
	require.True(t, ok)
	assert.Equal(t, StateRecorded, state)
	assert.Equal(t, 1, h.ledger.Len())
}

func TestSyncDayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, localTime(7, 0), false)
	day := testDay("h1", interval.QueueIntervals{"1.1": guaranteed(8, 11)})

	_, err := h.sched.SyncDay(ctx, day)
	require.NoError(t, err)
	armed, err := h.sched.SyncDay(ctx, day)
	require.NoError(t, err)
	assert.Zero(t, armed)
	assert.Len(t, h.clock.timers, 1)
}

func TestConcurrentFireDeliversOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, localTime(7, 0), false)
	other := &recordingSender{}
	second := h.newScheduler(h.ledger, other, false)

	day := testDay("h1", interval.QueueIntervals{"1.1": guaranteed(8, 11)})
	_, err := h.sched.SyncDay(ctx, day)
	require.NoError(t, err)
	_, err = second.SyncDay(ctx, day)
	require.NoError(t, err)

	key := EventKey{Date: "2026-03-10", Queue: "1.1", StartMinute: 480, Kind: KindGuaranteed}
	var wg sync.WaitGroup
	for _, s := range []*Scheduler{h.sched, second, h.sched, second} {
		wg.Add(1)
		go func(s *Scheduler) {
			defer wg.Done()
			_, err := s.Fire(ctx, key)
			assert.NoError(t, err)
		}(s)
	}
	wg.Wait()

	assert.Equal(t, 1, len(h.sender.Sent())+len(other.Sent()))
	assert.Equal(t, 1, h.ledger.Len())
}

func TestRecoverSkipsRecordedEvents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, localTime(7, 0), false)
	_, err := h.store.Replace(ctx, testDay("h1", interval.QueueIntervals{
		"1.1": guaranteed(8, 11),
		"2.1": guaranteed(12, 14),
	}))
	require.NoError(t, err)
	require.NoError(t, h.ledger.Record(ctx, EventKey{Date: "2026-03-10", Queue: "1.1", StartMinute: 480, Kind: KindGuaranteed}))

	require.NoError(t, h.sched.Recover(ctx))

	timers := h.sched.Timers()
	require.Len(t, timers, 1)
	assert.Equal(t, "2.1", timers[0].Event.Key.Queue)
	assert.Equal(t, "pending", timers[0].State)

	h.clock.Advance(6 * time.Hour)
	require.Len(t, h.sender.Sent(), 1)
	assert.Equal(t, "2.1", h.sender.Sent()[0].Topic)
}

func TestNewRevisionSupersedesPendingTimers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, localTime(7, 0), false)

	_, err := h.sched.SyncDay(ctx, testDay("h1", interval.QueueIntervals{
		"1.1": guaranteed(8, 11),
		"2.1": guaranteed(12, 14),
	}))
	require.NoError(t, err)

	_, err = h.sched.SyncDay(ctx, testDay("h2", interval.QueueIntervals{
		"1.1": guaranteed(9, 11),
		"2.1": guaranteed(12, 14),
	}))
	require.NoError(t, err)

	old := EventKey{Date: "2026-03-10", Queue: "1.1", StartMinute: 480, Kind: KindGuaranteed}
	state, ok := h.sched.State(old)
	require.True(t, ok)
	assert.Equal(t, StateSuperseded, state)

	kept := EventKey{Date: "2026-03-10", Queue: "2.1", StartMinute: 720, Kind: KindGuaranteed}
	state, ok = h.sched.State(kept)
	require.True(t, ok)
	assert.Equal(t, StatePending, state)

	h.clock.Advance(8 * time.Hour)
	var starts []int
	for _, n := range h.sender.Sent() {
		starts = append(starts, n.Key.StartMinute)
	}
	assert.Equal(t, []int{540, 720}, starts)
}

func TestTickSupersedesTimersOfReplacedRevision(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, localTime(7, 0), false)

	_, err := h.sched.SyncDay(ctx, testDay("h1", interval.QueueIntervals{"3.1": guaranteed(14, 16)}))
	require.NoError(t, err)

	// another instance replaced the day and this one missed the event
	_, err = h.store.Replace(ctx, testDay("h2", interval.QueueIntervals{"3.1": guaranteed(18, 20)}))
	require.NoError(t, err)
	require.NoError(t, h.sched.Tick(ctx))

	stale := EventKey{Date: "2026-03-10", Queue: "3.1", StartMinute: 840, Kind: KindGuaranteed}
	state, ok := h.sched.State(stale)
	require.True(t, ok)
	assert.Equal(t, StateSuperseded, state)

	fresh := EventKey{Date: "2026-03-10", Queue: "3.1", StartMinute: 1080, Kind: KindGuaranteed}
	state, ok = h.sched.State(fresh)
	require.True(t, ok)
	assert.Equal(t, StatePending, state)

	h.clock.Advance(12 * time.Hour)
	sent := h.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, 1080, sent[0].Key.StartMinute)
}

func TestRevisionKeepingKeyDeliversOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, localTime(7, 0), false)

	_, err := h.sched.SyncDay(ctx, testDay("h1", interval.QueueIntervals{"1.1": guaranteed(8, 11)}))
	require.NoError(t, err)
	_, err = h.sched.SyncDay(ctx, testDay("h2", interval.QueueIntervals{"1.1": guaranteed(8, 12)}))
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	require.Len(t, h.sender.Sent(), 1)
	assert.Contains(t, h.sender.Sent()[0].Body, "12:00")
}

func TestLateEvents(t *testing.T) {
	ctx := context.Background()
	day := testDay("h1", interval.QueueIntervals{"1.1": guaranteed(8, 11)})

	t.Run("inside window fires immediately", func(t *testing.T) {
		h := newHarness(t, localTime(8, 30), false)
		armed, err := h.sched.SyncDay(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, 1, armed)
		h.clock.Advance(0)
		assert.Len(t, h.sender.Sent(), 1)
	})

	t.Run("after window is dropped", func(t *testing.T) {
		h := newHarness(t, localTime(11, 30), false)
		armed, err := h.sched.SyncDay(ctx, day)
		require.NoError(t, err)
		assert.Zero(t, armed)
		assert.Empty(t, h.sched.Timers())
	})
}

func TestPossibleEventsAreOptIn(t *testing.T) {
	ctx := context.Background()
	day := testDay("h1", interval.QueueIntervals{
		"1.1": {Possible: []interval.Interval{{Start: 8, End: 9, Kind: interval.Possible}}},
	})

	h := newHarness(t, localTime(7, 0), false)
	armed, err := h.sched.SyncDay(ctx, day)
	require.NoError(t, err)
	assert.Zero(t, armed)

	h = newHarness(t, localTime(7, 0), true)
	armed, err = h.sched.SyncDay(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, 1, armed)
}

func TestSyncDayIgnoresOtherRegions(t *testing.T) {
	h := newHarness(t, localTime(7, 0), false)
	day := testDay("h1", interval.QueueIntervals{"1.1": guaranteed(8, 11)})
	day.Region = "kyiv"

	armed, err := h.sched.SyncDay(context.Background(), day)
	require.NoError(t, err)
	assert.Zero(t, armed)
}

func TestSyncAnnouncements(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, localTime(7, 0), false)
	_, err := h.store.Replace(ctx, testDay("h1", interval.QueueIntervals{"1.1": guaranteed(8, 11)}))
	require.NoError(t, err)

	outages := []interval.AnnouncementOutage{
		{ID: "covered", Date: testDate, Queue: "1.1", Start: 9, End: 10},
		{ID: "extra", Date: testDate, Queue: "3.2", Start: 15, End: 17},
	}
	armed, err := h.sched.SyncAnnouncements(ctx, testDate, outages)
	require.NoError(t, err)
	assert.Equal(t, 1, armed)

	h.clock.Advance(10 * time.Hour)
	sent := h.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "3.2", sent[0].Topic)
	assert.Equal(t, "extra", sent[0].Key.RecordID)
}

func TestLedgerErrorRearmsOnTick(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, localTime(7, 0), false)
	ledger := &flakyLedger{MemoryLedger: h.ledger, failures: 1}
	h.sched = h.newScheduler(ledger, h.sender, false)

	_, err := h.store.Replace(ctx, testDay("h1", interval.QueueIntervals{"1.1": guaranteed(8, 11)}))
	require.NoError(t, err)
	require.NoError(t, h.sched.Recover(ctx))

	key := EventKey{Date: "2026-03-10", Queue: "1.1", StartMinute: 480, Kind: KindGuaranteed}
	h.clock.Advance(50 * time.Minute)
	assert.Empty(t, h.sender.Sent())
	_, ok := h.sched.State(key)
	assert.False(t, ok)

	require.NoError(t, h.sched.Tick(ctx))
	h.clock.Advance(0)
	assert.Len(t, h.sender.Sent(), 1)
	assert.Equal(t, 1, h.ledger.Len())
}

func TestDeliveryFailureKeepsLedgerRow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, localTime(7, 0), false)
	h.sender.err = errors.New("gateway down")
	day := testDay("h1", interval.QueueIntervals{"1.1": guaranteed(8, 11)})
	_, err := h.store.Replace(ctx, day)
	require.NoError(t, err)
	_, err = h.sched.SyncDay(ctx, day)
	require.NoError(t, err)

	key := EventKey{Date: "2026-03-10", Queue: "1.1", StartMinute: 480, Kind: KindGuaranteed}
	delivered, err := h.sched.Fire(ctx, key)
	assert.True(t, delivered)
	assert.ErrorIs(t, err, ErrDeliveryFailure)
	assert.Equal(t, 1, h.ledger.Len())

	require.NoError(t, h.sched.Tick(ctx))
	state, _ := h.sched.State(key)
	assert.Equal(t, StateRecorded, state)
}

func TestBroadcastOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, localTime(7, 0), false)
	ev := h.sched.Planner().SchedulePublished(testDay("h1", nil))

	sent, err := h.sched.Broadcast(ctx, ev)
	require.NoError(t, err)
	assert.True(t, sent)

	sent, err = h.sched.Broadcast(ctx, h.sched.Planner().SchedulePublished(testDay("h2", nil)))
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Len(t, h.sender.Sent(), 1)
}

func TestStopCancelsPendingTimers(t *testing.T) {
	h := newHarness(t, localTime(7, 0), false)
	_, err := h.sched.SyncDay(context.Background(), testDay("h1", interval.QueueIntervals{"1.1": guaranteed(8, 11)}))
	require.NoError(t, err)

	h.sched.Stop()
	h.clock.Advance(2 * time.Hour)
	assert.Empty(t, h.sender.Sent())
}

// --------------------------------------------------------------------------
// Ledger
// --------------------------------------------------------------------------

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	old := EventKey{Date: "2026-03-01", Queue: "1.1", StartMinute: 60, Kind: KindGuaranteed}
	cur := EventKey{Date: "2026-03-10", Queue: "1.1", StartMinute: 60, Kind: KindGuaranteed}
	other := cur
	other.Kind = KindAnnouncement
	other.RecordID = "x"

	require.NoError(t, l.Record(ctx, old))
	require.NoError(t, l.Record(ctx, cur))
	require.NoError(t, l.Record(ctx, other))
	assert.ErrorIs(t, l.Record(ctx, cur), ErrDedupConflict)

	since, err := l.RecordedSince(ctx, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, since, 2)
	assert.True(t, since[cur])

	n, err := l.Purge(ctx, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 2, l.Len())
}

// --------------------------------------------------------------------------
// Senders
// --------------------------------------------------------------------------

func TestPushSender(t *testing.T) {
	var got pushPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewPushSender(srv.URL, "secret", time.Second)
	err := s.Deliver(context.Background(), Notification{Topic: "1.1", Title: "t", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, "queue_1.1", got.Topic)
	assert.Equal(t, "Bearer secret", auth)
}

func TestPushSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewPushSender(srv.URL, "", time.Second).Deliver(context.Background(), Notification{Topic: "all"})
	assert.ErrorContains(t, err, "502")
}

func TestUnconfiguredSendersAreNoops(t *testing.T) {
	assert.Nil(t, NewPushSender("", "", time.Second))
	var push *PushSender
	assert.NoError(t, push.Deliver(context.Background(), Notification{}))

	tg, err := NewTelegramSender("", "@chan")
	require.NoError(t, err)
	assert.Nil(t, tg)
	assert.NoError(t, tg.Deliver(context.Background(), Notification{}))

	s, err := BuildSender("", "", "", "", time.Second, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &LogSender{}, s)
}

func TestTelegramTextEscapesScrapedText(t *testing.T) {
	tests := []struct {
		name string
		n    Notification
		want string
	}{
		{"body only", Notification{Body: "черги 1 & 2"}, "черги 1 &amp; 2"},
		{
			name: "title and body",
			n:    Notification{Title: "UPD <важливо>", Body: "з 10:00 до 14:00 < 3 годин"},
			want: "<b>UPD &lt;важливо&gt;</b>\nз 10:00 до 14:00 &lt; 3 годин",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, telegramText(tt.n))
		})
	}
}

func TestMultiSenderJoinsErrors(t *testing.T) {
	ok := &recordingSender{}
	bad := &recordingSender{err: errors.New("boom")}
	err := MultiSender{bad, ok}.Deliver(context.Background(), Notification{Topic: "1.1"})
	assert.ErrorContains(t, err, "boom")
	assert.Len(t, ok.Sent(), 1)
}
