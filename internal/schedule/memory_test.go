package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prosvitlo/prosvitlo-data/internal/interval"
)

var oct15 = time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

func dayWith(hash string, start, end float64) Day {
	return Day{
		Date:        oct15,
		Region:      "hoe",
		ContentHash: hash,
		Intervals: interval.QueueIntervals{
			"1.1": {Guaranteed: []interval.Interval{{Start: start, End: end}}, Possible: []interval.Interval{}},
		},
	}
}

func TestReplaceKeepsSingleActiveDay(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Active(ctx, oct15, "hoe")
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := s.Replace(ctx, dayWith("a", 8, 11))
	require.NoError(t, err)
	second, err := s.Replace(ctx, dayWith("b", 9, 12))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	active, err := s.Active(ctx, oct15, "hoe")
	require.NoError(t, err)
	assert.Equal(t, "b", active.ContentHash)

	history := s.History(oct15, "hoe")
	require.Len(t, history, 2)
	assert.False(t, history[0].Active)
	assert.NotNil(t, history[0].RetiredAt)
	assert.True(t, history[1].Active)
}

func TestActiveReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Replace(ctx, dayWith("a", 8, 11))
	require.NoError(t, err)

	d, err := s.Active(ctx, oct15, "hoe")
	require.NoError(t, err)
	d.Intervals["1.1"].Guaranteed[0].End = 23

	again, err := s.Active(ctx, oct15, "hoe")
	require.NoError(t, err)
	assert.Equal(t, 11.0, again.Intervals["1.1"].Guaranteed[0].End)
}

func TestRetireAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	old := dayWith("old", 1, 2)
	old.Date = oct15.AddDate(0, 0, -3)
	_, err := s.Replace(ctx, old)
	require.NoError(t, err)
	_, err = s.Replace(ctx, dayWith("today", 8, 11))
	require.NoError(t, err)

	n, err := s.RetireBefore(ctx, oct15.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	since, err := s.ActiveSince(ctx, oct15.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "today", since[0].ContentHash)

	n, err = s.DeleteRetired(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Empty(t, s.History(old.Date, "hoe"))
}

func TestSaveAnnouncementsReturnsOnlyNew(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a := interval.AnnouncementOutage{ID: "a", Date: oct15, Queue: "3.1", Start: 9, End: 12}
	b := interval.AnnouncementOutage{ID: "b", Date: oct15, Queue: "1.2", Start: 14, End: 16}

	inserted, err := s.SaveAnnouncements(ctx, []interval.AnnouncementOutage{a})
	require.NoError(t, err)
	assert.Len(t, inserted, 1)

	inserted, err = s.SaveAnnouncements(ctx, []interval.AnnouncementOutage{a, b})
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	assert.Equal(t, "b", inserted[0].ID)

	all, err := s.Announcements(ctx, oct15)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "1.2", all[0].Queue)

	n, err := s.DeleteAnnouncementsBefore(ctx, oct15.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}
