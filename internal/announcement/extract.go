// Package announcement mines outage windows out of free text: the operator's
// announcement paragraphs ("з 10:00 до 14:00 буде відключено підчергу 3.1")
// and the textual schedule printed under each table image
// ("підчерга 6.2 – з 09:00 до 12:00, з 16:00 до 22:00;").
package announcement

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prosvitlo/prosvitlo-data/internal/interval"
)

// ErrNoSchedule is returned when a text schedule has no parsable queue line.
var ErrNoSchedule = errors.New("no queue schedule found in text")

// outageNamespace scopes announcement outage ids.
var outageNamespace = uuid.MustParse("6f1c2a52-52a4-4c4e-9d0c-3b7f4e0a9b11")

// cutPhrases mark a paragraph as announcing a power cut. Matched against
// lower-cased text.
var cutPhrases = []string{
	"буде відключено",
	"будуть відключені",
	"буде знеструмлено",
	"будуть знеструмлені",
	"застосовуватиметься",
	"відключення електроенергії",
	"power will be cut",
	"will be cut off",
}

var (
	// "з 10:00 до 14:00", "з 10.00 до 14.00", "from 10:00 to 14:00",
	// "10:00–14:00". A dotted start time needs a leading з/від/from, so date
	// ranges such as "15.10 - 16.10" do not match.
	timeRangeRe = regexp.MustCompile(`(?:(?:^|[^\p{L}])(?:з|від|from)\s*(\d{1,2})[:.](\d{2})|(\d{1,2}):(\d{2}))\s*(?:до|по|to|until|till|-|–|—)\s*(\d{1,2})[:.](\d{2})`)

	// "підчергу 3.1", "черги 2.1, 2.2 та 4", "queue 5.2"
	queueListRe = regexp.MustCompile(`(?:черг\p{L}*|queues?)\s*(?:№\s*)?(\d(?:\.\d)?(?:\s*(?:,|та|і|й|and|&)\s*\d(?:\.\d)?)*)`)
	queueTokenRe = regexp.MustCompile(`\d(?:\.\d)?`)

	// text schedule lines
	scheduleLineRe = regexp.MustCompile(`підчерга\s+(\d+\.\d+)\s*[–—-]\s*(.+?)(?:;|$)`)
	scheduleTimeRe = regexp.MustCompile(`з\s+(\d{1,2}):(\d{2})\s+до\s+(\d{1,2}):(\d{2})`)
)

// HasCutPhrase reports whether text announces a power cut.
func HasCutPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range cutPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// OutageID derives the stable id of an announcement outage.
func OutageID(date time.Time, queue string, start, end float64) string {
	name := fmt.Sprintf("%s|%s|%d|%d", date.Format(interval.DateLayout), queue,
		interval.HourToMinute(start), interval.HourToMinute(end))
	return uuid.NewSHA1(outageNamespace, []byte(name)).String()
}

// ExtractOutages returns the outages announced in text for date.
//
// A paragraph with a cut phrase opens a group; the paragraphs right after it
// stay in the group while they mention a queue or a time range. A paragraph
// naming both queues and ranges yields its own pairs. Queues and ranges from
// the remaining paragraphs of the group are crossed with each other, which
// covers "з 10:00 до 14:00 буде відключено:" followed by bullet queues.
func ExtractOutages(date time.Time, text string) []interval.AnnouncementOutage {
	date = interval.DateOnly(date)
	var (
		out  []interval.AnnouncementOutage
		seen = make(map[string]bool)
		g    *group
	)

	emit := func() {
		if g == nil {
			return
		}
		for _, o := range g.outages(date) {
			if !seen[o.ID] {
				seen[o.ID] = true
				out = append(out, o)
			}
		}
		g = nil
	}

	for _, para := range splitParagraphs(text) {
		lower := strings.ToLower(para)
		queues := extractQueues(lower)
		ranges := extractRanges(lower)

		switch {
		case HasCutPhrase(lower):
			emit()
			g = &group{}
		case g == nil:
			continue
		case len(queues) == 0 && len(ranges) == 0:
			emit()
			continue
		}
		g.add(para, queues, ranges)
	}
	emit()
	return out
}

// group collects the paragraphs of one cut announcement.
type group struct {
	paragraphs  []string
	pairs       []pair
	looseQueues []string
	looseRanges [][2]float64
}

type pair struct {
	queue string
	span  [2]float64
}

func (g *group) add(para string, queues []string, ranges [][2]float64) {
	g.paragraphs = append(g.paragraphs, para)
	if len(queues) > 0 && len(ranges) > 0 {
		for _, q := range queues {
			for _, r := range ranges {
				g.pairs = append(g.pairs, pair{queue: q, span: r})
			}
		}
		return
	}
	g.looseQueues = appendUnique(g.looseQueues, queues...)
	g.looseRanges = appendRanges(g.looseRanges, ranges...)
}

func (g *group) outages(date time.Time) []interval.AnnouncementOutage {
	pairs := append([]pair{}, g.pairs...)
	for _, q := range g.looseQueues {
		for _, r := range g.looseRanges {
			pairs = append(pairs, pair{queue: q, span: r})
		}
	}
	provenance := strings.Join(g.paragraphs, "\n")
	out := make([]interval.AnnouncementOutage, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, interval.AnnouncementOutage{
			ID:    OutageID(date, p.queue, p.span[0], p.span[1]),
			Date:  date,
			Queue: p.queue,
			Start: p.span[0],
			End:   p.span[1],
			Text:  provenance,
		})
	}
	return out
}

// ExtractQueueSchedule parses the textual schedule published with a table
// image into guaranteed intervals per sub-queue.
func ExtractQueueSchedule(text string) (interval.QueueIntervals, error) {
	out := make(interval.QueueIntervals)
	for _, line := range strings.Split(text, "\n") {
		m := scheduleLineRe.FindStringSubmatch(strings.ToLower(line))
		if m == nil {
			continue
		}
		queue := m[1]
		var ivs []interval.Interval
		for _, tm := range scheduleTimeRe.FindAllStringSubmatch(m[2], -1) {
			start, end, ok := parseRange(tm[1:5])
			if !ok {
				continue
			}
			ivs = append(ivs, interval.Interval{Start: start, End: end, Kind: interval.Guaranteed})
		}
		if len(ivs) == 0 {
			continue
		}
		qs := out[queue]
		qs.Guaranteed = append(qs.Guaranteed, ivs...)
		out[queue] = qs
	}
	if len(out) == 0 {
		return interval.QueueIntervals{}, ErrNoSchedule
	}
	return out.Normalize(), nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func splitParagraphs(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "•-*"))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// extractQueues expands "3" into its sub-queues 3.1 and 3.2.
func extractQueues(lower string) []string {
	var out []string
	for _, m := range queueListRe.FindAllStringSubmatch(lower, -1) {
		for _, tok := range queueTokenRe.FindAllString(m[1], -1) {
			if strings.Contains(tok, ".") {
				out = appendUnique(out, tok)
				continue
			}
			out = appendUnique(out, tok+".1", tok+".2")
		}
	}
	return out
}

func extractRanges(lower string) [][2]float64 {
	var out [][2]float64
	for _, m := range timeRangeRe.FindAllStringSubmatch(lower, -1) {
		hh, mm := m[1], m[2]
		if hh == "" {
			hh, mm = m[3], m[4]
		}
		start, end, ok := parseRange([]string{hh, mm, m[5], m[6]})
		if ok {
			out = append(out, [2]float64{start, end})
		}
	}
	return out
}

// parseRange converts hh, mm, hh, mm into clamped fractional hours.
func parseRange(parts []string) (float64, float64, bool) {
	n := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return 0, 0, false
		}
		n[i] = v
	}
	if n[0] > 24 || n[2] > 24 || n[1] > 59 || n[3] > 59 {
		return 0, 0, false
	}
	start := float64(n[0]) + float64(n[1])/60
	end := float64(n[2]) + float64(n[3])/60
	if start >= interval.DayEnd {
		return 0, 0, false
	}
	start, end = interval.Clamp(start, end)
	return start, end, true
}

func appendUnique(dst []string, vs ...string) []string {
	for _, v := range vs {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

func appendRanges(dst [][2]float64, vs ...[2]float64) [][2]float64 {
	for _, v := range vs {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}
