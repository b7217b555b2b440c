package source

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// scheduleMarker identifies schedule images by their alt text.
const scheduleMarker = "ГПВ"

// "ГПВ-06.12.25", "ГПВ-06.12.25_1", "ГПВ-06.12.25-_02"
var altDateRe = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{2})`)

// Listing is one schedule image found on the schedule page.
type Listing struct {
	Date     time.Time `json:"date"`
	ImageURL string    `json:"image_url"`
	AltText  string    `json:"alt_text"`
	// Text is the per-queue text schedule listed under the image, one
	// "підчерга X.Y – ..." line per item. Empty when the page has none.
	Text string `json:"text,omitempty"`
}

// DiscoverSchedules finds schedule images on the schedule page. The page
// lists revisions of a date newest first, so only the first image of each
// date is kept. Results are in page order.
func DiscoverSchedules(page []byte, pageURL string) ([]Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse schedule page: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	var out []Listing
	seen := make(map[string]bool)
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		alt, _ := img.Attr("alt")
		if src == "" || !strings.Contains(alt, scheduleMarker) {
			return
		}
		date, ok := altDate(alt)
		if !ok {
			return
		}
		key := date.Format(time.DateOnly)
		if seen[key] {
			return
		}
		seen[key] = true

		ref, err := url.Parse(strings.TrimSpace(src))
		if err != nil {
			return
		}
		out = append(out, Listing{
			Date:     date,
			ImageURL: base.ResolveReference(ref).String(),
			AltText:  alt,
			Text:     textSchedule(img),
		})
	})
	return out, nil
}

func altDate(alt string) (time.Time, bool) {
	m := altDateRe.FindStringSubmatch(alt)
	if m == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(2000+year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// textSchedule reads the first list following the image's parent block,
// either as a sibling or nested in a following paragraph.
func textSchedule(img *goquery.Selection) string {
	var list *goquery.Selection
	img.Parent().NextAll().EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) == "img" || s.Find("img").Length() > 0 {
			return false
		}
		if goquery.NodeName(s) == "ul" {
			list = s
			return false
		}
		if goquery.NodeName(s) == "p" {
			if ul := s.Find("ul").First(); ul.Length() > 0 {
				list = ul
				return false
			}
		}
		return true
	})
	if list == nil {
		return ""
	}

	var lines []string
	list.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
		text := strings.TrimSpace(li.Text())
		if strings.Contains(strings.ToLower(text), "підчерга") && strings.Contains(text, "–") {
			lines = append(lines, text)
		}
	})
	return strings.Join(lines, "\n")
}
