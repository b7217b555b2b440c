package announcement

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/prosvitlo/prosvitlo-data/internal/changes"
)

// DefaultContentSelector is the main content block of the operator's pages.
const DefaultContentSelector = "div.content-main"

// minParagraphRunes drops captions and stray labels.
const minParagraphRunes = 10

// ExtractParagraphs returns the text of the paragraphs, headings and list
// items inside the content block, up to the first image. Everything after the
// first image is the schedule table and its text version. If the selector
// matches nothing, the whole body is used.
func ExtractParagraphs(r io.Reader, selector string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if selector == "" {
		selector = DefaultContentSelector
	}
	root := doc.Find(selector).First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var out []string
	root.Find("p, h3, h4, li, img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) == "img" || s.Find("img").Length() > 0 {
			return false
		}
		// list items are picked up on their own
		if goquery.NodeName(s) == "p" && s.Find("li").Length() > 0 {
			return true
		}
		text := strings.Join(strings.Fields(s.Text()), " ")
		if utf8.RuneCountInString(text) > minParagraphRunes {
			out = append(out, text)
		}
		return true
	})
	return out, nil
}

// NewParagraphs returns the paragraphs of cur that are not in prev, in page
// order.
func NewParagraphs(prev, cur []string) []string {
	known := make(map[string]bool, len(prev))
	for _, p := range prev {
		known[p] = true
	}
	var out []string
	for _, p := range cur {
		if !known[p] {
			out = append(out, p)
		}
	}
	return out
}

// --------------------------------------------------------------------------
// Notices
// --------------------------------------------------------------------------

// Notice is a human-readable announcement assembled from new paragraphs,
// broadcast once to all subscribers.
type Notice struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Hash  string `json:"hash"`
}

var noticeMarkers = []string{
	"збільшення обсягу",
	"зменшення обсягу",
	"розпорядженням нек",
	"розпорядження нек",
}

func isNoticeStart(p string) bool {
	if strings.HasPrefix(p, "UPD") || strings.HasPrefix(p, "Оновлення") {
		return true
	}
	lower := strings.ToLower(p)
	for _, m := range noticeMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return HasCutPhrase(lower)
}

// isLinking reports short connective paragraphs such as "Відповідно:".
func isLinking(p string) bool {
	return strings.Contains(strings.ToLower(p), "відповідно") && utf8.RuneCountInString(p) < 50
}

// Notices groups the paragraphs new in cur into notices. A notice starts at a
// new paragraph that looks like an announcement heading and takes the
// following paragraphs while they are new, connective, or about queues.
func Notices(prev, cur []string) []Notice {
	var out []Notice
	for _, g := range noticeGroups(cur, freshMask(prev, cur)) {
		out = append(out, newNotice(cur[g[0]:g[1]]))
	}
	return out
}

// NewText returns the paragraphs of cur that are new since prev, plus the
// older paragraphs a notice pulls in, joined by newlines in page order.
func NewText(prev, cur []string) string {
	fresh := freshMask(prev, cur)
	keep := append([]bool(nil), fresh...)
	for _, g := range noticeGroups(cur, fresh) {
		for i := g[0]; i < g[1]; i++ {
			keep[i] = true
		}
	}
	var parts []string
	for i, p := range cur {
		if keep[i] {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

func freshMask(prev, cur []string) []bool {
	known := make(map[string]bool, len(prev))
	for _, p := range prev {
		known[p] = true
	}
	fresh := make([]bool, len(cur))
	for i, p := range cur {
		fresh[i] = !known[p]
	}
	return fresh
}

// noticeGroups returns the [start, end) paragraph ranges of cur that form
// notices.
func noticeGroups(cur []string, fresh []bool) [][2]int {
	var out [][2]int
	for i := 0; i < len(cur); i++ {
		if !fresh[i] || !isNoticeStart(cur[i]) {
			continue
		}
		j := i + 1
		for ; j < len(cur); j++ {
			next := cur[j]
			if isNoticeStart(next) && fresh[j] {
				break
			}
			lower := strings.ToLower(next)
			if !fresh[j] && !isLinking(next) && !strings.Contains(lower, "підчерг") {
				break
			}
		}
		out = append(out, [2]int{i, j})
		i = j - 1
	}
	return out
}

func newNotice(parts []string) Notice {
	title := parts[0]
	if utf8.RuneCountInString(title) > 100 {
		title = string([]rune(title)[:97]) + "..."
	}
	body := strings.Join(parts, "\n")
	return Notice{Title: title, Body: body, Hash: changes.Hash([]byte(body))}
}
