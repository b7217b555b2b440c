// Package colortable decodes a color-coded outage table image into hourly
// intervals per queue. Each queue is one row of 24 hour cells; a cell's
// average color decides between a guaranteed outage, a possible outage or
// no outage.
package colortable

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"log/slog"

	// Registered image formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/prosvitlo/prosvitlo-data/internal/interval"
)

var (
	// ErrGeometryMismatch means the image does not match the table layout.
	ErrGeometryMismatch = errors.New("image does not match table geometry")
	// ErrDecode means the bytes are not a decodable image.
	ErrDecode = errors.New("decode schedule image")
)

// Parser turns table images into per-queue intervals.
type Parser struct {
	geometry   Geometry
	classifier Classifier
	logger     *slog.Logger
}

// NewParser creates a parser for a fixed geometry and classification
// strategy.
func NewParser(g Geometry, c Classifier, logger *slog.Logger) *Parser {
	if c == nil {
		c = DefaultFixedThreshold()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{geometry: g, classifier: c, logger: logger}
}

// Classifier returns the configured classification strategy.
func (p *Parser) Classifier() Classifier { return p.classifier }

// Decode decodes PNG, JPEG, GIF or WebP bytes.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// ParseBytes decodes and parses an encoded image.
func (p *Parser) ParseBytes(data []byte) (interval.QueueIntervals, error) {
	img, err := Decode(data)
	if err != nil {
		return interval.QueueIntervals{}, err
	}
	return p.Parse(img)
}

// Parse classifies every cell of every row and run-length encodes the
// result. Every geometry row gets an entry, empty or not. On a geometry
// mismatch the result is empty.
func (p *Parser) Parse(img image.Image) (interval.QueueIntervals, error) {
	if err := p.geometry.Check(img.Bounds()); err != nil {
		return interval.QueueIntervals{}, err
	}

	out := make(interval.QueueIntervals, len(p.geometry.Rows))
	withOutage := 0
	for _, row := range p.geometry.Rows {
		colors := p.SampleRow(img, row)
		classes := p.classifier.Classify(colors)
		qs := encodeRuns(classes)
		if !qs.Empty() {
			withOutage++
		}
		out[row.Queue] = qs
	}

	p.logger.Info("Schedule table parsed",
		"classifier", p.classifier.Name(),
		"queues", len(out),
		"queues_with_outages", withOutage)
	return out, nil
}

// SampleRow averages the central region of each of the 24 hour cells.
func (p *Parser) SampleRow(img image.Image, row RowBounds) []Color {
	origin := img.Bounds().Min
	colors := make([]Color, HoursPerDay)
	for hour := 0; hour < HoursPerDay; hour++ {
		r := p.geometry.cellRect(row, hour).Add(origin).Intersect(img.Bounds())
		colors[hour] = averageColor(img, r)
	}
	return colors
}

// averageColor returns the mean color of r. An empty region reads as white.
func averageColor(img image.Image, r image.Rectangle) Color {
	if r.Empty() {
		return Color{B: 255, G: 255, R: 255}
	}
	var sb, sg, sr float64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			sr += float64(cr >> 8)
			sg += float64(cg >> 8)
			sb += float64(cb >> 8)
		}
	}
	n := float64(r.Dx() * r.Dy())
	return Color{B: sb / n, G: sg / n, R: sr / n}
}

// encodeRuns converts 24 cell classes into intervals. A cell of a different
// class closes any open run; a run still open at the end closes at 24.
func encodeRuns(classes []Class) interval.QueueSchedule {
	qs := interval.QueueSchedule{
		Guaranteed: []interval.Interval{},
		Possible:   []interval.Interval{},
	}
	guaranteedStart, possibleStart := -1, -1

	closeRun := func(start *int, hour int, kind interval.Kind) {
		if *start < 0 {
			return
		}
		iv := interval.Interval{Start: float64(*start), End: float64(hour), Kind: kind}
		if kind == interval.Guaranteed {
			qs.Guaranteed = append(qs.Guaranteed, iv)
		} else {
			qs.Possible = append(qs.Possible, iv)
		}
		*start = -1
	}

	for hour, c := range classes {
		switch c {
		case GuaranteedOutage:
			closeRun(&possibleStart, hour, interval.Possible)
			if guaranteedStart < 0 {
				guaranteedStart = hour
			}
		case PossibleOutage:
			closeRun(&guaranteedStart, hour, interval.Guaranteed)
			if possibleStart < 0 {
				possibleStart = hour
			}
		default:
			closeRun(&guaranteedStart, hour, interval.Guaranteed)
			closeRun(&possibleStart, hour, interval.Possible)
		}
	}
	end := len(classes)
	closeRun(&guaranteedStart, end, interval.Guaranteed)
	closeRun(&possibleStart, end, interval.Possible)
	return qs
}
