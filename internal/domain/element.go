package domain

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrUnknownElement = errors.New("unknown element kind")
	ErrBadPath        = errors.New("malformed path data")
)

type ElementKind string

const (
	KindPath   ElementKind = "path"
	KindRect   ElementKind = "rect"
	KindCircle ElementKind = "circle"
	KindText   ElementKind = "text"
)

// Element is a tagged variant over path, rect, circle and text. Only the
// fields of its Kind are meaningful; the JSON shape is shared with browser clients.
type Element struct {
	ID   string      `json:"id"`
	Kind ElementKind `json:"type"`

	// path
	Path string `json:"path,omitempty"`
	// rect, text
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	// circle
	CX float64 `json:"cx,omitempty"`
	CY float64 `json:"cy,omitempty"`
	R  float64 `json:"r,omitempty"`
	// text
	Text       string  `json:"text,omitempty"`
	FontSize   float64 `json:"fontSize,omitempty"`
	FontFamily string  `json:"fontFamily,omitempty"`

	Stroke      string  `json:"stroke,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
	Fill        string  `json:"fill,omitempty"`
}

type Point struct {
	X, Y float64
}

// Box is an axis-aligned rectangle with Min <= Max.
type Box struct {
	Min, Max Point
}

func (b Box) Contains(p Point) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

func (b Box) inflate(d float64) Box {
	return Box{Min: Point{b.Min.X - d, b.Min.Y - d}, Max: Point{b.Max.X + d, b.Max.Y + d}}
}

func (e Element) Validate() error {
	switch e.Kind {
	case KindPath:
		_, err := ParsePath(e.Path)
		return err
	case KindRect, KindCircle, KindText:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownElement, e.Kind)
	}
}

// Normalized returns e with non-negative rect size and circle radius. A rect
// dragged up or left keeps the same area with its origin at the top-left corner.
func (e Element) Normalized() Element {
	switch e.Kind {
	case KindRect:
		if e.Width < 0 {
			e.X, e.Width = e.X+e.Width, -e.Width
		}
		if e.Height < 0 {
			e.Y, e.Height = e.Y+e.Height, -e.Height
		}
	case KindCircle:
		e.R = math.Abs(e.R)
	}
	return e
}

// Bounds returns the element's bounding box, stroke included.
func (e Element) Bounds() Box {
	e = e.Normalized()
	half := e.StrokeWidth / 2
	switch e.Kind {
	case KindPath:
		pts, _ := ParsePath(e.Path)
		if len(pts) == 0 {
			return Box{}
		}
		b := Box{Min: pts[0], Max: pts[0]}
		for _, p := range pts[1:] {
			b.Min.X = math.Min(b.Min.X, p.X)
			b.Min.Y = math.Min(b.Min.Y, p.Y)
			b.Max.X = math.Max(b.Max.X, p.X)
			b.Max.Y = math.Max(b.Max.Y, p.Y)
		}
		return b.inflate(half)
	case KindRect:
		return Box{Min: Point{e.X, e.Y}, Max: Point{e.X + e.Width, e.Y + e.Height}}.inflate(half)
	case KindCircle:
		r := e.R + half
		return Box{Min: Point{e.CX - r, e.CY - r}, Max: Point{e.CX + r, e.CY + r}}
	case KindText:
		// y is the baseline; width is an average-glyph estimate.
		size := e.FontSize
		if size == 0 {
			size = 16
		}
		w := float64(len([]rune(e.Text))) * size * 0.6
		return Box{Min: Point{e.X, e.Y - size}, Max: Point{e.X + w, e.Y}}
	}
	return Box{}
}

// Contains reports whether p falls inside the element's hit region.
func (e Element) Contains(p Point) bool {
	if e.Kind == KindCircle {
		return math.Hypot(p.X-e.CX, p.Y-e.CY) <= e.R+e.StrokeWidth/2
	}
	return e.Bounds().Contains(p)
}

// Translate returns a copy of e shifted by (dx, dy).
func (e Element) Translate(dx, dy float64) Element {
	switch e.Kind {
	case KindPath:
		pts, err := ParsePath(e.Path)
		if err != nil {
			return e
		}
		for i := range pts {
			pts[i].X += dx
			pts[i].Y += dy
		}
		e.Path = FormatPath(pts)
	case KindRect, KindText:
		e.X += dx
		e.Y += dy
	case KindCircle:
		e.CX += dx
		e.CY += dy
	}
	return e
}

// ParsePath reads the subset of SVG path data produced by the pen tool:
// an initial "Mx,y" followed by any number of "Lx,y" segments.
func ParsePath(d string) ([]Point, error) {
	fields := strings.Fields(d)
	pts := make([]Point, 0, len(fields))
	for i, f := range fields {
		if len(f) < 2 {
			return nil, fmt.Errorf("%w: %q", ErrBadPath, f)
		}
		cmd := f[0]
		if (i == 0 && cmd != 'M') || (i > 0 && cmd != 'L') {
			return nil, fmt.Errorf("%w: unexpected command %q", ErrBadPath, cmd)
		}
		xs, ys, ok := strings.Cut(f[1:], ",")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrBadPath, f)
		}
		x, err := strconv.ParseFloat(xs, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPath, err)
		}
		y, err := strconv.ParseFloat(ys, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPath, err)
		}
		pts = append(pts, Point{x, y})
	}
	return pts, nil
}

func FormatPath(pts []Point) string {
	var sb strings.Builder
	for i, p := range pts {
		if i == 0 {
			sb.WriteByte('M')
		} else {
			sb.WriteString(" L")
		}
		sb.WriteString(formatFloat(p.X))
		sb.WriteByte(',')
		sb.WriteString(formatFloat(p.Y))
	}
	return sb.String()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// CloneElements copies a slice of elements; Element holds only values so a
// shallow copy is a full snapshot.
func CloneElements(in []Element) []Element {
	out := make([]Element, len(in))
	copy(out, in)
	return out
}
