package board

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dkeye/CodeSync/internal/domain"
)

const (
	CanvasWidth  = 800
	CanvasHeight = 600
)

// WriteSVG renders elements as a static SVG document. The projection is
// one-way: ids and stacking metadata are not preserved.
func WriteSVG(w io.Writer, elements []domain.Element) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<svg width=\"%d\" height=\"%d\" xmlns=\"http://www.w3.org/2000/svg\">\n", CanvasWidth, CanvasHeight)
	for _, el := range elements {
		line := svgTag(el)
		if line == "" {
			continue
		}
		sb.WriteString("  ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteString("</svg>\n")
	_, err := io.WriteString(w, sb.String())
	return err
}

func svgTag(el domain.Element) string {
	el = el.Normalized()
	switch el.Kind {
	case domain.KindPath:
		return fmt.Sprintf(`<path d="%s" stroke="%s" stroke-width="%s" fill="%s" />`,
			attr(el.Path), attr(el.Stroke), num(el.StrokeWidth), attr(el.Fill))
	case domain.KindRect:
		return fmt.Sprintf(`<rect x="%s" y="%s" width="%s" height="%s" stroke="%s" stroke-width="%s" fill="%s" />`,
			num(el.X), num(el.Y), num(el.Width), num(el.Height), attr(el.Stroke), num(el.StrokeWidth), attr(el.Fill))
	case domain.KindCircle:
		return fmt.Sprintf(`<circle cx="%s" cy="%s" r="%s" stroke="%s" stroke-width="%s" fill="%s" />`,
			num(el.CX), num(el.CY), num(el.R), attr(el.Stroke), num(el.StrokeWidth), attr(el.Fill))
	case domain.KindText:
		return fmt.Sprintf(`<text x="%s" y="%s" fill="%s" font-size="%s" font-family="%s">%s</text>`,
			num(el.X), num(el.Y), attr(el.Fill), num(el.FontSize), attr(el.FontFamily), attr(el.Text))
	}
	return ""
}

func attr(s string) string {
	var sb strings.Builder
	_ = xml.EscapeText(&sb, []byte(s))
	return sb.String()
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
